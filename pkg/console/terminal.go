package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/armgoto/pkg/arbiter"
	"github.com/gwillem/armgoto/pkg/motion"
)

// Status is what the dashboard shows about the arbiter.
type Status interface {
	Mode() arbiter.Mode
	WaypointCount() int
}

// Terminal is a Console for an interactive terminal. While the arbiter polls
// for keys it shows a dashboard with the distance to the current target and
// recent log lines. Manual mode prompts are huh forms.
type Terminal struct {
	status Status
	in     io.Reader
	out    io.Writer

	keys chan arbiter.Key

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

var _ arbiter.Console = (*Terminal)(nil)

// NewTerminal reads keys from in. Log lines written while the dashboard is
// hidden go to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{
		in:   in,
		out:  out,
		keys: make(chan arbiter.Key, 1),
	}
}

// Attach sets what the dashboard reports. It must be called before the
// first PollKey.
func (t *Terminal) Attach(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
}

// PollKey implements arbiter.Console. It shows the dashboard if it is not
// already visible.
func (t *Terminal) PollKey(ctx context.Context, timeout time.Duration) (arbiter.Key, error) {
	t.show(ctx)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case k := <-t.keys:
		return k, nil
	case <-timer.C:
		return arbiter.KeyNone, nil
	case <-ctx.Done():
		t.Close()
		return arbiter.KeyNone, ctx.Err()
	}
}

// ReadLine implements arbiter.Console.
func (t *Terminal) ReadLine(ctx context.Context, prompt string) (string, error) {
	t.Close()

	var line string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(prompt).
				Value(&line),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", arbiter.ErrInterrupted
		}
		return "", err
	}
	return line, nil
}

// Write routes a log line into the dashboard while it is visible.
func (t *Terminal) Write(b []byte) (int, error) {
	if p := t.visible(); p != nil {
		p.Send(logMsg(strings.TrimRight(string(b), "\n")))
		return len(b), nil
	}
	return t.out.Write(b)
}

// Sync implements zapcore.WriteSyncer.
func (t *Terminal) Sync() error {
	return nil
}

// Observe plots an arrival check sample.
func (t *Terminal) Observe(s motion.Sample) {
	if p := t.visible(); p != nil {
		p.Send(sampleMsg(s))
	}
}

// Close hides the dashboard and waits for the terminal to be restored.
func (t *Terminal) Close() {
	t.mu.Lock()
	p, done := t.program, t.done
	t.mu.Unlock()

	if p != nil {
		p.Quit()
	}
	if done != nil {
		<-done
	}
}

func (t *Terminal) visible() *tea.Program {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.program
}

func (t *Terminal) show(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.program != nil {
		return
	}
	if t.done != nil {
		// The previous dashboard quit on its own; wait for it to release the terminal.
		<-t.done
	}

	p := tea.NewProgram(newDashboard(t.status, t.keys),
		tea.WithAltScreen(),
		tea.WithInput(t.in),
		tea.WithContext(ctx),
	)
	done := make(chan struct{})
	t.program, t.done = p, done

	go func() {
		defer close(done)
		_, err := p.Run()
		t.mu.Lock()
		if t.program == p {
			t.program = nil
		}
		t.mu.Unlock()
		if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			fmt.Fprintf(t.out, "dashboard: %v\n", err)
		}
	}()
}

const (
	headerHeight = 2 // title + blank line
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
	distanceSet  = "distance"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	modeStyles  = map[arbiter.Mode]lipgloss.Style{
		arbiter.Automatic: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		arbiter.Manual:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		arbiter.Stopped:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
)

type sampleMsg motion.Sample
type logMsg string

type dashboard struct {
	status Status
	keys   chan<- arbiter.Key
	chart  *streamlinechart.Model
	width  int
	height int
	logs   []string
	last   motion.Sample
}

func newDashboard(status Status, keys chan<- arbiter.Key) *dashboard {
	chart := streamlinechart.New(80, 12,
		streamlinechart.WithYRange(0, 0.5),
	)
	chart.SetDataSetStyles(distanceSet, runes.ThinLineStyle,
		lipgloss.NewStyle().Foreground(lipgloss.Color("51")))

	return &dashboard{
		status: status,
		keys:   keys,
		chart:  &chart,
		last:   motion.Sample{Distance: -1},
	}
}

func (m *dashboard) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m *dashboard) send(k arbiter.Key) {
	select {
	case m.keys <- k:
	default:
	}
}

func (m *dashboard) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 12
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-footerHeight-borderSize, 6)
	return width, height
}

func (m *dashboard) Init() tea.Cmd {
	return nil
}

func (m *dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "m", "M":
			m.send(arbiter.KeyManual)
			return m, tea.Quit
		case "ctrl+c":
			m.send(arbiter.KeyInterrupt)
			return m, tea.Quit
		}

	case sampleMsg:
		m.last = motion.Sample(msg)
		m.chart.PushDataSet(distanceSet, msg.Distance)
		m.chart.DrawAll()
		return m, nil

	case logMsg:
		m.addLog(string(msg))
		return m, nil
	}

	return m, nil
}

func (m *dashboard) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("armgoto"))
	if m.status != nil {
		mode := m.status.Mode()
		sb.WriteString(" - ")
		sb.WriteString(modeStyles[mode].Render(mode.String()))
		sb.WriteString(fmt.Sprintf(" - %d waypoints", m.status.WaypointCount()))
	}
	if m.last.Distance >= 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [distance %.4f, attempt %d]", m.last.Distance, m.last.Attempt)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 40))

	logLines := statusStyle.Render(`Press "m" to enter manual mode, Ctrl+C to shut down`)
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}
