package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"

	"github.com/gwillem/armgoto/pkg/robot"
)

// minGoodRange is the raw range below which a motor is shown as not yet explored.
const minGoodRange = 500

type SetupCommand struct {
	Port string `long:"port" description:"Serial port of the servo arm (skips scanning)"`
}

func (c *SetupCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	fmt.Println(headerStyle.Render("armgoto Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
	fmt.Println()

	port := c.Port
	if port == "" {
		if port, err = selectPort(ctx); err != nil {
			return err
		}
		if port == "" {
			return nil
		}
	}

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Recording motor ranges ━━━"))
	fmt.Println()
	cal, err := recordRanges(ctx, port)
	if err != nil {
		return err
	}

	cfg.Servo = robot.ServoConfig{Port: port, Calibration: cal}
	if err := cfg.SaveTo(opts.Config); err != nil {
		return errors.Wrap(err, "save config")
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	return nil
}

func selectPort(ctx context.Context) (string, error) {
	fmt.Println("Scanning for servo arms...")
	found, err := robot.Scan(ctx, stderrLogger())
	if err != nil {
		return "", err
	}
	switch len(found) {
	case 0:
		return "", errors.New("no servo arm found; make sure it is connected and powered on")
	case 1:
		fmt.Printf("  Found arm on %s\n", found[0].Port)
		return found[0].Port, nil
	}

	options := make([]huh.Option[string], 0, len(found)+1)
	for _, f := range found {
		options = append(options, huh.NewOption(f.Port, f.Port))
	}
	options = append(options, huh.NewOption("Cancel", ""))

	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which servo arm should joint moves use?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		return "", nil
	}
	return port, nil
}

func recordRanges(ctx context.Context, port string) (robot.Calibration, error) {
	bus, err := robot.OpenBus(port)
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	motors := robot.AllMotors()
	ids := make([]int, len(motors))
	for i := range motors {
		ids[i] = i + 1
	}
	group := feetech.NewServoGroupByIDs(bus, ids...)

	// Release torque so the joints can be moved by hand.
	if err := group.DisableAll(ctx); err != nil {
		return nil, errors.Wrap(err, "disable torque")
	}

	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println()

	read := func(ctx context.Context) (map[int]int, error) {
		pos, err := group.Positions(ctx)
		if err != nil {
			return nil, err
		}
		out := make(map[int]int, len(pos))
		for id, p := range pos {
			out[id] = p
		}
		return out, nil
	}

	final, err := tea.NewProgram(newRangeModel(motors, read)).Run()
	if err != nil {
		return nil, errors.Wrap(err, "record ranges")
	}
	m := final.(rangeModel)
	if !m.seen {
		return nil, errors.New("no positions were read from the arm")
	}
	return m.calibration(), nil
}

type tickMsg time.Time

// rangeModel tracks the minimum and maximum raw position of every motor while
// the operator moves the arm.
type rangeModel struct {
	motors []robot.MotorName
	read   func(context.Context) (map[int]int, error)
	cur    map[robot.MotorName]int
	min    map[robot.MotorName]int
	max    map[robot.MotorName]int
	seen   bool
	err    error
	done   bool
}

func newRangeModel(motors []robot.MotorName, read func(context.Context) (map[int]int, error)) rangeModel {
	return rangeModel{
		motors: motors,
		read:   read,
		cur:    make(map[robot.MotorName]int),
		min:    make(map[robot.MotorName]int),
		max:    make(map[robot.MotorName]int),
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m rangeModel) Init() tea.Cmd {
	return tick()
}

func (m rangeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}

	case tickMsg:
		m.observe(context.Background())
		return m, tick()
	}
	return m, nil
}

func (m *rangeModel) observe(ctx context.Context) {
	positions, err := m.read(ctx)
	m.err = err
	if err != nil {
		return
	}
	for i, name := range m.motors {
		pos, ok := positions[i+1]
		if !ok {
			continue
		}
		m.cur[name] = pos
		if lo, ok := m.min[name]; !ok || pos < lo {
			m.min[name] = pos
		}
		if hi, ok := m.max[name]; !ok || pos > hi {
			m.max[name] = pos
		}
	}
	m.seen = true
}

func (m rangeModel) calibration() robot.Calibration {
	cal := make(robot.Calibration, len(m.motors))
	for i, name := range m.motors {
		cal[name] = robot.MotorCalibration{
			ID:       i + 1,
			RangeMin: m.min[name],
			RangeMax: m.max[name],
		}
	}
	return cal
}

func (m rangeModel) View() string {
	if m.done {
		return ""
	}

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	motorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	goodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	lowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.motors))
	ranges := make([]int, 0, len(m.motors))
	for _, name := range m.motors {
		r := m.max[name] - m.min[name]
		ranges = append(ranges, r)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", m.cur[name]),
			fmt.Sprintf("%d", m.min[name]),
			fmt.Sprintf("%d", m.max[name]),
			fmt.Sprintf("%d", r),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 0:
				return motorStyle
			case col == 4 && row >= 0 && row < len(ranges) && ranges[row] > minGoodRange:
				return goodStyle
			case col == 4:
				return lowStyle
			default:
				return cellStyle
			}
		})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	if m.err != nil {
		sb.WriteString(lowStyle.Render(fmt.Sprintf("read error: %v", m.err)))
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render("Press Enter when done"))
	return sb.String()
}
