package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gwillem/armgoto/pkg/arbiter"
	"github.com/gwillem/armgoto/pkg/geom"
	"github.com/gwillem/armgoto/pkg/motion"
	"github.com/gwillem/armgoto/pkg/sim"
	"github.com/gwillem/armgoto/pkg/waypoint"
)

func TestStream_KeysAndLines(t *testing.T) {
	var prompts bytes.Buffer
	s := NewStream(strings.NewReader("m\nw 2\r\ne\n"), &prompts)
	ctx := context.Background()

	k, err := s.PollKey(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, arbiter.KeyManual, k)

	line, err := s.ReadLine(ctx, "command?")
	require.NoError(t, err)
	assert.Equal(t, "w 2", line)

	line, err = s.ReadLine(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "e", line)

	_, err = s.PollKey(ctx, time.Second)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "command?\n", prompts.String())
}

func TestStream_PollKeyTimeout(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	s := NewStream(r, nil)

	k, err := s.PollKey(context.Background(), 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, arbiter.KeyNone, k)
}

func TestStream_Cancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	s := NewStream(r, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.PollKey(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.ReadLine(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStream_LineKeys(t *testing.T) {
	s := NewStream(strings.NewReader("\nq\x03"), nil)
	ctx := context.Background()

	for _, want := range []arbiter.Key{arbiter.KeyNone, arbiter.KeyOther, arbiter.KeyInterrupt} {
		k, err := s.PollKey(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, k)
	}
}

func TestStream_ReadLineInterruptAndPartial(t *testing.T) {
	ctx := context.Background()

	_, err := NewStream(strings.NewReader("w\x03"), nil).ReadLine(ctx, "")
	assert.ErrorIs(t, err, arbiter.ErrInterrupted)

	s := NewStream(strings.NewReader("c 1"), nil)
	line, err := s.ReadLine(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "c 1", line)
	_, err = s.ReadLine(ctx, "")
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_DrivesManualMode(t *testing.T) {
	corners := []waypoint.Corner{
		{Pose: geom.NewPosition(0, 0, 0)},
		{Pose: geom.NewPosition(1, 0, 0)},
		{Pose: geom.NewPosition(1, 1, 0)},
		{Pose: geom.NewPosition(0, 1, 0)},
	}
	set, err := waypoint.Build(corners, 0.5, nil)
	require.NoError(t, err)

	arm := sim.NewArm()
	logger := zaptest.NewLogger(t).Sugar()
	cfg := motion.DefaultConfig()
	cfg.Interval = time.Millisecond
	a := arbiter.New(set, motion.NewExecutor(arm, cfg, logger), arm, logger)

	s := NewStream(strings.NewReader("m\nw 1\ne\n"), io.Discard)
	require.NoError(t, a.Spin(context.Background(), s))

	assert.Equal(t, arbiter.Stopped, a.Mode())
	assert.Equal(t, r3.Vector{X: 1}, arm.Pose().Position())
}

type fixedStatus struct{}

func (fixedStatus) Mode() arbiter.Mode  { return arbiter.Automatic }
func (fixedStatus) WaypointCount() int { return 17 }

func TestDashboard_Keys(t *testing.T) {
	tests := []struct {
		msg  tea.KeyMsg
		want arbiter.Key
	}{
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'m'}}, arbiter.KeyManual},
		{tea.KeyMsg{Type: tea.KeyCtrlC}, arbiter.KeyInterrupt},
	}
	for _, tt := range tests {
		keys := make(chan arbiter.Key, 1)
		m := newDashboard(fixedStatus{}, keys)

		_, cmd := m.Update(tt.msg)
		require.NotNil(t, cmd, tt.msg.String())
		assert.IsType(t, tea.QuitMsg{}, cmd())
		assert.Equal(t, tt.want, <-keys)
	}
}

func TestDashboard_IgnoresOtherKeys(t *testing.T) {
	keys := make(chan arbiter.Key, 1)
	m := newDashboard(fixedStatus{}, keys)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	assert.Nil(t, cmd)
	assert.Empty(t, keys)
}

func TestDashboard_View(t *testing.T) {
	m := newDashboard(fixedStatus{}, make(chan arbiter.Key, 1))
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	view := m.View()
	assert.Contains(t, view, "armgoto")
	assert.Contains(t, view, "automatic")
	assert.Contains(t, view, "17 waypoints")
	assert.NotContains(t, view, "distance")

	m.Update(sampleMsg{Attempt: 3, Distance: 0.25})
	for i := range maxLogs + 2 {
		m.Update(logMsg(strings.Repeat("x", i+1)))
	}
	view = m.View()
	assert.Contains(t, view, "distance 0.2500, attempt 3")
	assert.Len(t, m.logs, maxLogs)
	assert.Equal(t, strings.Repeat("x", maxLogs+2), m.logs[maxLogs-1])
}
