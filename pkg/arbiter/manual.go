package arbiter

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/gwillem/armgoto/pkg/geom"
)

// KeyPollInterval is how long Spin waits for a key before polling again.
const KeyPollInterval = 100 * time.Millisecond

// Key is a single key press relevant to the arbiter.
type Key int

const (
	KeyNone Key = iota
	KeyManual
	KeyInterrupt
	KeyOther
)

// KeyFromRune maps a raw key to a Key: "m" enters manual mode, Ctrl-C interrupts.
func KeyFromRune(r rune) Key {
	switch r {
	case 'm', 'M':
		return KeyManual
	case 0x03:
		return KeyInterrupt
	default:
		return KeyOther
	}
}

// ErrInterrupted is returned by a Console when the operator aborts a prompt.
var ErrInterrupted = errors.New("interrupted by operator")

// Console is the operator's keyboard.
type Console interface {
	// PollKey waits up to timeout for a key press and returns KeyNone if there was none.
	PollKey(ctx context.Context, timeout time.Duration) (Key, error)
	// ReadLine prompts for and reads one line of input.
	ReadLine(ctx context.Context, prompt string) (string, error)
}

// CommandKind is a manual-mode command.
type CommandKind string

const (
	CommandCorner   CommandKind = "c"
	CommandWaypoint CommandKind = "w"
	CommandJoints   CommandKind = "j"
	CommandExit     CommandKind = "e"
)

// Command is a parsed manual-mode command line.
type Command struct {
	Kind     CommandKind
	Index    int
	HasIndex bool
}

// ErrUnknownCommand is returned by ParseCommand for unrecognised input.
var ErrUnknownCommand = errors.New("command not recognized")

// ParseCommand parses "c <i>", "w <i>", "j <i>" or "e". The index may be
// omitted, in which case the caller asks for it separately.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || len(fields) > 2 {
		return Command{}, errors.Wrapf(ErrUnknownCommand, "%q", line)
	}

	kind := CommandKind(strings.ToLower(fields[0]))
	switch kind {
	case CommandExit:
		if len(fields) != 1 {
			return Command{}, errors.Wrapf(ErrUnknownCommand, "%q", line)
		}
		return Command{Kind: kind}, nil
	case CommandCorner, CommandWaypoint, CommandJoints:
	default:
		return Command{}, errors.Wrapf(ErrUnknownCommand, "%q", line)
	}

	cmd := Command{Kind: kind}
	if len(fields) == 2 {
		idx, err := strconv.Atoi(fields[1])
		if err != nil {
			return Command{}, errors.Wrapf(ErrUnknownCommand, "index %q", fields[1])
		}
		cmd.Index, cmd.HasIndex = idx, true
	}
	return cmd, nil
}

const manualPrompt = "Go to corner (c), waypoint (w), corner joints (j), or exit (e) manual mode?"

var indexPrompts = map[CommandKind]string{
	CommandCorner:   "Input the index of the corner.",
	CommandWaypoint: "Input the index of the waypoint.",
	CommandJoints:   "Input the index of the corner.",
}

// Spin runs the keyboard loop until the operator interrupts it or ctx is
// cancelled. Pressing "m" enters manual mode; the loop resumes polling once the
// operator exits it. The arm is stopped on the way out.
func (a *Arbiter) Spin(ctx context.Context, console Console) error {
	a.stop(ctx)
	a.logger.Info(`Running in server mode. Press "m" to enter manual mode, Ctrl+C to shut down the server`)

	for {
		key, err := console.PollKey(ctx, KeyPollInterval)
		if err != nil || ctx.Err() != nil {
			a.Shutdown(ctx)
			return ignoreInterrupt(ctx, err, "read key")
		}

		switch key {
		case KeyManual:
			if err := a.EnterManual(ctx); err != nil {
				a.Shutdown(ctx)
				return err
			}
			if err := a.runManual(ctx, console); err != nil {
				a.Shutdown(ctx)
				return ignoreInterrupt(ctx, err, "manual control")
			}
		case KeyInterrupt:
			a.Shutdown(ctx)
			return nil
		}
	}
}

// ignoreInterrupt drops errors that only mean the operator or the process
// asked to stop.
func ignoreInterrupt(ctx context.Context, err error, msg string) error {
	if err == nil || ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, ErrInterrupted) {
		return nil
	}
	return errors.Wrap(err, msg)
}

// runManual serves operator commands until "e". Invalid commands are
// reported and the operator is asked again.
func (a *Arbiter) runManual(ctx context.Context, console Console) error {
	for {
		line, err := console.ReadLine(ctx, manualPrompt)
		if err != nil {
			return err
		}
		cmd, err := ParseCommand(line)
		if err != nil {
			a.logger.Warnw("Command not recognized", "command", strings.TrimSpace(line))
			continue
		}

		if cmd.Kind == CommandExit {
			return a.ExitManual()
		}
		if !cmd.HasIndex {
			raw, err := console.ReadLine(ctx, indexPrompts[cmd.Kind])
			if err != nil {
				return err
			}
			idx, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil {
				a.logger.Warnw("Index is not a number", "input", strings.TrimSpace(raw))
				continue
			}
			cmd.Index = idx
		}

		a.runCommand(ctx, cmd)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (a *Arbiter) runCommand(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CommandCorner:
		c, ok := a.waypoints.Corner(cmd.Index)
		if !ok {
			a.logger.Warnw("Corner index out of bounds", "corner", cmd.Index, "count", a.waypoints.NumCorners())
			return
		}
		a.logger.Infow("Go to corner", "corner", cmd.Index, "count", a.waypoints.NumCorners())
		a.manualMove(ctx, cmd.Index, c.Pose)
	case CommandWaypoint:
		pose, ok := a.waypoints.At(cmd.Index)
		if !ok {
			a.logger.Warnw("Waypoint index out of bounds", "waypoint", cmd.Index, "count", a.waypoints.Len())
			return
		}
		a.logger.Infow("Go to waypoint", "waypoint", cmd.Index, "count", a.waypoints.Len())
		a.manualMove(ctx, cmd.Index, pose)
	case CommandJoints:
		a.manualJoints(ctx, cmd.Index)
	}
}

// manualMove uses the same executor path as GoTo.
func (a *Arbiter) manualMove(ctx context.Context, idx int, pose geom.Pose) Result {
	a.motionMu.Lock()
	defer a.motionMu.Unlock()

	res := rejected(idx)
	ctx, release, m := a.begin(ctx, Manual)
	if release == nil {
		res.Reason = rejectReason(m)
		return res
	}
	defer release()

	out, err := a.mover.MoveTo(ctx, pose)
	return a.finish(res, out, err)
}

func (a *Arbiter) manualJoints(ctx context.Context, idx int) {
	c, ok := a.waypoints.Corner(idx)
	switch {
	case !ok:
		a.logger.Warnw("Corner index out of bounds", "corner", idx, "count", a.waypoints.NumCorners())
		return
	case a.joints == nil:
		a.logger.Warn("Joint control is not configured")
		return
	case len(c.Joints) == 0:
		a.logger.Warnw("No joint configuration recorded for corner", "corner", idx)
		return
	}

	a.motionMu.Lock()
	defer a.motionMu.Unlock()
	ctx, release, _ := a.begin(ctx, Manual)
	if release == nil {
		return
	}
	defer release()

	a.logger.Infow("Go to corner joint configuration", "corner", idx, "joints", c.Joints)
	if err := a.joints.MoveJoints(ctx, c.Joints); err != nil {
		a.logger.Warnw("Joint move failed", "corner", idx, "error", err)
	}
}
