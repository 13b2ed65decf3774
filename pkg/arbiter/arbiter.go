// Package arbiter decides who controls the arm: remote GoTo requests in
// automatic mode, or the operator in manual mode. At most one motion runs at
// any time.
package arbiter

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gwillem/armgoto/pkg/geom"
	"github.com/gwillem/armgoto/pkg/motion"
	"github.com/gwillem/armgoto/pkg/waypoint"
)

// Mover moves the end effector to a pose and halts motion.
type Mover interface {
	MoveTo(ctx context.Context, target geom.Pose) (motion.Outcome, error)
	Stop(ctx context.Context) error
}

// JointMover drives the arm to a joint configuration.
type JointMover interface {
	MoveJoints(ctx context.Context, joints []float64) error
}

// Status is the outcome of a GoTo request.
type Status string

const (
	Succeeded Status = "succeeded"
	Aborted   Status = "aborted"
)

// Reason explains an aborted request.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonOutOfRange      Reason = "out_of_range"
	ReasonManualActive    Reason = "manual_active"
	ReasonStopped         Reason = "stopped"
	ReasonMotionError     Reason = "motion_error"
	ReasonExecutionFailed Reason = "execution_failed"
)

// Result is returned for every GoTo request.
type Result struct {
	Index   int
	Status  Status
	Reason  Reason
	Outcome motion.Outcome
	Err     error
}

// Arbiter owns the control mode and serializes access to the arm.
type Arbiter struct {
	waypoints *waypoint.Set
	mover     Mover
	joints    JointMover
	logger    *zap.SugaredLogger

	// motionMu is held for the whole duration of every motion.
	motionMu sync.Mutex

	mu     sync.Mutex
	mode   Mode
	cancel context.CancelFunc
}

// New creates an arbiter in automatic mode. joints may be nil, in which case
// joint-space corner moves are unavailable.
func New(waypoints *waypoint.Set, mover Mover, joints JointMover, logger *zap.SugaredLogger) *Arbiter {
	return &Arbiter{
		waypoints: waypoints,
		mover:     mover,
		joints:    joints,
		logger:    logger,
		mode:      Automatic,
	}
}

// Mode returns the current mode.
func (a *Arbiter) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// WaypointCount returns the number of addressable waypoints in any mode.
func (a *Arbiter) WaypointCount() int {
	return a.waypoints.Len()
}

// Waypoints returns the waypoint list.
func (a *Arbiter) Waypoints() *waypoint.Set {
	return a.waypoints
}

// rejected is the result of a request that has not moved the arm (yet).
func rejected(idx int) Result {
	return Result{Index: idx, Status: Aborted, Outcome: motion.Outcome{Distance: -1}}
}

func rejectReason(m Mode) Reason {
	if m == Stopped {
		return ReasonStopped
	}
	return ReasonManualActive
}

// GoTo moves the arm to waypoint idx on behalf of a remote caller. Requests
// are rejected immediately, without touching the arm, when the arbiter is not
// in automatic mode or idx is out of range.
func (a *Arbiter) GoTo(ctx context.Context, idx int) Result {
	res := rejected(idx)

	if m := a.Mode(); m != Automatic {
		res.Reason = rejectReason(m)
		a.logger.Infow("Request received but automatic mode is not active, not responding",
			"waypoint", idx, "mode", m)
		return res
	}
	pose, ok := a.waypoints.At(idx)
	if !ok {
		res.Reason = ReasonOutOfRange
		a.logger.Infow("Waypoint index out of bounds", "waypoint", idx, "count", a.waypoints.Len())
		return res
	}

	a.motionMu.Lock()
	defer a.motionMu.Unlock()

	// The mode may have changed while waiting for the previous motion.
	ctx, release, m := a.begin(ctx, Automatic)
	if release == nil {
		res.Reason = rejectReason(m)
		return res
	}
	defer release()

	a.logger.Infow("Go to waypoint", "waypoint", idx, "count", a.waypoints.Len())
	out, err := a.mover.MoveTo(ctx, pose)
	return a.finish(res, out, err)
}

func (a *Arbiter) finish(res Result, out motion.Outcome, err error) Result {
	res.Outcome = out
	switch {
	case err != nil:
		res.Reason = ReasonMotionError
		res.Err = err
		a.logger.Warnw("Motion failed", "index", res.Index, "error", err)
	case !out.Succeeded():
		res.Reason = ReasonExecutionFailed
		a.logger.Warnw("Motion not completed", "index", res.Index,
			"executed", out.Executed, "arrived", out.Arrived)
	default:
		res.Status = Succeeded
	}
	return res
}

// begin registers a cancellable motion if the arbiter is in mode want. It
// returns a nil release function and the current mode otherwise.
func (a *Arbiter) begin(ctx context.Context, want Mode) (context.Context, func(), Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != want {
		return ctx, nil, a.mode
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	return ctx, func() {
		a.mu.Lock()
		a.cancel = nil
		a.mu.Unlock()
		cancel()
	}, want
}

// transition switches mode and cancels the in-flight motion, if any.
func (a *Arbiter) transition(to Mode) (Mode, error) {
	a.mu.Lock()
	from := a.mode
	if !CanTransition(from, to) {
		a.mu.Unlock()
		return from, errors.Wrapf(ErrInvalidTransition, "%s to %s", from, to)
	}
	a.mode = to
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil && from != to {
		cancel()
	}
	if from != to {
		a.logger.Infow("Mode changed", "from", from, "to", to)
	}
	return from, nil
}

// stop halts the arm. It does not wait for the motion lock so it can
// interrupt a running motion.
func (a *Arbiter) stop(ctx context.Context) {
	if err := a.mover.Stop(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warnw("Failed to stop the robot", "error", err)
	}
}

// EnterManual halts any motion and hands control to the operator.
func (a *Arbiter) EnterManual(ctx context.Context) error {
	if _, err := a.transition(Manual); err != nil {
		return err
	}
	a.stop(ctx)
	a.logger.Info("Stopping the robot and entering manual control")
	return nil
}

// ExitManual returns control to remote requests.
func (a *Arbiter) ExitManual() error {
	from, err := a.transition(Automatic)
	if err != nil {
		return err
	}
	if from == Manual {
		a.logger.Info(`Exit manual mode and resuming server mode. Press "m" to enter manual mode again`)
	}
	return nil
}

// Shutdown halts the arm and moves to the terminal Stopped mode.
func (a *Arbiter) Shutdown(ctx context.Context) {
	if _, err := a.transition(Stopped); err != nil {
		a.logger.Warnw("Shutdown", "error", err)
	}
	a.stop(ctx)
}
