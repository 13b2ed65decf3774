// Package motion moves the end effector to a target position through the
// motion-planning collaborator and checks that the arm really got there.
package motion

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gwillem/armgoto/pkg/geom"
	"github.com/gwillem/armgoto/pkg/poll"
)

// Plan is a trajectory computed by the planner. It is opaque to the executor.
type Plan struct {
	ID        string      `json:"plan_id,omitempty"`
	Waypoints []geom.Pose `json:"waypoints,omitempty"`
	// Fraction is the share of the requested path the planner could follow.
	Fraction float64 `json:"fraction"`
}

// Planner is the motion-planning collaborator.
type Planner interface {
	CurrentPose(ctx context.Context) (geom.Pose, error)
	ComputeCartesianPath(ctx context.Context, waypoints []geom.Pose, step, jumpThreshold float64) (Plan, error)
	Execute(ctx context.Context, plan Plan, wait bool) (bool, error)
	Stop(ctx context.Context) error
}

// Config tunes the executor. Zero fields take the defaults.
type Config struct {
	// Step is the Cartesian interpolation resolution in metres.
	Step float64
	// JumpThreshold bounds joint-space jumps between path points; 0 disables the check.
	JumpThreshold float64
	// Tolerance is the arrival distance in metres.
	Tolerance float64
	// Attempts and Interval bound the arrival check.
	Attempts int
	Interval time.Duration
	// RequireArrival makes Succeeded also require a confirmed arrival.
	RequireArrival bool
}

// DefaultConfig matches the behaviour operators are used to.
func DefaultConfig() Config {
	return Config{
		Step:      0.01,
		Tolerance: 0.1,
		Attempts:  10,
		Interval:  500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Step <= 0 {
		c.Step = d.Step
	}
	if c.Tolerance <= 0 {
		c.Tolerance = d.Tolerance
	}
	if c.Attempts <= 0 {
		c.Attempts = d.Attempts
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	return c
}

// Outcome reports both the execution result and the arrival check.
type Outcome struct {
	Target geom.Pose
	// Executed is the planner's report for the trajectory execution.
	Executed bool
	// Arrived is true when the measured position came within tolerance.
	Arrived bool
	// Interrupted is true when the arrival check was cancelled.
	Interrupted bool
	// Distance is the last measured distance to the target, or -1 if never measured.
	Distance float64
	Fraction float64

	requireArrival bool
}

// Succeeded is the request outcome. By default the execution report is
// authoritative and the arrival check is advisory only.
func (o Outcome) Succeeded() bool {
	if o.requireArrival {
		return o.Executed && o.Arrived
	}
	return o.Executed
}

// Sample is one arrival-check measurement.
type Sample struct {
	Attempt  int
	Distance float64
}

// Executor issues single point-to-point motions.
type Executor struct {
	planner  Planner
	cfg      Config
	logger   *zap.SugaredLogger
	observer func(Sample)
}

// NewExecutor creates an executor for planner.
func NewExecutor(planner Planner, cfg Config, logger *zap.SugaredLogger) *Executor {
	return &Executor{
		planner: planner,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Observe registers fn to receive every arrival-check sample. It must be
// called before the executor is used.
func (e *Executor) Observe(fn func(Sample)) {
	e.observer = fn
}

// Config returns the effective configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// Stop halts any residual motion.
func (e *Executor) Stop(ctx context.Context) error {
	return e.planner.Stop(ctx)
}

// MoveTo moves the end effector to the position of target. The orientation of
// target is ignored: the arm keeps its current orientation.
//
// Errors are only returned when the planner cannot be queried, cannot plan, or
// fails to execute. An arrival check that runs out of attempts is logged and
// reflected in Outcome.Arrived.
func (e *Executor) MoveTo(ctx context.Context, target geom.Pose) (Outcome, error) {
	out := Outcome{Distance: -1, requireArrival: e.cfg.RequireArrival}

	current, err := e.planner.CurrentPose(ctx)
	if err != nil {
		return out, errors.Wrap(err, "read current pose")
	}
	goal := current.WithPosition(target.Position())
	out.Target = goal

	plan, err := e.planner.ComputeCartesianPath(ctx, []geom.Pose{goal}, e.cfg.Step, e.cfg.JumpThreshold)
	if err != nil {
		return out, errors.Wrap(err, "compute cartesian path")
	}
	out.Fraction = plan.Fraction
	if plan.Fraction < 1 {
		e.logger.Warnw("Cartesian path only partially planned", "fraction", plan.Fraction)
	}

	out.Executed, err = e.planner.Execute(ctx, plan, true)
	e.haltResidual(ctx)
	if err != nil {
		return out, errors.Wrap(err, "execute plan")
	}

	res := poll.Until(ctx, poll.Budget{Attempts: e.cfg.Attempts, Interval: e.cfg.Interval},
		func(ctx context.Context, attempt int) bool {
			pose, err := e.planner.CurrentPose(ctx)
			if err != nil {
				e.logger.Debugw("Arrival check could not read pose", "attempt", attempt, "error", err)
				return false
			}
			out.Distance = geom.Distance(pose, goal)
			e.logger.Debugw("Distance to target pose", "attempt", attempt, "distance", out.Distance)
			if e.observer != nil {
				e.observer(Sample{Attempt: attempt, Distance: out.Distance})
			}
			return out.Distance < e.cfg.Tolerance
		})
	out.Arrived = res.Met
	out.Interrupted = res.Interrupted

	switch {
	case res.Interrupted:
		e.logger.Infow("Arrival check interrupted", "attempts", res.Attempts)
	case !res.Met:
		e.logger.Warnw("Target not reached", "target", goal.String(), "distance", out.Distance,
			"attempts", res.Attempts)
	}
	return out, nil
}

// haltResidual stops residual motion, even when ctx is already cancelled.
func (e *Executor) haltResidual(ctx context.Context) {
	if err := e.planner.Stop(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warnw("Failed to stop residual motion", "error", err)
	}
}
