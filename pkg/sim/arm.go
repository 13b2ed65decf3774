// Package sim provides in-memory stand-ins for the motion planner and the
// collision world, for dry runs without hardware and for tests.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/gwillem/armgoto/pkg/geom"
	"github.com/gwillem/armgoto/pkg/motion"
)

// Call is one recorded collaborator call.
type Call struct {
	Op   string
	Pose geom.Pose
}

// Arm is a simulated manipulator. Executing a plan moves the end effector to
// the last pose of the plan, scaled by Reach and shifted by Offset.
type Arm struct {
	mu       sync.Mutex
	pose     geom.Pose
	joints   []float64
	reach    float64
	offset   r3.Vector
	executed bool
	failures map[string]error
	plans    int
	calls    []Call
}

// ArmOption configures an Arm.
type ArmOption func(*Arm)

// WithPose sets the starting pose.
func WithPose(p geom.Pose) ArmOption {
	return func(a *Arm) { a.pose = p }
}

// WithReach makes the arm only travel the given fraction of each motion.
func WithReach(f float64) ArmOption {
	return func(a *Arm) { a.reach = f }
}

// WithOffset leaves the arm offset from every target after execution.
func WithOffset(v r3.Vector) ArmOption {
	return func(a *Arm) { a.offset = v }
}

// WithExecuteResult sets the success flag Execute reports.
func WithExecuteResult(ok bool) ArmOption {
	return func(a *Arm) { a.executed = ok }
}

// NewArm creates a simulated arm at the origin with identity orientation.
func NewArm(opts ...ArmOption) *Arm {
	a := &Arm{
		pose:     geom.NewPosition(0, 0, 0),
		reach:    1,
		executed: true,
		failures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ motion.Planner = (*Arm)(nil)

// Fail makes every subsequent call of op return err. A nil err clears it.
func (a *Arm) Fail(op string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.failures, op)
		return
	}
	a.failures[op] = err
}

func (a *Arm) record(op string, p geom.Pose) error {
	a.calls = append(a.calls, Call{Op: op, Pose: p})
	return a.failures[op]
}

// Calls returns the recorded calls in order.
func (a *Arm) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

// Ops returns the names of the recorded calls in order.
func (a *Arm) Ops() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ops := make([]string, len(a.calls))
	for i, c := range a.calls {
		ops[i] = c.Op
	}
	return ops
}

// Reset forgets the recorded calls.
func (a *Arm) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = nil
}

// Pose returns the simulated pose without recording a call.
func (a *Arm) Pose() geom.Pose {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pose
}

// CurrentPose implements motion.Planner.
func (a *Arm) CurrentPose(_ context.Context) (geom.Pose, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.record("CurrentPose", geom.Pose{}); err != nil {
		return geom.Pose{}, err
	}
	return a.pose, nil
}

// ComputeCartesianPath implements motion.Planner.
func (a *Arm) ComputeCartesianPath(_ context.Context, waypoints []geom.Pose, _, _ float64) (motion.Plan, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var last geom.Pose
	if len(waypoints) > 0 {
		last = waypoints[len(waypoints)-1]
	}
	if err := a.record("ComputeCartesianPath", last); err != nil {
		return motion.Plan{}, err
	}
	a.plans++
	return motion.Plan{
		ID:        fmt.Sprintf("sim-%d", a.plans),
		Waypoints: append([]geom.Pose(nil), waypoints...),
		Fraction:  1,
	}, nil
}

// Execute implements motion.Planner.
func (a *Arm) Execute(_ context.Context, plan motion.Plan, _ bool) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(plan.Waypoints) == 0 {
		return false, a.record("Execute", geom.Pose{})
	}
	target := plan.Waypoints[len(plan.Waypoints)-1]
	if err := a.record("Execute", target); err != nil {
		return false, err
	}

	from := a.pose.Position()
	travel := target.Position().Sub(from).Mul(a.reach)
	a.pose = target.WithPosition(from.Add(travel).Add(a.offset))
	return a.executed, nil
}

// Stop implements motion.Planner.
func (a *Arm) Stop(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record("Stop", geom.Pose{})
}

// Joints returns the last commanded joint configuration.
func (a *Arm) Joints(_ context.Context) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.record("Joints", geom.Pose{}); err != nil {
		return nil, err
	}
	return append([]float64(nil), a.joints...), nil
}

// MoveJoints records a joint-space move.
func (a *Arm) MoveJoints(_ context.Context, joints []float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.record("MoveJoints", geom.Pose{}); err != nil {
		return err
	}
	a.joints = append([]float64(nil), joints...)
	return nil
}
