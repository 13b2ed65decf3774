// Package scene keeps the collision world in sync with the objects carried by
// the arm.
package scene

import (
	"context"
	"slices"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/zap"

	"github.com/gwillem/armgoto/pkg/geom"
	"github.com/gwillem/armgoto/pkg/poll"
)

// World is the collision-world collaborator.
type World interface {
	AddBox(ctx context.Context, name string, pose geom.Pose, size r3.Vector) error
	AttachBox(ctx context.Context, link, name string, touchLinks []string) error
	RemoveAttachedObject(ctx context.Context, link, name string) error
	RemoveWorldObject(ctx context.Context, name string) error
	AttachedObjects(ctx context.Context, names []string) ([]string, error)
	KnownObjectNames(ctx context.Context) ([]string, error)
}

// State is what the world reports about one object. Known and Attached are
// mutually exclusive once the world has converged.
type State struct {
	Known    bool
	Attached bool
}

// Target states for the four object operations.
var (
	Added    = State{Known: true}
	Attached = State{Attached: true}
	Detached = State{Known: true}
	Removed  = State{}
)

// Default polling settings.
const (
	DefaultInterval = 100 * time.Millisecond
	DefaultTimeout  = 4 * time.Second
)

// Synchronizer waits for the collision world to reach a given object state.
type Synchronizer struct {
	world    World
	interval time.Duration
	timeout  time.Duration
	logger   *zap.SugaredLogger
}

// NewSynchronizer creates a synchronizer. Non-positive durations take the defaults.
func NewSynchronizer(world World, interval, timeout time.Duration, logger *zap.SugaredLogger) *Synchronizer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Synchronizer{world: world, interval: interval, timeout: timeout, logger: logger}
}

// Observe reads the current state of name from the world.
func (s *Synchronizer) Observe(ctx context.Context, name string) (State, error) {
	attached, err := s.world.AttachedObjects(ctx, []string{name})
	if err != nil {
		return State{}, err
	}
	known, err := s.world.KnownObjectNames(ctx)
	if err != nil {
		return State{}, err
	}
	return State{
		Known:    slices.Contains(known, name),
		Attached: slices.Contains(attached, name),
	}, nil
}

// WaitFor polls the world until name is in the want state or the timeout
// elapses. It reports whether the state was reached and never fails otherwise.
func (s *Synchronizer) WaitFor(ctx context.Context, name string, want State) bool {
	var last State
	res := poll.Until(ctx, poll.Within(s.timeout, s.interval), func(ctx context.Context, attempt int) bool {
		got, err := s.Observe(ctx, name)
		if err != nil {
			s.logger.Debugw("Scene query failed", "object", name, "attempt", attempt, "error", err)
			return false
		}
		last = got
		return got == want
	})
	if !res.Met && !res.Interrupted {
		s.logger.Warnw("Scene did not reach expected state", "object", name,
			"want_known", want.Known, "want_attached", want.Attached,
			"known", last.Known, "attached", last.Attached, "attempts", res.Attempts)
	}
	return res.Met
}
