package scene

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gwillem/armgoto/pkg/geom"
)

// ErrNotSynced is returned when the world did not reach the expected state in time.
var ErrNotSynced = errors.New("collision world did not converge")

// PoseReader reads the current end-effector pose.
type PoseReader interface {
	CurrentPose(ctx context.Context) (geom.Pose, error)
}

// Box is a rigid box placed in the collision world.
type Box struct {
	Name string    `json:"name"`
	Size r3.Vector `json:"size"`
	// Relative places the box at the current end-effector pose shifted by
	// Offset. Otherwise Pose is used as is.
	Relative bool      `json:"relative"`
	Offset   r3.Vector `json:"offset"`
	Pose     geom.Pose `json:"pose"`
	// Attach attaches the box to the end effector once it is in the world.
	Attach     bool     `json:"attach"`
	TouchLinks []string `json:"touch_links,omitempty"`
}

// DefaultBoxes is the tablet and drive carried by the arm plus the table it
// works above.
func DefaultBoxes() []Box {
	return []Box{
		{
			Name:       "tablet",
			Size:       r3.Vector{X: 0.3, Y: 0.25, Z: 0.02},
			Relative:   true,
			Offset:     r3.Vector{Y: -0.08},
			Attach:     true,
			TouchLinks: []string{"wrist_1_link", "wrist_2_link", "wrist_3_link"},
		},
		{
			Name:     "drive",
			Size:     r3.Vector{X: 0.09, Y: 0.02, Z: 0.02},
			Relative: true,
			Offset:   r3.Vector{Y: -0.055, Z: -0.08},
			Attach:   true,
		},
		{
			Name: "table",
			Size: r3.Vector{X: 2, Y: 2, Z: 2},
			Pose: geom.NewPosition(0, 0.90, -1.01),
		},
	}
}

// Manager adds, attaches, detaches and removes boxes, confirming each change
// with the synchronizer.
type Manager struct {
	world  World
	poses  PoseReader
	sync   *Synchronizer
	link   string
	logger *zap.SugaredLogger
}

// NewManager creates a manager attaching boxes to the given end-effector link.
func NewManager(world World, poses PoseReader, sync *Synchronizer, link string, logger *zap.SugaredLogger) *Manager {
	return &Manager{world: world, poses: poses, sync: sync, link: link, logger: logger}
}

// AddBox places box in the world and waits until it is known.
func (m *Manager) AddBox(ctx context.Context, box Box) (bool, error) {
	pose := box.Pose
	if box.Relative {
		current, err := m.poses.CurrentPose(ctx)
		if err != nil {
			return false, errors.Wrap(err, "read current pose")
		}
		pose = current.Translate(box.Offset)
	}
	if err := m.world.AddBox(ctx, box.Name, pose, box.Size); err != nil {
		return false, errors.Wrapf(err, "add box %q", box.Name)
	}
	return m.sync.WaitFor(ctx, box.Name, Added), nil
}

// AttachBox attaches box to the end effector and waits until it is attached.
func (m *Manager) AttachBox(ctx context.Context, box Box) (bool, error) {
	if err := m.world.AttachBox(ctx, m.link, box.Name, box.TouchLinks); err != nil {
		return false, errors.Wrapf(err, "attach box %q", box.Name)
	}
	return m.sync.WaitFor(ctx, box.Name, Attached), nil
}

// DetachBox releases name from the end effector and waits until it is back in the world.
func (m *Manager) DetachBox(ctx context.Context, name string) (bool, error) {
	if err := m.world.RemoveAttachedObject(ctx, m.link, name); err != nil {
		return false, errors.Wrapf(err, "detach box %q", name)
	}
	return m.sync.WaitFor(ctx, name, Detached), nil
}

// RemoveBox removes name from the world and waits until it is gone.
func (m *Manager) RemoveBox(ctx context.Context, name string) (bool, error) {
	if err := m.world.RemoveWorldObject(ctx, name); err != nil {
		return false, errors.Wrapf(err, "remove box %q", name)
	}
	return m.sync.WaitFor(ctx, name, Removed), nil
}

// Prepare adds every box and attaches the attachable ones. Collaborator
// failures and sync timeouts are collected; a failing box does not stop the
// others from being set up.
func (m *Manager) Prepare(ctx context.Context, boxes []Box) error {
	var errs error
	for _, box := range boxes {
		ok, err := m.AddBox(ctx, box)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !ok {
			errs = multierr.Append(errs, errors.Wrapf(ErrNotSynced, "add %q", box.Name))
		}
		if !box.Attach {
			m.logger.Infow("Box added", "box", box.Name, "synced", ok)
			continue
		}

		ok, err = m.AttachBox(ctx, box)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !ok {
			errs = multierr.Append(errs, errors.Wrapf(ErrNotSynced, "attach %q", box.Name))
		}
		m.logger.Infow("Box attached", "box", box.Name, "link", m.link, "synced", ok)
	}
	return errs
}
