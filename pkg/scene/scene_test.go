package scene_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"

	"github.com/gwillem/armgoto/pkg/geom"
	"github.com/gwillem/armgoto/pkg/scene"
	"github.com/gwillem/armgoto/pkg/sim"
)

var _ scene.World = (*sim.World)(nil)

const (
	interval = time.Millisecond
	timeout  = 40 * time.Millisecond
)

func newSync(t *testing.T, world scene.World) *scene.Synchronizer {
	return scene.NewSynchronizer(world, interval, timeout, zaptest.NewLogger(t).Sugar())
}

func TestWaitFor_MetOnFirstPoll(t *testing.T) {
	world := sim.NewWorld()
	ctx := context.Background()
	require.NoError(t, world.AddBox(ctx, "tablet", geom.NewPosition(0, 0, 0), r3.Vector{X: 1, Y: 1, Z: 1}))

	assert.True(t, newSync(t, world).WaitFor(ctx, "tablet", scene.Added))
	assert.Equal(t, 1, world.Polls())
}

func TestWaitFor_WaitsForLaggingWorld(t *testing.T) {
	world := sim.NewWorld(sim.WithLag(3))
	ctx := context.Background()
	require.NoError(t, world.AddBox(ctx, "tablet", geom.NewPosition(0, 0, 0), r3.Vector{X: 1}))

	assert.True(t, newSync(t, world).WaitFor(ctx, "tablet", scene.Added))
	assert.Equal(t, 4, world.Polls())
}

func TestWaitFor_TimesOutAfterTimeoutOverIntervalPolls(t *testing.T) {
	world := sim.NewWorld()
	world.Stall()
	ctx := context.Background()
	require.NoError(t, world.AddBox(ctx, "tablet", geom.NewPosition(0, 0, 0), r3.Vector{X: 1}))

	assert.False(t, newSync(t, world).WaitFor(ctx, "tablet", scene.Added))
	assert.Equal(t, int(timeout/interval), world.Polls())
}

func TestWaitFor_InterruptedReturnsFalse(t *testing.T) {
	world := sim.NewWorld()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, newSync(t, world).WaitFor(ctx, "tablet", scene.Removed))
}

func TestWaitFor_AllFourTransitions(t *testing.T) {
	world := sim.NewWorld(sim.WithLag(1))
	arm := sim.NewArm()
	ctx := context.Background()
	mgr := scene.NewManager(world, arm, newSync(t, world), "tool0", zaptest.NewLogger(t).Sugar())
	box := scene.Box{Name: "tablet", Size: r3.Vector{X: 0.3, Y: 0.25, Z: 0.02}, Relative: true, Offset: r3.Vector{Y: -0.08}}

	ok, err := mgr.AddBox(ctx, box)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mgr.AttachBox(ctx, box)
	require.NoError(t, err)
	assert.True(t, ok)

	sync := newSync(t, world)
	state, err := sync.Observe(ctx, "tablet")
	require.NoError(t, err)
	assert.Equal(t, scene.State{Attached: true}, state, "attaching removes the object from the known set")

	ok, err = mgr.DetachBox(ctx, "tablet")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mgr.RemoveBox(ctx, "tablet")
	require.NoError(t, err)
	assert.True(t, ok)

	state, err = sync.Observe(ctx, "tablet")
	require.NoError(t, err)
	assert.Equal(t, scene.State{}, state)
}

func TestManager_DetachUnattachedFails(t *testing.T) {
	world := sim.NewWorld()
	mgr := scene.NewManager(world, sim.NewArm(), newSync(t, world), "tool0", zaptest.NewLogger(t).Sugar())

	_, err := mgr.DetachBox(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestManager_Prepare(t *testing.T) {
	world := sim.NewWorld()
	arm := sim.NewArm(sim.WithPose(geom.NewPosition(0.4, 0.2, 0.6)))
	ctx := context.Background()
	mgr := scene.NewManager(world, arm, newSync(t, world), "tool0", zaptest.NewLogger(t).Sugar())

	require.NoError(t, mgr.Prepare(ctx, scene.DefaultBoxes()))

	attached, err := world.AttachedObjects(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"drive", "tablet"}, attached)

	known, err := world.KnownObjectNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"table"}, known)

	assert.Equal(t, []string{"wrist_1_link", "wrist_2_link", "wrist_3_link"}, world.TouchLinks("tablet"))
	assert.Empty(t, world.TouchLinks("drive"))
}

func TestManager_PrepareCollectsTimeouts(t *testing.T) {
	world := sim.NewWorld()
	world.Stall()
	mgr := scene.NewManager(world, sim.NewArm(), newSync(t, world), "tool0", zaptest.NewLogger(t).Sugar())

	err := mgr.Prepare(context.Background(), scene.DefaultBoxes())
	require.Error(t, err)
	assert.ErrorIs(t, err, scene.ErrNotSynced)
	// Two attachable boxes fail twice each, the table once.
	assert.Len(t, multierr.Errors(err), 5)
}

func TestManager_PrepareContinuesAfterPoseError(t *testing.T) {
	world := sim.NewWorld()
	arm := sim.NewArm()
	arm.Fail("CurrentPose", assert.AnError)
	mgr := scene.NewManager(world, arm, newSync(t, world), "tool0", zaptest.NewLogger(t).Sugar())

	err := mgr.Prepare(context.Background(), scene.DefaultBoxes())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)

	known, _ := world.KnownObjectNames(context.Background())
	assert.Equal(t, []string{"table"}, known)
}
