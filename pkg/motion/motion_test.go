package motion_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/num/quat"

	"github.com/gwillem/armgoto/pkg/geom"
	"github.com/gwillem/armgoto/pkg/motion"
	"github.com/gwillem/armgoto/pkg/sim"
)

var tilted = quat.Number{Real: 0.5, Imag: 0.5, Jmag: 0.5, Kmag: 0.5}

func fastConfig() motion.Config {
	cfg := motion.DefaultConfig()
	cfg.Attempts = 3
	cfg.Interval = time.Millisecond
	return cfg
}

func TestMoveTo_Arrives(t *testing.T) {
	arm := sim.NewArm(sim.WithPose(geom.NewPose(r3.Vector{}, tilted)))
	exec := motion.NewExecutor(arm, fastConfig(), zaptest.NewLogger(t).Sugar())

	target := geom.NewPose(r3.Vector{X: 0.2, Y: 0.1}, geom.Identity)
	out, err := exec.MoveTo(context.Background(), target)
	require.NoError(t, err)

	assert.True(t, out.Executed)
	assert.True(t, out.Arrived)
	assert.False(t, out.Interrupted)
	assert.True(t, out.Succeeded())
	assert.InDelta(t, 0, out.Distance, 1e-12)
	assert.Equal(t, []string{"CurrentPose", "ComputeCartesianPath", "Execute", "Stop", "CurrentPose"}, arm.Ops())

	// Position-only commanding: the arm keeps its orientation.
	assert.Equal(t, target.Position(), arm.Pose().Position())
	assert.True(t, geom.SameOrientation(tilted, arm.Pose().Orientation(), 1e-12))
	assert.True(t, geom.SameOrientation(tilted, out.Target.Orientation(), 1e-12))
}

func TestMoveTo_PlansSingleSegmentWithCurrentOrientation(t *testing.T) {
	arm := sim.NewArm(sim.WithPose(geom.NewPose(r3.Vector{Z: 1}, tilted)))
	exec := motion.NewExecutor(arm, fastConfig(), zaptest.NewLogger(t).Sugar())

	_, err := exec.MoveTo(context.Background(), geom.NewPosition(1, 2, 3))
	require.NoError(t, err)

	calls := arm.Calls()
	require.GreaterOrEqual(t, len(calls), 2)
	planned := calls[1]
	assert.Equal(t, "ComputeCartesianPath", planned.Op)
	assert.Equal(t, r3.Vector{X: 1, Y: 2, Z: 3}, planned.Pose.Position())
	assert.True(t, geom.SameOrientation(tilted, planned.Pose.Orientation(), 1e-12))
}

func TestMoveTo_NotReachedIsAdvisory(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	arm := sim.NewArm(sim.WithOffset(r3.Vector{X: 0.5}))
	exec := motion.NewExecutor(arm, fastConfig(), zap.New(core).Sugar())

	out, err := exec.MoveTo(context.Background(), geom.NewPosition(1, 0, 0))
	require.NoError(t, err)

	assert.True(t, out.Executed)
	assert.False(t, out.Arrived)
	assert.True(t, out.Succeeded(), "execution result is authoritative")
	assert.InDelta(t, 0.5, out.Distance, 1e-12)
	assert.Equal(t, 1, logs.FilterMessage("Target not reached").Len())

	poseReads := 0
	for _, op := range arm.Ops() {
		if op == "CurrentPose" {
			poseReads++
		}
	}
	assert.Equal(t, 1+3, poseReads)
}

func TestMoveTo_RequireArrival(t *testing.T) {
	cfg := fastConfig()
	cfg.RequireArrival = true
	arm := sim.NewArm(sim.WithOffset(r3.Vector{Z: 0.3}))
	exec := motion.NewExecutor(arm, cfg, zaptest.NewLogger(t).Sugar())

	out, err := exec.MoveTo(context.Background(), geom.NewPosition(0, 1, 0))
	require.NoError(t, err)
	assert.True(t, out.Executed)
	assert.False(t, out.Succeeded())
}

func TestMoveTo_WithinTolerance(t *testing.T) {
	arm := sim.NewArm(sim.WithOffset(r3.Vector{X: 0.05}))
	exec := motion.NewExecutor(arm, fastConfig(), zaptest.NewLogger(t).Sugar())

	out, err := exec.MoveTo(context.Background(), geom.NewPosition(1, 0, 0))
	require.NoError(t, err)
	assert.True(t, out.Arrived)
}

func TestMoveTo_ExecutionFailed(t *testing.T) {
	arm := sim.NewArm(sim.WithExecuteResult(false))
	exec := motion.NewExecutor(arm, fastConfig(), zaptest.NewLogger(t).Sugar())

	out, err := exec.MoveTo(context.Background(), geom.NewPosition(1, 0, 0))
	require.NoError(t, err)
	assert.False(t, out.Executed)
	assert.False(t, out.Succeeded())
}

func TestMoveTo_CollaboratorErrors(t *testing.T) {
	for _, op := range []string{"CurrentPose", "ComputeCartesianPath"} {
		t.Run(op, func(t *testing.T) {
			arm := sim.NewArm()
			boom := errors.New("boom")
			arm.Fail(op, boom)
			exec := motion.NewExecutor(arm, fastConfig(), zaptest.NewLogger(t).Sugar())

			_, err := exec.MoveTo(context.Background(), geom.NewPosition(1, 0, 0))
			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, op, arm.Ops()[len(arm.Ops())-1], "nothing runs after the failing call")
		})
	}
}

func TestMoveTo_ExecuteErrorStillStops(t *testing.T) {
	arm := sim.NewArm()
	boom := errors.New("connection reset")
	arm.Fail("Execute", boom)
	exec := motion.NewExecutor(arm, fastConfig(), zaptest.NewLogger(t).Sugar())

	_, err := exec.MoveTo(context.Background(), geom.NewPosition(1, 0, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"CurrentPose", "ComputeCartesianPath", "Execute", "Stop"}, arm.Ops())
}

func TestMoveTo_InterruptDuringArrivalCheck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := fastConfig()
	cfg.Attempts = 10
	cfg.Interval = time.Hour
	arm := sim.NewArm(sim.WithOffset(r3.Vector{X: 1}))
	exec := motion.NewExecutor(arm, cfg, zaptest.NewLogger(t).Sugar())
	exec.Observe(func(motion.Sample) { cancel() })

	out, err := exec.MoveTo(ctx, geom.NewPosition(1, 0, 0))
	require.NoError(t, err)
	assert.True(t, out.Interrupted)
	assert.True(t, out.Executed)
	assert.False(t, out.Arrived)
}

func TestMoveTo_ObserverSeesSamples(t *testing.T) {
	arm := sim.NewArm(sim.WithOffset(r3.Vector{Y: 0.2}))
	exec := motion.NewExecutor(arm, fastConfig(), zaptest.NewLogger(t).Sugar())

	var samples []motion.Sample
	exec.Observe(func(s motion.Sample) { samples = append(samples, s) })

	_, err := exec.MoveTo(context.Background(), geom.NewPosition(0, 0, 0))
	require.NoError(t, err)
	require.Len(t, samples, 3)
	for i, s := range samples {
		assert.Equal(t, i+1, s.Attempt)
		assert.InDelta(t, 0.2, s.Distance, 1e-12)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := motion.NewExecutor(sim.NewArm(), motion.Config{}, zap.NewNop().Sugar()).Config()
	assert.Equal(t, 0.01, cfg.Step)
	assert.Equal(t, 0.0, cfg.JumpThreshold)
	assert.Equal(t, 0.1, cfg.Tolerance)
	assert.Equal(t, 10, cfg.Attempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Interval)
}
