package group

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pootle/pisteppers/internal/dma"
	"github.com/pootle/pisteppers/internal/hal"
	"github.com/pootle/pisteppers/internal/interval"
	"github.com/pootle/pisteppers/internal/metrics"
	"github.com/pootle/pisteppers/internal/motor"
)

func newTestMotor(t *testing.T, name string, pins []int) *motor.Motor {
	t.Helper()
	gpio := hal.NewMockHAL().GPIO()
	driver, err := motor.NewDirectDriver(gpio, motor.DirectDriverConfig{Pins: pins})
	require.NoError(t, err)
	sm, err := motor.NewStepMode("dma-fast", "dma", "single", "onespeed", map[string]float64{"steprate": 4000}, nil)
	require.NoError(t, err)
	return motor.NewMotor(name, driver, map[string]*motor.StepMode{sm.Name: sm}, 0, nil)
}

// waitForOff drives a SimEngine's simulated clock forward until the group
// returns to ModeOff (every wave has executed and been committed), or fails
// the test after a generous timeout.
func waitForOff(t *testing.T, g *Group, engine *dma.SimEngine) {
	t.Helper()
	require.Eventually(t, func() bool {
		if g.Mode() == ModeOff {
			return true
		}
		engine.Advance()
		return false
	}, 2*time.Second, 5*time.Millisecond, "group did not return to ModeOff")
}

func TestGroupRunFastSingleMotorCommitsFinalPosition(t *testing.T) {
	m := newTestMotor(t, "m1", []int{0, 1, 2, 3})
	engine := dma.NewSimEngine(1000, 10_000_000, 1000)
	g := New(map[string]*motor.Motor{"m1": m}, engine, 0, 0, 2, nil)

	err := g.RunFast([]RunRequest{
		{MotorID: "m1", StepMode: "dma-fast", Command: interval.CommandOneGoto, TargetPos: 16},
	})
	require.NoError(t, err)
	assert.Equal(t, ModeDMAStepping, g.Mode())

	waitForOff(t, g, engine)

	assert.Equal(t, ModeOff, g.Mode())
	assert.Equal(t, motor.OpStopped, m.OpMode())
	assert.Equal(t, int64(16), m.RawPos())
}

func TestGroupRunFastUnknownMotorErrors(t *testing.T) {
	m := newTestMotor(t, "m1", []int{0, 1, 2, 3})
	engine := dma.NewSimEngine(1000, 10_000_000, 1000)
	g := New(map[string]*motor.Motor{"m1": m}, engine, 0, 0, 2, nil)

	err := g.RunFast([]RunRequest{{MotorID: "nope", StepMode: "dma-fast", Command: interval.CommandOneGoto, TargetPos: 4}})
	assert.Error(t, err)
	assert.Equal(t, ModeOff, g.Mode())
}

func TestGroupRunFastRejectedWhileAlreadyRunning(t *testing.T) {
	m := newTestMotor(t, "m1", []int{0, 1, 2, 3})
	engine := dma.NewSimEngine(1000, 10_000_000, 1000)
	g := New(map[string]*motor.Motor{"m1": m}, engine, 0, 0, 2, nil)

	req := []RunRequest{{MotorID: "m1", StepMode: "dma-fast", Command: interval.CommandOneGoto, TargetPos: 400}}
	require.NoError(t, g.RunFast(req))

	err := g.RunFast(req)
	assert.Error(t, err)

	waitForOff(t, g, engine)
}

func TestGroupTwoMotorsMergeAndCommitIndependently(t *testing.T) {
	m1 := newTestMotor(t, "m1", []int{0, 1, 2, 3})
	m2 := newTestMotor(t, "m2", []int{4, 5, 6, 7})
	engine := dma.NewSimEngine(1000, 10_000_000, 1000)
	g := New(map[string]*motor.Motor{"m1": m1, "m2": m2}, engine, 0, 0, 2, nil)

	err := g.RunFast([]RunRequest{
		{MotorID: "m1", StepMode: "dma-fast", Command: interval.CommandOneGoto, TargetPos: 16},
		{MotorID: "m2", StepMode: "dma-fast", Command: interval.CommandOneGoto, TargetPos: 32},
	})
	require.NoError(t, err)

	waitForOff(t, g, engine)

	assert.Equal(t, int64(16), m1.RawPos())
	assert.Equal(t, int64(32), m2.RawPos())
	assert.Equal(t, motor.OpStopped, m1.OpMode())
	assert.Equal(t, motor.OpStopped, m2.OpMode())
}

func TestGroupBuildWaveSplitsOnPulseLimit(t *testing.T) {
	m := newTestMotor(t, "m1", []int{0, 1, 2, 3})
	engine := dma.NewSimEngine(3, 10_000_000, 1000) // tiny pulse limit forces multiple waves
	g := New(map[string]*motor.Motor{"m1": m}, engine, 0, 0, 8, nil)

	err := g.RunFast([]RunRequest{
		{MotorID: "m1", StepMode: "dma-fast", Command: interval.CommandOneGoto, TargetPos: 64},
	})
	require.NoError(t, err)

	waitForOff(t, g, engine)

	assert.Equal(t, int64(64), m.RawPos())
}

func TestGroupMetricsWiring(t *testing.T) {
	m := newTestMotor(t, "m1", []int{0, 1, 2, 3})
	engine := dma.NewSimEngine(3, 10_000_000, 1000)
	mtx := metrics.NewMetrics()
	g := New(map[string]*motor.Motor{"m1": m}, engine, 0, 0, 8, mtx)

	err := g.RunFast([]RunRequest{
		{MotorID: "m1", StepMode: "dma-fast", Command: interval.CommandOneGoto, TargetPos: 64},
	})
	require.NoError(t, err)

	waitForOff(t, g, engine)

	snap := mtx.Snapshot()
	assert.Greater(t, snap["waves_dispatched"], int64(0))
	assert.Equal(t, snap["waves_dispatched"], snap["waves_completed"])
	assert.Greater(t, snap["pulses_emitted"], int64(0))
}

func TestGroupCleanStopClosesAllMotors(t *testing.T) {
	m1 := newTestMotor(t, "m1", []int{0, 1, 2, 3})
	m2 := newTestMotor(t, "m2", []int{4, 5, 6, 7})
	engine := dma.NewSimEngine(1000, 10_000_000, 1000)
	g := New(map[string]*motor.Motor{"m1": m1, "m2": m2}, engine, 0, 0, 2, nil)

	g.CleanStop()

	assert.Equal(t, ModeClosed, g.Mode())
	assert.Equal(t, motor.OpClosed, m1.OpMode())
	assert.Equal(t, motor.OpClosed, m2.OpMode())
}
