package interval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMotor is a minimal MotorView for generator tests.
type fakeMotor struct {
	active        bool
	targetRawPos  int64
	targetDir     Dir
	updateParams  bool
	maxStepFactor int
}

func (f *fakeMotor) StepActive() bool        { return f.active }
func (f *fakeMotor) TargetRawPos() int64     { return f.targetRawPos }
func (f *fakeMotor) TargetDir() Dir          { return f.targetDir }
func (f *fakeMotor) UpdateParams() bool      { return f.updateParams }
func (f *fakeMotor) ClearUpdateParams()      { f.updateParams = false }
func (f *fakeMotor) MaxStepFactor() int      { return f.maxStepFactor }

func TestOneSpeedGeneratorRunEmitsConstantTick(t *testing.T) {
	m := &fakeMotor{active: true, targetDir: Forward, updateParams: true, maxStepFactor: 16}
	g := NewOneSpeedGenerator(m, CommandRun, 0, OneSpeedParams{
		StepRate: func() float64 { return 100 },
		FActive:  2,
	})

	first, ok := g.Next()
	require.True(t, ok)
	assert.Equal(t, TickDirSet, first.Kind)
	assert.Equal(t, Forward, first.Dir)

	wantTick := 1.0 / (100 * 2)
	for i := 0; i < 5; i++ {
		item, ok := g.Next()
		require.True(t, ok)
		assert.Equal(t, TickStep, item.Kind)
		assert.InDelta(t, wantTick, item.Seconds, 1e-12)
	}

	m.active = false
	_, ok = g.Next()
	assert.False(t, ok)
}

func TestOneSpeedGeneratorGotoEmitsIdleNearTarget(t *testing.T) {
	m := &fakeMotor{active: true, targetRawPos: 4, updateParams: true, maxStepFactor: 16}
	g := NewOneSpeedGenerator(m, CommandGoto, 0, OneSpeedParams{
		StepRate: func() float64 { return 10 },
		FActive:  2, // usteps per step = 16/2 = 8, so target 4 is < usteps
	})

	dirSet, ok := g.Next()
	require.True(t, ok)
	assert.Equal(t, TickDirSet, dirSet.Kind)

	item, ok := g.Next()
	require.True(t, ok)
	assert.Equal(t, TickIdle, item.Kind, "target closer than one microstep should idle immediately")
}

func TestOneSpeedGeneratorGotoReachesTarget(t *testing.T) {
	m := &fakeMotor{active: true, targetRawPos: 16, updateParams: true, maxStepFactor: 16}
	g := NewOneSpeedGenerator(m, CommandGoto, 0, OneSpeedParams{
		StepRate: func() float64 { return 1000 },
		FActive:  2, // usteps per step = 8; target 16 -> 2 steps
	})

	_, ok := g.Next() // DirSet
	require.True(t, ok)

	steps := 0
	for i := 0; i < 10; i++ {
		item, ok := g.Next()
		require.True(t, ok)
		if item.Kind == TickStep {
			steps++
		}
		if item.Kind == TickIdle {
			break
		}
	}
	assert.Equal(t, 2, steps)
}

func TestOneSpeedGeneratorOneGotoTerminatesAtTarget(t *testing.T) {
	m := &fakeMotor{active: true, targetRawPos: 16, updateParams: true, maxStepFactor: 16}
	g := NewOneSpeedGenerator(m, CommandOneGoto, 0, OneSpeedParams{
		StepRate: func() float64 { return 1000 },
		FActive:  2, // usteps per step = 8; target 16 -> 2 steps
	})

	_, ok := g.Next() // DirSet
	require.True(t, ok)

	steps := 0
	ended := false
	for i := 0; i < 10; i++ {
		item, ok := g.Next()
		if !ok {
			ended = true
			break
		}
		if item.Kind == TickStep {
			steps++
		}
	}
	assert.Equal(t, 2, steps)
	assert.True(t, ended, "one-goto must terminate once the target is reached, unlike goto")
}

func TestRampedGeneratorAccelerateTowardFastTPS(t *testing.T) {
	m := &fakeMotor{active: true, targetDir: Forward, updateParams: true, maxStepFactor: 16}
	g := NewRampedGenerator(m, CommandRun, 0, RampedParams{
		SlowTPS: func() float64 { return 100 },
		FastTPS: func() float64 { return 1000 },
		Slope:   func() float64 { return 500 },
		FActive: 1,
	})

	_, ok := g.Next() // initial DirSet
	require.True(t, ok)

	var lastTPS float64 = -1
	for i := 0; i < 2000; i++ {
		item, ok := g.Next()
		require.True(t, ok)
		if item.Kind != TickStep {
			continue
		}
		tps := 1 / item.Seconds
		if lastTPS >= 0 {
			assert.GreaterOrEqual(t, tps+1e-6, lastTPS, "speed must not decrease while accelerating")
		}
		lastTPS = tps
		if math.Abs(tps-1000) < 1 {
			break
		}
	}
	assert.InDelta(t, 1000, lastTPS, 1.0, "should reach cruise speed")
}

func TestRampedGeneratorStopRampsDownThenEnds(t *testing.T) {
	m := &fakeMotor{active: true, targetDir: Forward, updateParams: true, maxStepFactor: 16}
	g := NewRampedGenerator(m, CommandRun, 0, RampedParams{
		SlowTPS: func() float64 { return 100 },
		FastTPS: func() float64 { return 1000 },
		Slope:   func() float64 { return 500 },
		FActive: 1,
	})

	_, _ = g.Next() // DirSet

	// Accelerate part way up the ramp (50 steps reach about 245 tps).
	for i := 0; i < 50; i++ {
		g.Next()
	}

	m.active = false

	sawSlow := false
	for i := 0; i < 100; i++ {
		item, ok := g.Next()
		if !ok {
			break
		}
		if item.Kind == TickStep {
			tps := 1 / item.Seconds
			if math.Abs(tps-100) < 1 {
				sawSlow = true
			}
		}
	}
	assert.True(t, sawSlow, "generator should ramp back down to slow_tps before ending")

	_, ok := g.Next()
	assert.False(t, ok, "generator must terminate after winding down")
}

func TestRampedGeneratorBoundedAcceleration(t *testing.T) {
	m := &fakeMotor{active: true, targetDir: Forward, updateParams: true, maxStepFactor: 16}
	slope := 500.0
	g := NewRampedGenerator(m, CommandRun, 0, RampedParams{
		SlowTPS: func() float64 { return 100 },
		FastTPS: func() float64 { return 1000 },
		Slope:   func() float64 { return slope },
		FActive: 1,
	})

	_, _ = g.Next() // DirSet
	prevTick := 0.0
	for i := 0; i < 100; i++ {
		item, ok := g.Next()
		require.True(t, ok)
		if item.Kind != TickStep {
			continue
		}
		if prevTick > 0 {
			rate1 := 1 / prevTick
			rate2 := 1 / item.Seconds
			bound := slope*math.Max(prevTick, item.Seconds) + 1e-6
			assert.LessOrEqual(t, math.Abs(rate2-rate1), bound)
		}
		prevTick = item.Seconds
	}
}

func TestRampedGeneratorGotoIdlesAtTarget(t *testing.T) {
	m := &fakeMotor{active: true, targetRawPos: 64, updateParams: true, maxStepFactor: 16}
	g := NewRampedGenerator(m, CommandGoto, 0, RampedParams{
		SlowTPS: func() float64 { return 100 },
		FastTPS: func() float64 { return 1000 },
		Slope:   func() float64 { return 500 },
		FActive: 1,
	})

	_, ok := g.Next() // DirSet
	require.True(t, ok)

	sawIdle := false
	for i := 0; i < 200; i++ {
		item, ok := g.Next()
		require.True(t, ok, "goto must keep reporting idle at target rather than hang")
		if item.Kind == TickIdle {
			sawIdle = true
			break
		}
	}
	assert.True(t, sawIdle, "ramped goto should idle once it reaches target, even after decelerating")

	// Once idle, further calls keep idling rather than stepping past target.
	again, ok := g.Next()
	require.True(t, ok)
	assert.Equal(t, TickIdle, again.Kind)
}

func TestRampedGeneratorOneGotoTerminatesAtTarget(t *testing.T) {
	m := &fakeMotor{active: true, targetRawPos: 64, updateParams: true, maxStepFactor: 16}
	g := NewRampedGenerator(m, CommandOneGoto, 0, RampedParams{
		SlowTPS: func() float64 { return 100 },
		FastTPS: func() float64 { return 1000 },
		Slope:   func() float64 { return 500 },
		FActive: 1,
	})

	_, ok := g.Next() // DirSet
	require.True(t, ok)

	ended := false
	for i := 0; i < 200; i++ {
		_, ok := g.Next()
		if !ok {
			ended = true
			break
		}
	}
	assert.True(t, ended, "one-goto must terminate once the ramped generator reaches target, unlike goto")
}

func TestRampedGeneratorDegenerateWhenSlowEqualsFast(t *testing.T) {
	m := &fakeMotor{active: true, targetDir: Forward, updateParams: true, maxStepFactor: 16}
	g := NewRampedGenerator(m, CommandRun, 0, RampedParams{
		SlowTPS: func() float64 { return 200 },
		FastTPS: func() float64 { return 200 },
		Slope:   func() float64 { return 500 },
		FActive: 1,
	})

	_, _ = g.Next() // DirSet
	wantTick := 1.0 / 200
	for i := 0; i < 5; i++ {
		item, ok := g.Next()
		require.True(t, ok)
		assert.Equal(t, TickStep, item.Kind)
		assert.InDelta(t, wantTick, item.Seconds, 1e-9)
	}
}
