package interval

// decelMargin is the extra full-step cushion added to the computed
// deceleration distance, matching the source's fixed safety margin.
const decelMargin = 5

// RampedParams are the live-read parameters of a constant-acceleration
// generator.
type RampedParams struct {
	SlowTPS func() float64 // start/stop rate
	FastTPS func() float64 // cruise rate
	Slope   func() float64 // steps/sec^2
	FActive int
}

// RampedGenerator ramps step rate linearly between SlowTPS and FastTPS,
// decelerating symmetrically as a goto target or a stop request approaches.
// See spec §4.2.2.
type RampedGenerator struct {
	motor   MotorView
	command Command
	params  RampedParams

	current     int64
	activeDir   Dir
	haveDir     bool
	currentTPS  float64
	slowTPS     float64
	fastTPS     float64
	slope       float64
	decelUsteps float64
	initialized bool
	finished    bool
}

// NewRampedGenerator creates a generator starting from initialPos.
func NewRampedGenerator(motor MotorView, command Command, initialPos int64, params RampedParams) *RampedGenerator {
	return &RampedGenerator{
		motor:   motor,
		command: command,
		params:  params,
		current: initialPos,
	}
}

func (g *RampedGenerator) Next() (TickItem, bool) {
	if g.finished {
		return TickItem{}, false
	}

	stopRequested := !g.motor.StepActive()

	if g.motor.UpdateParams() || !g.initialized {
		g.slowTPS = g.params.SlowTPS()
		g.fastTPS = g.params.FastTPS()
		g.slope = g.params.Slope()
		if !g.initialized {
			g.currentTPS = g.slowTPS
		}
		g.initialized = true
		if g.command.isGoto() {
			g.recomputeDecelUsteps()
		}
		g.motor.ClearUpdateParams()
	}

	targetDirNow := g.targetDir()

	if !g.haveDir {
		g.activeDir = targetDirNow
		g.haveDir = true
		return TickItem{Kind: TickDirSet, Dir: g.activeDir, Seconds: initialDirSetSeconds}, true
	}

	decelerate := stopRequested || targetDirNow != g.activeDir
	if g.command.isGoto() && !decelerate {
		remaining := absInt64(g.motor.TargetRawPos() - g.current)
		if float64(remaining) < g.decelUsteps {
			decelerate = true
		}
	}

	if decelerate {
		tickBefore := 1 / (g.currentTPS * float64(g.params.FActive))
		g.currentTPS -= g.slope * tickBefore
		if g.currentTPS < g.slowTPS {
			g.currentTPS = g.slowTPS
		}

		if g.currentTPS <= g.slowTPS && targetDirNow != g.activeDir {
			interval := 1 / (g.slowTPS * float64(g.params.FActive))
			g.activeDir = targetDirNow
			return TickItem{Kind: TickDirSet, Dir: g.activeDir, Seconds: interval}, true
		}

		if g.command.isGoto() {
			usteps := g.motor.MaxStepFactor() / g.params.FActive
			remaining := absInt64(g.motor.TargetRawPos() - g.current)
			if remaining < int64(usteps)/2 {
				if g.command == CommandOneGoto {
					g.finished = true
				}
				return TickItem{Kind: TickIdle}, true
			}
		}

		item := g.emitStep()
		if g.currentTPS <= g.slowTPS && stopRequested {
			g.finished = true
		}
		return item, true
	}

	if g.currentTPS < g.fastTPS {
		tickBefore := 1 / (g.currentTPS * float64(g.params.FActive))
		g.currentTPS += g.slope * tickBefore
		if g.currentTPS > g.fastTPS {
			g.currentTPS = g.fastTPS
		}
		if g.command.isGoto() {
			g.recomputeDecelUsteps()
		}
	}
	// else: cruise, current_tps unchanged.

	return g.emitStep(), true
}

func (g *RampedGenerator) targetDir() Dir {
	if g.command.isGoto() {
		if g.motor.TargetRawPos()-g.current >= 0 {
			return Forward
		}
		return Reverse
	}
	return g.motor.TargetDir()
}

func (g *RampedGenerator) emitStep() TickItem {
	tick := 1 / (g.currentTPS * float64(g.params.FActive))
	usteps := int64(g.motor.MaxStepFactor() / g.params.FActive)
	if g.activeDir == Forward {
		g.current += usteps
	} else {
		g.current -= usteps
	}
	return TickItem{Kind: TickStep, Seconds: tick}
}

// recomputeDecelUsteps computes the distance from target, in raw units, at
// which deceleration toward slow_tps must begin so the motor reaches
// slow_tps exactly as it arrives at target.
func (g *RampedGenerator) recomputeDecelUsteps() {
	averageTPS := (g.currentTPS + g.slowTPS) / 2
	decelTime := (g.currentTPS - g.slowTPS) / g.slope
	decelFullSteps := averageTPS*decelTime + decelMargin
	g.decelUsteps = decelFullSteps * float64(g.motor.MaxStepFactor())
}
