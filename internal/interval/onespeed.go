package interval

// OneSpeedParams are the live-read parameters of a one-speed generator.
type OneSpeedParams struct {
	// StepRate reads the current full-steps-per-second rate.
	StepRate func() float64
	// FActive is the microstep factor of this generator's step-mode; fixed
	// for the generator's lifetime since the microstep level is part of
	// the step-mode identity.
	FActive int
}

// OneSpeedGenerator emits steps at a single, possibly live-adjustable,
// rate. See spec §4.2.1.
type OneSpeedGenerator struct {
	motor   MotorView
	command Command
	params  OneSpeedParams

	current     int64
	activeDir   Dir
	haveDir     bool
	tick        float64
	initialized bool
	finished    bool
}

// NewOneSpeedGenerator creates a generator starting from initialPos (used
// by goto/one-goto to track progress toward the target).
func NewOneSpeedGenerator(motor MotorView, command Command, initialPos int64, params OneSpeedParams) *OneSpeedGenerator {
	return &OneSpeedGenerator{
		motor:   motor,
		command: command,
		params:  params,
		current: initialPos,
	}
}

func (g *OneSpeedGenerator) Next() (TickItem, bool) {
	if g.finished || !g.motor.StepActive() {
		return TickItem{}, false
	}

	if g.motor.UpdateParams() || !g.initialized {
		g.initialized = true
		g.tick = 1 / (g.params.StepRate() * float64(g.params.FActive))
		g.motor.ClearUpdateParams()
	}

	newDir := g.targetDir()
	if !g.haveDir || newDir != g.activeDir {
		interval := g.tick
		if !g.haveDir {
			interval = initialDirSetSeconds
		}
		g.activeDir = newDir
		g.haveDir = true
		return TickItem{Kind: TickDirSet, Dir: newDir, Seconds: interval}, true
	}

	if g.command.isGoto() {
		usteps := int64(g.motor.MaxStepFactor() / g.params.FActive)
		remaining := absInt64(g.motor.TargetRawPos() - g.current)
		if remaining < usteps {
			if g.command == CommandOneGoto {
				g.finished = true
			}
			return TickItem{Kind: TickIdle}, true
		}
		if g.activeDir == Forward {
			g.current += usteps
		} else {
			g.current -= usteps
		}
	}
	return TickItem{Kind: TickStep, Seconds: g.tick}, true
}

func (g *OneSpeedGenerator) targetDir() Dir {
	if g.command.isGoto() {
		if g.motor.TargetRawPos()-g.current >= 0 {
			return Forward
		}
		return Reverse
	}
	return g.motor.TargetDir()
}
