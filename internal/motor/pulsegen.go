package motor

import (
	"github.com/pootle/pisteppers/internal/interval"
)

// Action classifies a PulseRecord for the group scheduler.
type Action int

const (
	// ActionNormal is an ordinary pulse.
	ActionNormal Action = 0
	// ActionTerminal marks the motor's run as complete; the group must
	// call EndStepping and transition the motor to stopped once the wave
	// carrying this record finishes.
	ActionTerminal Action = -1
	// ActionNoop marks a no-op slot emitted while the motor is
	// stationary but may resume (goto mode waiting on a new target).
	ActionNoop Action = 1
)

// PulseRecord is the motor-produced unit the group scheduler merges and
// packs into DMA waves.
type PulseRecord struct {
	OnMask, OffMask uint32
	USClock         int64
	RawPos          int64
	MotorID         string
	Action          Action
}

// PulseGenerator wraps an interval.Generator and a Driver, turning tick
// items into the pulse record stream spec'd in §4.3. Created fresh for
// each DMA run; does not outlive it.
//
// Policy decision (spec §9 open question): the first DirSet of a run
// combines direction bits with drive-enable-ON and microstep-level bits
// into a single record, so the whole setup happens inside one pulse slot;
// later direction changes mid-run commit only the direction bits. This is
// read as a power-saving measure: re-asserting enable/microstep bits on
// every direction flip would needlessly re-drive pins that are already at
// the right level.
type PulseGenerator struct {
	gen    interval.Generator
	driver Driver
	level  string
	holdStopped float64
	motorID string

	pos          int64
	activeDir    interval.Dir
	haveDir      bool
	setupSent    bool
	usClock      int64
	overflow     float64

	pending []PulseRecord
	ended   bool
}

// NewPulseGenerator starts a pulse generator at initialPos for the given
// motor id, wrapping gen (already constructed for the requested
// goto/one-goto/run command) and driver.
func NewPulseGenerator(motorID string, driver Driver, level string, holdStopped float64, initialPos int64, gen interval.Generator) *PulseGenerator {
	return &PulseGenerator{
		gen:         gen,
		driver:      driver,
		level:       level,
		holdStopped: holdStopped,
		motorID:     motorID,
		pos:         initialPos,
	}
}

// Next returns the next pulse record, or (zero, false) once the terminal
// record has been delivered.
func (p *PulseGenerator) Next() (PulseRecord, bool) {
	if len(p.pending) > 0 {
		r := p.pending[0]
		p.pending = p.pending[1:]
		return r, true
	}
	if p.ended {
		return PulseRecord{}, false
	}

	tick, ok := p.gen.Next()
	if !ok {
		return p.emitTerminal(), true
	}

	switch tick.Kind {
	case interval.TickDirSet:
		return p.emitDirSet(tick), true
	case interval.TickStep:
		return p.emitStep(tick), true
	default: // TickIdle
		return p.emitIdle(tick), true
	}
}

func (p *PulseGenerator) advanceClock(seconds float64) {
	total := seconds*1e6 + p.overflow
	delta := int64(total)
	p.overflow = total - float64(delta)
	p.usClock += delta
}

func (p *PulseGenerator) emitDirSet(tick interval.TickItem) PulseRecord {
	onMask, offMask := p.driver.DirectionBits(tick.Dir)
	if !p.setupSent {
		eOn, eOff := p.driver.EnableBits(true)
		mOn, mOff := p.driver.MicrostepBits(p.level)
		onMask |= eOn | mOn
		offMask |= eOff | mOff
		p.setupSent = true
	}
	r := PulseRecord{OnMask: onMask, OffMask: offMask, USClock: p.usClock, RawPos: p.pos, MotorID: p.motorID, Action: ActionNormal}
	p.activeDir = tick.Dir
	p.haveDir = true
	p.advanceClock(tick.Seconds)
	return r
}

func (p *PulseGenerator) emitStep(tick interval.TickItem) PulseRecord {
	factor, _ := p.driver.MicrostepFactor(p.level)
	step := int64(p.driver.MaxStepFactor() / factor)
	if p.activeDir == interval.Reverse {
		step = -step
	}
	p.pos += step

	switch p.driver.Style() {
	case StylePulsePair:
		onBits, offBits := p.driver.StepOnBits()
		first := PulseRecord{OnMask: onBits, OffMask: offBits, USClock: p.usClock, RawPos: p.pos, MotorID: p.motorID, Action: ActionNormal}
		offOn, offOff := p.driver.StepOffBits()
		second := PulseRecord{OnMask: offOn, OffMask: offOff, USClock: p.usClock + int64(p.driver.PulseWidthMicros()), RawPos: p.pos, MotorID: p.motorID, Action: ActionNormal}
		p.advanceClock(tick.Seconds)
		p.pending = append(p.pending, second)
		return first
	default: // StyleLevelSet
		onBits, offBits := p.driver.StepOnBits()
		r := PulseRecord{OnMask: onBits, OffMask: offBits, USClock: p.usClock, RawPos: p.pos, MotorID: p.motorID, Action: ActionNormal}
		p.advanceClock(tick.Seconds)
		return r
	}
}

func (p *PulseGenerator) emitIdle(tick interval.TickItem) PulseRecord {
	r := PulseRecord{USClock: p.usClock, RawPos: p.pos, MotorID: p.motorID, Action: ActionNoop}
	p.advanceClock(0.1) // 100ms, per spec
	return r
}

func (p *PulseGenerator) emitTerminal() PulseRecord {
	p.ended = true
	var onMask, offMask uint32
	if p.holdStopped > 0 {
		onMask, offMask = p.driver.EnableBits(false)
		p.advanceClock(p.holdStopped)
	}
	return PulseRecord{OnMask: onMask, OffMask: offMask, USClock: p.usClock, RawPos: p.pos, MotorID: p.motorID, Action: ActionTerminal}
}
