// Package interval implements the lazy, pull-based interval generators
// that turn a motor's live target/speed parameters into a sequence of
// step-to-step timing decisions. Each generator is a small explicit state
// machine with a Next() method — no goroutine or channel is spun up to
// drive it, so it can be polled from either a software step-loop or a DMA
// pulse synthesiser at whatever pace the caller needs.
package interval

// Dir is a motor direction.
type Dir int

const (
	Forward Dir = 1
	Reverse Dir = -1
)

// Command selects how a generator interprets its target parameter.
type Command int

const (
	// CommandGoto drives toward a target position and keeps monitoring it
	// (emitting Idle once reached) until told to stop.
	CommandGoto Command = iota
	// CommandOneGoto is like CommandGoto but the generator ends as soon as
	// the target is reached, instead of idling and re-monitoring.
	CommandOneGoto
	// CommandRun drives indefinitely in the motor's target_dir cell until
	// told to stop.
	CommandRun
)

func (c Command) isGoto() bool { return c == CommandGoto || c == CommandOneGoto }

// TickKind distinguishes the three shapes a TickItem can take.
type TickKind int

const (
	TickDirSet TickKind = iota
	TickStep
	TickIdle
)

// TickItem is one item pulled from a Generator: a direction commit, a step
// after some delay, or an idle slot while goto mode watches for a new
// target.
type TickItem struct {
	Kind    TickKind
	Dir     Dir     // valid when Kind == TickDirSet
	Seconds float64 // valid when Kind == TickDirSet or TickStep
}

// MotorView is the minimal, non-owning view a generator needs of its
// owning motor. Generators borrow this rather than holding a full Motor
// reference, so motor <-> step-mode <-> generator never forms an ownership
// cycle; a generator is created fresh for each run and never outlives it.
type MotorView interface {
	// StepActive reports the termination signal, for every command: once
	// false, the one-speed generator ends on its next call and the ramped
	// generator decelerates to slow_tps and then ends.
	StepActive() bool
	// TargetRawPos is the goto target, in raw position units.
	TargetRawPos() int64
	// TargetDir is the run direction cell.
	TargetDir() Dir
	// UpdateParams reports whether live parameters changed since the last
	// read; ClearUpdateParams resets it. A generator must not cache
	// steprate/slow_tps/fast_tps/slope/target across iterations except
	// through this flag.
	UpdateParams() bool
	ClearUpdateParams()
	// MaxStepFactor is the motor's max_step_factor (the raw-position unit).
	MaxStepFactor() int
}

// Generator is a lazy, cancellable sequence of TickItems. Next returns
// (item, true) while the sequence continues, or (zero, false) once it has
// ended.
type Generator interface {
	Next() (TickItem, bool)
}

// initialDirSetSeconds is the interval carried by the very first DirSet a
// generator ever emits, before any step has actually happened yet; the
// value only matters in that it is small enough not to stall startup.
const initialDirSetSeconds = 20e-6

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
