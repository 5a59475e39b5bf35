// Package motor implements the motor core: command lifecycle, the mode
// machine, the software step-loop, and the DMA pulse synthesiser. See
// stepmode.go for step-mode/generator construction and pulsegen.go for the
// DMA pulse record emission rules.
package motor

import (
	"github.com/pootle/pisteppers/internal/interval"
	"github.com/pootle/pisteppers/internal/observable"
)

// StepStyle distinguishes how a driver's physical step looks on the wire,
// which the DMA pulse synthesiser needs to know to shape pulse records.
type StepStyle int

const (
	// StylePulsePair: a dedicated step pin is pulsed on then off — one
	// physical step is two pulse records separated by the pulse width.
	StylePulsePair StepStyle = iota
	// StyleLevelSet: the windings are driven directly to a new level
	// pattern that holds until the next step — one physical step is one
	// pulse record.
	StyleLevelSet
)

// Driver is the capability set the motor core needs from a concrete
// stepper driver, per spec: end_stepping, step_trigger, direction_set, and
// pulse_synthesise. Two concrete drivers implement it: ChipDriver (A4988 /
// DRV8825 style, dedicated step/dir/enable pins) and DirectDriver (ULN2003
// style, four directly-switched phase pins).
type Driver interface {
	// MaxStepFactor is the motor's max_step_factor: the largest microstep
	// factor across the whole microstep table, and the unit of raw position.
	MaxStepFactor() int
	// MicrostepFactor returns the physical-pulses-per-full-step factor for
	// a named microstep level, or an error if the level is unknown.
	MicrostepFactor(level string) (int, error)

	// Prepare selects the microstep level and enables drive current ahead
	// of a software-timed run.
	Prepare(level string, agent observable.Agent) error
	// SetEnabled enables or disables drive current.
	SetEnabled(enabled bool, agent observable.Agent) error
	// SetDirection commits a direction change.
	SetDirection(dir interval.Dir, agent observable.Agent) error
	// StepTrigger issues one software-timed physical step in the
	// most-recently-set direction.
	StepTrigger() error
	// EndStepping is called once a run ends: disables drive (chip driver)
	// or drops all windings to zero power (direct driver).
	EndStepping(agent observable.Agent) error
	// Shutdown releases every pin this driver owns.
	Shutdown() error

	// Style reports how DMA pulse records should represent one physical
	// step for this driver.
	Style() StepStyle
	// DirectionBits returns the (on, off) masks that commit dir, for DMA
	// pulse construction. Returns (0, 0) if the driver has no discrete
	// direction line, as with DirectDriver.
	DirectionBits(dir interval.Dir) (onMask, offMask uint32)
	// EnableBits returns the (on, off) masks for asserting or releasing
	// drive current. A driver with no discrete enable line returns (0, 0).
	EnableBits(enabled bool) (onMask, offMask uint32)
	// MicrostepBits returns the (on, off) masks that select a named
	// microstep level.
	MicrostepBits(level string) (onMask, offMask uint32)
	// StepOnBits returns the masks for the "step happens" edge of one
	// physical step in the current direction, advancing any internal phase
	// state. For StyleLevelSet this is the complete new winding pattern;
	// for StylePulsePair it is the step pin's rising edge.
	StepOnBits() (onMask, offMask uint32)
	// StepOffBits returns the masks for the trailing edge of a
	// StylePulsePair step (the step pin's falling edge). Unused for
	// StyleLevelSet.
	StepOffBits() (onMask, offMask uint32)
	// PulseWidthMicros is the delay between StepOnBits and StepOffBits for
	// StylePulsePair drivers.
	PulseWidthMicros() int
}
