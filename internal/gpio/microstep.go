package gpio

import (
	"github.com/pootle/pisteppers/internal/errs"
	"github.com/pootle/pisteppers/internal/hal"
	"github.com/pootle/pisteppers/internal/observable"
)

// MicrostepLevel is one named row of a motor's microstep table: the
// physical-pulses-per-full-step factor and the pin-value vector (true =
// High) that selects it.
type MicrostepLevel struct {
	Factor int
	Values []bool
}

// MicrostepPinSetConfig describes the pins and levels of a microstep pin
// set. Pins may be empty (a hard-wired motor) in which case every entry in
// Levels must have an empty Values vector.
type MicrostepPinSetConfig struct {
	Pins    []PinConfig
	Levels  map[string]MicrostepLevel
	Initial string
}

// MicrostepPinSet owns N output pins and a named level table. Set writes
// all N pins in one call, one after another; there is no lock spanning the
// writes. Bits returns the combined on/off mask for a level without
// touching hardware.
type MicrostepPinSet struct {
	pins   []*OutputPin
	levels map[string]MicrostepLevel
	cell   *observable.Cell[string]
	maxF   int
}

// NewMicrostepPinSet validates the level table against the pin count and
// constructs one OutputPin per physical pin.
func NewMicrostepPinSet(provider hal.GPIOProvider, cfg MicrostepPinSetConfig) (*MicrostepPinSet, error) {
	if len(cfg.Levels) == 0 {
		return nil, errs.Wrap(errs.Configuration, "microstep pin set: no levels defined")
	}
	maxF := 0
	for name, lvl := range cfg.Levels {
		if len(lvl.Values) != len(cfg.Pins) {
			return nil, errs.Wrap(errs.Configuration, "microstep level %q: %d pin values for %d pins", name, len(lvl.Values), len(cfg.Pins))
		}
		if lvl.Factor <= 0 {
			return nil, errs.Wrap(errs.Configuration, "microstep level %q: factor must be positive", name)
		}
		if lvl.Factor > maxF {
			maxF = lvl.Factor
		}
	}
	if _, ok := cfg.Levels[cfg.Initial]; cfg.Initial != "" && !ok {
		return nil, errs.Wrap(errs.Configuration, "microstep pin set: initial level %q not in level table", cfg.Initial)
	}

	pins := make([]*OutputPin, 0, len(cfg.Pins))
	for _, pc := range cfg.Pins {
		pc.Low, pc.High = "0", "1"
		p, err := NewOutputPin(provider, pc)
		if err != nil {
			return nil, err
		}
		pins = append(pins, p)
	}

	initial := cfg.Initial
	if initial == "" {
		for name := range cfg.Levels {
			initial = name
			break
		}
	}

	ms := &MicrostepPinSet{pins: pins, levels: cfg.Levels, maxF: maxF}
	ms.cell = observable.NewCell(initial, func(name string) error {
		if _, ok := ms.levels[name]; !ok {
			return errs.Wrap(errs.Precondition, "unknown microstep level %q", name)
		}
		return nil
	})
	if err := ms.Set(initial, observable.AgentApp); err != nil {
		return nil, err
	}
	return ms, nil
}

// MaxFactor returns the motor's max_step_factor: the largest factor across
// every level in the table, and the unit of the motor's raw position.
func (ms *MicrostepPinSet) MaxFactor() int { return ms.maxF }

// Factor returns the factor of the currently-selected level.
func (ms *MicrostepPinSet) Factor() int { return ms.levels[ms.cell.Get()].Factor }

// Get returns the name of the currently-selected level.
func (ms *MicrostepPinSet) Get() string { return ms.cell.Get() }

// Set records name and then writes every pin, in order, to the level's
// value vector.
func (ms *MicrostepPinSet) Set(name string, agent observable.Agent) error {
	if err := ms.cell.Set(name, agent); err != nil {
		return err
	}
	lvl := ms.levels[name]
	for i, pin := range ms.pins {
		value := "0"
		if lvl.Values[i] {
			value = "1"
		}
		if err := pin.Set(value, agent); err != nil {
			return err
		}
	}
	return nil
}

// Bits returns the combined (on_mask, off_mask) for name without writing
// any pin, for use by the DMA pulse synthesiser.
func (ms *MicrostepPinSet) Bits(name string) (onMask, offMask uint32) {
	lvl, ok := ms.levels[name]
	if !ok {
		return 0, 0
	}
	for i, pin := range ms.pins {
		value := "0"
		if lvl.Values[i] {
			value = "1"
		}
		on, off := pin.Bits(value)
		onMask |= on
		offMask |= off
	}
	return onMask, offMask
}

// CurrentBits returns Bits for the currently-selected level.
func (ms *MicrostepPinSet) CurrentBits() (onMask, offMask uint32) {
	return ms.Bits(ms.Get())
}

// Shutdown shuts down every owned pin.
func (ms *MicrostepPinSet) Shutdown() error {
	for _, pin := range ms.pins {
		if err := pin.Shutdown(); err != nil {
			return err
		}
	}
	return nil
}
