package motor

import (
	"github.com/pootle/pisteppers/internal/errs"
	"github.com/pootle/pisteppers/internal/observable"
)

// StepMode is a named bundle of (driver-path, microstep level,
// interval-generator parameters). It owns its own parameter cells so that
// live edits are picked up by a running generator through the motor's
// single update_params flag, per spec §3/§4.2.
type StepMode struct {
	Name           string
	DriverMode     string // "software" | "dma"
	MicrostepLevel string
	GeneratorKind  string // "onespeed" | "ramped"

	// StepRate is used by the one-speed generator.
	StepRate *observable.Cell[float64]
	// SlowTPS, FastTPS, Slope are used by the ramped generator.
	SlowTPS *observable.Cell[float64]
	FastTPS *observable.Cell[float64]
	Slope   *observable.Cell[float64]
}

// NewStepMode builds a step mode's parameter cells from raw config values,
// validating that the generator kind's required parameters are present and
// sane. onEdit is called (with no arguments worth passing through, since
// any edit just needs to flip the owning motor's update_params flag)
// whenever a parameter cell changes.
func NewStepMode(name, driverMode, microstepLevel, generatorKind string, params map[string]float64, onEdit func()) (*StepMode, error) {
	sm := &StepMode{
		Name:           name,
		DriverMode:     driverMode,
		MicrostepLevel: microstepLevel,
		GeneratorKind:  generatorKind,
	}
	positive := func(v float64) error {
		if v <= 0 {
			return errs.Wrap(errs.Configuration, "step-mode %q: parameter must be positive, got %v", name, v)
		}
		return nil
	}
	notify := func(float64, observable.Agent) {
		if onEdit != nil {
			onEdit()
		}
	}

	switch generatorKind {
	case "onespeed":
		rate, ok := params["steprate"]
		if !ok {
			return nil, errs.Wrap(errs.Configuration, "step-mode %q: onespeed requires steprate", name)
		}
		sm.StepRate = observable.NewCell(rate, positive)
		sm.StepRate.Subscribe(notify)
	case "ramped":
		slow, ok := params["start_tps"]
		if !ok {
			return nil, errs.Wrap(errs.Configuration, "step-mode %q: ramped requires start_tps", name)
		}
		fast, ok := params["fast_tps"]
		if !ok {
			return nil, errs.Wrap(errs.Configuration, "step-mode %q: ramped requires fast_tps", name)
		}
		slope, ok := params["slope"]
		if !ok {
			return nil, errs.Wrap(errs.Configuration, "step-mode %q: ramped requires slope", name)
		}
		if slow > fast {
			return nil, errs.Wrap(errs.Configuration, "step-mode %q: start_tps must be <= fast_tps", name)
		}
		sm.SlowTPS = observable.NewCell(slow, positive)
		sm.FastTPS = observable.NewCell(fast, positive)
		sm.Slope = observable.NewCell(slope, positive)
		sm.SlowTPS.Subscribe(notify)
		sm.FastTPS.Subscribe(notify)
		sm.Slope.Subscribe(notify)
	default:
		return nil, errs.Wrap(errs.Configuration, "step-mode %q: unknown generator class %q", name, generatorKind)
	}
	return sm, nil
}
