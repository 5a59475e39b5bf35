package main

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pootle/pisteppers/internal/config"
	"github.com/pootle/pisteppers/internal/errs"
	"github.com/pootle/pisteppers/internal/gpio"
	"github.com/pootle/pisteppers/internal/hal"
	"github.com/pootle/pisteppers/internal/metrics"
	"github.com/pootle/pisteppers/internal/motor"
)

// buildMotors translates a loaded Config into concrete drivers, step modes
// and Motor instances, keyed by motor name.
func buildMotors(cfg *config.Config, provider hal.GPIOProvider, mtx *metrics.Metrics) (map[string]*motor.Motor, error) {
	motors := make(map[string]*motor.Motor, len(cfg.Motors))
	for name, desc := range cfg.Motors {
		driver, err := buildDriver(name, desc, provider)
		if err != nil {
			return nil, err
		}
		stepModes, err := buildStepModes(name, desc)
		if err != nil {
			return nil, err
		}
		motors[name] = motor.NewMotor(name, driver, stepModes, desc.HoldStopped, mtx)
	}
	return motors, nil
}

func buildStepModes(motorName string, desc config.MotorDescriptor) (map[string]*motor.StepMode, error) {
	modes := make(map[string]*motor.StepMode, len(desc.StepModes))
	for name, sm := range desc.StepModes {
		built, err := motor.NewStepMode(name, sm.Driver, sm.Microstep, sm.Generator, sm.Params, nil)
		if err != nil {
			return nil, errs.Wrap(errs.Configuration, "motor %q: %v", motorName, err)
		}
		modes[name] = built
	}
	return modes, nil
}

func buildDriver(motorName string, desc config.MotorDescriptor, provider hal.GPIOProvider) (motor.Driver, error) {
	switch desc.Driver {
	case "chip":
		return buildChipDriver(motorName, desc, provider)
	case "direct":
		return buildDirectDriver(motorName, desc, provider)
	default:
		return nil, errs.Wrap(errs.Configuration, "motor %q: unknown driver kind %q", motorName, desc.Driver)
	}
}

// buildChipDriver reads the "enable", "direction" and "step" pin names plus
// every "ms"-prefixed microstep-select pin (sorted by name, e.g. ms0, ms1,
// ms2) out of desc.Pins. Each config.MicrostepLevel's flat Pins []int vector
// is read positionally against that same sorted pin order.
func buildChipDriver(motorName string, desc config.MotorDescriptor, provider hal.GPIOProvider) (*motor.ChipDriver, error) {
	enablePin, ok := desc.Pins["enable"]
	if !ok {
		return nil, errs.Wrap(errs.Configuration, "motor %q: chip driver needs an \"enable\" pin", motorName)
	}
	directionPin, ok := desc.Pins["direction"]
	if !ok {
		return nil, errs.Wrap(errs.Configuration, "motor %q: chip driver needs a \"direction\" pin", motorName)
	}
	stepPin, ok := desc.Pins["step"]
	if !ok {
		return nil, errs.Wrap(errs.Configuration, "motor %q: chip driver needs a \"step\" pin", motorName)
	}

	msPins := sortedMicrostepPins(desc.Pins)
	levels, err := translateMicrostepLevels(motorName, desc.Microsteps, len(msPins))
	if err != nil {
		return nil, err
	}

	cfg := motor.ChipDriverConfig{
		EnablePin:    gpio.PinConfig{Name: "enable", PinNo: enablePin},
		DirectionPin: gpio.PinConfig{Name: "direction", PinNo: directionPin},
		StepPin:      gpio.TriggerConfig{PinConfig: gpio.PinConfig{Name: "step", PinNo: stepPin}},
		Microsteps: gpio.MicrostepPinSetConfig{
			Pins:    msPins,
			Levels:  levels,
			Initial: firstLevelName(desc.Microsteps),
		},
	}
	return motor.NewChipDriver(provider, cfg)
}

func sortedMicrostepPins(pins map[string]int) []gpio.PinConfig {
	var names []string
	for k := range pins {
		if strings.HasPrefix(k, "ms") {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	out := make([]gpio.PinConfig, len(names))
	for i, name := range names {
		out[i] = gpio.PinConfig{Name: name, PinNo: pins[name]}
	}
	return out
}

func translateMicrostepLevels(motorName string, levels map[string]config.MicrostepLevel, numPins int) (map[string]gpio.MicrostepLevel, error) {
	out := make(map[string]gpio.MicrostepLevel, len(levels))
	for name, lvl := range levels {
		if len(lvl.Pins) != numPins {
			return nil, errs.Wrap(errs.Configuration, "motor %q microstep level %q: %d pin values for %d microstep-select pins", motorName, name, len(lvl.Pins), numPins)
		}
		values := make([]bool, numPins)
		for i, v := range lvl.Pins {
			values[i] = v != 0
		}
		out[name] = gpio.MicrostepLevel{Factor: lvl.Factor, Values: values}
	}
	return out, nil
}

func firstLevelName(levels map[string]config.MicrostepLevel) string {
	var names []string
	for k := range levels {
		names = append(names, k)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// buildDirectDriver reads "phase0".."phase3" out of desc.Pins. The
// config-facing MicrostepLevel shape (a flat factor + 0/1 pin vector) can't
// represent a PhaseTable's per-row PWM duty cycles, so a direct-drive
// motor's microstep tables always come from motor.DefaultPhaseTables();
// desc.Microsteps only has to name one of those tables for each step-mode
// to select.
func buildDirectDriver(motorName string, desc config.MotorDescriptor, provider hal.GPIOProvider) (*motor.DirectDriver, error) {
	pins := make([]int, 4)
	for i := range pins {
		key := "phase" + strconv.Itoa(i)
		p, ok := desc.Pins[key]
		if !ok {
			return nil, errs.Wrap(errs.Configuration, "motor %q: direct driver needs pin %q", motorName, key)
		}
		pins[i] = p
	}
	return motor.NewDirectDriver(provider, motor.DirectDriverConfig{Pins: pins})
}
