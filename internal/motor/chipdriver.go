package motor

import (
	"github.com/pootle/pisteppers/internal/errs"
	"github.com/pootle/pisteppers/internal/gpio"
	"github.com/pootle/pisteppers/internal/hal"
	"github.com/pootle/pisteppers/internal/interval"
	"github.com/pootle/pisteppers/internal/observable"
)

// ChipDriverConfig describes the pins of an A4988/DRV8825-style driver
// chip: dedicated enable, direction, step and microstep-select lines.
type ChipDriverConfig struct {
	EnablePin     gpio.PinConfig
	DirectionPin  gpio.PinConfig
	StepPin       gpio.TriggerConfig
	Microsteps    gpio.MicrostepPinSetConfig
	PulseWidthMicros int
}

// ChipDriver drives a stepper via a chip like the A4988 or DRV8825: a
// drive-enable pin, a direction pin, a pulsed step pin, and a set of
// microstep-level select pins. Grounded on
// _examples/original_source/stepperA4988.py.
type ChipDriver struct {
	enable     *gpio.OutputPin
	direction  *gpio.OutputPin
	step       *gpio.TriggerPin
	microsteps *gpio.MicrostepPinSet
	pulseWidth int
}

// NewChipDriver builds the four owned pin objects from cfg.
func NewChipDriver(provider hal.GPIOProvider, cfg ChipDriverConfig) (*ChipDriver, error) {
	if cfg.EnablePin.Low == "" {
		cfg.EnablePin.Low, cfg.EnablePin.High = "disable", "enable"
		cfg.EnablePin.CloseValue = "disable"
	}
	if cfg.DirectionPin.Low == "" {
		cfg.DirectionPin.Low, cfg.DirectionPin.High = "F", "R"
	}
	if cfg.StepPin.Low == "" {
		cfg.StepPin.Low, cfg.StepPin.High = "idle", "pulse"
		cfg.StepPin.Pulse1 = true
	}
	if cfg.PulseWidthMicros <= 0 {
		cfg.PulseWidthMicros = 2
	}
	if cfg.StepPin.PulseMicros <= 0 {
		cfg.StepPin.PulseMicros = cfg.PulseWidthMicros
	}

	enable, err := gpio.NewOutputPin(provider, cfg.EnablePin)
	if err != nil {
		return nil, err
	}
	direction, err := gpio.NewOutputPin(provider, cfg.DirectionPin)
	if err != nil {
		return nil, err
	}
	step, err := gpio.NewTriggerPin(provider, cfg.StepPin)
	if err != nil {
		return nil, err
	}
	ms, err := gpio.NewMicrostepPinSet(provider, cfg.Microsteps)
	if err != nil {
		return nil, err
	}
	return &ChipDriver{
		enable:     enable,
		direction:  direction,
		step:       step,
		microsteps: ms,
		pulseWidth: cfg.PulseWidthMicros,
	}, nil
}

func (d *ChipDriver) MaxStepFactor() int { return d.microsteps.MaxFactor() }

func (d *ChipDriver) MicrostepFactor(level string) (int, error) {
	on, off := d.microsteps.Bits(level)
	if on == 0 && off == 0 {
		return 0, errs.Wrap(errs.Precondition, "unknown microstep level %q", level)
	}
	return d.microsteps.Factor(), nil
}

func (d *ChipDriver) Prepare(level string, agent observable.Agent) error {
	if err := d.microsteps.Set(level, agent); err != nil {
		return err
	}
	return d.enable.Set("enable", agent)
}

func (d *ChipDriver) SetEnabled(enabled bool, agent observable.Agent) error {
	value := "disable"
	if enabled {
		value = "enable"
	}
	return d.enable.Set(value, agent)
}

func (d *ChipDriver) SetDirection(dir interval.Dir, agent observable.Agent) error {
	value := "F"
	if dir == interval.Reverse {
		value = "R"
	}
	return d.direction.Set(value, agent)
}

func (d *ChipDriver) StepTrigger() error { return d.step.Pulse() }

func (d *ChipDriver) EndStepping(agent observable.Agent) error {
	return d.enable.Set("disable", agent)
}

func (d *ChipDriver) Shutdown() error {
	if err := d.enable.Shutdown(); err != nil {
		return err
	}
	if err := d.direction.Shutdown(); err != nil {
		return err
	}
	if err := d.step.Shutdown(); err != nil {
		return err
	}
	return d.microsteps.Shutdown()
}

func (d *ChipDriver) Style() StepStyle { return StylePulsePair }

func (d *ChipDriver) DirectionBits(dir interval.Dir) (onMask, offMask uint32) {
	value := "F"
	if dir == interval.Reverse {
		value = "R"
	}
	return d.direction.Bits(value)
}

func (d *ChipDriver) EnableBits(enabled bool) (onMask, offMask uint32) {
	value := "disable"
	if enabled {
		value = "enable"
	}
	return d.enable.Bits(value)
}

func (d *ChipDriver) MicrostepBits(level string) (onMask, offMask uint32) {
	return d.microsteps.Bits(level)
}

func (d *ChipDriver) StepOnBits() (onMask, offMask uint32) { return d.step.PulseBits() }

func (d *ChipDriver) StepOffBits() (onMask, offMask uint32) { return d.step.IdleBits() }

func (d *ChipDriver) PulseWidthMicros() int { return d.step.PulseWidthMicros() }
