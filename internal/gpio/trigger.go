package gpio

import (
	"time"

	"github.com/pootle/pisteppers/internal/errs"
	"github.com/pootle/pisteppers/internal/hal"
	"github.com/pootle/pisteppers/internal/observable"
)

// TriggerConfig extends PinConfig with the pulse timing used by Pulse.
type TriggerConfig struct {
	PinConfig
	// PulseMicros is the duration of the asserted level before it reverts.
	PulseMicros int
	// Pulse1 selects which level is pulsed: true pulses High then reverts
	// to Low; false (the zero value) pulses Low then reverts to High.
	Pulse1 bool
}

// TriggerPin is an OutputPin that can additionally emit a timed pulse away
// from its idle level, used for step pins in software-timed mode.
type TriggerPin struct {
	*OutputPin
	pulseMicros int
	pulseValue  string
	idleValue   string
}

// NewTriggerPin builds a trigger pin on top of an output pin with the same
// physical configuration.
func NewTriggerPin(provider hal.GPIOProvider, cfg TriggerConfig) (*TriggerPin, error) {
	base, err := NewOutputPin(provider, cfg.PinConfig)
	if err != nil {
		return nil, err
	}
	pulseValue, idleValue := cfg.High, cfg.Low
	if !cfg.Pulse1 {
		pulseValue, idleValue = cfg.Low, cfg.High
	}
	if cfg.PulseMicros <= 0 {
		return nil, errs.Wrap(errs.Configuration, "trigger pin %q: pulse_micros must be positive", cfg.Name)
	}
	return &TriggerPin{
		OutputPin:   base,
		pulseMicros: cfg.PulseMicros,
		pulseValue:  pulseValue,
		idleValue:   idleValue,
	}, nil
}

// Pulse drives the pulse level for PulseMicros microseconds, then reverts
// to the idle level. Used by the software step-loop's trigger_step; DMA
// mode never calls this, it only reads PulseBits/IdleBits to build pulse
// records.
func (t *TriggerPin) Pulse() error {
	if err := t.Set(t.pulseValue, observable.AgentApp); err != nil {
		return err
	}
	time.Sleep(time.Duration(t.pulseMicros) * time.Microsecond)
	return t.Set(t.idleValue, observable.AgentApp)
}

// PulseWidthMicros returns the configured pulse duration.
func (t *TriggerPin) PulseWidthMicros() int { return t.pulseMicros }

// PulseBits returns the (on, off) masks for the asserted pulse level.
func (t *TriggerPin) PulseBits() (onMask, offMask uint32) { return t.Bits(t.pulseValue) }

// IdleBits returns the (on, off) masks for the resting idle level.
func (t *TriggerPin) IdleBits() (onMask, offMask uint32) { return t.Bits(t.idleValue) }
