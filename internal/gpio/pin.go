// Package gpio implements the named logic-value pin abstractions the
// stepper core drives: two-valued output pins, trigger pins, and the
// microstep-level pin set. Bit-mask accessors let the DMA pulse
// synthesiser read pin state without writing pins directly.
package gpio

import (
	"fmt"

	"github.com/pootle/pisteppers/internal/errs"
	"github.com/pootle/pisteppers/internal/hal"
	"github.com/pootle/pisteppers/internal/observable"
)

// PinConfig describes one physical (or hard-wired) output pin.
type PinConfig struct {
	Name string
	// PinNo is the Broadcom GPIO number, or -1 for "no physical pin" —
	// typically because the line is hard-wired and not driven by software.
	PinNo int
	// Low and High name the two logic values this pin carries, e.g.
	// {"disable", "enable"} or {"F", "R"}. Low is the initial value.
	Low, High string
	// CloseValue, if non-empty, is the value driven on Shutdown before
	// leaving the pin in output mode. If empty, Shutdown reverts the pin
	// to input mode instead.
	CloseValue string
}

// OutputPin is a named two-valued logic pin with an observable current
// value and bit-mask accessors for DMA pulse construction.
type OutputPin struct {
	cfg      PinConfig
	provider hal.GPIOProvider
	cell     *observable.Cell[string]
}

// NewOutputPin configures the pin for output (unless PinNo is -1, the
// hard-wired no-op case) and initialises it to Low.
func NewOutputPin(provider hal.GPIOProvider, cfg PinConfig) (*OutputPin, error) {
	if cfg.Low == cfg.High {
		return nil, errs.Wrap(errs.Configuration, "pin %q: Low and High must differ", cfg.Name)
	}
	if cfg.CloseValue != "" && cfg.CloseValue != cfg.Low && cfg.CloseValue != cfg.High {
		return nil, errs.Wrap(errs.Configuration, "pin %q: close value %q is not one of its two values", cfg.Name, cfg.CloseValue)
	}
	p := &OutputPin{
		cfg:      cfg,
		provider: provider,
		cell: observable.NewCell(cfg.Low, func(v string) error {
			if v != cfg.Low && v != cfg.High {
				return fmt.Errorf("pin %q: value %q is not one of its two values", cfg.Name, v)
			}
			return nil
		}),
	}
	if cfg.PinNo >= 0 {
		if err := provider.SetMode(cfg.PinNo, hal.Output); err != nil {
			return nil, errs.Wrap(errs.IO, "pin %q (gpio %d): set output mode: %v", cfg.Name, cfg.PinNo, err)
		}
		if err := provider.DigitalWrite(cfg.PinNo, false); err != nil {
			return nil, errs.Wrap(errs.IO, "pin %q (gpio %d): init write: %v", cfg.Name, cfg.PinNo, err)
		}
	}
	return p, nil
}

// Name returns the pin's configured name.
func (p *OutputPin) Name() string { return p.cfg.Name }

// PinNo returns the Broadcom pin number, or -1 for a hard-wired pin.
func (p *OutputPin) PinNo() int { return p.cfg.PinNo }

// Get returns the pin's current logical value.
func (p *OutputPin) Get() string { return p.cell.Get() }

// Set writes the logic level for value and updates the observable cell. A
// pin number of -1 makes this a no-op beyond recording the value.
func (p *OutputPin) Set(value string, agent observable.Agent) error {
	if err := p.cell.Set(value, agent); err != nil {
		return err
	}
	if p.cfg.PinNo < 0 {
		return nil
	}
	if err := p.provider.DigitalWrite(p.cfg.PinNo, value == p.cfg.High); err != nil {
		return errs.Wrap(errs.IO, "pin %q (gpio %d): write: %v", p.cfg.Name, p.cfg.PinNo, err)
	}
	return nil
}

// Subscribe registers a listener for future value changes.
func (p *OutputPin) Subscribe(l observable.Listener[string]) { p.cell.Subscribe(l) }

// Bits returns (on_mask, off_mask) for value, exactly one of which has bit
// 1<<PinNo set. A hard-wired pin (PinNo < 0) always returns (0, 0).
func (p *OutputPin) Bits(value string) (onMask, offMask uint32) {
	if p.cfg.PinNo < 0 {
		return 0, 0
	}
	bit := uint32(1) << uint(p.cfg.PinNo)
	if value == p.cfg.High {
		return bit, 0
	}
	return 0, bit
}

// CurrentBits returns Bits for the pin's current value.
func (p *OutputPin) CurrentBits() (onMask, offMask uint32) {
	return p.Bits(p.Get())
}

// Shutdown drives CloseValue if configured, or reverts the pin to input
// mode otherwise. A hard-wired pin is a no-op.
func (p *OutputPin) Shutdown() error {
	if p.cfg.PinNo < 0 {
		return nil
	}
	if p.cfg.CloseValue == "" {
		if err := p.provider.SetMode(p.cfg.PinNo, hal.Input); err != nil {
			return errs.Wrap(errs.IO, "pin %q (gpio %d): shutdown to input: %v", p.cfg.Name, p.cfg.PinNo, err)
		}
		return nil
	}
	return p.Set(p.cfg.CloseValue, observable.AgentApp)
}
