package hal

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// RaspberryPiHAL drives real GPIO pins on a Raspberry Pi via go-rpio.
type RaspberryPiHAL struct {
	gpio *rpioGPIO
	info BoardInfo
}

// NewRaspberryPiHAL opens /dev/gpiomem and returns a HAL backed by go-rpio.
func NewRaspberryPiHAL() (*RaspberryPiHAL, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w", err)
	}
	board, err := DetectBoard()
	if err != nil {
		board = &BoardInfo{Model: BoardUnknown, Name: "unknown Pi", GPIOChip: "gpiochip0"}
	}
	return &RaspberryPiHAL{
		gpio: &rpioGPIO{
			pins: make(map[int]rpio.Pin),
			mode: make(map[int]PinMode),
		},
		info: *board,
	}, nil
}

func (h *RaspberryPiHAL) GPIO() GPIOProvider { return h.gpio }
func (h *RaspberryPiHAL) Info() BoardInfo    { return h.info }
func (h *RaspberryPiHAL) Close() error       { return rpio.Close() }

// rpioGPIO implements GPIOProvider over github.com/stianeikeland/go-rpio/v4.
type rpioGPIO struct {
	mu   sync.Mutex
	pins map[int]rpio.Pin
	mode map[int]PinMode
}

func (g *rpioGPIO) pin(no int) rpio.Pin {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pins[no]
	if !ok {
		p = rpio.Pin(no)
		g.pins[no] = p
	}
	return p
}

func (g *rpioGPIO) SetMode(pinNo int, mode PinMode) error {
	p := g.pin(pinNo)
	switch mode {
	case Input:
		p.Input()
	case Output, PWM:
		p.Output()
	default:
		return fmt.Errorf("unsupported pin mode: %v", mode)
	}
	g.mu.Lock()
	g.mode[pinNo] = mode
	g.mu.Unlock()
	return nil
}

func (g *rpioGPIO) SetPull(pinNo int, pull PullMode) error {
	p := g.pin(pinNo)
	switch pull {
	case PullUp:
		p.PullUp()
	case PullDown:
		p.PullDown()
	default:
		p.PullOff()
	}
	return nil
}

func (g *rpioGPIO) DigitalRead(pinNo int) (bool, error) {
	return g.pin(pinNo).Read() == rpio.High, nil
}

func (g *rpioGPIO) DigitalWrite(pinNo int, value bool) error {
	p := g.pin(pinNo)
	if value {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

// PWMWrite has no duty-cycle control on pins used as direct-drive windings.
// go-rpio has no hardware PWM duty/frequency control on arbitrary GPIOs, so
// this is a flat write: any value above zero drives the pin high, zero
// drives it low.
func (g *rpioGPIO) PWMWrite(pinNo int, value int) error {
	return g.DigitalWrite(pinNo, value > 0)
}

func (g *rpioGPIO) SetPWMFrequency(pinNo int, freq int) error {
	return nil
}

func (g *rpioGPIO) ActivePins() map[int]PinMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[int]PinMode, len(g.mode))
	for k, v := range g.mode {
		out[k] = v
	}
	return out
}

func (g *rpioGPIO) Close() error {
	return nil
}
