package motor

import (
	"github.com/pootle/pisteppers/internal/errs"
	"github.com/pootle/pisteppers/internal/hal"
	"github.com/pootle/pisteppers/internal/interval"
	"github.com/pootle/pisteppers/internal/observable"
)

// PhaseTable is one named microstep table for a directly-switched motor: a
// physical-pulses-per-full-step factor and a cycle of PWM duty values (one
// per winding, 0-255) that steps through as the motor turns.
type PhaseTable struct {
	Factor int
	Rows   [][]int
}

// DefaultPhaseTables returns the four built-in microstep tables for a
// 4-phase unipolar motor, ported verbatim from
// _examples/original_source/stepperunid.py's ustepTables.
func DefaultPhaseTables() map[string]PhaseTable {
	return map[string]PhaseTable{
		"single": {Factor: 1, Rows: [][]int{
			{255, 0, 0, 0}, {0, 255, 0, 0}, {0, 0, 255, 0}, {0, 0, 0, 255},
		}},
		"double": {Factor: 1, Rows: [][]int{
			{255, 255, 0, 0}, {0, 255, 255, 0}, {0, 0, 255, 255}, {255, 0, 0, 255},
		}},
		"two": {Factor: 2, Rows: [][]int{
			{255, 0, 0, 0}, {128, 128, 0, 0}, {0, 255, 0, 0}, {0, 128, 128, 0},
			{0, 0, 255, 0}, {0, 0, 128, 128}, {0, 0, 0, 255}, {128, 0, 0, 128},
		}},
		"four": {Factor: 4, Rows: [][]int{
			{255, 0, 0, 0}, {192, 64, 0, 0}, {128, 128, 0, 0}, {64, 192, 0, 0},
			{0, 255, 0, 0}, {0, 192, 64, 0}, {0, 128, 128, 0}, {0, 64, 192, 0},
			{0, 0, 255, 0}, {0, 0, 192, 64}, {0, 0, 128, 128}, {0, 0, 64, 192},
			{0, 0, 0, 255}, {64, 0, 0, 192}, {128, 0, 0, 128}, {192, 0, 0, 64},
		}},
	}
}

// DirectDriverConfig describes a directly-switched (e.g. ULN2003) driver:
// four GPIO pins driving the windings directly via PWM, and the set of
// microstep tables available.
type DirectDriverConfig struct {
	Pins      []int
	Tables    map[string]PhaseTable
	HoldPower int // PWM duty (0-255) held on energised windings while stationary
}

// DirectDriver drives a unipolar stepper with four directly-switched phase
// pins, no separate enable/direction/step lines. In software mode PWM gives
// fine control of winding power; in DMA mode each winding is simply forced
// on or off (a PWM value above 127 counts as on), so only coarse
// microstepping is practical at DMA rates. Grounded on
// _examples/original_source/stepperunid.py.
type DirectDriver struct {
	provider  hal.GPIOProvider
	pins      []int
	tables    map[string]PhaseTable
	holdPower int
	maxFactor int

	activeTable string
	index       int
	dir         interval.Dir
	enabled     *observable.Cell[bool]
}

// NewDirectDriver configures the four phase pins for PWM output.
func NewDirectDriver(provider hal.GPIOProvider, cfg DirectDriverConfig) (*DirectDriver, error) {
	if len(cfg.Pins) != 4 {
		return nil, errs.Wrap(errs.Configuration, "direct driver: need exactly 4 phase pins, got %d", len(cfg.Pins))
	}
	tables := cfg.Tables
	if tables == nil {
		tables = DefaultPhaseTables()
	}
	maxFactor := 0
	for name, t := range tables {
		if t.Factor <= 0 {
			return nil, errs.Wrap(errs.Configuration, "direct driver table %q: factor must be positive", name)
		}
		for _, row := range t.Rows {
			if len(row) != 4 {
				return nil, errs.Wrap(errs.Configuration, "direct driver table %q: row has %d values, want 4", name, len(row))
			}
		}
		if t.Factor > maxFactor {
			maxFactor = t.Factor
		}
	}
	holdPower := cfg.HoldPower
	if holdPower == 0 {
		holdPower = 55
	}
	for _, p := range cfg.Pins {
		if err := provider.SetMode(p, hal.PWM); err != nil {
			return nil, errs.Wrap(errs.IO, "direct driver pin %d: set PWM mode: %v", p, err)
		}
		if err := provider.PWMWrite(p, 0); err != nil {
			return nil, errs.Wrap(errs.IO, "direct driver pin %d: init PWM: %v", p, err)
		}
	}
	return &DirectDriver{
		provider:  provider,
		pins:      cfg.Pins,
		tables:    tables,
		holdPower: holdPower,
		maxFactor: maxFactor,
		enabled:   observable.NewCell(false, nil),
	}, nil
}

func (d *DirectDriver) MaxStepFactor() int { return d.maxFactor }

func (d *DirectDriver) MicrostepFactor(level string) (int, error) {
	t, ok := d.tables[level]
	if !ok {
		return 0, errs.Wrap(errs.Precondition, "unknown microstep level %q", level)
	}
	return t.Factor, nil
}

func (d *DirectDriver) writeRow(row []int) error {
	for i, pin := range d.pins {
		if err := d.provider.PWMWrite(pin, row[i]); err != nil {
			return errs.Wrap(errs.IO, "direct driver pin %d: write: %v", pin, err)
		}
	}
	return nil
}

func (d *DirectDriver) currentRow() []int {
	t, ok := d.tables[d.activeTable]
	if !ok || len(t.Rows) == 0 {
		return []int{0, 0, 0, 0}
	}
	ix := d.index
	if ix < 0 || ix >= len(t.Rows) {
		ix = 0
	}
	return t.Rows[ix]
}

// Prepare selects the microstep table and resets the step index.
func (d *DirectDriver) Prepare(level string, agent observable.Agent) error {
	if _, ok := d.tables[level]; !ok {
		return errs.Wrap(errs.Precondition, "unknown microstep level %q", level)
	}
	d.activeTable = level
	d.index = 0
	return d.SetEnabled(true, agent)
}

// SetEnabled holds the current row at HoldPower, or drops all windings to
// zero when disabled. Mirrors stepperunid.py's output_enable.
func (d *DirectDriver) SetEnabled(enabled bool, agent observable.Agent) error {
	if err := d.enabled.Set(enabled, agent); err != nil {
		return err
	}
	row := d.currentRow()
	for i, v := range row {
		power := 0
		if enabled && v != 0 {
			power = d.holdPower
		}
		if err := d.provider.PWMWrite(d.pins[i], power); err != nil {
			return errs.Wrap(errs.IO, "direct driver pin %d: write: %v", d.pins[i], err)
		}
	}
	return nil
}

// SetDirection records the direction used by subsequent StepTrigger /
// StepOnBits calls; there is no discrete direction pin to write.
func (d *DirectDriver) SetDirection(dir interval.Dir, agent observable.Agent) error {
	d.dir = dir
	return nil
}

func (d *DirectDriver) advanceIndex() []int {
	t := d.tables[d.activeTable]
	if d.dir == interval.Forward {
		d.index++
		if d.index >= len(t.Rows) {
			d.index = 0
		}
	} else {
		d.index--
		if d.index < 0 {
			d.index = len(t.Rows) - 1
		}
	}
	return t.Rows[d.index]
}

// StepTrigger advances to the next row and writes it to the windings at
// full PWM resolution (used by software mode; the DMA path never calls
// this, it uses StepOnBits instead).
func (d *DirectDriver) StepTrigger() error {
	return d.writeRow(d.advanceIndex())
}

// EndStepping drops all windings to zero power.
func (d *DirectDriver) EndStepping(agent observable.Agent) error {
	_ = agent
	return d.writeRow([]int{0, 0, 0, 0})
}

// Shutdown drops all windings to zero power; there is no input mode to
// revert PWM-capable pins to.
func (d *DirectDriver) Shutdown() error {
	return d.writeRow([]int{0, 0, 0, 0})
}

func (d *DirectDriver) Style() StepStyle { return StyleLevelSet }

// DirectionBits is always (0, 0): direction is expressed purely by which
// way StepOnBits advances the phase table, not by a dedicated pin.
func (d *DirectDriver) DirectionBits(dir interval.Dir) (onMask, offMask uint32) { return 0, 0 }

// EnableBits is always (0, 0): there is no discrete enable line.
func (d *DirectDriver) EnableBits(enabled bool) (onMask, offMask uint32) { return 0, 0 }

// MicrostepBits is always (0, 0): the microstep level is encoded in the
// phase table StepOnBits walks, not in separate select pins.
func (d *DirectDriver) MicrostepBits(level string) (onMask, offMask uint32) { return 0, 0 }

// StepOnBits advances the phase table by one row in the current direction
// and returns the absolute on/off pattern for that row: a PWM value above
// 127 counts as on, matching stepperunid.py's DMA-mode threshold.
func (d *DirectDriver) StepOnBits() (onMask, offMask uint32) {
	row := d.advanceIndex()
	for i, v := range row {
		bit := uint32(1) << uint(d.pins[i])
		if v > 127 {
			onMask |= bit
		} else {
			offMask |= bit
		}
	}
	return onMask, offMask
}

// StepOffBits is unused for StyleLevelSet drivers.
func (d *DirectDriver) StepOffBits() (onMask, offMask uint32) { return 0, 0 }

func (d *DirectDriver) PulseWidthMicros() int { return 0 }
