// Package dma models the DMA wave engine capability the group scheduler
// consumes, per spec.md §6. No pigpio (or other DMA wave) Go binding
// exists anywhere in the example pack, so there is no third-party library
// to ground a production Engine on; Engine is a pure Go interface, backed
// in tests by SimEngine and in production by a software-timed fallback
// (see softengine.go) built directly on hal.GPIOProvider.
package dma

import "github.com/pootle/pisteppers/internal/errs"

// WaveMode selects how a submitted wave is dispatched.
type WaveMode int

const (
	// WaveModeOneShot runs the wave once and stops.
	WaveModeOneShot WaveMode = iota
	// WaveModeOneShotSync runs the wave once, starting precisely when the
	// previously chained wave ends. This is the only mode the group
	// scheduler uses, per spec.md §4.4.2's pipelined chaining.
	WaveModeOneShotSync
)

// NoWave is the sentinel WaveTxAt returns when no wave is executing.
const NoWave = -1

// Pulse is the engine-facing triple spec.md §6 names: an on/off GPIO
// bit-mask pair and the delay, in microseconds, before the next pulse.
type Pulse struct {
	OnMask, OffMask uint32
	DelayUs         uint32
}

// Engine is the DMA wave engine capability the group scheduler consumes.
// Implementations own a single-threaded command stream; spec.md §5
// requires only the group scheduler goroutine to call it.
type Engine interface {
	WaveClear() error
	WaveAddGeneric(pulses []Pulse) error
	WaveCreate() (waveID int, err error)
	WaveCreateAndPad(percent int) (waveID int, err error)
	WaveSendUsingMode(waveID int, mode WaveMode) error
	WaveTxAt() (waveID int, err error)
	WaveDelete(waveID int) error

	MaxPulsesPerWave() int
	MaxMicrosPerWave() int
	MaxCBsPerWave() int
}

// ErrEngine wraps any engine failure as an errs.IO error, per spec.md
// §7's classification of DMA engine errors.
func ErrEngine(op string, err error) error {
	return errs.Wrap(errs.IO, "dma engine %s: %v", op, err)
}
