package dma

import (
	"sync"
	"time"

	"github.com/pootle/pisteppers/internal/hal"
)

// SoftEngine is a software-timed Engine fallback for boards with no real
// DMA wave hardware (or no pigpio-equivalent daemon): each wave is played
// out by a goroutine that sleeps between pulses and writes pins directly
// via hal.GPIOProvider. It satisfies the Engine contract so the group
// scheduler is unaware it isn't talking to real DMA hardware, but it gives
// up microsecond accuracy — sleeps below ~1ms are unreliable on a
// general-purpose OS scheduler. Grounded on spec.md §6's Engine surface;
// there is no pigpio (or DMA wave) Go binding anywhere in the example pack
// to wrap instead.
type SoftEngine struct {
	gpio hal.GPIOProvider

	maxPulses int
	maxMicros int
	maxCBs    int

	mu      sync.Mutex
	pending []Pulse
	waves   map[int]*softWave
	nextID  int
	chain   []int
	txAt    int
	done    chan struct{}
}

type softWave struct {
	pulses []Pulse
}

// NewSoftEngine builds a SoftEngine over gpio with the stated per-wave
// limits (conservative values in the absence of real hardware limits).
func NewSoftEngine(gpio hal.GPIOProvider, maxPulses, maxMicros, maxCBs int) *SoftEngine {
	return &SoftEngine{
		gpio:      gpio,
		maxPulses: maxPulses,
		maxMicros: maxMicros,
		maxCBs:    maxCBs,
		waves:     make(map[int]*softWave),
		txAt:      NoWave,
	}
}

func (e *SoftEngine) MaxPulsesPerWave() int { return e.maxPulses }
func (e *SoftEngine) MaxMicrosPerWave() int { return e.maxMicros }
func (e *SoftEngine) MaxCBsPerWave() int    { return e.maxCBs }

func (e *SoftEngine) WaveClear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
	return nil
}

func (e *SoftEngine) WaveAddGeneric(pulses []Pulse) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, pulses...)
	return nil
}

func (e *SoftEngine) WaveCreate() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.waves[id] = &softWave{pulses: e.pending}
	e.pending = nil
	return id, nil
}

func (e *SoftEngine) WaveCreateAndPad(percent int) (int, error) {
	return e.WaveCreate()
}

// WaveSendUsingMode queues waveID onto the chain and, if nothing is
// currently running, starts the playback goroutine. Only
// WaveModeOneShotSync is meaningful here since SoftEngine always chains.
func (e *SoftEngine) WaveSendUsingMode(waveID int, mode WaveMode) error {
	e.mu.Lock()
	w, ok := e.waves[waveID]
	if !ok {
		e.mu.Unlock()
		return ErrEngine("wave_send_using_mode", errUnknownWave(waveID))
	}
	starting := e.txAt == NoWave
	e.chain = append(e.chain, waveID)
	if starting {
		e.txAt = waveID
	}
	e.mu.Unlock()
	if starting {
		go e.play(waveID, w)
	}
	return nil
}

func (e *SoftEngine) play(waveID int, w *softWave) {
	for _, p := range w.pulses {
		e.applyPulse(p)
		if p.DelayUs > 0 {
			time.Sleep(time.Duration(p.DelayUs) * time.Microsecond)
		}
	}
	e.mu.Lock()
	var next int
	var nextWave *softWave
	for i, id := range e.chain {
		if id == waveID && i+1 < len(e.chain) {
			next = e.chain[i+1]
			nextWave = e.waves[next]
			break
		}
	}
	if nextWave != nil {
		e.txAt = next
	} else {
		e.txAt = NoWave
	}
	e.mu.Unlock()
	if nextWave != nil {
		e.play(next, nextWave)
	}
}

func (e *SoftEngine) applyPulse(p Pulse) {
	for bit := 0; bit < 32; bit++ {
		mask := uint32(1) << uint(bit)
		if p.OnMask&mask != 0 {
			_ = e.gpio.DigitalWrite(bit, true)
		}
		if p.OffMask&mask != 0 {
			_ = e.gpio.DigitalWrite(bit, false)
		}
	}
}

func (e *SoftEngine) WaveTxAt() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.txAt, nil
}

func (e *SoftEngine) WaveDelete(waveID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.waves[waveID]; !ok {
		return ErrEngine("wave_delete", errUnknownWave(waveID))
	}
	delete(e.waves, waveID)
	for i, id := range e.chain {
		if id == waveID {
			e.chain = append(e.chain[:i], e.chain[i+1:]...)
			break
		}
	}
	return nil
}
