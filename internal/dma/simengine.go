package dma

import "sync"

// simWave is one constructed wave: its pulses and whether it has been
// sent. No execution time is modelled; progress comes only from Advance.
type simWave struct {
	id     int
	pulses []Pulse
	sent   bool
}

// SimEngine is an in-memory Engine double for tests: it records
// WaveAddGeneric/WaveCreate calls and lets the test drive WaveTxAt's
// answer by calling Advance, rather than trying to model real DMA timing.
type SimEngine struct {
	mu sync.Mutex

	maxPulses int
	maxMicros int
	maxCBs    int

	pending   []Pulse
	waves     map[int]*simWave
	nextID    int
	chain     []int // wave ids submitted via WaveSendUsingMode, in order
	executing int    // index into chain currently "running", or -1
	deleted   map[int]bool
}

// NewSimEngine builds a SimEngine with the given limits. Pass the values
// a real daemon would report for max_pulses_per_wave / max_micros_per_wave
// / max_cbs_per_wave.
func NewSimEngine(maxPulses, maxMicros, maxCBs int) *SimEngine {
	return &SimEngine{
		maxPulses: maxPulses,
		maxMicros: maxMicros,
		maxCBs:    maxCBs,
		waves:     make(map[int]*simWave),
		deleted:   make(map[int]bool),
		executing: -1,
	}
}

func (s *SimEngine) MaxPulsesPerWave() int { return s.maxPulses }
func (s *SimEngine) MaxMicrosPerWave() int { return s.maxMicros }
func (s *SimEngine) MaxCBsPerWave() int    { return s.maxCBs }

func (s *SimEngine) WaveClear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	return nil
}

func (s *SimEngine) WaveAddGeneric(pulses []Pulse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, pulses...)
	return nil
}

func (s *SimEngine) WaveCreate() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.waves[id] = &simWave{id: id, pulses: s.pending}
	s.pending = nil
	return id, nil
}

// WaveCreateAndPad behaves exactly like WaveCreate; percent padding has no
// observable effect on a simulated engine.
func (s *SimEngine) WaveCreateAndPad(percent int) (int, error) {
	return s.WaveCreate()
}

func (s *SimEngine) WaveSendUsingMode(waveID int, mode WaveMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.waves[waveID]
	if !ok {
		return ErrEngine("wave_send_using_mode", errUnknownWave(waveID))
	}
	w.sent = true
	s.chain = append(s.chain, waveID)
	if s.executing == -1 {
		s.executing = 0
	}
	return nil
}

// WaveTxAt reports the currently-executing wave id, or NoWave once the
// chain is exhausted. Tests drive progress by calling Advance.
func (s *SimEngine) WaveTxAt() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executing < 0 || s.executing >= len(s.chain) {
		return NoWave, nil
	}
	return s.chain[s.executing], nil
}

// Advance moves the simulated execution pointer to the next chained wave,
// as if the current one finished. Call it once per wave completion a test
// wants to simulate.
func (s *SimEngine) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.executing >= 0 && s.executing < len(s.chain) {
		s.executing++
	}
}

func (s *SimEngine) WaveDelete(waveID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.waves[waveID]; !ok {
		return ErrEngine("wave_delete", errUnknownWave(waveID))
	}
	delete(s.waves, waveID)
	s.deleted[waveID] = true
	return nil
}

// Pulses returns a copy of the pulses recorded against waveID, for test
// assertions.
func (s *SimEngine) Pulses(waveID int) []Pulse {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.waves[waveID]
	if !ok {
		return nil
	}
	out := make([]Pulse, len(w.pulses))
	copy(out, w.pulses)
	return out
}

type errUnknownWave int

func (e errUnknownWave) Error() string { return "unknown wave id" }
