// Package metrics tracks process-wide counters for the stepper core: how
// many motors are active, how many DMA waves have been dispatched, and how
// often the software step-loop misses a deadline.
package metrics

import (
	"runtime"
	"sync"
	"time"
)

// Metrics is a mutex-guarded counter block. Callers read it directly or via
// Snapshot; there is no HTTP exposition endpoint.
type Metrics struct {
	ActiveMotors    int64
	RunningSoft     int64
	RunningDMA      int64
	WavesDispatched int64
	WavesCompleted  int64
	PulsesEmitted   int64
	OverrunCount    int64
	ConfigErrors    int64

	Uptime         int64
	GoroutineCount int

	mu        sync.RWMutex
	startTime time.Time
}

// NewMetrics returns an empty Metrics with its uptime clock started.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncrementActiveMotors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ActiveMotors++
}

func (m *Metrics) DecrementActiveMotors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ActiveMotors > 0 {
		m.ActiveMotors--
	}
}

func (m *Metrics) SetRunning(soft, dma int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RunningSoft = soft
	m.RunningDMA = dma
}

func (m *Metrics) IncrementWavesDispatched() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WavesDispatched++
}

func (m *Metrics) IncrementWavesCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WavesCompleted++
}

func (m *Metrics) AddPulsesEmitted(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PulsesEmitted += n
}

func (m *Metrics) IncrementOverrun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OverrunCount++
}

func (m *Metrics) IncrementConfigErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfigErrors++
}

// UpdateSystemMetrics refreshes uptime and goroutine count.
func (m *Metrics) UpdateSystemMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Uptime = int64(time.Since(m.startTime).Seconds())
	m.GoroutineCount = runtime.NumGoroutine()
}

// Snapshot returns a point-in-time copy for logging or inspection.
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]int64{
		"active_motors":    m.ActiveMotors,
		"running_soft":     m.RunningSoft,
		"running_dma":      m.RunningDMA,
		"waves_dispatched": m.WavesDispatched,
		"waves_completed":  m.WavesCompleted,
		"pulses_emitted":   m.PulsesEmitted,
		"overrun_count":    m.OverrunCount,
		"config_errors":    m.ConfigErrors,
		"uptime_seconds":   m.Uptime,
		"goroutines":       int64(m.GoroutineCount),
	}
}
