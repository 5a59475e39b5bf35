package metrics

import (
	"testing"
	"time"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	if m.startTime.IsZero() {
		t.Error("start time not set")
	}
}

func TestActiveMotorsCounter(t *testing.T) {
	m := NewMetrics()

	m.IncrementActiveMotors()
	m.IncrementActiveMotors()
	if m.ActiveMotors != 2 {
		t.Errorf("expected ActiveMotors to be 2, got %d", m.ActiveMotors)
	}

	m.DecrementActiveMotors()
	if m.ActiveMotors != 1 {
		t.Errorf("expected ActiveMotors to be 1, got %d", m.ActiveMotors)
	}

	// Decrementing past zero must not go negative.
	m.DecrementActiveMotors()
	m.DecrementActiveMotors()
	if m.ActiveMotors != 0 {
		t.Errorf("expected ActiveMotors to floor at 0, got %d", m.ActiveMotors)
	}
}

func TestSetRunning(t *testing.T) {
	m := NewMetrics()
	m.SetRunning(2, 3)
	if m.RunningSoft != 2 || m.RunningDMA != 3 {
		t.Errorf("expected (2,3), got (%d,%d)", m.RunningSoft, m.RunningDMA)
	}
}

func TestWaveCounters(t *testing.T) {
	m := NewMetrics()
	m.IncrementWavesDispatched()
	m.IncrementWavesDispatched()
	m.IncrementWavesCompleted()

	if m.WavesDispatched != 2 {
		t.Errorf("expected WavesDispatched to be 2, got %d", m.WavesDispatched)
	}
	if m.WavesCompleted != 1 {
		t.Errorf("expected WavesCompleted to be 1, got %d", m.WavesCompleted)
	}
}

func TestAddPulsesEmitted(t *testing.T) {
	m := NewMetrics()
	m.AddPulsesEmitted(32)
	m.AddPulsesEmitted(8)
	if m.PulsesEmitted != 40 {
		t.Errorf("expected PulsesEmitted to be 40, got %d", m.PulsesEmitted)
	}
}

func TestOverrunCounter(t *testing.T) {
	m := NewMetrics()
	m.IncrementOverrun()
	m.IncrementOverrun()
	if m.OverrunCount != 2 {
		t.Errorf("expected OverrunCount to be 2, got %d", m.OverrunCount)
	}
}

func TestUpdateSystemMetrics(t *testing.T) {
	m := NewMetrics()
	// Uptime is counted in whole seconds, so start the clock two seconds back.
	m.startTime = time.Now().Add(-2 * time.Second)

	m.UpdateSystemMetrics()

	if m.Uptime == 0 {
		t.Error("expected Uptime to be greater than 0")
	}
	if m.GoroutineCount == 0 {
		t.Error("expected GoroutineCount to be greater than 0")
	}
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics()
	m.IncrementActiveMotors()
	m.IncrementWavesDispatched()

	snap := m.Snapshot()

	if snap["active_motors"] != 1 {
		t.Errorf("expected active_motors to be 1, got %v", snap["active_motors"])
	}
	if snap["waves_dispatched"] != 1 {
		t.Errorf("expected waves_dispatched to be 1, got %v", snap["waves_dispatched"])
	}
}

func BenchmarkIncrementActiveMotors(b *testing.B) {
	m := NewMetrics()
	for i := 0; i < b.N; i++ {
		m.IncrementActiveMotors()
	}
}

func BenchmarkSnapshot(b *testing.B) {
	m := NewMetrics()
	m.IncrementActiveMotors()
	m.IncrementWavesDispatched()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Snapshot()
	}
}
