package dma

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pootle/pisteppers/internal/hal"
)

func TestSoftEngineAppliesPulsesAndAdvancesToNoWave(t *testing.T) {
	gpio := hal.NewMockHAL().GPIO().(*hal.MockGPIO)
	_ = gpio.SetMode(3, hal.Output)
	e := NewSoftEngine(gpio, 100, 1_000_000, 200)

	require.NoError(t, e.WaveClear())
	require.NoError(t, e.WaveAddGeneric([]Pulse{
		{OnMask: 1 << 3, DelayUs: 1},
		{OffMask: 1 << 3, DelayUs: 1},
	}))
	id, err := e.WaveCreateAndPad(100)
	require.NoError(t, err)
	require.NoError(t, e.WaveSendUsingMode(id, WaveModeOneShotSync))

	require.Eventually(t, func() bool {
		cur, _ := e.WaveTxAt()
		return cur == NoWave
	}, time.Second, time.Millisecond)
}

func TestSoftEngineChainsConsecutiveWaves(t *testing.T) {
	gpio := hal.NewMockHAL().GPIO().(*hal.MockGPIO)
	e := NewSoftEngine(gpio, 100, 1_000_000, 200)

	makeWave := func(bit uint32) int {
		require.NoError(t, e.WaveClear())
		require.NoError(t, e.WaveAddGeneric([]Pulse{{OnMask: bit, DelayUs: 1}}))
		id, err := e.WaveCreateAndPad(50)
		require.NoError(t, err)
		return id
	}

	w1 := makeWave(1)
	w2 := makeWave(2)
	require.NoError(t, e.WaveSendUsingMode(w1, WaveModeOneShotSync))
	require.NoError(t, e.WaveSendUsingMode(w2, WaveModeOneShotSync))

	require.Eventually(t, func() bool {
		cur, _ := e.WaveTxAt()
		return cur == NoWave
	}, time.Second, time.Millisecond)

	assert.True(t, gpio.Value(0), "bit 0 should be left on from w1")
	assert.True(t, gpio.Value(1), "bit 1 should be left on from w2")
}

func TestSoftEngineWaveDeleteUnknownErrors(t *testing.T) {
	gpio := hal.NewMockHAL().GPIO().(*hal.MockGPIO)
	e := NewSoftEngine(gpio, 100, 1_000_000, 200)
	assert.Error(t, e.WaveDelete(42))
}
