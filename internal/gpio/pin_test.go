package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pootle/pisteppers/internal/hal"
	"github.com/pootle/pisteppers/internal/observable"
)

func TestOutputPinSetWritesHardware(t *testing.T) {
	mock := hal.NewMockHAL()
	p, err := NewOutputPin(mock.GPIO(), PinConfig{Name: "dir", PinNo: 5, Low: "F", High: "R"})
	require.NoError(t, err)

	require.NoError(t, p.Set("R", observable.AgentApp))
	assert.True(t, mock.GPIO().(*hal.MockGPIO).Value(5))

	require.NoError(t, p.Set("F", observable.AgentApp))
	assert.False(t, mock.GPIO().(*hal.MockGPIO).Value(5))
}

func TestOutputPinBits(t *testing.T) {
	mock := hal.NewMockHAL()
	p, err := NewOutputPin(mock.GPIO(), PinConfig{Name: "en", PinNo: 3, Low: "disable", High: "enable"})
	require.NoError(t, err)

	on, off := p.Bits("enable")
	assert.Equal(t, uint32(1<<3), on)
	assert.Equal(t, uint32(0), off)

	on, off = p.Bits("disable")
	assert.Equal(t, uint32(0), on)
	assert.Equal(t, uint32(1<<3), off)
}

func TestOutputPinNoPhysicalPinIsNoop(t *testing.T) {
	mock := hal.NewMockHAL()
	p, err := NewOutputPin(mock.GPIO(), PinConfig{Name: "hardwired", PinNo: -1, Low: "off", High: "on"})
	require.NoError(t, err)

	require.NoError(t, p.Set("on", observable.AgentApp))
	on, off := p.CurrentBits()
	assert.Equal(t, uint32(0), on)
	assert.Equal(t, uint32(0), off)
}

func TestOutputPinRejectsUnknownValue(t *testing.T) {
	mock := hal.NewMockHAL()
	p, err := NewOutputPin(mock.GPIO(), PinConfig{Name: "dir", PinNo: 5, Low: "F", High: "R"})
	require.NoError(t, err)

	err = p.Set("sideways", observable.AgentUser)
	assert.Error(t, err)
	assert.Equal(t, "F", p.Get())
}

func TestOutputPinShutdownWithCloseValue(t *testing.T) {
	mock := hal.NewMockHAL()
	p, err := NewOutputPin(mock.GPIO(), PinConfig{Name: "en", PinNo: 4, Low: "disable", High: "enable", CloseValue: "disable"})
	require.NoError(t, err)

	require.NoError(t, p.Set("enable", observable.AgentApp))
	require.NoError(t, p.Shutdown())
	assert.Equal(t, "disable", p.Get())
}

func TestTriggerPinPulseRevertsToIdle(t *testing.T) {
	mock := hal.NewMockHAL()
	tp, err := NewTriggerPin(mock.GPIO(), TriggerConfig{
		PinConfig:   PinConfig{Name: "step", PinNo: 7, Low: "0", High: "1"},
		PulseMicros: 1,
		Pulse1:      true,
	})
	require.NoError(t, err)

	require.NoError(t, tp.Pulse())
	assert.Equal(t, "0", tp.Get())
}

func TestMicrostepPinSetBitsAndSet(t *testing.T) {
	mock := hal.NewMockHAL()
	ms, err := NewMicrostepPinSet(mock.GPIO(), MicrostepPinSetConfig{
		Pins: []PinConfig{{Name: "ms0", PinNo: 10}, {Name: "ms1", PinNo: 11}},
		Levels: map[string]MicrostepLevel{
			"full":    {Factor: 1, Values: []bool{false, false}},
			"quarter": {Factor: 4, Values: []bool{true, false}},
			"sixteen": {Factor: 16, Values: []bool{true, true}},
		},
		Initial: "full",
	})
	require.NoError(t, err)
	assert.Equal(t, 16, ms.MaxFactor())
	assert.Equal(t, 1, ms.Factor())

	require.NoError(t, ms.Set("sixteen", observable.AgentApp))
	assert.Equal(t, 16, ms.Factor())
	assert.True(t, mock.GPIO().(*hal.MockGPIO).Value(10))
	assert.True(t, mock.GPIO().(*hal.MockGPIO).Value(11))

	on, off := ms.Bits("quarter")
	assert.Equal(t, uint32(1<<10), on)
	assert.Equal(t, uint32(1<<11), off)
}

func TestMicrostepPinSetRejectsMismatchedTable(t *testing.T) {
	mock := hal.NewMockHAL()
	_, err := NewMicrostepPinSet(mock.GPIO(), MicrostepPinSetConfig{
		Pins: []PinConfig{{Name: "ms0", PinNo: 10}},
		Levels: map[string]MicrostepLevel{
			"bad": {Factor: 2, Values: []bool{true, true}},
		},
	})
	assert.Error(t, err)
}
