package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pootle/pisteppers/internal/config"
	"github.com/pootle/pisteppers/internal/hal"
	"github.com/pootle/pisteppers/internal/motor"
)

func chipMotorDescriptor() config.MotorDescriptor {
	return config.MotorDescriptor{
		Driver: "chip",
		Pins: map[string]int{
			"enable":    2,
			"direction": 3,
			"step":      4,
			"ms0":       5,
			"ms1":       6,
		},
		Microsteps: map[string]config.MicrostepLevel{
			"full": {Factor: 1, Pins: []int{0, 0}},
			"half": {Factor: 2, Pins: []int{1, 0}},
		},
		StepModes: map[string]config.StepModeConfig{
			"soft-full": {Driver: "software", Microstep: "full", Generator: "onespeed", Params: map[string]float64{"steprate": 500}},
			"dma-half":  {Driver: "dma", Microstep: "half", Generator: "onespeed", Params: map[string]float64{"steprate": 4000}},
		},
		HoldStopped: 1.5,
	}
}

func directMotorDescriptor() config.MotorDescriptor {
	return config.MotorDescriptor{
		Driver: "direct",
		Pins: map[string]int{
			"phase0": 10,
			"phase1": 11,
			"phase2": 12,
			"phase3": 13,
		},
		Microsteps: map[string]config.MicrostepLevel{
			"single": {Factor: 1, Pins: nil},
		},
		StepModes: map[string]config.StepModeConfig{
			"run": {Driver: "software", Microstep: "single", Generator: "onespeed", Params: map[string]float64{"steprate": 200}},
		},
	}
}

func TestBuildMotorsChipAndDirect(t *testing.T) {
	cfg := &config.Config{
		Motors: map[string]config.MotorDescriptor{
			"x": chipMotorDescriptor(),
			"y": directMotorDescriptor(),
		},
	}
	provider := hal.NewMockHAL().GPIO()

	motors, err := buildMotors(cfg, provider, nil)
	require.NoError(t, err)
	require.Len(t, motors, 2)

	x := motors["x"]
	require.NotNil(t, x)
	assert.Equal(t, motor.OpStopped, x.OpMode())

	y := motors["y"]
	require.NotNil(t, y)
	assert.Equal(t, motor.OpStopped, y.OpMode())
}

func TestBuildChipDriverMissingPinErrors(t *testing.T) {
	desc := chipMotorDescriptor()
	delete(desc.Pins, "step")
	provider := hal.NewMockHAL().GPIO()

	_, err := buildDriver("x", desc, provider)
	assert.Error(t, err)
}

func TestBuildChipDriverMicrostepPinCountMismatchErrors(t *testing.T) {
	desc := chipMotorDescriptor()
	desc.Microsteps["half"] = config.MicrostepLevel{Factor: 2, Pins: []int{1}} // only 1 value for 2 ms pins
	provider := hal.NewMockHAL().GPIO()

	_, err := buildDriver("x", desc, provider)
	assert.Error(t, err)
}

func TestBuildDirectDriverMissingPhaseErrors(t *testing.T) {
	desc := directMotorDescriptor()
	delete(desc.Pins, "phase2")
	provider := hal.NewMockHAL().GPIO()

	_, err := buildDriver("y", desc, provider)
	assert.Error(t, err)
}

func TestSortedMicrostepPinsOrdersByName(t *testing.T) {
	pins := map[string]int{"ms10": 1, "ms2": 2, "ms1": 3, "enable": 4}
	got := sortedMicrostepPins(pins)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"ms1", "ms10", "ms2"}, []string{got[0].Name, got[1].Name, got[2].Name})
}
