package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigJSON = `{
  "motors": {
    "x": {
      "driver": "chip",
      "pins": {"enable": 2, "direction": 3, "step": 4, "ms0": 5},
      "microsteps": {
        "full": {"factor": 1, "pins": [0]},
        "half": {"factor": 2, "pins": [1]}
      },
      "stepmodes": {
        "soft-full": {"driver": "software", "microstep": "full", "generator": "onespeed", "params": {"steprate": 500}},
        "dma-half": {"driver": "dma", "microstep": "half", "generator": "ramped", "params": {"start_tps": 100, "fast_tps": 4000, "slope": 500}}
      },
      "hold_stopped": 2.0
    }
  },
  "group": {
    "max_pulses_per_wave": 2000,
    "max_wave_micros": 200000,
    "max_pending_waves": 3
  },
  "logger": {
    "level": "debug",
    "format": "json"
  }
}`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "pisteppers.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), validConfigJSON)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, cfg.Motors, "x")

	m := cfg.Motors["x"]
	assert.Equal(t, "chip", m.Driver)
	assert.Equal(t, 4, m.Pins["step"])
	assert.Equal(t, 2, m.Microsteps["half"].Factor)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 3, cfg.Group.MaxPendingWaves)
}

func TestLoadMissingFileFallsBackToDefaultsAndFailsValidation(t *testing.T) {
	// An absent config at the default search paths isn't fatal; Load falls
	// back to defaults layered over a zero-value Config, which validate
	// then rejects for declaring no motors.
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(orig)

	_, err = Load("")
	assert.Error(t, err, "a config with no motors must fail validation")
}

func TestValidateRejectsEmptyMotors(t *testing.T) {
	err := validate(&Config{})
	assert.Error(t, err)
}

func TestValidateRejectsUnknownDriverKind(t *testing.T) {
	cfg := &Config{Motors: map[string]MotorDescriptor{
		"x": {Driver: "weird", Microsteps: map[string]MicrostepLevel{"full": {Factor: 1}}},
	}}
	assert.Error(t, validate(cfg))
}

func TestValidateRejectsEmptyMicrostepTable(t *testing.T) {
	cfg := &Config{Motors: map[string]MotorDescriptor{
		"x": {Driver: "chip"},
	}}
	assert.Error(t, validate(cfg))
}

func TestValidateRejectsStepModeWithUnknownMicrostepLevel(t *testing.T) {
	cfg := &Config{Motors: map[string]MotorDescriptor{
		"x": {
			Driver:     "chip",
			Microsteps: map[string]MicrostepLevel{"full": {Factor: 1}},
			StepModes: map[string]StepModeConfig{
				"run": {Driver: "software", Microstep: "nope", Generator: "onespeed", Params: map[string]float64{"steprate": 1}},
			},
		},
	}}
	assert.Error(t, validate(cfg))
}

func TestValidateRejectsRampedStartFasterThanFast(t *testing.T) {
	cfg := &Config{Motors: map[string]MotorDescriptor{
		"x": {
			Driver:     "chip",
			Microsteps: map[string]MicrostepLevel{"full": {Factor: 1}},
			StepModes: map[string]StepModeConfig{
				"run": {
					Driver: "dma", Microstep: "full", Generator: "ramped",
					Params: map[string]float64{"start_tps": 5000, "fast_tps": 1000},
				},
			},
		},
	}}
	assert.Error(t, validate(cfg))
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &Config{Motors: map[string]MotorDescriptor{
		"x": {
			Driver:     "direct",
			Microsteps: map[string]MicrostepLevel{"single": {Factor: 1}},
			StepModes: map[string]StepModeConfig{
				"run": {Driver: "software", Microstep: "single", Generator: "onespeed", Params: map[string]float64{"steprate": 100}},
			},
		},
	}}
	assert.NoError(t, validate(cfg))
}
