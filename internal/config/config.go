package config

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/pootle/pisteppers/internal/errs"
)

// Config is the top-level JSON descriptor: one entry per motor plus the
// group's wave limits and the logger's settings.
type Config struct {
	Motors map[string]MotorDescriptor `mapstructure:"motors"`
	Group  GroupConfig                `mapstructure:"group"`
	Logger LoggerConfig               `mapstructure:"logger"`
}

// MotorDescriptor names a motor's driver kind, pin assignments, microstep
// table, and the set of named step-modes it can run.
type MotorDescriptor struct {
	Driver      string                    `mapstructure:"driver"` // "chip" | "direct"
	Pins        map[string]int            `mapstructure:"pins"`
	Microsteps  map[string]MicrostepLevel `mapstructure:"microsteps"`
	StepModes   map[string]StepModeConfig `mapstructure:"stepmodes"`
	HoldStopped float64                   `mapstructure:"hold_stopped"`
}

// MicrostepLevel is one named row of a motor's microstep table: the
// physical-pulses-per-full-step factor and the pin-value vector that
// selects it.
type MicrostepLevel struct {
	Factor int   `mapstructure:"factor"`
	Pins   []int `mapstructure:"pins"`
}

// StepModeConfig names a generator class, the microstep level it runs at,
// and that generator's own parameters.
type StepModeConfig struct {
	Driver    string             `mapstructure:"driver"` // "software" | "dma"
	Microstep string             `mapstructure:"microstep"`
	Generator string             `mapstructure:"generator"` // "onespeed" | "ramped"
	Params    map[string]float64 `mapstructure:"params"`
}

// GroupConfig carries the scheduler's advisory wave limits.
type GroupConfig struct {
	MaxPulsesPerWave int `mapstructure:"max_pulses_per_wave"`
	MaxWaveMicros    int `mapstructure:"max_wave_micros"`
	MaxPendingWaves  int `mapstructure:"max_pending_waves"`
}

// LoggerConfig mirrors logger.Config's JSON-facing fields.
type LoggerConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	LogFile string `mapstructure:"logfile"`
}

// Load reads the motor/group descriptor from configPath (or the default
// search path) and validates it. A missing mandatory field or a step-mode
// naming an unknown microstep level returns an errs.Configuration error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pisteppers")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath(getConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errs.Wrap(errs.Configuration, "reading config: %v", err)
		}
	}

	v.SetEnvPrefix("PISTEPPERS")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.Configuration, "decoding config: %v", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Watch re-validates the config file on every write and invokes onChange
// with the freshly-reloaded Config. Used to push live wave-limit edits onto
// the group's observable cells without a restart. A reload that fails to
// decode or validate is dropped without calling onChange and is not
// reported; the returned error only covers the initial read.
func Watch(configPath string, onChange func(*Config)) error {
	v := viper.New()
	setDefaults(v)
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("pisteppers")
		v.SetConfigType("json")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errs.Wrap(errs.Configuration, "reading config: %v", err)
		}
	}
	v.OnConfigChange(func(fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			return
		}
		if err := validate(&cfg); err != nil {
			return
		}
		onChange(&cfg)
	})
	v.WatchConfig()
	return nil
}

func validate(cfg *Config) error {
	if len(cfg.Motors) == 0 {
		return errs.Wrap(errs.Configuration, "config declares no motors")
	}
	for name, m := range cfg.Motors {
		if m.Driver != "chip" && m.Driver != "direct" {
			return errs.Wrap(errs.Configuration, "motor %q: unknown driver kind %q", name, m.Driver)
		}
		if len(m.Microsteps) == 0 {
			return errs.Wrap(errs.Configuration, "motor %q: empty microstep table", name)
		}
		for modeName, sm := range m.StepModes {
			if sm.Driver != "software" && sm.Driver != "dma" {
				return errs.Wrap(errs.Configuration, "motor %q step-mode %q: unknown driver mode %q", name, modeName, sm.Driver)
			}
			if _, ok := m.Microsteps[sm.Microstep]; !ok {
				return errs.Wrap(errs.Configuration, "motor %q step-mode %q: unknown microstep level %q", name, modeName, sm.Microstep)
			}
			if sm.Generator != "onespeed" && sm.Generator != "ramped" {
				return errs.Wrap(errs.Configuration, "motor %q step-mode %q: unknown generator class %q", name, modeName, sm.Generator)
			}
			if sm.Generator == "ramped" {
				if sm.Params["start_tps"] > sm.Params["fast_tps"] {
					return errs.Wrap(errs.Configuration, "motor %q step-mode %q: start_tps must be <= fast_tps", name, modeName)
				}
			}
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("group.max_pulses_per_wave", 0) // 0 = take from DmaEngine.MaxPulsesPerWave()
	v.SetDefault("group.max_wave_micros", 500000)
	v.SetDefault("group.max_pending_waves", 3)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.logfile", "")
}

func getConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".pisteppers")
}
