package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pootle/pisteppers/internal/config"
	"github.com/pootle/pisteppers/internal/dma"
	"github.com/pootle/pisteppers/internal/group"
	"github.com/pootle/pisteppers/internal/hal"
	"github.com/pootle/pisteppers/internal/logger"
	"github.com/pootle/pisteppers/internal/metrics"
	"github.com/pootle/pisteppers/internal/motor"
)

// The software engine has no hardware DMA page to size against, so its
// capacity is a generous fixed budget rather than something read off the
// board; cfg.Group's limits still clamp individual waves below this.
const (
	engineMaxPulses = 10000
	engineMaxMicros = 1_000_000
	engineMaxCBs    = 10000

	metricsSampleInterval = 2 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to pisteppers JSON config (default: ./pisteppers.json or ~/.pisteppers/pisteppers.json)")
	verbose := flag.Bool("v", false, "enable debug logging")
	logFile := flag.String("logfile", "", "path to a rotating log file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("pisteppers: " + err.Error() + "\n")
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Logger.Level
	logCfg.Format = cfg.Logger.Format
	logCfg.LogFile = cfg.Logger.LogFile
	if *verbose {
		logCfg.Level = "debug"
	}
	if *logFile != "" {
		logCfg.LogFile = *logFile
	}
	if err := logger.Init(logCfg); err != nil {
		os.Stderr.WriteString("pisteppers: init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()
	defer logger.Sync()

	initHAL()
	hw, err := hal.GetGlobalHAL()
	if err != nil {
		log.Fatal("no HAL available", zap.Error(err))
	}

	mtx := metrics.NewMetrics()

	motors, err := buildMotors(cfg, hw.GPIO(), mtx)
	if err != nil {
		mtx.IncrementConfigErrors()
		log.Fatal("building motors", zap.Error(err))
	}

	engine := dma.NewSoftEngine(hw.GPIO(), engineMaxPulses, engineMaxMicros, engineMaxCBs)
	grp := group.New(motors, engine, cfg.Group.MaxPulsesPerWave, int64(cfg.Group.MaxWaveMicros), cfg.Group.MaxPendingWaves, mtx)

	if err := config.Watch(*configPath, func(next *config.Config) {
		applyLiveConfig(grp, next)
	}); err != nil {
		log.Warn("config watch disabled", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	sampler := time.NewTicker(metricsSampleInterval)
	defer sampler.Stop()

	log.Info("pisteppers started", zap.Int("motors", len(motors)))

	for {
		select {
		case <-stop:
			log.Info("shutting down")
			grp.CleanStop()
			if err := hw.Close(); err != nil {
				log.Warn("hal close", zap.Error(err))
			}
			return
		case <-sampler.C:
			sampleMetrics(mtx, motors)
		}
	}
}

// applyLiveConfig pushes a reloaded config's wave limits onto the group's
// observable cells without a restart. Motor/pin topology is fixed at
// startup and a change there is ignored until the process is restarted.
func applyLiveConfig(grp *group.Group, cfg *config.Config) {
	log := logger.Get()
	if cfg.Group.MaxPulsesPerWave > 0 {
		if err := grp.SetMaxPulsesPerWave(cfg.Group.MaxPulsesPerWave); err != nil {
			log.Warn("apply max_pulses_per_wave", zap.Error(err))
		}
	}
	if cfg.Group.MaxWaveMicros > 0 {
		if err := grp.SetMaxWaveMicros(int64(cfg.Group.MaxWaveMicros)); err != nil {
			log.Warn("apply max_wave_micros", zap.Error(err))
		}
	}
	if cfg.Group.MaxPendingWaves > 0 {
		if err := grp.SetMaxPendingWaves(cfg.Group.MaxPendingWaves); err != nil {
			log.Warn("apply max_pending_waves", zap.Error(err))
		}
	}
	log.Info("config reloaded")
}

func sampleMetrics(mtx *metrics.Metrics, motors map[string]*motor.Motor) {
	mtx.UpdateSystemMetrics()
	var soft, dmaRunning int64
	for _, m := range motors {
		switch m.OpMode() {
		case motor.OpRunningSoft:
			soft++
		case motor.OpRunningDMA:
			dmaRunning++
		}
	}
	mtx.SetRunning(soft, dmaRunning)
}
