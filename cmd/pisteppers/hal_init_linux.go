//go:build linux
// +build linux

package main

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/pootle/pisteppers/internal/hal"
	"github.com/pootle/pisteppers/internal/logger"
)

func initHAL() {
	log := logger.Get()
	if runtime.GOARCH == "arm64" || runtime.GOARCH == "arm" {
		rpiHAL, err := hal.NewRaspberryPiHAL()
		if err != nil {
			log.Warn("RPi HAL init failed, using mock HAL", zap.Error(err))
			hal.SetGlobalHAL(hal.NewMockHAL())
			return
		}
		log.Info("raspberry pi HAL initialized",
			zap.String("board", rpiHAL.Info().Name),
			zap.String("gpio_chip", rpiHAL.Info().GPIOChip))
		hal.SetGlobalHAL(rpiHAL)
	} else {
		log.Info("non-ARM platform detected, using mock HAL")
		hal.SetGlobalHAL(hal.NewMockHAL())
	}
}
