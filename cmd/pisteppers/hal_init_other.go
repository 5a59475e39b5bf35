//go:build !linux
// +build !linux

package main

import (
	"github.com/pootle/pisteppers/internal/hal"
	"github.com/pootle/pisteppers/internal/logger"
)

func initHAL() {
	logger.Get().Info("non-Linux platform detected, using mock HAL")
	hal.SetGlobalHAL(hal.NewMockHAL())
}
