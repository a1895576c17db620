package main

import (
	"context"
	"log"

	"fleetmon/internal/config"
	"fleetmon/internal/monitor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := monitor.BuildLogger(cfg)
	m, err := monitor.New(cfg, logger)
	if err != nil {
		logger.Error("monitor initialization failed", "error", err)
		return
	}

	if err := m.Run(context.Background()); err != nil {
		logger.Error("monitor runtime failed", "error", err)
	}
}
