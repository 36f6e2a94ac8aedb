// cmd/chaos/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gymbooking/internal/chaos"
	"gymbooking/internal/config"
	"gymbooking/internal/observability"
	"gymbooking/internal/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.AppMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.Telemetry.ServiceName + "-chaos",
		Environment: cfg.AppMode,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
	})
	defer func() { _ = shutdown(context.Background()) }()

	engine := chaos.NewEngine(log)
	chaos.NewLab(log).RegisterExperiments(engine)

	held, err := engine.GameDay(ctx, "booking core game day", time.Second)
	if err != nil {
		log.Error("game day interrupted", "error", err)
		os.Exit(1)
	}
	if !held {
		log.Error("game day finished with violated hypotheses")
		os.Exit(2)
	}
	log.Info("game day finished, every hypothesis held")
}
