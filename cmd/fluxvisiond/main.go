package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fluxvision/ingest/internal/config"
	"github.com/fluxvision/ingest/internal/coordinator"
	"github.com/fluxvision/ingest/internal/decoder"
	"github.com/fluxvision/ingest/internal/health"
	"github.com/fluxvision/ingest/internal/metrics"
)

const defaultConfigPath = "config/fluxvision.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("starting fluxvision ingest service", "config", *configPath, "debug", *debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	coord := coordinator.New(cfg.ToCoordinatorConfig())

	var framesSeen atomic.Uint64
	coord.SetFrameCallback(func(cameraID string, frame *decoder.Frame) {
		n := framesSeen.Add(1)
		if n%1000 == 0 {
			slog.Debug("frame callback heartbeat", "camera", cameraID, "frames_seen", n)
		}
	})

	for _, cam := range cfg.Cameras {
		sessionCfg, err := cam.ToSessionConfig()
		if err != nil {
			slog.Error("skipping camera with invalid configuration", "camera", cam.ID, "error", err)
			continue
		}
		if err := coord.AddCamera(ctx, sessionCfg); err != nil {
			slog.Error("failed to add camera", "camera", cam.ID, "error", err)
			continue
		}
	}

	healthServer := health.NewServer(cfg.Server.HealthAddr, health.New(coord))
	health.Serve(healthServer)
	slog.Info("health server listening", "addr", cfg.Server.HealthAddr)

	metricsServer := metrics.NewServer(cfg.Server.MetricsAddr, metrics.New(coord))
	metrics.Serve(metricsServer)
	slog.Info("metrics server listening", "addr", cfg.Server.MetricsAddr)

	slog.Info("fluxvision ingest service running", "cameras", coord.CameraCount())

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	case <-ctx.Done():
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutS) * time.Second
	slog.Info("shutting down gracefully", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	coord.Shutdown()
	_ = healthServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	slog.Info("fluxvision ingest service stopped")
}
