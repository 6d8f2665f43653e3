// main package for the tts-server
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-server/internal/artifact"
	"github.com/book-expert/tts-server/internal/config"
	"github.com/book-expert/tts-server/internal/csm"
	"github.com/book-expert/tts-server/internal/model"
	"github.com/book-expert/tts-server/internal/readiness"
	"github.com/book-expert/tts-server/internal/server"
	"github.com/book-expert/tts-server/internal/wav"
	"github.com/book-expert/tts-server/internal/weights"
	"github.com/nats-io/nats.go"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "tts-server.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return serve(cfg, finalLog)
}

// serve wires the collaborators together and runs the process lifecycle:
// start the model loader in the background, accept connections immediately,
// and flush remaining audio artifacts before exit.
func serve(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	natsConnection, err := nats.Connect(cfg.Model.NATSURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.Model.NATSURL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := weights.New(jetstreamContext, cfg.Model.Bucket, cfg.Model.CacheDir, log)
	if err != nil {
		return fmt.Errorf("failed to create weight store: %w", err)
	}

	artifactDir, err := os.MkdirTemp("", "tts-server-audio-*")
	if err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	artifacts, err := artifact.NewManager(artifactDir, wav.NewCodec(), log)
	if err != nil {
		return fmt.Errorf("failed to create artifact manager: %w", err)
	}

	engine, err := csm.New(cfg.Model.BinaryPath, log)
	if err != nil {
		return fmt.Errorf("failed to create synthesis engine: %w", err)
	}

	status := readiness.NewStatus()
	loader := model.NewLoader(store, engine, status, cfg.Model.ID, log)

	// The loader runs concurrently with request serving; requests arriving
	// before it finishes are rejected by the readiness gate.
	go loader.Load(ctx)

	srv := server.New(
		server.Options{
			Host:            cfg.Server.Host,
			Port:            cfg.ResolvePort(),
			GenerateTimeout: time.Duration(cfg.Synthesis.TimeoutSeconds) * time.Second,
			AllowedOrigin:   cfg.Server.AllowedOrigin,
		},
		status,
		loader,
		artifacts,
		log,
	)
	srv.Start()

	<-ctx.Done()
	log.System("Shutdown signal received, stopping HTTP server...")

	stopErr := srv.Stop(context.Background())
	if stopErr != nil {
		log.Error("Failed to stop HTTP server cleanly: %v", stopErr)
	}

	// Flush must run to completion before the process exits.
	artifacts.FlushAll()

	return stopErr
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
