// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command tcsched-server runs the job and task scheduler's HTTP API.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kristinsson/tcsched/internal/blob"
	"github.com/kristinsson/tcsched/internal/httpapi"
	"github.com/kristinsson/tcsched/internal/jobdb"
	"github.com/kristinsson/tcsched/internal/jobmanager"
	"github.com/kristinsson/tcsched/internal/sweeper"
	"github.com/kristinsson/tcsched/pkg/auth"
	"github.com/kristinsson/tcsched/pkg/config"
	"github.com/kristinsson/tcsched/pkg/logging"
	"github.com/kristinsson/tcsched/pkg/metrics"
)

// version is the server version reported by GET /api/version, overridable
// at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.NewDefault()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logLevel := slog.LevelInfo
	logFormat := logging.FormatJSON
	if cfg.Debug {
		logLevel = slog.LevelDebug
		logFormat = logging.FormatText
	}
	logger := logging.NewLogger(&logging.Config{
		Level:   logLevel,
		Format:  logFormat,
		Output:  os.Stdout,
		Version: version,
	})

	store, err := newBlobStore(cfg)
	if err != nil {
		log.Fatalf("setting up blob store: %v", err)
	}

	db := jobdb.New()
	jobs := jobmanager.New(db, store, logger)
	authenticator := auth.NewLocalAuthenticator()
	collector := metrics.NewInMemoryCollector()

	sweep := sweeper.New(jobs, cfg.SweepInterval, cfg.AllocationTimeout, logger)
	sweep.Start()
	defer sweep.Stop()

	server := httpapi.NewServer(httpapi.Config{
		Jobs:          jobs,
		Authenticator: authenticator,
		LoginSecret:   cfg.LoginSecret,
		Version:       version,
		Logger:        logger,
		Metrics:       collector,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.NewRouter(),
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// newBlobStore selects the disk-backed store when BlobDir is configured,
// falling back to the in-memory store for local development.
func newBlobStore(cfg *config.Config) (blob.Store, error) {
	if cfg.BlobDir == "" {
		return blob.NewMemoryStore(), nil
	}
	return blob.NewDiskStore(cfg.BlobDir)
}
