// Package control wires the scanner application together: store
// backend, daemon client, scan pipeline and the metrics server.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/zephyrprotocol/zephscan/internal/core/config"
	redisclient "github.com/zephyrprotocol/zephscan/internal/infra/redis"
	"github.com/zephyrprotocol/zephscan/internal/infra/rpc"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage/memory"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage/postgres"
	"github.com/zephyrprotocol/zephscan/internal/scan/aggregator"
	"github.com/zephyrprotocol/zephscan/internal/scan/ingest"
	"github.com/zephyrprotocol/zephscan/internal/scan/metrics"
	"github.com/zephyrprotocol/zephscan/internal/scan/reconcile"
	"github.com/zephyrprotocol/zephscan/internal/scan/runner"
	"github.com/zephyrprotocol/zephscan/internal/scan/window"
)

// Scanner is the main application struct that manages the scan
// pipeline lifecycle.
type Scanner struct {
	cfg           *config.AppConfig
	store         storage.Store
	runner        *runner.Runner
	metricsServer *metrics.Server
	log           *slog.Logger
}

// OpenStore opens the configured persistence backend.
func OpenStore(ctx context.Context, cfg *config.AppConfig) (storage.Store, error) {
	switch cfg.Store.Backend {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		slog.Info("Using PostgreSQL storage")
		return db, nil
	case "memory":
		slog.Info("Using Memory storage")
		return memory.NewMemoryStore(), nil
	default:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		slog.Info("Using Redis storage")
		return client, nil
	}
}

// NewScanner creates a Scanner instance with all dependencies
// initialized.
func NewScanner(ctx context.Context, cfg *config.AppConfig) (*Scanner, error) {
	// 1. Initialize Storage
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 2. Daemon client
	daemon := rpc.NewClient(cfg.Daemon.URL, cfg.Daemon.Timeout)

	// 3. Pipeline components
	scanner := ingest.New(store, daemon, ingest.Config{
		Concurrency: cfg.Scan.Concurrency,
		ChunkSize:   cfg.Scan.ChunkSize,
	})
	blocks := aggregator.New(store, aggregator.Config{
		LaunchHeight: cfg.Scan.StartHeight,
	})
	windows := window.New(store)
	integrity := reconcile.New(store, daemon, reconcile.Config{
		ToleranceAtoms:          cfg.Reconcile.ToleranceAtoms,
		SnapshotInterval:        cfg.Reconcile.SnapshotInterval,
		SnapshotStart:           cfg.Reconcile.SnapshotStart,
		DisableSnapshotFallback: cfg.Reconcile.DisableSnapshotFallback,
	})

	// 4. Periodic driver
	run := runner.New(store, daemon, scanner, blocks, windows, integrity, runner.Config{
		Interval:    cfg.Scan.Interval,
		StartHeight: cfg.Scan.StartHeight,
		ReorgDepth:  cfg.Scan.ReorgDepth,
	})

	return &Scanner{
		cfg:           cfg,
		store:         store,
		runner:        run,
		metricsServer: metrics.NewServer(run, cfg.Server.Port),
		log:           slog.Default(),
	}, nil
}

// Runner exposes the pipeline driver, mainly for one-shot operator use.
func (s *Scanner) Runner() *runner.Runner { return s.runner }

// Store exposes the opened store for operator tooling.
func (s *Scanner) Store() storage.Store { return s.store }

// Start starts the metrics server and the scan loop.
func (s *Scanner) Start(ctx context.Context) error {
	go func() {
		if err := s.metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Metrics server failed", "error", err)
		}
	}()

	s.log.Info("Starting scanner",
		"daemon", s.cfg.Daemon.URL,
		"backend", s.cfg.Store.Backend,
		"interval", s.cfg.Scan.Interval)
	s.runner.Start(ctx)
	return nil
}

// Stop stops the scanner.
func (s *Scanner) Stop(ctx context.Context) error {
	s.log.Info("Stopping scanner...")

	s.runner.Stop()

	if err := s.store.Close(); err != nil {
		s.log.Warn("Failed to close store", "error", err)
	}
	return s.metricsServer.Stop(ctx)
}
