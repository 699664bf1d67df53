package config

import (
	"time"

	redisclient "github.com/zephyrprotocol/zephscan/internal/infra/redis"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Daemon    DaemonConfig       `yaml:"daemon"`
	Scan      ScanConfig         `yaml:"scan"`
	Reconcile ReconcileConfig    `yaml:"reconcile"`
	Store     StoreConfig        `yaml:"store"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DaemonConfig holds settings for the Zephyr daemon RPC.
type DaemonConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ScanConfig tunes the scan pipeline.
type ScanConfig struct {
	Interval    time.Duration `yaml:"interval"`
	StartHeight uint64        `yaml:"start_height"` // 0 = protocol activation
	Concurrency int           `yaml:"concurrency"`
	ChunkSize   uint64        `yaml:"chunk_size"`
	ReorgDepth  int           `yaml:"reorg_depth"`
}

// ReconcileConfig tunes the reserve reconciliation engine.
type ReconcileConfig struct {
	ToleranceAtoms          int64  `yaml:"tolerance_atoms"`
	SnapshotInterval        uint64 `yaml:"snapshot_interval"`
	SnapshotStart           uint64 `yaml:"snapshot_start"` // 0 = protocol activation
	DisableSnapshotFallback bool   `yaml:"disable_snapshot_fallback"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // redis, postgres, memory
}
