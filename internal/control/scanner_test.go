package control

import (
	"context"
	"testing"
	"time"

	"github.com/zephyrprotocol/zephscan/internal/core/config"
)

func memoryConfig() *config.AppConfig {
	return &config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		Daemon: config.DaemonConfig{URL: "http://127.0.0.1:1", Timeout: time.Second},
		Scan:   config.ScanConfig{Interval: time.Hour},
		Store:  config.StoreConfig{Backend: "memory"},
	}
}

func TestNewScannerMemoryBackend(t *testing.T) {
	app, err := NewScanner(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	if app.Store() == nil || app.Runner() == nil {
		t.Fatal("scanner wired without store or runner")
	}

	// Start with a cancelled context so the loop exits after the first
	// (failing, daemon unreachable) cycle, then shut down cleanly.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.Stop(shutdownCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestOpenStoreMemory(t *testing.T) {
	store, err := OpenStore(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()
	if store.Position() == nil {
		t.Fatal("store has no position repository")
	}
}
