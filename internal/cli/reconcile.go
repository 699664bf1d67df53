package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/zephyrprotocol/zephscan/internal/control"
	"github.com/zephyrprotocol/zephscan/internal/infra/rpc"
	"github.com/zephyrprotocol/zephscan/internal/scan/reconcile"
)

var reconcileForce bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Diff the cached ledger against on-chain reserve state",
	Long: `reconcile compares the latest aggregated ledger record against the
daemon's reserve info (falling back to a stored snapshot) and prints the
per-field diff. With --force, divergence beyond tolerance is healed by
overwriting the cached record with the on-chain values.`,
	Run: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileForce, "force", false, "self-heal diverged fields")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	store, err := control.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	pos, err := store.Position().Get(ctx)
	if err != nil {
		slog.Error("Failed to read position", "error", err)
		os.Exit(1)
	}
	if pos.AggregatorHeight == 0 {
		fmt.Println("Nothing aggregated yet")
		return
	}

	daemon := rpc.NewClient(cfg.Daemon.URL, cfg.Daemon.Timeout)
	engine := reconcile.New(store, daemon, reconcile.Config{
		ToleranceAtoms:          cfg.Reconcile.ToleranceAtoms,
		SnapshotInterval:        cfg.Reconcile.SnapshotInterval,
		SnapshotStart:           cfg.Reconcile.SnapshotStart,
		DisableSnapshotFallback: cfg.Reconcile.DisableSnapshotFallback,
	})

	if reconcileForce {
		if err := engine.HandleIntegrity(ctx, pos.AggregatorHeight); err != nil {
			slog.Error("Forced reconciliation failed", "error", err)
			os.Exit(1)
		}
		fmt.Println("Forced reconciliation complete")
		return
	}

	report, err := engine.Reconcile(ctx, pos.AggregatorHeight)
	if err != nil {
		slog.Error("Reconciliation failed", "error", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		slog.Error("Failed to encode report", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
