package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/zephyrprotocol/zephscan/internal/control"
	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
)

var resetScope string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe derived state so the scanner rebuilds from scratch",
	Long: `reset wipes scanner state. Scope "aggregation" drops ledger records and
window aggregates but keeps the ingested chain data (prices, rewards,
transactions, hashes); scope "full" drops everything.`,
	Run: runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetScope, "scope", "aggregation", "reset scope: aggregation or full")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) {
	if resetScope != "aggregation" && resetScope != "full" {
		fmt.Printf("Unknown scope %q, want aggregation or full\n", resetScope)
		os.Exit(1)
	}

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

	// Respect an in-progress rollback rather than interleave with it.
	rollingBack, err := store.Position().RollingBack(ctx)
	if err != nil {
		slog.Error("Failed to read rollback flag", "error", err)
		os.Exit(1)
	}
	if rollingBack {
		slog.Error("Rollback in progress, refusing to reset")
		os.Exit(1)
	}

	if err := reset(ctx, store, resetScope == "full"); err != nil {
		slog.Error("Reset failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Reset complete (scope %s)\n", resetScope)
}

func reset(ctx context.Context, store storage.Store, full bool) error {
	if err := store.Ledger().DeleteAbove(ctx, 0); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	for _, g := range []domain.Granularity{domain.GranularityHour, domain.GranularityDay} {
		if err := store.Windows().DeleteFrom(ctx, g, 0); err != nil {
			return fmt.Errorf("%s windows: %w", g, err)
		}
	}
	if full {
		if err := store.Prices().DeleteAbove(ctx, 0); err != nil {
			return fmt.Errorf("prices: %w", err)
		}
		if err := store.Rewards().DeleteAbove(ctx, 0); err != nil {
			return fmt.Errorf("rewards: %w", err)
		}
		if err := store.Txs().DeleteAbove(ctx, 0); err != nil {
			return fmt.Errorf("txs: %w", err)
		}
		if err := store.Hashes().DeleteAbove(ctx, 0); err != nil {
			return fmt.Errorf("hashes: %w", err)
		}
		if err := store.Position().Reset(ctx, 0, 0); err != nil {
			return fmt.Errorf("position: %w", err)
		}
		return nil
	}
	// Aggregation scope keeps the ingestion markers so nothing is
	// re-fetched from the daemon.
	if err := store.Position().SetAggregatorHeight(ctx, 0); err != nil {
		return fmt.Errorf("position: %w", err)
	}
	for _, g := range []domain.Granularity{domain.GranularityHour, domain.GranularityDay} {
		if err := store.Position().SetSealedUntil(ctx, g, 0); err != nil {
			return fmt.Errorf("position: %w", err)
		}
	}
	return nil
}
