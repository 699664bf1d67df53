package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/zephyrprotocol/zephscan/internal/control"
	"github.com/zephyrprotocol/zephscan/internal/infra/rpc"
	"github.com/zephyrprotocol/zephscan/internal/scan/reorg"
)

var rollbackHeight uint64

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll derived state back to a height; the running scanner replays forward on its next cycle",
	Run:   runRollback,
}

func init() {
	rollbackCmd.Flags().Uint64Var(&rollbackHeight, "height", 0, "height to roll back to (required)")
	_ = rollbackCmd.MarkFlagRequired("height")
	rootCmd.AddCommand(rollbackCmd)
}

func runRollback(cmd *cobra.Command, args []string) {
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
	if rollbackHeight >= pos.AggregatorHeight {
		slog.Error("Rollback target is at or above the current scan height",
			"target", rollbackHeight, "aggregator_height", pos.AggregatorHeight)
		os.Exit(1)
	}

	daemon := rpc.NewClient(cfg.Daemon.URL, cfg.Daemon.Timeout)
	controller := reorg.New(store, daemon, nil, reorg.Config{MaxDepth: cfg.Scan.ReorgDepth})
	if err := controller.Rollback(ctx, rollbackHeight); err != nil {
		slog.Error("Rollback failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Rolled back to height %d; forward replay resumes on the next scan cycle\n", rollbackHeight)
}
