package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zephyrprotocol/zephscan/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scanner positions, state and outstanding reserve mismatches",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
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

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "MARKER\tVALUE")
	_, _ = fmt.Fprintf(w, "state\t%s\n", pos.State)
	_, _ = fmt.Fprintf(w, "aggregator_height\t%d\n", pos.AggregatorHeight)
	_, _ = fmt.Fprintf(w, "price_height\t%d\n", pos.PriceHeight)
	_, _ = fmt.Fprintf(w, "tx_height\t%d\n", pos.TxHeight)
	_, _ = fmt.Fprintf(w, "hourly_sealed_until\t%d\n", pos.HourlySealedUntil)
	_, _ = fmt.Fprintf(w, "daily_sealed_until\t%d\n", pos.DailySealedUntil)
	_ = w.Flush()

	mismatches, err := store.Mismatches().All(ctx)
	if err != nil {
		slog.Error("Failed to read mismatches", "error", err)
		os.Exit(1)
	}
	if len(mismatches) == 0 {
		fmt.Println("\nNo outstanding reserve mismatches")
		return
	}

	fmt.Printf("\nOutstanding reserve mismatches: %d\n", len(mismatches))
	mw := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(mw, "HEIGHT\tTRUTH\tDIVERGED FIELDS")
	for height, report := range mismatches {
		_, _ = fmt.Fprintf(mw, "%d\t%s\t%d\n", height, report.Source, len(report.Entries))
	}
	_ = mw.Flush()
}
