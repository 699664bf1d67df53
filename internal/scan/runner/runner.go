// Package runner drives the scan pipeline: one periodic cycle that
// detects reorgs, ingests new blocks, aggregates the ledger, rolls up
// windows, reconciles against the chain and retallies totals. Cycles
// never overlap; a cycle that finds the previous one still running
// no-ops.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/rpc"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
	"github.com/zephyrprotocol/zephscan/internal/scan/aggregator"
	"github.com/zephyrprotocol/zephscan/internal/scan/ingest"
	"github.com/zephyrprotocol/zephscan/internal/scan/metrics"
	"github.com/zephyrprotocol/zephscan/internal/scan/reconcile"
	"github.com/zephyrprotocol/zephscan/internal/scan/reorg"
	"github.com/zephyrprotocol/zephscan/internal/scan/window"
)

// DefaultInterval is the pause between scan cycles.
const DefaultInterval = 30 * time.Second

// trailingWindowSeconds bounds the 24h totals rebuild.
const trailingWindowSeconds = 86400

// Config tunes the periodic driver.
type Config struct {
	// Interval between cycle starts. Defaults to DefaultInterval.
	Interval time.Duration

	// StartHeight is where ingestion begins on an empty store. Defaults
	// to the protocol activation height.
	StartHeight uint64

	// ReorgDepth bounds the backward hash walk. Zero means the reorg
	// controller's default.
	ReorgDepth int
}

// Runner owns one scan pipeline end to end.
type Runner struct {
	store     storage.Store
	source    rpc.ChainSource
	scanner   *ingest.Scanner
	blocks    *aggregator.Aggregator
	windows   *window.Aggregator
	integrity *reconcile.Engine
	reorgs    *reorg.Controller

	interval    time.Duration
	startHeight uint64

	inCycle atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// New wires a Runner. The reorg controller is built here so its replay
// path reuses the same scanner and aggregator as the forward path.
func New(store storage.Store, source rpc.ChainSource, scanner *ingest.Scanner,
	blocks *aggregator.Aggregator, windows *window.Aggregator,
	integrity *reconcile.Engine, cfg Config) *Runner {

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StartHeight == 0 {
		cfg.StartHeight = domain.HFVersion1Height
	}

	r := &Runner{
		store:       store,
		source:      source,
		scanner:     scanner,
		blocks:      blocks,
		windows:     windows,
		integrity:   integrity,
		interval:    cfg.Interval,
		startHeight: cfg.StartHeight,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	r.reorgs = reorg.New(store, source, r.replay, reorg.Config{MaxDepth: cfg.ReorgDepth})
	return r
}

// Start runs the cycle loop until ctx is cancelled or Stop is called.
// The first cycle runs immediately.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		defer close(r.done)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.runCycle(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.runCycle(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight cycle to finish.
func (r *Runner) Stop() {
	close(r.stop)
	<-r.done
}

// Status reports the current scanner position.
func (r *Runner) Status(ctx context.Context) (*domain.ScannerPosition, error) {
	return r.store.Position().Get(ctx)
}

func (r *Runner) runCycle(ctx context.Context) {
	if err := r.Cycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scan cycle failed", "error", err)
	}
}

// Cycle runs one pass of the pipeline. Safe to call directly for
// one-shot operator use; concurrent calls beyond the first no-op.
func (r *Runner) Cycle(ctx context.Context) error {
	if !r.inCycle.CompareAndSwap(false, true) {
		slog.Debug("previous cycle still running, skipping")
		return nil
	}
	defer r.inCycle.Store(false)

	paused, err := r.store.Position().Paused(ctx)
	if err != nil {
		return err
	}
	if paused {
		slog.Info("scanner paused, skipping cycle")
		return nil
	}
	rollingBack, err := r.store.Position().RollingBack(ctx)
	if err != nil {
		return err
	}
	if rollingBack {
		slog.Info("rollback in progress, skipping cycle")
		return nil
	}

	pos, err := r.store.Position().Get(ctx)
	if err != nil {
		return err
	}
	if pos.State == domain.ScannerStateInit {
		if err := r.store.Position().SetState(ctx, domain.ScannerStateScanning); err != nil {
			return err
		}
	}

	started := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(started).Seconds())
	}()

	if _, _, err := r.reorgs.Check(ctx); err != nil {
		var fnf *reorg.ForkNotFoundError
		if errors.As(err, &fnf) {
			return fmt.Errorf("reorg unrecoverable, operator action required: %w", err)
		}
		return fmt.Errorf("reorg check: %w", err)
	}

	nodeHeight, err := r.source.GetHeight(ctx)
	if err != nil {
		return fmt.Errorf("get height: %w", err)
	}
	if nodeHeight == 0 {
		return nil
	}
	// The daemon reports block count; the top usable height is one less.
	tip := nodeHeight - 1
	metrics.ChainHeight.Set(float64(tip))
	if tip < r.startHeight {
		return nil
	}

	if err := r.ingest(ctx, tip); err != nil {
		return err
	}

	pos, err = r.store.Position().Get(ctx)
	if err != nil {
		return err
	}
	aggFrom := pos.AggregatorHeight + 1
	if pos.AggregatorHeight == 0 {
		aggFrom = r.startHeight
	}
	// Aggregation never outruns ingestion.
	aggTo := pos.IngestedHeight()
	if aggTo > tip {
		aggTo = tip
	}
	if aggFrom <= aggTo {
		if _, err := r.blocks.Run(ctx, aggFrom, aggTo); err != nil {
			return fmt.Errorf("aggregate: %w", err)
		}
	}

	if err := r.aggregateWindows(ctx); err != nil {
		return err
	}

	pos, err = r.store.Position().Get(ctx)
	if err != nil {
		return err
	}
	if pos.AggregatorHeight > 0 {
		if err := r.integrity.HandleIntegrity(ctx, pos.AggregatorHeight); err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
	}

	if err := r.retallyTotals(ctx); err != nil {
		return fmt.Errorf("retally totals: %w", err)
	}

	slog.Info("scan cycle complete",
		"tip", tip,
		"aggregator_height", pos.AggregatorHeight,
		"elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

func (r *Runner) ingest(ctx context.Context, tip uint64) error {
	pos, err := r.store.Position().Get(ctx)
	if err != nil {
		return err
	}

	priceFrom := pos.PriceHeight + 1
	if pos.PriceHeight == 0 {
		priceFrom = r.startHeight
	}
	if priceFrom <= tip {
		if err := r.scanner.ScanPrices(ctx, priceFrom, tip); err != nil {
			return fmt.Errorf("scan prices: %w", err)
		}
	}

	txFrom := pos.TxHeight + 1
	if pos.TxHeight == 0 {
		txFrom = r.startHeight
	}
	if txFrom <= tip {
		if err := r.scanner.ScanTxs(ctx, txFrom, tip); err != nil {
			return fmt.Errorf("scan txs: %w", err)
		}
	}
	return nil
}

func (r *Runner) aggregateWindows(ctx context.Context) error {
	pos, err := r.store.Position().Get(ctx)
	if err != nil {
		return err
	}
	if pos.AggregatorHeight == 0 {
		return nil
	}
	latest, err := r.store.Ledger().Latest(ctx, pos.AggregatorHeight)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, g := range []domain.Granularity{domain.GranularityHour, domain.GranularityDay} {
		start := pos.HourlySealedUntil
		if g == domain.GranularityDay {
			start = pos.DailySealedUntil
		}
		if start == 0 {
			first, err := r.store.Ledger().Get(ctx, r.startHeight)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			start = first.BlockTimestamp
		}
		if start > latest.BlockTimestamp {
			continue
		}
		if err := r.windows.AggregateWindow(ctx, start, latest.BlockTimestamp, g); err != nil {
			return fmt.Errorf("aggregate %s windows: %w", g, err)
		}
	}
	return nil
}

// replay is handed to the reorg controller: after a rollback it
// re-ingests and re-aggregates forward from the fork point, then
// rebuilds totals so nothing from the abandoned branch survives.
func (r *Runner) replay(ctx context.Context, fromHeight uint64) error {
	nodeHeight, err := r.source.GetHeight(ctx)
	if err != nil {
		return fmt.Errorf("get height: %w", err)
	}
	if nodeHeight == 0 {
		return nil
	}
	tip := nodeHeight - 1
	if fromHeight > tip {
		return nil
	}

	if err := r.scanner.ScanPrices(ctx, fromHeight, tip); err != nil {
		return fmt.Errorf("replay prices: %w", err)
	}
	if err := r.scanner.ScanTxs(ctx, fromHeight, tip); err != nil {
		return fmt.Errorf("replay txs: %w", err)
	}
	if _, err := r.blocks.Run(ctx, fromHeight, tip); err != nil {
		return fmt.Errorf("replay aggregate: %w", err)
	}
	if err := r.aggregateWindows(ctx); err != nil {
		return err
	}
	return r.retallyTotals(ctx)
}

// retallyTotals rebuilds the lifetime and 24h totals from scratch:
// conversion figures from the daily window aggregates, reward figures
// from the stored reward records, trailing figures from the last day of
// ledger records. Never patched incrementally, so a past aggregation
// bug cannot leave permanent drift here.
func (r *Runner) retallyTotals(ctx context.Context) error {
	pos, err := r.store.Position().Get(ctx)
	if err != nil {
		return err
	}
	if pos.AggregatorHeight == 0 {
		return nil
	}
	latest, err := r.store.Ledger().Latest(ctx, pos.AggregatorHeight)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	t := &domain.Totals{}

	days, err := r.store.Windows().GetSealedRange(ctx, domain.GranularityDay, 0, latest.BlockTimestamp)
	if err != nil {
		return err
	}
	for _, d := range days {
		addWindowTotals(t, d)
	}
	pending, err := r.store.Windows().GetPending(ctx, domain.GranularityDay)
	if err == nil {
		addWindowTotals(t, pending)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	rewards, err := r.store.Rewards().GetRange(ctx, r.startHeight, pos.AggregatorHeight)
	if err != nil {
		return err
	}
	miner, governance, reserve, yield := new(big.Int), new(big.Int), new(big.Int), new(big.Int)
	for _, rw := range rewards {
		if err := addAtoms(miner, rw.MinerRewardAtoms); err != nil {
			return fmt.Errorf("reward %d: %w", rw.Height, err)
		}
		if err := addAtoms(governance, rw.GovernanceRewardAtoms); err != nil {
			return fmt.Errorf("reward %d: %w", rw.Height, err)
		}
		if err := addAtoms(reserve, rw.ReserveRewardAtoms); err != nil {
			return fmt.Errorf("reward %d: %w", rw.Height, err)
		}
		if err := addAtoms(yield, rw.YieldRewardAtoms); err != nil {
			return fmt.Errorf("reward %d: %w", rw.Height, err)
		}
	}
	t.MinerReward = domain.AtomsToFloat(miner)
	t.GovernanceReward = domain.AtomsToFloat(governance)
	t.ReserveReward = domain.AtomsToFloat(reserve)
	t.YieldReward = domain.AtomsToFloat(yield)

	mined := new(big.Int).Add(new(big.Int).Add(miner, governance), new(big.Int).Add(reserve, yield))
	t.TotalMined = domain.AtomsToFloat(mined)
	t.TotalAll = t.TotalMined + domain.InitialTreasuryZeph + domain.UnauditableZephMint

	var since uint64
	if latest.BlockTimestamp > trailingWindowSeconds {
		since = latest.BlockTimestamp - trailingWindowSeconds
	}
	recent, err := r.store.Ledger().Range(ctx, since, latest.BlockTimestamp+1, pos.AggregatorHeight)
	if err != nil {
		return err
	}
	for _, rec := range recent {
		t.ConversionCount24h += rec.ConversionCount
		t.MintStableVolume24h += rec.MintStableVolume
		t.RedeemStableVolume24h += rec.RedeemStableVolume
		t.MintReserveVolume24h += rec.MintReserveVolume
		t.RedeemReserveVolume24h += rec.RedeemReserveVolume
		t.MintYieldVolume24h += rec.MintYieldVolume
		t.RedeemYieldVolume24h += rec.RedeemYieldVolume
	}

	return r.store.Totals().Save(ctx, t)
}

func addWindowTotals(t *domain.Totals, w *domain.WindowAggregate) {
	t.ConversionCount += w.ConversionCount
	t.MintStableCount += w.MintStableCount
	t.MintStableVolume += w.MintStableVolume
	t.FeesZephusd += w.FeesZephusd
	t.RedeemStableCount += w.RedeemStableCount
	t.RedeemStableVolume += w.RedeemStableVolume
	t.FeesZeph += w.FeesZeph
	t.MintReserveCount += w.MintReserveCount
	t.MintReserveVolume += w.MintReserveVolume
	t.FeesZephrsv += w.FeesZephrsv
	t.RedeemReserveCount += w.RedeemReserveCount
	t.RedeemReserveVolume += w.RedeemReserveVolume
	t.MintYieldCount += w.MintYieldCount
	t.MintYieldVolume += w.MintYieldVolume
	t.FeesZyield += w.FeesZyield
	t.RedeemYieldCount += w.RedeemYieldCount
	t.RedeemYieldVolume += w.RedeemYieldVolume
	t.FeesZephusdYield += w.FeesZephusdYield
}

func addAtoms(sum *big.Int, atoms string) error {
	v, err := domain.ParseAtoms(atoms)
	if err != nil {
		return err
	}
	sum.Add(sum, v)
	return nil
}
