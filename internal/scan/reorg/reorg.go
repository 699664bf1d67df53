// Package reorg detects chain reorganizations and rolls derived state
// back to the fork point.
//
// Detection walks backward from the scanner height comparing stored
// block hashes against the node's current chain; the first height where
// they still agree is the fork point. Rollback truncates everything
// derived above that point, resets the position markers and replays
// forward. The whole sequence runs under a persisted rolling-back flag
// so concurrent cycles and operator commands skip themselves instead of
// interleaving.
package reorg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/rpc"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
	"github.com/zephyrprotocol/zephscan/internal/scan/metrics"
)

// DefaultMaxDepth bounds the backward hash walk.
const DefaultMaxDepth = 100

// ForkNotFoundError means no agreeing hash was found within the walk
// depth. The situation needs an operator decision, not a guessed
// rollback target.
type ForkNotFoundError struct {
	ScanHeight uint64
	Depth      int
}

func (e *ForkNotFoundError) Error() string {
	return fmt.Sprintf("no fork point within %d blocks below height %d", e.Depth, e.ScanHeight)
}

// Replay re-ingests and re-aggregates from the fork point forward, then
// rebuilds totals. Wired in by the runner so this package stays free of
// ingestion dependencies.
type Replay func(ctx context.Context, fromHeight uint64) error

// Config tunes the controller.
type Config struct {
	// MaxDepth bounds the backward hash walk. Defaults to
	// DefaultMaxDepth.
	MaxDepth int
}

// Controller owns the scanner state machine and the rollback sequence.
type Controller struct {
	store    storage.Store
	source   rpc.ChainSource
	replay   Replay
	maxDepth int
}

// New creates a reorg Controller. replay may be nil when only detection
// is wanted.
func New(store storage.Store, source rpc.ChainSource, replay Replay, cfg Config) *Controller {
	depth := cfg.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	return &Controller{store: store, source: source, replay: replay, maxDepth: depth}
}

// FindForkPoint walks backward from scanHeight until a stored hash
// matches the node's hash at the same height. Heights with no stored
// hash are skipped; running out of depth or hitting height zero without
// agreement returns ForkNotFoundError.
func (c *Controller) FindForkPoint(ctx context.Context, scanHeight uint64) (uint64, error) {
	h := scanHeight
	for i := 0; i <= c.maxDepth; i++ {
		stored, err := c.store.Hashes().Get(ctx, h)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return 0, err
		}
		if err == nil {
			blk, err := c.source.GetBlock(ctx, h)
			if err != nil {
				return 0, fmt.Errorf("fetch block %d: %w", h, err)
			}
			if blk.Hash == stored {
				return h, nil
			}
		}
		if h == 0 {
			break
		}
		h--
	}
	return 0, &ForkNotFoundError{ScanHeight: scanHeight, Depth: c.maxDepth}
}

// Check runs one detection pass. Returns the fork point and whether a
// rollback happened.
func (c *Controller) Check(ctx context.Context) (uint64, bool, error) {
	pos, err := c.store.Position().Get(ctx)
	if err != nil {
		return 0, false, err
	}
	if pos.AggregatorHeight == 0 {
		return 0, false, nil
	}

	if err := c.store.Position().SetState(ctx, domain.ScannerStateDetecting); err != nil {
		return 0, false, err
	}

	fork, err := c.FindForkPoint(ctx, pos.AggregatorHeight)
	if err != nil {
		// Leave the state machine consistent before surfacing.
		if serr := c.store.Position().SetState(ctx, domain.ScannerStateScanning); serr != nil {
			slog.Error("state reset failed", "error", serr)
		}
		return 0, false, err
	}

	if fork >= pos.AggregatorHeight {
		return fork, false, c.store.Position().SetState(ctx, domain.ScannerStateScanning)
	}

	metrics.ReorgsDetected.Inc()
	slog.Warn("chain reorganization detected",
		"scan_height", pos.AggregatorHeight, "fork_point", fork,
		"depth", pos.AggregatorHeight-fork)

	if err := c.Rollback(ctx, fork); err != nil {
		return fork, false, err
	}
	return fork, true, nil
}

// Rollback truncates all derived state above forkHeight, resets the
// position markers and replays forward. The rolling-back flag is
// cleared unconditionally, success or not, so a failed rollback never
// wedges the scanner.
func (c *Controller) Rollback(ctx context.Context, forkHeight uint64) (err error) {
	rolling, err := c.store.Position().RollingBack(ctx)
	if err != nil {
		return err
	}
	if rolling {
		return errors.New("rollback already in progress")
	}
	if err := c.store.Position().SetRollingBack(ctx, true); err != nil {
		return err
	}
	defer func() {
		if cerr := c.store.Position().SetRollingBack(ctx, false); cerr != nil && err == nil {
			err = cerr
		}
		if serr := c.store.Position().SetState(ctx, domain.ScannerStateScanning); serr != nil && err == nil {
			err = serr
		}
	}()

	if err := c.store.Position().SetState(ctx, domain.ScannerStateRollingBack); err != nil {
		return err
	}

	forkTS, err := c.forkTimestamp(ctx, forkHeight)
	if err != nil {
		return err
	}

	slog.Info("rolling back derived state", "fork_height", forkHeight, "fork_timestamp", forkTS)

	// Truncation order matters: the ledger and its windows go first so a
	// crash mid-rollback leaves no derived state referencing inputs that
	// are about to disappear.
	if err := c.store.Ledger().DeleteAbove(ctx, forkHeight); err != nil {
		return fmt.Errorf("truncate ledger: %w", err)
	}
	for _, g := range []domain.Granularity{domain.GranularityHour, domain.GranularityDay} {
		if err := c.store.Windows().DeleteFrom(ctx, g, forkTS); err != nil {
			return fmt.Errorf("truncate %s windows: %w", g, err)
		}
	}
	if err := c.store.Prices().DeleteAbove(ctx, forkHeight); err != nil {
		return fmt.Errorf("truncate prices: %w", err)
	}
	if err := c.store.Rewards().DeleteAbove(ctx, forkHeight); err != nil {
		return fmt.Errorf("truncate rewards: %w", err)
	}
	if err := c.store.Txs().DeleteAbove(ctx, forkHeight); err != nil {
		return fmt.Errorf("truncate transactions: %w", err)
	}
	if err := c.store.Hashes().DeleteAbove(ctx, forkHeight); err != nil {
		return fmt.Errorf("truncate hash history: %w", err)
	}

	if err := c.store.Position().Reset(ctx, forkHeight, forkTS); err != nil {
		return fmt.Errorf("reset position: %w", err)
	}

	if c.replay != nil {
		if err := c.replay(ctx, forkHeight+1); err != nil {
			return fmt.Errorf("replay from %d: %w", forkHeight+1, err)
		}
	}

	metrics.RollbacksCompleted.Inc()
	return nil
}

// forkTimestamp resolves the fork block's timestamp, preferring the
// stored record over a node round trip.
func (c *Controller) forkTimestamp(ctx context.Context, forkHeight uint64) (uint64, error) {
	rec, err := c.store.Ledger().Get(ctx, forkHeight)
	if err == nil {
		return rec.BlockTimestamp, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, err
	}
	blk, err := c.source.GetBlock(ctx, forkHeight)
	if err != nil {
		return 0, fmt.Errorf("fork block %d: %w", forkHeight, err)
	}
	return blk.Timestamp, nil
}
