// Package storage defines the persistence contract for the scanner.
//
// # Design
//
// A single Store interface exposes one repository per stored entity.
// Two durable implementations exist (redis key-value, postgres
// relational) plus an in-memory one for tests; which one backs a given
// deployment is decided once at startup, never branched on in business
// logic. All balances cross this boundary as atom strings with float
// mirrors; the atom string is authoritative.
package storage

import (
	"context"
	"errors"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// LedgerRepository stores per-block ledger records.
type LedgerRepository interface {
	// Save upserts one record keyed by height.
	Save(ctx context.Context, rec *domain.LedgerRecord) error

	// SaveBatch upserts many records in one round trip.
	SaveBatch(ctx context.Context, recs []*domain.LedgerRecord) error

	// Get retrieves the record for a height.
	Get(ctx context.Context, height uint64) (*domain.LedgerRecord, error)

	// Latest retrieves the highest-height record at or below the given
	// height.
	Latest(ctx context.Context, maxHeight uint64) (*domain.LedgerRecord, error)

	// Range retrieves records whose timestamp falls in [startTS, endTS),
	// ascending by timestamp. maxHeight bounds the walk.
	Range(ctx context.Context, startTS, endTS, maxHeight uint64) ([]*domain.LedgerRecord, error)

	// DeleteAbove removes every record with height > height.
	DeleteAbove(ctx context.Context, height uint64) error
}

// PriceRepository stores per-block oracle price records.
type PriceRepository interface {
	SaveBatch(ctx context.Context, recs []*domain.PriceRecord) error
	Get(ctx context.Context, height uint64) (*domain.PriceRecord, error)
	DeleteAbove(ctx context.Context, height uint64) error
}

// RewardRepository stores per-block reward splits.
type RewardRepository interface {
	SaveBatch(ctx context.Context, infos []*domain.BlockRewardInfo) error
	Get(ctx context.Context, height uint64) (*domain.BlockRewardInfo, error)
	// GetRange retrieves rewards for [from, to] inclusive, skipping
	// missing heights.
	GetRange(ctx context.Context, from, to uint64) ([]*domain.BlockRewardInfo, error)
	DeleteAbove(ctx context.Context, height uint64) error
}

// TxRepository stores conversion transactions, indexed by hash and by
// block height.
type TxRepository interface {
	// SaveBlock stores the block's transactions and its height index in
	// one operation. An empty slice still writes the index entry so the
	// aggregator can tell "scanned, no conversions" from "not scanned".
	SaveBlock(ctx context.Context, height uint64, txs []*domain.ConversionTransaction) error

	GetByBlock(ctx context.Context, height uint64) ([]*domain.ConversionTransaction, error)
	GetByHash(ctx context.Context, hash string) (*domain.ConversionTransaction, error)
	DeleteAbove(ctx context.Context, height uint64) error
}

// HashRepository stores the chain-hash history used for reorg detection.
type HashRepository interface {
	SaveBatch(ctx context.Context, hashes map[uint64]string) error
	Get(ctx context.Context, height uint64) (string, error)
	DeleteAbove(ctx context.Context, height uint64) error
}

// WindowRepository stores sealed window aggregates plus the single
// pending aggregate per granularity.
type WindowRepository interface {
	// SaveSealed writes a sealed aggregate keyed (scored) by its window
	// start. Write-once: sealing the same window twice overwrites with
	// identical content.
	SaveSealed(ctx context.Context, g domain.Granularity, agg *domain.WindowAggregate) error

	// SavePending overwrites the pending slot for the granularity.
	SavePending(ctx context.Context, g domain.Granularity, agg *domain.WindowAggregate) error

	// GetPending retrieves the pending aggregate, ErrNotFound when the
	// slot is empty.
	GetPending(ctx context.Context, g domain.Granularity) (*domain.WindowAggregate, error)

	// GetSealedRange retrieves sealed aggregates with window start in
	// [startTS, endTS], ascending.
	GetSealedRange(ctx context.Context, g domain.Granularity, startTS, endTS uint64) ([]*domain.WindowAggregate, error)

	// DeleteFrom removes sealed aggregates with window start >= ts and
	// clears the pending slot. Used by rollback.
	DeleteFrom(ctx context.Context, g domain.Granularity, ts uint64) error
}

// SnapshotRepository stores periodic reserve snapshots keyed by the
// height preceding the node's reported height.
type SnapshotRepository interface {
	Save(ctx context.Context, snap *domain.ReserveSnapshot) error
	GetByPreviousHeight(ctx context.Context, height uint64) (*domain.ReserveSnapshot, error)
	LastPreviousHeight(ctx context.Context) (uint64, error)
	// PruneBefore removes snapshots with previous height < height.
	// Operator tooling only; nothing calls it automatically.
	PruneBefore(ctx context.Context, height uint64) error
}

// MismatchRepository tracks heights with outstanding reconciliation
// divergence.
type MismatchRepository interface {
	Record(ctx context.Context, height uint64, report *domain.ReserveDiffReport) error
	Clear(ctx context.Context, height uint64) error
	All(ctx context.Context) (map[uint64]*domain.ReserveDiffReport, error)
}

// PositionRepository stores the scanner position markers and the two
// process-coordination flags.
type PositionRepository interface {
	Get(ctx context.Context) (*domain.ScannerPosition, error)

	SetAggregatorHeight(ctx context.Context, height uint64) error
	SetPriceHeight(ctx context.Context, height uint64) error
	SetTxHeight(ctx context.Context, height uint64) error
	SetSealedUntil(ctx context.Context, g domain.Granularity, ts uint64) error
	SetState(ctx context.Context, state domain.ScannerState) error

	// Reset rewrites every position marker in one step. Used by rollback
	// and by operator resets.
	Reset(ctx context.Context, height, windowTS uint64) error

	SetRollingBack(ctx context.Context, on bool) error
	RollingBack(ctx context.Context) (bool, error)
	SetPaused(ctx context.Context, on bool) error
	Paused(ctx context.Context) (bool, error)
}

// TotalsRepository stores the wholesale-rebuilt lifetime totals.
type TotalsRepository interface {
	Save(ctx context.Context, t *domain.Totals) error
	Get(ctx context.Context) (*domain.Totals, error)
}

// Store bundles every repository behind one startup-selected backend.
type Store interface {
	Ledger() LedgerRepository
	Prices() PriceRepository
	Rewards() RewardRepository
	Txs() TxRepository
	Hashes() HashRepository
	Windows() WindowRepository
	Snapshots() SnapshotRepository
	Mismatches() MismatchRepository
	Position() PositionRepository
	Totals() TotalsRepository

	Close() error
}
