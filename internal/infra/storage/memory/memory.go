// Package memory provides an in-memory Store. It backs unit tests and
// ad-hoc replays; nothing survives process exit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
)

type MemoryStore struct {
	mu sync.RWMutex

	records   map[uint64]*domain.LedgerRecord
	prices    map[uint64]*domain.PriceRecord
	rewards   map[uint64]*domain.BlockRewardInfo
	txs       map[string]*domain.ConversionTransaction
	txsByBlk  map[uint64][]string
	hashes    map[uint64]string
	sealed    map[domain.Granularity]map[uint64]*domain.WindowAggregate
	pending   map[domain.Granularity]*domain.WindowAggregate
	snapshots map[uint64]*domain.ReserveSnapshot
	lastSnap  uint64
	mismatch  map[uint64]*domain.ReserveDiffReport
	position  domain.ScannerPosition
	rolling   bool
	paused    bool
	totals    *domain.Totals
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[uint64]*domain.LedgerRecord),
		prices:   make(map[uint64]*domain.PriceRecord),
		rewards:  make(map[uint64]*domain.BlockRewardInfo),
		txs:      make(map[string]*domain.ConversionTransaction),
		txsByBlk: make(map[uint64][]string),
		hashes:   make(map[uint64]string),
		sealed: map[domain.Granularity]map[uint64]*domain.WindowAggregate{
			domain.GranularityHour: {},
			domain.GranularityDay:  {},
		},
		pending:   make(map[domain.Granularity]*domain.WindowAggregate),
		snapshots: make(map[uint64]*domain.ReserveSnapshot),
		mismatch:  make(map[uint64]*domain.ReserveDiffReport),
		position:  domain.ScannerPosition{State: domain.ScannerStateInit},
	}
}

func (s *MemoryStore) Ledger() storage.LedgerRepository         { return &ledgerRepo{s} }
func (s *MemoryStore) Prices() storage.PriceRepository          { return &priceRepo{s} }
func (s *MemoryStore) Rewards() storage.RewardRepository        { return &rewardRepo{s} }
func (s *MemoryStore) Txs() storage.TxRepository                { return &txRepo{s} }
func (s *MemoryStore) Hashes() storage.HashRepository           { return &hashRepo{s} }
func (s *MemoryStore) Windows() storage.WindowRepository        { return &windowRepo{s} }
func (s *MemoryStore) Snapshots() storage.SnapshotRepository    { return &snapshotRepo{s} }
func (s *MemoryStore) Mismatches() storage.MismatchRepository   { return &mismatchRepo{s} }
func (s *MemoryStore) Position() storage.PositionRepository     { return &positionRepo{s} }
func (s *MemoryStore) Totals() storage.TotalsRepository         { return &totalsRepo{s} }
func (s *MemoryStore) Close() error                             { return nil }

// -----------------------------------------------------------------------------
// Ledger
// -----------------------------------------------------------------------------

type ledgerRepo struct{ s *MemoryStore }

func (r *ledgerRepo) Save(ctx context.Context, rec *domain.LedgerRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *rec
	r.s.records[rec.BlockHeight] = &cp
	return nil
}

func (r *ledgerRepo) SaveBatch(ctx context.Context, recs []*domain.LedgerRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range recs {
		cp := *rec
		r.s.records[rec.BlockHeight] = &cp
	}
	return nil
}

func (r *ledgerRepo) Get(ctx context.Context, height uint64) (*domain.LedgerRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.records[height]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *ledgerRepo) Latest(ctx context.Context, maxHeight uint64) (*domain.LedgerRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var best *domain.LedgerRecord
	for h, rec := range r.s.records {
		if h > maxHeight {
			continue
		}
		if best == nil || h > best.BlockHeight {
			best = rec
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *ledgerRepo) Range(ctx context.Context, startTS, endTS, maxHeight uint64) ([]*domain.LedgerRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.LedgerRecord
	for h, rec := range r.s.records {
		if h > maxHeight {
			continue
		}
		if rec.BlockTimestamp >= startTS && rec.BlockTimestamp < endTS {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockTimestamp == out[j].BlockTimestamp {
			return out[i].BlockHeight < out[j].BlockHeight
		}
		return out[i].BlockTimestamp < out[j].BlockTimestamp
	})
	return out, nil
}

func (r *ledgerRepo) DeleteAbove(ctx context.Context, height uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h := range r.s.records {
		if h > height {
			delete(r.s.records, h)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Prices
// -----------------------------------------------------------------------------

type priceRepo struct{ s *MemoryStore }

func (r *priceRepo) SaveBatch(ctx context.Context, recs []*domain.PriceRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range recs {
		cp := *rec
		r.s.prices[rec.BlockHeight] = &cp
	}
	return nil
}

func (r *priceRepo) Get(ctx context.Context, height uint64) (*domain.PriceRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rec, ok := r.s.prices[height]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *priceRepo) DeleteAbove(ctx context.Context, height uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h := range r.s.prices {
		if h > height {
			delete(r.s.prices, h)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Rewards
// -----------------------------------------------------------------------------

type rewardRepo struct{ s *MemoryStore }

func (r *rewardRepo) SaveBatch(ctx context.Context, infos []*domain.BlockRewardInfo) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, info := range infos {
		cp := *info
		r.s.rewards[info.Height] = &cp
	}
	return nil
}

func (r *rewardRepo) Get(ctx context.Context, height uint64) (*domain.BlockRewardInfo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	info, ok := r.s.rewards[height]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *info
	return &cp, nil
}

func (r *rewardRepo) GetRange(ctx context.Context, from, to uint64) ([]*domain.BlockRewardInfo, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.BlockRewardInfo
	for h := from; h <= to; h++ {
		if info, ok := r.s.rewards[h]; ok {
			cp := *info
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *rewardRepo) DeleteAbove(ctx context.Context, height uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h := range r.s.rewards {
		if h > height {
			delete(r.s.rewards, h)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

type txRepo struct{ s *MemoryStore }

func (r *txRepo) SaveBlock(ctx context.Context, height uint64, txs []*domain.ConversionTransaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	hashes := make([]string, 0, len(txs))
	for _, tx := range txs {
		cp := *tx
		r.s.txs[tx.Hash] = &cp
		hashes = append(hashes, tx.Hash)
	}
	r.s.txsByBlk[height] = hashes
	return nil
}

func (r *txRepo) GetByBlock(ctx context.Context, height uint64) ([]*domain.ConversionTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	hashes, ok := r.s.txsByBlk[height]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]*domain.ConversionTransaction, 0, len(hashes))
	for _, h := range hashes {
		if tx, ok := r.s.txs[h]; ok {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *txRepo) GetByHash(ctx context.Context, hash string) (*domain.ConversionTransaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	tx, ok := r.s.txs[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *txRepo) DeleteAbove(ctx context.Context, height uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h, hashes := range r.s.txsByBlk {
		if h > height {
			for _, hash := range hashes {
				delete(r.s.txs, hash)
			}
			delete(r.s.txsByBlk, h)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Block hashes
// -----------------------------------------------------------------------------

type hashRepo struct{ s *MemoryStore }

func (r *hashRepo) SaveBatch(ctx context.Context, hashes map[uint64]string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h, hash := range hashes {
		r.s.hashes[h] = hash
	}
	return nil
}

func (r *hashRepo) Get(ctx context.Context, height uint64) (string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	hash, ok := r.s.hashes[height]
	if !ok {
		return "", storage.ErrNotFound
	}
	return hash, nil
}

func (r *hashRepo) DeleteAbove(ctx context.Context, height uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h := range r.s.hashes {
		if h > height {
			delete(r.s.hashes, h)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Windows
// -----------------------------------------------------------------------------

type windowRepo struct{ s *MemoryStore }

func (r *windowRepo) SaveSealed(ctx context.Context, g domain.Granularity, agg *domain.WindowAggregate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *agg
	r.s.sealed[g][agg.WindowStart] = &cp
	return nil
}

func (r *windowRepo) SavePending(ctx context.Context, g domain.Granularity, agg *domain.WindowAggregate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *agg
	r.s.pending[g] = &cp
	return nil
}

func (r *windowRepo) GetPending(ctx context.Context, g domain.Granularity) (*domain.WindowAggregate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	agg, ok := r.s.pending[g]
	if !ok || agg == nil {
		return nil, storage.ErrNotFound
	}
	cp := *agg
	return &cp, nil
}

func (r *windowRepo) GetSealedRange(ctx context.Context, g domain.Granularity, startTS, endTS uint64) ([]*domain.WindowAggregate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.WindowAggregate
	for start, agg := range r.s.sealed[g] {
		if start >= startTS && start <= endTS {
			cp := *agg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WindowStart < out[j].WindowStart })
	return out, nil
}

func (r *windowRepo) DeleteFrom(ctx context.Context, g domain.Granularity, ts uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for start := range r.s.sealed[g] {
		if start >= ts {
			delete(r.s.sealed[g], start)
		}
	}
	delete(r.s.pending, g)
	return nil
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

type snapshotRepo struct{ s *MemoryStore }

func (r *snapshotRepo) Save(ctx context.Context, snap *domain.ReserveSnapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *snap
	r.s.snapshots[snap.PreviousHeight] = &cp
	if snap.PreviousHeight > r.s.lastSnap {
		r.s.lastSnap = snap.PreviousHeight
	}
	return nil
}

func (r *snapshotRepo) GetByPreviousHeight(ctx context.Context, height uint64) (*domain.ReserveSnapshot, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	snap, ok := r.s.snapshots[height]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *snap
	return &cp, nil
}

func (r *snapshotRepo) LastPreviousHeight(ctx context.Context) (uint64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.lastSnap, nil
}

func (r *snapshotRepo) PruneBefore(ctx context.Context, height uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for h := range r.s.snapshots {
		if h < height {
			delete(r.s.snapshots, h)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Mismatches
// -----------------------------------------------------------------------------

type mismatchRepo struct{ s *MemoryStore }

func (r *mismatchRepo) Record(ctx context.Context, height uint64, report *domain.ReserveDiffReport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *report
	r.s.mismatch[height] = &cp
	return nil
}

func (r *mismatchRepo) Clear(ctx context.Context, height uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.mismatch, height)
	return nil
}

func (r *mismatchRepo) All(ctx context.Context) (map[uint64]*domain.ReserveDiffReport, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[uint64]*domain.ReserveDiffReport, len(r.s.mismatch))
	for h, rep := range r.s.mismatch {
		cp := *rep
		out[h] = &cp
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Position
// -----------------------------------------------------------------------------

type positionRepo struct{ s *MemoryStore }

func (r *positionRepo) Get(ctx context.Context) (*domain.ScannerPosition, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	cp := r.s.position
	return &cp, nil
}

func (r *positionRepo) SetAggregatorHeight(ctx context.Context, height uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.position.AggregatorHeight = height
	r.s.position.UpdatedAt = time.Now()
	return nil
}

func (r *positionRepo) SetPriceHeight(ctx context.Context, height uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.position.PriceHeight = height
	r.s.position.UpdatedAt = time.Now()
	return nil
}

func (r *positionRepo) SetTxHeight(ctx context.Context, height uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.position.TxHeight = height
	r.s.position.UpdatedAt = time.Now()
	return nil
}

func (r *positionRepo) SetSealedUntil(ctx context.Context, g domain.Granularity, ts uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if g == domain.GranularityDay {
		r.s.position.DailySealedUntil = ts
	} else {
		r.s.position.HourlySealedUntil = ts
	}
	return nil
}

func (r *positionRepo) SetState(ctx context.Context, state domain.ScannerState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.position.State == state {
		return nil
	}
	if !r.s.position.CanTransition(state) {
		return fmt.Errorf("illegal state transition %s -> %s", r.s.position.State, state)
	}
	r.s.position.State = state
	r.s.position.UpdatedAt = time.Now()
	return nil
}

func (r *positionRepo) Reset(ctx context.Context, height, windowTS uint64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.position.AggregatorHeight = height
	r.s.position.PriceHeight = height
	r.s.position.TxHeight = height
	r.s.position.HourlySealedUntil = windowTS
	r.s.position.DailySealedUntil = windowTS
	r.s.position.UpdatedAt = time.Now()
	return nil
}

func (r *positionRepo) SetRollingBack(ctx context.Context, on bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.rolling = on
	return nil
}

func (r *positionRepo) RollingBack(ctx context.Context) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.rolling, nil
}

func (r *positionRepo) SetPaused(ctx context.Context, on bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.paused = on
	return nil
}

func (r *positionRepo) Paused(ctx context.Context) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.paused, nil
}

// -----------------------------------------------------------------------------
// Totals
// -----------------------------------------------------------------------------

type totalsRepo struct{ s *MemoryStore }

func (r *totalsRepo) Save(ctx context.Context, t *domain.Totals) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *t
	r.s.totals = &cp
	return nil
}

func (r *totalsRepo) Get(ctx context.Context) (*domain.Totals, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if r.s.totals == nil {
		return nil, storage.ErrNotFound
	}
	cp := *r.s.totals
	return &cp, nil
}
