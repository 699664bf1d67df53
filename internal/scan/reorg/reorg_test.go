package reorg

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/rpc"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage/memory"
)

const tsBase = uint64(1700000000)

func ts(height uint64) uint64 { return tsBase + height*120 }

type mockChain struct {
	hashes map[uint64]string
}

func (m *mockChain) GetHeight(ctx context.Context) (uint64, error) {
	return 0, errors.New("not implemented")
}

func (m *mockChain) GetBlock(ctx context.Context, height uint64) (*rpc.Block, error) {
	h, ok := m.hashes[height]
	if !ok {
		return nil, fmt.Errorf("no block at height %d", height)
	}
	return &rpc.Block{Height: height, Hash: h, Timestamp: ts(height)}, nil
}

func (m *mockChain) GetTransactions(ctx context.Context, hashes []string) ([]*rpc.RawTransaction, error) {
	return nil, errors.New("not implemented")
}

func (m *mockChain) GetReserveInfo(ctx context.Context) (*domain.ReserveInfo, error) {
	return nil, errors.New("not implemented")
}

// seedChain stores hashes and ledger records for heights [from, to] and
// points the scanner at `to`.
func seedChain(t *testing.T, store storage.Store, from, to uint64) {
	t.Helper()
	ctx := context.Background()
	hashes := make(map[uint64]string)
	var recs []*domain.LedgerRecord
	for h := from; h <= to; h++ {
		hashes[h] = fmt.Sprintf("hash_%d", h)
		recs = append(recs, &domain.LedgerRecord{BlockHeight: h, BlockTimestamp: ts(h)})
	}
	if err := store.Hashes().SaveBatch(ctx, hashes); err != nil {
		t.Fatalf("seed hashes: %v", err)
	}
	if err := store.Ledger().SaveBatch(ctx, recs); err != nil {
		t.Fatalf("seed records: %v", err)
	}
	if err := store.Position().SetAggregatorHeight(ctx, to); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	if err := store.Position().SetState(ctx, domain.ScannerStateScanning); err != nil {
		t.Fatalf("seed state: %v", err)
	}
}

// nodeView mirrors the stored chain but diverges from divergeAt upward.
func nodeView(from, to, divergeAt uint64) *mockChain {
	hashes := make(map[uint64]string)
	for h := from; h <= to; h++ {
		if h >= divergeAt {
			hashes[h] = fmt.Sprintf("hash_%d_forked", h)
		} else {
			hashes[h] = fmt.Sprintf("hash_%d", h)
		}
	}
	return &mockChain{hashes: hashes}
}

func TestCheck_NoReorg(t *testing.T) {
	store := memory.NewMemoryStore()
	seedChain(t, store, 100, 110)
	chain := nodeView(100, 110, 111)

	ctrl := New(store, chain, nil, Config{})
	fork, rolled, err := ctrl.Check(context.Background())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if rolled {
		t.Error("rollback triggered with matching hashes")
	}
	if fork != 110 {
		t.Errorf("fork point = %d, want 110", fork)
	}

	pos, _ := store.Position().Get(context.Background())
	if pos.State != domain.ScannerStateScanning {
		t.Errorf("state = %s, want scanning", pos.State)
	}
}

func TestCheck_DetectsForkAndRollsBack(t *testing.T) {
	store := memory.NewMemoryStore()
	ctx := context.Background()
	seedChain(t, store, 100, 110)
	chain := nodeView(100, 110, 105)

	var replayedFrom uint64
	replay := func(ctx context.Context, from uint64) error {
		replayedFrom = from
		return nil
	}

	ctrl := New(store, chain, replay, Config{})
	fork, rolled, err := ctrl.Check(ctx)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !rolled {
		t.Fatal("expected rollback")
	}
	if fork != 104 {
		t.Errorf("fork point = %d, want 104", fork)
	}
	if replayedFrom != 105 {
		t.Errorf("replay started at %d, want 105", replayedFrom)
	}

	// Everything above the fork point is gone; the fork block survives.
	if _, err := store.Ledger().Get(ctx, 105); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("record 105 survived rollback: %v", err)
	}
	if _, err := store.Ledger().Get(ctx, 104); err != nil {
		t.Errorf("record 104 lost in rollback: %v", err)
	}
	if _, err := store.Hashes().Get(ctx, 105); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("hash 105 survived rollback: %v", err)
	}

	pos, _ := store.Position().Get(ctx)
	if pos.AggregatorHeight != 104 {
		t.Errorf("aggregator height = %d, want 104", pos.AggregatorHeight)
	}
	if pos.State != domain.ScannerStateScanning {
		t.Errorf("state = %s, want scanning after rollback", pos.State)
	}
	rolling, _ := store.Position().RollingBack(ctx)
	if rolling {
		t.Error("rolling-back flag still set after completion")
	}
}

func TestRollback_TruncatesWindowsFromForkTimestamp(t *testing.T) {
	store := memory.NewMemoryStore()
	ctx := context.Background()
	seedChain(t, store, 100, 110)
	chain := nodeView(100, 110, 105)

	forkTS := ts(104)
	early := &domain.WindowAggregate{WindowStart: forkTS - 3600, WindowEnd: forkTS}
	late := &domain.WindowAggregate{WindowStart: forkTS + 3600, WindowEnd: forkTS + 7200}
	if err := store.Windows().SaveSealed(ctx, domain.GranularityHour, early); err != nil {
		t.Fatalf("seed early window: %v", err)
	}
	if err := store.Windows().SaveSealed(ctx, domain.GranularityHour, late); err != nil {
		t.Fatalf("seed late window: %v", err)
	}

	ctrl := New(store, chain, nil, Config{})
	if err := ctrl.Rollback(ctx, 104); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	sealed, err := store.Windows().GetSealedRange(ctx, domain.GranularityHour, 0, forkTS+7200)
	if err != nil {
		t.Fatalf("sealed range: %v", err)
	}
	if len(sealed) != 1 {
		t.Fatalf("sealed windows = %d, want 1", len(sealed))
	}
	if sealed[0].WindowStart != early.WindowStart {
		t.Errorf("surviving window start = %d, want %d", sealed[0].WindowStart, early.WindowStart)
	}
}

func TestRollback_RefusesWhileInProgress(t *testing.T) {
	store := memory.NewMemoryStore()
	ctx := context.Background()
	seedChain(t, store, 100, 110)
	if err := store.Position().SetRollingBack(ctx, true); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	ctrl := New(store, nodeView(100, 110, 105), nil, Config{})
	if err := ctrl.Rollback(ctx, 104); err == nil {
		t.Fatal("expected second rollback to be refused")
	}
}

func TestRollback_ClearsFlagOnReplayFailure(t *testing.T) {
	store := memory.NewMemoryStore()
	ctx := context.Background()
	seedChain(t, store, 100, 110)

	replay := func(ctx context.Context, from uint64) error {
		return errors.New("daemon gone")
	}
	ctrl := New(store, nodeView(100, 110, 105), replay, Config{})

	if err := ctrl.Rollback(ctx, 104); err == nil {
		t.Fatal("expected replay error to surface")
	}
	rolling, _ := store.Position().RollingBack(ctx)
	if rolling {
		t.Error("rolling-back flag still set after failed rollback")
	}
}

func TestFindForkPoint_Exhausted(t *testing.T) {
	store := memory.NewMemoryStore()
	seedChain(t, store, 100, 110)
	chain := nodeView(100, 110, 0) // node disagrees everywhere

	ctrl := New(store, chain, nil, Config{MaxDepth: 5})
	_, err := ctrl.FindForkPoint(context.Background(), 110)
	var ferr *ForkNotFoundError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected ForkNotFoundError, got %v", err)
	}
	if ferr.Depth != 5 {
		t.Errorf("depth = %d, want 5", ferr.Depth)
	}
}
