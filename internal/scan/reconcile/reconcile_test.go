package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/rpc"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage/memory"
)

type mockSource struct {
	info    *domain.ReserveInfo
	infoErr error
}

func (m *mockSource) GetHeight(ctx context.Context) (uint64, error) {
	if m.info == nil {
		return 0, errors.New("no info")
	}
	return m.info.Height, nil
}

func (m *mockSource) GetBlock(ctx context.Context, height uint64) (*rpc.Block, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSource) GetTransactions(ctx context.Context, hashes []string) ([]*rpc.RawTransaction, error) {
	return nil, errors.New("not implemented")
}

func (m *mockSource) GetReserveInfo(ctx context.Context) (*domain.ReserveInfo, error) {
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	return m.info, nil
}

func cachedRecord(height uint64, reserveAtoms string) *domain.LedgerRecord {
	return &domain.LedgerRecord{
		BlockHeight:            height,
		ZephInReserveAtoms:     reserveAtoms,
		ZephInReserve:          0,
		ZephusdCircAtoms:       "0",
		ZephrsvCircAtoms:       "0",
		ZyieldCircAtoms:        "0",
		ZsdInYieldReserveAtoms: "0",
	}
}

func liveInfo(nodeHeight uint64, reserveAtoms string) *domain.ReserveInfo {
	return &domain.ReserveInfo{
		Height:               nodeHeight,
		ZephReserveAtoms:     reserveAtoms,
		ZsdCircAtoms:         "0",
		ZrsCircAtoms:         "0",
		ZyieldCircAtoms:      "0",
		ZsdYieldReserveAtoms: "0",
	}
}

func entryByField(t *testing.T, report *domain.ReserveDiffReport, field string) domain.ReserveDiffEntry {
	t.Helper()
	for _, e := range report.Entries {
		if e.Field == field {
			return e
		}
	}
	t.Fatalf("no entry for field %s", field)
	return domain.ReserveDiffEntry{}
}

func TestReconcile_QuantizesBeforeDiffing(t *testing.T) {
	store := memory.NewMemoryStore()
	ctx := context.Background()

	// Cached carries one atom more than the chain reports.
	if err := store.Ledger().Save(ctx, cachedRecord(200, "100000000000001")); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	src := &mockSource{info: liveInfo(201, "100000000000000")}
	eng := New(store, src, Config{})

	report, err := eng.Reconcile(ctx, 200)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if report.Mismatch {
		t.Fatal("unexpected mismatch with aligned live info")
	}
	if report.Source != domain.TruthSourceRPC {
		t.Errorf("source = %s, want rpc", report.Source)
	}

	entry := entryByField(t, report, "zeph_in_reserve")
	if entry.DiffAtoms != "1" {
		t.Errorf("diff = %s atoms, want exactly 1", entry.DiffAtoms)
	}
	if len(report.Diverged(1)) != 0 {
		t.Error("one atom of drift should be within tolerance")
	}
}

func TestReconcile_SnapshotFallback(t *testing.T) {
	store := memory.NewMemoryStore()
	ctx := context.Background()

	if err := store.Ledger().Save(ctx, cachedRecord(200, "5000000000000")); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	// Node has moved past the target; a stored snapshot covers it.
	if err := store.Snapshots().Save(ctx, &domain.ReserveSnapshot{
		ReserveHeight:        201,
		PreviousHeight:       200,
		ZephReserveAtoms:     "7000000000000",
		ZsdCircAtoms:         "0",
		ZrsCircAtoms:         "0",
		ZyieldCircAtoms:      "0",
		ZsdYieldReserveAtoms: "0",
	}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	src := &mockSource{info: liveInfo(500, "9999000000000")}
	eng := New(store, src, Config{})

	report, err := eng.Reconcile(ctx, 200)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if report.Source != domain.TruthSourceSnapshot {
		t.Errorf("source = %s, want snapshot", report.Source)
	}
	if report.TruthHeight != 200 {
		t.Errorf("truth height = %d, want 200", report.TruthHeight)
	}
	entry := entryByField(t, report, "zeph_in_reserve")
	if entry.DiffAtoms != "2000000000000" {
		t.Errorf("diff = %s, want 2000000000000", entry.DiffAtoms)
	}
}

func TestReconcile_NoTruthIsMismatch(t *testing.T) {
	store := memory.NewMemoryStore()
	ctx := context.Background()

	if err := store.Ledger().Save(ctx, cachedRecord(200, "0")); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	src := &mockSource{info: liveInfo(500, "0")}
	eng := New(store, src, Config{})

	report, err := eng.Reconcile(ctx, 200)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !report.Mismatch {
		t.Error("expected mismatch with no usable truth source")
	}
	if len(report.Entries) != 0 {
		t.Errorf("entries = %d, want none on mismatch", len(report.Entries))
	}
}

func TestReconcile_SnapshotFallbackDisabled(t *testing.T) {
	store := memory.NewMemoryStore()
	ctx := context.Background()

	if err := store.Ledger().Save(ctx, cachedRecord(200, "0")); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	if err := store.Snapshots().Save(ctx, &domain.ReserveSnapshot{PreviousHeight: 200}); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
	src := &mockSource{info: liveInfo(500, "0")}
	eng := New(store, src, Config{DisableSnapshotFallback: true})

	report, err := eng.Reconcile(ctx, 200)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !report.Mismatch {
		t.Error("expected mismatch with snapshot fallback disabled")
	}
}

func TestHandleIntegrity_SelfHealsDivergence(t *testing.T) {
	store := memory.NewMemoryStore()
	ctx := context.Background()

	if err := store.Ledger().Save(ctx, cachedRecord(200, "5000000000000")); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	src := &mockSource{info: liveInfo(201, "7000000000000")}
	eng := New(store, src, Config{SnapshotStart: 1000})

	if err := eng.HandleIntegrity(ctx, 200); err != nil {
		t.Fatalf("HandleIntegrity failed: %v", err)
	}

	rec, err := store.Ledger().Get(ctx, 200)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.ZephInReserveAtoms != "7000000000000" {
		t.Errorf("reserve after heal = %s, want on-chain 7000000000000", rec.ZephInReserveAtoms)
	}
	if rec.ZephInReserve != 7.0 {
		t.Errorf("reserve mirror = %v, want 7.0", rec.ZephInReserve)
	}

	// Resolved divergence leaves no outstanding mismatch.
	all, err := store.Mismatches().All(ctx)
	if err != nil {
		t.Fatalf("mismatches: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("outstanding mismatches = %d, want 0 after heal", len(all))
	}
}

func TestHandleIntegrity_RecordsMismatchWithoutTruth(t *testing.T) {
	store := memory.NewMemoryStore()
	ctx := context.Background()

	if err := store.Ledger().Save(ctx, cachedRecord(200, "0")); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	src := &mockSource{info: liveInfo(500, "0")}
	eng := New(store, src, Config{SnapshotStart: 1000})

	if err := eng.HandleIntegrity(ctx, 200); err != nil {
		t.Fatalf("HandleIntegrity failed: %v", err)
	}

	all, _ := store.Mismatches().All(ctx)
	if _, ok := all[200]; !ok {
		t.Error("expected mismatch recorded for height 200")
	}
}

func TestHandleIntegrity_CapturesSnapshotInLockstep(t *testing.T) {
	store := memory.NewMemoryStore()
	ctx := context.Background()

	if err := store.Ledger().Save(ctx, cachedRecord(300, "5000000000000")); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	src := &mockSource{info: liveInfo(301, "5000000000000")}
	eng := New(store, src, Config{SnapshotStart: 100, SnapshotInterval: 100})

	if err := eng.HandleIntegrity(ctx, 300); err != nil {
		t.Fatalf("HandleIntegrity failed: %v", err)
	}

	snap, err := store.Snapshots().GetByPreviousHeight(ctx, 300)
	if err != nil {
		t.Fatalf("snapshot not captured: %v", err)
	}
	if snap.ZephReserveAtoms != "5000000000000" {
		t.Errorf("snapshot reserve = %s, want 5000000000000", snap.ZephReserveAtoms)
	}
	if snap.ZephReserve != 5.0 {
		t.Errorf("snapshot mirror = %v, want 5.0", snap.ZephReserve)
	}

	last, err := store.Snapshots().LastPreviousHeight(ctx)
	if err != nil {
		t.Fatalf("last previous height: %v", err)
	}
	if last != 300 {
		t.Errorf("last previous height = %d, want 300", last)
	}
}

func TestHandleIntegrity_NoSnapshotOffInterval(t *testing.T) {
	store := memory.NewMemoryStore()
	ctx := context.Background()

	if err := store.Ledger().Save(ctx, cachedRecord(150, "0")); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	src := &mockSource{info: liveInfo(151, "0")}
	eng := New(store, src, Config{SnapshotStart: 100, SnapshotInterval: 100})

	if err := eng.HandleIntegrity(ctx, 150); err != nil {
		t.Fatalf("HandleIntegrity failed: %v", err)
	}
	if _, err := store.Snapshots().GetByPreviousHeight(ctx, 150); err == nil {
		t.Error("snapshot captured off interval")
	}
}
