package window

import (
	"context"
	"math"
	"testing"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage/memory"
)

const baseTS = uint64(1700000 * 3600) // hour-aligned

func mkRecord(height, ts uint64, spot float64) *domain.LedgerRecord {
	return &domain.LedgerRecord{
		BlockHeight:     height,
		BlockTimestamp:  ts,
		Spot:            spot,
		ReserveRatio:    domain.Ratio(math.NaN()),
		ReserveRatioMA:  domain.Ratio(math.NaN()),
		ConversionCount: 1,
	}
}

func seedRecords(t *testing.T, store storage.Store, recs []*domain.LedgerRecord) {
	t.Helper()
	ctx := context.Background()
	if err := store.Ledger().SaveBatch(ctx, recs); err != nil {
		t.Fatalf("save records: %v", err)
	}
	max := uint64(0)
	for _, r := range recs {
		if r.BlockHeight > max {
			max = r.BlockHeight
		}
	}
	if err := store.Position().SetAggregatorHeight(ctx, max); err != nil {
		t.Fatalf("set position: %v", err)
	}
}

func TestAggregateWindow_SealsCompleteBucketsKeepsPartialPending(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store)
	ctx := context.Background()

	// Two complete hours of records plus a partial third hour.
	var recs []*domain.LedgerRecord
	h := uint64(1000)
	for ts := baseTS; ts < baseTS+2*3600; ts += 600 {
		recs = append(recs, mkRecord(h, ts, 1.0))
		h++
	}
	recs = append(recs, mkRecord(h, baseTS+2*3600, 1.1))
	recs = append(recs, mkRecord(h+1, baseTS+2*3600+600, 1.2))
	endTS := baseTS + 2*3600 + 600
	seedRecords(t, store, recs)

	if err := agg.AggregateWindow(ctx, baseTS, endTS, domain.GranularityHour); err != nil {
		t.Fatalf("AggregateWindow failed: %v", err)
	}

	sealed, err := store.Windows().GetSealedRange(ctx, domain.GranularityHour, baseTS, endTS)
	if err != nil {
		t.Fatalf("sealed range: %v", err)
	}
	if len(sealed) != 2 {
		t.Fatalf("sealed buckets = %d, want 2", len(sealed))
	}
	for _, s := range sealed {
		if s.Pending {
			t.Errorf("sealed bucket %d still marked pending", s.WindowStart)
		}
	}

	pending, err := store.Windows().GetPending(ctx, domain.GranularityHour)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if !pending.Pending {
		t.Error("pending bucket not marked pending")
	}
	if pending.WindowStart != baseTS+2*3600 {
		t.Errorf("pending start = %d, want %d", pending.WindowStart, baseTS+2*3600)
	}

	pos, _ := store.Position().Get(ctx)
	if pos.HourlySealedUntil != baseTS+2*3600 {
		t.Errorf("sealed-until = %d, want %d", pos.HourlySealedUntil, baseTS+2*3600)
	}
}

func TestAggregateWindow_RerunReplacesOnlyPending(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store)
	ctx := context.Background()

	var recs []*domain.LedgerRecord
	h := uint64(1000)
	for ts := baseTS; ts <= baseTS+3600+600; ts += 600 {
		recs = append(recs, mkRecord(h, ts, 2.0))
		h++
	}
	seedRecords(t, store, recs)
	if err := agg.AggregateWindow(ctx, baseTS, baseTS+3600+600, domain.GranularityHour); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := store.Windows().GetPending(ctx, domain.GranularityHour)
	if err != nil {
		t.Fatalf("pending after first run: %v", err)
	}

	// More blocks arrive inside the pending hour.
	late := mkRecord(h, baseTS+3600+1200, 2.5)
	seedRecords(t, store, []*domain.LedgerRecord{late})
	pos, _ := store.Position().Get(ctx)
	if err := agg.AggregateWindow(ctx, pos.HourlySealedUntil, late.BlockTimestamp, domain.GranularityHour); err != nil {
		t.Fatalf("second run: %v", err)
	}

	second, err := store.Windows().GetPending(ctx, domain.GranularityHour)
	if err != nil {
		t.Fatalf("pending after second run: %v", err)
	}
	if second.WindowStart != first.WindowStart {
		t.Errorf("pending window moved: %d -> %d", first.WindowStart, second.WindowStart)
	}
	if second.Spot.Close != 2.5 {
		t.Errorf("pending close = %v, want 2.5", second.Spot.Close)
	}

	sealed, _ := store.Windows().GetSealedRange(ctx, domain.GranularityHour, baseTS, late.BlockTimestamp)
	if len(sealed) != 1 {
		t.Errorf("sealed buckets = %d, want 1 after rerun", len(sealed))
	}
}

func TestAggregateWindow_OHLCAndCounterFold(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store)
	ctx := context.Background()

	spots := []float64{1.5, 2.5, 0.5, 1.0}
	var recs []*domain.LedgerRecord
	for i, s := range spots {
		recs = append(recs, mkRecord(uint64(100+i), baseTS+uint64(i)*600, s))
	}
	// One record in the next hour so the first bucket seals.
	recs = append(recs, mkRecord(200, baseTS+3600, 9))
	seedRecords(t, store, recs)

	if err := agg.AggregateWindow(ctx, baseTS, baseTS+3600, domain.GranularityHour); err != nil {
		t.Fatalf("AggregateWindow failed: %v", err)
	}

	sealed, err := store.Windows().GetSealedRange(ctx, domain.GranularityHour, baseTS, baseTS)
	if err != nil || len(sealed) != 1 {
		t.Fatalf("sealed = %d (%v), want 1", len(sealed), err)
	}
	got := sealed[0].Spot
	want := domain.OHLC{Open: 1.5, Close: 1.0, High: 2.5, Low: 0.5}
	if got != want {
		t.Errorf("spot OHLC = %+v, want %+v", got, want)
	}
	if sealed[0].ConversionCount != 4 {
		t.Errorf("conversion count = %d, want 4", sealed[0].ConversionCount)
	}
}

func TestAggregateWindow_SkipsNonFiniteRatioSamples(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store)
	ctx := context.Background()

	withRatio := mkRecord(100, baseTS, 1)
	withRatio.ReserveRatio = 4
	withRatio.ReserveRatioMA = 5
	noRatio := mkRecord(101, baseTS+600, 1)
	next := mkRecord(102, baseTS+3600, 1)
	seedRecords(t, store, []*domain.LedgerRecord{withRatio, noRatio, next})

	if err := agg.AggregateWindow(ctx, baseTS, baseTS+3600, domain.GranularityHour); err != nil {
		t.Fatalf("AggregateWindow failed: %v", err)
	}

	sealed, _ := store.Windows().GetSealedRange(ctx, domain.GranularityHour, baseTS, baseTS)
	if len(sealed) != 1 {
		t.Fatalf("sealed = %d, want 1", len(sealed))
	}
	if sealed[0].RatioSamples != 1 {
		t.Errorf("ratio samples = %d, want 1", sealed[0].RatioSamples)
	}
	want := domain.OHLC{Open: 4, Close: 4, High: 4, Low: 4}
	if sealed[0].ReserveRatio != want {
		t.Errorf("ratio OHLC = %+v, want %+v", sealed[0].ReserveRatio, want)
	}
}

func TestAggregateWindow_EmptyBucketsProduceNoAggregate(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store)
	ctx := context.Background()

	// Records in hour 0 and hour 2, nothing in hour 1.
	seedRecords(t, store, []*domain.LedgerRecord{
		mkRecord(100, baseTS, 1),
		mkRecord(101, baseTS+2*3600, 2),
		mkRecord(102, baseTS+3*3600, 3),
	})

	if err := agg.AggregateWindow(ctx, baseTS, baseTS+3*3600, domain.GranularityHour); err != nil {
		t.Fatalf("AggregateWindow failed: %v", err)
	}

	sealed, _ := store.Windows().GetSealedRange(ctx, domain.GranularityHour, baseTS, baseTS+3*3600)
	if len(sealed) != 2 {
		t.Fatalf("sealed = %d, want 2 (empty hour skipped)", len(sealed))
	}
	if sealed[0].WindowStart != baseTS || sealed[1].WindowStart != baseTS+2*3600 {
		t.Errorf("sealed starts = %d, %d", sealed[0].WindowStart, sealed[1].WindowStart)
	}
}
