// Package window rolls ledger records up into hourly and daily OHLC
// aggregates. Sealed buckets are write-once; the single trailing bucket
// per granularity is rewritten in place until its window closes.
package window

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
)

// Aggregator builds window aggregates from committed ledger records.
type Aggregator struct {
	store storage.Store
}

// New creates a window Aggregator on the given store.
func New(store storage.Store) *Aggregator {
	return &Aggregator{store: store}
}

// AggregateWindow rolls up every ledger record with timestamp in
// [startTS, endTS] into granularity buckets. Buckets whose end falls at
// or before endTS are sealed and advance the seal marker; the bucket
// still in progress at endTS is written to the pending slot. The range
// is walked in bounded chunks so long historical replays stay flat in
// memory.
func (a *Aggregator) AggregateWindow(ctx context.Context, startTS, endTS uint64, g domain.Granularity) error {
	if endTS < startTS {
		return fmt.Errorf("window range inverted: [%d, %d]", startTS, endTS)
	}
	pos, err := a.store.Position().Get(ctx)
	if err != nil {
		return fmt.Errorf("read position: %w", err)
	}
	maxHeight := pos.AggregatorHeight

	bucket := g.BucketSeconds()
	chunk := g.ChunkSeconds()
	sealedCount := 0

	// Chunks start on a bucket boundary so no bucket ever straddles two
	// chunks and gets sealed from a partial view.
	base := startTS - startTS%bucket

	for chunkStart := base; chunkStart <= endTS; chunkStart += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunkEnd := chunkStart + chunk
		if chunkEnd > endTS+1 {
			chunkEnd = endTS + 1
		}
		recs, err := a.store.Ledger().Range(ctx, chunkStart, chunkEnd, maxHeight)
		if err != nil {
			return fmt.Errorf("load records [%d, %d): %w", chunkStart, chunkEnd, err)
		}
		if len(recs) == 0 {
			continue
		}

		// Records arrive ascending by timestamp; cut them into aligned
		// buckets. Empty buckets produce no aggregate.
		i := 0
		for i < len(recs) {
			bucketStart := recs[i].BlockTimestamp - recs[i].BlockTimestamp%bucket
			bucketEnd := bucketStart + bucket
			j := i
			for j < len(recs) && recs[j].BlockTimestamp < bucketEnd {
				j++
			}

			agg := fold(g, bucketStart, recs[i:j])
			if bucketEnd <= endTS {
				agg.Pending = false
				if err := a.store.Windows().SaveSealed(ctx, g, agg); err != nil {
					return fmt.Errorf("seal %s bucket %d: %w", g, bucketStart, err)
				}
				if err := a.store.Position().SetSealedUntil(ctx, g, bucketEnd); err != nil {
					return err
				}
				sealedCount++
			} else {
				agg.Pending = true
				if err := a.store.Windows().SavePending(ctx, g, agg); err != nil {
					return fmt.Errorf("write pending %s bucket %d: %w", g, bucketStart, err)
				}
			}
			i = j
		}
	}

	if sealedCount > 0 {
		slog.Info("sealed window aggregates",
			"granularity", g, "count", sealedCount, "until", endTS)
	}
	return nil
}

// fold derives one aggregate from a bucket's records, already sorted by
// timestamp.
func fold(g domain.Granularity, bucketStart uint64, recs []*domain.LedgerRecord) *domain.WindowAggregate {
	agg := &domain.WindowAggregate{
		WindowStart: bucketStart,
		WindowEnd:   bucketStart + g.BucketSeconds(),
	}

	price := newOHLCAcc()
	priceMA := newOHLCAcc()
	reserveP := newOHLCAcc()
	reserveMA := newOHLCAcc()
	stableP := newOHLCAcc()
	stableMA := newOHLCAcc()
	yieldP := newOHLCAcc()
	zephRes := newOHLCAcc()
	zsdYield := newOHLCAcc()
	zephCirc := newOHLCAcc()
	zsdCirc := newOHLCAcc()
	zrsCirc := newOHLCAcc()
	zysCirc := newOHLCAcc()
	assets := newOHLCAcc()
	assetsMA := newOHLCAcc()
	liab := newOHLCAcc()
	equity := newOHLCAcc()
	equityMA := newOHLCAcc()
	ratio := newOHLCAcc()
	ratioMA := newOHLCAcc()

	for _, r := range recs {
		price.add(r.Spot)
		priceMA.add(r.MovingAverage)
		reserveP.add(r.ReservePrice)
		reserveMA.add(r.ReserveMA)
		stableP.add(r.StablePrice)
		stableMA.add(r.StableMA)
		yieldP.add(r.YieldPrice)
		zephRes.add(r.ZephInReserve)
		zsdYield.add(r.ZsdInYieldReserve)
		zephCirc.add(r.ZephCirc)
		zsdCirc.add(r.ZephusdCirc)
		zrsCirc.add(r.ZephrsvCirc)
		zysCirc.add(r.ZyieldCirc)
		assets.add(r.Assets)
		assetsMA.add(r.AssetsMA)
		liab.add(r.Liabilities)
		equity.add(r.Equity)
		equityMA.add(r.EquityMA)

		// An undefined ratio (no liabilities) is skipped rather than
		// folded in as zero; RatioSamples records how many real samples
		// the OHLC is built from.
		if r.ReserveRatio.Finite() && r.ReserveRatioMA.Finite() {
			ratio.add(float64(r.ReserveRatio))
			ratioMA.add(float64(r.ReserveRatioMA))
			agg.RatioSamples++
		}

		agg.ConversionCount += r.ConversionCount
		agg.YieldConversionCount += r.YieldConversionCount
		agg.MintStableCount += r.MintStableCount
		agg.MintStableVolume += r.MintStableVolume
		agg.FeesZephusd += r.FeesZephusd
		agg.RedeemStableCount += r.RedeemStableCount
		agg.RedeemStableVolume += r.RedeemStableVolume
		agg.FeesZeph += r.FeesZeph
		agg.MintReserveCount += r.MintReserveCount
		agg.MintReserveVolume += r.MintReserveVolume
		agg.FeesZephrsv += r.FeesZephrsv
		agg.RedeemReserveCount += r.RedeemReserveCount
		agg.RedeemReserveVolume += r.RedeemReserveVolume
		agg.MintYieldCount += r.MintYieldCount
		agg.MintYieldVolume += r.MintYieldVolume
		agg.FeesZyield += r.FeesZyield
		agg.RedeemYieldCount += r.RedeemYieldCount
		agg.RedeemYieldVolume += r.RedeemYieldVolume
		agg.FeesZephusdYield += r.FeesZephusdYield
	}

	agg.Spot = price.ohlc()
	agg.MovingAverage = priceMA.ohlc()
	agg.ReservePrice = reserveP.ohlc()
	agg.ReserveMA = reserveMA.ohlc()
	agg.StablePrice = stableP.ohlc()
	agg.StableMA = stableMA.ohlc()
	agg.YieldPrice = yieldP.ohlc()
	agg.ZephInReserve = zephRes.ohlc()
	agg.ZsdInYieldReserve = zsdYield.ohlc()
	agg.ZephCirc = zephCirc.ohlc()
	agg.ZephusdCirc = zsdCirc.ohlc()
	agg.ZephrsvCirc = zrsCirc.ohlc()
	agg.ZyieldCirc = zysCirc.ohlc()
	agg.Assets = assets.ohlc()
	agg.AssetsMA = assetsMA.ohlc()
	agg.Liabilities = liab.ohlc()
	agg.Equity = equity.ohlc()
	agg.EquityMA = equityMA.ohlc()
	agg.ReserveRatio = ratio.ohlc()
	agg.RatioMA = ratioMA.ohlc()
	return agg
}

// ohlcAcc folds samples into an OHLC in arrival order.
type ohlcAcc struct {
	open, close, high, low float64
	seen                   bool
}

func newOHLCAcc() *ohlcAcc {
	return &ohlcAcc{high: math.Inf(-1), low: math.Inf(1)}
}

func (a *ohlcAcc) add(v float64) {
	if !a.seen {
		a.open = v
		a.seen = true
	}
	a.close = v
	if v > a.high {
		a.high = v
	}
	if v < a.low {
		a.low = v
	}
}

func (a *ohlcAcc) ohlc() domain.OHLC {
	if !a.seen {
		return domain.OHLC{}
	}
	return domain.OHLC{Open: a.open, Close: a.close, High: a.high, Low: a.low}
}
