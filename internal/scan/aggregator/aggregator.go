// Package aggregator folds one block's ingested inputs into the running
// protocol ledger.
//
// # Design
//
// A block is aggregated only when its price record, reward split and
// conversion transactions are all stored. The previous block's record
// seeds the running ledger; deltas are applied in integer atoms and the
// derived record is validated before commit. A failed validation rejects
// the block outright: nothing is written and the position stays put.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
	"github.com/zephyrprotocol/zephscan/internal/scan/metrics"
)

// DefaultRecoveryDepth bounds how many missing predecessors AggregateBlock
// will rebuild before giving up.
const DefaultRecoveryDepth = 100

// Config tunes the aggregator.
type Config struct {
	// LaunchHeight is the first aggregated height; its predecessor state
	// is the fixed seed. Defaults to the protocol launch fork.
	LaunchHeight uint64

	// RecoveryDepth bounds predecessor recovery. Defaults to
	// DefaultRecoveryDepth.
	RecoveryDepth int
}

// Aggregator derives ledger records from ingested block inputs.
type Aggregator struct {
	store         storage.Store
	launchHeight  uint64
	recoveryDepth int
}

// New creates an Aggregator on the given store.
func New(store storage.Store, cfg Config) *Aggregator {
	launch := cfg.LaunchHeight
	if launch == 0 {
		launch = domain.HFVersion1Height
	}
	depth := cfg.RecoveryDepth
	if depth <= 0 {
		depth = DefaultRecoveryDepth
	}
	return &Aggregator{store: store, launchHeight: launch, recoveryDepth: depth}
}

// AggregateBlock derives and commits the ledger record for height. When
// predecessor records are missing it rebuilds them first, oldest first,
// up to the recovery depth.
func (a *Aggregator) AggregateBlock(ctx context.Context, height uint64) (*domain.LedgerRecord, error) {
	if height < a.launchHeight {
		return nil, fmt.Errorf("height %d precedes launch height %d", height, a.launchHeight)
	}

	// Worklist of heights whose records must exist, newest first.
	worklist := []uint64{height}
	for {
		h := worklist[len(worklist)-1]
		if h == a.launchHeight {
			break
		}
		_, err := a.store.Ledger().Get(ctx, h-1)
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		if len(worklist) > a.recoveryDepth {
			return nil, &RecoveryExhaustedError{Height: height, Depth: a.recoveryDepth}
		}
		worklist = append(worklist, h-1)
	}

	if len(worklist) > 1 {
		slog.Warn("rebuilding missing predecessor records",
			"height", height, "missing", len(worklist)-1)
	}

	var rec *domain.LedgerRecord
	for i := len(worklist) - 1; i >= 0; i-- {
		var err error
		rec, err = a.aggregateOne(ctx, worklist[i])
		if err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Run aggregates every height in [from, to], committing as it goes.
// Stops at the first unavailable input without error; any other failure
// is returned.
func (a *Aggregator) Run(ctx context.Context, from, to uint64) (uint64, error) {
	done := uint64(0)
	for h := from; h <= to; h++ {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := a.AggregateBlock(ctx, h); err != nil {
			if errors.Is(err, ErrInputUnavailable) {
				return done, nil
			}
			return done, err
		}
		done = h
	}
	return done, nil
}

func (a *Aggregator) aggregateOne(ctx context.Context, height uint64) (*domain.LedgerRecord, error) {
	price, err := a.store.Prices().Get(ctx, height)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("height %d price record: %w", height, ErrInputUnavailable)
	}
	if err != nil {
		return nil, err
	}
	reward, err := a.store.Rewards().Get(ctx, height)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("height %d reward info: %w", height, ErrInputUnavailable)
	}
	if err != nil {
		return nil, err
	}
	txs, err := a.store.Txs().GetByBlock(ctx, height)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("height %d transactions: %w", height, ErrInputUnavailable)
	}
	if err != nil {
		return nil, err
	}

	var prev *domain.LedgerRecord
	if height > a.launchHeight {
		prev, err = a.store.Ledger().Get(ctx, height-1)
		if err != nil {
			return nil, fmt.Errorf("height %d predecessor: %w", height, err)
		}
	}

	rec, err := a.derive(height, price, reward, prev, txs)
	if err != nil {
		if verr := new(ValidationError); errors.As(err, &verr) {
			metrics.BlocksRejected.Inc()
			slog.Error("block rejected by ledger validation",
				"height", verr.Height, "field", verr.Field, "value", verr.Value)
		}
		return nil, err
	}

	if err := a.store.Ledger().Save(ctx, rec); err != nil {
		return nil, err
	}
	if err := a.store.Position().SetAggregatorHeight(ctx, height); err != nil {
		return nil, err
	}
	metrics.BlocksAggregated.Inc()
	metrics.AggregatorHeight.Set(float64(height))
	return rec, nil
}

// derive computes the record without touching the store. Deterministic:
// identical inputs always produce an identical record.
func (a *Aggregator) derive(
	height uint64,
	price *domain.PriceRecord,
	reward *domain.BlockRewardInfo,
	prev *domain.LedgerRecord,
	txs []*domain.ConversionTransaction,
) (*domain.LedgerRecord, error) {
	st, err := newLedgerState(prev)
	if err != nil {
		return nil, err
	}

	rec := &domain.LedgerRecord{
		BlockHeight:    height,
		BlockTimestamp: price.BlockTimestamp,
		Spot:           price.Spot,
		MovingAverage:  price.MovingAverage,
		ReservePrice:   price.ReservePrice,
		ReserveMA:      price.ReserveMA,
		StablePrice:    price.StablePrice,
		StableMA:       price.StableMA,
		YieldPrice:     price.YieldPrice,
	}

	// The block after the audit fork replaces the supplies with the
	// published audit results before anything else is applied.
	if height == domain.AuditHeight+1 {
		if err := st.applyAudit(); err != nil {
			return nil, err
		}
	}

	// Reserve reward enters the backing reserve; the full emission
	// enters ZEPH circulation.
	reserveReward, err := balanceAtoms(reward.ReserveRewardAtoms, reward.ReserveReward)
	if err != nil {
		return nil, err
	}
	st.reserve.Add(st.reserve, reserveReward)

	for _, part := range []struct {
		atoms  string
		mirror float64
	}{
		{reward.MinerRewardAtoms, reward.MinerReward},
		{reward.GovernanceRewardAtoms, reward.GovernanceReward},
		{reward.ReserveRewardAtoms, reward.ReserveReward},
		{reward.YieldRewardAtoms, reward.YieldReward},
	} {
		n, err := balanceAtoms(part.atoms, part.mirror)
		if err != nil {
			return nil, err
		}
		st.zephCirc.Add(st.zephCirc, n)
	}

	for _, tx := range txs {
		if err := a.applyConversion(st, rec, tx); err != nil {
			return nil, err
		}
	}

	// Solvency derivation. Liabilities are the stable supply; the ratio
	// is NaN with no liabilities, by protocol definition.
	st.writeTo(rec)
	rec.Assets = rec.ZephInReserve * rec.Spot
	rec.AssetsMA = rec.ZephInReserve * rec.MovingAverage
	rec.Liabilities = rec.ZephusdCirc
	rec.Equity = rec.Assets - rec.Liabilities
	rec.EquityMA = rec.AssetsMA - rec.Liabilities
	if rec.Liabilities > 0 {
		rec.ReserveRatio = domain.Ratio(rec.Assets / rec.Liabilities)
		rec.ReserveRatioMA = domain.Ratio(rec.AssetsMA / rec.Liabilities)
	} else {
		rec.ReserveRatio = domain.Ratio(math.NaN())
		rec.ReserveRatioMA = domain.Ratio(math.NaN())
	}

	// Yield auto-mint: past activation, a fully collateralized reserve
	// converts the yield reward share into stable asset for the yield
	// reserve, using the daemon's own fixed-point truncation.
	if height >= domain.Version2Height &&
		rec.ReserveRatio.Finite() && float64(rec.ReserveRatio) >= 2 &&
		rec.ReserveRatioMA.Finite() && float64(rec.ReserveRatioMA) >= 2 {
		yieldReward, err := balanceAtoms(reward.YieldRewardAtoms, reward.YieldReward)
		if err != nil {
			return nil, err
		}
		minted := convertZephToZsdAtoms(yieldReward, price.StablePrice, price.StableMA, height)
		if minted.Sign() > 0 {
			st.yieldReserve.Add(st.yieldReserve, minted)
			st.yieldAccrued.Add(st.yieldAccrued, minted)
			st.zsdCirc.Add(st.zsdCirc, minted)
			rec.ZsdMintedForYield = domain.AtomsToFloat(minted)
			// Supply mirrors pick up the mint; the solvency fields above
			// keep their pre-mint values.
			st.writeTo(rec)
		}
	}

	if err := st.validate(height); err != nil {
		return nil, err
	}
	return rec, nil
}

// applyConversion applies one conversion's supply and reserve deltas in
// atoms, recording the per-block counters. Redemptions clamp circulating
// supply at zero and count an anomaly instead of going negative.
func (a *Aggregator) applyConversion(st *ledgerState, rec *domain.LedgerRecord, tx *domain.ConversionTransaction) error {
	from, err := balanceAtoms(tx.FromAmountAtoms, tx.FromAmount)
	if err != nil {
		return fmt.Errorf("tx %s from amount: %w", tx.Hash, err)
	}
	to, err := balanceAtoms(tx.ToAmountAtoms, tx.ToAmount)
	if err != nil {
		return fmt.Errorf("tx %s to amount: %w", tx.Hash, err)
	}

	clamp := func(balance *big.Int, delta *big.Int, field string) {
		if clampSub(balance, delta) {
			metrics.ClampAnomalies.Inc()
			slog.Warn("redemption clamped at zero supply",
				"height", rec.BlockHeight, "tx", tx.Hash, "field", field)
		}
	}

	switch tx.ConversionType {
	case domain.ConversionMintStable:
		rec.ConversionCount++
		rec.MintStableCount++
		rec.MintStableVolume += tx.ToAmount
		rec.FeesZephusd += tx.ConversionFeeAmount
		st.zsdCirc.Add(st.zsdCirc, to)
		st.reserve.Add(st.reserve, from)
	case domain.ConversionRedeemStable:
		rec.ConversionCount++
		rec.RedeemStableCount++
		rec.RedeemStableVolume += tx.FromAmount
		rec.FeesZeph += tx.ConversionFeeAmount
		st.reserve.Sub(st.reserve, to)
		clamp(st.zsdCirc, from, "zephusd_circ")
	case domain.ConversionMintReserve:
		rec.ConversionCount++
		rec.MintReserveCount++
		rec.MintReserveVolume += tx.ToAmount
		rec.FeesZephrsv += tx.ConversionFeeAmount
		st.reserve.Add(st.reserve, from)
		st.zrsCirc.Add(st.zrsCirc, to)
	case domain.ConversionRedeemReserve:
		rec.ConversionCount++
		rec.RedeemReserveCount++
		rec.RedeemReserveVolume += tx.FromAmount
		rec.FeesZeph += tx.ConversionFeeAmount
		st.reserve.Sub(st.reserve, to)
		clamp(st.zrsCirc, from, "zephrsv_circ")
	case domain.ConversionMintYield:
		rec.YieldConversionCount++
		rec.MintYieldCount++
		rec.MintYieldVolume += tx.ToAmount
		rec.FeesZyield += tx.ConversionFeeAmount
		st.zyieldCirc.Add(st.zyieldCirc, to)
		st.yieldReserve.Add(st.yieldReserve, from)
	case domain.ConversionRedeemYield:
		rec.YieldConversionCount++
		rec.RedeemYieldCount++
		rec.RedeemYieldVolume += tx.FromAmount
		rec.FeesZephusdYield += tx.ConversionFeeAmount
		st.yieldReserve.Sub(st.yieldReserve, to)
		clamp(st.zyieldCirc, from, "zyield_circ")
	default:
		slog.Warn("unknown conversion type", "tx", tx.Hash, "type", tx.ConversionType)
	}
	return nil
}

var (
	atomicUnitsSquared = new(big.Int).Mul(
		big.NewInt(domain.AtomicUnits), big.NewInt(domain.AtomicUnits))
	rateGranularity = big.NewInt(10000)
)

// convertZephToZsdAtoms mirrors the daemon's ZEPH to ZSD conversion: the
// exchange rate is the higher of spot and moving-average stable price,
// less the era's conversion fee, truncated to coarse granularity.
func convertZephToZsdAtoms(amount *big.Int, stable, stableMA float64, height uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 {
		return new(big.Int)
	}
	exchange := stable
	if stableMA > exchange {
		exchange = stableMA
	}
	if !(exchange > 0) {
		return new(big.Int)
	}
	exchangeAtoms := domain.QuantizeToAtoms(exchange)
	if exchangeAtoms.Sign() == 0 {
		return new(big.Int)
	}

	rate := new(big.Int).Quo(atomicUnitsSquared, exchangeAtoms)
	feeDivisor := big.NewInt(50)
	if height >= domain.ArtemisHeight {
		feeDivisor = big.NewInt(1000)
	}
	rate.Sub(rate, new(big.Int).Quo(rate, feeDivisor))
	rate.Sub(rate, new(big.Int).Rem(rate, rateGranularity))

	minted := new(big.Int).Mul(amount, rate)
	return minted.Quo(minted, big.NewInt(domain.AtomicUnits))
}
