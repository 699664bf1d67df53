package aggregator

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage/memory"
)

const testLaunch = uint64(100)

func seedInputs(
	t *testing.T,
	store storage.Store,
	height uint64,
	price *domain.PriceRecord,
	reward *domain.BlockRewardInfo,
	txs []*domain.ConversionTransaction,
) {
	t.Helper()
	ctx := context.Background()
	if price == nil {
		price = &domain.PriceRecord{}
	}
	price.BlockHeight = height
	if price.BlockTimestamp == 0 {
		price.BlockTimestamp = 1700000000 + height*120
	}
	if err := store.Prices().SaveBatch(ctx, []*domain.PriceRecord{price}); err != nil {
		t.Fatalf("save price: %v", err)
	}
	if reward == nil {
		reward = &domain.BlockRewardInfo{}
	}
	reward.Height = height
	if err := store.Rewards().SaveBatch(ctx, []*domain.BlockRewardInfo{reward}); err != nil {
		t.Fatalf("save reward: %v", err)
	}
	if err := store.Txs().SaveBlock(ctx, height, txs); err != nil {
		t.Fatalf("save txs: %v", err)
	}
}

func TestAggregateBlock_SeedsFromLaunch(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: testLaunch})
	ctx := context.Background()

	seedInputs(t, store, testLaunch, nil, &domain.BlockRewardInfo{
		MinerRewardAtoms:   "7000000000000",
		ReserveRewardAtoms: "2000000000000",
	}, nil)

	rec, err := agg.AggregateBlock(ctx, testLaunch)
	if err != nil {
		t.Fatalf("AggregateBlock failed: %v", err)
	}

	if rec.ZephInReserveAtoms != "2000000000000" {
		t.Errorf("reserve = %s, want 2000000000000", rec.ZephInReserveAtoms)
	}

	seed, _ := domain.ParseAtoms(domain.SeedZephCirc)
	want := new(big.Int).Add(seed, big.NewInt(9000000000000))
	if rec.ZephCircAtoms != want.String() {
		t.Errorf("zeph circ = %s, want %s", rec.ZephCircAtoms, want)
	}

	pos, err := store.Position().Get(ctx)
	if err != nil {
		t.Fatalf("position: %v", err)
	}
	if pos.AggregatorHeight != testLaunch {
		t.Errorf("aggregator height = %d, want %d", pos.AggregatorHeight, testLaunch)
	}
}

func TestAggregateBlock_BelowLaunchFails(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: testLaunch})

	if _, err := agg.AggregateBlock(context.Background(), testLaunch-1); err == nil {
		t.Fatal("expected error below launch height")
	}
}

func TestAggregateBlock_InputUnavailable(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: testLaunch})

	_, err := agg.AggregateBlock(context.Background(), testLaunch)
	if !errors.Is(err, ErrInputUnavailable) {
		t.Fatalf("expected ErrInputUnavailable, got %v", err)
	}
}

func TestAggregateBlock_IntegerBalancesExact(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: testLaunch})
	ctx := context.Background()

	// Odd atom counts that would drift under float accumulation.
	reserveReward := big.NewInt(1486296260417)
	minerReward := big.NewInt(4458888781251)
	blocks := uint64(200)

	for h := testLaunch; h < testLaunch+blocks; h++ {
		seedInputs(t, store, h, nil, &domain.BlockRewardInfo{
			MinerRewardAtoms:   minerReward.String(),
			ReserveRewardAtoms: reserveReward.String(),
		}, nil)
	}

	last, err := agg.Run(ctx, testLaunch, testLaunch+blocks-1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if last != testLaunch+blocks-1 {
		t.Fatalf("ran to %d, want %d", last, testLaunch+blocks-1)
	}

	rec, err := store.Ledger().Get(ctx, last)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}

	wantReserve := new(big.Int).Mul(reserveReward, big.NewInt(int64(blocks)))
	if rec.ZephInReserveAtoms != wantReserve.String() {
		t.Errorf("reserve after %d blocks = %s, want %s", blocks, rec.ZephInReserveAtoms, wantReserve)
	}

	perBlock := new(big.Int).Add(minerReward, reserveReward)
	wantCirc, _ := domain.ParseAtoms(domain.SeedZephCirc)
	wantCirc.Add(wantCirc, new(big.Int).Mul(perBlock, big.NewInt(int64(blocks))))
	if rec.ZephCircAtoms != wantCirc.String() {
		t.Errorf("zeph circ after %d blocks = %s, want %s", blocks, rec.ZephCircAtoms, wantCirc)
	}
}

func TestAggregateBlock_MintStable(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: testLaunch})
	ctx := context.Background()

	txs := []*domain.ConversionTransaction{{
		Hash:                "tx1",
		BlockHeight:         testLaunch,
		ConversionType:      domain.ConversionMintStable,
		FromAsset:           domain.AssetZeph,
		FromAmount:          1000,
		FromAmountAtoms:     "1000000000000000",
		ToAsset:             domain.AssetZephusd,
		ToAmount:            1500,
		ToAmountAtoms:       "1500000000000000",
		ConversionFeeAmount: 30,
	}}
	seedInputs(t, store, testLaunch, &domain.PriceRecord{Spot: 1.5, MovingAverage: 1.5}, nil, txs)

	rec, err := agg.AggregateBlock(ctx, testLaunch)
	if err != nil {
		t.Fatalf("AggregateBlock failed: %v", err)
	}

	if rec.ZephusdCircAtoms != "1500000000000000" {
		t.Errorf("zsd circ = %s, want 1500000000000000", rec.ZephusdCircAtoms)
	}
	if rec.ZephInReserveAtoms != "1000000000000000" {
		t.Errorf("reserve = %s, want 1000000000000000", rec.ZephInReserveAtoms)
	}
	if rec.ConversionCount != 1 || rec.MintStableCount != 1 {
		t.Errorf("counters = %d/%d, want 1/1", rec.ConversionCount, rec.MintStableCount)
	}
	if rec.MintStableVolume != 1500 {
		t.Errorf("mint volume = %v, want 1500", rec.MintStableVolume)
	}
	if rec.FeesZephusd != 30 {
		t.Errorf("fees = %v, want 30", rec.FeesZephusd)
	}

	// 1000 ZEPH backing 1500 ZSD at spot 1.5 is exactly solvent.
	if got := float64(rec.ReserveRatio); got != 1.0 {
		t.Errorf("reserve ratio = %v, want 1.0", got)
	}
}

func TestAggregateBlock_NoLiabilitiesRatioNaN(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: testLaunch})

	seedInputs(t, store, testLaunch, &domain.PriceRecord{Spot: 2}, &domain.BlockRewardInfo{
		ReserveRewardAtoms: "1000000000000",
	}, nil)

	rec, err := agg.AggregateBlock(context.Background(), testLaunch)
	if err != nil {
		t.Fatalf("AggregateBlock failed: %v", err)
	}
	if rec.ReserveRatio.Finite() {
		t.Errorf("reserve ratio = %v, want NaN with zero liabilities", rec.ReserveRatio)
	}
	if rec.Assets == 0 {
		t.Error("assets should be nonzero with reserve funded")
	}
}

func TestAggregateBlock_RedeemClampsAtZero(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: testLaunch})
	ctx := context.Background()

	// Block 1: fund reserve and mint a small stable supply.
	seedInputs(t, store, testLaunch, nil, nil, []*domain.ConversionTransaction{{
		Hash:            "mint",
		ConversionType:  domain.ConversionMintStable,
		FromAmountAtoms: "5000000000000000",
		ToAmountAtoms:   "1000000000000",
	}})
	if _, err := agg.AggregateBlock(ctx, testLaunch); err != nil {
		t.Fatalf("block 1: %v", err)
	}

	// Block 2: redemption burns more stable than circulates. The supply
	// clamps at zero rather than going negative.
	seedInputs(t, store, testLaunch+1, nil, nil, []*domain.ConversionTransaction{{
		Hash:            "redeem",
		ConversionType:  domain.ConversionRedeemStable,
		FromAmountAtoms: "2000000000000",
		ToAmountAtoms:   "1000000000000",
	}})
	rec, err := agg.AggregateBlock(ctx, testLaunch+1)
	if err != nil {
		t.Fatalf("block 2: %v", err)
	}

	if rec.ZephusdCircAtoms != "0" {
		t.Errorf("zsd circ = %s, want 0 after clamp", rec.ZephusdCircAtoms)
	}
	wantReserve := "4999000000000000"
	if rec.ZephInReserveAtoms != wantReserve {
		t.Errorf("reserve = %s, want %s", rec.ZephInReserveAtoms, wantReserve)
	}
}

func TestAggregateBlock_RejectsNegativeReserve(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: testLaunch})
	ctx := context.Background()

	// Redemption pulls more out of the reserve than it holds. Unlike a
	// supply clamp this is unrecoverable bad input: reject the block.
	seedInputs(t, store, testLaunch, nil, nil, []*domain.ConversionTransaction{{
		Hash:            "bad",
		ConversionType:  domain.ConversionRedeemStable,
		FromAmountAtoms: "1000000000000",
		ToAmountAtoms:   "9000000000000",
	}})

	_, err := agg.AggregateBlock(ctx, testLaunch)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "zeph_in_reserve" {
		t.Errorf("failing field = %s, want zeph_in_reserve", verr.Field)
	}

	// Nothing committed, position untouched.
	if _, err := store.Ledger().Get(ctx, testLaunch); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("record committed despite rejection: %v", err)
	}
	pos, _ := store.Position().Get(ctx)
	if pos.AggregatorHeight != 0 {
		t.Errorf("aggregator height advanced to %d on rejected block", pos.AggregatorHeight)
	}

	// Retry with corrected inputs: the reserve funded, the same height
	// aggregates and the position advances.
	seedInputs(t, store, testLaunch, nil, &domain.BlockRewardInfo{
		ReserveRewardAtoms: "10000000000000",
	}, nil)
	rec, err := agg.AggregateBlock(ctx, testLaunch)
	if err != nil {
		t.Fatalf("retry with corrected inputs failed: %v", err)
	}
	if rec.ZephInReserveAtoms != "10000000000000" {
		t.Errorf("reserve = %s, want 10000000000000", rec.ZephInReserveAtoms)
	}
	pos, _ = store.Position().Get(ctx)
	if pos.AggregatorHeight != testLaunch {
		t.Errorf("aggregator height = %d after retry, want %d", pos.AggregatorHeight, testLaunch)
	}
}

func TestAggregateBlock_Deterministic(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: testLaunch})
	ctx := context.Background()

	seedInputs(t, store, testLaunch, &domain.PriceRecord{Spot: 1.23, MovingAverage: 1.2}, &domain.BlockRewardInfo{
		MinerRewardAtoms:   "123456789",
		ReserveRewardAtoms: "987654321",
	}, []*domain.ConversionTransaction{{
		Hash:            "tx1",
		ConversionType:  domain.ConversionMintReserve,
		FromAmountAtoms: "55555555555",
		ToAmountAtoms:   "44444444444",
	}, {
		Hash:            "tx2",
		ConversionType:  domain.ConversionMintStable,
		FromAmountAtoms: "66666666666",
		ToAmountAtoms:   "77777777777",
	}})

	first, err := agg.AggregateBlock(ctx, testLaunch)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := agg.AggregateBlock(ctx, testLaunch)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if *first != *second {
		t.Errorf("re-aggregation diverged:\n first: %+v\nsecond: %+v", first, second)
	}
}

func TestAggregateBlock_RecoversPredecessors(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: testLaunch})
	ctx := context.Background()

	for h := testLaunch; h <= testLaunch+5; h++ {
		seedInputs(t, store, h, nil, &domain.BlockRewardInfo{
			ReserveRewardAtoms: "1000000000000",
		}, nil)
	}

	// Jump straight to the newest height; the five predecessors are
	// rebuilt first.
	rec, err := agg.AggregateBlock(ctx, testLaunch+5)
	if err != nil {
		t.Fatalf("AggregateBlock failed: %v", err)
	}
	if rec.ZephInReserveAtoms != "6000000000000" {
		t.Errorf("reserve = %s, want 6000000000000", rec.ZephInReserveAtoms)
	}
	if _, err := store.Ledger().Get(ctx, testLaunch+2); err != nil {
		t.Errorf("predecessor record missing: %v", err)
	}
}

func TestAggregateBlock_RecoveryExhausted(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: testLaunch, RecoveryDepth: 3})

	_, err := agg.AggregateBlock(context.Background(), testLaunch+10)
	var rerr *RecoveryExhaustedError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RecoveryExhaustedError, got %v", err)
	}
	if rerr.Depth != 3 {
		t.Errorf("depth = %d, want 3", rerr.Depth)
	}
}

func TestAggregateBlock_AuditReset(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: domain.AuditHeight})
	ctx := context.Background()

	seedInputs(t, store, domain.AuditHeight, nil, nil, nil)
	seedInputs(t, store, domain.AuditHeight+1, nil, nil, nil)

	if _, err := agg.AggregateBlock(ctx, domain.AuditHeight); err != nil {
		t.Fatalf("audit height: %v", err)
	}
	rec, err := agg.AggregateBlock(ctx, domain.AuditHeight+1)
	if err != nil {
		t.Fatalf("audit height + 1: %v", err)
	}

	if rec.ZephCircAtoms != domain.AuditedZephCirc {
		t.Errorf("zeph circ = %s, want audited %s", rec.ZephCircAtoms, domain.AuditedZephCirc)
	}
	if rec.ZephusdCircAtoms != domain.AuditedZephusdCirc {
		t.Errorf("zsd circ = %s, want audited %s", rec.ZephusdCircAtoms, domain.AuditedZephusdCirc)
	}
	if rec.ZephrsvCircAtoms != domain.AuditedZephrsvCirc {
		t.Errorf("zrs circ = %s, want audited %s", rec.ZephrsvCircAtoms, domain.AuditedZephrsvCirc)
	}
	if rec.ZyieldCircAtoms != domain.AuditedZyieldCirc {
		t.Errorf("zyield circ = %s, want audited %s", rec.ZyieldCircAtoms, domain.AuditedZyieldCirc)
	}
}

func TestAggregateBlock_YieldAutoMint(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: domain.Version2Height})
	ctx := context.Background()

	// Heavily overcollateralized: 1000 ZEPH at spot 1.0 backing 100 ZSD.
	seedInputs(t, store, domain.Version2Height,
		&domain.PriceRecord{Spot: 1.0, MovingAverage: 1.0, StablePrice: 0.5, StableMA: 0.4},
		&domain.BlockRewardInfo{YieldRewardAtoms: "1000000000000"},
		[]*domain.ConversionTransaction{{
			Hash:            "mint",
			ConversionType:  domain.ConversionMintStable,
			FromAmountAtoms: "1000000000000000",
			ToAmountAtoms:   "100000000000000",
		}})

	rec, err := agg.AggregateBlock(ctx, domain.Version2Height)
	if err != nil {
		t.Fatalf("AggregateBlock failed: %v", err)
	}

	// Exchange rate 0.5 -> 2 ZSD per ZEPH, less the 0.1% fee.
	wantMinted := "1998000000000"
	if rec.ZsdInYieldReserveAtoms != wantMinted {
		t.Errorf("yield reserve = %s, want %s", rec.ZsdInYieldReserveAtoms, wantMinted)
	}
	if rec.ZsdAccruedFromYieldRewardAtoms != wantMinted {
		t.Errorf("accrued = %s, want %s", rec.ZsdAccruedFromYieldRewardAtoms, wantMinted)
	}
	if rec.ZsdMintedForYield != 1.998 {
		t.Errorf("minted mirror = %v, want 1.998", rec.ZsdMintedForYield)
	}

	wantCirc := new(big.Int).Add(big.NewInt(100000000000000), big.NewInt(1998000000000))
	if rec.ZephusdCircAtoms != wantCirc.String() {
		t.Errorf("zsd circ = %s, want %s", rec.ZephusdCircAtoms, wantCirc)
	}

	// Solvency fields keep their pre-mint values: 1000 ZEPH at spot 1.0
	// against the 100 ZSD circulating before the automint.
	if rec.Liabilities != 100 {
		t.Errorf("liabilities = %v, want pre-mint 100", rec.Liabilities)
	}
	if rec.Equity != 900 {
		t.Errorf("equity = %v, want pre-mint 900", rec.Equity)
	}
	if got := float64(rec.ReserveRatio); got != 10 {
		t.Errorf("reserve ratio = %v, want pre-mint 10", got)
	}
	if rec.ZephusdCirc != 101.998 {
		t.Errorf("zsd circ mirror = %v, want post-mint 101.998", rec.ZephusdCirc)
	}
}

func TestAggregateBlock_NoYieldMintBelowRatio(t *testing.T) {
	store := memory.NewMemoryStore()
	agg := New(store, Config{LaunchHeight: domain.Version2Height})
	ctx := context.Background()

	// 150 ZEPH at spot 1.0 backing 100 ZSD: ratio 1.5, below the gate.
	seedInputs(t, store, domain.Version2Height,
		&domain.PriceRecord{Spot: 1.0, MovingAverage: 1.0, StablePrice: 0.5, StableMA: 0.5},
		&domain.BlockRewardInfo{YieldRewardAtoms: "1000000000000"},
		[]*domain.ConversionTransaction{{
			Hash:            "mint",
			ConversionType:  domain.ConversionMintStable,
			FromAmountAtoms: "150000000000000",
			ToAmountAtoms:   "100000000000000",
		}})

	rec, err := agg.AggregateBlock(ctx, domain.Version2Height)
	if err != nil {
		t.Fatalf("AggregateBlock failed: %v", err)
	}
	if rec.ZsdInYieldReserveAtoms != "0" {
		t.Errorf("yield reserve = %s, want 0 below ratio gate", rec.ZsdInYieldReserveAtoms)
	}
	if rec.ZsdMintedForYield != 0 {
		t.Errorf("minted = %v, want 0", rec.ZsdMintedForYield)
	}
}

func TestConvertZephToZsdAtoms(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		stable   float64
		stableMA float64
		height   uint64
		want     string
	}{
		{
			name:   "post artemis fee",
			amount: "1000000000000", stable: 0.5, stableMA: 0.4,
			height: domain.ArtemisHeight, want: "1998000000000",
		},
		{
			name:   "pre artemis fee",
			amount: "1000000000000", stable: 0.5, stableMA: 0.4,
			height: domain.ArtemisHeight - 1, want: "1960000000000",
		},
		{
			name:   "moving average higher",
			amount: "1000000000000", stable: 0.4, stableMA: 0.5,
			height: domain.ArtemisHeight, want: "1998000000000",
		},
		{
			name:   "rate truncated to granularity",
			amount: "1000000000000", stable: 0.7, stableMA: 0.7,
			height: domain.ArtemisHeight, want: "1427142850000",
		},
		{
			name:   "zero price mints nothing",
			amount: "1000000000000", stable: 0, stableMA: 0,
			height: domain.ArtemisHeight, want: "0",
		},
		{
			name:   "zero amount",
			amount: "0", stable: 0.5, stableMA: 0.5,
			height: domain.ArtemisHeight, want: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := domain.ParseAtoms(tt.amount)
			if err != nil {
				t.Fatalf("parse amount: %v", err)
			}
			got := convertZephToZsdAtoms(amount, tt.stable, tt.stableMA, tt.height)
			if got.String() != tt.want {
				t.Errorf("minted = %s, want %s", got, tt.want)
			}
		})
	}
}
