package domain

import "time"

// Granularity selects the window bucket size.
type Granularity string

const (
	GranularityHour Granularity = "hourly"
	GranularityDay  Granularity = "daily"
)

// BucketSeconds returns the bucket width in seconds.
func (g Granularity) BucketSeconds() uint64 {
	if g == GranularityDay {
		return 86400
	}
	return 3600
}

// ChunkSeconds returns how much of a historical range is processed per
// chunk: a week of hourly buckets or a month of daily ones. Bounds memory
// on long replays.
func (g Granularity) ChunkSeconds() uint64 {
	if g == GranularityDay {
		return 30 * 86400
	}
	return 7 * 86400
}

// Duration returns the bucket width as a time.Duration.
func (g Granularity) Duration() time.Duration {
	return time.Duration(g.BucketSeconds()) * time.Second
}

// OHLC holds open/high/low/close for one metric across a bucket.
type OHLC struct {
	Open  float64 `json:"open"`
	Close float64 `json:"close"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
}

// WindowAggregate is one hourly or daily rollup of ledger records.
// Exactly one pending aggregate exists per granularity at a time; it is
// rewritten each cycle until its window closes, then sealed and never
// touched again.
type WindowAggregate struct {
	WindowStart uint64 `json:"window_start"`
	WindowEnd   uint64 `json:"window_end"`
	Pending     bool   `json:"pending"`

	// Prices.
	Spot          OHLC `json:"spot"`
	MovingAverage OHLC `json:"moving_average"`
	ReservePrice  OHLC `json:"reserve"`
	ReserveMA     OHLC `json:"reserve_ma"`
	StablePrice   OHLC `json:"stable"`
	StableMA      OHLC `json:"stable_ma"`
	YieldPrice    OHLC `json:"yield_price"`

	// Reserve balances and circulating supply.
	ZephInReserve     OHLC `json:"zeph_in_reserve"`
	ZsdInYieldReserve OHLC `json:"zsd_in_yield_reserve"`
	ZephCirc          OHLC `json:"zeph_circ"`
	ZephusdCirc       OHLC `json:"zephusd_circ"`
	ZephrsvCirc       OHLC `json:"zephrsv_circ"`
	ZyieldCirc        OHLC `json:"zyield_circ"`

	// Solvency.
	Assets       OHLC `json:"assets"`
	AssetsMA     OHLC `json:"assets_ma"`
	Liabilities  OHLC `json:"liabilities"`
	Equity       OHLC `json:"equity"`
	EquityMA     OHLC `json:"equity_ma"`
	ReserveRatio OHLC `json:"reserve_ratio"`
	RatioMA      OHLC `json:"reserve_ratio_ma"`

	// Number of finite ratio samples folded into ReserveRatio/RatioMA.
	// Zero means every record in the window had undefined liabilities.
	RatioSamples uint64 `json:"reserve_ratio_samples"`

	// Summed per-block counters.
	ConversionCount      uint64  `json:"conversion_transactions_count"`
	YieldConversionCount uint64  `json:"yield_conversion_transactions_count"`
	MintStableCount      uint64  `json:"mint_stable_count"`
	MintStableVolume     float64 `json:"mint_stable_volume"`
	FeesZephusd          float64 `json:"fees_zephusd"`
	RedeemStableCount    uint64  `json:"redeem_stable_count"`
	RedeemStableVolume   float64 `json:"redeem_stable_volume"`
	FeesZeph             float64 `json:"fees_zeph"`
	MintReserveCount     uint64  `json:"mint_reserve_count"`
	MintReserveVolume    float64 `json:"mint_reserve_volume"`
	FeesZephrsv          float64 `json:"fees_zephrsv"`
	RedeemReserveCount   uint64  `json:"redeem_reserve_count"`
	RedeemReserveVolume  float64 `json:"redeem_reserve_volume"`
	MintYieldCount       uint64  `json:"mint_yield_count"`
	MintYieldVolume      float64 `json:"mint_yield_volume"`
	FeesZyield           float64 `json:"fees_zyield"`
	RedeemYieldCount     uint64  `json:"redeem_yield_count"`
	RedeemYieldVolume    float64 `json:"redeem_yield_volume"`
	FeesZephusdYield     float64 `json:"fees_zephusd_yield"`
}
