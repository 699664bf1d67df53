package domain

// LedgerRecord is the derived protocol state after one block. The running
// ledger fields carry forward block to block; the conversion counters
// reset every block. Atom strings are authoritative for every balance,
// the float fields are display mirrors recomputed from the atoms.
type LedgerRecord struct {
	BlockHeight    uint64 `json:"block_height"`
	BlockTimestamp uint64 `json:"block_timestamp"`

	// Oracle prices copied from the block's pricing record.
	Spot          float64 `json:"spot"`
	MovingAverage float64 `json:"moving_average"`
	ReservePrice  float64 `json:"reserve"`
	ReserveMA     float64 `json:"reserve_ma"`
	StablePrice   float64 `json:"stable"`
	StableMA      float64 `json:"stable_ma"`
	YieldPrice    float64 `json:"yield_price"`

	// Running ledger.
	ZephInReserve          float64 `json:"zeph_in_reserve"`
	ZephInReserveAtoms     string  `json:"zeph_in_reserve_atoms"`
	ZsdInYieldReserve      float64 `json:"zsd_in_yield_reserve"`
	ZsdInYieldReserveAtoms string  `json:"zsd_in_yield_reserve_atoms"`
	ZephCirc               float64 `json:"zeph_circ"`
	ZephCircAtoms          string  `json:"zeph_circ_atoms"`
	ZephusdCirc            float64 `json:"zephusd_circ"`
	ZephusdCircAtoms       string  `json:"zephusd_circ_atoms"`
	ZephrsvCirc            float64 `json:"zephrsv_circ"`
	ZephrsvCircAtoms       string  `json:"zephrsv_circ_atoms"`
	ZyieldCirc             float64 `json:"zyield_circ"`
	ZyieldCircAtoms        string  `json:"zyield_circ_atoms"`

	// Derived solvency figures.
	Assets         float64 `json:"assets"`
	AssetsMA       float64 `json:"assets_ma"`
	Liabilities    float64 `json:"liabilities"`
	Equity         float64 `json:"equity"`
	EquityMA       float64 `json:"equity_ma"`
	ReserveRatio   Ratio   `json:"reserve_ratio"`
	ReserveRatioMA Ratio   `json:"reserve_ratio_ma"`

	// Cumulative yield accrual.
	ZsdAccruedFromYieldReward      float64 `json:"zsd_accrued_in_yield_reserve_from_yield_reward"`
	ZsdAccruedFromYieldRewardAtoms string  `json:"zsd_accrued_in_yield_reserve_from_yield_reward_atoms"`
	ZsdMintedForYield              float64 `json:"zsd_minted_for_yield"`

	// Per-block conversion counters, reset each block.
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
