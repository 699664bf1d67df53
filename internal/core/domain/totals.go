package domain

// Totals are protocol-lifetime counters plus 24h trailing figures. They
// are always rebuilt wholesale from sealed daily aggregates and recent
// blocks, never patched incrementally, so a historical aggregation bug
// cannot leave permanent drift here.
type Totals struct {
	MinerReward      float64 `json:"miner_reward"`
	GovernanceReward float64 `json:"governance_reward"`
	ReserveReward    float64 `json:"reserve_reward"`
	YieldReward      float64 `json:"yield_reward"`

	// TotalMined sums the four reward shares; TotalAll adds the genesis
	// treasury and the unattributable early emission on top.
	TotalMined float64 `json:"total_mined"`
	TotalAll   float64 `json:"total_all"`

	ConversionCount     uint64  `json:"conversion_transactions_count"`
	MintStableCount     uint64  `json:"mint_stable_count"`
	MintStableVolume    float64 `json:"mint_stable_volume"`
	FeesZephusd         float64 `json:"fees_zephusd"`
	RedeemStableCount   uint64  `json:"redeem_stable_count"`
	RedeemStableVolume  float64 `json:"redeem_stable_volume"`
	FeesZeph            float64 `json:"fees_zeph"`
	MintReserveCount    uint64  `json:"mint_reserve_count"`
	MintReserveVolume   float64 `json:"mint_reserve_volume"`
	FeesZephrsv         float64 `json:"fees_zephrsv"`
	RedeemReserveCount  uint64  `json:"redeem_reserve_count"`
	RedeemReserveVolume float64 `json:"redeem_reserve_volume"`
	MintYieldCount      uint64  `json:"mint_yield_count"`
	MintYieldVolume     float64 `json:"mint_yield_volume"`
	FeesZyield          float64 `json:"fees_zyield"`
	RedeemYieldCount    uint64  `json:"redeem_yield_count"`
	RedeemYieldVolume   float64 `json:"redeem_yield_volume"`
	FeesZephusdYield    float64 `json:"fees_zephusd_yield"`

	// Trailing 24h, rebuilt from the most recent blocks.
	ConversionCount24h    uint64  `json:"conversion_transactions_count_24h"`
	MintStableVolume24h   float64 `json:"mint_stable_volume_24h"`
	RedeemStableVolume24h float64 `json:"redeem_stable_volume_24h"`
	MintReserveVolume24h  float64 `json:"mint_reserve_volume_24h"`
	RedeemReserveVolume24h float64 `json:"redeem_reserve_volume_24h"`
	MintYieldVolume24h    float64 `json:"mint_yield_volume_24h"`
	RedeemYieldVolume24h  float64 `json:"redeem_yield_volume_24h"`
}
