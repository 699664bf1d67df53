package domain

// Asset tickers as they appear on the wire.
const (
	AssetZeph    = "ZEPH"
	AssetZephusd = "ZEPHUSD"
	AssetZephrsv = "ZEPHRSV"
	AssetZyield  = "ZYIELD"
)

// ConversionType identifies the kind of asset conversion a transaction
// performs.
type ConversionType string

const (
	ConversionMintStable    ConversionType = "mint_stable"
	ConversionRedeemStable  ConversionType = "redeem_stable"
	ConversionMintReserve   ConversionType = "mint_reserve"
	ConversionRedeemReserve ConversionType = "redeem_reserve"
	ConversionMintYield     ConversionType = "mint_yield"
	ConversionRedeemYield   ConversionType = "redeem_yield"
	ConversionNone          ConversionType = "na"
)

// IsYield reports whether the conversion moves the yield asset.
func (c ConversionType) IsYield() bool {
	return c == ConversionMintYield || c == ConversionRedeemYield
}

// ConversionTransaction is one on-chain asset conversion. Immutable once
// written; indexed by hash and by block height.
type ConversionTransaction struct {
	Hash           string `json:"hash"`
	BlockHeight    uint64 `json:"block_height"`
	BlockTimestamp uint64 `json:"block_timestamp"`

	ConversionType ConversionType `json:"conversion_type"`
	ConversionRate float64        `json:"conversion_rate"`

	FromAsset       string  `json:"from_asset"`
	FromAmount      float64 `json:"from_amount"`
	FromAmountAtoms string  `json:"from_amount_atoms"`
	ToAsset         string  `json:"to_asset"`
	ToAmount        float64 `json:"to_amount"`
	ToAmountAtoms   string  `json:"to_amount_atoms"`

	ConversionFeeAsset  string  `json:"conversion_fee_asset"`
	ConversionFeeAmount float64 `json:"conversion_fee_amount"`

	TxFeeAsset  string  `json:"tx_fee_asset"`
	TxFeeAmount float64 `json:"tx_fee_amount"`
	TxFeeAtoms  string  `json:"tx_fee_atoms"`
}
