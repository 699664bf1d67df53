package ingest

import "github.com/zephyrprotocol/zephscan/internal/core/domain"

// conversionPair matches an input asset against the asset minted on the
// output side. Both the long and short ticker spellings appear on the
// wire depending on daemon version.
type conversionPair struct {
	in, out string
	kind    domain.ConversionType
}

var conversionPairs = []conversionPair{
	{"ZEPH", "ZEPHUSD", domain.ConversionMintStable},
	{"ZEPHUSD", "ZEPH", domain.ConversionRedeemStable},
	{"ZEPH", "ZEPHRSV", domain.ConversionMintReserve},
	{"ZEPHRSV", "ZEPH", domain.ConversionRedeemReserve},
	{"ZEPHUSD", "ZYIELD", domain.ConversionMintYield},
	{"ZYIELD", "ZEPHUSD", domain.ConversionRedeemYield},
	{"ZPH", "ZSD", domain.ConversionMintStable},
	{"ZSD", "ZPH", domain.ConversionRedeemStable},
	{"ZPH", "ZRS", domain.ConversionMintReserve},
	{"ZRS", "ZPH", domain.ConversionRedeemReserve},
	{"ZSD", "ZYS", domain.ConversionMintYield},
	{"ZYS", "ZSD", domain.ConversionRedeemYield},
}

// auditPairs are the supply-migration transactions of the ticker
// renaming fork: same asset burnt and reminted under the new symbol.
// They move no value and are excluded from conversion accounting.
var auditPairs = []conversionPair{
	{"ZEPH", "ZPH", domain.ConversionNone},
	{"ZEPHUSD", "ZSD", domain.ConversionNone},
	{"ZEPHRSV", "ZRS", domain.ConversionNone},
	{"ZYIELD", "ZYS", domain.ConversionNone},
}

// classifyConversion maps an input asset and output asset set to a
// conversion type. audit reports a supply-migration transaction.
func classifyConversion(input string, outputs []string) (kind domain.ConversionType, audit bool) {
	has := func(want string) bool {
		for _, o := range outputs {
			if o == want {
				return true
			}
		}
		return false
	}

	for _, p := range conversionPairs {
		if input == p.in && has(p.out) {
			return p.kind, false
		}
	}
	for _, p := range auditPairs {
		if input == p.in && has(p.out) {
			return domain.ConversionNone, true
		}
	}
	return domain.ConversionNone, false
}

// conversionFeeRate is the protocol fee fraction for a conversion kind
// at a height. The schedule changed wholesale at the Artemis fork.
func conversionFeeRate(kind domain.ConversionType, height uint64) float64 {
	artemis := height >= domain.ArtemisHeight
	switch kind {
	case domain.ConversionMintStable, domain.ConversionRedeemStable:
		if artemis {
			return 0.001
		}
		return 0.02
	case domain.ConversionMintReserve:
		if artemis {
			return 0.01
		}
		return 0
	case domain.ConversionRedeemReserve:
		if artemis {
			return 0.01
		}
		return 0.02
	case domain.ConversionMintYield, domain.ConversionRedeemYield:
		return 0.001
	}
	return 0
}

// conversionAssets returns the canonical from/to asset names and the
// conversion rate for a kind, given the pricing record in force.
func conversionAssets(kind domain.ConversionType, pr *domain.PriceRecord) (from, to string, rate float64) {
	switch kind {
	case domain.ConversionMintStable:
		return domain.AssetZeph, domain.AssetZephusd, max(pr.Spot, pr.MovingAverage)
	case domain.ConversionRedeemStable:
		return domain.AssetZephusd, domain.AssetZeph, min(pr.Spot, pr.MovingAverage)
	case domain.ConversionMintReserve:
		return domain.AssetZeph, domain.AssetZephrsv, max(pr.ReservePrice, pr.ReserveMA)
	case domain.ConversionRedeemReserve:
		return domain.AssetZephrsv, domain.AssetZeph, min(pr.ReservePrice, pr.ReserveMA)
	case domain.ConversionMintYield:
		return domain.AssetZephusd, domain.AssetZyield, pr.YieldPrice
	case domain.ConversionRedeemYield:
		return domain.AssetZyield, domain.AssetZephusd, pr.YieldPrice
	}
	return "", "", 0
}
