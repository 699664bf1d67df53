package domain

// PriceRecord is the per-block oracle snapshot. Heights before the oracle
// went live carry a zero-valued record so downstream aggregation has a
// complete input set. Immutable once written.
type PriceRecord struct {
	BlockHeight    uint64  `json:"block_height"`
	BlockTimestamp uint64  `json:"timestamp"`
	Spot           float64 `json:"spot"`
	MovingAverage  float64 `json:"moving_average"`
	ReservePrice   float64 `json:"reserve"`
	ReserveMA      float64 `json:"reserve_ma"`
	StablePrice    float64 `json:"stable"`
	StableMA       float64 `json:"stable_ma"`
	YieldPrice     float64 `json:"yield_price"`

	SpotAtoms          string `json:"spot_atoms,omitempty"`
	MovingAverageAtoms string `json:"moving_average_atoms,omitempty"`
	StableAtoms        string `json:"stable_atoms,omitempty"`
	StableMAAtoms      string `json:"stable_ma_atoms,omitempty"`
	ReserveAtoms       string `json:"reserve_atoms,omitempty"`
	ReserveMAAtoms     string `json:"reserve_ma_atoms,omitempty"`
	YieldPriceAtoms    string `json:"yield_price_atoms,omitempty"`
}

// IsZero reports whether the record carries no oracle data.
func (p *PriceRecord) IsZero() bool {
	return p.Spot == 0 && p.MovingAverage == 0 && p.StablePrice == 0 &&
		p.StableMA == 0 && p.ReservePrice == 0 && p.ReserveMA == 0 &&
		p.YieldPrice == 0
}
