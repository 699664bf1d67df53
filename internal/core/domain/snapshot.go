package domain

import "time"

// ReserveInfo is the node's live view of the backing reserve. The node
// reports it at its current height; the balances describe state after the
// block at Height-1.
type ReserveInfo struct {
	Height    uint64
	HFVersion uint64

	ZephReserveAtoms     string
	ZsdCircAtoms         string
	ZrsCircAtoms         string
	ZyieldCircAtoms      string
	ZsdYieldReserveAtoms string

	ReserveRatioAtoms   string
	ReserveRatioMAAtoms string

	// Optional pricing record riding along with the reserve info.
	PriceRecord *PriceRecord
}

// PreviousHeight returns the height whose post-block state the info
// describes.
func (r *ReserveInfo) PreviousHeight() uint64 {
	if r.Height == 0 {
		return 0
	}
	return r.Height - 1
}

// ReserveSnapshot is a periodic durable capture of on-chain ground truth,
// keyed by PreviousHeight. Used as the reconciliation fallback when the
// node has already moved past the height under comparison.
type ReserveSnapshot struct {
	CapturedAt     time.Time `json:"captured_at"`
	ReserveHeight  uint64    `json:"reserve_height"`
	PreviousHeight uint64    `json:"previous_height"`
	HFVersion      uint64    `json:"hf_version"`

	ZephReserveAtoms     string  `json:"zeph_reserve_atoms"`
	ZephReserve          float64 `json:"zeph_reserve"`
	ZsdCircAtoms         string  `json:"zsd_circ_atoms"`
	ZsdCirc              float64 `json:"zsd_circ"`
	ZrsCircAtoms         string  `json:"zrs_circ_atoms"`
	ZrsCirc              float64 `json:"zrs_circ"`
	ZyieldCircAtoms      string  `json:"zyield_circ_atoms"`
	ZyieldCirc           float64 `json:"zyield_circ"`
	ZsdYieldReserveAtoms string  `json:"zsd_yield_reserve_atoms"`
	ZsdYieldReserve      float64 `json:"zsd_yield_reserve"`
	ReserveRatioAtoms    string  `json:"reserve_ratio_atoms"`
	ReserveRatio         Ratio   `json:"reserve_ratio"`
}
