package domain

import "time"

// ScannerState is the lifecycle state of the scan pipeline. Owned by the
// reorg controller; everything else only reads it.
type ScannerState string

const (
	ScannerStateInit        ScannerState = "init"
	ScannerStateScanning    ScannerState = "scanning"
	ScannerStateDetecting   ScannerState = "detecting_divergence"
	ScannerStateRollingBack ScannerState = "rolling_back"
	ScannerStatePaused      ScannerState = "paused"
)

// ScannerPosition tracks how far each pipeline has advanced. Aggregation
// never runs ahead of the ingestion pipelines: a block is aggregated only
// once both its price record and its transactions are stored.
type ScannerPosition struct {
	AggregatorHeight uint64
	PriceHeight      uint64
	TxHeight         uint64

	HourlySealedUntil uint64
	DailySealedUntil  uint64

	State     ScannerState
	UpdatedAt time.Time
}

// IngestedHeight returns the highest height with both ingestion inputs
// present.
func (p *ScannerPosition) IngestedHeight() uint64 {
	if p.PriceHeight < p.TxHeight {
		return p.PriceHeight
	}
	return p.TxHeight
}

// CanTransition reports whether moving from the current state to next is
// legal.
func (p *ScannerPosition) CanTransition(next ScannerState) bool {
	switch p.State {
	case ScannerStateInit:
		return next == ScannerStateScanning || next == ScannerStatePaused
	case ScannerStateScanning:
		// RollingBack directly from Scanning covers operator-driven
		// rollbacks that skip the detection pass.
		return next == ScannerStateDetecting || next == ScannerStateRollingBack ||
			next == ScannerStatePaused
	case ScannerStateDetecting:
		return next == ScannerStateScanning || next == ScannerStateRollingBack
	case ScannerStateRollingBack:
		return next == ScannerStateScanning
	case ScannerStatePaused:
		return next == ScannerStateScanning
	}
	return false
}
