package domain

import "math/big"

// TruthSource records where reconciliation ground truth came from.
type TruthSource string

const (
	TruthSourceRPC      TruthSource = "rpc"
	TruthSourceSnapshot TruthSource = "snapshot"
	TruthSourceNone     TruthSource = "none"
)

// ReserveDiffEntry is the comparison of one ledger field against ground
// truth. DiffAtoms is the absolute difference after both operands are
// quantized to atoms.
type ReserveDiffEntry struct {
	Field     string  `json:"field"`
	OnChain   float64 `json:"on_chain"`
	Cached    float64 `json:"cached"`
	Diff      float64 `json:"diff"`
	DiffAtoms string  `json:"diff_atoms"`
}

// ReserveDiffReport is the outcome of one reconciliation pass. Mismatch
// is set when no usable ground truth could be obtained, in which case
// Entries is empty.
type ReserveDiffReport struct {
	ID           string             `json:"id"`
	TargetHeight uint64             `json:"target_height"`
	TruthHeight  uint64             `json:"truth_height"`
	Source       TruthSource        `json:"source"`
	Mismatch     bool               `json:"mismatch"`
	Entries      []ReserveDiffEntry `json:"entries"`
}

// Diverged returns the entries whose atom difference exceeds the given
// tolerance in atoms.
func (r *ReserveDiffReport) Diverged(toleranceAtoms int64) []ReserveDiffEntry {
	tol := big.NewInt(toleranceAtoms)
	var out []ReserveDiffEntry
	for _, e := range r.Entries {
		n, err := ParseAtoms(e.DiffAtoms)
		if err != nil {
			continue
		}
		if n.CmpAbs(tol) > 0 {
			out = append(out, e)
		}
	}
	return out
}
