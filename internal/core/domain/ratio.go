package domain

import (
	"math"
	"strconv"
)

// Ratio is a solvency ratio. It is NaN when liabilities are zero, which is
// a legitimate state (no stable asset in circulation), so it marshals NaN
// as JSON null instead of failing like a plain float64 would.
type Ratio float64

// Finite reports whether the ratio holds a usable numeric value.
func (r Ratio) Finite() bool {
	f := float64(r)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Finite() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(r), 'f', -1, 64)), nil
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*r = Ratio(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}
