package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// AtomicUnits is the number of indivisible subunits per whole asset unit.
// All balance arithmetic is done in atoms; decimal values exist only as
// display mirrors derived from the atom count.
const AtomicUnits = 1_000_000_000_000

var (
	atomicUnitsInt = big.NewInt(AtomicUnits)
	atomicUnitsDec = decimal.New(1, 12)
)

// ParseAtoms parses a base-10 atom string. An empty string is zero.
func ParseAtoms(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid atom value %q", s)
	}
	return n, nil
}

// FormatAtoms renders an atom count as a base-10 string. Nil is "0".
func FormatAtoms(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// AtomsToDecimal converts an atom count to its whole-unit decimal value.
func AtomsToDecimal(n *big.Int) decimal.Decimal {
	if n == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n, 0).Div(atomicUnitsDec)
}

// AtomsToFloat converts an atom count to a whole-unit float64 mirror.
func AtomsToFloat(n *big.Int) float64 {
	f, _ := AtomsToDecimal(n).Float64()
	return f
}

// DecimalToAtoms converts a whole-unit decimal to atoms, truncating any
// precision finer than one atom.
func DecimalToAtoms(d decimal.Decimal) *big.Int {
	return d.Mul(atomicUnitsDec).Truncate(0).BigInt()
}

// QuantizeToAtoms rounds a whole-unit value to the nearest atom. Used when
// comparing two values so that float noise below one atom never registers
// as a difference.
func QuantizeToAtoms(v float64) *big.Int {
	return decimal.NewFromFloat(v).Mul(atomicUnitsDec).Round(0).BigInt()
}

// FloatToAtoms converts a whole-unit float64 to atoms via decimal parsing,
// truncating below one atom.
func FloatToAtoms(v float64) *big.Int {
	return DecimalToAtoms(decimal.NewFromFloat(v))
}
