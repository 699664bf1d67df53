package aggregator

import (
	"errors"
	"fmt"
)

// ErrInputUnavailable means price, reward or transaction data for the
// height has not been ingested yet. The height is retried next cycle.
var ErrInputUnavailable = errors.New("block inputs unavailable")

// ValidationError rejects a block whose derived ledger would be invalid.
// Nothing is written and the scanner position does not advance; moving
// past invalid state would corrupt every later block.
type ValidationError struct {
	Height uint64
	Field  string
	Value  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger validation failed at height %d: %s = %s", e.Height, e.Field, e.Value)
}

// RecoveryExhaustedError means more than Depth consecutive predecessor
// records were missing. Surfaced to the operator instead of silently
// backfilling an unbounded range.
type RecoveryExhaustedError struct {
	Height uint64
	Depth  int
}

func (e *RecoveryExhaustedError) Error() string {
	return fmt.Sprintf("predecessor recovery exhausted at height %d after %d blocks", e.Height, e.Depth)
}
