package domain

import "fmt"

// Outcome labels used by Omen binary markets. Matching is case-sensitive:
// the subgraph stores these exact strings.
const (
	OutcomeYes = "Yes"
	OutcomeNo  = "No"
)

// BooleanOutcome maps an Omen outcome label to its boolean value. Any label
// other than OutcomeYes or OutcomeNo fails with ErrInvalidOutcome; a strange
// label means upstream data corruption or a non-binary market decoded as
// binary, and must never be silently coerced.
func BooleanOutcome(label string) (bool, error) {
	switch label {
	case OutcomeYes:
		return true, nil
	case OutcomeNo:
		return false, nil
	default:
		return false, fmt.Errorf("outcome %q: %w", label, ErrInvalidOutcome)
	}
}
