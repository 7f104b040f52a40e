package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and services translate them into coded domain errors:
//   - ErrNotFound: no row with that identity
//   - ErrConflict: an active row already occupies the slot being claimed
//   - ErrFinalized: the slot is permanently closed by a terminal row
//   - ErrInvalidState: row exists but is not in the state the mutation requires
//   - ErrUnavailable: backing service temporarily unavailable
//
// Input validation failures never use these; see pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrFinalized    = errors.New("finalized")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
