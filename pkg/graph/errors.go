package graph

import "errors"

var (
	// ErrEntityNotFound indicates a lookup by entity id found nothing, or a
	// relationship endpoint does not exist in the same persona.
	ErrEntityNotFound = errors.New("graph: entity not found")

	// ErrInvalidInput indicates a malformed create request (missing name,
	// type, or persona).
	ErrInvalidInput = errors.New("graph: invalid input")
)

// reconciliationError describes a UNIQUE-constraint race that the
// lookup-and-return fallback could not resolve. The in-memory Store's
// fallback paths always resolve, so no code path constructs or returns it.
type reconciliationError struct {
	key string
	err error
}

func (e *reconciliationError) Error() string {
	return "graph: reconciliation failed for " + e.key + ": " + e.err.Error()
}

func (e *reconciliationError) Unwrap() error {
	return e.err
}
