package arena

import "errors"

// Sentinel errors returned by Arena operations. Callers in pkg/core wrap
// these with EngineError for the public API surface.
var (
	// ErrDimensionMismatch indicates a vector's length does not equal the
	// arena's configured dimensionality.
	ErrDimensionMismatch = errors.New("arena: dimension mismatch")

	// ErrInvalidVector indicates a vector has a non-finite component.
	ErrInvalidVector = errors.New("arena: vector contains non-finite component")

	// ErrDuplicateID indicates Insert was called with an id already present.
	ErrDuplicateID = errors.New("arena: duplicate vector id")

	// ErrVectorNotFound indicates a lookup, update, or delete targeted an id
	// with no live slot.
	ErrVectorNotFound = errors.New("arena: vector not found")

	// ErrCapacityExceeded indicates the arena has no free slot and its
	// cursor has reached MaxVectors.
	ErrCapacityExceeded = errors.New("arena: capacity exceeded")
)
