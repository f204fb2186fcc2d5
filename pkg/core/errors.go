// Package core provides the persona memory engine façade: configuration,
// error types, functional options, and the hybrid engine itself.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios, one per error kind in
// spec.md §7. Kept as package-level sentinels (errors.Is-compatible), the
// way the teacher repo defines ErrNotFound/ErrInvalidConfig/etc.
var (
	// ErrInvalidInput indicates a shape/length/range violation at the API
	// boundary (e.g. content too long, limit out of range).
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch indicates two vectors do not share the
	// configured dimensionality D.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidVector indicates a vector has a non-finite component.
	ErrInvalidVector = errors.New("vector contains non-finite component")

	// ErrDuplicateID indicates an arena insert targeted an id already
	// present.
	ErrDuplicateID = errors.New("duplicate vector id")

	// ErrPersonaNotFound indicates the named persona has no memory scope.
	ErrPersonaNotFound = errors.New("persona not found")

	// ErrVectorNotFound indicates a lookup by vector/memory id found
	// nothing.
	ErrVectorNotFound = errors.New("vector not found")

	// ErrEntityNotFound indicates a graph lookup by entity id found
	// nothing.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrConversationNotFound indicates no conversation exists with the
	// given id for the persona.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMemoryNotFound indicates a memory id could not be resolved.
	ErrMemoryNotFound = errors.New("memory not found")

	// ErrCapacityExceeded indicates the vector arena has no free slot.
	ErrCapacityExceeded = errors.New("vector arena capacity exceeded")

	// ErrGraphTimeout is a soft error: hybrid search degrades to its
	// vector-only results rather than propagating this to the caller.
	ErrGraphTimeout = errors.New("graph expansion exceeded its time budget")

	// ErrEmbedderFailure wraps a failure from the pluggable embedder
	// capability.
	ErrEmbedderFailure = errors.New("embedder failed")

	// ErrInvalidConfig indicates the engine configuration is incomplete or
	// inconsistent.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInternal indicates an invariant violation (e.g. an HNSW entry
	// point missing on a non-empty index). Always accompanied by
	// diagnostic context via EngineError.
	ErrInternal = errors.New("internal invariant violation")
)

// EngineError wraps an underlying error with the name of the operation
// that produced it, mirroring the teacher's MemoryError.
//
// Example:
//
//	err := &EngineError{Op: "AddMemory", Err: ErrCapacityExceeded}
//	// Error() returns: "personamem: AddMemory: vector arena capacity exceeded"
type EngineError struct {
	// Op is the name of the operation that failed (e.g. "AddMemory",
	// "HybridSearch").
	Op string

	// Err is the underlying sentinel or wrapped error.
	Err error

	// Context carries diagnostic detail for ErrInternal (entry point ids,
	// colliding keys, etc.) — nil for ordinary errors.
	Context map[string]interface{}
}

// Error returns "personamem: <Op>: <Err>".
func (e *EngineError) Error() string {
	return fmt.Sprintf("personamem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error so errors.Is/errors.As work through
// EngineError.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// newEngineError wraps err with op context. Returns nil if err is nil, so
// callers can write `return newEngineError("Add", err)` unconditionally
// right after a guarded error check.
func newEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}

// newInternalError wraps ErrInternal with diagnostic context, per spec.md
// §7 ("must be accompanied by diagnostic context").
func newInternalError(op string, context map[string]interface{}) error {
	return &EngineError{Op: op, Err: ErrInternal, Context: context}
}
