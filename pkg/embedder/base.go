// Package embedder defines the pluggable embedding capability (spec.md
// §9 "Embedder { embed(text) -> Vector }") and its OpenAI implementation.
package embedder

import "context"

// Provider is implemented by every embedding backend. Embed must be
// idempotent per (text, model) — the same input always yields the same
// vector, per spec.md §6. Vectors are returned as float32 to match the
// arena's storage type directly (spec.md §3), avoiding a float64 round
// trip.
type Provider interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds many texts in as few round trips as the backend
	// allows. reload_from_persistence does not use it; it re-embeds each
	// stored memory with Embed.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns D, the fixed vector dimensionality this provider
	// produces.
	Dimensions() int

	// Close releases any underlying client resources.
	Close() error
}
