package core

import "time"

// MemoryRecord is a single memory returned by AddMemory/SearchMemories: the
// original text content paired with its arena vector id and metadata.
//
// Example:
//
//	rec, err := engine.AddMemory(ctx, "persona-1", "user likes Python")
type MemoryRecord struct {
	// ID is the opaque vector/memory id (spec.md §9 treats the two as the
	// same token).
	ID string `json:"id"`

	// PersonaID scopes this memory to one persona's arena/graph.
	PersonaID string `json:"persona_id"`

	// Content is the original text this memory was embedded from.
	Content string `json:"content"`

	// ContentType is one of the persona's whitelisted content types
	// (conversation, fact, preference, context, system).
	ContentType string `json:"content_type"`

	// Source free-forms where this memory came from (e.g. "chat", "api").
	Source string `json:"source,omitempty"`

	// Tags are free-form labels attached at insert time.
	Tags []string `json:"tags,omitempty"`

	// Custom carries caller-supplied structured metadata, including the
	// conversation_id field add_conversation sets on its paired memories.
	Custom map[string]interface{} `json:"custom,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Score is populated on search results: the similarity (and, for
	// hybrid search, graph-boosted) score in [0,1].
	Score float64 `json:"score,omitempty"`

	// GraphBoosted/GraphExpanded mark hybrid_search provenance: whether
	// this hit's score was boosted by graph expansion, or whether the hit
	// itself was only discovered via graph expansion (spec.md §4.7).
	GraphBoosted  bool `json:"graph_boosted,omitempty"`
	GraphExpanded bool `json:"graph_expanded,omitempty"`
}

// SearchResult is the outcome of SearchMemories: ranked memories plus
// summary statistics.
type SearchResult struct {
	Memories        []*MemoryRecord `json:"memories"`
	Count           int             `json:"count"`
	AvgSimilarity   float64         `json:"avg_similarity"`
}

// HybridSearchResult is the outcome of HybridSearch: ranked memories plus
// the graph-expansion statistics spec.md §4.7 requires ("reports
// count/avg_similarity/graph_expanded_results/expansion_rate").
type HybridSearchResult struct {
	Memories             []*MemoryRecord `json:"memories"`
	Count                int             `json:"count"`
	AvgSimilarity        float64         `json:"avg_similarity"`
	GraphExpandedResults int             `json:"graph_expanded_results"`
	ExpansionRate        float64         `json:"expansion_rate"`

	// GraphTimedOut reports that graph expansion exceeded
	// graph.max_processing_time_ms and was abandoned in favor of the
	// already-computed vector results (spec.md §5, §6 ErrGraphTimeout).
	GraphTimedOut bool `json:"graph_timeout,omitempty"`
}

// ConversationTurn is one half of a linked pair created by AddConversation
// (spec.md §4.8): the user message or the assistant reply, sharing a
// conversation_id.
type ConversationTurn struct {
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
}

// CleanupResult reports what CleanupMemories removed (or would remove, if
// DryRun was set): spec.md §6 "cleanup_memories -> {affected, breakdown,
// processing_time_ms}".
type CleanupResult struct {
	Removed []string `json:"removed"`

	// Breakdown counts removed (or would-be-removed) memories per
	// content_type.
	Breakdown map[string]int `json:"breakdown"`

	// ProcessingTimeMs is how long the cleanup scan and removal took.
	ProcessingTimeMs int64 `json:"processing_time_ms"`

	DryRun bool `json:"dry_run"`
}

// ReloadResult reports the outcome of ReloadFromPersistence (spec.md §4.8):
// how many memories were successfully re-embedded and reinserted, and how
// many failed without aborting the reload.
type ReloadResult struct {
	Reloaded int      `json:"reloaded"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}
