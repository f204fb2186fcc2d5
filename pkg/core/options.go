package core

// AddOption configures AddMemory.
type AddOption func(*AddOptions)

// AddOptions carries per-call overrides for AddMemory.
type AddOptions struct {
	// ID, if set, is used as the memory/vector id instead of minting a new
	// snowflake id.
	ID string

	// ContentType must be one of the persona's whitelisted types
	// (conversation, fact, preference, context, system).
	ContentType string

	// Source free-forms where this memory came from.
	Source string

	// Tags are free-form labels attached at insert time.
	Tags []string

	// Custom carries caller-supplied structured metadata.
	Custom map[string]interface{}
}

// WithID sets an explicit memory id for AddMemory, instead of minting one.
func WithID(id string) AddOption {
	return func(o *AddOptions) { o.ID = id }
}

// WithContentType sets the content type for AddMemory.
func WithContentType(contentType string) AddOption {
	return func(o *AddOptions) { o.ContentType = contentType }
}

// WithSource sets the source field for AddMemory.
func WithSource(source string) AddOption {
	return func(o *AddOptions) { o.Source = source }
}

// WithTags attaches free-form tags to a new memory.
func WithTags(tags ...string) AddOption {
	return func(o *AddOptions) { o.Tags = tags }
}

// WithCustom attaches caller-supplied structured metadata to a new memory.
func WithCustom(custom map[string]interface{}) AddOption {
	return func(o *AddOptions) { o.Custom = custom }
}

func applyAddOptions(opts []AddOption) *AddOptions {
	o := &AddOptions{ContentType: "conversation"}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SearchOption configures SearchMemories/HybridSearch.
type SearchOption func(*SearchQueryOptions)

// SearchQueryOptions carries per-call overrides for SearchMemories and
// HybridSearch.
type SearchQueryOptions struct {
	// Limit bounds the number of results returned. Default: 10.
	Limit int

	// MinScore excludes results scoring below this threshold.
	MinScore float64

	// ContentType restricts results to one content type, if set.
	ContentType string

	// GraphDepth overrides the default graph-expansion depth for
	// HybridSearch (spec.md §4.7). Ignored by SearchMemories.
	GraphDepth int

	// GraphWeight overrides the default graph-boost weight for
	// HybridSearch. Ignored by SearchMemories.
	GraphWeight float64

	// UseLinear forces a linear arena scan, bypassing HNSW regardless of
	// population (spec.md §4.4 "unless forced linear").
	UseLinear bool
}

// WithSearchLimit sets the maximum number of results to return.
func WithSearchLimit(limit int) SearchOption {
	return func(o *SearchQueryOptions) { o.Limit = limit }
}

// WithSearchMinScore excludes results below the given similarity score.
func WithSearchMinScore(score float64) SearchOption {
	return func(o *SearchQueryOptions) { o.MinScore = score }
}

// WithSearchContentType restricts a search to one content type.
func WithSearchContentType(contentType string) SearchOption {
	return func(o *SearchQueryOptions) { o.ContentType = contentType }
}

// WithGraphDepth overrides the graph-expansion depth for HybridSearch.
func WithGraphDepth(depth int) SearchOption {
	return func(o *SearchQueryOptions) { o.GraphDepth = depth }
}

// WithGraphWeight overrides the graph-boost weight for HybridSearch.
func WithGraphWeight(weight float64) SearchOption {
	return func(o *SearchQueryOptions) { o.GraphWeight = weight }
}

// WithLinearSearch forces a linear arena scan for this call.
func WithLinearSearch(linear bool) SearchOption {
	return func(o *SearchQueryOptions) { o.UseLinear = linear }
}

func applySearchOptions(opts []SearchOption) *SearchQueryOptions {
	o := &SearchQueryOptions{Limit: 10, GraphDepth: 2, GraphWeight: 0.3}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CleanupOption configures CleanupMemories.
type CleanupOption func(*CleanupOptions)

// CleanupOptions carries per-call overrides for CleanupMemories (spec.md
// §4.8 "cleanup_memories(older_than?, types?, dry_run)").
type CleanupOptions struct {
	OlderThanMs int64
	Types       []string
	DryRun      bool
}

// WithOlderThan restricts cleanup to memories older than the given age in
// milliseconds.
func WithOlderThan(ms int64) CleanupOption {
	return func(o *CleanupOptions) { o.OlderThanMs = ms }
}

// WithCleanupTypes restricts cleanup to the given content types.
func WithCleanupTypes(types ...string) CleanupOption {
	return func(o *CleanupOptions) { o.Types = types }
}

// WithDryRun reports what cleanup would remove without removing it.
func WithDryRun(dryRun bool) CleanupOption {
	return func(o *CleanupOptions) { o.DryRun = dryRun }
}

// ApplyCleanupOptions resolves a CleanupOption slice into CleanupOptions,
// for callers (pkg/persona) that build their own CleanupMemories surface
// on top of these options rather than calling an engine method directly.
func ApplyCleanupOptions(opts ...CleanupOption) *CleanupOptions {
	o := &CleanupOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// EntitySearchOption configures ExploreEntities.
type EntitySearchOption func(*EntitySearchOptions)

// EntitySearchOptions carries per-call overrides for ExploreEntities
// (spec.md §4.5 "Entity search").
type EntitySearchOptions struct {
	Limit         int
	MinConfidence float64
	EntityType    string
}

// WithEntityLimit bounds the number of entities ExploreEntities returns.
func WithEntityLimit(limit int) EntitySearchOption {
	return func(o *EntitySearchOptions) { o.Limit = limit }
}

// WithEntityMinConfidence excludes entities scoring below the given
// confidence.
func WithEntityMinConfidence(c float64) EntitySearchOption {
	return func(o *EntitySearchOptions) { o.MinConfidence = c }
}

// WithEntityType restricts ExploreEntities to one entity type.
func WithEntityType(entityType string) EntitySearchOption {
	return func(o *EntitySearchOptions) { o.EntityType = entityType }
}

func applyEntitySearchOptions(opts []EntitySearchOption) *EntitySearchOptions {
	o := &EntitySearchOptions{Limit: 10}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GraphContextOption configures GetGraphContext.
type GraphContextOption func(*GraphContextOptions)

// GraphContextOptions carries per-call overrides for GetGraphContext
// (spec.md §6 "get_graph_context").
type GraphContextOptions struct {
	IncludeRelationships bool
	MaxRelationships     int // <= 100
	Depth                int // 1..3
}

// WithIncludeRelationships toggles whether GetGraphContext resolves each
// entity's incident relationships.
func WithIncludeRelationships(include bool) GraphContextOption {
	return func(o *GraphContextOptions) { o.IncludeRelationships = include }
}

// WithMaxRelationships bounds the relationships GetGraphContext returns.
func WithMaxRelationships(max int) GraphContextOption {
	return func(o *GraphContextOptions) { o.MaxRelationships = max }
}

// WithContextDepth sets the depth GetGraphContext validates (1..3). The
// graph store returns only relationships directly incident to the given
// entities, so the depth does not widen the result.
func WithContextDepth(depth int) GraphContextOption {
	return func(o *GraphContextOptions) { o.Depth = depth }
}

func applyGraphContextOptions(opts []GraphContextOption) *GraphContextOptions {
	o := &GraphContextOptions{IncludeRelationships: true, MaxRelationships: 50, Depth: 2}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
