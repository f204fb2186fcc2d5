package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/oceanlab/personamem/pkg/arena"
	"github.com/oceanlab/personamem/pkg/embedder"
	"github.com/oceanlab/personamem/pkg/extractor"
	"github.com/oceanlab/personamem/pkg/graph"
	"github.com/oceanlab/personamem/pkg/index"
	"github.com/oceanlab/personamem/pkg/storage"
	"github.com/oceanlab/personamem/pkg/vecmath"
)

// seedFanout/perSeedEntities/maxGraphResults are the hybrid_search
// expansion bounds from spec.md §4.7: at most 5 seed vectors contribute
// entities, at most 5 entities per seed, and each seed entity's traversal
// is capped at 10 related vectors.
const (
	seedFanout       = 5
	perSeedEntities  = 5
	maxGraphResults  = 10
	graphBoostDelta  = 0.2
	oversampleFactor = 2

	// defaultGraphTimeoutMs is graph.max_processing_time_ms's default when
	// unset (spec.md §5): hybrid_search's graph-expansion phase falls back
	// to vector-only results if it runs longer than this.
	defaultGraphTimeoutMs = 5000
)

// Engine is the hybrid vector+graph persona memory engine (spec.md §1).
// One Engine instance holds a single shared vector index and a single
// shared knowledge graph for every persona; persona_id is carried as a
// metadata filter and a graph.Store parameter, not as a reason to spin up
// per-persona collaborators, mirroring how the teacher's Client held one
// storage/llm/embedder set for every agent/user/run scope.
type Engine struct {
	mu sync.RWMutex

	cfg      *Config
	index    *index.Store
	graph    *graph.Store
	embedder embedder.Provider
	store    storage.Store
	flags    *FeatureFlags

	node *snowflake.Node

	// extractWG tracks in-flight async entity-extraction goroutines kicked
	// off by AddMemory (spec.md §1 "add_memory -> ... -> (async) extractor
	// -> graph_store.upsert"), the way the teacher's AsyncClient tracked
	// its goroutines with a WaitGroup. Wait blocks until all of them drain.
	extractWG sync.WaitGroup
}

// NewEngine wires an Engine from cfg's collaborators: a vector arena sized
// to cfg.Arena, an HNSW index over it, a fresh graph store, the configured
// embedding provider, and the configured persistence backend.
func NewEngine(cfg *Config, emb embedder.Provider, store storage.Store) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	budgetBytes := int64(cfg.Arena.MemoryBudgetMB) * 1024 * 1024
	ar := arena.New(cfg.Arena.Dimensions, budgetBytes)

	params := index.DefaultParams()
	if cfg.HNSW.M > 0 {
		params.M = cfg.HNSW.M
	}
	if cfg.HNSW.EfConstruction > 0 {
		params.EfConstruction = cfg.HNSW.EfConstruction
	}
	if cfg.HNSW.EfSearch > 0 {
		params.EfSearch = cfg.HNSW.EfSearch
	}
	switch cfg.Distance.Metric {
	case "euclidean":
		params.Metric = vecmath.MetricEuclidean
	case "dot":
		params.Metric = vecmath.MetricDot
	default:
		params.Metric = vecmath.MetricCosine
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, newEngineError("NewEngine", err)
	}

	return &Engine{
		cfg:      cfg,
		index:    index.NewStore(ar, params),
		graph:    graph.NewStore(),
		embedder: emb,
		store:    store,
		flags:    NewFeatureFlags(cfg.Features),
		node:     node,
	}, nil
}

// Flags returns the engine's feature-flag controller (spec.md §9).
func (e *Engine) Flags() *FeatureFlags {
	return e.flags
}

// Stats returns the underlying indexed store's lifetime counters.
func (e *Engine) Stats() index.Stats {
	return e.index.Stats()
}

// Wait blocks until every in-flight async entity-extraction goroutine
// started by AddMemory has finished folding its results into the graph.
// Production callers do not normally need this (extraction failures never
// affect add_memory's result); it exists for deterministic tests and for
// an orderly Close.
func (e *Engine) Wait() {
	e.extractWG.Wait()
}

func (e *Engine) metric() vecmath.Metric {
	switch e.cfg.Distance.Metric {
	case "euclidean":
		return vecmath.MetricEuclidean
	case "dot":
		return vecmath.MetricDot
	default:
		return vecmath.MetricCosine
	}
}

func (e *Engine) mintID() string {
	return e.node.Generate().String()
}

// AddMemory embeds content, inserts it into the shared vector index under
// personaID, persists its metadata, and — unless entity_extraction is
// disabled — runs the deterministic extractor and folds any entities and
// relationships it finds into the shared graph store. Graph-side failures
// are logged and swallowed: add_memory's vector write succeeds
// independently of graph enrichment (spec.md §4.7 propagation policy).
func (e *Engine) AddMemory(ctx context.Context, personaID, content string, opts ...AddOption) (*MemoryRecord, error) {
	const op = "AddMemory"

	if personaID == "" || content == "" {
		return nil, newEngineError(op, ErrInvalidInput)
	}

	o := applyAddOptions(opts)
	if !isWhitelistedContentType(o.ContentType) {
		return nil, newEngineError(op, ErrInvalidInput)
	}

	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return nil, newEngineError(op, fmt.Errorf("%w: %v", ErrEmbedderFailure, err))
	}

	id := o.ID
	if id == "" {
		id = e.mintID()
	}

	now := time.Now()
	custom := o.Custom
	if custom == nil {
		custom = map[string]interface{}{}
	}
	custom["original_content"] = arena.TruncateOriginalContent(content)

	meta := &arena.Metadata{
		ID:          id,
		Dimensions:  len(vec),
		PersonaID:   personaID,
		ContentType: o.ContentType,
		Source:      o.Source,
		Tags:        o.Tags,
		Custom:      custom,
		CreatedAt:   now,
	}

	e.mu.Lock()
	err = e.index.Insert(id, vec, meta)
	e.mu.Unlock()
	if err != nil {
		switch err {
		case arena.ErrDuplicateID:
			return nil, newEngineError(op, ErrDuplicateID)
		case arena.ErrCapacityExceeded:
			return nil, newEngineError(op, ErrCapacityExceeded)
		case arena.ErrDimensionMismatch:
			return nil, newEngineError(op, ErrDimensionMismatch)
		case arena.ErrInvalidVector:
			return nil, newEngineError(op, ErrInvalidVector)
		default:
			return nil, newEngineError(op, err)
		}
	}

	if e.store != nil {
		rec := &storage.VectorMetadataRecord{
			ID:              id,
			PersonaID:       personaID,
			ContentType:     o.ContentType,
			Source:          o.Source,
			Tags:            o.Tags,
			Custom:          o.Custom,
			OriginalContent: content,
			CreatedAt:       now,
		}
		if err := e.store.SaveVectorMetadata(ctx, rec); err != nil {
			log.Printf("core: AddMemory: failed to persist vector metadata for %s: %v", id, err)
		}
	}

	if e.flags.IsEnabled(FlagEntityExtraction) {
		e.extractWG.Add(1)
		go func() {
			defer e.extractWG.Done()
			e.enrichGraph(ctx, personaID, id, content)
		}()
	}

	return &MemoryRecord{
		ID:          id,
		PersonaID:   personaID,
		Content:     content,
		ContentType: o.ContentType,
		Source:      o.Source,
		Tags:        o.Tags,
		Custom:      o.Custom,
		CreatedAt:   now,
	}, nil
}

// enrichGraph runs the deterministic extractor over content and folds the
// result into the shared graph store, scoped to personaID. Every failure
// here is logged and discarded: entity extraction never fails add_memory.
func (e *Engine) enrichGraph(ctx context.Context, personaID, vectorID, content string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("core: enrichGraph: recovered from panic for persona %s: %v", personaID, r)
		}
	}()

	entities := extractor.Extract(content)
	if len(entities) == 0 {
		return
	}

	byName := make(map[string]string, len(entities))
	inputs := make([]graph.EntityInput, 0, len(entities))
	for i, ent := range entities {
		originalID := fmt.Sprintf("tmp-%d", i)
		byName[ent.Name] = originalID
		inputs = append(inputs, graph.EntityInput{
			OriginalID: originalID,
			PersonaID:  personaID,
			VectorID:   vectorID,
			Type:       string(ent.Type),
			Name:       ent.Name,
			Confidence: ent.Confidence,
			Properties: map[string]interface{}{"context": ent.Context},
		})
	}

	rels := extractor.InferRelationships(content, entities)
	relInputs := make([]graph.RelationshipInput, 0, len(rels))
	for _, r := range rels {
		src, ok1 := byName[r.SourceName]
		dst, ok2 := byName[r.TargetName]
		if !ok1 || !ok2 {
			continue
		}
		relInputs = append(relInputs, graph.RelationshipInput{
			PersonaID:        personaID,
			SourceEntityID:   src,
			TargetEntityID:   dst,
			RelationshipType: r.RelationshipType,
			Strength:         r.Strength,
		})
	}

	e.mu.Lock()
	result := e.graph.ProcessBatch(inputs, relInputs)
	e.mu.Unlock()

	if result.EntitiesFailed > 0 || result.RelationshipsFailed > 0 {
		log.Printf("core: enrichGraph: persona %s: %d/%d entities failed, %d/%d relationships failed",
			personaID, result.EntitiesFailed, len(inputs), result.RelationshipsFailed, len(relInputs))
	}

	if e.store == nil {
		return
	}
	for canonicalID := range invertIDMappings(result.IDMappings) {
		ent, err := e.graph.GetEntity(canonicalID)
		if err != nil {
			continue
		}
		if err := e.store.SaveEntity(ctx, entityToRecord(ent)); err != nil {
			log.Printf("core: enrichGraph: failed to persist entity %s: %v", ent.ID, err)
		}
	}
}

func invertIDMappings(m map[string]string) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for _, canonicalID := range m {
		out[canonicalID] = struct{}{}
	}
	return out
}

func entityToRecord(ent graph.Entity) *storage.EntityRecord {
	return &storage.EntityRecord{
		ID:             ent.ID,
		PersonaID:      ent.PersonaID,
		VectorID:       ent.VectorID,
		Type:           ent.Type,
		Name:           ent.Name,
		NormalizedName: ent.NormalizedName,
		Properties:     ent.Properties,
		Confidence:     ent.Confidence,
		ContentHash:    ent.ContentHash,
		CreatedAt:      ent.CreatedAt,
		UpdatedAt:      ent.UpdatedAt,
	}
}

func isWhitelistedContentType(ct string) bool {
	switch ct {
	case "conversation", "fact", "preference", "context", "system":
		return true
	default:
		return false
	}
}

// SearchMemories runs a pure vector search scoped to personaID: no graph
// expansion, no re-ranking beyond similarity (spec.md §6 "search_memories").
func (e *Engine) SearchMemories(ctx context.Context, personaID, query string, opts ...SearchOption) (*SearchResult, error) {
	const op = "SearchMemories"
	if personaID == "" || query == "" {
		return nil, newEngineError(op, ErrInvalidInput)
	}

	o := applySearchOptions(opts)
	if o.Limit <= 0 || o.Limit > 100 {
		return nil, newEngineError(op, ErrInvalidInput)
	}

	results, err := e.vectorSearch(ctx, personaID, query, o)
	if err != nil {
		return nil, newEngineError(op, err)
	}

	memories := resultsToMemories(results)
	return &SearchResult{
		Memories:      memories,
		Count:         len(memories),
		AvgSimilarity: avgScore(memories),
	}, nil
}

func (e *Engine) vectorSearch(ctx context.Context, personaID, query string, o *SearchQueryOptions) ([]arena.Result, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedderFailure, err)
	}

	filter := &arena.Filter{Eq: map[string]interface{}{"persona_id": personaID}}
	if o.ContentType != "" {
		filter.Eq["content_type"] = o.ContentType
	}

	searchOpts := index.SearchOptions{
		Limit:     o.Limit,
		Threshold: float32(o.MinScore),
		Metric:    e.metric(),
		Filter:    filter,
	}
	if o.UseLinear {
		f := false
		searchOpts.UseIndex = &f
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.index.Search(vec, searchOpts)
}

// HybridSearch runs a vector search oversampled to 2x limit, then — unless
// graph expansion is disabled or no seed produced linked entities —
// expands through the shared graph store and merges the result per
// spec.md §4.7. Any error in the graph-expansion path degrades silently to
// the original vector-only results; only the initial vector search and the
// embedder call surface errors to the caller.
func (e *Engine) HybridSearch(ctx context.Context, personaID, query string, opts ...SearchOption) (*HybridSearchResult, error) {
	const op = "HybridSearch"
	if personaID == "" || query == "" {
		return nil, newEngineError(op, ErrInvalidInput)
	}

	o := applySearchOptions(opts)
	if o.Limit <= 0 || o.Limit > 50 {
		return nil, newEngineError(op, ErrInvalidInput)
	}

	// spec.md §9: a disabled hybrid_search flag short-circuits to
	// vector-only (search_memories) behavior, not an error.
	if !e.flags.IsEnabled(FlagHybridSearch) {
		vectorResults, err := e.vectorSearch(ctx, personaID, query, o)
		if err != nil {
			return nil, newEngineError(op, err)
		}
		return e.finishHybrid(resultsToMemories(vectorResults), o.Limit, 0), nil
	}

	depth := o.GraphDepth
	if depth <= 0 {
		depth = e.cfg.Graph.DefaultDepth
	}
	if depth > 5 {
		depth = 5
	}
	weight := o.GraphWeight
	if weight == 0 {
		weight = e.cfg.Graph.DefaultWeight
	}

	oversampled := *o
	oversampled.Limit = o.Limit * oversampleFactor
	vectorResults, err := e.vectorSearch(ctx, personaID, query, &oversampled)
	if err != nil {
		return nil, newEngineError(op, err)
	}

	base := resultsToMemories(vectorResults)
	useGraph := e.flags.IsEnabled(FlagGraphExpansion) && e.flags.IsEnabled(FlagGraphEnabled) && !o.UseLinear
	if !useGraph || len(base) == 0 {
		return e.finishHybrid(base, o.Limit, 0), nil
	}

	// spec.md §5/§6/§9: graph expansion is bounded by
	// graph.max_processing_time_ms (default 5s) and honors ctx
	// cancellation; exceeding it falls back to the vector-only results
	// already computed above.
	timeoutMs := e.cfg.Graph.MaxProcessingTimeMs
	if timeoutMs <= 0 {
		timeoutMs = defaultGraphTimeoutMs
	}
	graphCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	merged, expanded, err := e.expandWithGraph(graphCtx, personaID, base, depth, weight, o.Limit)
	if err != nil {
		result := e.finishHybrid(base, o.Limit, 0)
		if errors.Is(err, ErrGraphTimeout) {
			result.GraphTimedOut = true
			log.Printf("core: HybridSearch: graph expansion exceeded its time budget for persona %s, returning vector-only results", personaID)
		} else {
			log.Printf("core: HybridSearch: graph expansion failed for persona %s, returning vector-only results: %v", personaID, err)
		}
		return result, nil
	}

	return e.finishHybrid(merged, o.Limit, expanded), nil
}

func (e *Engine) finishHybrid(memories []*MemoryRecord, limit, expanded int) *HybridSearchResult {
	if len(memories) > limit {
		memories = memories[:limit]
	}
	rate := 0.0
	if len(memories) > 0 {
		rate = float64(expanded) / float64(len(memories))
	}
	return &HybridSearchResult{
		Memories:             memories,
		Count:                len(memories),
		AvgSimilarity:        avgScore(memories),
		GraphExpandedResults: expanded,
		ExpansionRate:        rate,
	}
}

// expandWithGraph implements spec.md §4.7's merge algorithm: collect
// entities linked to up to seedFanout seed vectors (perSeedEntities each),
// traverse from each seed entity up to depth hops with strength >= 0.3,
// and fold the resulting vector ids back in — boosting existing hits and
// inserting new ones at a weighted base score. ctx's deadline is
// graph.max_processing_time_ms (spec.md §5); exceeding it, or the caller
// canceling ctx, aborts the traversal and returns ErrGraphTimeout so the
// caller can fall back to its already-computed vector results.
func (e *Engine) expandWithGraph(ctx context.Context, personaID string, base []*MemoryRecord, depth int, weight float64, limit int) ([]*MemoryRecord, int, error) {
	byID := make(map[string]*MemoryRecord, len(base))
	order := make([]string, 0, len(base))
	for _, m := range base {
		byID[m.ID] = m
		order = append(order, m.ID)
	}

	seeds := base
	if len(seeds) > seedFanout {
		seeds = seeds[:seedFanout]
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	seenEntities := make(map[string]bool)
	expanded := 0

	for _, seed := range seeds {
		if ctx.Err() != nil {
			return nil, 0, ErrGraphTimeout
		}

		entityIDs := e.graph.EntitiesForVector(seed.ID)
		if len(entityIDs) > perSeedEntities {
			entityIDs = entityIDs[:perSeedEntities]
		}

		for _, entityID := range entityIDs {
			if ctx.Err() != nil {
				return nil, 0, ErrGraphTimeout
			}
			if seenEntities[entityID] {
				continue
			}
			seenEntities[entityID] = true

			related, err := e.graph.FindRelated(entityID, graph.FindRelatedOptions{
				MaxDepth:    depth,
				Limit:       maxGraphResults,
				MinStrength: 0.3,
			})
			if err != nil {
				continue
			}

			for _, r := range related {
				vectorID := r.Entity.VectorID
				if vectorID == "" {
					continue
				}
				if existing, ok := byID[vectorID]; ok {
					boosted := existing.Score + graphBoostDelta*weight
					if boosted > 1.0 {
						boosted = 1.0
					}
					existing.Score = boosted
					existing.GraphBoosted = true
					continue
				}

				meta, err := e.index.Arena.GetMeta(vectorID)
				if err != nil || meta.PersonaID != personaID {
					continue
				}
				mem := metaToMemory(meta)
				mem.Score = float64(base[0].Score) * weight
				mem.GraphExpanded = true
				byID[vectorID] = mem
				order = append(order, vectorID)
				expanded++
			}
		}
	}

	out := make([]*MemoryRecord, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	sortMemoriesByScore(out)
	return out, expanded, nil
}

func resultsToMemories(results []arena.Result) []*MemoryRecord {
	out := make([]*MemoryRecord, 0, len(results))
	for _, r := range results {
		mem := metaToMemory(r.Metadata)
		mem.ID = r.ID
		mem.Score = float64(r.Score)
		out = append(out, mem)
	}
	return out
}

func metaToMemory(meta *arena.Metadata) *MemoryRecord {
	content := ""
	custom := meta.Custom
	if custom != nil {
		if oc, ok := custom["original_content"].(string); ok {
			content = oc
		}
	}
	return &MemoryRecord{
		ID:          meta.ID,
		PersonaID:   meta.PersonaID,
		Content:     content,
		ContentType: meta.ContentType,
		Source:      meta.Source,
		Tags:        meta.Tags,
		Custom:      custom,
		CreatedAt:   meta.CreatedAt,
		UpdatedAt:   meta.UpdatedAt,
	}
}

func avgScore(memories []*MemoryRecord) float64 {
	if len(memories) == 0 {
		return 0
	}
	var sum float64
	for _, m := range memories {
		sum += m.Score
	}
	return sum / float64(len(memories))
}

func sortMemoriesByScore(memories []*MemoryRecord) {
	for i := 1; i < len(memories); i++ {
		for j := i; j > 0 && memories[j].Score > memories[j-1].Score; j-- {
			memories[j], memories[j-1] = memories[j-1], memories[j]
		}
	}
}

// DeleteMemory removes a memory's vector from the shared index and its
// entity back-references from the shared graph.
func (e *Engine) DeleteMemory(ctx context.Context, personaID, memoryID string) error {
	const op = "DeleteMemory"

	e.mu.Lock()
	meta, err := e.index.Arena.GetMeta(memoryID)
	if err != nil || meta.PersonaID != personaID {
		e.mu.Unlock()
		return newEngineError(op, ErrMemoryNotFound)
	}
	err = e.index.Delete(memoryID)
	e.mu.Unlock()
	if err != nil {
		return newEngineError(op, err)
	}

	if e.store != nil {
		if err := e.store.DeleteVectorMetadata(ctx, memoryID); err != nil {
			log.Printf("core: DeleteMemory: failed to remove persisted metadata for %s: %v", memoryID, err)
		}
	}
	return nil
}

// NewID mints an external id from the engine's snowflake node, for callers
// (pkg/persona) that need an id before a memory exists yet, such as a
// shared conversation_id.
func (e *Engine) NewID() string {
	return e.mintID()
}

// ListMemories returns every memory scoped to personaID matching filter
// (persona_id is always implied), with no similarity ranking: a direct
// metadata scan used by conversation history and cleanup, not a vector
// search. Results are unordered; callers sort as their use case requires.
func (e *Engine) ListMemories(personaID string, filter *arena.Filter) []*MemoryRecord {
	if filter == nil {
		filter = &arena.Filter{Eq: map[string]interface{}{}}
	}
	if filter.Eq == nil {
		filter.Eq = map[string]interface{}{}
	}
	filter.Eq["persona_id"] = personaID

	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*MemoryRecord
	for _, id := range e.index.Arena.Ids() {
		meta, err := e.index.Arena.GetMeta(id)
		if err != nil || !filter.Matches(meta) {
			continue
		}
		out = append(out, metaToMemory(meta))
	}
	return out
}

// ExploreEntities runs spec.md §4.5's token-based entity search scoped to
// personaID: exact name match scores 1.0, substring/word-boundary term
// matches add smaller bonuses, the result is weighted by entity
// confidence and capped at limit.
func (e *Engine) ExploreEntities(personaID, query string, opts ...EntitySearchOption) ([]graph.Entity, error) {
	const op = "ExploreEntities"
	if personaID == "" || query == "" {
		return nil, newEngineError(op, ErrInvalidInput)
	}
	o := applyEntitySearchOptions(opts)

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.SearchEntities(personaID, query, graph.SearchOptions{
		Limit:         o.Limit,
		MinConfidence: o.MinConfidence,
		EntityType:    o.EntityType,
	}), nil
}

// GetGraphContext implements get_graph_context (spec.md §6): the
// deduplicated union of the given entity ids' relationships, scoped to
// personaID. Ids belonging to another persona are silently dropped, the
// same isolation rule vectorSearch applies via its persona_id filter.
func (e *Engine) GetGraphContext(personaID string, entityIDs []string, opts ...GraphContextOption) (graph.GraphContext, error) {
	const op = "GetGraphContext"
	if personaID == "" || len(entityIDs) == 0 || len(entityIDs) > 50 {
		return graph.GraphContext{}, newEngineError(op, ErrInvalidInput)
	}
	o := applyGraphContextOptions(opts)
	if o.Depth < 1 || o.Depth > 3 || o.MaxRelationships > 100 {
		return graph.GraphContext{}, newEngineError(op, ErrInvalidInput)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	scoped := make([]string, 0, len(entityIDs))
	for _, id := range entityIDs {
		if ent, err := e.graph.GetEntity(id); err == nil && ent.PersonaID == personaID {
			scoped = append(scoped, id)
		}
	}

	ctx, err := e.graph.GetGraphContext(scoped, graph.GraphContextOptions{
		IncludeRelationships: o.IncludeRelationships,
		MaxRelationships:     o.MaxRelationships,
		Depth:                o.Depth,
	})
	if err != nil {
		return graph.GraphContext{}, newEngineError(op, err)
	}
	return ctx, nil
}

// ReloadFromPersistence replays every persisted vector for personaID
// through the embedder and reinserts it into the shared index, logging
// and counting (not aborting on) per-memory failures (spec.md §4.8).
func (e *Engine) ReloadFromPersistence(ctx context.Context, personaID string) (*ReloadResult, error) {
	const op = "ReloadFromPersistence"
	if e.store == nil {
		return nil, newEngineError(op, ErrInvalidConfig)
	}

	records, err := e.store.ListVectorMetadata(ctx, personaID)
	if err != nil {
		return nil, newEngineError(op, err)
	}

	result := &ReloadResult{}
	for _, rec := range records {
		if e.index.Arena.Has(rec.ID) {
			continue
		}
		vec, err := e.embedder.Embed(ctx, rec.OriginalContent)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rec.ID, err))
			continue
		}

		meta := &arena.Metadata{
			ID:          rec.ID,
			Dimensions:  len(vec),
			PersonaID:   rec.PersonaID,
			ContentType: rec.ContentType,
			Source:      rec.Source,
			Tags:        rec.Tags,
			Custom:      rec.Custom,
			CreatedAt:   rec.CreatedAt,
			UpdatedAt:   rec.UpdatedAt,
		}
		if meta.Custom == nil {
			meta.Custom = map[string]interface{}{}
		}
		meta.Custom["original_content"] = arena.TruncateOriginalContent(rec.OriginalContent)

		e.mu.Lock()
		err = e.index.Insert(rec.ID, vec, meta)
		e.mu.Unlock()
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rec.ID, err))
			continue
		}
		result.Reloaded++
	}

	return result, nil
}
