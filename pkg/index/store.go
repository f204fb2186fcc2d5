package index

import (
	"log"
	"sort"
	"time"

	"github.com/oceanlab/personamem/pkg/arena"
	"github.com/oceanlab/personamem/pkg/vecmath"
)

// IndexThreshold is the population above which Search routes through
// HNSW rather than the arena's linear scan (spec.md §4.4, typical 100).
const IndexThreshold = 100

// Stats reports the indexed store's lifetime counters (spec.md §4.4 /
// supplemented statistics surface).
type Stats struct {
	Inserted        int64
	Deleted         int64
	HNSWHits        int64
	LinearFallbacks int64
}

// Store composes the vector arena with an HNSW index, routing inserts and
// searches between them per spec.md §4.4.
type Store struct {
	Arena *arena.Arena
	HNSW  *HNSW

	autoIndex bool
	stats     Stats
}

// NewStore builds a Store over ar, creating an HNSW index that resolves
// vectors through ar.
func NewStore(ar *arena.Arena, params Params) *Store {
	hnsw := New(params, arenaSource{ar}, ar.MagnitudeOf)
	return &Store{Arena: ar, HNSW: hnsw, autoIndex: true}
}

// arenaSource adapts *arena.Arena to the index.VectorSource interface.
type arenaSource struct {
	a *arena.Arena
}

func (s arenaSource) Get(id string) ([]float32, error) {
	return s.a.Get(id)
}

// Insert stores vec/meta in the arena and mirrors into HNSW when
// auto-indexing is enabled.
func (s *Store) Insert(id string, vec []float32, meta *arena.Metadata) error {
	if _, err := s.Arena.Insert(id, vec, meta); err != nil {
		return err
	}
	s.stats.Inserted++
	if s.autoIndex {
		if err := s.HNSW.Insert(id, vec); err != nil {
			log.Printf("index: hnsw insert failed for %s, vector remains searchable via linear fallback: %v", id, err)
		}
	}
	return nil
}

// BatchInsert disables auto-indexing for the duration, inserts every item
// into the arena, then indexes the successes afterward (spec.md §4.4).
func (s *Store) BatchInsert(items []arena.BatchItem) []arena.BatchResult {
	prevAuto := s.autoIndex
	s.autoIndex = false
	defer func() { s.autoIndex = prevAuto }()

	results := s.Arena.BatchInsert(items)
	s.stats.Inserted += int64(len(items)) - countErrors(results)

	if prevAuto {
		for i, r := range results {
			if r.Err != nil {
				continue
			}
			if err := s.HNSW.Insert(r.ID, items[i].Vector); err != nil {
				log.Printf("index: hnsw insert failed for %s during batch indexing: %v", r.ID, err)
			}
		}
	}
	return results
}

func countErrors(results []arena.BatchResult) int64 {
	var n int64
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Delete removes id from both the arena and the HNSW graph.
func (s *Store) Delete(id string) error {
	if err := s.Arena.Delete(id); err != nil {
		return err
	}
	s.stats.Deleted++
	if err := s.HNSW.Remove(id); err != nil && err != ErrNotFound {
		log.Printf("index: hnsw remove failed for %s: %v", id, err)
	}
	return nil
}

// SearchOptions configures Search, mirroring arena.SearchOptions with an
// explicit UseIndex override (spec.md §4.4 "use_index=false").
type SearchOptions struct {
	Limit         int
	Threshold     float32
	Metric        vecmath.Metric
	Filter        *arena.Filter
	IncludeValues bool
	UseIndex      *bool // nil = auto-route; false = force linear
}

// Search routes to HNSW when population is at or above IndexThreshold and
// the caller did not force linear; on HNSW failure it retries linearly and
// records a linear_fallback. Filters are not applied inside HNSW itself
// (the graph has no notion of metadata), so an HNSW hit is always
// re-checked against Filter before being returned.
func (s *Store) Search(query []float32, opts SearchOptions) ([]arena.Result, error) {
	forceLinear := opts.UseIndex != nil && !*opts.UseIndex
	useHNSW := !forceLinear && s.HNSW.Size() >= IndexThreshold

	if useHNSW {
		results, err := s.searchHNSW(query, opts)
		if err == nil {
			s.stats.HNSWHits++
			return results, nil
		}
		log.Printf("index: hnsw search failed, falling back to linear scan: %v", err)
		s.stats.LinearFallbacks++
	}

	return s.Arena.SearchLinear(query, arena.SearchOptions{
		Limit:         opts.Limit,
		Threshold:     opts.Threshold,
		Metric:        opts.Metric,
		Filter:        opts.Filter,
		IncludeValues: opts.IncludeValues,
	})
}

func (s *Store) searchHNSW(query []float32, opts SearchOptions) ([]arena.Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	hits, err := s.HNSW.Search(query, limit*3, 0) // over-fetch to survive filtering
	if err != nil {
		return nil, err
	}

	results := make([]arena.Result, 0, limit)
	for _, h := range hits {
		if h.Score < opts.Threshold {
			continue
		}
		vec, meta, err := s.Arena.GetWithMeta(h.ID)
		if err != nil {
			continue
		}
		if !opts.Filter.Matches(meta) {
			continue
		}
		r := arena.Result{ID: h.ID, Score: h.Score, Metadata: meta}
		if opts.IncludeValues {
			r.Vector = vec
		}
		results = append(results, r)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// RebuildResult reports rebuild_index's outcome (spec.md §4.4).
type RebuildResult struct {
	Indexed  int
	Total    int
	Duration time.Duration
}

// RebuildIndex clears the HNSW graph and reinserts every vector currently
// present in the arena, in id order for determinism.
func (s *Store) RebuildIndex() RebuildResult {
	start := time.Now()
	ids := s.Arena.Ids()
	sort.Strings(ids)

	s.HNSW = New(s.HNSW.params, arenaSource{s.Arena}, s.Arena.MagnitudeOf)

	indexed := 0
	for _, id := range ids {
		vec, err := s.Arena.Get(id)
		if err != nil {
			continue
		}
		if err := s.HNSW.Insert(id, vec); err != nil {
			log.Printf("index: rebuild skipped %s: %v", id, err)
			continue
		}
		indexed++
	}

	return RebuildResult{Indexed: indexed, Total: len(ids), Duration: time.Since(start)}
}

// Stats returns a snapshot of the store's lifetime counters.
func (s *Store) Stats() Stats {
	return s.stats
}
