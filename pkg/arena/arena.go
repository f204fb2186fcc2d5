// Package arena implements the fixed-budget vector arena: a contiguous
// float32 buffer with slot recycling, dimensionality/finiteness
// validation, and a linear-scan fallback search used when the HNSW index
// is not yet warmed up (spec.md §4.2).
package arena

import (
	"sort"
	"sync"
	"time"

	"github.com/oceanlab/personamem/pkg/vecmath"
)

// Metadata is the per-vector record owned by the arena (spec.md §3
// "VectorMetadata"). The indexed store shares this record read-only with
// the graph layer via vector_id back-references.
type Metadata struct {
	ID                string                 `json:"id"`
	Dimensions        int                    `json:"dimensions"`
	PersonaID         string                 `json:"persona_id,omitempty"`
	ContentType       string                 `json:"content_type,omitempty"`
	Source            string                 `json:"source,omitempty"`
	Tags              []string               `json:"tags,omitempty"`
	Custom            map[string]interface{} `json:"custom,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         *time.Time             `json:"updated_at,omitempty"`
}

// originalContentMaxLen is the §3 cap on Custom["original_content"].
const originalContentMaxLen = 1000

// TruncateOriginalContent truncates s to the §3-mandated 1000-character
// cap for Custom["original_content"].
func TruncateOriginalContent(s string) string {
	if len(s) <= originalContentMaxLen {
		return s
	}
	runes := []rune(s)
	if len(runes) <= originalContentMaxLen {
		return s
	}
	return string(runes[:originalContentMaxLen])
}

// Slot is an index into the arena's contiguous buffer.
type Slot int

// Filter describes a query-time metadata filter (spec.md §4.2 "Filter
// semantics"): equality on scalar custom/top-level fields, plus range
// operators on the "timestamp" field (mapped to CreatedAt).
type Filter struct {
	// Eq holds exact-match conditions keyed by field name. Supported
	// top-level fields: persona_id, content_type, source. Any other key is
	// looked up in Metadata.Custom.
	Eq map[string]interface{}

	// TimestampLT/LTE/GT/GTE implement $lt/$lte/$gt/$gte on "timestamp"
	// (compared against CreatedAt). Zero value means "unset".
	TimestampLT, TimestampLTE, TimestampGT, TimestampGTE time.Time
}

// Matches reports whether m satisfies every condition in f. A nil filter
// matches everything.
func (f *Filter) Matches(m *Metadata) bool {
	return f.matches(m)
}

func (f *Filter) matches(m *Metadata) bool {
	if f == nil {
		return true
	}
	for k, want := range f.Eq {
		var got interface{}
		switch k {
		case "persona_id":
			got = m.PersonaID
		case "content_type":
			got = m.ContentType
		case "source":
			got = m.Source
		default:
			if m.Custom == nil {
				return false
			}
			v, ok := m.Custom[k]
			if !ok {
				return false
			}
			got = v
		}
		if got != want {
			return false
		}
	}
	if !f.TimestampLT.IsZero() && !m.CreatedAt.Before(f.TimestampLT) {
		return false
	}
	if !f.TimestampLTE.IsZero() && m.CreatedAt.After(f.TimestampLTE) {
		return false
	}
	if !f.TimestampGT.IsZero() && !m.CreatedAt.After(f.TimestampGT) {
		return false
	}
	if !f.TimestampGTE.IsZero() && m.CreatedAt.Before(f.TimestampGTE) {
		return false
	}
	return true
}

// SearchOptions configures SearchLinear.
type SearchOptions struct {
	Limit         int
	Threshold     float32
	Metric        vecmath.Metric
	Filter        *Filter
	IncludeValues bool
}

// Result is one ranked hit from a search.
type Result struct {
	ID       string
	Score    float32
	Vector   []float32 // populated only if IncludeValues was set
	Metadata *Metadata
}

// Arena is a fixed-size contiguous float32 buffer holding every vector for
// one engine instance (all personas share one arena; isolation is a
// metadata-level concern, not a storage-level one — see pkg/persona).
type Arena struct {
	mu sync.RWMutex

	dimensions int
	maxVectors int
	buffer     []float32

	freeList []Slot
	nextSlot Slot

	idToSlot map[string]Slot
	slotToID map[Slot]string
	metadata map[string]*Metadata

	magCache *vecmath.MagnitudeCache
}

// New creates an arena for vectors of the given dimensionality, sized so
// that maxVectors = floor(memoryBudgetBytes / (dimensions*4)), per spec.md
// §3 "ArenaSlot".
func New(dimensions int, memoryBudgetBytes int64) *Arena {
	bytesPerVector := int64(dimensions) * 4
	maxVectors := 0
	if bytesPerVector > 0 {
		maxVectors = int(memoryBudgetBytes / bytesPerVector)
	}
	return &Arena{
		dimensions: dimensions,
		maxVectors: maxVectors,
		buffer:     make([]float32, int64(maxVectors)*int64(dimensions)),
		idToSlot:   make(map[string]Slot),
		slotToID:   make(map[Slot]string),
		metadata:   make(map[string]*Metadata),
		magCache:   vecmath.NewMagnitudeCache(10_000),
	}
}

// Dimensions returns the arena's fixed vector dimensionality D.
func (a *Arena) Dimensions() int {
	return a.dimensions
}

// MaxVectors returns the arena's slot capacity.
func (a *Arena) MaxVectors() int {
	return a.maxVectors
}

// Len returns the number of vectors currently stored.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.idToSlot)
}

func (a *Arena) validate(vec []float32) error {
	if len(vec) != a.dimensions {
		return ErrDimensionMismatch
	}
	if err := vecmath.Validate(vec); err != nil {
		return ErrInvalidVector
	}
	return nil
}

// Insert stores vec/meta under id, allocating a slot from the free-list
// (LIFO) or by bumping the cursor. Fails DuplicateId if id is present, and
// CapacityExceeded if no slot is available.
func (a *Arena) Insert(id string, vec []float32, meta *Metadata) (Slot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.idToSlot[id]; exists {
		return 0, ErrDuplicateID
	}
	if err := a.validate(vec); err != nil {
		return 0, err
	}

	slot, ok := a.allocSlot()
	if !ok {
		return 0, ErrCapacityExceeded
	}

	a.writeSlot(slot, vec)
	a.idToSlot[id] = slot
	a.slotToID[slot] = id

	m := cloneMetadata(meta)
	m.ID = id
	m.Dimensions = a.dimensions
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	a.metadata[id] = m

	return slot, nil
}

// allocSlot pops from the free-list first (LIFO reuse), else bumps
// nextSlot, per spec.md §3 "ArenaSlot".
func (a *Arena) allocSlot() (Slot, bool) {
	if n := len(a.freeList); n > 0 {
		s := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		return s, true
	}
	if int(a.nextSlot) >= a.maxVectors {
		return 0, false
	}
	s := a.nextSlot
	a.nextSlot++
	return s, true
}

func (a *Arena) writeSlot(slot Slot, vec []float32) {
	start := int(slot) * a.dimensions
	copy(a.buffer[start:start+a.dimensions], vec)
}

func (a *Arena) zeroSlot(slot Slot) {
	start := int(slot) * a.dimensions
	for i := start; i < start+a.dimensions; i++ {
		a.buffer[i] = 0
	}
}

func (a *Arena) readSlot(slot Slot) []float32 {
	start := int(slot) * a.dimensions
	out := make([]float32, a.dimensions)
	copy(out, a.buffer[start:start+a.dimensions])
	return out
}

// Get copies the vector for id out of the arena.
func (a *Arena) Get(id string) ([]float32, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	slot, ok := a.idToSlot[id]
	if !ok {
		return nil, ErrVectorNotFound
	}
	return a.readSlot(slot), nil
}

// GetWithMeta copies both the vector and its metadata out of the arena.
func (a *Arena) GetWithMeta(id string) ([]float32, *Metadata, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	slot, ok := a.idToSlot[id]
	if !ok {
		return nil, nil, ErrVectorNotFound
	}
	return a.readSlot(slot), cloneMetadata(a.metadata[id]), nil
}

// GetMeta copies only the metadata for id out of the arena.
func (a *Arena) GetMeta(id string) (*Metadata, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.metadata[id]
	if !ok {
		return nil, ErrVectorNotFound
	}
	return cloneMetadata(m), nil
}

// Has reports whether id currently has a live slot.
func (a *Arena) Has(id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.idToSlot[id]
	return ok
}

// Update overwrites the vector/metadata for id in place (same slot),
// invalidating the magnitude cache entry for id.
func (a *Arena) Update(id string, vec []float32, meta *Metadata) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot, ok := a.idToSlot[id]
	if !ok {
		return ErrVectorNotFound
	}
	if err := a.validate(vec); err != nil {
		return err
	}

	a.writeSlot(slot, vec)
	a.magCache.Invalidate(id)

	m := cloneMetadata(meta)
	m.ID = id
	m.Dimensions = a.dimensions
	if m.CreatedAt.IsZero() {
		m.CreatedAt = a.metadata[id].CreatedAt
	}
	now := time.Now()
	m.UpdatedAt = &now
	a.metadata[id] = m

	return nil
}

// Delete returns id's slot to the free-list, zeroes its bytes, invalidates
// the magnitude cache, and removes its metadata.
func (a *Arena) Delete(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	slot, ok := a.idToSlot[id]
	if !ok {
		return ErrVectorNotFound
	}

	a.zeroSlot(slot)
	a.freeList = append(a.freeList, slot)
	delete(a.idToSlot, id)
	delete(a.slotToID, slot)
	delete(a.metadata, id)
	a.magCache.Invalidate(id)

	return nil
}

// BatchItem is one (id, vector, metadata) triple for BatchInsert.
type BatchItem struct {
	ID       string
	Vector   []float32
	Metadata *Metadata
}

// BatchResult reports per-item success/failure; partial success is the
// normal outcome (spec.md §4.2).
type BatchResult struct {
	ID   string
	Slot Slot
	Err  error
}

// BatchInsert inserts each item independently, collecting per-item
// results. A failure on one item never rolls back prior successes.
func (a *Arena) BatchInsert(items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))
	for i, item := range items {
		slot, err := a.Insert(item.ID, item.Vector, item.Metadata)
		results[i] = BatchResult{ID: item.ID, Slot: slot, Err: err}
	}
	return results
}

// SearchLinear scans every live metadata entry, applies opts.Filter, scores
// surviving candidates under opts.Metric, and returns the top-k sorted
// descending by score. This is the fallback path used when the HNSW index
// is below its population threshold (spec.md §4.4).
func (a *Arena) SearchLinear(query []float32, opts SearchOptions) ([]Result, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(query) != a.dimensions {
		return nil, ErrDimensionMismatch
	}
	metric := opts.Metric
	if metric == "" {
		metric = vecmath.MetricCosine
	}

	queryMag := vecmath.Magnitude(query)

	results := make([]Result, 0, len(a.metadata))
	for id, meta := range a.metadata {
		if !opts.Filter.matches(meta) {
			continue
		}
		slot := a.idToSlot[id]
		vec := a.readSlot(slot)

		vecMag := a.magCache.GetOrCompute(id, vec)
		score, err := vecmath.Similarity(query, vec, metric, queryMag, vecMag)
		if err != nil {
			continue
		}
		if score < opts.Threshold {
			continue
		}
		r := Result{ID: id, Score: score, Metadata: cloneMetadata(meta)}
		if opts.IncludeValues {
			r.Vector = vec
		}
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID // deterministic tie-break
	})

	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// InvalidateMagnitude drops id's cached magnitude. Exposed so the HNSW
// layer (which shares the arena's vectors by id) can force a recompute
// after an out-of-band mutation.
func (a *Arena) InvalidateMagnitude(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.magCache.Invalidate(id)
}

// MagnitudeOf returns the cached L2 norm for id, computing it from vec if
// absent. Exposed so the HNSW index shares the arena's magnitude cache
// instead of recomputing norms on every distance comparison.
func (a *Arena) MagnitudeOf(id string, vec []float32) float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.magCache.GetOrCompute(id, vec)
}

// Ids returns every live external id, in no particular order. Used by
// rebuild_index (pkg/index) to reinsert every present vector.
func (a *Arena) Ids() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ids := make([]string, 0, len(a.idToSlot))
	for id := range a.idToSlot {
		ids = append(ids, id)
	}
	return ids
}

func cloneMetadata(m *Metadata) *Metadata {
	if m == nil {
		return &Metadata{}
	}
	out := *m
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.Custom != nil {
		out.Custom = make(map[string]interface{}, len(m.Custom))
		for k, v := range m.Custom {
			out.Custom[k] = v
		}
	}
	return &out
}
