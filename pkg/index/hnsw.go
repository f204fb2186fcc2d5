// Package index implements the HNSW proximity graph over arena-resident
// vectors, and the indexed store that routes searches between HNSW and the
// arena's linear fallback.
package index

import (
	"container/heap"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/oceanlab/personamem/pkg/vecmath"
)

// ErrEmptyGraph names the empty-graph condition. Search does not return it:
// a search before any node was inserted yields no results and a nil error.
var ErrEmptyGraph = errors.New("index: graph is empty")

// ErrDuplicateID indicates Insert targeted an id already present.
var ErrDuplicateID = errors.New("index: duplicate id")

// ErrNotFound indicates Remove targeted an id with no node.
var ErrNotFound = errors.New("index: id not found")

const maxLevel = 16

// VectorSource resolves a node id to its stored vector. The HNSW graph
// never copies vector bytes; it asks the arena for them on demand so a
// single copy of the data is ever live.
type VectorSource interface {
	Get(id string) ([]float32, error)
}

// Params configures construction and search behavior (spec.md §4.3).
type Params struct {
	M              int // neighbors per layer above 0 (typical 16)
	EfConstruction int // beam width used while inserting (typical 200, >= M)
	EfSearch       int // default beam width for Search (typical 50)
	Metric         vecmath.Metric
}

// DefaultParams returns the spec's typical values.
func DefaultParams() Params {
	return Params{M: 16, EfConstruction: 200, EfSearch: 50, Metric: vecmath.MetricCosine}
}

func (p Params) m0() int {
	return 2 * p.M
}

type node struct {
	id    string
	level int
	// neighbors[layer] is the set of neighbor ids at that layer.
	neighbors []map[string]struct{}
}

// HNSW is a layered proximity graph over vectors resolved through a
// VectorSource (normally the arena). It is safe for one writer / many
// readers under its own unexported lock, which covers one call at a time;
// ordering across several calls is not coordinated by HNSW.
type HNSW struct {
	mu sync.RWMutex

	params Params
	src    VectorSource
	magOf  func(id string, vec []float32) float32

	nodes      map[string]*node
	entryPoint string
	maxLevel   int

	rng *rand.Rand
}

// New creates an empty HNSW index resolving vectors through src. magOf, if
// non-nil, is used to obtain a cached magnitude for cosine comparisons
// (normally arena.Arena's magnitude cache); if nil, magnitudes are
// recomputed on every comparison.
func New(params Params, src VectorSource, magOf func(id string, vec []float32) float32) *HNSW {
	if params.M <= 0 {
		params = DefaultParams()
	}
	return &HNSW{
		params: params,
		src:    src,
		magOf:  magOf,
		nodes:  make(map[string]*node),
		rng:    rand.New(rand.NewSource(1)),
	}
}

// Size returns the number of live nodes.
func (h *HNSW) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

func (h *HNSW) vector(id string) []float32 {
	v, err := h.src.Get(id)
	if err != nil {
		return nil
	}
	return v
}

func (h *HNSW) magnitude(id string, v []float32) float32 {
	if h.magOf != nil {
		return h.magOf(id, v)
	}
	return vecmath.Magnitude(v)
}

func (h *HNSW) distance(queryVec []float32, queryMag float32, id string) float32 {
	v := h.vector(id)
	if v == nil {
		return float32(math.Inf(1))
	}
	d, err := vecmath.Distance(queryVec, v, h.params.Metric, queryMag, h.magnitude(id, v))
	if err != nil {
		return float32(math.Inf(1))
	}
	return d
}

// sampleLevel draws a level by geometric distribution with factor 1/ln(2),
// capped at maxLevel, per spec.md §4.3.
func (h *HNSW) sampleLevel() int {
	levelFactor := 1.0 / math.Log(2)
	lvl := int(math.Floor(-math.Log(h.rng.Float64()) * levelFactor))
	if lvl > maxLevel {
		lvl = maxLevel
	}
	return lvl
}

// Insert adds id/vec to the graph. vec is used only to compute distances
// during construction; the HNSW does not retain a copy (the arena owns
// the bytes; VectorSource.Get(id) is the source of truth afterward).
func (h *HNSW) Insert(id string, vec []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.nodes[id]; exists {
		return ErrDuplicateID
	}

	mag := h.magnitude(id, vec)
	lvl := h.sampleLevel()

	n := &node{id: id, level: lvl, neighbors: make([]map[string]struct{}, lvl+1)}
	for i := range n.neighbors {
		n.neighbors[i] = make(map[string]struct{})
	}

	if h.entryPoint == "" {
		h.nodes[id] = n
		h.entryPoint = id
		h.maxLevel = lvl
		return nil
	}

	added := make(map[int][]string) // layer -> neighbor ids added, for rollback
	rollback := func() {
		for layer, ids := range added {
			for _, nb := range ids {
				if nbNode, ok := h.nodes[nb]; ok && layer < len(nbNode.neighbors) {
					delete(nbNode.neighbors[layer], id)
				}
			}
		}
	}

	ep := h.entryPoint
	epLevel := h.nodes[ep].level

	// Greedy descend with beam 1 down to layer lvl+1.
	cur := ep
	for layer := epLevel; layer > lvl; layer-- {
		cur = h.greedyClosest(vec, mag, cur, layer)
	}

	candidates := []string{cur}
	for layer := min(lvl, epLevel); layer >= 0; layer-- {
		found, err := h.searchLayer(vec, mag, candidates, h.params.EfConstruction, layer)
		if err != nil {
			rollback()
			return err
		}
		candidates = found

		cap := h.params.M
		if layer == 0 {
			cap = h.params.m0()
		}
		neighbors := nearestIDs(found, cap, vec, mag, h)

		n.neighbors[layer] = make(map[string]struct{}, len(neighbors))
		for _, nb := range neighbors {
			n.neighbors[layer][nb] = struct{}{}
			nbNode := h.nodes[nb]
			if layer >= len(nbNode.neighbors) {
				continue
			}
			nbNode.neighbors[layer][id] = struct{}{}
			added[layer] = append(added[layer], nb)
			h.pruneLayer(nbNode, layer, cap)
		}
	}

	h.nodes[id] = n
	if lvl > h.maxLevel {
		h.maxLevel = lvl
		h.entryPoint = id
	}
	return nil
}

// pruneLayer keeps only the nearest cap neighbors of n at layer, by
// distance to n's own vector, per spec.md §4.3 "prune neighbors whose
// degree now exceeds the cap".
func (h *HNSW) pruneLayer(n *node, layer, cap int) {
	if len(n.neighbors[layer]) <= cap {
		return
	}
	vec := h.vector(n.id)
	mag := h.magnitude(n.id, vec)
	ids := make([]string, 0, len(n.neighbors[layer]))
	for id := range n.neighbors[layer] {
		ids = append(ids, id)
	}
	kept := nearestIDs(ids, cap, vec, mag, h)
	keptSet := make(map[string]struct{}, len(kept))
	for _, id := range kept {
		keptSet[id] = struct{}{}
	}
	for id := range n.neighbors[layer] {
		if _, ok := keptSet[id]; !ok {
			delete(n.neighbors[layer], id)
			if other, ok := h.nodes[id]; ok && layer < len(other.neighbors) {
				delete(other.neighbors[layer], n.id)
			}
		}
	}
}

// nearestIDs returns up to cap ids from candidates sorted by distance to
// (vec, mag) ascending, ties broken lexicographically.
func nearestIDs(candidates []string, cap int, vec []float32, mag float32, h *HNSW) []string {
	type scored struct {
		id string
		d  float32
	}
	scoredList := make([]scored, 0, len(candidates))
	for _, id := range candidates {
		scoredList = append(scoredList, scored{id: id, d: h.distance(vec, mag, id)})
	}
	sort.Slice(scoredList, func(i, j int) bool {
		if scoredList[i].d != scoredList[j].d {
			return scoredList[i].d < scoredList[j].d
		}
		return scoredList[i].id < scoredList[j].id
	})
	if len(scoredList) > cap {
		scoredList = scoredList[:cap]
	}
	out := make([]string, len(scoredList))
	for i, s := range scoredList {
		out[i] = s.id
	}
	return out
}

// greedyClosest performs one beam-1 descent step at layer, returning the
// closest neighbor of cur (or cur itself if no neighbor is closer).
func (h *HNSW) greedyClosest(queryVec []float32, queryMag float32, cur string, layer int) string {
	improved := true
	best := cur
	bestDist := h.distance(queryVec, queryMag, best)
	for improved {
		improved = false
		n := h.nodes[best]
		if layer >= len(n.neighbors) {
			break
		}
		for nb := range n.neighbors[layer] {
			d := h.distance(queryVec, queryMag, nb)
			if d < bestDist || (d == bestDist && nb < best) {
				bestDist = d
				best = nb
				improved = true
			}
		}
	}
	return best
}

// heapItem is one (id, distance) pair tracked by the search_layer heaps.
type heapItem struct {
	id   string
	dist float32
}

// minHeap orders candidates by ascending distance (nearest first to pop).
type minHeap []heapItem

func (h minHeap) Len() int { return len(h) }
func (h minHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].id < h[j].id
}
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxHeap orders the "best so far" result set by descending distance, so
// the worst candidate sits at the root for O(1) eviction checks.
type maxHeap []heapItem

func (h maxHeap) Len() int { return len(h) }
func (h maxHeap) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist > h[j].dist
	}
	return h[i].id > h[j].id
}
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// searchLayer implements spec.md §4.3's two-heap beam search at a single
// layer: a min-heap of candidates still to explore, and a max-heap of the
// numClosest best results found so far. Returns result ids sorted
// ascending by distance.
func (h *HNSW) searchLayer(queryVec []float32, queryMag float32, entryIDs []string, numClosest, layer int) ([]string, error) {
	visited := make(map[string]struct{}, numClosest*2)
	candidates := &minHeap{}
	results := &maxHeap{}

	heap.Init(candidates)
	heap.Init(results)

	for _, id := range entryIDs {
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}
		d := h.distance(queryVec, queryMag, id)
		heap.Push(candidates, heapItem{id: id, dist: d})
		heap.Push(results, heapItem{id: id, dist: d})
	}

	for candidates.Len() > 0 {
		nearest := (*candidates)[0]
		if results.Len() >= numClosest && nearest.dist > (*results)[0].dist {
			break
		}
		heap.Pop(candidates)

		n, ok := h.nodes[nearest.id]
		if !ok || layer >= len(n.neighbors) {
			continue
		}
		for nb := range n.neighbors[layer] {
			if _, seen := visited[nb]; seen {
				continue
			}
			visited[nb] = struct{}{}
			d := h.distance(queryVec, queryMag, nb)
			if results.Len() < numClosest || d < (*results)[0].dist {
				heap.Push(candidates, heapItem{id: nb, dist: d})
				heap.Push(results, heapItem{id: nb, dist: d})
				if results.Len() > numClosest {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]heapItem, len(*results))
	copy(out, *results)
	sort.Slice(out, func(i, j int) bool {
		if out[i].dist != out[j].dist {
			return out[i].dist < out[j].dist
		}
		return out[i].id < out[j].id
	})
	ids := make([]string, len(out))
	for i, it := range out {
		ids[i] = it.id
	}
	return ids, nil
}

// SearchResult is one ranked HNSW hit, translated to similarity.
type SearchResult struct {
	ID       string
	Distance float32
	Score    float32
}

// Search performs a k-NN query (spec.md §4.3 "Search"). ef, if 0, defaults
// to max(k, params.EfSearch).
func (h *HNSW) Search(query []float32, k int, ef int) ([]SearchResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.entryPoint == "" {
		return nil, nil
	}

	queryMag := vecmath.Magnitude(query)
	if ef <= 0 {
		ef = h.params.EfSearch
	}
	if k > ef {
		ef = k
	}

	cur := h.entryPoint
	epLevel := h.nodes[cur].level
	for layer := epLevel; layer > 0; layer-- {
		cur = h.greedyClosest(query, queryMag, cur, layer)
	}

	ids, err := h.searchLayer(query, queryMag, []string{cur}, ef, 0)
	if err != nil {
		return nil, err
	}
	if len(ids) > k {
		ids = ids[:k]
	}

	out := make([]SearchResult, 0, len(ids))
	for _, id := range ids {
		d := h.distance(query, queryMag, id)
		score, _ := vecmath.Similarity(query, h.vector(id), h.params.Metric, queryMag, h.magnitude(id, h.vector(id)))
		out = append(out, SearchResult{ID: id, Distance: d, Score: score})
	}
	return out, nil
}

// Remove deletes id and every incident edge on every layer it lived on. If
// id was the entry point, the highest-level surviving node is reselected
// (spec.md §4.3 "Remove").
func (h *HNSW) Remove(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.nodes[id]
	if !ok {
		return ErrNotFound
	}

	for layer, neighbors := range n.neighbors {
		for nb := range neighbors {
			if other, ok := h.nodes[nb]; ok && layer < len(other.neighbors) {
				delete(other.neighbors[layer], id)
			}
		}
	}
	delete(h.nodes, id)

	if h.entryPoint == id {
		h.reselectEntryPoint()
	}
	return nil
}

func (h *HNSW) reselectEntryPoint() {
	h.entryPoint = ""
	h.maxLevel = -1
	for id, n := range h.nodes {
		if n.level > h.maxLevel || (n.level == h.maxLevel && id < h.entryPoint) {
			h.entryPoint = id
			h.maxLevel = n.level
		}
	}
}
