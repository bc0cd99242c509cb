// Package retriever answers similarity queries by fusing chunk vector scores
// with structural routing, with parent/child re-ranking when chunks carry
// parent linkage.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bull/doctree-rag/internal/storage"
)

var (
	// ErrEmbedQuery wraps embedding provider failures at query time.
	ErrEmbedQuery = errors.New("query embedding failed")
	// ErrStoreQuery wraps store failures at query time.
	ErrStoreQuery = errors.New("store query failed")
)

// Mode names the ranking path a response was produced by. Responses are never
// silently downgraded: when structural metadata is absent the response says so.
type Mode string

const (
	ModeFusion      Mode = "fusion"
	ModeVector      Mode = "vector"
	ModeParentChild Mode = "parent_child"
)

// Store is the read side of the chunk store the retriever depends on.
type Store interface {
	QueryNodes(ctx context.Context, embedding []float32, documentIDs []string, limit int) ([]*storage.ScoredNode, error)
	QueryChunks(ctx context.Context, embedding []float32, documentIDs []string, limit int, minScore float64) ([]*storage.ScoredChunk, error)
	GetChunkRange(ctx context.Context, documentID string, fromIndex, toIndex int) ([]*storage.ChunkRecord, error)
}

// Embedder embeds a search query into the chunk vector space.
type Embedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Config tunes ranking. Zero values select the defaults.
type Config struct {
	// TopK is the default result count.
	TopK int
	// MinScore drops chunk hits below this vector similarity.
	MinScore float64
	// RoutingLimit is how many nodes the routing search considers.
	RoutingLimit int
	// BoostWeight scales the routing score added to a chunk's vector score.
	BoostWeight float64
	// CandidateMultiplier over-fetches child candidates for parent grouping.
	CandidateMultiplier int
	// ExpandWindow widens parent/child results to siblings within this index
	// distance. Clamped to at most 3; negative disables expansion.
	ExpandWindow int
}

const (
	DefaultTopK                = 5
	DefaultMinScore            = 0.5
	DefaultRoutingLimit        = 10
	DefaultBoostWeight         = 0.3
	DefaultCandidateMultiplier = 6
	DefaultExpandWindow        = 1

	// maxCandidates caps the over-fetch regardless of top_k.
	maxCandidates = 200
	// expandDecay is the per-step score penalty for expanded neighbours.
	expandDecay = 0.03
)

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MinScore <= 0 {
		c.MinScore = DefaultMinScore
	}
	if c.RoutingLimit <= 0 {
		c.RoutingLimit = DefaultRoutingLimit
	}
	if c.BoostWeight <= 0 {
		c.BoostWeight = DefaultBoostWeight
	}
	if c.CandidateMultiplier <= 0 {
		c.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if c.ExpandWindow == 0 {
		c.ExpandWindow = DefaultExpandWindow
	}
	if c.ExpandWindow < 0 {
		c.ExpandWindow = 0
	}
	if c.ExpandWindow > 3 {
		c.ExpandWindow = 3
	}
	return c
}

// Request is one retrieval call.
type Request struct {
	Query string
	// DocumentIDs restricts the search to a candidate document set when
	// non-empty.
	DocumentIDs []string
	// TopK overrides the configured default when positive.
	TopK int
}

// Result is one ranked chunk with its score breakdown.
type Result struct {
	ChunkID      string
	DocumentID   string
	ChunkIndex   int
	Content      string
	CharStart    int
	CharEnd      int
	NodeID       string
	NodePath     string
	SectionTitle string
	PageStart    *int
	PageEnd      *int

	ParentChunkID string

	FinalScore  float64
	VectorScore float64
	NodeBoost   float64
}

// Response carries the ranked results and the mode that produced them.
type Response struct {
	Results []Result
	Mode    Mode
}

// Retriever is stateless per call; one instance serves concurrent queries.
type Retriever struct {
	store    Store
	embedder Embedder
	cfg      Config
}

// New creates a retriever over the given store and embedder.
func New(store Store, embedder Embedder, cfg Config) *Retriever {
	return &Retriever{
		store:    store,
		embedder: embedder,
		cfg:      cfg.withDefaults(),
	}
}

// Search embeds the query once, retrieves candidate chunks and ranks them.
// The ranking path depends on what metadata the hits carry: parent linkage
// selects parent/child re-ranking, node linkage selects routing fusion, and
// bare chunks fall back to plain vector order.
func (r *Retriever) Search(ctx context.Context, req Request) (*Response, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}

	vector, err := r.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedQuery, err)
	}

	// Over-fetch so fusion re-ordering has candidates beyond the cut line.
	hits, err := r.store.QueryChunks(ctx, vector, req.DocumentIDs, topK*2, r.cfg.MinScore)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreQuery, err)
	}
	if len(hits) == 0 {
		return &Response{Mode: ModeVector}, nil
	}

	if hasParentLinkage(hits) {
		return r.rankParentChild(ctx, vector, req.DocumentIDs, topK)
	}
	if hasNodeLinkage(hits) {
		return r.rankFusion(ctx, vector, req.DocumentIDs, topK, hits)
	}
	return &Response{Mode: ModeVector, Results: rankVector(hits, topK)}, nil
}

func hasParentLinkage(hits []*storage.ScoredChunk) bool {
	for _, h := range hits {
		if h.Chunk.ParentChunkID != "" {
			return true
		}
	}
	return false
}

func hasNodeLinkage(hits []*storage.ScoredChunk) bool {
	for _, h := range hits {
		if h.Chunk.NodeID != "" {
			return true
		}
	}
	return false
}

// rankVector returns plain vector order with zero boosts.
func rankVector(hits []*storage.ScoredChunk, topK int) []Result {
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		res := resultFromChunk(&h.Chunk, h.Score)
		res.FinalScore = h.Score
		results = append(results, res)
	}
	return sortAndTruncate(results, topK)
}

// rankFusion adds a routing boost to every chunk whose containing node was
// independently judged relevant: final = min(vector + routing*weight, 1.0).
func (r *Retriever) rankFusion(ctx context.Context, vector []float32, documentIDs []string, topK int, hits []*storage.ScoredChunk) (*Response, error) {
	nodes, err := r.store.QueryNodes(ctx, vector, documentIDs, r.cfg.RoutingLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreQuery, err)
	}

	routing := make(map[string]float64, len(nodes))
	for _, n := range nodes {
		routing[n.Node.ID] = n.Score
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		res := resultFromChunk(&h.Chunk, h.Score)
		if score, ok := routing[h.Chunk.NodeID]; ok {
			res.NodeBoost = score * r.cfg.BoostWeight
		}
		res.FinalScore = min(h.Score+res.NodeBoost, 1.0)
		results = append(results, res)
	}
	return &Response{Mode: ModeFusion, Results: sortAndTruncate(results, topK)}, nil
}

// chunkKey identifies a chunk across documents. Parent chunk ids and chunk
// indices are unique only within one document, so cross-document grouping and
// selection must carry the document id.
type chunkKey struct {
	documentID string
	index      int
}

// rankParentChild re-fetches a wider candidate set, groups children by parent
// chunk, ranks parents by their best child, and widens each hit to sibling
// chunks within the expand window at a decayed score. If grouping selects
// fewer than two hits the response degrades to plain vector order, and says so.
func (r *Retriever) rankParentChild(ctx context.Context, vector []float32, documentIDs []string, topK int) (*Response, error) {
	candidateK := min(max(topK*r.cfg.CandidateMultiplier, topK), maxCandidates)
	candidates, err := r.store.QueryChunks(ctx, vector, documentIDs, candidateK, r.cfg.MinScore)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreQuery, err)
	}

	// Rank parents by the best child score each attracted.
	type parentKey struct {
		documentID string
		parentID   string
	}
	type parentGroup struct {
		best     float64
		children []*storage.ScoredChunk
	}
	groups := make(map[parentKey]*parentGroup)
	var order []parentKey
	for _, c := range candidates {
		if c.Chunk.ParentChunkID == "" {
			continue
		}
		key := parentKey{c.Chunk.DocumentID, c.Chunk.ParentChunkID}
		g, ok := groups[key]
		if !ok {
			g = &parentGroup{}
			groups[key] = g
			order = append(order, key)
		}
		g.children = append(g.children, c)
		if c.Score > g.best {
			g.best = c.Score
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return groups[order[i]].best > groups[order[j]].best
	})

	// Take children of the best parents until top_k is covered, widening each
	// hit to its index neighbourhood.
	selected := make(map[chunkKey]Result)
	for _, key := range order {
		if len(selected) >= topK {
			break
		}
		for _, c := range groups[key].children {
			r.addWithNeighbours(ctx, c, selected)
		}
	}

	if len(selected) < 2 {
		// Not enough parent structure to re-rank meaningfully.
		return &Response{Mode: ModeVector, Results: rankVector(candidates, topK)}, nil
	}

	results := make([]Result, 0, len(selected))
	for _, res := range selected {
		results = append(results, res)
	}
	return &Response{Mode: ModeParentChild, Results: sortAndTruncate(results, topK)}, nil
}

// addWithNeighbours records a hit and its siblings within the expand window,
// keyed by document and chunk index with the best score winning. Expanded
// neighbours score max(hit - decay*distance, 0) so context never outranks the
// hit itself.
func (r *Retriever) addWithNeighbours(ctx context.Context, hit *storage.ScoredChunk, selected map[chunkKey]Result) {
	record := func(chunk *storage.ChunkRecord, score float64) {
		key := chunkKey{chunk.DocumentID, chunk.Index}
		prev, ok := selected[key]
		if ok && prev.FinalScore >= score {
			return
		}
		res := resultFromChunk(chunk, score)
		res.FinalScore = score
		selected[key] = res
	}

	record(&hit.Chunk, hit.Score)
	if r.cfg.ExpandWindow == 0 {
		return
	}

	from := max(hit.Chunk.Index-r.cfg.ExpandWindow, 1)
	to := hit.Chunk.Index + r.cfg.ExpandWindow
	neighbours, err := r.store.GetChunkRange(ctx, hit.Chunk.DocumentID, from, to)
	if err != nil {
		// Expansion is best-effort context; the hit itself is already in.
		return
	}
	for _, n := range neighbours {
		if n.Index == hit.Chunk.Index {
			continue
		}
		distance := n.Index - hit.Chunk.Index
		if distance < 0 {
			distance = -distance
		}
		score := hit.Score - expandDecay*float64(distance)
		if score < 0 {
			score = 0
		}
		record(n, score)
	}
}

func resultFromChunk(chunk *storage.ChunkRecord, vectorScore float64) Result {
	return Result{
		ChunkID:       chunk.ID,
		DocumentID:    chunk.DocumentID,
		ChunkIndex:    chunk.Index,
		Content:       chunk.Content,
		CharStart:     chunk.CharStart,
		CharEnd:       chunk.CharEnd,
		NodeID:        chunk.NodeID,
		NodePath:      chunk.NodePath,
		SectionTitle:  chunk.SectionTitle,
		PageStart:     chunk.PageStart,
		PageEnd:       chunk.PageEnd,
		ParentChunkID: chunk.ParentChunkID,
		VectorScore:   vectorScore,
	}
}

// sortAndTruncate orders by final score descending, ties broken by ascending
// chunk index then document id for determinism, and cuts to top_k.
func sortAndTruncate(results []Result, topK int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		if results[i].ChunkIndex != results[j].ChunkIndex {
			return results[i].ChunkIndex < results[j].ChunkIndex
		}
		return results[i].DocumentID < results[j].DocumentID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
