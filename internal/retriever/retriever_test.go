package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/doctree-rag/internal/storage"
)

type fakeStore struct {
	chunks []*storage.ScoredChunk
	nodes  []*storage.ScoredNode
	ranges []*storage.ChunkRecord

	chunkErr error
	nodeErr  error
}

func (f *fakeStore) QueryChunks(_ context.Context, _ []float32, _ []string, limit int, _ float64) ([]*storage.ScoredChunk, error) {
	if f.chunkErr != nil {
		return nil, f.chunkErr
	}
	if len(f.chunks) > limit {
		return f.chunks[:limit], nil
	}
	return f.chunks, nil
}

func (f *fakeStore) QueryNodes(_ context.Context, _ []float32, _ []string, _ int) ([]*storage.ScoredNode, error) {
	if f.nodeErr != nil {
		return nil, f.nodeErr
	}
	return f.nodes, nil
}

func (f *fakeStore) GetChunkRange(_ context.Context, documentID string, fromIndex, toIndex int) ([]*storage.ChunkRecord, error) {
	var out []*storage.ChunkRecord
	for _, c := range f.ranges {
		if c.DocumentID == documentID && c.Index >= fromIndex && c.Index <= toIndex {
			out = append(out, c)
		}
	}
	return out, nil
}

// recordingStore captures the document set each chunk query was scoped to.
type recordingStore struct {
	fakeStore
	queried []string
}

func (r *recordingStore) QueryChunks(ctx context.Context, embedding []float32, documentIDs []string, limit int, minScore float64) ([]*storage.ScoredChunk, error) {
	r.queried = documentIDs
	return r.fakeStore.QueryChunks(ctx, embedding, documentIDs, limit, minScore)
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, storage.VectorDimension), nil
}

func scoredChunk(docID string, index int, nodeID string, score float64) *storage.ScoredChunk {
	return &storage.ScoredChunk{
		Chunk: storage.ChunkRecord{
			ID:         "chunk-" + docID,
			DocumentID: docID,
			Index:      index,
			NodeID:     nodeID,
			Content:    "content",
		},
		Score: score,
	}
}

// TestSearch_FusionBoost verifies that a perfect chunk hit whose section also
// tops routing caps out at 1.0 and ranks first.
func TestSearch_FusionBoost(t *testing.T) {
	store := &fakeStore{
		chunks: []*storage.ScoredChunk{
			scoredChunk("doc", 3, "node-a", 1.0),
			scoredChunk("doc", 1, "node-b", 0.8),
		},
		nodes: []*storage.ScoredNode{
			{Node: storage.NodeRecord{ID: "node-a"}, Score: 1.0},
		},
	}
	r := New(store, &fakeEmbedder{}, Config{})

	resp, err := r.Search(context.Background(), Request{Query: "test"})
	require.NoError(t, err)

	assert.Equal(t, ModeFusion, resp.Mode)
	require.Len(t, resp.Results, 2)

	first := resp.Results[0]
	assert.Equal(t, 3, first.ChunkIndex)
	assert.Equal(t, 1.0, first.VectorScore)
	assert.InDelta(t, 0.3, first.NodeBoost, 1e-9)
	assert.Equal(t, 1.0, first.FinalScore, "boosted score is capped at 1.0")

	second := resp.Results[1]
	assert.Equal(t, 0.0, second.NodeBoost, "node-b did not rank in routing")
	assert.Equal(t, 0.8, second.FinalScore)
}

// TestSearch_VectorFallback verifies flat-strategy documents get plain vector
// ranking with zero boosts, marked as such.
func TestSearch_VectorFallback(t *testing.T) {
	store := &fakeStore{
		chunks: []*storage.ScoredChunk{
			scoredChunk("doc", 1, "", 0.9),
			scoredChunk("doc", 2, "", 0.7),
		},
	}
	r := New(store, &fakeEmbedder{}, Config{})

	resp, err := r.Search(context.Background(), Request{Query: "test"})
	require.NoError(t, err)

	assert.Equal(t, ModeVector, resp.Mode)
	require.Len(t, resp.Results, 2)
	for _, res := range resp.Results {
		assert.Equal(t, 0.0, res.NodeBoost)
		assert.Equal(t, res.VectorScore, res.FinalScore)
	}
	assert.Equal(t, 1, resp.Results[0].ChunkIndex)
}

// TestSearch_TieBreak verifies equal final scores order by ascending index.
func TestSearch_TieBreak(t *testing.T) {
	store := &fakeStore{
		chunks: []*storage.ScoredChunk{
			scoredChunk("doc", 7, "", 0.8),
			scoredChunk("doc", 2, "", 0.8),
			scoredChunk("doc", 5, "", 0.8),
		},
	}
	r := New(store, &fakeEmbedder{}, Config{})

	resp, err := r.Search(context.Background(), Request{Query: "test"})
	require.NoError(t, err)

	indices := []int{resp.Results[0].ChunkIndex, resp.Results[1].ChunkIndex, resp.Results[2].ChunkIndex}
	assert.Equal(t, []int{2, 5, 7}, indices)
}

// TestSearch_NoHits verifies an empty store result is an empty vector response.
func TestSearch_NoHits(t *testing.T) {
	r := New(&fakeStore{}, &fakeEmbedder{}, Config{})

	resp, err := r.Search(context.Background(), Request{Query: "test"})
	require.NoError(t, err)
	assert.Equal(t, ModeVector, resp.Mode)
	assert.Empty(t, resp.Results)
}

// TestSearch_EmbedError verifies provider failures surface as ErrEmbedQuery.
func TestSearch_EmbedError(t *testing.T) {
	r := New(&fakeStore{}, &fakeEmbedder{err: errors.New("rate limited")}, Config{})

	_, err := r.Search(context.Background(), Request{Query: "test"})
	assert.ErrorIs(t, err, ErrEmbedQuery)
}

// TestSearch_StoreError verifies store failures surface as ErrStoreQuery.
func TestSearch_StoreError(t *testing.T) {
	r := New(&fakeStore{chunkErr: errors.New("connection refused")}, &fakeEmbedder{}, Config{})

	_, err := r.Search(context.Background(), Request{Query: "test"})
	assert.ErrorIs(t, err, ErrStoreQuery)
}

func parentChunk(index int, parentID string, score float64) *storage.ScoredChunk {
	return parentChunkInDoc("doc", index, parentID, score)
}

func parentChunkInDoc(docID string, index int, parentID string, score float64) *storage.ScoredChunk {
	return &storage.ScoredChunk{
		Chunk: storage.ChunkRecord{
			DocumentID:    docID,
			Index:         index,
			ParentChunkID: parentID,
			Content:       "content",
		},
		Score: score,
	}
}

// TestSearch_ParentChildExpansion verifies grouping by parent, neighbour
// expansion at decayed scores, and deterministic ordering.
func TestSearch_ParentChildExpansion(t *testing.T) {
	neighbours := make([]*storage.ChunkRecord, 0, 12)
	for i := 1; i <= 12; i++ {
		neighbours = append(neighbours, &storage.ChunkRecord{
			DocumentID: "doc", Index: i, ParentChunkID: "parent-x", Content: "content",
		})
	}
	store := &fakeStore{
		chunks: []*storage.ScoredChunk{
			parentChunk(5, "parent-2", 0.9),
			parentChunk(9, "parent-3", 0.7),
		},
		ranges: neighbours,
	}
	r := New(store, &fakeEmbedder{}, Config{})

	resp, err := r.Search(context.Background(), Request{Query: "test"})
	require.NoError(t, err)

	assert.Equal(t, ModeParentChild, resp.Mode)
	require.Len(t, resp.Results, 5)

	// Hits first, then expanded neighbours at score - 0.03*distance.
	indices := make([]int, 0, 5)
	for _, res := range resp.Results {
		indices = append(indices, res.ChunkIndex)
	}
	assert.Equal(t, []int{5, 4, 6, 9, 8}, indices)

	assert.InDelta(t, 0.9, resp.Results[0].FinalScore, 1e-9)
	assert.InDelta(t, 0.87, resp.Results[1].FinalScore, 1e-9)
	assert.InDelta(t, 0.87, resp.Results[2].FinalScore, 1e-9)
	assert.InDelta(t, 0.7, resp.Results[3].FinalScore, 1e-9)
	assert.InDelta(t, 0.67, resp.Results[4].FinalScore, 1e-9)
}

// TestSearch_ParentChildAcrossDocuments verifies that hits from different
// documents sharing a per-document parent id stay distinct: grouping and
// selection carry the document id, so no document's hit shadows another's.
func TestSearch_ParentChildAcrossDocuments(t *testing.T) {
	store := &fakeStore{
		chunks: []*storage.ScoredChunk{
			parentChunkInDoc("doc-a", 1, "parent-1", 0.95),
			parentChunkInDoc("doc-a", 2, "parent-1", 0.60),
			parentChunkInDoc("doc-b", 1, "parent-1", 0.90),
		},
	}
	r := New(store, &fakeEmbedder{}, Config{ExpandWindow: -1})

	resp, err := r.Search(context.Background(), Request{Query: "test"})
	require.NoError(t, err)

	assert.Equal(t, ModeParentChild, resp.Mode)
	require.Len(t, resp.Results, 3)

	docs := map[string]bool{}
	for _, res := range resp.Results {
		docs[res.DocumentID] = true
	}
	assert.True(t, docs["doc-a"])
	assert.True(t, docs["doc-b"])

	assert.Equal(t, "doc-a", resp.Results[0].DocumentID)
	assert.InDelta(t, 0.95, resp.Results[0].FinalScore, 1e-9)
	assert.Equal(t, "doc-b", resp.Results[1].DocumentID)
	assert.InDelta(t, 0.90, resp.Results[1].FinalScore, 1e-9)
	assert.InDelta(t, 0.60, resp.Results[2].FinalScore, 1e-9)
}

// TestSearch_DocumentSetRestriction verifies the candidate document set is
// passed through to the store.
func TestSearch_DocumentSetRestriction(t *testing.T) {
	store := &recordingStore{fakeStore: fakeStore{
		chunks: []*storage.ScoredChunk{scoredChunk("doc-a", 1, "", 0.9)},
	}}
	r := New(store, &fakeEmbedder{}, Config{})

	_, err := r.Search(context.Background(), Request{
		Query:       "test",
		DocumentIDs: []string{"doc-a", "doc-b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-a", "doc-b"}, store.queried)
}

// TestSearch_ParentChildFallback verifies that too little parent structure
// degrades to vector ranking, explicitly marked.
func TestSearch_ParentChildFallback(t *testing.T) {
	store := &fakeStore{
		chunks: []*storage.ScoredChunk{
			parentChunk(1, "parent-1", 0.8),
		},
	}
	r := New(store, &fakeEmbedder{}, Config{ExpandWindow: -1})

	resp, err := r.Search(context.Background(), Request{Query: "test"})
	require.NoError(t, err)

	assert.Equal(t, ModeVector, resp.Mode)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 0.8, resp.Results[0].FinalScore)
}

// TestSearch_TopKOverride verifies the per-request top_k takes effect.
func TestSearch_TopKOverride(t *testing.T) {
	store := &fakeStore{
		chunks: []*storage.ScoredChunk{
			scoredChunk("doc", 1, "", 0.9),
			scoredChunk("doc", 2, "", 0.8),
			scoredChunk("doc", 3, "", 0.7),
		},
	}
	r := New(store, &fakeEmbedder{}, Config{})

	resp, err := r.Search(context.Background(), Request{Query: "test", TopK: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}
