//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a test store instance and ensures the collection
// exists. Skips the test if Qdrant is not running.
func setupTestStore(t *testing.T) *QdrantStore {
	store, err := NewQdrantStore("localhost", 6334)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}

	err = store.EnsureCollection(context.Background())
	require.NoError(t, err, "Failed to ensure collection")

	return store
}

func uniformEmbedding(value float32) []float32 {
	embedding := make([]float32, VectorDimension)
	for i := range embedding {
		embedding[i] = value
	}
	return embedding
}

func testTree(docID string) (*TreeRecord, []*NodeRecord) {
	now := time.Now().UTC().Truncate(time.Second)
	rootID := uuid.New().String()
	childID := uuid.New().String()
	pageOne := 1

	tree := &TreeRecord{
		DocumentID: docID,
		RootID:     rootID,
		Title:      "Test Handbook",
		Strategy:   "pageindex",
		Status:     "parsing",
		NodeCount:  2,
		PageCount:  1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	nodes := []*NodeRecord{
		{
			ID:         rootID,
			DocumentID: docID,
			Level:      0,
			Title:      "Test Handbook",
			Path:       "Test Handbook",
			CharStart:  0,
			CharEnd:    100,
			BodyEnd:    10,
			PageStart:  &pageOne,
			PageEnd:    &pageOne,
		},
		{
			ID:           childID,
			DocumentID:   docID,
			ParentID:     rootID,
			Level:        1,
			SiblingIndex: 0,
			Title:        "Setup",
			Path:         "Test Handbook > Setup",
			Summary:      "How to set things up",
			CharStart:    18,
			CharEnd:      100,
			BodyEnd:      100,
		},
	}
	return tree, nodes
}

func TestTreeRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	docID := uuid.New().String()
	tree, nodes := testTree(docID)

	err := store.SaveTree(ctx, tree, nodes)
	require.NoError(t, err, "Failed to save tree")

	retrieved, err := store.GetDocument(ctx, docID)
	require.NoError(t, err, "Failed to get document")

	assert.Equal(t, tree.DocumentID, retrieved.DocumentID)
	assert.Equal(t, tree.RootID, retrieved.RootID)
	assert.Equal(t, tree.Title, retrieved.Title)
	assert.Equal(t, tree.Strategy, retrieved.Strategy)
	assert.Equal(t, tree.Status, retrieved.Status)
	assert.Equal(t, tree.NodeCount, retrieved.NodeCount)
	assert.Equal(t, tree.PageCount, retrieved.PageCount)
	assert.WithinDuration(t, tree.CreatedAt, retrieved.CreatedAt, time.Second)

	stored, err := store.ListNodes(ctx, docID)
	require.NoError(t, err, "Failed to list nodes")
	require.Len(t, stored, 2)

	root := stored[0]
	assert.Equal(t, nodes[0].ID, root.ID)
	require.NotNil(t, root.PageStart)
	assert.Equal(t, 1, *root.PageStart)

	child := stored[1]
	assert.Equal(t, nodes[1].ID, child.ID)
	assert.Equal(t, root.ID, child.ParentID)
	assert.Equal(t, "Test Handbook > Setup", child.Path)
	assert.Nil(t, child.PageStart, "child has no page markers")

	// Cleanup
	require.NoError(t, store.DeleteDocument(ctx, docID))
}

func TestSaveTree_ReplacesPreviousState(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	docID := uuid.New().String()
	tree, nodes := testTree(docID)

	require.NoError(t, store.SaveTree(ctx, tree, nodes))

	// Re-save with a single node; the old child must be gone.
	tree2, nodes2 := testTree(docID)
	tree2.NodeCount = 1
	require.NoError(t, store.SaveTree(ctx, tree2, nodes2[:1]))

	stored, err := store.ListNodes(ctx, docID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)

	require.NoError(t, store.DeleteDocument(ctx, docID))
}

func TestChunkLifecycle(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	docID := uuid.New().String()
	tree, nodes := testTree(docID)
	require.NoError(t, store.SaveTree(ctx, tree, nodes))

	chunks := []*ChunkRecord{
		{
			ID:         uuid.New().String(),
			DocumentID: docID,
			Index:      1,
			Content:    "First chunk of text.",
			CharStart:  0,
			CharEnd:    20,
		},
		{
			ID:            uuid.New().String(),
			DocumentID:    docID,
			Index:         2,
			Content:       "Second chunk of text.",
			CharStart:     20,
			CharEnd:       41,
			ParentChunkID: "parent-1",
			ParentCharEnd: 41,
		},
	}
	require.NoError(t, store.SaveChunks(ctx, docID, chunks))

	// Duplicate index aborts before any write.
	dup := []*ChunkRecord{
		{ID: uuid.New().String(), DocumentID: docID, Index: 3},
		{ID: uuid.New().String(), DocumentID: docID, Index: 3},
	}
	err := store.SaveChunks(ctx, docID, dup)
	assert.ErrorIs(t, err, ErrDuplicateChunkIndex)

	embeddings := map[string][]float32{
		chunks[0].ID: uniformEmbedding(0.1),
		chunks[1].ID: uniformEmbedding(0.2),
	}
	require.NoError(t, store.AttachChunkEmbeddings(ctx, embeddings))

	hits, err := store.QueryChunks(ctx, uniformEmbedding(0.1), []string{docID}, 10, 0)
	require.NoError(t, err, "Failed to query chunks")
	require.NotEmpty(t, hits)
	assert.Equal(t, docID, hits[0].Chunk.DocumentID)

	ranged, err := store.GetChunkRange(ctx, docID, 2, 2)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "Second chunk of text.", ranged[0].Content)
	assert.Equal(t, "parent-1", ranged[0].ParentChunkID)

	// Chunk count lands on the tree point.
	doc, err := store.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ChunkCount)

	// Delete cascades to nodes and chunks.
	require.NoError(t, store.DeleteDocument(ctx, docID))
	remaining, err := store.GetChunkRange(ctx, docID, 1, 100)
	require.NoError(t, err)
	assert.Empty(t, remaining)

	// A save into a deleted document reports the race.
	err = store.SaveChunks(ctx, docID, chunks)
	assert.ErrorIs(t, err, ErrDocumentDeleted)
}

func TestUpdateDocumentStatus(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	docID := uuid.New().String()
	tree, nodes := testTree(docID)
	require.NoError(t, store.SaveTree(ctx, tree, nodes))

	require.NoError(t, store.UpdateDocumentStatus(ctx, docID, "failed", "embedding provider down"))

	doc, err := store.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, "failed", doc.Status)
	assert.Equal(t, "embedding provider down", doc.Error)

	require.NoError(t, store.DeleteDocument(ctx, docID))
}

func TestDeleteDocument_NotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	err := store.DeleteDocument(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestQueryChunks_DimensionMismatch(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	_, err := store.QueryChunks(context.Background(), []float32{0.1, 0.2}, nil, 5, 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQueryChunks_CandidateDocumentSet(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	docA := uuid.New().String()
	docB := uuid.New().String()

	for _, docID := range []string{docA, docB} {
		tree, nodes := testTree(docID)
		require.NoError(t, store.SaveTree(ctx, tree, nodes))

		chunk := &ChunkRecord{
			ID:         uuid.New().String(),
			DocumentID: docID,
			Index:      1,
			Content:    "Chunk in " + docID,
			CharEnd:    10,
		}
		require.NoError(t, store.SaveChunks(ctx, docID, []*ChunkRecord{chunk}))
		require.NoError(t, store.AttachChunkEmbeddings(ctx, map[string][]float32{
			chunk.ID: uniformEmbedding(0.1),
		}))
	}

	hits, err := store.QueryChunks(ctx, uniformEmbedding(0.1), []string{docA, docB}, 10, 0)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, h := range hits {
		seen[h.Chunk.DocumentID] = true
	}
	assert.True(t, seen[docA], "candidate set should include docA's chunk")
	assert.True(t, seen[docB], "candidate set should include docB's chunk")

	hits, err = store.QueryChunks(ctx, uniformEmbedding(0.1), []string{docA}, 10, 0)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, docA, h.Chunk.DocumentID)
	}

	require.NoError(t, store.DeleteDocument(ctx, docA))
	require.NoError(t, store.DeleteDocument(ctx, docB))
}

func TestGetCollectionInfo(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	docID := uuid.New().String()
	tree, nodes := testTree(docID)
	require.NoError(t, store.SaveTree(ctx, tree, nodes))

	info, err := store.GetCollectionInfo(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.PointsCount, uint64(len(nodes)+1))

	require.NoError(t, store.DeleteDocument(ctx, docID))
}
