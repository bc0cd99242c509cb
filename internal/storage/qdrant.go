// Package storage persists document trees, outline nodes and chunks in a
// single Qdrant collection and serves the vector searches retrieval runs on.
package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore wraps the Qdrant client with connection management and health checks.
type QdrantStore struct {
	client *qdrant.Client
	host   string
	port   int
}

// NewQdrantStore creates a new Qdrant client with health validation.
// It performs a health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStore(host string, port int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	store := &QdrantStore{
		client: client,
		host:   host,
		port:   port,
	}

	ctx := context.Background()
	if err := store.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}

	return store, nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, exponentialBackoff)
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection ensures the collection exists with proper configuration:
// two named vectors ("routing" for nodes, "content" for chunks, both cosine)
// and payload indexes for every filterable field. Tree points use neither
// vector. Idempotent - safe to call multiple times.
func (s *QdrantStore) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == CollectionName {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: CollectionName,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			"content": {
				Size:     VectorDimension,
				Distance: qdrant.Distance_Cosine,
			},
			"routing": {
				Size:     VectorDimension,
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}
	return nil
}

// createPayloadIndexes creates indexes for all filterable fields.
// Without these indexes, filtering degrades to a full scan.
func (s *QdrantStore) createPayloadIndexes(ctx context.Context) error {
	keyword := []string{
		"type",        // Distinguish "tree" / "node" / "chunk"
		"document_id", // Scope every query and delete to one document
		"node_id",     // Lookup chunks by outline node
		"parent_chunk_id",
		"status",
		"strategy",
	}
	for _, field := range keyword {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: CollectionName,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	// chunk_index is queried by range for neighbour expansion.
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: CollectionName,
		FieldName:      "chunk_index",
		FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create index for field chunk_index: %w", err)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// upsertWithRetry performs an upsert with exponential backoff retry.
func (s *QdrantStore) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: CollectionName,
			Points:         points,
		})
		return err
	}, exponentialBackoff)
}

// documentFilter scopes a condition set to a candidate document set, optionally
// narrowed to a point type. An empty set matches every document.
func documentFilter(pointType string, documentIDs ...string) *qdrant.Filter {
	var must []*qdrant.Condition
	if pointType != "" {
		must = append(must, qdrant.NewMatch("type", pointType))
	}
	ids := make([]string, 0, len(documentIDs))
	for _, id := range documentIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	switch len(ids) {
	case 0:
	case 1:
		must = append(must, qdrant.NewMatch("document_id", ids[0]))
	default:
		must = append(must, qdrant.NewMatchKeywords("document_id", ids...))
	}
	return &qdrant.Filter{Must: must}
}

// SaveTree replaces a document's structural state: any previous points for
// the document are deleted, then the tree anchor and its nodes are inserted.
// Node routing vectors are attached later via AttachNodeEmbeddings.
func (s *QdrantStore) SaveTree(ctx context.Context, tree *TreeRecord, nodes []*NodeRecord) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points:         qdrant.NewPointsSelectorFilter(documentFilter("", tree.DocumentID)),
	})
	if err != nil {
		return fmt.Errorf("failed to clear previous document state: %w", err)
	}

	points := make([]*qdrant.PointStruct, 0, len(nodes)+1)
	points = append(points, &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(tree.DocumentID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(treePayload(tree)),
	})
	for _, node := range nodes {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(node.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
			Payload: qdrant.NewValueMap(nodePayload(node)),
		})
	}

	batchSize := 100
	for i := 0; i < len(points); i += batchSize {
		end := min(i+batchSize, len(points))
		if err := s.upsertWithRetry(ctx, points[i:end]); err != nil {
			return fmt.Errorf("failed to upsert tree batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// SaveChunks stores a document's chunks. Indices must be dense and unique;
// a duplicate aborts the write before anything is sent. If the document's
// tree point is gone the indexing run lost a race with a delete and
// ErrDocumentDeleted is returned so the caller can abort quietly.
// Content vectors are attached later via AttachChunkEmbeddings.
func (s *QdrantStore) SaveChunks(ctx context.Context, documentID string, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}

	seen := make(map[int]bool, len(chunks))
	for _, chunk := range chunks {
		if seen[chunk.Index] {
			return fmt.Errorf("%w: index %d in document %s", ErrDuplicateChunkIndex, chunk.Index, documentID)
		}
		seen[chunk.Index] = true
	}

	if _, err := s.GetDocument(ctx, documentID); err != nil {
		if err == ErrDocumentNotFound {
			return ErrDocumentDeleted
		}
		return err
	}

	batchSize := 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		batch := chunks[i:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, chunk := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(chunk.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
				Payload: qdrant.NewValueMap(chunkPayload(chunk)),
			}
		}
		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert chunk batch %d-%d: %w", i, end, err)
		}
	}

	return s.setTreePayload(ctx, documentID, map[string]any{
		"chunk_count": len(chunks),
		"updated_at":  time.Now().UTC().Format(time.RFC3339),
	})
}

// AttachNodeEmbeddings sets the routing vector on already-stored nodes.
func (s *QdrantStore) AttachNodeEmbeddings(ctx context.Context, embeddings map[string][]float32) error {
	return s.attachVectors(ctx, "routing", embeddings)
}

// AttachChunkEmbeddings sets the content vector on already-stored chunks.
func (s *QdrantStore) AttachChunkEmbeddings(ctx context.Context, embeddings map[string][]float32) error {
	return s.attachVectors(ctx, "content", embeddings)
}

func (s *QdrantStore) attachVectors(ctx context.Context, vectorName string, embeddings map[string][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}

	points := make([]*qdrant.PointVectors, 0, len(embeddings))
	for id, embedding := range embeddings {
		if len(embedding) != VectorDimension {
			return fmt.Errorf("%w: point %s has %d dimensions, expected %d",
				ErrDimensionMismatch, id, len(embedding), VectorDimension)
		}
		points = append(points, &qdrant.PointVectors{
			Id: qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				vectorName: qdrant.NewVector(embedding...),
			}),
		})
	}

	batchSize := 100
	for i := 0; i < len(points); i += batchSize {
		end := min(i+batchSize, len(points))
		_, err := s.client.UpdateVectors(ctx, &qdrant.UpdatePointVectors{
			CollectionName: CollectionName,
			Points:         points[i:end],
		})
		if err != nil {
			return fmt.Errorf("failed to attach %s vectors: %w", vectorName, err)
		}
	}
	return nil
}

// UpdateDocumentStatus patches the lifecycle fields on a document's tree point.
func (s *QdrantStore) UpdateDocumentStatus(ctx context.Context, documentID, status, errMsg string) error {
	return s.setTreePayload(ctx, documentID, map[string]any{
		"status":     status,
		"error":      errMsg,
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *QdrantStore) setTreePayload(ctx context.Context, documentID string, payload map[string]any) error {
	_, err := s.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: CollectionName,
		Payload:        qdrant.NewValueMap(payload),
		PointsSelector: qdrant.NewPointsSelector(qdrant.NewIDUUID(documentID)),
	})
	if err != nil {
		return fmt.Errorf("failed to update document %s: %w", documentID, err)
	}
	return nil
}

// GetDocument retrieves a document's tree record by id.
// Returns ErrDocumentNotFound if the document doesn't exist.
func (s *QdrantStore) GetDocument(ctx context.Context, documentID string) (*TreeRecord, error) {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: CollectionName,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(documentID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrDocumentNotFound
	}

	payload := result[0].Payload
	if typeVal, ok := payload["type"]; !ok || typeVal.GetStringValue() != "tree" {
		return nil, ErrDocumentNotFound
	}
	return treeFromPayload(documentID, payload), nil
}

// ListDocuments returns every document's tree record, newest first.
// Uses the Scroll API to page through all tree points.
func (s *QdrantStore) ListDocuments(ctx context.Context) ([]*TreeRecord, error) {
	var trees []*TreeRecord
	var offset *qdrant.PointId
	batchSize := uint32(100)

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: CollectionName,
			Filter:         documentFilter("tree"),
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll documents: %w", err)
		}

		for _, result := range results {
			trees = append(trees, treeFromPayload(result.Id.GetUuid(), result.Payload))
		}

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	sort.Slice(trees, func(i, j int) bool {
		return trees[i].CreatedAt.After(trees[j].CreatedAt)
	})
	return trees, nil
}

// ListNodes returns a document's outline nodes in document order.
func (s *QdrantStore) ListNodes(ctx context.Context, documentID string) ([]*NodeRecord, error) {
	var nodes []*NodeRecord
	var offset *qdrant.PointId
	batchSize := uint32(256)

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: CollectionName,
			Filter:         documentFilter("node", documentID),
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll nodes: %w", err)
		}

		for _, result := range results {
			nodes = append(nodes, nodeFromPayload(result.Id.GetUuid(), result.Payload))
		}

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].CharStart < nodes[j].CharStart
	})
	return nodes, nil
}

// GetChunkRange returns a document's chunks with fromIndex <= Index <= toIndex,
// ordered by index. Used both for listing and for neighbour expansion.
func (s *QdrantStore) GetChunkRange(ctx context.Context, documentID string, fromIndex, toIndex int) ([]*ChunkRecord, error) {
	filter := documentFilter("chunk", documentID)
	filter.Must = append(filter.Must, qdrant.NewRange("chunk_index", &qdrant.Range{
		Gte: qdrant.PtrOf(float64(fromIndex)),
		Lte: qdrant.PtrOf(float64(toIndex)),
	}))

	var chunks []*ChunkRecord
	var offset *qdrant.PointId
	batchSize := uint32(256)

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: CollectionName,
			Filter:         filter,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll chunks: %w", err)
		}

		for _, result := range results {
			chunks = append(chunks, chunkFromPayload(result.Id.GetUuid(), result.Payload))
		}

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})
	return chunks, nil
}

// QueryNodes performs vector similarity search over node routing vectors.
// An empty documentIDs set searches across all documents.
func (s *QdrantStore) QueryNodes(ctx context.Context, embedding []float32, documentIDs []string, limit int) ([]*ScoredNode, error) {
	if len(embedding) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), VectorDimension)
	}

	vectorName := "routing"
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(embedding...),
		Using:          &vectorName,
		Filter:         documentFilter("node", documentIDs...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search nodes: %w", err)
	}

	scored := make([]*ScoredNode, 0, len(results))
	for _, result := range results {
		scored = append(scored, &ScoredNode{
			Node:  *nodeFromPayload(result.Id.GetUuid(), result.Payload),
			Score: float64(result.Score),
		})
	}
	return scored, nil
}

// QueryChunks performs vector similarity search over chunk content vectors.
// Hits below minScore are filtered server-side. An empty documentIDs set
// searches across all documents.
func (s *QdrantStore) QueryChunks(ctx context.Context, embedding []float32, documentIDs []string, limit int, minScore float64) ([]*ScoredChunk, error) {
	if len(embedding) != VectorDimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), VectorDimension)
	}

	vectorName := "content"
	query := &qdrant.QueryPoints{
		CollectionName: CollectionName,
		Query:          qdrant.NewQuery(embedding...),
		Using:          &vectorName,
		Filter:         documentFilter("chunk", documentIDs...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if minScore > 0 {
		query.ScoreThreshold = qdrant.PtrOf(float32(minScore))
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	scored := make([]*ScoredChunk, 0, len(results))
	for _, result := range results {
		scored = append(scored, &ScoredChunk{
			Chunk: *chunkFromPayload(result.Id.GetUuid(), result.Payload),
			Score: float64(result.Score),
		})
	}
	return scored, nil
}

// DeleteDocument removes a document and everything derived from it: the tree
// point, all nodes, all chunks. Returns ErrDocumentNotFound if the document
// doesn't exist.
func (s *QdrantStore) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.GetDocument(ctx, documentID); err != nil {
		return err
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: CollectionName,
		Points:         qdrant.NewPointsSelectorFilter(documentFilter("", documentID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", documentID, err)
	}
	return nil
}

// CollectionInfo contains collection statistics.
type CollectionInfo struct {
	PointsCount uint64
}

// GetCollectionInfo retrieves collection statistics including total points count.
func (s *QdrantStore) GetCollectionInfo(ctx context.Context) (*CollectionInfo, error) {
	collection, err := s.client.GetCollectionInfo(ctx, CollectionName)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return &CollectionInfo{PointsCount: collection.GetPointsCount()}, nil
}
