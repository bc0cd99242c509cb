package storage

import "time"

// CollectionName is the single Qdrant collection holding trees, nodes and
// chunks, discriminated by the "type" payload field.
const CollectionName = "doctree"

// VectorDimension is the embedding size for text-embedding-3-small.
const VectorDimension = 1536

// TreeRecord is the per-document anchor point. It carries no vector; it holds
// lifecycle status and counters, and its presence is what makes a document
// visible to listings and to concurrent delete detection.
type TreeRecord struct {
	DocumentID string // UUID, doubles as the point id
	RootID     string
	Title      string
	Strategy   string
	Status     string // lifecycle state, owned by the indexer
	Error      string // failure reason when Status is failed
	NodeCount  int
	ChunkCount int
	PageCount  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NodeRecord is one section of a document's outline. Its "routing" vector is
// attached after upsert, once the routing text has been embedded.
type NodeRecord struct {
	ID           string // UUID
	DocumentID   string
	ParentID     string // empty for the root
	Level        int
	SiblingIndex int
	Title        string
	Path         string // ancestor titles joined with " > "
	Summary      string
	CharStart    int
	CharEnd      int
	BodyEnd      int
	PageStart    *int
	PageEnd      *int
}

// ChunkRecord is one retrieval fragment. Its "content" vector is attached
// after upsert. Node fields are populated only for structure-aware chunks,
// parent fields only for parent/child chunks.
type ChunkRecord struct {
	ID         string // UUID
	DocumentID string
	Index      int // dense, 1-based within the document
	Content    string
	CharStart  int
	CharEnd    int

	NodeID       string
	NodePath     string
	Level        int
	SectionTitle string
	PageStart    *int
	PageEnd      *int

	ParentChunkID   string
	ParentCharStart int
	ParentCharEnd   int
}

// ScoredNode is a routing search hit.
type ScoredNode struct {
	Node  NodeRecord
	Score float64
}

// ScoredChunk is a content search hit.
type ScoredChunk struct {
	Chunk ChunkRecord
	Score float64
}
