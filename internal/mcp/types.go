// Package mcp exposes the document index over the Model Context Protocol.
package mcp

// SearchInput defines the input parameters for the search tool.
type SearchInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=The semantic search query"`
	// DocumentIDs restricts the search to a candidate set of documents.
	DocumentIDs []string `json:"document_ids,omitempty" jsonschema:"description=Restrict the search to these document ids"`
	// TopK is the maximum number of chunks to return.
	TopK int `json:"top_k,omitempty" jsonschema:"minimum=1,maximum=50,default=5,description=Maximum number of chunks to return"`
}

// SearchOutput contains the ranked search results.
type SearchOutput struct {
	// Results is the list of matching chunks, best first.
	Results []SearchResult `json:"results"`
	// Mode names the ranking path that produced the results.
	Mode string `json:"mode"`
	// Message provides informational context (e.g., "No matching chunks found").
	Message string `json:"message,omitempty"`
}

// SearchResult is a single ranked chunk with its score breakdown.
type SearchResult struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	// SectionPath is the chunk's ancestor section titles, when known.
	SectionPath  string `json:"section_path,omitempty"`
	SectionTitle string `json:"section_title,omitempty"`
	PageStart    *int   `json:"page_start,omitempty"`
	PageEnd      *int   `json:"page_end,omitempty"`

	FinalScore  float64 `json:"final_score"`
	VectorScore float64 `json:"vector_score"`
	NodeBoost   float64 `json:"node_boost,omitempty"`
}

// PreviewChunksInput defines the input parameters for the preview_chunks tool.
type PreviewChunksInput struct {
	// Text is the document text to chunk. Nothing is persisted.
	Text string `json:"text" jsonschema:"required,description=The document text to chunk"`
	// Title seeds the outline root when the text has no top-level heading.
	Title string `json:"title,omitempty" jsonschema:"description=Document title used as the outline root"`
	// Strategy selects the chunking strategy.
	Strategy string `json:"strategy,omitempty" jsonschema:"default=fixed,description=Chunking strategy: fixed sentence paragraph parent_child or pageindex"`
	// ChunkSize is the packing target in characters.
	ChunkSize int `json:"chunk_size,omitempty" jsonschema:"minimum=1,default=400,description=Target chunk size in characters"`
	// Overlap seeds each chunk with the tail of its predecessor.
	Overlap int `json:"overlap,omitempty" jsonschema:"minimum=0,default=50,description=Overlap between consecutive chunks in characters"`
	// MinChunkSize merges undersized chunks forward.
	MinChunkSize int `json:"min_chunk_size,omitempty" jsonschema:"minimum=0,description=Chunks below this size merge into their successor"`
}

// PreviewChunksOutput contains the chunk boundaries a commit would produce.
type PreviewChunksOutput struct {
	Chunks []PreviewChunk `json:"chunks"`
	Count  int            `json:"count"`
	// Strategy is the normalized strategy that was applied.
	Strategy string `json:"strategy"`
}

// PreviewChunk is one chunk boundary from a preview run.
type PreviewChunk struct {
	Index        int    `json:"index"`
	Content      string `json:"content"`
	CharStart    int    `json:"char_start"`
	CharEnd      int    `json:"char_end"`
	CharCount    int    `json:"char_count"`
	SectionPath  string `json:"section_path,omitempty"`
	SectionTitle string `json:"section_title,omitempty"`
	ParentID     string `json:"parent_id,omitempty"`
}

// ListDocumentsInput defines the input parameters for the list_documents tool.
// This tool takes no parameters and lists all indexed documents.
type ListDocumentsInput struct {
	// No input parameters required
}

// ListDocumentsOutput contains the list of all indexed documents.
type ListDocumentsOutput struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

// DocumentInfo summarizes one indexed document.
type DocumentInfo struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Strategy   string `json:"strategy"`
	Status     string `json:"status"`
	NodeCount  int    `json:"node_count"`
	ChunkCount int    `json:"chunk_count"`
	PageCount  int    `json:"page_count,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// GetDocumentStatusInput defines the input parameters for the
// get_document_status tool.
type GetDocumentStatusInput struct {
	// DocumentID is the document to inspect.
	DocumentID string `json:"document_id" jsonschema:"required,description=The document id to inspect"`
}

// GetDocumentStatusOutput reports a document's indexing lifecycle state.
type GetDocumentStatusOutput struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Strategy   string `json:"strategy,omitempty"`
	// Status is the lifecycle state: queued, parsing, chunking, embedding,
	// completed or failed.
	Status string `json:"status,omitempty"`
	// Error is the failure reason when Status is failed.
	Error      string `json:"error,omitempty"`
	NodeCount  int    `json:"node_count,omitempty"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	UpdatedAt  string `json:"updated_at,omitempty"`
	// Found indicates whether the document exists.
	Found bool `json:"found"`
}

// DeleteDocumentInput defines the input parameters for the delete_document tool.
type DeleteDocumentInput struct {
	// DocumentID is the document to delete.
	DocumentID string `json:"document_id" jsonschema:"required,description=The document id to delete"`
}

// DeleteDocumentOutput reports the outcome of a delete.
type DeleteDocumentOutput struct {
	DocumentID string `json:"document_id"`
	// Deleted indicates whether the document existed and was removed.
	Deleted bool `json:"deleted"`
	// Message provides informational context for not-found cases.
	Message string `json:"message,omitempty"`
}

// GetIndexStatusInput defines the input parameters for the get_index_status
// tool. This tool takes no parameters.
type GetIndexStatusInput struct {
	// No input parameters required
}

// GetIndexStatusOutput reports collection-wide index statistics.
type GetIndexStatusOutput struct {
	TotalDocuments int `json:"total_documents"`
	// TotalPoints counts every stored point: trees, nodes and chunks.
	TotalPoints int `json:"total_points"`
	// InProgress counts documents not yet completed or failed.
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
	// LastIndexedAt is the newest document's update time, RFC 3339.
	LastIndexedAt string `json:"last_indexed_at,omitempty"`
}
