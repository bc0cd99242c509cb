package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/doctree-rag/internal/chunker"
	"github.com/bull/doctree-rag/internal/retriever"
	"github.com/bull/doctree-rag/internal/storage"
)

// Searcher answers ranked retrieval queries.
type Searcher interface {
	Search(ctx context.Context, req retriever.Request) (*retriever.Response, error)
}

// Previewer chunks text without persisting, with the committing algorithm.
type Previewer interface {
	Preview(text, title string, strategy chunker.Strategy, opts chunker.Options) ([]chunker.Chunk, error)
}

// DocumentStore is the read/delete surface the document tools need.
type DocumentStore interface {
	ListDocuments(ctx context.Context) ([]*storage.TreeRecord, error)
	GetDocument(ctx context.Context, documentID string) (*storage.TreeRecord, error)
	DeleteDocument(ctx context.Context, documentID string) error
	GetCollectionInfo(ctx context.Context) (*storage.CollectionInfo, error)
}

// makeSearchHandler creates the search tool handler. The ranking mode is
// reported back so callers can tell a fused response from a plain vector one.
func makeSearchHandler(searcher Searcher) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		resp, err := searcher.Search(ctx, retriever.Request{
			Query:       input.Query,
			DocumentIDs: input.DocumentIDs,
			TopK:        input.TopK,
		})
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]SearchResult, 0, len(resp.Results))
		for _, r := range resp.Results {
			results = append(results, SearchResult{
				ChunkID:      r.ChunkID,
				DocumentID:   r.DocumentID,
				ChunkIndex:   r.ChunkIndex,
				Content:      r.Content,
				CharStart:    r.CharStart,
				CharEnd:      r.CharEnd,
				SectionPath:  r.NodePath,
				SectionTitle: r.SectionTitle,
				PageStart:    r.PageStart,
				PageEnd:      r.PageEnd,
				FinalScore:   r.FinalScore,
				VectorScore:  r.VectorScore,
				NodeBoost:    r.NodeBoost,
			})
		}

		output := SearchOutput{Results: results, Mode: string(resp.Mode)}
		if len(results) == 0 {
			output.Message = "No matching chunks found. Try broader search terms."
		}
		return nil, output, nil
	}
}

// makePreviewHandler creates the preview_chunks tool handler. Previews share
// the committing path's chunking code, so the boundaries shown here are the
// boundaries an index run with identical inputs would persist.
func makePreviewHandler(previewer Previewer) func(
	context.Context, *mcp.CallToolRequest, PreviewChunksInput,
) (*mcp.CallToolResult, PreviewChunksOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input PreviewChunksInput) (
		*mcp.CallToolResult, PreviewChunksOutput, error,
	) {
		strategy := chunker.StrategyFixed
		if input.Strategy != "" {
			parsed, err := chunker.ParseStrategy(input.Strategy)
			if err != nil {
				return nil, PreviewChunksOutput{}, err
			}
			strategy = parsed
		}

		chunks, err := previewer.Preview(input.Text, input.Title, strategy, chunker.Options{
			ChunkSize:    input.ChunkSize,
			Overlap:      input.Overlap,
			MinChunkSize: input.MinChunkSize,
		})
		if err != nil {
			return nil, PreviewChunksOutput{}, fmt.Errorf("preview failed: %w", err)
		}

		preview := make([]PreviewChunk, 0, len(chunks))
		for _, c := range chunks {
			preview = append(preview, PreviewChunk{
				Index:        c.Index,
				Content:      c.Content,
				CharStart:    c.CharStart,
				CharEnd:      c.CharEnd,
				CharCount:    c.CharCount,
				SectionPath:  c.NodePath,
				SectionTitle: c.SectionTitle,
				ParentID:     c.ParentChunkID,
			})
		}

		return nil, PreviewChunksOutput{
			Chunks:   preview,
			Count:    len(preview),
			Strategy: string(strategy),
		}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(store DocumentStore) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		trees, err := store.ListDocuments(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		documents := make([]DocumentInfo, 0, len(trees))
		for _, tree := range trees {
			documents = append(documents, DocumentInfo{
				DocumentID: tree.DocumentID,
				Title:      tree.Title,
				Strategy:   tree.Strategy,
				Status:     tree.Status,
				NodeCount:  tree.NodeCount,
				ChunkCount: tree.ChunkCount,
				PageCount:  tree.PageCount,
				CreatedAt:  tree.CreatedAt.Format(time.RFC3339),
				UpdatedAt:  tree.UpdatedAt.Format(time.RFC3339),
			})
		}

		return nil, ListDocumentsOutput{
			Documents: documents,
			Count:     len(documents),
		}, nil
	}
}

// makeStatusHandler creates the get_document_status tool handler. A missing
// document is a normal answer, not an error.
func makeStatusHandler(store DocumentStore) func(
	context.Context, *mcp.CallToolRequest, GetDocumentStatusInput,
) (*mcp.CallToolResult, GetDocumentStatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetDocumentStatusInput) (
		*mcp.CallToolResult, GetDocumentStatusOutput, error,
	) {
		tree, err := store.GetDocument(ctx, input.DocumentID)
		if err != nil {
			if errors.Is(err, storage.ErrDocumentNotFound) {
				return nil, GetDocumentStatusOutput{
					DocumentID: input.DocumentID,
					Found:      false,
				}, nil
			}
			return nil, GetDocumentStatusOutput{}, fmt.Errorf("failed to get document: %w", err)
		}

		return nil, GetDocumentStatusOutput{
			DocumentID: tree.DocumentID,
			Title:      tree.Title,
			Strategy:   tree.Strategy,
			Status:     tree.Status,
			Error:      tree.Error,
			NodeCount:  tree.NodeCount,
			ChunkCount: tree.ChunkCount,
			UpdatedAt:  tree.UpdatedAt.Format(time.RFC3339),
			Found:      true,
		}, nil
	}
}

// makeDeleteHandler creates the delete_document tool handler. Deletes cascade
// to the document's nodes and chunks in the store.
func makeDeleteHandler(store DocumentStore) func(
	context.Context, *mcp.CallToolRequest, DeleteDocumentInput,
) (*mcp.CallToolResult, DeleteDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DeleteDocumentInput) (
		*mcp.CallToolResult, DeleteDocumentOutput, error,
	) {
		err := store.DeleteDocument(ctx, input.DocumentID)
		if err != nil {
			if errors.Is(err, storage.ErrDocumentNotFound) {
				return nil, DeleteDocumentOutput{
					DocumentID: input.DocumentID,
					Deleted:    false,
					Message:    "Document not found. It may already have been deleted.",
				}, nil
			}
			return nil, DeleteDocumentOutput{}, fmt.Errorf("failed to delete document: %w", err)
		}

		return nil, DeleteDocumentOutput{
			DocumentID: input.DocumentID,
			Deleted:    true,
		}, nil
	}
}

// makeIndexStatusHandler creates the get_index_status tool handler.
func makeIndexStatusHandler(store DocumentStore) func(
	context.Context, *mcp.CallToolRequest, GetIndexStatusInput,
) (*mcp.CallToolResult, GetIndexStatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetIndexStatusInput) (
		*mcp.CallToolResult, GetIndexStatusOutput, error,
	) {
		trees, err := store.ListDocuments(ctx)
		if err != nil {
			return nil, GetIndexStatusOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		info, err := store.GetCollectionInfo(ctx)
		if err != nil {
			return nil, GetIndexStatusOutput{}, fmt.Errorf("failed to get collection info: %w", err)
		}

		output := GetIndexStatusOutput{
			TotalDocuments: len(trees),
			TotalPoints:    int(info.PointsCount),
		}
		var newest time.Time
		for _, tree := range trees {
			switch tree.Status {
			case "completed":
			case "failed":
				output.Failed++
			default:
				output.InProgress++
			}
			if tree.UpdatedAt.After(newest) {
				newest = tree.UpdatedAt
			}
		}
		if !newest.IsZero() {
			output.LastIndexedAt = newest.Format(time.RFC3339)
		}
		return nil, output, nil
	}
}
