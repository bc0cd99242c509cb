package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP server with its tools registered.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Store     DocumentStore
	Searcher  Searcher
	Previewer Previewer
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "doctree-rag-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search",
		Description: "Search indexed documents semantically. Returns ranked chunks with section context and a score breakdown. The mode field says whether routing fusion, parent/child re-ranking or plain vector order produced the ranking.",
	}, makeSearchHandler(cfg.Searcher))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "preview_chunks",
		Description: "Chunk a document without indexing it. Shows the exact boundaries an index run with the same strategy and options would persist. Strategies: fixed, sentence, paragraph, parent_child, pageindex.",
	}, makePreviewHandler(cfg.Previewer))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List all indexed documents with their chunking strategy, lifecycle status and counts.",
	}, makeListHandler(cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document_status",
		Description: "Get one document's indexing lifecycle status (queued, parsing, chunking, embedding, completed or failed) and its failure reason if any.",
	}, makeStatusHandler(cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a document and all of its outline nodes and chunks from the index.",
	}, makeDeleteHandler(cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get collection-wide index statistics: document counts by lifecycle state, total stored points and the last indexing time.",
	}, makeIndexStatusHandler(cfg.Store))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
