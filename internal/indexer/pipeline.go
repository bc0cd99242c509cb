// Package indexer orchestrates parse, chunk, embed and persist for one
// document, tracking an explicit lifecycle on the stored tree record.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bull/doctree-rag/internal/chunker"
	"github.com/bull/doctree-rag/internal/outline"
	"github.com/bull/doctree-rag/internal/storage"
)

// Store is the write side of the persistence layer the pipeline depends on.
type Store interface {
	SaveTree(ctx context.Context, tree *storage.TreeRecord, nodes []*storage.NodeRecord) error
	SaveChunks(ctx context.Context, documentID string, chunks []*storage.ChunkRecord) error
	AttachNodeEmbeddings(ctx context.Context, embeddings map[string][]float32) error
	AttachChunkEmbeddings(ctx context.Context, embeddings map[string][]float32) error
	UpdateDocumentStatus(ctx context.Context, documentID, status, errMsg string) error
}

// Embedder batches texts into vectors.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Summarizer produces optional section summaries for routing. May be nil.
type Summarizer interface {
	SummarizeSection(ctx context.Context, path, body string) (string, error)
}

// Request describes one document to index.
type Request struct {
	// DocumentID is generated when empty. Re-using an id replaces the
	// document wholesale.
	DocumentID string
	Title      string
	Text       string
	Strategy   chunker.Strategy
	Options    chunker.Options
}

// Result contains statistics about an indexing run.
type Result struct {
	DocumentID string
	Status     Status
	NodeCount  int
	ChunkCount int
	PageCount  int
	Duration   time.Duration
}

// Pipeline runs the indexing stages for one document at a time. Separate
// documents own disjoint id spaces, so instances may index concurrently.
type Pipeline struct {
	store      Store
	embedder   Embedder
	summarizer Summarizer
	logger     *slog.Logger
}

// NewPipeline creates an indexing pipeline. summarizer may be nil to skip
// section summaries.
func NewPipeline(store Store, embedder Embedder, summarizer Summarizer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      store,
		embedder:   embedder,
		summarizer: summarizer,
		logger:     logger,
	}
}

// Index runs the full pipeline: parse, persist the tree, chunk, persist the
// chunks, embed, attach vectors, mark completed. A failure after the tree is
// persisted marks the document failed but leaves committed records intact for
// inspection. If the document is deleted mid-run the pipeline aborts quietly
// with a nil result, since the race is expected.
func (p *Pipeline) Index(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	docID := req.DocumentID
	if docID == "" {
		docID = uuid.New().String()
	}
	lc := newLifecycle()

	// Parse failures happen before anything is persisted: surface directly.
	tree, err := outline.Parse(docID, req.Title, req.Text)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err := lc.advance(StatusParsing); err != nil {
		return nil, err
	}
	p.logger.Info("Parsed document", "document_id", docID, "nodes", tree.NodeCount, "pages", tree.PageCount)

	p.summarizeNodes(ctx, tree, req.Text)

	treeRecord, nodeRecords := buildTreeRecords(tree, req, lc.status)
	if err := p.store.SaveTree(ctx, treeRecord, nodeRecords); err != nil {
		return nil, fmt.Errorf("save tree: %w", err)
	}

	if err := p.toStage(ctx, lc, docID, StatusChunking); err != nil {
		return nil, err
	}
	chunks, err := buildChunks(req.Text, tree, req.Strategy, req.Options)
	if err != nil {
		return nil, p.fail(ctx, docID, lc, fmt.Errorf("chunk: %w", err))
	}
	chunkRecords := buildChunkRecords(docID, chunks)
	if err := p.store.SaveChunks(ctx, docID, chunkRecords); err != nil {
		if errors.Is(err, storage.ErrDocumentDeleted) {
			p.logger.Info("Document deleted during indexing, aborting", "document_id", docID)
			return nil, nil
		}
		return nil, p.fail(ctx, docID, lc, fmt.Errorf("save chunks: %w", err))
	}
	p.logger.Info("Chunked document", "document_id", docID, "strategy", req.Strategy, "chunks", len(chunkRecords))

	if err := p.toStage(ctx, lc, docID, StatusEmbedding); err != nil {
		return nil, err
	}
	if err := p.embedAndAttach(ctx, tree, chunkRecords); err != nil {
		return nil, p.fail(ctx, docID, lc, err)
	}

	if err := p.toStage(ctx, lc, docID, StatusCompleted); err != nil {
		return nil, err
	}

	result := &Result{
		DocumentID: docID,
		Status:     lc.status,
		NodeCount:  tree.NodeCount,
		ChunkCount: len(chunkRecords),
		PageCount:  tree.PageCount,
		Duration:   time.Since(start),
	}
	p.logger.Info("Indexing complete",
		"document_id", docID,
		"chunks", result.ChunkCount,
		"duration", result.Duration,
	)
	return result, nil
}

// Preview runs the committing path's chunking algorithm without persisting.
// Callers inspect the boundaries a commit with identical inputs would produce,
// so both paths must share one implementation.
func (p *Pipeline) Preview(text, title string, strategy chunker.Strategy, opts chunker.Options) ([]chunker.Chunk, error) {
	tree, err := outline.Parse("preview", title, text)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return buildChunks(text, tree, strategy, opts)
}

// buildChunks is the single chunking entry point shared by Index and Preview.
func buildChunks(text string, tree *outline.Tree, strategy chunker.Strategy, opts chunker.Options) ([]chunker.Chunk, error) {
	if strategy == "" {
		strategy = chunker.StrategyFixed
	}
	return chunker.Split(text, tree, strategy, opts)
}

// toStage validates the lifecycle step and mirrors it onto the stored record.
func (p *Pipeline) toStage(ctx context.Context, lc *lifecycle, docID string, next Status) error {
	if err := lc.advance(next); err != nil {
		return err
	}
	if err := p.store.UpdateDocumentStatus(ctx, docID, string(next), ""); err != nil {
		return fmt.Errorf("update status to %s: %w", next, err)
	}
	return nil
}

// fail marks the document failed, best-effort, and returns the causing error.
func (p *Pipeline) fail(ctx context.Context, docID string, lc *lifecycle, cause error) error {
	if err := lc.advance(StatusFailed); err != nil {
		return errors.Join(cause, err)
	}
	if err := p.store.UpdateDocumentStatus(ctx, docID, string(StatusFailed), cause.Error()); err != nil {
		p.logger.Warn("Failed to mark document failed", "document_id", docID, "error", err)
	}
	return cause
}

// summarizeNodes fills in section summaries where a summarizer is configured.
// Summaries enrich routing, they are not required: a failed request logs and
// moves on.
func (p *Pipeline) summarizeNodes(ctx context.Context, tree *outline.Tree, text string) {
	if p.summarizer == nil {
		return
	}
	for _, node := range tree.Nodes {
		body := text[node.CharStart:node.BodyEnd]
		if strings.TrimSpace(body) == "" {
			continue
		}
		summary, err := p.summarizer.SummarizeSection(ctx, tree.Path(node.ID), body)
		if err != nil {
			p.logger.Warn("Section summary failed, skipping", "node", node.Title, "error", err)
			continue
		}
		node.Summary = summary
	}
}

// embedAndAttach embeds node routing texts and chunk contents in one batch
// sequence and attaches the vectors to the stored points.
func (p *Pipeline) embedAndAttach(ctx context.Context, tree *outline.Tree, chunks []*storage.ChunkRecord) error {
	routingTexts := make([]string, len(tree.Nodes))
	for i, node := range tree.Nodes {
		routingTexts[i] = routingText(tree, node)
	}
	nodeVectors, err := p.embedder.EmbedTexts(ctx, routingTexts)
	if err != nil {
		return fmt.Errorf("embed nodes: %w", err)
	}
	if len(nodeVectors) != len(tree.Nodes) {
		return fmt.Errorf("embed nodes: expected %d vectors, got %d", len(tree.Nodes), len(nodeVectors))
	}
	nodeEmbeddings := make(map[string][]float32, len(tree.Nodes))
	for i, node := range tree.Nodes {
		nodeEmbeddings[node.ID] = nodeVectors[i]
	}
	if err := p.store.AttachNodeEmbeddings(ctx, nodeEmbeddings); err != nil {
		return fmt.Errorf("attach node embeddings: %w", err)
	}

	chunkTexts := make([]string, len(chunks))
	for i, chunk := range chunks {
		chunkTexts[i] = chunk.Content
	}
	chunkVectors, err := p.embedder.EmbedTexts(ctx, chunkTexts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(chunkVectors) != len(chunks) {
		return fmt.Errorf("embed chunks: expected %d vectors, got %d", len(chunks), len(chunkVectors))
	}
	chunkEmbeddings := make(map[string][]float32, len(chunks))
	for i, chunk := range chunks {
		chunkEmbeddings[chunk.ID] = chunkVectors[i]
	}
	if err := p.store.AttachChunkEmbeddings(ctx, chunkEmbeddings); err != nil {
		return fmt.Errorf("attach chunk embeddings: %w", err)
	}
	return nil
}

// routingText is what a node is embedded over: title, ancestor path and
// summary when present.
func routingText(tree *outline.Tree, node *outline.Node) string {
	parts := []string{node.Title, tree.Path(node.ID)}
	if node.Summary != "" {
		parts = append(parts, node.Summary)
	}
	return strings.Join(parts, "\n")
}

func buildTreeRecords(tree *outline.Tree, req Request, status Status) (*storage.TreeRecord, []*storage.NodeRecord) {
	now := time.Now().UTC()
	strategy := req.Strategy
	if strategy == "" {
		strategy = chunker.StrategyFixed
	}
	title := tree.Root().Title

	treeRecord := &storage.TreeRecord{
		DocumentID: tree.DocumentID,
		RootID:     tree.RootID,
		Title:      title,
		Strategy:   string(strategy),
		Status:     string(status),
		NodeCount:  tree.NodeCount,
		PageCount:  tree.PageCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	nodeRecords := make([]*storage.NodeRecord, len(tree.Nodes))
	for i, node := range tree.Nodes {
		nodeRecords[i] = &storage.NodeRecord{
			ID:           node.ID,
			DocumentID:   tree.DocumentID,
			ParentID:     node.ParentID,
			Level:        node.Level,
			SiblingIndex: node.SiblingIndex,
			Title:        node.Title,
			Path:         tree.Path(node.ID),
			Summary:      node.Summary,
			CharStart:    node.CharStart,
			CharEnd:      node.CharEnd,
			BodyEnd:      node.BodyEnd,
			PageStart:    node.PageStart,
			PageEnd:      node.PageEnd,
		}
	}
	return treeRecord, nodeRecords
}

func buildChunkRecords(documentID string, chunks []chunker.Chunk) []*storage.ChunkRecord {
	records := make([]*storage.ChunkRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = &storage.ChunkRecord{
			ID:              uuid.New().String(),
			DocumentID:      documentID,
			Index:           chunk.Index,
			Content:         chunk.Content,
			CharStart:       chunk.CharStart,
			CharEnd:         chunk.CharEnd,
			NodeID:          chunk.NodeID,
			NodePath:        chunk.NodePath,
			Level:           chunk.Level,
			SectionTitle:    chunk.SectionTitle,
			PageStart:       chunk.PageStart,
			PageEnd:         chunk.PageEnd,
			ParentChunkID:   chunk.ParentChunkID,
			ParentCharStart: chunk.ParentCharStart,
			ParentCharEnd:   chunk.ParentCharEnd,
		}
	}
	return records
}
