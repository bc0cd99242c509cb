// Package main provides the indexing CLI for the document store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/doctree-rag/internal/chunker"
	"github.com/bull/doctree-rag/internal/embedding"
	"github.com/bull/doctree-rag/internal/indexer"
	"github.com/bull/doctree-rag/internal/metadata"
	"github.com/bull/doctree-rag/internal/source"
	"github.com/bull/doctree-rag/internal/storage"
)

var (
	flagStrategy     string
	flagChunkSize    int
	flagOverlap      int
	flagMinChunkSize int
	flagTitle        string
	flagSummaries    bool
)

var rootCmd = &cobra.Command{
	Use:   "doctree-sync",
	Short: "Document indexing tool for the doctree collection",
	Long:  "CLI tool for building and managing the structured document index in Qdrant",
}

var syncCmd = &cobra.Command{
	Use:   "sync <owner> <repo> <path>",
	Short: "Index every document under a GitHub repository directory",
	Long: `Fetches all markdown and text files under a repository directory and
indexes each one: outline parsing, chunking, embedding, storage.

Document ids are derived from the repository path, so re-running sync
replaces previously indexed versions of the same files.

Environment variables:
  QDRANT_HOST     Qdrant hostname (default: localhost)
  QDRANT_PORT     Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY  OpenAI API key for embeddings (required)
  EMBEDDING_MODEL Embedding model override (optional)
  GITHUB_TOKEN    GitHub token for higher rate limits (optional)`,
	Args: cobra.ExactArgs(3),
	RunE: runSync,
}

var indexCmd = &cobra.Command{
	Use:   "index <file>",
	Short: "Index a single document from disk",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Show the chunk boundaries an index run would produce, without persisting",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and all of its nodes and chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	RunE:  runList,
}

var chunksCmd = &cobra.Command{
	Use:   "chunks <document-id>",
	Short: "Print an indexed document's chunks in index order",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunks,
}

func init() {
	for _, cmd := range []*cobra.Command{syncCmd, indexCmd, previewCmd} {
		cmd.Flags().StringVar(&flagStrategy, "strategy", "fixed", "chunking strategy: fixed, sentence, paragraph, parent_child, pageindex")
		cmd.Flags().IntVar(&flagChunkSize, "chunk-size", 0, "target chunk size in characters (default 400)")
		cmd.Flags().IntVar(&flagOverlap, "overlap", 0, "overlap between consecutive chunks (default 50)")
		cmd.Flags().IntVar(&flagMinChunkSize, "min-chunk-size", 0, "merge chunks below this size into their successor")
	}
	indexCmd.Flags().StringVar(&flagTitle, "title", "", "document title (default: derived from the file)")
	previewCmd.Flags().StringVar(&flagTitle, "title", "", "document title (default: derived from the file)")
	syncCmd.Flags().BoolVar(&flagSummaries, "summaries", false, "generate section summaries for routing (extra LLM calls)")
	indexCmd.Flags().BoolVar(&flagSummaries, "summaries", false, "generate section summaries for routing (extra LLM calls)")

	rootCmd.AddCommand(syncCmd, indexCmd, previewCmd, deleteCmd, listCmd, chunksCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// connect sets up the store and embedding stack shared by the write commands.
func connect(ctx context.Context) (*storage.QdrantStore, *indexer.Pipeline, error) {
	qdrantHost := getEnv("QDRANT_HOST", "localhost")
	qdrantPort := getEnvInt("QDRANT_PORT", 6334)

	fmt.Printf("Connecting to Qdrant at %s:%d...\n", qdrantHost, qdrantPort)
	store, err := storage.NewQdrantStore(qdrantHost, qdrantPort)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to connect to Qdrant: %w", err)
	}

	if err := store.Health(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("Qdrant health check failed: %w", err)
	}
	fmt.Println("Qdrant healthy")

	if err := store.EnsureCollection(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("Failed to ensure collection: %w", err)
	}

	embeddingClient, err := embedding.NewClient()
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("Failed to create embedding client: %w", err)
	}
	embedder := embedding.NewEmbedder(embeddingClient, getEnv("EMBEDDING_MODEL", ""), 0)

	var summarizer indexer.Summarizer
	if flagSummaries {
		summarizer = metadata.NewSummarizer(embeddingClient.Client())
	}

	pipeline := indexer.NewPipeline(store, embedder, summarizer, slog.Default())
	return store, pipeline, nil
}

func chunkOptions() chunker.Options {
	return chunker.Options{
		ChunkSize:    flagChunkSize,
		Overlap:      flagOverlap,
		MinChunkSize: flagMinChunkSize,
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()
	owner, repo, basePath := args[0], args[1], args[2]

	strategy, err := chunker.ParseStrategy(flagStrategy)
	if err != nil {
		return err
	}

	fmt.Println("Starting sync...")
	fmt.Println()

	// 1. Connect to Qdrant and the embedding provider
	store, pipeline, err := connect(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	// 2. Initialize GitHub client
	ghClient, err := source.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("Failed to create GitHub client: %w", err)
	}
	fetcher := source.NewFetcher(ghClient, owner, repo, basePath)

	// 3. List files
	fmt.Println()
	fmt.Printf("Listing files under %s/%s/%s...\n", owner, repo, basePath)
	paths, err := fetcher.List(ctx)
	if err != nil {
		return fmt.Errorf("Failed to list files: %w", err)
	}
	fmt.Printf("Found %d indexable files\n", len(paths))

	// 4. Fetch and index each file
	fmt.Println()
	fmt.Println("Indexing documents...")
	var indexed, chunks int
	var failed []string
	for _, relPath := range paths {
		doc, err := fetcher.Fetch(ctx, relPath)
		if err != nil {
			fmt.Printf("  - %s: fetch failed: %v\n", relPath, err)
			failed = append(failed, relPath)
			continue
		}

		result, err := pipeline.Index(ctx, indexer.Request{
			DocumentID: documentID(owner, repo, basePath, relPath),
			Title:      doc.Title,
			Text:       doc.Content,
			Strategy:   strategy,
			Options:    chunkOptions(),
		})
		if err != nil {
			fmt.Printf("  - %s: %v\n", relPath, err)
			failed = append(failed, relPath)
			continue
		}
		if result == nil {
			continue
		}
		indexed++
		chunks += result.ChunkCount
		fmt.Printf("  + %s (%d chunks)\n", relPath, result.ChunkCount)
	}

	// 5. Print results
	fmt.Println()
	fmt.Println("Sync complete!")
	fmt.Printf("  Documents: %d/%d\n", indexed, len(paths))
	fmt.Printf("  Chunks: %d\n", chunks)
	fmt.Printf("  Strategy: %s\n", strategy)
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Second))

	if len(failed) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, path := range failed {
			fmt.Printf("  - %s\n", path)
		}
	}
	return nil
}

// documentID derives a stable id from the file's repository coordinates so a
// re-sync replaces instead of duplicating.
func documentID(owner, repo, basePath, relPath string) string {
	url := fmt.Sprintf("https://github.com/%s/%s/%s/%s", owner, repo, basePath, relPath)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url)).String()
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	strategy, err := chunker.ParseStrategy(flagStrategy)
	if err != nil {
		return err
	}

	text, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	title := flagTitle
	if title == "" {
		title = source.ExtractTitle(text, args[0])
	}

	store, pipeline, err := connect(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Println()
	fmt.Printf("Indexing %s...\n", args[0])
	result, err := pipeline.Index(ctx, indexer.Request{
		Title:    title,
		Text:     string(text),
		Strategy: strategy,
		Options:  chunkOptions(),
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Indexing complete!")
	fmt.Printf("  Document: %s\n", result.DocumentID)
	fmt.Printf("  Nodes: %d\n", result.NodeCount)
	fmt.Printf("  Chunks: %d\n", result.ChunkCount)
	if result.PageCount > 0 {
		fmt.Printf("  Pages: %d\n", result.PageCount)
	}
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))
	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	strategy, err := chunker.ParseStrategy(flagStrategy)
	if err != nil {
		return err
	}

	text, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	title := flagTitle
	if title == "" {
		title = source.ExtractTitle(text, args[0])
	}

	// Preview needs no store or embedder.
	pipeline := indexer.NewPipeline(nil, nil, nil, nil)
	chunks, err := pipeline.Preview(string(text), title, strategy, chunkOptions())
	if err != nil {
		return err
	}

	fmt.Printf("%d chunks (%s strategy)\n", len(chunks), strategy)
	for _, c := range chunks {
		fmt.Println()
		fmt.Printf("--- chunk %d [%d:%d) %d chars", c.Index, c.CharStart, c.CharEnd, c.CharCount)
		if c.NodePath != "" {
			fmt.Printf(" | %s", c.NodePath)
		}
		if c.ParentChunkID != "" {
			fmt.Printf(" | %s", c.ParentChunkID)
		}
		fmt.Println(" ---")
		fmt.Println(c.Content)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := storage.NewQdrantStore(getEnv("QDRANT_HOST", "localhost"), getEnvInt("QDRANT_PORT", 6334))
	if err != nil {
		return fmt.Errorf("Failed to connect to Qdrant: %w", err)
	}
	defer store.Close()

	if err := store.DeleteDocument(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := storage.NewQdrantStore(getEnv("QDRANT_HOST", "localhost"), getEnvInt("QDRANT_PORT", 6334))
	if err != nil {
		return fmt.Errorf("Failed to connect to Qdrant: %w", err)
	}
	defer store.Close()

	trees, err := store.ListDocuments(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%d documents\n", len(trees))
	for _, tree := range trees {
		fmt.Printf("  %s  %-10s %-12s nodes=%d chunks=%d  %s\n",
			tree.DocumentID, tree.Status, tree.Strategy, tree.NodeCount, tree.ChunkCount, tree.Title)
	}
	return nil
}

func runChunks(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := storage.NewQdrantStore(getEnv("QDRANT_HOST", "localhost"), getEnvInt("QDRANT_PORT", 6334))
	if err != nil {
		return fmt.Errorf("Failed to connect to Qdrant: %w", err)
	}
	defer store.Close()

	tree, err := store.GetDocument(ctx, args[0])
	if err != nil {
		return err
	}
	chunks, err := store.GetChunkRange(ctx, args[0], 1, tree.ChunkCount)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d chunks (%s strategy)\n", tree.Title, len(chunks), tree.Strategy)
	for _, c := range chunks {
		fmt.Println()
		fmt.Printf("--- chunk %d [%d:%d)", c.Index, c.CharStart, c.CharEnd)
		if c.NodePath != "" {
			fmt.Printf(" | %s", c.NodePath)
		}
		if c.ParentChunkID != "" {
			fmt.Printf(" | %s", c.ParentChunkID)
		}
		fmt.Println(" ---")
		fmt.Println(c.Content)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
