// Package chunker splits documents into retrieval-sized fragments under a set
// of interchangeable strategies sharing one segmentation primitive.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bull/doctree-rag/internal/outline"
)

// Strategy selects a chunking algorithm.
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategySentence    Strategy = "sentence"
	StrategyParagraph   Strategy = "paragraph"
	StrategyParentChild Strategy = "parent_child"
	StrategyPageIndex   Strategy = "pageindex"
)

// ErrUnknownStrategy is returned for strategy names outside the closed set.
var ErrUnknownStrategy = errors.New("unknown chunking strategy")

var strategyAliases = map[string]Strategy{
	"default":      StrategyFixed,
	"fixed":        StrategyFixed,
	"sentence":     StrategySentence,
	"paragraph":    StrategyParagraph,
	"parent-child": StrategyParentChild,
	"parent_child": StrategyParentChild,
	"parentchild":  StrategyParentChild,
	"pageindex":    StrategyPageIndex,
	"page-index":   StrategyPageIndex,
	"page_index":   StrategyPageIndex,
}

// ParseStrategy normalizes a strategy name, accepting the aliases the HTTP
// API of the original service tolerated.
func ParseStrategy(name string) (Strategy, error) {
	s, ok := strategyAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Options tunes the shared segmentation primitive.
type Options struct {
	// ChunkSize is the packing target in characters.
	ChunkSize int
	// Overlap is how many trailing characters of an emitted chunk seed the
	// next one. Clamped below ChunkSize.
	Overlap int
	// MinChunkSize merges undersized chunks forward into their successor.
	// The document's final chunk is always kept standalone. Zero disables
	// merging.
	MinChunkSize int
	// MaxChunkSize is advisory: a single unit longer than ChunkSize is
	// emitted whole even beyond this bound, because truncation would corrupt
	// meaning. It exists so callers can size buffers and warn.
	MaxChunkSize int
}

const (
	DefaultChunkSize = 400
	DefaultOverlap   = 50
)

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Overlap < 0 {
		o.Overlap = 0
	}
	if o.Overlap >= o.ChunkSize {
		o.Overlap = o.ChunkSize - 1
	}
	if o.MinChunkSize < 0 {
		o.MinChunkSize = 0
	}
	return o
}

// Chunk is one fragment of a document. CharStart/CharEnd are byte offsets
// into the original text and Content is exactly text[CharStart:CharEnd], so
// chunk boundaries are reproducible byte-for-byte between preview and commit.
type Chunk struct {
	Index     int // dense, 1-based, emission order
	Content   string
	CharStart int
	CharEnd   int
	CharCount int

	// Structure metadata, populated by the pageindex strategy.
	NodeID       string
	NodePath     string
	Level        int
	PageStart    *int
	PageEnd      *int
	SectionTitle string

	// Parent linkage, populated by the parent_child strategy.
	ParentChunkID   string
	ParentCharStart int
	ParentCharEnd   int
}

// Chunker produces the ordered chunk list for one document. The tree argument
// is consulted only by structure-aware strategies and may be nil.
type Chunker interface {
	Split(text string, tree *outline.Tree, opts Options) ([]Chunk, error)
}

// New returns the implementation for a strategy. Dispatch is closed: every
// strategy is one implementation composing the shared segmentation primitive.
func New(s Strategy) (Chunker, error) {
	switch s {
	case StrategyFixed:
		return fixedChunker{}, nil
	case StrategySentence:
		return sentenceChunker{}, nil
	case StrategyParagraph:
		return paragraphChunker{}, nil
	case StrategyParentChild:
		return parentChildChunker{}, nil
	case StrategyPageIndex:
		return pageIndexChunker{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Split is a convenience wrapper resolving the strategy and running it.
func Split(text string, tree *outline.Tree, s Strategy, opts Options) ([]Chunk, error) {
	c, err := New(s)
	if err != nil {
		return nil, err
	}
	return c.Split(text, tree, opts)
}

// chunksFromSpans materializes spans into chunks, in order, without indices.
// Indices are assigned once per document by finalize.
func chunksFromSpans(text string, spans []span) []Chunk {
	chunks := make([]Chunk, 0, len(spans))
	for _, s := range spans {
		content := text[s.start:s.end]
		chunks = append(chunks, Chunk{
			Content:   content,
			CharStart: s.start,
			CharEnd:   s.end,
			CharCount: len(content),
		})
	}
	return chunks
}

// finalize assigns dense 1-based indices in emission order.
func finalize(chunks []Chunk) []Chunk {
	for i := range chunks {
		chunks[i].Index = i + 1
	}
	return chunks
}
