package chunker

import (
	"fmt"
	"strings"

	"github.com/bull/doctree-rag/internal/outline"
)

// maxParentSize bounds parent windows so a single parent never exceeds what an
// embedding request or an expansion response can carry.
const maxParentSize = 4000

// parentChildChunker builds two granularities over the same text: large
// parent windows for context expansion and small sentence-packed children for
// retrieval. Only the children are returned; each carries its parent's id and
// byte range so retrieval can re-group and expand without a second store
// lookup.
type parentChildChunker struct{}

func (parentChildChunker) Split(text string, _ *outline.Tree, opts Options) ([]Chunk, error) {
	opts = opts.withDefaults()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parentOpts := Options{
		ChunkSize:    parentSize(opts.ChunkSize),
		Overlap:      0,
		MinChunkSize: opts.MinChunkSize,
	}
	parents := segment(text, 0, len(text), parentOpts)

	childOpts := opts
	childOpts.MinChunkSize = 0

	var chunks []Chunk
	for pi, p := range parents {
		parentID := fmt.Sprintf("parent-%d", pi+1)
		children := packUnits(text, sentenceUnits(text, p.start, p.end), childOpts)
		for _, c := range chunksFromSpans(text, children) {
			c.ParentChunkID = parentID
			c.ParentCharStart = p.start
			c.ParentCharEnd = p.end
			chunks = append(chunks, c)
		}
	}
	return finalize(chunks), nil
}

// parentSize derives the parent window from the child chunk size: three child
// windows of context, never below the child size, capped at maxParentSize.
func parentSize(chunkSize int) int {
	size := 3 * chunkSize
	if size < chunkSize {
		size = chunkSize
	}
	if size > maxParentSize {
		size = maxParentSize
	}
	return size
}
