package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/bull/doctree-rag/internal/outline"
)

// fixedChunker cuts pure fixed-length windows over the whole text. It is
// node-agnostic and ignores the tree entirely.
type fixedChunker struct{}

func (fixedChunker) Split(text string, _ *outline.Tree, opts Options) ([]Chunk, error) {
	opts = opts.withDefaults()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	n := len(text)
	var spans []span
	start := 0
	for start < n {
		end := start + opts.ChunkSize
		if end >= n {
			spans = append(spans, span{start, n})
			break
		}
		for end > start+1 && !utf8.RuneStart(text[end]) {
			end--
		}
		spans = append(spans, span{start, end})

		next := end - opts.Overlap
		for next < end && !utf8.RuneStart(text[next]) {
			next++
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return finalize(chunksFromSpans(text, spans)), nil
}

// sentenceChunker splits on sentence-terminal punctuation and packs the
// sentences into windows.
type sentenceChunker struct{}

func (sentenceChunker) Split(text string, _ *outline.Tree, opts Options) ([]Chunk, error) {
	opts = opts.withDefaults()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	spans := packUnits(text, sentenceUnits(text, 0, len(text)), opts)
	return finalize(chunksFromSpans(text, spans)), nil
}

// paragraphChunker is the shared primitive applied to the whole text:
// blank-line paragraphs, sentence-split of oversized paragraphs, packing.
type paragraphChunker struct{}

func (paragraphChunker) Split(text string, _ *outline.Tree, opts Options) ([]Chunk, error) {
	opts = opts.withDefaults()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	spans := segment(text, 0, len(text), opts)
	return finalize(chunksFromSpans(text, spans)), nil
}
