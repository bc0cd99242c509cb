package chunker

import (
	"strings"

	"github.com/bull/doctree-rag/internal/outline"
)

// pageIndexChunker chunks each tree node's own body independently, so no
// chunk ever straddles a section boundary and every chunk knows which section
// it came from. Without a tree, or when no headings were detected, it degrades
// to the paragraph strategy over the whole text.
type pageIndexChunker struct{}

func (pageIndexChunker) Split(text string, tree *outline.Tree, opts Options) ([]Chunk, error) {
	if tree == nil || !tree.HasSections() {
		return paragraphChunker{}.Split(text, tree, opts)
	}
	opts = opts.withDefaults()

	var chunks []Chunk
	// Nodes are stored in document order, which is a preorder walk, so
	// iterating the arena keeps chunk order aligned with reading order. Each
	// node contributes only its body: the text before its first child's
	// heading. Descendant text belongs to the descendants.
	for _, n := range tree.Nodes {
		if n.CharStart >= n.BodyEnd {
			continue
		}
		if strings.TrimSpace(text[n.CharStart:n.BodyEnd]) == "" {
			continue
		}
		path := tree.Path(n.ID)
		spans := segment(text, n.CharStart, n.BodyEnd, opts)
		for _, c := range chunksFromSpans(text, spans) {
			c.NodeID = n.ID
			c.NodePath = path
			c.Level = n.Level
			c.SectionTitle = n.Title
			c.PageStart = copyPage(n.PageStart)
			c.PageEnd = copyPage(n.PageEnd)
			chunks = append(chunks, c)
		}
	}
	return finalize(chunks), nil
}

func copyPage(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
