// Package outline converts raw document text into a rooted tree of sections.
package outline

// Node is one structural unit of a document (chapter, section, subsection).
// Nodes are addressed by generated ids and reference their parent by id, so a
// tree survives partial loads without any in-memory pointer graph.
type Node struct {
	ID           string
	ParentID     string // empty for the root
	Level        int    // 0 for the root, 1-4 for headings
	SiblingIndex int    // position among the parent's children
	Title        string

	// CharStart is the offset immediately after the node's heading line.
	// CharEnd is the offset of the heading line that closed the node, or the
	// document length for nodes still open at end of input.
	CharStart int
	CharEnd   int

	// BodyEnd is where the node's own text stops: the heading-line offset of
	// its first child, or CharEnd for leaves. The body range is what chunking
	// operates on, so descendant text is never chunked twice.
	BodyEnd int

	// Page range, populated only when the input carries page markers.
	PageStart *int
	PageEnd   *int

	// Summary is optional, produced by the metadata summarizer. The routing
	// embedding is computed over title, path and summary.
	Summary string
}

// Tree is an arena of nodes in creation (document) order. Nodes[0] is always
// the root.
type Tree struct {
	DocumentID string
	RootID     string
	PageCount  int
	NodeCount  int
	Nodes      []*Node
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.Nodes[0]
}

// NodeByID looks a node up by id, or nil.
func (t *Tree) NodeByID(id string) *Node {
	for _, n := range t.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Children returns the children of the given node in sibling order.
func (t *Tree) Children(id string) []*Node {
	var out []*Node
	for _, n := range t.Nodes {
		if n.ParentID == id {
			out = append(out, n)
		}
	}
	return out
}

// Path returns the ancestor titles joined root-to-node with " > ".
func (t *Tree) Path(id string) string {
	var titles []string
	for n := t.NodeByID(id); n != nil; n = t.NodeByID(n.ParentID) {
		titles = append(titles, n.Title)
		if n.ParentID == "" {
			break
		}
	}
	// reverse in place
	for i, j := 0, len(titles)-1; i < j; i, j = i+1, j-1 {
		titles[i], titles[j] = titles[j], titles[i]
	}
	path := ""
	for i, title := range titles {
		if i > 0 {
			path += " > "
		}
		path += title
	}
	return path
}

// HasSections reports whether any heading was detected (more than just the
// root node). Chunking strategies degrade to flat behaviour when false.
func (t *Tree) HasSections() bool {
	return len(t.Nodes) > 1
}
