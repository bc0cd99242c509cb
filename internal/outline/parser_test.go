package outline

import (
	"errors"
	"testing"
)

// TestParse_MarkdownHeadings tests node ranges over a two-level markdown doc.
func TestParse_MarkdownHeadings(t *testing.T) {
	text := "# One\nalpha\n## Sub\nbeta\n# Two\ngamma\n"

	tree, err := Parse("doc-1", "Guide", text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(tree.Nodes) != 4 {
		t.Fatalf("Expected 4 nodes (root + 3 headings), got %d", len(tree.Nodes))
	}
	if tree.NodeCount != 4 {
		t.Errorf("NodeCount: expected 4, got %d", tree.NodeCount)
	}

	root := tree.Root()
	if root.Title != "Guide" {
		t.Errorf("Root title: expected 'Guide', got %q", root.Title)
	}
	if root.CharStart != 0 || root.CharEnd != len(text) {
		t.Errorf("Root range: expected [0,%d), got [%d,%d)", len(text), root.CharStart, root.CharEnd)
	}
	if root.BodyEnd != 0 {
		t.Errorf("Root BodyEnd: expected 0 (first heading on line 1), got %d", root.BodyEnd)
	}

	one, sub, two := tree.Nodes[1], tree.Nodes[2], tree.Nodes[3]

	if one.Title != "One" || one.Level != 1 {
		t.Errorf("Node 1: expected level-1 'One', got level-%d %q", one.Level, one.Title)
	}
	// CharStart is just past the heading line, CharEnd is where "# Two" begins.
	if one.CharStart != 6 || one.CharEnd != 24 {
		t.Errorf("'One' range: expected [6,24), got [%d,%d)", one.CharStart, one.CharEnd)
	}
	// Body stops where the first child's heading line starts.
	if one.BodyEnd != 12 {
		t.Errorf("'One' BodyEnd: expected 12, got %d", one.BodyEnd)
	}

	if sub.ParentID != one.ID {
		t.Errorf("'Sub' parent: expected %q, got %q", one.ID, sub.ParentID)
	}
	if sub.Level != 2 {
		t.Errorf("'Sub' level: expected 2, got %d", sub.Level)
	}
	// A leaf's body runs to its CharEnd.
	if sub.CharStart != 19 || sub.CharEnd != 24 || sub.BodyEnd != 24 {
		t.Errorf("'Sub' range: expected [19,24) body 24, got [%d,%d) body %d",
			sub.CharStart, sub.CharEnd, sub.BodyEnd)
	}

	if two.SiblingIndex != 1 {
		t.Errorf("'Two' sibling index: expected 1, got %d", two.SiblingIndex)
	}
	// The last child runs to the end of its parent.
	if two.CharEnd != root.CharEnd {
		t.Errorf("'Two' CharEnd: expected %d, got %d", root.CharEnd, two.CharEnd)
	}

	if got := tree.Path(sub.ID); got != "Guide > One > Sub" {
		t.Errorf("Path: expected 'Guide > One > Sub', got %q", got)
	}
	if kids := tree.Children(root.ID); len(kids) != 2 {
		t.Errorf("Root children: expected 2, got %d", len(kids))
	}
}

// TestParse_NoHeadings tests that heading-free text yields a lone root.
func TestParse_NoHeadings(t *testing.T) {
	text := "Just a plain paragraph.\n\nAnd another one.\n"

	tree, err := Parse("doc-2", "", text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(tree.Nodes) != 1 {
		t.Fatalf("Expected 1 node, got %d", len(tree.Nodes))
	}
	if tree.HasSections() {
		t.Error("HasSections: expected false for heading-free text")
	}

	root := tree.Root()
	if root.Title != DefaultRootTitle {
		t.Errorf("Root title: expected %q, got %q", DefaultRootTitle, root.Title)
	}
	if root.BodyEnd != len(text) {
		t.Errorf("Root BodyEnd: expected %d, got %d", len(text), root.BodyEnd)
	}
	if root.PageStart != nil {
		t.Error("PageStart: expected nil without page markers")
	}
	if tree.PageCount != 0 {
		t.Errorf("PageCount: expected 0, got %d", tree.PageCount)
	}
}

// TestParse_NumberedHeadings tests dotted-outline detection and depth.
func TestParse_NumberedHeadings(t *testing.T) {
	text := "1 Intro\nsome text\n1.1 Details\nmore text\n1.1.1 Fine print\ndeep text\n2 Next\nend\n"

	tree, err := Parse("doc-3", "Spec", text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	wantTitles := []string{"Spec", "1 Intro", "1.1 Details", "1.1.1 Fine print", "2 Next"}
	wantLevels := []int{0, 1, 2, 3, 1}
	if len(tree.Nodes) != len(wantTitles) {
		t.Fatalf("Expected %d nodes, got %d", len(wantTitles), len(tree.Nodes))
	}
	for i, n := range tree.Nodes {
		if n.Title != wantTitles[i] {
			t.Errorf("Node %d title: expected %q, got %q", i, wantTitles[i], n.Title)
		}
		if n.Level != wantLevels[i] {
			t.Errorf("Node %d level: expected %d, got %d", i, wantLevels[i], n.Level)
		}
	}
}

// TestParse_NumericDataNotHeading tests that bare numbers are left as body text.
func TestParse_NumericDataNotHeading(t *testing.T) {
	text := "1 Results\n3.14\n1.5 2.5 3.5\n42\n"

	tree, err := Parse("doc-4", "", text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// Only "1 Results" qualifies: the rest has no letters in the title part.
	if len(tree.Nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(tree.Nodes))
	}
	if tree.Nodes[1].Title != "1 Results" {
		t.Errorf("Node title: expected '1 Results', got %q", tree.Nodes[1].Title)
	}
}

// TestParse_ChapterHeadings tests East-Asian chapter markers.
func TestParse_ChapterHeadings(t *testing.T) {
	text := "第一章 绪论\n正文内容。\n第二章 方法\n更多内容。\n"

	tree, err := Parse("doc-5", "论文", text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(tree.Nodes) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(tree.Nodes))
	}
	for i, n := range tree.Nodes[1:] {
		if n.Level != 1 {
			t.Errorf("Chapter %d level: expected 1, got %d", i+1, n.Level)
		}
	}
	if tree.Nodes[1].Title != "第一章 绪论" {
		t.Errorf("Chapter title: got %q", tree.Nodes[1].Title)
	}
}

// TestParse_PageMarkers tests page propagation into open nodes.
func TestParse_PageMarkers(t *testing.T) {
	text := "Page 1\n# A\nbody\nPage 2\nmore\n"

	tree, err := Parse("doc-6", "", text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if tree.PageCount != 2 {
		t.Errorf("PageCount: expected 2, got %d", tree.PageCount)
	}

	root := tree.Root()
	if root.PageStart == nil || *root.PageStart != 1 {
		t.Errorf("Root PageStart: expected 1, got %v", root.PageStart)
	}
	if root.PageEnd == nil || *root.PageEnd != 2 {
		t.Errorf("Root PageEnd: expected 2, got %v", root.PageEnd)
	}

	a := tree.Nodes[1]
	if a.PageStart == nil || *a.PageStart != 1 {
		t.Errorf("'A' PageStart: expected 1 (marker seen before heading), got %v", a.PageStart)
	}
	if a.PageEnd == nil || *a.PageEnd != 2 {
		t.Errorf("'A' PageEnd: expected 2, got %v", a.PageEnd)
	}
}

// TestParse_LevelJump tests that skipped levels attach to the open ancestor.
func TestParse_LevelJump(t *testing.T) {
	text := "# Top\n### Deep\ntext\n## Middle\ntext\n"

	tree, err := Parse("doc-7", "", text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	top, deep, middle := tree.Nodes[1], tree.Nodes[2], tree.Nodes[3]
	if deep.ParentID != top.ID {
		t.Error("'Deep' should attach directly to 'Top', no synthetic level 2")
	}
	// "## Middle" closes the deeper "### Deep" and becomes Top's second child.
	if middle.ParentID != top.ID {
		t.Error("'Middle' should attach to 'Top'")
	}
	if deep.CharEnd >= middle.CharStart {
		t.Errorf("'Deep' should close before 'Middle' opens: end %d, start %d",
			deep.CharEnd, middle.CharStart)
	}
}

// TestParse_DeepHeadingClamped tests the depth cap on markdown headings.
func TestParse_DeepHeadingClamped(t *testing.T) {
	text := "###### Very deep\ntext\n"

	tree, err := Parse("doc-8", "", text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if tree.Nodes[1].Level != MaxHeadingLevel {
		t.Errorf("Level: expected clamp to %d, got %d", MaxHeadingLevel, tree.Nodes[1].Level)
	}
}

// TestParse_InvalidEncoding tests rejection of non-UTF-8 input.
func TestParse_InvalidEncoding(t *testing.T) {
	_, err := Parse("doc-9", "", string([]byte{0xff, 0xfe, 0xfd}))
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Fatalf("Expected ErrInvalidEncoding, got %v", err)
	}
}
