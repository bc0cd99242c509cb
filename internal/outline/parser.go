package outline

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrInvalidEncoding is returned when the input is not valid UTF-8. Nothing
// is persisted for such documents.
var ErrInvalidEncoding = errors.New("document text is not valid UTF-8")

// MaxHeadingLevel caps heading depth. Deeper markdown headings are clamped.
const MaxHeadingLevel = 4

// DefaultRootTitle names the root node when the caller supplies no title.
const DefaultRootTitle = "Document"

var (
	markdownHeadingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	chapterHeadingPattern  = regexp.MustCompile(`^第[一二三四五六七八九十百千万零两0-9]+[章节部分篇卷][\s:：、.．-]*(.*)$`)
	numberedHeadingPattern = regexp.MustCompile(`^(\d+(?:\.\d+){0,4})[\s、.．:：)]*(.+)$`)
	headingTextPattern     = regexp.MustCompile(`[A-Za-z\p{Han}]`)
	pageMarkerPattern      = regexp.MustCompile(`(?i)第\s*(\d+)\s*页|page\s*(\d+)`)
)

// Parse builds a node tree from raw text. Heading lines open nodes, an
// explicit ancestor stack tracks the currently open sections, and non-heading
// lines accumulate into the innermost open node. A document with no headings
// yields a tree with a single root node spanning the whole text.
//
// The stack is an explicit slice rather than recursion so nesting depth never
// costs call stack.
func Parse(documentID, title, text string) (*Tree, error) {
	if !utf8.ValidString(text) {
		return nil, ErrInvalidEncoding
	}

	rootTitle := normalizeTitle(title)
	if rootTitle == "" {
		rootTitle = DefaultRootTitle
	}
	root := &Node{
		ID:        uuid.New().String(),
		Level:     0,
		Title:     rootTitle,
		CharStart: 0,
		CharEnd:   len(text),
		BodyEnd:   -1,
	}
	tree := &Tree{
		DocumentID: documentID,
		RootID:     root.ID,
		Nodes:      []*Node{root},
	}

	stack := []*Node{root}
	childCount := map[string]int{}
	lastPage := 0
	maxPage := 0

	offset := 0
	for offset < len(text) {
		lineEnd := strings.IndexByte(text[offset:], '\n')
		var next int
		if lineEnd < 0 {
			lineEnd = len(text)
			next = lineEnd
		} else {
			lineEnd += offset
			next = lineEnd + 1
		}
		line := strings.TrimSpace(strings.TrimRight(text[offset:lineEnd], "\r"))

		if page, ok := extractPageMarker(line); ok {
			lastPage = page
			if page > maxPage {
				maxPage = page
			}
			for _, open := range stack {
				setPage(open, page)
			}
		}

		if level, headingTitle, ok := detectHeading(line); ok {
			// Close every open node at the same or deeper level. A depth jump
			// (e.g. level 3 right after level 1) invents no intermediate
			// levels: the new node simply attaches to whatever remains on top.
			for stack[len(stack)-1].Level >= level {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				top.CharEnd = offset
				if top.BodyEnd < 0 {
					top.BodyEnd = top.CharEnd
				}
			}

			parent := stack[len(stack)-1]
			if childCount[parent.ID] == 0 && parent.BodyEnd < 0 {
				parent.BodyEnd = offset
			}

			node := &Node{
				ID:           uuid.New().String(),
				ParentID:     parent.ID,
				Level:        level,
				SiblingIndex: childCount[parent.ID],
				Title:        headingTitle,
				CharStart:    next,
				CharEnd:      len(text),
				BodyEnd:      -1,
			}
			if lastPage > 0 {
				setPage(node, lastPage)
			}
			childCount[parent.ID]++
			tree.Nodes = append(tree.Nodes, node)
			stack = append(stack, node)
		}

		offset = next
	}

	// End of input closes everything still open.
	for _, open := range stack {
		open.CharEnd = len(text)
	}
	for _, n := range tree.Nodes {
		if n.BodyEnd < 0 {
			n.BodyEnd = n.CharEnd
		}
	}

	tree.PageCount = maxPage
	tree.NodeCount = len(tree.Nodes)
	return tree, nil
}

// detectHeading classifies a line as a heading and maps it to a depth level.
// Supported conventions: markdown hashes (clamped to MaxHeadingLevel), dotted
// numeric outlines ("1.2.3 Title"), and East-Asian chapter markers (第三章).
func detectHeading(line string) (int, string, bool) {
	if line == "" {
		return 0, "", false
	}

	if m := markdownHeadingPattern.FindStringSubmatch(line); m != nil {
		level := min(len(m[1]), MaxHeadingLevel)
		title := normalizeTitle(m[2])
		if title == "" {
			return 0, "", false
		}
		return level, title, true
	}

	if chapterHeadingPattern.MatchString(line) {
		return 1, normalizeTitle(line), true
	}

	if m := numberedHeadingPattern.FindStringSubmatch(line); m != nil {
		title := normalizeTitle(m[2])
		// A bare "3.14" or "1.2)" is data, not an outline entry.
		if title == "" || !headingTextPattern.MatchString(title) {
			return 0, "", false
		}
		level := min(strings.Count(m[1], ".")+1, MaxHeadingLevel)
		return level, m[1] + " " + title, true
	}

	return 0, "", false
}

// extractPageMarker pulls a positive page number out of lines like
// "第 12 页" or "Page 3".
func extractPageMarker(line string) (int, bool) {
	m := pageMarkerPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page <= 0 {
		return 0, false
	}
	return page, true
}

func setPage(n *Node, page int) {
	if n.PageStart == nil {
		start := page
		n.PageStart = &start
	}
	end := page
	n.PageEnd = &end
}

func normalizeTitle(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
