package source

import (
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// ExtractTitle returns a document's title: its first top-level markdown
// heading, or the file name without extension when the document has none.
// The title seeds the outline's root node.
func ExtractTitle(source []byte, relativePath string) string {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	doc := md.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(1),
		toc.Compact(true),
	)
	if err == nil && len(tree.Items) > 0 {
		if title := strings.TrimSpace(string(tree.Items[0].Title)); title != "" {
			return title
		}
	}

	base := path.Base(relativePath)
	return strings.TrimSuffix(base, path.Ext(base))
}
