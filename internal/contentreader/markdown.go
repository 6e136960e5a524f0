package contentreader

import (
	"bytes"
	"fmt"
	"io"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// Properties set by MarkdownReader.
const (
	MarkdownTitleKey  = "title"
	MarkdownSourceKey = "markdown"
	MarkdownHTMLKey   = "html"
	MarkdownLinksKey  = "links"
)

// MarkdownReader turns a Markdown page into a single node. YAML front matter
// becomes properties and child nodes as with YAMLReader; the body is kept as
// source and rendered HTML.
type MarkdownReader struct{}

// Read implements Reader.
func (MarkdownReader) Read(r io.Reader, name string) (*Node, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown %q: %w", name, err)
	}
	front, body, err := splitFrontMatter(src)
	if err != nil {
		return nil, fmt.Errorf("markdown %q: %w", name, err)
	}

	n := newNode(name)
	if len(bytes.TrimSpace(front)) > 0 {
		var doc yaml.Node
		if err := yaml.Unmarshal(front, &doc); err != nil {
			return nil, fmt.Errorf("markdown %q front matter: %w", name, err)
		}
		if len(doc.Content) > 0 {
			if n, err = fromYAML(name, doc.Content[0]); err != nil {
				return nil, err
			}
		}
	}

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(body))
	var out bytes.Buffer
	if err := md.Renderer().Render(&out, body, root); err != nil {
		return nil, fmt.Errorf("render markdown %q: %w", name, err)
	}

	if _, ok := n.Properties[MarkdownTitleKey]; !ok {
		if title := firstHeading(root, body); title != "" {
			n.Properties[MarkdownTitleKey] = title
		}
	}
	n.Properties[MarkdownSourceKey] = string(body)
	n.Properties[MarkdownHTMLKey] = out.String()
	if links := htmlLinks(out.Bytes()); len(links) > 0 {
		n.Properties[MarkdownLinksKey] = links
	}
	return n, nil
}

var frontMatterDelim = []byte("---")

// splitFrontMatter separates a leading "---" delimited YAML block.
func splitFrontMatter(src []byte) (front, body []byte, err error) {
	normalized := bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, append(frontMatterDelim, '\n')) {
		return nil, normalized, nil
	}
	rest := normalized[len(frontMatterDelim)+1:]
	if bytes.HasPrefix(rest, append(frontMatterDelim, '\n')) {
		return nil, rest[len(frontMatterDelim)+1:], nil
	}
	idx := bytes.Index(rest, []byte("\n---\n"))
	if idx < 0 {
		if bytes.HasSuffix(rest, []byte("\n---")) {
			return rest[:len(rest)-len("\n---")], nil, nil
		}
		return nil, nil, fmt.Errorf("front matter is not closed")
	}
	return rest[:idx+1], rest[idx+len("\n---\n"):], nil
}

func firstHeading(root gmast.Node, source []byte) string {
	var title string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		h, ok := n.(*gmast.Heading)
		if !entering || !ok || h.Level != 1 {
			return gmast.WalkContinue, nil
		}
		var b bytes.Buffer
		_ = gmast.Walk(h, func(c gmast.Node, entering bool) (gmast.WalkStatus, error) {
			if t, ok := c.(*gmast.Text); ok && entering {
				b.Write(t.Segment.Value(source))
				if t.SoftLineBreak() {
					b.WriteByte(' ')
				}
			}
			return gmast.WalkContinue, nil
		})
		title = b.String()
		return gmast.WalkStop, nil
	})
	return title
}

// htmlLinks collects link targets of rendered HTML in document order.
func htmlLinks(rendered []byte) []string {
	doc, err := html.Parse(bytes.NewReader(rendered))
	if err != nil {
		return nil
	}
	var links []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			attr := ""
			switch n.Data {
			case "a":
				attr = "href"
			case "img":
				attr = "src"
			}
			for _, a := range n.Attr {
				if attr != "" && a.Key == attr && a.Val != "" {
					links = append(links, a.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return links
}
