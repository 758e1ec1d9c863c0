package docparse

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// parseMarkdown implements the markdown adapter via a goldmark AST
// walk. Rather than rendering to HTML and re-stripping tags, it
// serializes directly to the normalized plain-text representation the
// chunker expects, recording heading/code-block positions as they are
// emitted (spec §4.2: "headings recorded with the char offset of
// emission into the serialized text").
func parseMarkdown(raw []byte, opts Options) (*ParsedDocument, error) {
	source := raw
	reader := gmtext.NewReader(source)
	doc := goldmark.New().Parser().Parse(reader)

	w := &markdownWalker{source: source, opts: opts}
	if err := ast.Walk(doc, w.visit); err != nil {
		return nil, err
	}

	title := ""
	for _, h := range w.headings {
		if h.Level == 1 {
			title = h.Text
			break
		}
	}

	normalized := normalizeWhitespace(w.buf.String())

	return &ParsedDocument{
		Title:       title,
		Text:        normalized,
		ContentType: ContentMarkdown,
		Headings:    rebasePositions(w.headings, w.buf.String(), normalized),
		CodeBlocks:  w.codeBlocks,
		Links:       w.links,
	}, nil
}

// markdownWalker accumulates a plain-text serialization of a markdown
// AST while recording structural metadata as it is emitted.
type markdownWalker struct {
	source     []byte
	opts       Options
	buf        strings.Builder
	headings   []Heading
	codeBlocks []CodeBlock
	links      []Link
}

func (w *markdownWalker) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Heading:
		if entering {
			text := inlineText(node, w.source)
			w.headings = append(w.headings, Heading{
				Level:    node.Level,
				Text:     text,
				Position: w.buf.Len(),
			})
			w.buf.WriteString(text)
			w.buf.WriteString("\n\n")
			return ast.WalkSkipChildren, nil
		}
	case *ast.Paragraph:
		if !entering {
			w.buf.WriteString("\n\n")
		}
	case *ast.FencedCodeBlock:
		if entering {
			lang := string(node.Language(w.source))
			content := linesText(node.Lines(), w.source)
			w.codeBlocks = append(w.codeBlocks, CodeBlock{
				Language: lang,
				Content:  content,
				Position: w.buf.Len(),
			})
			w.buf.WriteString(content)
			w.buf.WriteString("\n\n")
			return ast.WalkSkipChildren, nil
		}
	case *ast.CodeBlock:
		if entering {
			content := linesText(node.Lines(), w.source)
			w.codeBlocks = append(w.codeBlocks, CodeBlock{
				Content:  content,
				Position: w.buf.Len(),
			})
			w.buf.WriteString(content)
			w.buf.WriteString("\n\n")
			return ast.WalkSkipChildren, nil
		}
	case *ast.Link:
		if entering {
			text := inlineText(node, w.source)
			url := string(node.Destination)
			resolved, isInternal := resolveLink(url, w.opts.BaseURL)
			w.links = append(w.links, Link{URL: resolved, Text: text, IsInternal: isInternal})
			w.buf.WriteString(text)
			return ast.WalkSkipChildren, nil
		}
	case *ast.AutoLink:
		if entering {
			url := string(node.URL(w.source))
			resolved, isInternal := resolveLink(url, w.opts.BaseURL)
			w.links = append(w.links, Link{URL: resolved, IsInternal: isInternal})
			w.buf.WriteString(url)
			return ast.WalkSkipChildren, nil
		}
	case *ast.Text:
		if entering {
			w.buf.Write(node.Segment.Value(w.source))
			if node.SoftLineBreak() {
				w.buf.WriteString(" ")
			} else if node.HardLineBreak() {
				w.buf.WriteString("\n")
			}
		}
	case *ast.String:
		if entering {
			w.buf.Write(node.Value)
		}
	}
	return ast.WalkContinue, nil
}

// linesText concatenates a goldmark text.Segments' raw byte ranges.
func linesText(lines *gmtext.Segments, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimRight(buf.String(), "\n")
}

// inlineText collects the concatenated text of a node's inline
// descendants, used for heading and link text.
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
		case *ast.String:
			buf.Write(node.Value)
		default:
			buf.WriteString(inlineText(c, source))
		}
	}
	return buf.String()
}

// rebasePositions re-maps heading positions recorded against the raw
// (pre-normalization) buffer onto the final normalized text by
// locating each heading's text within it in order. This keeps
// positions valid after normalizeWhitespace collapses runs of
// whitespace, matching the approximate-by-first-occurrence semantics
// spec §4.2 already mandates for HTML headings.
func rebasePositions(headings []Heading, _ string, normalized string) []Heading {
	out := make([]Heading, 0, len(headings))
	searchFrom := 0
	for _, h := range headings {
		pos := strings.Index(normalized[searchFrom:], h.Text)
		if pos < 0 {
			pos = strings.Index(normalized, h.Text)
			if pos < 0 {
				continue
			}
		} else {
			pos += searchFrom
		}
		out = append(out, Heading{Level: h.Level, Text: h.Text, Position: pos})
		searchFrom = pos + len(h.Text)
	}
	return out
}
