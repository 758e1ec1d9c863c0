// Package docparse normalizes raw document bytes into a structurally
// aware ParsedDocument: title, normalized text, headings with byte
// positions, code blocks, outbound links, and media references. The
// chunker consumes ParsedDocument without needing to know the source
// content type.
package docparse

import (
	"bytes"
	"strings"
)

// ContentType identifies how raw bytes should be interpreted.
type ContentType string

const (
	ContentHTML     ContentType = "html"
	ContentMarkdown ContentType = "markdown"
	ContentText     ContentType = "text"
	ContentUnknown  ContentType = "unknown"
)

// Heading is a single heading occurrence within the normalized text.
type Heading struct {
	// Level is 1..=6, mirroring HTML h1..h6 / markdown #..######.
	Level int
	// Text is the heading's rendered text.
	Text string
	// Position is the byte offset of the heading's first occurrence
	// within ParsedDocument.Text.
	Position int
}

// CodeBlock is a fenced code block discovered in the source.
type CodeBlock struct {
	// Language is the fence's language tag, if any (e.g. "go").
	Language string
	// Content is the raw code block body.
	Content string
	// Position is the byte offset of the code block within ParsedDocument.Text,
	// or -1 if the block could not be located in the normalized text
	// (e.g. an HTML <pre> without a textual anchor).
	Position int
}

// Link is an outbound reference discovered in the document.
type Link struct {
	// URL is the link target, resolved against BaseURL when possible.
	URL string
	// Text is the link's anchor text, if any.
	Text string
	// IsInternal is true when URL's authority matches the document's
	// base URL authority.
	IsInternal bool
}

// Media is an image or background-image reference discovered in HTML.
type Media struct {
	// URL is the media resource location.
	URL string
	// Alt is the alt text, if any.
	Alt string
	// Tag identifies the source construct: "img", "source", or "css-background".
	Tag string
	// CSSBackground is true when this media reference came from an
	// inline background-image declaration (an opt-in extraction).
	CSSBackground bool
}

// ParsedDocument is the uniform output of every content-type-specific
// parser. The chunker and ingestion pipeline operate only on this
// structure, never on raw bytes.
type ParsedDocument struct {
	Title       string
	Text        string
	ContentType ContentType
	Headings    []Heading
	CodeBlocks  []CodeBlock
	Links       []Link
	Media       []Media
}

// Options configures parsing behavior that is not inherent to the
// content type.
type Options struct {
	// BaseURL resolves relative links/media references and determines
	// IsInternal for HTML input. Ignored for markdown/text.
	BaseURL string
	// ExtractCSSBackgrounds opts in to scanning inline
	// background-image: url(...) declarations as Media entries.
	ExtractCSSBackgrounds bool
}

// binarySniffWindow is the number of leading bytes inspected for a NUL
// byte to decide whether input is binary (spec §4.2).
const binarySniffWindow = 8192

// IsBinary reports whether the first 8 KiB of raw contains a NUL byte.
func IsBinary(raw []byte) bool {
	window := raw
	if len(window) > binarySniffWindow {
		window = window[:binarySniffWindow]
	}
	return bytes.IndexByte(window, 0) >= 0
}

// DetectContentType resolves the content type for raw input given an
// optional explicit MIME type and file extension, in that precedence
// order (spec §4.2: "explicit MIME wins; otherwise file extension;
// otherwise Unknown").
func DetectContentType(explicitMIME, ext string) ContentType {
	if ct, ok := fromMIME(explicitMIME); ok {
		return ct
	}
	if ct, ok := fromExtension(ext); ok {
		return ct
	}
	return ContentUnknown
}

func fromMIME(mime string) (ContentType, bool) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case mime == "":
		return "", false
	case strings.Contains(mime, "html"):
		return ContentHTML, true
	case strings.Contains(mime, "markdown"):
		return ContentMarkdown, true
	case strings.HasPrefix(mime, "text/"):
		return ContentText, true
	default:
		return "", false
	}
}

func fromExtension(ext string) (ContentType, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	switch ext {
	case "html", "htm", "xhtml":
		return ContentHTML, true
	case "md", "markdown", "mdx":
		return ContentMarkdown, true
	case "txt", "text", "log", "cfg", "conf", "ini":
		return ContentText, true
	default:
		return "", false
	}
}

// Parse dispatches to the content-type-specific parser. When
// contentType is ContentUnknown, the input is treated as plain text
// (spec §4.2: "otherwise Unknown (handled as plain text)").
func Parse(raw []byte, contentType ContentType, opts Options) (*ParsedDocument, error) {
	if IsBinary(raw) {
		return nil, ErrBinaryContent
	}

	switch contentType {
	case ContentHTML:
		return parseHTML(raw, opts)
	case ContentMarkdown:
		return parseMarkdown(raw, opts)
	default:
		return parseText(raw)
	}
}

// ErrBinaryContent is returned by Parse when the input is detected as
// binary via IsBinary.
var ErrBinaryContent = parseError("docparse: input looks like binary content")

type parseError string

func (e parseError) Error() string { return string(e) }

// normalizeWhitespace applies spec §4.2's normalization guarantees:
// runs of ≥2 newlines collapse to exactly two; a lone newline collapses
// to one; other whitespace runs collapse to a single space; leading
// and trailing whitespace is trimmed.
func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	runeLen := len([]rune(s))
	runes := make([]rune, 0, runeLen)
	runes = append(runes, []rune(s)...)

	i := 0
	for i < len(runes) {
		r := runes[i]
		if r == '\n' {
			newlineRun := 0
			j := i
			for j < len(runes) {
				if runes[j] == '\n' {
					newlineRun++
					j++
					continue
				}
				if runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\r' {
					j++
					continue
				}
				break
			}
			if newlineRun >= 2 {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
			i = j
			continue
		}
		if isSpaceRune(r) {
			j := i
			for j < len(runes) && isSpaceRune(runes[j]) {
				j++
			}
			b.WriteRune(' ')
			i = j
			continue
		}
		b.WriteRune(r)
		i++
	}

	return strings.TrimSpace(b.String())
}

func isSpaceRune(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\v' || r == '\f'
}
