package docparse

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// cssBackgroundRe matches CSS background-image: url(...) declarations
// inside style attributes or inline <style> blocks (spec §4.2: an
// opt-in media source).
var cssBackgroundRe = regexp.MustCompile(`background(?:-image)?\s*:\s*url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// parseHTML implements the HTML adapter: scripts/styles are removed
// before text extraction, headings/links/media/code blocks are
// collected from the DOM, and heading positions are approximated by
// the first occurrence of the heading text within the normalized text.
func parseHTML(raw []byte, opts Options) (*ParsedDocument, error) {
	doc, err := html.Parse(strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}

	w := &htmlWalker{opts: opts}
	w.walk(doc)

	normalized := normalizeWhitespace(w.text.String())

	headings := make([]Heading, 0, len(w.headingTexts))
	searchFrom := 0
	for _, ht := range w.headingTexts {
		clean := normalizeWhitespace(ht.text)
		if clean == "" {
			continue
		}
		pos := strings.Index(normalized[min(searchFrom, len(normalized)):], clean)
		if pos < 0 {
			pos = strings.Index(normalized, clean)
			if pos < 0 {
				continue
			}
		} else {
			pos += searchFrom
		}
		headings = append(headings, Heading{Level: ht.level, Text: clean, Position: pos})
		searchFrom = pos + len(clean)
	}

	return &ParsedDocument{
		Title:       strings.TrimSpace(w.title),
		Text:        normalized,
		ContentType: ContentHTML,
		Headings:    headings,
		CodeBlocks:  w.codeBlocks,
		Links:       w.links,
		Media:       w.media,
	}, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

type headingText struct {
	level int
	text  string
}

// htmlWalker walks an x/net/html node tree, accumulating rendered
// text and structural metadata in a single pass.
type htmlWalker struct {
	opts         Options
	title        string
	text         strings.Builder
	headingTexts []headingText
	codeBlocks   []CodeBlock
	links        []Link
	media        []Media
}

var headingLevels = map[string]int{
	"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6,
}

func (w *htmlWalker) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript":
			return
		case "title":
			w.title = textContent(n)
			return
		case "a":
			href := attr(n, "href")
			if href != "" {
				resolved, isInternal := resolveLink(href, w.opts.BaseURL)
				w.links = append(w.links, Link{URL: resolved, Text: strings.TrimSpace(textContent(n)), IsInternal: isInternal})
			}
		case "img":
			if src := attr(n, "src"); src != "" {
				resolved, _ := resolveLink(src, w.opts.BaseURL)
				w.media = append(w.media, Media{URL: resolved, Alt: attr(n, "alt"), Tag: "img"})
			}
			for _, u := range parseSrcset(attr(n, "srcset")) {
				resolved, _ := resolveLink(u, w.opts.BaseURL)
				w.media = append(w.media, Media{URL: resolved, Alt: attr(n, "alt"), Tag: "img"})
			}
		case "source":
			for _, u := range parseSrcset(attr(n, "srcset")) {
				resolved, _ := resolveLink(u, w.opts.BaseURL)
				w.media = append(w.media, Media{URL: resolved, Tag: "source"})
			}
		case "pre":
			lang, content := extractCodeBlock(n)
			if content != "" {
				w.codeBlocks = append(w.codeBlocks, CodeBlock{
					Language: lang,
					Content:  content,
					Position: -1,
				})
			}
			return
		}

		if level, ok := headingLevels[n.Data]; ok {
			w.headingTexts = append(w.headingTexts, headingText{level: level, text: textContent(n)})
		}

		if w.opts.ExtractCSSBackgrounds {
			if style := attr(n, "style"); style != "" {
				for _, m := range cssBackgroundRe.FindAllStringSubmatch(style, -1) {
					resolved, _ := resolveLink(m[1], w.opts.BaseURL)
					w.media = append(w.media, Media{URL: resolved, Tag: "css-background", CSSBackground: true})
				}
			}
			if n.Data == "style" {
				for _, m := range cssBackgroundRe.FindAllStringSubmatch(textContent(n), -1) {
					resolved, _ := resolveLink(m[1], w.opts.BaseURL)
					w.media = append(w.media, Media{URL: resolved, Tag: "css-background", CSSBackground: true})
				}
			}
		}
	}

	if n.Type == html.TextNode {
		w.text.WriteString(n.Data)
		w.text.WriteString(" ")
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	if n.Type == html.ElementNode && isBlockElement(n.Data) {
		w.text.WriteString("\n\n")
	}
}

// isBlockElement reports whether tag produces a paragraph-level break
// in the normalized text, matching common block-level HTML elements.
func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "header", "footer", "nav",
		"h1", "h2", "h3", "h4", "h5", "h6", "li", "tr", "blockquote",
		"br", "hr", "table", "ul", "ol":
		return true
	default:
		return false
	}
}

func extractCodeBlock(pre *html.Node) (language, content string) {
	var code *html.Node
	for c := pre.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "code" {
			code = c
			break
		}
	}
	target := pre
	if code != nil {
		target = code
		for _, a := range code.Attr {
			if a.Key == "class" {
				for _, cls := range strings.Fields(a.Val) {
					if strings.HasPrefix(cls, "language-") {
						language = strings.TrimPrefix(cls, "language-")
					}
					if strings.HasPrefix(cls, "lang-") {
						language = strings.TrimPrefix(cls, "lang-")
					}
				}
			}
		}
	}
	return language, textContent(target)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// parseSrcset splits a srcset attribute into its candidate URLs,
// discarding width/density descriptors.
func parseSrcset(srcset string) []string {
	if srcset == "" {
		return nil
	}
	var out []string
	for _, candidate := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

// resolveLink resolves href against baseURL and reports whether the
// resolved URL's authority matches baseURL's (spec §4.2: "tagged
// is_internal when the authority matches").
func resolveLink(href, baseURL string) (resolved string, isInternal bool) {
	if baseURL == "" {
		return href, false
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href, false
	}
	abs := base.ResolveReference(ref)
	return abs.String(), strings.EqualFold(abs.Host, base.Host)
}
