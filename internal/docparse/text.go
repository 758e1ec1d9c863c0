package docparse

import "strings"

// maxPlainTextTitleLen is the length threshold under which the first
// non-empty line of a plain-text document is promoted to its title
// (spec §4.2: "first non-empty short line (< 100 chars)").
const maxPlainTextTitleLen = 100

// parseText implements the plain-text adapter: no structure is
// extracted beyond a best-effort title.
func parseText(raw []byte) (*ParsedDocument, error) {
	text := normalizeWhitespace(string(raw))

	title := ""
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if len(trimmed) < maxPlainTextTitleLen {
			title = trimmed
		}
		break
	}

	return &ParsedDocument{
		Title:       title,
		Text:        text,
		ContentType: ContentText,
	}, nil
}
