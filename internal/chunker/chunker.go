// Package chunker splits a docparse.ParsedDocument into a deterministic
// sequence of overlapping text chunks sized for embedding, preferring
// natural break points (headings, paragraphs, sentences) over hard
// character cutoffs.
package chunker

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/librarian/librarian/internal/docparse"
	"github.com/librarian/librarian/internal/hashutil"
)

// Config bounds chunk sizing. MinChars must be <= MaxChars and
// OverlapChars must be < MaxChars; Validate enforces this.
type Config struct {
	MaxChars                int
	MinChars                int
	OverlapChars            int
	PreferHeadingBoundaries bool
}

// Validate reports whether the configuration satisfies the invariants
// the chunking algorithm depends on.
func (c Config) Validate() error {
	if c.MinChars > c.MaxChars {
		return errConfig("min_chars must be <= max_chars")
	}
	if c.OverlapChars >= c.MaxChars {
		return errConfig("overlap_chars must be < max_chars")
	}
	if c.MaxChars <= 0 {
		return errConfig("max_chars must be positive")
	}
	return nil
}

type errConfig string

func (e errConfig) Error() string { return string(e) }

// TextChunk is one emitted slice of a document's normalized text.
type TextChunk struct {
	Text      string
	CharStart int
	CharEnd   int
	// Index is 0-based and monotonically increasing across the chunks
	// emitted for a single document.
	Index int
	// Headings lists the currently-open heading texts at CharStart,
	// outermost first.
	Headings []string
	Hash     string
}

// priority totally orders break-point kinds: Word < Sentence <
// Paragraph < Heading.
type priority int

const (
	priorityWord priority = iota
	prioritySentence
	priorityParagraph
	priorityHeading
)

type breakPoint struct {
	pos      int
	priority priority
}

// windowSearchRadius bounds the fallback "last space near target" scan.
const windowSearchRadius = 50

// Chunk produces a deterministic []TextChunk from doc's normalized text.
// docHash seeds each chunk's content-derived hash so identical chunk
// text under different documents never collides.
func Chunk(doc *docparse.ParsedDocument, docHash string, cfg Config) []TextChunk {
	text := doc.Text
	if text == "" {
		return nil
	}

	breaks := candidateBreaks(text, doc.Headings, doc.CodeBlocks, cfg.PreferHeadingBoundaries)
	sortedHeadings := sortedByPosition(doc.Headings)

	var chunks []TextChunk
	current := 0
	index := 0

	for current < len(text) {
		current = boundaryAlign(text, current, false)

		var end int
		target := current + cfg.MaxChars
		if target >= len(text) {
			end = len(text)
		} else {
			end = selectBreak(text, breaks, current, target, cfg.MaxChars)
		}
		end = boundaryAlign(text, end, false)
		if end <= current {
			end = boundaryAlign(text, minInt(current+1, len(text)), true)
		}

		chunkText := strings.TrimSpace(text[current:end])

		if len(chunkText) < cfg.MinChars && end < len(text) {
			current = end
			continue
		}

		chunks = append(chunks, TextChunk{
			Text:      chunkText,
			CharStart: current,
			CharEnd:   end,
			Index:     index,
			Headings:  openHeadings(sortedHeadings, current),
			Hash:      hashutil.HashChunk(docHash, chunkText),
		})
		index++

		if end >= len(text) {
			break
		}

		next := boundaryAlign(text, end-cfg.OverlapChars, false)
		if next < 0 {
			next = 0
		}
		if next >= end {
			next = end
		}
		current = next
	}

	return chunks
}

// candidateBreaks builds the sorted, deduplicated break-point list
// described in the chunking algorithm: a Word break after every space,
// a Sentence break two bytes after ". ", ".\n", "? ", or "! ", a
// Paragraph break immediately after a run of two consecutive newlines,
// and (when enabled) a Heading break at every heading position. Break
// points that fall inside a discovered fenced code block are dropped
// as a best-effort guard against splitting mid-block.
func candidateBreaks(text string, headings []docparse.Heading, codeBlocks []docparse.CodeBlock, preferHeadings bool) []breakPoint {
	var pts []breakPoint

	for i := 0; i < len(text); i++ {
		if text[i] == ' ' {
			pts = append(pts, breakPoint{pos: i + 1, priority: priorityWord})
		}
	}

	for i := 0; i+1 < len(text); i++ {
		switch text[i] {
		case '.', '?', '!':
			if next := text[i+1]; next == ' ' || next == '\n' {
				pts = append(pts, breakPoint{pos: i + 2, priority: prioritySentence})
			}
		}
	}

	for i := 0; i+1 < len(text); i++ {
		if text[i] == '\n' && text[i+1] == '\n' {
			pts = append(pts, breakPoint{pos: i + 2, priority: priorityParagraph})
		}
	}

	if preferHeadings {
		for _, h := range headings {
			if h.Position >= 0 && h.Position <= len(text) {
				pts = append(pts, breakPoint{pos: h.Position, priority: priorityHeading})
			}
		}
	}

	pts = dropInsideCodeBlocks(pts, codeBlocks)

	sort.Slice(pts, func(i, j int) bool {
		if pts[i].pos != pts[j].pos {
			return pts[i].pos < pts[j].pos
		}
		return pts[i].priority > pts[j].priority
	})

	dedup := make([]breakPoint, 0, len(pts))
	for i := 0; i < len(pts); {
		best := pts[i]
		j := i + 1
		for j < len(pts) && pts[j].pos == pts[i].pos {
			if pts[j].priority > best.priority {
				best = pts[j]
			}
			j++
		}
		dedup = append(dedup, best)
		i = j
	}
	return dedup
}

func dropInsideCodeBlocks(pts []breakPoint, codeBlocks []docparse.CodeBlock) []breakPoint {
	var spans [][2]int
	for _, cb := range codeBlocks {
		if cb.Position < 0 {
			continue
		}
		spans = append(spans, [2]int{cb.Position, cb.Position + len(cb.Content)})
	}
	if len(spans) == 0 {
		return pts
	}

	out := pts[:0:0]
	for _, bp := range pts {
		inside := false
		for _, span := range spans {
			if bp.pos > span[0] && bp.pos < span[1] {
				inside = true
				break
			}
		}
		if !inside {
			out = append(out, bp)
		}
	}
	return out
}

// selectBreak picks the break point used to end a chunk starting at
// current, per the algorithm's window-then-fallback rule.
func selectBreak(text string, breaks []breakPoint, current, target, maxChars int) int {
	lo := current + (4*maxChars)/5
	hi := current + (6*maxChars)/5
	if hi > len(text) {
		hi = len(text)
	}
	if lo > hi {
		lo = hi
	}

	start := sort.Search(len(breaks), func(i int) bool { return breaks[i].pos >= lo })
	best := -1
	bestPriority := priority(-1)
	for i := start; i < len(breaks) && breaks[i].pos <= hi; i++ {
		bp := breaks[i]
		if bp.priority > bestPriority {
			best = bp.pos
			bestPriority = bp.priority
		}
	}
	if best >= 0 {
		return best
	}

	lo2 := target - windowSearchRadius
	if lo2 < 0 {
		lo2 = 0
	}
	hi2 := target + windowSearchRadius
	if hi2 > len(text) {
		hi2 = len(text)
	}
	lastSpace := -1
	for i := lo2; i < hi2; i++ {
		if text[i] == ' ' {
			lastSpace = i + 1
		}
	}
	if lastSpace >= 0 {
		return lastSpace
	}

	if target > len(text) {
		return len(text)
	}
	return target
}

// boundaryAlign moves pos to the nearest valid UTF-8 rune boundary,
// searching backwards unless forward is set.
func boundaryAlign(text string, pos int, forward bool) int {
	if pos <= 0 {
		return 0
	}
	if pos >= len(text) {
		return len(text)
	}
	for pos > 0 && pos < len(text) && !utf8.RuneStart(text[pos]) {
		if forward {
			pos++
		} else {
			pos--
		}
	}
	return pos
}

func sortedByPosition(headings []docparse.Heading) []docparse.Heading {
	out := make([]docparse.Heading, len(headings))
	copy(out, headings)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// openHeadings returns the heading texts that are "open" at pos under
// heading-level stack semantics: a heading closes every previously
// open heading at the same or a deeper level before opening itself.
func openHeadings(sortedHeadings []docparse.Heading, pos int) []string {
	var stack []docparse.Heading
	for _, h := range sortedHeadings {
		if h.Position > pos {
			break
		}
		for len(stack) > 0 && stack[len(stack)-1].Level >= h.Level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)
	}
	texts := make([]string, len(stack))
	for i, h := range stack {
		texts[i] = h.Text
	}
	return texts
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
