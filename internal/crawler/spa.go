package crawler

import (
	"regexp"
	"strings"
)

// spaScore accumulates the additive SPA-detection signals of spec
// §4.7. A total ≥ 0.5 classifies a page as a single-page application
// requiring headless rendering to see real content.
type spaScore struct {
	total float64
}

func (s *spaScore) add(v float64) { s.total += v }

func (s spaScore) isSPA() bool { return s.total >= 0.5 }

var (
	spaRootPatterns = []*regexp.Regexp{
		// Angular
		regexp.MustCompile(`(?i)<app-root[^>]*>\s*</app-root>`),
		regexp.MustCompile(`(?i)<app-root[^>]*>Loading`),
		// React
		regexp.MustCompile(`(?i)<div\s+id\s*=\s*["']root["'][^>]*>\s*</div>`),
		// React/Vue
		regexp.MustCompile(`(?i)<div\s+id\s*=\s*["']app["'][^>]*>\s*</div>`),
		// Next.js
		regexp.MustCompile(`(?i)<div\s+id\s*=\s*["']__next["'][^>]*>\s*</div>`),
		// Nuxt
		regexp.MustCompile(`(?i)<div\s+id\s*=\s*["']__nuxt["'][^>]*>`),
		// Svelte
		regexp.MustCompile(`(?i)<div\s+id\s*=\s*["']svelte["'][^>]*>\s*</div>`),
		// Generic
		regexp.MustCompile(`(?i)<div\s+id\s*=\s*["']main-app["'][^>]*>\s*</div>`),
	}
	scriptTagPattern    = regexp.MustCompile(`(?is)<script\b[^>]*>(.*?)</script>`)
	frameworkMarkers    = []string{"ng-version", "_ngcontent", "__next", "_next/static", "__nuxt", "___gatsby", "/page-data/", "data-reactroot", "data-v-", "v-cloak", "svelte-", "ember-view"}
	hydrationMarkers    = []string{"data-server-rendered", "window.__INITIAL_STATE__", "window.__NUXT__", "window.__APOLLO_STATE__"}
	hashRoutePattern    = regexp.MustCompile(`href=["']#/`)
	loginIndicators     = []string{`type="password"`, `type='password'`, `name="password"`, `id="login"`, `class="login-form"`}
	botProtectionMarker = []string{"captcha", "cloudflare", "checking your browser", "cf-browser-verification"}
)

// scoreSPA analyzes raw HTML for the additive SPA signals of spec
// §4.7, pre-empted by two early-exit classifiers: a login wall and bot
// protection, both of which return a score of 1.0 and so force the
// caller toward headless rendering; a login wall is not otherwise
// treated differently from bot protection.
func scoreSPA(body []byte) spaScore {
	text := string(body)
	lower := strings.ToLower(text)

	if countMatches(lower, loginIndicators) >= 2 {
		return spaScore{total: 1.0}
	}
	if countMatches(lower, botProtectionMarker) >= 2 {
		return spaScore{total: 1.0}
	}

	var s spaScore

	visibleRatio := contentRatio(text)
	switch {
	case visibleRatio < 0.05:
		s.add(0.4)
	case visibleRatio < 0.15:
		s.add(0.2)
	}

	if matchesAny(text, spaRootPatterns) {
		s.add(0.3)
	}

	for _, marker := range frameworkMarkers {
		if strings.Contains(text, marker) {
			s.add(0.2)
			break
		}
	}

	scripts := scriptTagPattern.FindAllStringSubmatch(text, -1)
	inlineBytes := 0
	for _, m := range scripts {
		inlineBytes += len(m[1])
	}
	if len(scripts) > 5 || inlineBytes > 50*1024 {
		s.add(0.15)
	}

	for _, marker := range hydrationMarkers {
		if strings.Contains(text, marker) {
			s.add(0.1)
			break
		}
	}

	if hashRoutePattern.MatchString(text) {
		s.add(0.3)
	}

	return s
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func countMatches(lower string, indicators []string) int {
	n := 0
	for _, ind := range indicators {
		if strings.Contains(lower, ind) {
			n++
		}
	}
	return n
}

// contentRatio estimates the fraction of the document that is visible
// text, approximated as the ratio of text outside tags to total byte
// length — a coarse but cheap signal the spec treats as sufficient.
func contentRatio(html string) float64 {
	if len(html) == 0 {
		return 1
	}
	var textBytes int
	inTag := false
	for i := 0; i < len(html); i++ {
		switch html[i] {
		case '<':
			inTag = true
		case '>':
			inTag = false
		default:
			if !inTag && html[i] != ' ' && html[i] != '\n' && html[i] != '\t' {
				textBytes++
			}
		}
	}
	return float64(textBytes) / float64(len(html))
}
