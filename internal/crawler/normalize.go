package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

// normalize applies standard normalization, switching to hash-aware
// normalization once any hash route has been observed on this crawl
// (spec §4.7).
func (c *Crawler) normalize(raw string) string {
	c.mu.Lock()
	hashAware := c.hashAware
	c.mu.Unlock()
	if hashAware {
		return normalizeHashAware(raw)
	}
	return normalizeStandard(raw)
}

// normalizeStandard strips the fragment and removes a trailing slash
// from non-root paths, leaving the query untouched.
func normalizeStandard(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// normalizeHashAware preserves a fragment that begins with "/" (a hash
// route) and strips everything else, once hash routing has been
// detected on the host.
func normalizeHashAware(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if !strings.HasPrefix(u.Fragment, "/") {
		u.Fragment = ""
	}
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// isHashRoute reports whether raw carries a fragment that looks like a
// client-side route (begins with "/"), as opposed to a plain in-page
// anchor.
func isHashRoute(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Fragment, "/")
}

var dateDirPattern = regexp.MustCompile(`/\d{4}/\d{2}/\d{2}/`)

// disallowedPathSubstrings are non-document URL patterns the crawler
// never enqueues.
var disallowedPathSubstrings = []string{"/login", "/api/", "/logout", "/signin", "/signup"}

// shouldCrawlURL rejects known non-document URL patterns: javascript:
// and mailto: schemes, login/API paths, date-directory archive pages,
// and plain anchor fragments (fragments not recognized as hash
// routes).
func shouldCrawlURL(raw string) bool {
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
		return false
	}
	for _, sub := range disallowedPathSubstrings {
		if strings.Contains(lower, sub) {
			return false
		}
	}
	if dateDirPattern.MatchString(raw) {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Fragment != "" && !strings.HasPrefix(u.Fragment, "/") {
		return false
	}
	return true
}
