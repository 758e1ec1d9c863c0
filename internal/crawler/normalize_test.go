package crawler

import "testing"

func TestNormalizeStandardStripsFragmentAndTrailingSlash(t *testing.T) {
	t.Parallel()
	got := normalizeStandard("https://example.com/docs/page/#section")
	want := "https://example.com/docs/page"
	if got != want {
		t.Errorf("normalizeStandard() = %q, want %q", got, want)
	}
}

func TestNormalizeStandardPreservesRootSlash(t *testing.T) {
	t.Parallel()
	got := normalizeStandard("https://example.com/")
	if got != "https://example.com/" {
		t.Errorf("normalizeStandard() = %q, want root slash preserved", got)
	}
}

func TestNormalizeHashAwarePreservesHashRoute(t *testing.T) {
	t.Parallel()
	got := normalizeHashAware("https://example.com/app#/dashboard")
	want := "https://example.com/app#/dashboard"
	if got != want {
		t.Errorf("normalizeHashAware() = %q, want %q", got, want)
	}
}

func TestNormalizeHashAwareStripsPlainAnchor(t *testing.T) {
	t.Parallel()
	got := normalizeHashAware("https://example.com/app#section")
	want := "https://example.com/app"
	if got != want {
		t.Errorf("normalizeHashAware() = %q, want %q", got, want)
	}
}

func TestIsHashRoute(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"https://example.com/app#/dashboard": true,
		"https://example.com/app#section":    false,
		"https://example.com/app":            false,
	}
	for url, want := range cases {
		if got := isHashRoute(url); got != want {
			t.Errorf("isHashRoute(%q) = %v, want %v", url, got, want)
		}
	}
}

func TestShouldCrawlURLRejectsKnownPatterns(t *testing.T) {
	t.Parallel()
	rejected := []string{
		"javascript:void(0)",
		"mailto:someone@example.com",
		"https://example.com/login",
		"https://example.com/api/v1/users",
		"https://example.com/blog/2024/01/15/",
		"https://example.com/page#footnote",
	}
	for _, u := range rejected {
		if shouldCrawlURL(u) {
			t.Errorf("shouldCrawlURL(%q) = true, want false", u)
		}
	}
}

func TestShouldCrawlURLAcceptsDocumentsAndHashRoutes(t *testing.T) {
	t.Parallel()
	accepted := []string{
		"https://example.com/docs/getting-started",
		"https://example.com/app#/dashboard",
	}
	for _, u := range accepted {
		if !shouldCrawlURL(u) {
			t.Errorf("shouldCrawlURL(%q) = false, want true", u)
		}
	}
}
