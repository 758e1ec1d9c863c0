package crawler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestCrawlFollowsInternalLinksWithinDepth(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/page1">one</a><a href="http://external.invalid/external">ext</a></body></html>`))
	})
	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/page2">two</a></body></html>`))
	})
	mux.HandleFunc("/page2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>leaf</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := Config{
		MaxDepth:         2,
		MaxPages:         10,
		RateLimitPerHost: 1000,
		UserAgent:        "librarian-test/1.0",
		TimeoutSecs:      5,
		RespectRobotsTxt: false,
	}
	c := New(cfg, discardLogger())

	pages, err := c.Crawl(context.Background(), srv.URL+"/", nil)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("len(pages) = %d, want 3 (root, page1, page2)", len(pages))
	}
}

func TestCrawlRespectsMaxPages(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/a">a</a><a href="/b">b</a><a href="/c">c</a></body></html>`))
	})
	for _, p := range []string{"/a", "/b", "/c"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body>leaf</body></html>`))
		})
	}
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := Config{
		MaxDepth:         5,
		MaxPages:         2,
		RateLimitPerHost: 1000,
		UserAgent:        "librarian-test/1.0",
		TimeoutSecs:      5,
	}
	c := New(cfg, discardLogger())
	pages, err := c.Crawl(context.Background(), srv.URL+"/", nil)
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if len(pages) > 2 {
		t.Fatalf("len(pages) = %d, want at most 2", len(pages))
	}
}

func TestCrawlStopsWhenCallbackReturnsFalse(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/page1">one</a></body></html>`))
	})
	mux.HandleFunc("/page1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>leaf</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := Config{
		MaxDepth:         5,
		MaxPages:         10,
		RateLimitPerHost: 1000,
		UserAgent:        "librarian-test/1.0",
		TimeoutSecs:      5,
	}
	c := New(cfg, discardLogger())

	seen := 0
	pages, err := c.Crawl(context.Background(), srv.URL+"/", func(CrawledPage) bool {
		seen++
		return false
	})
	if err != nil {
		t.Fatalf("Crawl: %v", err)
	}
	if seen != 1 || len(pages) != 1 {
		t.Fatalf("seen=%d len(pages)=%d, want 1 and 1 (stop after first page)", seen, len(pages))
	}
}

func TestCrawlRejectsInvalidSeed(t *testing.T) {
	t.Parallel()
	c := New(Config{MaxDepth: 1, MaxPages: 1, TimeoutSecs: 1}, discardLogger())
	if _, err := c.Crawl(context.Background(), "not a url", nil); err == nil {
		t.Fatal("expected error for invalid seed URL")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestSeedDirectory(t *testing.T) {
	t.Parallel()
	u, err := url.Parse("https://example.com/docs/guide")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := seedDirectory(u); got != "/docs/" {
		t.Errorf("seedDirectory() = %q, want %q", got, "/docs/")
	}
}

func TestHostAllowed(t *testing.T) {
	t.Parallel()
	if !hostAllowed("Example.com", []string{"example.com"}) {
		t.Error("hostAllowed should be case-insensitive")
	}
	if hostAllowed("other.com", []string{"example.com"}) {
		t.Error("hostAllowed should reject unlisted hosts")
	}
}
