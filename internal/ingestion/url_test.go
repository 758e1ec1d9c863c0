package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/librarian/librarian/internal/crawler"
)

func TestURLProducerEmitsCrawledPages(t *testing.T) {
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

	c := crawler.New(crawler.Config{MaxDepth: 2, MaxPages: 10, TimeoutSecs: 5, RateLimitPerHost: 1000}, nil)
	up := URLProducer{Seed: srv.URL + "/", Crawler: c}

	var docs []Document
	err := up.Produce(context.Background(), func(d Document) (bool, error) {
		docs = append(docs, d)
		return true, nil
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len(docs) = %d, want 2", len(docs))
	}
}

func TestURLProducerStopsCrawlOnEmitFalse(t *testing.T) {
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

	c := crawler.New(crawler.Config{MaxDepth: 5, MaxPages: 10, TimeoutSecs: 5, RateLimitPerHost: 1000}, nil)
	up := URLProducer{Seed: srv.URL + "/", Crawler: c}

	calls := 0
	err := up.Produce(context.Background(), func(Document) (bool, error) {
		calls++
		return false, nil
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (stop after first emitted page)", calls)
	}
}
