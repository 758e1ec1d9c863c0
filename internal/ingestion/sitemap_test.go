package ingestion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/librarian/librarian/internal/crawler"
)

func TestSitemapProducerParsesURLSet(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("page a"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("page b"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0"?>
<urlset><url><loc>` + srv.URL + `/a</loc></url><url><loc>` + srv.URL + `/b</loc></url></urlset>`))
	})

	c := crawler.New(crawler.Config{TimeoutSecs: 5, RespectRobotsTxt: false, RateLimitPerHost: 1000}, nil)
	sp := SitemapProducer{SeedURL: srv.URL + "/sitemap.xml", MaxPages: 10, Crawler: c}

	var docs []Document
	err := sp.Produce(context.Background(), func(d Document) (bool, error) {
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

func TestSitemapProducerPlainTextFallback(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("page a"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/sitemap.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(srv.URL + "/a\n"))
	})

	c := crawler.New(crawler.Config{TimeoutSecs: 5, RespectRobotsTxt: false, RateLimitPerHost: 1000}, nil)
	sp := SitemapProducer{SeedURL: srv.URL + "/sitemap.txt", MaxPages: 10, Crawler: c}

	var docs []Document
	err := sp.Produce(context.Background(), func(d Document) (bool, error) {
		docs = append(docs, d)
		return true, nil
	})
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("len(docs) = %d, want 1", len(docs))
	}
}

func TestSitemapProducerRespectsMaxPages(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	for _, p := range []string{"/a", "/b", "/c"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("content"))
		})
	}
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<urlset><url><loc>` + srv.URL + `/a</loc></url><url><loc>` + srv.URL +
			`/b</loc></url><url><loc>` + srv.URL + `/c</loc></url></urlset>`))
	})

	c := crawler.New(crawler.Config{TimeoutSecs: 5, RespectRobotsTxt: false, RateLimitPerHost: 1000}, nil)
	sp := SitemapProducer{SeedURL: srv.URL + "/sitemap.xml", MaxPages: 2, Crawler: c}

	var docs []Document
	err := sp.Produce(context.Background(), func(d Document) (bool, error) {
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
