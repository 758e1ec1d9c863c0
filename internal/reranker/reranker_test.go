package reranker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNilRerankerPreservesOrder(t *testing.T) {
	t.Parallel()
	var r Reranker = Nil{}
	results, err := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 0)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for i, res := range results {
		if res.Index != i {
			t.Errorf("results[%d].Index = %d, want %d", i, res.Index, i)
		}
		if i > 0 && res.Score >= results[i-1].Score {
			t.Errorf("scores not strictly decreasing at %d", i)
		}
	}
}

func TestNilRerankerRespectsTopK(t *testing.T) {
	t.Parallel()
	r := Nil{}
	results, err := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
}

func TestHTTPRerankerOrdersByScore(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(req.Documents) != 2 {
			t.Fatalf("len(documents) = %d, want 2", len(req.Documents))
		}
		resp := rerankResponse{Results: []struct {
			Index int     `json:"index"`
			Score float32 `json:"score"`
		}{
			{Index: 1, Score: 0.9},
			{Index: 0, Score: 0.1},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	h := New(Config{Endpoint: srv.URL, Model: "cross-encoder"})
	results, err := h.Rerank(context.Background(), "query", []string{"doc0", "doc1"}, 0)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 2 || results[0].Index != 1 || results[1].Index != 0 {
		t.Fatalf("unexpected result order: %+v", results)
	}
}

func TestHTTPRerankerEmptyDocuments(t *testing.T) {
	t.Parallel()
	h := New(Config{Endpoint: "http://unused"})
	results, err := h.Rerank(context.Background(), "q", nil, 0)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if results != nil {
		t.Errorf("results = %v, want nil", results)
	}
}

func TestHTTPRerankerRejectsOutOfRangeIndex(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := rerankResponse{Results: []struct {
			Index int     `json:"index"`
			Score float32 `json:"score"`
		}{{Index: 5, Score: 0.5}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	h := New(Config{Endpoint: srv.URL, Retries: 0})
	if _, err := h.Rerank(context.Background(), "q", []string{"only one"}, 0); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestHTTPRerankerRetriesTransientFailure(t *testing.T) {
	t.Parallel()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := rerankResponse{Results: []struct {
			Index int     `json:"index"`
			Score float32 `json:"score"`
		}{{Index: 0, Score: 1}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	h := New(Config{Endpoint: srv.URL, Retries: 2, BaseDelay: time.Millisecond})
	results, err := h.Rerank(context.Background(), "q", []string{"a"}, 0)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
