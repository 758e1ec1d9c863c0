package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestOllamaEmbedderOrderAndDimension(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := ollamaEmbedResponse{Embeddings: make([][]float32, len(req.Input))}
		for i := range req.Input {
			resp.Embeddings[i] = []float32{float32(i), float32(i) + 0.5}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nomic-embed-text", Dimensions: 2})
	if e.Dimension() != 2 {
		t.Fatalf("Dimension() = %d, want 2", e.Dimension())
	}

	out, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3", len(out))
	}
	for i, v := range out {
		if v[0] != float32(i) {
			t.Errorf("out[%d][0] = %v, want %v", i, v[0], float32(i))
		}
	}
}

func TestOllamaEmbedderEmptyInput(t *testing.T) {
	t.Parallel()
	e := NewOllamaEmbedder(&OllamaConfig{Host: "http://unused", Model: "m"})
	out, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed(nil): %v", err)
	}
	if out != nil {
		t.Errorf("out = %v, want nil", out)
	}
}

func TestOllamaEmbedderRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := ollamaEmbedResponse{Embeddings: [][]float32{{1, 2}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m", Dimensions: 2, Retries: 2, BaseDelay: time.Millisecond})
	out, err := e.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestOllamaEmbedderExhaustsRetries(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "m", Retries: 1, BaseDelay: time.Millisecond})
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestOpenAIEmbedderReordersOutOfOrderResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		type datum struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Data []datum `json:"data"`
		}{
			Data: []datum{
				{Embedding: []float32{2}, Index: 2},
				{Embedding: []float32{0}, Index: 0},
				{Embedding: []float32{1}, Index: 1},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "text-embedding-3-small", Dimensions: 1})
	out, err := e.Embed(context.Background(), []string{"zero", "one", "two"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i, v := range out {
		if v[0] != float32(i) {
			t.Errorf("out[%d][0] = %v, want %v (response was out of order)", i, v[0], float32(i))
		}
	}
}

func TestOpenAIEmbedderAzureHeaderAndURL(t *testing.T) {
	t.Parallel()
	var gotPath, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("api-key")
		_ = json.NewEncoder(w).Encode(struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			} `json:"data"`
		}{Data: []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{{Embedding: []float32{1}, Index: 0}}})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL: srv.URL, APIKey: "secret", Model: "embed-model",
		Azure: true, APIVersion: "2025-04-01-preview",
	})
	if _, err := e.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if gotHeader != "secret" {
		t.Errorf("api-key header = %q, want %q", gotHeader, "secret")
	}
	wantPath := "/deployments/embed-model/embeddings"
	if gotPath != wantPath {
		t.Errorf("path = %q, want %q", gotPath, wantPath)
	}
}

func TestOpenAIEmbedderMismatchedCountErrors(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			} `json:"data"`
		}{})
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m", Retries: 0})
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for mismatched embedding count")
	}
}

func TestNewFromConfigUnknownProvider(t *testing.T) {
	t.Parallel()
	if _, err := NewFromConfig(Config{Provider: "made-up"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewFromConfigOllamaDefaults(t *testing.T) {
	t.Parallel()
	e, err := NewFromConfig(Config{Provider: "ollama"})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if e.Dimension() != defaultOllamaDimensions {
		t.Errorf("Dimension() = %d, want %d", e.Dimension(), defaultOllamaDimensions)
	}
}

func TestNewFromConfigOpenAIRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EMBEDDING_API_KEY", "")
	if _, err := NewFromConfig(Config{Provider: "openai"}); err == nil {
		t.Fatal("expected error when no API key is configured")
	}
}

func TestOpenAIEmbedderDoesNotImplementImageEmbedder(t *testing.T) {
	t.Parallel()
	var e Embedder = NewOpenAIEmbedder(&OpenAIConfig{BaseURL: "http://unused", APIKey: "k", Model: "m"})
	if _, ok := e.(ImageEmbedder); ok {
		t.Error("OpenAIEmbedder unexpectedly implements ImageEmbedder")
	}
}
