// Package reranker scores (query, document) pairs with a cross-
// encoder service, reordering a candidate set by relevance more
// precisely than the bi-encoder similarity score the vector search
// already produced.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/librarian/librarian/internal/librarianerr"
)

// Result is a single reranked candidate: Index refers back into the
// documents slice passed to Rerank, so the caller can recover whatever
// metadata it attached to that position.
type Result struct {
	Index int
	Score float32
}

// Reranker scores documents against a query. The order of the returned
// results is up to the implementation and is not guaranteed to be
// sorted; callers sort by Score.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]Result, error)
}

// Nil is a no-op Reranker that preserves input order, assigning
// decreasing synthetic scores. It is selected when [reranker] is
// disabled in config, so callers never need a nil check.
type Nil struct{}

// Rerank returns documents in their original order.
func (Nil) Rerank(_ context.Context, _ string, documents []string, topK int) ([]Result, error) {
	n := len(documents)
	if topK > 0 && topK < n {
		n = topK
	}
	out := make([]Result, n)
	for i := 0; i < n; i++ {
		out[i] = Result{Index: i, Score: 1.0 - float32(i)*0.001}
	}
	return out, nil
}

// Config configures an HTTP-backed cross-encoder Reranker.
type Config struct {
	Endpoint           string
	Model              string
	SupportsMultimodal bool
	Timeout            time.Duration
	Retries            int
	BaseDelay          time.Duration
}

// HTTP calls an opaque cross-encoder reranking service over a
// {query, documents} -> [{index, score}] JSON contract.
type HTTP struct {
	endpoint  string
	model     string
	retries   int
	baseDelay time.Duration
	client    *http.Client
}

// New constructs an HTTP-backed Reranker from cfg.
func New(cfg Config) *HTTP {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.Retries
	if retries == 0 {
		retries = 2
	}
	baseDelay := cfg.BaseDelay
	if baseDelay == 0 {
		baseDelay = 200 * time.Millisecond
	}
	return &HTTP{
		endpoint:  cfg.Endpoint,
		model:     cfg.Model,
		retries:   retries,
		baseDelay: baseDelay,
		client:    &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float32 `json:"score"`
	} `json:"results"`
	Error string `json:"error,omitempty"`
}

// Rerank posts query and documents to the configured /rerank endpoint
// and returns the service's relevance ordering, retrying transient
// failures with exponential backoff.
func (h *HTTP) Rerank(ctx context.Context, query string, documents []string, topK int) ([]Result, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	var results []Result
	var lastErr error
	delay := h.baseDelay
	for attempt := 0; attempt <= h.retries; attempt++ {
		results, lastErr = h.rerankOnce(ctx, query, documents, topK)
		if lastErr == nil {
			return results, nil
		}
		if attempt == h.retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, librarianerr.New(librarianerr.KindHTTP, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, librarianerr.New(librarianerr.KindHTTP, fmt.Errorf("reranker: %w", lastErr))
}

func (h *HTTP) rerankOnce(ctx context.Context, query string, documents []string, topK int) ([]Result, error) {
	body := rerankRequest{Query: query, Documents: documents, Model: h.model}
	if topK > 0 {
		body.TopK = topK
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindJSON, fmt.Errorf("reranker: marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindHTTP, fmt.Errorf("reranker: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindHTTP, fmt.Errorf("reranker: request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, librarianerr.Newf(librarianerr.KindHTTP, "reranker: status %d: %s", resp.StatusCode, string(data))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, librarianerr.New(librarianerr.KindJSON, fmt.Errorf("reranker: decode response: %w", err))
	}
	if result.Error != "" {
		return nil, librarianerr.Newf(librarianerr.KindHTTP, "reranker: %s", result.Error)
	}

	out := make([]Result, 0, len(result.Results))
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, librarianerr.Newf(librarianerr.KindHTTP, "reranker: index %d out of range [0, %d)", r.Index, len(documents))
		}
		out = append(out, Result{Index: r.Index, Score: r.Score})
	}
	return out, nil
}

var (
	_ Reranker = Nil{}
	_ Reranker = (*HTTP)(nil)
)
