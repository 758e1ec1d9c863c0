// Package query implements the retrieval pipeline: embed the query,
// search the vector store, enrich hits with their stored chunk text,
// filter and optionally fuse with a lexical BM25 signal, rerank, and
// deduplicate down to a final ranked result set.
package query

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/librarian/librarian/internal/bm25"
	"github.com/librarian/librarian/internal/embedder"
	"github.com/librarian/librarian/internal/librarianerr"
	"github.com/librarian/librarian/internal/metastore"
	"github.com/librarian/librarian/internal/reranker"
	"github.com/librarian/librarian/internal/vectorstore"
)

// overfetchFactor is how many more candidates than k are pulled from
// the vector store, to leave room for min_score filtering, dedup, and
// reranking to still land on a full page of k results.
const overfetchFactor = 2

// VectorSearcher is the narrow slice of vectorstore.Store the query
// engine needs, accepted as an interface so tests can fake it instead
// of standing up a live Qdrant collection.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, k int, filter *vectorstore.SearchFilter) ([]vectorstore.SearchResult, error)
}

// ChunkLookup is the narrow slice of metastore.Store the query engine
// needs to enrich a raw vector hit with its stored chunk text.
type ChunkLookup interface {
	GetChunkByPointID(ctx context.Context, pointID string) (*metastore.Chunk, error)
}

// Request describes one query call.
type Request struct {
	Query       string
	K           int
	MinScore    float32
	SourceIDs   []string
	SourceTypes []string
	PathPrefix  string
	DedupeDocs  bool
	// BM25Corpus optionally supplies a keyword-indexed sidecar of
	// point_id -> text for hybrid fusion; nil disables hybrid mode
	// regardless of Config.HybridSearch.
	BM25Corpus map[string]string
}

// Result is a single ranked chunk returned to the caller.
type Result struct {
	PointID    string
	Score      float32
	SourceID   string
	SourceType string
	SourceURI  string
	DocID      string
	DocURI     string
	Title      string
	ChunkIndex int
	ChunkHash  string
	ChunkText  string
	Modality   string
	MediaURL   string
	MediaHash  string
}

// Config mirrors the [query] and [reranker] sections of the TOML
// config file.
type Config struct {
	DefaultK     int
	MaxResults   int
	MinScore     float32
	HybridSearch bool
	BM25Weight   float32

	RerankEnabled              bool
	RerankTopK                 int
	RerankerSupportsMultimodal bool
}

// Engine runs the retrieval pipeline against a configured backend set.
type Engine struct {
	vectors VectorSearcher
	chunks  ChunkLookup
	embed   embedder.Embedder
	rerank  reranker.Reranker
	cfg     Config
}

// NewEngine constructs a query Engine. rerank may be reranker.Nil{} to
// disable reranking; the pipeline still runs unconditionally, so
// callers never need a nil check.
func NewEngine(vectors VectorSearcher, chunks ChunkLookup, embed embedder.Embedder, rerank reranker.Reranker, cfg Config) *Engine {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = 10
	}
	return &Engine{vectors: vectors, chunks: chunks, embed: embed, rerank: rerank, cfg: cfg}
}

// Run executes the full query pipeline and returns at most req.K
// results ordered by descending score.
func (e *Engine) Run(ctx context.Context, req Request) ([]Result, error) {
	k := req.K
	if k <= 0 {
		k = e.cfg.DefaultK
	}
	if e.cfg.MaxResults > 0 && k > e.cfg.MaxResults {
		k = e.cfg.MaxResults
	}
	minScore := req.MinScore
	if minScore == 0 {
		minScore = e.cfg.MinScore
	}

	vecs, err := e.embed.Embed(ctx, []string{req.Query})
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindEmbedding, fmt.Errorf("query: embed query: %w", err))
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, librarianerr.Newf(librarianerr.KindEmbedding, "query: embedder returned no vector for the query")
	}
	queryVec := vecs[0]

	var filter *vectorstore.SearchFilter
	if len(req.SourceIDs) > 0 || len(req.SourceTypes) > 0 || req.PathPrefix != "" {
		filter = &vectorstore.SearchFilter{
			SourceIDs:   req.SourceIDs,
			SourceTypes: req.SourceTypes,
			PathPrefix:  req.PathPrefix,
		}
	}

	hits, err := e.vectors.Search(ctx, queryVec, k*overfetchFactor, filter)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindQdrant, fmt.Errorf("query: search: %w", err))
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, e.toResult(h))
	}

	e.enrich(ctx, results)

	if e.cfg.HybridSearch && req.BM25Corpus != nil {
		applyHybridFusion(req.Query, results, req.BM25Corpus, e.cfg.BM25Weight)
	}

	results = filterByMinScore(results, minScore)

	if e.cfg.RerankEnabled && len(results) > 0 {
		results, err = e.applyRerank(ctx, req.Query, results)
		if err != nil {
			return nil, err
		}
	}

	if req.DedupeDocs {
		results = dedupeByDocURI(results)
	}

	sortByScoreDescending(results)

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (e *Engine) toResult(h vectorstore.SearchResult) Result {
	r := Result{PointID: h.ID, Score: h.Score}
	p := h.Payload
	r.SourceID, _ = p["source_id"].(string)
	r.SourceType, _ = p["source_type"].(string)
	r.SourceURI, _ = p["source_uri"].(string)
	r.DocID, _ = p["doc_id"].(string)
	r.DocURI, _ = p["doc_uri"].(string)
	r.Title, _ = p["title"].(string)
	r.ChunkHash, _ = p["chunk_hash"].(string)
	r.Modality, _ = p["modality"].(string)
	r.MediaURL, _ = p["media_url"].(string)
	r.MediaHash, _ = p["media_hash"].(string)
	switch v := p["chunk_index"].(type) {
	case int64:
		r.ChunkIndex = int(v)
	case int:
		r.ChunkIndex = v
	}
	return r
}

// enrich looks up each result's chunk text from the MetaStore by
// point id. A lookup miss leaves ChunkText empty rather than failing
// the whole query, since the payload itself still carries enough
// identifying metadata to be useful.
func (e *Engine) enrich(ctx context.Context, results []Result) {
	for i := range results {
		chunk, err := e.chunks.GetChunkByPointID(ctx, results[i].PointID)
		if err != nil {
			continue
		}
		results[i].ChunkText = chunk.ChunkText
	}
}

// applyHybridFusion overwrites each result's score with
// (1-w)*vector_score + w*bm25_score, per spec. A point id absent from
// the BM25 corpus (no lexical signal) contributes a bm25 score of 0
// rather than being dropped from fusion.
func applyHybridFusion(query string, results []Result, corpus map[string]string, weight float32) {
	if weight <= 0 {
		return
	}
	if weight > 1 {
		weight = 1
	}
	lexical := bm25.Normalize(bm25.Score(query, corpus))
	for i := range results {
		results[i].Score = (1-weight)*results[i].Score + weight*float32(lexical[results[i].PointID])
	}
}

func filterByMinScore(results []Result, minScore float32) []Result {
	out := results[:0]
	for _, r := range results {
		if r.Score >= minScore {
			out = append(out, r)
		}
	}
	return out
}

// applyRerank sends result chunk text through the configured
// reranker. If the reranker does not support multimodal input, image
// results are held aside and re-merged unchanged after reranking the
// text-only subset.
func (e *Engine) applyRerank(ctx context.Context, query string, results []Result) ([]Result, error) {
	var textIdx []int
	var held []Result
	for i, r := range results {
		if r.Modality == "image" && !e.cfg.RerankerSupportsMultimodal {
			held = append(held, r)
			continue
		}
		textIdx = append(textIdx, i)
	}
	if len(textIdx) == 0 {
		return results, nil
	}

	texts := make([]string, len(textIdx))
	for i, idx := range textIdx {
		texts[i] = results[idx].ChunkText
	}

	topK := e.cfg.RerankTopK
	if topK <= 0 {
		topK = len(texts)
	}
	ranked, err := e.rerank.Rerank(ctx, query, texts, topK)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindOther, fmt.Errorf("query: rerank: %w", err))
	}

	out := make([]Result, 0, len(ranked)+len(held))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(textIdx) {
			continue
		}
		res := results[textIdx[r.Index]]
		res.Score = r.Score
		out = append(out, res)
	}
	out = append(out, held...)
	return out, nil
}

func dedupeByDocURI(results []Result) []Result {
	best := make(map[string]Result, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		key := r.DocURI
		if key == "" {
			key = r.DocID
		}
		cur, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = r
			continue
		}
		if scoreLess(cur.Score, r.Score) {
			best[key] = r
		}
	}
	out := make([]Result, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

// scoreLess reports whether a should be considered lower-ranked than
// b, treating NaN as equal to any value so a NaN score never wins a
// comparison it shouldn't and the overall ordering stays a valid total
// order for sort.SliceStable.
func scoreLess(a, b float32) bool {
	if math.IsNaN(float64(a)) || math.IsNaN(float64(b)) {
		return false
	}
	return a < b
}

func sortByScoreDescending(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return scoreLess(results[j].Score, results[i].Score)
	})
}
