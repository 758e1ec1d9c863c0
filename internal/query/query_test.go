package query

import (
	"context"
	"testing"

	"github.com/librarian/librarian/internal/librarianerr"
	"github.com/librarian/librarian/internal/metastore"
	"github.com/librarian/librarian/internal/reranker"
	"github.com/librarian/librarian/internal/vectorstore"
)

type fakeEmbedder struct {
	dim int
	vec []float32
	err error
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type fakeSearcher struct {
	results []vectorstore.SearchResult
	gotK    int
	gotFilter *vectorstore.SearchFilter
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, k int, filter *vectorstore.SearchFilter) ([]vectorstore.SearchResult, error) {
	f.gotK = k
	f.gotFilter = filter
	return f.results, nil
}

type fakeChunks struct {
	texts map[string]string
}

func (f *fakeChunks) GetChunkByPointID(_ context.Context, pointID string) (*metastore.Chunk, error) {
	text, ok := f.texts[pointID]
	if !ok {
		return nil, librarianerr.Newf(librarianerr.KindOther, "no chunk for %s", pointID)
	}
	return &metastore.Chunk{ChunkText: text}, nil
}

func hit(id string, score float32, payload map[string]any) vectorstore.SearchResult {
	return vectorstore.SearchResult{ID: id, Score: score, Payload: payload}
}

func TestRunReturnsRankedResultsEnrichedWithChunkText(t *testing.T) {
	t.Parallel()
	searcher := &fakeSearcher{results: []vectorstore.SearchResult{
		hit("p1", 0.9, map[string]any{"doc_uri": "doc-a", "chunk_index": int64(0)}),
		hit("p2", 0.5, map[string]any{"doc_uri": "doc-b", "chunk_index": int64(1)}),
	}}
	chunks := &fakeChunks{texts: map[string]string{"p1": "alpha text", "p2": "beta text"}}
	e := NewEngine(searcher, chunks, &fakeEmbedder{dim: 3, vec: []float32{1, 0, 0}}, reranker.Nil{}, Config{DefaultK: 10})

	results, err := e.Run(context.Background(), Request{Query: "alpha", K: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].PointID != "p1" || results[0].ChunkText != "alpha text" {
		t.Errorf("top result = %+v, want p1/alpha text first (higher score)", results[0])
	}
}

func TestRunFailsOnEmptyEmbedding(t *testing.T) {
	t.Parallel()
	e := NewEngine(&fakeSearcher{}, &fakeChunks{}, &fakeEmbedder{dim: 3, vec: nil}, reranker.Nil{}, Config{})
	_, err := e.Run(context.Background(), Request{Query: "x"})
	if err == nil {
		t.Fatal("expected an error for an empty query vector")
	}
}

func TestRunDropsResultsBelowMinScore(t *testing.T) {
	t.Parallel()
	searcher := &fakeSearcher{results: []vectorstore.SearchResult{
		hit("p1", 0.9, map[string]any{"doc_uri": "doc-a"}),
		hit("p2", 0.1, map[string]any{"doc_uri": "doc-b"}),
	}}
	chunks := &fakeChunks{texts: map[string]string{"p1": "a", "p2": "b"}}
	e := NewEngine(searcher, chunks, &fakeEmbedder{dim: 3, vec: []float32{1, 0, 0}}, reranker.Nil{}, Config{MinScore: 0.5})

	results, err := e.Run(context.Background(), Request{Query: "x", K: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || results[0].PointID != "p1" {
		t.Fatalf("results = %+v, want only p1", results)
	}
}

func TestRunDedupesByDocURIKeepingHighestScore(t *testing.T) {
	t.Parallel()
	searcher := &fakeSearcher{results: []vectorstore.SearchResult{
		hit("p1", 0.4, map[string]any{"doc_uri": "doc-a"}),
		hit("p2", 0.9, map[string]any{"doc_uri": "doc-a"}),
		hit("p3", 0.6, map[string]any{"doc_uri": "doc-b"}),
	}}
	chunks := &fakeChunks{texts: map[string]string{"p1": "a1", "p2": "a2", "p3": "b1"}}
	e := NewEngine(searcher, chunks, &fakeEmbedder{dim: 3, vec: []float32{1, 0, 0}}, reranker.Nil{}, Config{})

	results, err := e.Run(context.Background(), Request{Query: "x", K: 10, DedupeDocs: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2 (deduped)", len(results))
	}
	if results[0].PointID != "p2" {
		t.Errorf("expected p2 (higher score within doc-a) to survive dedup, got %s", results[0].PointID)
	}
}

func TestRunTruncatesToK(t *testing.T) {
	t.Parallel()
	var hits []vectorstore.SearchResult
	texts := map[string]string{}
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		hits = append(hits, hit(id, float32(i), map[string]any{"doc_uri": id}))
		texts[id] = id
	}
	e := NewEngine(&fakeSearcher{results: hits}, &fakeChunks{texts: texts}, &fakeEmbedder{dim: 3, vec: []float32{1, 0, 0}}, reranker.Nil{}, Config{})

	results, err := e.Run(context.Background(), Request{Query: "x", K: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
}

func TestRunRerankOverwritesScoreAndPartitionsImageResults(t *testing.T) {
	t.Parallel()
	searcher := &fakeSearcher{results: []vectorstore.SearchResult{
		hit("text1", 0.5, map[string]any{"doc_uri": "d1", "modality": "text"}),
		hit("img1", 0.99, map[string]any{"doc_uri": "d2", "modality": "image"}),
	}}
	chunks := &fakeChunks{texts: map[string]string{"text1": "some text"}}
	e := NewEngine(searcher, chunks, &fakeEmbedder{dim: 3, vec: []float32{1, 0, 0}}, reranker.Nil{}, Config{RerankEnabled: true})

	results, err := e.Run(context.Background(), Request{Query: "x", K: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	var foundImage bool
	for _, r := range results {
		if r.PointID == "img1" {
			foundImage = true
			if r.Score != 0.99 {
				t.Errorf("image result score should be preserved unchanged at 0.99, got %v", r.Score)
			}
		}
	}
	if !foundImage {
		t.Error("expected the image result to survive reranking via the held-aside partition")
	}
}

func TestRunHybridFusionBlendsVectorAndBM25Scores(t *testing.T) {
	t.Parallel()
	searcher := &fakeSearcher{results: []vectorstore.SearchResult{
		hit("p1", 0.5, map[string]any{"doc_uri": "d1"}),
		hit("p2", 0.5, map[string]any{"doc_uri": "d2"}),
	}}
	chunks := &fakeChunks{texts: map[string]string{"p1": "fox fox fox", "p2": "unrelated gardening text"}}
	e := NewEngine(searcher, chunks, &fakeEmbedder{dim: 3, vec: []float32{1, 0, 0}}, reranker.Nil{}, Config{HybridSearch: true, BM25Weight: 0.5})

	results, err := e.Run(context.Background(), Request{
		Query:      "fox",
		K:          10,
		BM25Corpus: map[string]string{"p1": "fox fox fox", "p2": "unrelated gardening text"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if results[0].PointID != "p1" {
		t.Errorf("expected p1 to rank first after BM25 fusion boosts its lexical match, got %+v", results)
	}
}

func TestRunPassesSourceFilterToSearcher(t *testing.T) {
	t.Parallel()
	searcher := &fakeSearcher{results: nil}
	e := NewEngine(searcher, &fakeChunks{}, &fakeEmbedder{dim: 3, vec: []float32{1, 0, 0}}, reranker.Nil{}, Config{})

	_, err := e.Run(context.Background(), Request{Query: "x", K: 5, SourceIDs: []string{"s1"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if searcher.gotFilter == nil || len(searcher.gotFilter.SourceIDs) != 1 || searcher.gotFilter.SourceIDs[0] != "s1" {
		t.Errorf("expected the source id filter to reach the searcher, got %+v", searcher.gotFilter)
	}
	if searcher.gotK != 5*overfetchFactor {
		t.Errorf("gotK = %d, want %d (k * overfetch factor)", searcher.gotK, 5*overfetchFactor)
	}
}
