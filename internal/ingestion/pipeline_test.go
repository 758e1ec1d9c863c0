package ingestion

import (
	"context"
	"sync"
	"testing"

	"github.com/librarian/librarian/internal/chunker"
	"github.com/librarian/librarian/internal/metastore"
	"github.com/librarian/librarian/internal/vectorstore"
)

func openTestStore(t *testing.T) *metastore.Store {
	t.Helper()
	s, err := metastore.Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeEmbedder returns a fixed-dimension vector per text, deterministic
// on the text's length so distinct chunk texts produce distinct
// vectors without needing a real embedding backend.
type fakeEmbedder struct {
	dim   int
	calls int
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		for j := range v {
			v[j] = float32(len(t)+j) / 100
		}
		out[i] = v
	}
	return out, nil
}

// fakeVectorStore records upserted and deleted point ids in memory.
type fakeVectorStore struct {
	mu      sync.Mutex
	points  map[string]vectorstore.Point
	deletes []string
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: make(map[string]vectorstore.Point)}
}

func (f *fakeVectorStore) UpsertPoints(_ context.Context, points []vectorstore.Point, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range points {
		f.points[p.ID] = p
	}
	return nil
}

func (f *fakeVectorStore) DeletePoints(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		delete(f.points, id)
		f.deletes = append(f.deletes, id)
	}
	return nil
}

// sliceProducer emits a fixed list of documents, honoring emit's
// early-stop signal.
type sliceProducer []Document

func (p sliceProducer) Produce(_ context.Context, emit func(Document) (bool, error)) error {
	for _, doc := range p {
		keepGoing, err := emit(doc)
		if err != nil {
			return err
		}
		if !keepGoing {
			return nil
		}
	}
	return nil
}

func newTestPipeline(t *testing.T, vectors VectorStore, embed *fakeEmbedder) (*Pipeline, *metastore.Store) {
	t.Helper()
	store := openTestStore(t)
	p, err := NewPipeline(store, vectors, embed, Config{
		Chunk:     chunker.Config{MaxChars: 200, MinChars: 10, OverlapChars: 20, PreferHeadingBoundaries: true},
		BatchSize: 2,
	}, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, store
}

func longText(paragraphs int) string {
	var out string
	for i := 0; i < paragraphs; i++ {
		out += "This is paragraph number filler content that is long enough to force chunking across boundaries reliably.\n\n"
	}
	return out
}

func TestPipelineRunCreatesDocumentAndChunks(t *testing.T) {
	t.Parallel()
	vectors := newFakeVectorStore()
	embed := &fakeEmbedder{dim: 4}
	p, store := newTestPipeline(t, vectors, embed)
	ctx := context.Background()

	src, err := store.InsertSource(ctx, string(SourceDir), "/docs", "docs", "")
	if err != nil {
		t.Fatalf("insert source: %v", err)
	}

	producer := sliceProducer{{URI: "a.md", Raw: []byte("# Title\n\n" + longText(3))}}
	res, err := p.Run(ctx, src, producer)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.DocsProcessed != 1 || res.DocsSkipped != 0 {
		t.Fatalf("DocsProcessed=%d DocsSkipped=%d, want 1 and 0", res.DocsProcessed, res.DocsSkipped)
	}
	if res.ChunksCreated == 0 {
		t.Fatal("expected at least one chunk created")
	}
	if len(vectors.points) != res.ChunksCreated {
		t.Errorf("len(vectors.points) = %d, want %d", len(vectors.points), res.ChunksCreated)
	}

	doc, err := store.GetDocumentByURI(ctx, src.ID, "a.md")
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	chunks, err := store.GetChunks(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get chunks: %v", err)
	}
	if len(chunks) != res.ChunksCreated {
		t.Errorf("len(chunks) = %d, want %d", len(chunks), res.ChunksCreated)
	}
}

func TestPipelineRunSkipsUnchangedDocument(t *testing.T) {
	t.Parallel()
	vectors := newFakeVectorStore()
	embed := &fakeEmbedder{dim: 4}
	p, store := newTestPipeline(t, vectors, embed)
	ctx := context.Background()

	src, _ := store.InsertSource(ctx, string(SourceDir), "/docs", "docs", "")
	content := []byte("# Title\n\n" + longText(2))

	if _, err := p.Run(ctx, src, sliceProducer{{URI: "a.md", Raw: content}}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	callsAfterFirst := embed.calls

	res, err := p.Run(ctx, src, sliceProducer{{URI: "a.md", Raw: content}})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.DocsProcessed != 1 {
		t.Fatalf("DocsProcessed = %d, want 1 (processed but short-circuited)", res.DocsProcessed)
	}
	if res.ChunksCreated != 0 || res.ChunksUpdated != 0 {
		t.Errorf("expected no chunk churn on an unchanged document, got created=%d updated=%d", res.ChunksCreated, res.ChunksUpdated)
	}
	if embed.calls != callsAfterFirst {
		t.Errorf("embedder was called again for an unchanged document: calls %d -> %d", callsAfterFirst, embed.calls)
	}
}

func TestPipelineRunReembedsChangedDocumentAndTrimsChunks(t *testing.T) {
	t.Parallel()
	vectors := newFakeVectorStore()
	embed := &fakeEmbedder{dim: 4}
	p, store := newTestPipeline(t, vectors, embed)
	ctx := context.Background()

	src, _ := store.InsertSource(ctx, string(SourceDir), "/docs", "docs", "")

	if _, err := p.Run(ctx, src, sliceProducer{{URI: "a.md", Raw: []byte("# Title\n\n" + longText(4))}}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstPoints := len(vectors.points)
	if firstPoints == 0 {
		t.Fatal("expected points after first run")
	}

	res, err := p.Run(ctx, src, sliceProducer{{URI: "a.md", Raw: []byte("# Title\n\nshort replacement body.")}})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.ChunksDeleted == 0 {
		t.Error("expected trailing chunks from the longer document to be deleted")
	}
	if len(vectors.deletes) == 0 {
		t.Error("expected deleted chunks to be mirrored to the vector store")
	}
}

func TestPipelineRunPrunesStaleDocuments(t *testing.T) {
	t.Parallel()
	vectors := newFakeVectorStore()
	embed := &fakeEmbedder{dim: 4}
	p, store := newTestPipeline(t, vectors, embed)
	ctx := context.Background()

	src, _ := store.InsertSource(ctx, string(SourceDir), "/docs", "docs", "")

	if _, err := p.Run(ctx, src, sliceProducer{
		{URI: "a.md", Raw: []byte("# A\n\n" + longText(2))},
		{URI: "b.md", Raw: []byte("# B\n\n" + longText(2))},
	}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	res, err := p.Run(ctx, src, sliceProducer{
		{URI: "a.md", Raw: []byte("# A\n\n" + longText(2))},
	})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if _, err := store.GetDocumentByURI(ctx, src.ID, "b.md"); err == nil {
		t.Error("expected b.md to be pruned as stale after being absent from the second run")
	}
	if res.ChunksDeleted == 0 {
		t.Error("expected stale document's chunks to be counted as deleted")
	}
	if len(vectors.deletes) == 0 {
		t.Error("expected the stale document's chunk points to be deleted from the vector store, not just its metadata row")
	}
}

func TestPipelineRunSkipAndContinueOnDocumentFailure(t *testing.T) {
	t.Parallel()
	vectors := newFakeVectorStore()
	embed := &fakeEmbedder{dim: 4}
	p, store := newTestPipeline(t, vectors, embed)
	ctx := context.Background()

	src, _ := store.InsertSource(ctx, string(SourceDir), "/docs", "docs", "")

	binary := append([]byte("PK\x03\x04"), make([]byte, 16)...)
	res, err := p.Run(ctx, src, sliceProducer{
		{URI: "broken.bin", Raw: binary},
		{URI: "good.md", Raw: []byte("# Good\n\n" + longText(2))},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.DocsSkipped != 1 {
		t.Errorf("DocsSkipped = %d, want 1", res.DocsSkipped)
	}
	if res.DocsProcessed != 1 {
		t.Errorf("DocsProcessed = %d, want 1 (good.md still processed)", res.DocsProcessed)
	}
	if len(res.Errors) != 1 {
		t.Errorf("len(Errors) = %d, want 1", len(res.Errors))
	}
	if res.Status != metastore.RunStatusFailed {
		t.Errorf("Status = %q, want %q", res.Status, metastore.RunStatusFailed)
	}
}
