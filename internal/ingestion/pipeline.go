// Package ingestion implements the document producer → chunk → embed
// → upsert flow shared by the Dir, Url, and Sitemap entry points. Only
// the document producer differs between them; the per-document
// algorithm, failure policy, and stale-document pruning are identical.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/librarian/librarian/internal/chunker"
	"github.com/librarian/librarian/internal/docparse"
	"github.com/librarian/librarian/internal/embedder"
	"github.com/librarian/librarian/internal/hashutil"
	"github.com/librarian/librarian/internal/ids"
	"github.com/librarian/librarian/internal/librarianerr"
	"github.com/librarian/librarian/internal/metastore"
	"github.com/librarian/librarian/internal/vectorstore"
)

// Document is one raw unit yielded by a Producer. MIME is an optional
// explicit content type; when empty, content-type detection falls
// back to the URI's extension.
type Document struct {
	URI  string
	Raw  []byte
	MIME string
}

// Producer enumerates the documents of one Source. emit is called
// once per document, in order; its returned error is produced by the
// pipeline's per-document processing, never by the producer itself.
// A producer stops early if emit reports keepGoing=false.
type Producer interface {
	Produce(ctx context.Context, emit func(Document) (keepGoing bool, err error)) error
}

// Config bounds chunking and embedding behavior for a Pipeline.
type Config struct {
	Chunk      chunker.Config
	BatchSize  int
	Multimodal MultimodalConfig
}

// MultimodalConfig gates image extraction during ingestion. It is the
// ingestion-side mirror of the crawler's [crawl.multimodal] policy:
// the crawler decides whether a page is worth rendering, this decides
// whether a page's discovered media is worth fetching and embedding.
type MultimodalConfig struct {
	Enabled           bool
	MaxImagesPerPage  int
	MinImageBytes     int
	AllowedImageTypes []string
}

// AssetStore is the narrow capability the pipeline needs to persist
// image bytes it downloads. *assetstore.Store satisfies this.
type AssetStore interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// ImageFetcher retrieves the raw bytes and content type behind a media
// URL discovered in a parsed document. *crawler.Crawler satisfies
// this; the dir producer has no fetcher and multimodal extraction is
// a no-op for it.
type ImageFetcher interface {
	FetchAsset(ctx context.Context, url string) ([]byte, string, error)
}

// Result is the outcome of one Run, mirroring a completed
// metastore.IngestionRun plus the overlap warnings computed before it
// started.
type Result struct {
	RunID         string
	Status        metastore.RunStatus
	DocsProcessed int
	DocsSkipped   int
	ChunksCreated int
	ChunksUpdated int
	ChunksDeleted int
	Errors        []string
	Overlaps      []Overlap
}

// VectorStore is the narrow slice of vectorstore.Store the pipeline
// needs: batch upsert and point deletion. Declared here (rather than
// depending on the concrete *vectorstore.Store) so tests can exercise
// the pipeline's algorithm against a fake instead of a live Qdrant.
type VectorStore interface {
	UpsertPoints(ctx context.Context, points []vectorstore.Point, dimension uint64) error
	DeletePoints(ctx context.Context, ids []string) error
}

// Pipeline orchestrates the shared §4.8 algorithm against a durable
// metastore and a vector index.
type Pipeline struct {
	store   *metastore.Store
	vectors VectorStore
	embed   embedder.Embedder
	assets  AssetStore
	fetcher ImageFetcher
	cfg     Config
	log     *slog.Logger
}

// NewPipeline constructs a Pipeline. cfg's zero values are filled with
// the same defaults as the chunker and embedding config sections.
func NewPipeline(store *metastore.Store, vectors VectorStore, embed embedder.Embedder, cfg Config, log *slog.Logger) (*Pipeline, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if vectors == nil {
		return nil, wrapf(librarianerr.KindConfig, "ingestion: vectorstore must not be nil")
	}
	if embed == nil {
		return nil, wrapf(librarianerr.KindConfig, "ingestion: embedder must not be nil")
	}
	if cfg.Chunk.MaxChars == 0 {
		cfg.Chunk = chunker.Config{MaxChars: 1500, MinChars: 100, OverlapChars: 200, PreferHeadingBoundaries: true}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{store: store, vectors: vectors, embed: embed, cfg: cfg, log: log}, nil
}

// WithMultimodal attaches the asset store and image fetcher multimodal
// extraction needs. Without a call to WithMultimodal, processDocument
// never inspects a parsed document's Media list, regardless of
// Config.Multimodal.Enabled — callers that cannot fetch images (the
// dir producer) simply never call it.
func (p *Pipeline) WithMultimodal(assets AssetStore, fetcher ImageFetcher) *Pipeline {
	p.assets = assets
	p.fetcher = fetcher
	return p
}

// Run executes the shared ingestion algorithm for source, consuming
// documents from producer until it is exhausted. Overlaps are
// computed before the run starts and returned alongside its outcome;
// they never block ingestion.
func (p *Pipeline) Run(ctx context.Context, source *metastore.Source, producer Producer) (*Result, error) {
	overlaps, err := DetectOverlaps(ctx, p.store, SourceKind(source.Type), source.ID, source.URI)
	if err != nil {
		return nil, err
	}

	run, err := p.store.StartIngestionRun(ctx, source.ID, string(source.Type))
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: run.ID, Overlaps: overlaps}
	var seenURIs []string

	produceErr := producer.Produce(ctx, func(doc Document) (bool, error) {
		if ctx.Err() != nil {
			return false, nil
		}
		seenURIs = append(seenURIs, doc.URI)
		if err := p.processDocument(ctx, source, doc, res); err != nil {
			res.DocsSkipped++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", doc.URI, err))
			p.log.Warn("ingestion: document failed, skipping", slog.String("uri", doc.URI), slog.Any("error", err))
		} else {
			res.DocsProcessed++
		}
		return true, nil
	})
	if produceErr != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("producer: %v", produceErr))
	}

	if produceErr == nil && ctx.Err() == nil {
		if err := p.pruneStale(ctx, source.ID, seenURIs, res); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("stale pruning: %v", err))
		}
	}

	status := metastore.RunStatusCompleted
	if len(res.Errors) > 0 {
		status = metastore.RunStatusFailed
	}
	res.Status = status

	errorsJSON := ""
	if len(res.Errors) > 0 {
		b, _ := json.Marshal(res.Errors)
		errorsJSON = string(b)
	}
	counters := metastore.RunCounters{
		DocsProcessed: res.DocsProcessed,
		ChunksCreated: res.ChunksCreated,
		ChunksUpdated: res.ChunksUpdated,
		ChunksDeleted: res.ChunksDeleted,
	}
	if err := p.store.CompleteIngestionRun(ctx, run.ID, status, counters, errorsJSON); err != nil {
		return res, err
	}
	return res, nil
}

// processDocument implements §4.8 step 5 for a single produced
// document: hash short-circuit, parse, chunk, new-or-changed
// selection, batched embedding, point construction, batch upsert, and
// trailing chunk-index deletion.
func (p *Pipeline) processDocument(ctx context.Context, source *metastore.Source, doc Document, res *Result) error {
	docHash := hashutil.HashBytes(doc.Raw)

	if existing, err := p.store.GetDocumentByURI(ctx, source.ID, doc.URI); err == nil {
		if existing.ContentHash == docHash {
			return nil
		}
	} else if librarianerr.KindOf(err) != librarianerr.KindDocumentNotFound {
		return err
	}

	if docparse.IsBinary(doc.Raw) {
		return wrapf(librarianerr.KindUnsupportedContentType, "ingestion: %s looks like binary content", doc.URI)
	}

	contentType := docparse.DetectContentType(doc.MIME, extOf(doc.URI))
	parsed, err := docparse.Parse(doc.Raw, contentType, docparse.Options{
		BaseURL:               doc.URI,
		ExtractCSSBackgrounds: p.cfg.Multimodal.Enabled,
	})
	if err != nil {
		return wrapf(librarianerr.KindParse, "ingestion: parse %s: %w", doc.URI, err)
	}

	docRow, err := p.store.UpsertDocument(ctx, metastore.Document{
		SourceID:    source.ID,
		URI:         doc.URI,
		Title:       parsed.Title,
		ContentHash: docHash,
		ContentType: string(contentType),
	})
	if err != nil {
		return err
	}

	chunks := chunker.Chunk(parsed, docHash, p.cfg.Chunk)

	existingChunks, err := p.store.GetChunks(ctx, docRow.ID)
	if err != nil {
		return err
	}
	existingHashes := make(map[string]bool, len(existingChunks))
	for _, c := range existingChunks {
		existingHashes[c.ChunkHash] = true
	}

	type pending struct {
		chunk chunker.TextChunk
		known bool
	}
	toEmbed := make([]pending, 0, len(chunks))
	for _, c := range chunks {
		toEmbed = append(toEmbed, pending{chunk: c, known: existingHashes[c.Hash]})
	}

	var newOrChanged []pending
	for _, pc := range toEmbed {
		if !pc.known {
			newOrChanged = append(newOrChanged, pc)
		}
	}
	if len(newOrChanged) == 0 {
		return p.trimTrailingChunks(ctx, docRow.ID, len(chunks), res)
	}

	embeddings := make([][]float32, 0, len(newOrChanged))
	for start := 0; start < len(newOrChanged); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(newOrChanged) {
			end = len(newOrChanged)
		}
		texts := make([]string, 0, end-start)
		for _, pc := range newOrChanged[start:end] {
			texts = append(texts, pc.chunk.Text)
		}
		batch, err := p.embed.Embed(ctx, texts)
		if err != nil {
			return wrapf(librarianerr.KindEmbedding, "ingestion: embed %s: %w", doc.URI, err)
		}
		if len(batch) != len(texts) {
			return wrapf(librarianerr.KindEmbedding, "ingestion: embedder returned %d vectors for %d texts", len(batch), len(texts))
		}
		embeddings = append(embeddings, batch...)
	}

	points := make([]vectorstore.Point, 0, len(newOrChanged))
	for i, pc := range newOrChanged {
		pointID := ids.PointID(pc.chunk.Hash)
		if _, err := p.store.UpsertChunk(ctx, metastore.Chunk{
			DocID:      docRow.ID,
			ChunkIndex: pc.chunk.Index,
			ChunkHash:  pc.chunk.Hash,
			ChunkText:  pc.chunk.Text,
			CharStart:  pc.chunk.CharStart,
			CharEnd:    pc.chunk.CharEnd,
			Headings:   pc.chunk.Headings,
			PointID:    pointID,
			Modality:   "text",
		}); err != nil {
			return err
		}

		points = append(points, vectorstore.Point{
			ID:     pointID,
			Vector: embeddings[i],
			Payload: map[string]any{
				"source_id":   source.ID,
				"source_type": source.Type,
				"source_uri":  source.URI,
				"doc_id":      docRow.ID,
				"doc_uri":     doc.URI,
				"title":       parsed.Title,
				"chunk_index": int64(pc.chunk.Index),
				"chunk_hash":  pc.chunk.Hash,
				"modality":    "text",
			},
		})

		if pc.known {
			res.ChunksUpdated++
		} else {
			res.ChunksCreated++
		}
	}

	dimension := uint64(p.embed.Dimension())
	if err := p.vectors.UpsertPoints(ctx, points, dimension); err != nil {
		return err
	}

	if err := p.processMedia(ctx, source, doc, docRow, parsed, existingHashes, res); err != nil {
		p.log.Warn("ingestion: multimodal extraction failed, continuing with text chunks only",
			slog.String("uri", doc.URI), slog.Any("error", err))
	}

	return p.trimTrailingChunks(ctx, docRow.ID, len(chunks), res)
}

// processMedia implements the optional multimodal extension to §4.8
// step 5: for each image reference discovered in the parsed document,
// fetch its bytes, store them content-addressed, embed them into the
// same vector space as the document's text chunks, and record an
// image Chunk row. It is a no-op unless WithMultimodal was called and
// Config.Multimodal.Enabled is set.
func (p *Pipeline) processMedia(ctx context.Context, source *metastore.Source, doc Document, docRow *metastore.Document, parsed *docparse.ParsedDocument, existingHashes map[string]bool, res *Result) error {
	if !p.cfg.Multimodal.Enabled || p.assets == nil || p.fetcher == nil || len(parsed.Media) == 0 {
		return nil
	}
	embedImg, ok := p.embed.(embedder.ImageEmbedder)
	if !ok {
		return nil
	}

	maxImages := p.cfg.Multimodal.MaxImagesPerPage
	if maxImages <= 0 || maxImages > len(parsed.Media) {
		maxImages = len(parsed.Media)
	}

	type fetched struct {
		media docparse.Media
		data  []byte
		hash  string
	}
	var images []fetched
	for _, m := range parsed.Media[:maxImages] {
		data, contentType, err := p.fetcher.FetchAsset(ctx, m.URL)
		if err != nil {
			p.log.Warn("ingestion: image fetch failed, skipping", slog.String("url", m.URL), slog.Any("error", err))
			continue
		}
		if len(data) < p.cfg.Multimodal.MinImageBytes {
			continue
		}
		if !allowedImageType(contentType, p.cfg.Multimodal.AllowedImageTypes) {
			continue
		}
		hash := hashutil.HashBytes(data)
		if existingHashes[hash] {
			continue
		}
		images = append(images, fetched{media: m, data: data, hash: hash})
	}
	if len(images) == 0 {
		return nil
	}

	raw := make([][]byte, len(images))
	for i, img := range images {
		raw[i] = img.data
	}
	embeddings, err := embedImg.EmbedImage(ctx, raw)
	if err != nil {
		return wrapf(librarianerr.KindEmbedding, "ingestion: embed images for %s: %w", doc.URI, err)
	}
	if len(embeddings) != len(images) {
		return wrapf(librarianerr.KindEmbedding, "ingestion: image embedder returned %d vectors for %d images", len(embeddings), len(images))
	}

	points := make([]vectorstore.Point, 0, len(images))
	for i, img := range images {
		if _, err := p.assets.Put(ctx, img.data); err != nil {
			return err
		}
		pointID := ids.PointID(img.hash)
		// Image chunks live in a negative chunk_index range so
		// trimTrailingChunks' "index >= new text chunk count" deletion
		// never reaches them; they are reconciled independently, by
		// content hash, each run.
		if _, err := p.store.UpsertChunk(ctx, metastore.Chunk{
			DocID:      docRow.ID,
			ChunkIndex: -(i + 1),
			ChunkHash:  img.hash,
			ChunkText:  img.media.Alt,
			PointID:    pointID,
			Modality:   "image",
			MediaURL:   img.media.URL,
			MediaHash:  img.hash,
		}); err != nil {
			return err
		}
		points = append(points, vectorstore.Point{
			ID:     pointID,
			Vector: embeddings[i],
			Payload: map[string]any{
				"source_id":   source.ID,
				"source_type": source.Type,
				"source_uri":  source.URI,
				"doc_id":      docRow.ID,
				"doc_uri":     doc.URI,
				"media_url":   img.media.URL,
				"media_hash":  img.hash,
				"modality":    "image",
			},
		})
		res.ChunksCreated++
	}

	return p.vectors.UpsertPoints(ctx, points, uint64(p.embed.Dimension()))
}

func allowedImageType(contentType string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.Contains(contentType, a) {
			return true
		}
	}
	return false
}

// trimTrailingChunks implements the "new chunk count < existing chunk
// count" branch of §4.8 step 5: delete chunk rows whose index now
// exceeds the document's new length, and mirror the deletion to the
// VectorStore.
func (p *Pipeline) trimTrailingChunks(ctx context.Context, docID string, newCount int, res *Result) error {
	deletedPointIDs, err := p.store.DeleteChunksFromIndex(ctx, docID, newCount)
	if err != nil {
		return err
	}
	if len(deletedPointIDs) == 0 {
		return nil
	}
	res.ChunksDeleted += len(deletedPointIDs)
	if err := p.vectors.DeletePoints(ctx, deletedPointIDs); err != nil {
		p.log.Warn("ingestion: failed to delete trailing vector points, orphans recoverable by prune",
			slog.String("doc_id", docID), slog.Any("error", err))
	}
	return nil
}

// pruneStale implements §4.8 step 6: documents whose uri was not seen
// in this run are deleted, along with their chunks' vector points.
// Vector deletion failures are logged, not fatal.
func (p *Pipeline) pruneStale(ctx context.Context, sourceID string, seenURIs []string, res *Result) error {
	staleDocIDs, pointIDs, err := p.store.DeleteStaleDocuments(ctx, sourceID, seenURIs)
	if err != nil {
		return err
	}
	if len(staleDocIDs) == 0 {
		return nil
	}
	res.ChunksDeleted += len(pointIDs)
	if len(pointIDs) > 0 {
		if err := p.vectors.DeletePoints(ctx, pointIDs); err != nil {
			p.log.Warn("ingestion: failed to delete stale document vector points, orphans recoverable by prune",
				slog.Int("doc_count", len(staleDocIDs)), slog.Any("error", err))
		}
	}
	return nil
}

func extOf(uri string) string {
	for i := len(uri) - 1; i >= 0; i-- {
		switch uri[i] {
		case '.':
			return uri[i+1:]
		case '/', '?', '#':
			return ""
		}
	}
	return ""
}
