package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/librarian/librarian/internal/assetstore"
	"github.com/librarian/librarian/internal/config"
	"github.com/librarian/librarian/internal/embedder"
	"github.com/librarian/librarian/internal/ingestion"
	"github.com/librarian/librarian/internal/librarianerr"
	"github.com/librarian/librarian/internal/metastore"
	"github.com/librarian/librarian/internal/reranker"
	"github.com/librarian/librarian/internal/vectorstore"
)

// openMetastore opens the metadata database at its default path.
func openMetastore() (*metastore.Store, error) {
	path, err := metastore.DefaultDBPath()
	if err != nil {
		return nil, err
	}
	return metastore.Open(path)
}

// openVectorStore connects to Qdrant per cfg and ensures the
// configured collection exists at the configured embedding dimension.
func openVectorStore(ctx context.Context, cfg *config.Config) (*vectorstore.Store, error) {
	vsCfg, err := cfg.VectorStoreConfig()
	if err != nil {
		return nil, err
	}
	store, err := vectorstore.Open(vsCfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureCollection(ctx, uint64(cfg.Embedding.Dimension)); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// buildEmbedder constructs the configured Embedder and warns if the
// configured model looks like a chat model rather than an embedding
// model.
func buildEmbedder(cfg *config.Config) (embedder.Embedder, error) {
	embedder.WarnIfChatModel(log, cfg.Embedding.Model)
	return embedder.NewFromConfig(cfg.Embedding.ToEmbedderConfig())
}

// buildReranker constructs the configured Reranker, or reranker.Nil
// when reranking is disabled. The cross-encoder endpoint is not part
// of the TOML schema — it is read from RERANKER_ENDPOINT, an env-var
// indirection like the one config.toml uses for the Qdrant API key
// (qdrant_api_key_env).
func buildReranker(cfg *config.Config) reranker.Reranker {
	if !cfg.Reranker.Enabled {
		return reranker.Nil{}
	}
	return reranker.New(reranker.Config{
		Endpoint:           os.Getenv("RERANKER_ENDPOINT"),
		Model:              cfg.Reranker.Model,
		SupportsMultimodal: cfg.Reranker.SupportsMultimodal,
	})
}

// openAssetStore opens the content-addressed image store rooted
// alongside the metadata database.
func openAssetStore() (*assetstore.Store, error) {
	path, err := metastore.DefaultDBPath()
	if err != nil {
		return nil, err
	}
	return assetstore.Open(filepath.Dir(path))
}

// multimodalConfig adapts the loaded [crawl.multimodal] section to the
// ingestion package's MultimodalConfig.
func multimodalConfig() ingestion.MultimodalConfig {
	m := loadedConfig.Crawl.Multimodal
	return ingestion.MultimodalConfig{
		Enabled:           m.Enabled,
		MaxImagesPerPage:  m.MaxImagesPerPage,
		MinImageBytes:     m.MinImageBytes,
		AllowedImageTypes: m.AllowedImageTypes,
	}
}

// resolveSourceArg resolves a source by id, name, or uri, in that
// order, returning a not-found error naming all three forms tried.
func resolveSourceArg(ctx context.Context, store *metastore.Store, ref string) (*metastore.Source, error) {
	if src, err := store.GetSourceByID(ctx, ref); err == nil {
		return src, nil
	}
	if src, err := store.GetSourceByName(ctx, ref); err == nil {
		return src, nil
	}
	if src, err := store.GetSourceByURI(ctx, ref); err == nil {
		return src, nil
	}
	return nil, librarianerr.Newf(librarianerr.KindSourceNotFound, "no source matches id, name, or uri %q", ref)
}
