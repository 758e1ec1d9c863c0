// Package config loads and validates librarian's TOML configuration.
// Precedence is layered the same way the teacher's YAML loader worked:
// built-in defaults, then the config file, then environment variables
// for secrets (the config file never carries an API key directly —
// only the name of the env var that holds one).
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. LIBRARIAN_CONFIG environment variable
//  3. $HOME/.librarian/config.toml
//
// If no file is found, Load returns the defaults unmodified.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/librarian/librarian/internal/chunker"
	"github.com/librarian/librarian/internal/embedder"
	"github.com/librarian/librarian/internal/librarianerr"
	"github.com/librarian/librarian/internal/vectorstore"
	"github.com/librarian/librarian/internal/version"
)

// Config is the top-level TOML configuration structure.
type Config struct {
	QdrantURL       string `toml:"qdrant_url"`
	QdrantAPIKeyEnv string `toml:"qdrant_api_key_env"`
	CollectionName  string `toml:"collection_name"`

	Embedding EmbeddingConfig `toml:"embedding"`
	Chunk     ChunkConfig     `toml:"chunk"`
	Crawl     CrawlConfig     `toml:"crawl"`
	Query     QueryConfig     `toml:"query"`
	Reranker  RerankerConfig  `toml:"reranker"`
}

// EmbeddingConfig is the [embedding] section.
type EmbeddingConfig struct {
	// Provider selects the HTTP backend (ollama, openai, azure). The
	// TOML schema documented in spec.md has no field for this, since
	// the reference system assumes a single fixed backend; this field
	// is this implementation's resolution of that open question.
	Provider           string `toml:"provider"`
	Model              string `toml:"model"`
	Dimension          int    `toml:"dimension"`
	BatchSize          int    `toml:"batch_size"`
	SupportsMultimodal bool   `toml:"supports_multimodal"`
}

// ToEmbedderConfig adapts this section to embedder.Config. Endpoint is
// left empty — it is resolved from provider-specific env vars inside
// embedder.NewFromConfig, never stored in the TOML file.
func (e EmbeddingConfig) ToEmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:           e.Provider,
		Model:              e.Model,
		Dimension:          e.Dimension,
		BatchSize:          e.BatchSize,
		SupportsMultimodal: e.SupportsMultimodal,
	}
}

// ChunkConfig is the [chunk] section.
type ChunkConfig struct {
	MaxChars                int  `toml:"max_chars"`
	MinChars                int  `toml:"min_chars"`
	OverlapChars            int  `toml:"overlap_chars"`
	PreferHeadingBoundaries bool `toml:"prefer_heading_boundaries"`
}

// ToChunkerConfig adapts this section to chunker.Config.
func (c ChunkConfig) ToChunkerConfig() chunker.Config {
	return chunker.Config{
		MaxChars:                c.MaxChars,
		MinChars:                c.MinChars,
		OverlapChars:            c.OverlapChars,
		PreferHeadingBoundaries: c.PreferHeadingBoundaries,
	}
}

// CrawlMultimodalConfig is the [crawl.multimodal] subsection, gated on
// the embedder supporting image input.
type CrawlMultimodalConfig struct {
	Enabled           bool     `toml:"enabled"`
	MaxImagesPerPage  int      `toml:"max_images_per_page"`
	MinImageBytes     int      `toml:"min_image_bytes"`
	AllowedImageTypes []string `toml:"allowed_image_types"`
}

// CrawlConfig is the [crawl] section.
type CrawlConfig struct {
	MaxDepth            int                   `toml:"max_depth"`
	MaxPages            int                   `toml:"max_pages"`
	AllowedDomains      []string              `toml:"allowed_domains"`
	PathPrefix          string                `toml:"path_prefix"`
	RateLimitPerHost    float64               `toml:"rate_limit_per_host"`
	UserAgent           string                `toml:"user_agent"`
	TimeoutSecs         int                   `toml:"timeout_secs"`
	RespectRobotsTxt    bool                  `toml:"respect_robots_txt"`
	AutoJSRendering     bool                  `toml:"auto_js_rendering"`
	JSPageLoadTimeoutMS int                   `toml:"js_page_load_timeout_ms"`
	JSRenderWaitMS      int                   `toml:"js_render_wait_ms"`
	JSNoSandbox         bool                  `toml:"js_no_sandbox"`
	Multimodal          CrawlMultimodalConfig `toml:"multimodal"`
}

// QueryConfig is the [query] section.
type QueryConfig struct {
	DefaultK     int     `toml:"default_k"`
	MaxResults   int     `toml:"max_results"`
	MinScore     float64 `toml:"min_score"`
	HybridSearch bool    `toml:"hybrid_search"`
	BM25Weight   float64 `toml:"bm25_weight"`
}

// RerankerConfig is the [reranker] section.
type RerankerConfig struct {
	Enabled            bool   `toml:"enabled"`
	Model              string `toml:"model"`
	TopK               int    `toml:"top_k"`
	SupportsMultimodal bool   `toml:"supports_multimodal"`
}

// knownModelDimensions corrects Embedding.Dimension against a table of
// known embedding models, per spec.md §6's "corrected against a table
// of known models" wording: a config that names a known model but
// carries a mismatched or default dimension is fixed up, with a logged
// warning, rather than left to fail at collection-creation time.
var knownModelDimensions = map[string]int{
	"bge-small-en-v1.5":      384,
	"bge-base-en-v1.5":       768,
	"bge-large-en-v1.5":      1024,
	"nomic-embed-text":       768,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// correctDimension looks up model (case-insensitively, ignoring any
// "org/" prefix) in knownModelDimensions and overrides dim if it
// disagrees, logging the correction.
func correctDimension(log *slog.Logger, model string, dim int) int {
	name := strings.ToLower(model)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	known, ok := knownModelDimensions[name]
	if !ok || known == dim {
		return dim
	}
	log.Warn("config: correcting embedding dimension against known model table",
		slog.String("model", model), slog.Int("configured", dim), slog.Int("corrected", known))
	return known
}

// Default returns the configuration with every documented default
// applied, before a file or env vars are layered on top.
func Default() Config {
	return Config{
		QdrantURL:      "http://127.0.0.1:6334",
		CollectionName: "librarian_docs",
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "BAAI/bge-small-en-v1.5",
			Dimension: 384,
			BatchSize: 32,
		},
		Chunk: ChunkConfig{
			MaxChars:                1500,
			MinChars:                100,
			OverlapChars:            200,
			PreferHeadingBoundaries: true,
		},
		Crawl: CrawlConfig{
			MaxDepth:            3,
			MaxPages:            1000,
			RateLimitPerHost:    2.0,
			UserAgent:           fmt.Sprintf("librarian/%s", version.Version),
			TimeoutSecs:         30,
			RespectRobotsTxt:    true,
			AutoJSRendering:     true,
			JSPageLoadTimeoutMS: 30000,
			JSRenderWaitMS:      2000,
			Multimodal: CrawlMultimodalConfig{
				MaxImagesPerPage:  20,
				MinImageBytes:     1024,
				AllowedImageTypes: []string{"image/png", "image/jpeg", "image/webp", "image/gif"},
			},
		},
		Query: QueryConfig{
			DefaultK:   10,
			MaxResults: 100,
			BM25Weight: 0.3,
		},
		Reranker: RerankerConfig{
			TopK: 10,
		},
	}
}

// Load resolves path (or the default search order if empty), parses
// it over the documented defaults, validates the result, and returns
// the final Config. A missing file is not an error — Load returns the
// defaults.
func Load(explicitPath string, log *slog.Logger) (*Config, error) {
	cfg := Default()

	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no config.toml found, using defaults")
		return &cfg, Validate(&cfg, log)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, librarianerr.New(librarianerr.KindIO, fmt.Errorf("config: read %s: %w", path, err))
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, librarianerr.New(librarianerr.KindTomlParse, fmt.Errorf("config: parse %s: %w", path, err))
	}

	log.Info("config: loaded", slog.String("path", path))
	if err := Validate(&cfg, log); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces every constraint spec.md §6 documents, rejecting
// the whole config on the first violation found, and applies the
// known-model dimension correction.
func Validate(cfg *Config, log *slog.Logger) error {
	cfg.Embedding.Dimension = correctDimension(log, cfg.Embedding.Model, cfg.Embedding.Dimension)

	if err := cfg.Chunk.ToChunkerConfig().Validate(); err != nil {
		return librarianerr.New(librarianerr.KindConfig, fmt.Errorf("config: [chunk]: %w", err))
	}
	if cfg.Crawl.MaxDepth < 0 {
		return librarianerr.Newf(librarianerr.KindConfig, "config: [crawl].max_depth must be >= 0")
	}
	if cfg.Crawl.MaxPages <= 0 {
		return librarianerr.Newf(librarianerr.KindConfig, "config: [crawl].max_pages must be > 0")
	}
	if cfg.Crawl.RateLimitPerHost <= 0 {
		return librarianerr.Newf(librarianerr.KindConfig, "config: [crawl].rate_limit_per_host must be > 0")
	}
	if cfg.Crawl.TimeoutSecs <= 0 {
		return librarianerr.Newf(librarianerr.KindConfig, "config: [crawl].timeout_secs must be > 0")
	}
	if cfg.Query.MinScore < 0 || cfg.Query.MinScore > 1 {
		return librarianerr.Newf(librarianerr.KindConfig, "config: [query].min_score must be in [0,1]")
	}
	if cfg.Query.BM25Weight < 0 || cfg.Query.BM25Weight > 1 {
		return librarianerr.Newf(librarianerr.KindConfig, "config: [query].bm25_weight must be in [0,1]")
	}
	if cfg.Reranker.TopK < 0 {
		return librarianerr.Newf(librarianerr.KindConfig, "config: [reranker].top_k must be >= 0")
	}
	return nil
}

// VectorStoreConfig parses QdrantURL into the host/port/TLS triple
// vectorstore.Open expects and attaches the resolved API key and
// collection name.
func (c Config) VectorStoreConfig() (vectorstore.Config, error) {
	u, err := url.Parse(c.QdrantURL)
	if err != nil || u.Host == "" {
		return vectorstore.Config{}, librarianerr.Newf(librarianerr.KindConfig, "config: invalid qdrant_url %q", c.QdrantURL)
	}

	host := u.Hostname()
	port := 6334
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return vectorstore.Config{}, librarianerr.Newf(librarianerr.KindConfig, "config: invalid qdrant_url port %q", p)
		}
		port = n
	}

	return vectorstore.Config{
		Host:       host,
		Port:       port,
		APIKey:     c.ResolveQdrantAPIKey(),
		UseTLS:     u.Scheme == "https",
		Collection: c.CollectionName,
	}, nil
}

// ResolveQdrantAPIKey reads the Qdrant API key from the environment
// variable named by QdrantAPIKeyEnv. Returns "" if unset or unnamed —
// an unauthenticated local Qdrant instance is a normal configuration.
func (c Config) ResolveQdrantAPIKey() string {
	if c.QdrantAPIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.QdrantAPIKeyEnv)
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("LIBRARIAN_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".librarian", "config.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
