package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/librarian/librarian/internal/crawler"
	"github.com/librarian/librarian/internal/ingestion"
	"github.com/librarian/librarian/internal/metastore"
)

// NewIngestCmd constructs the `librarian ingest {dir|url|sitemap}`
// command group, each of which drives the shared ingestion pipeline
// with a different document producer.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index documents from a directory, URL, or sitemap",
	}
	cmd.AddCommand(newIngestDirCmd(), newIngestURLCmd(), newIngestSitemapCmd())
	return cmd
}

func newIngestDirCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "dir <path>",
		Short: "Index every file under a local directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, ingestion.SourceDir, args[0], name, func(store *metastore.Store) (ingestion.Producer, func(), error) {
				return ingestion.DirProducer{Root: args[0]}, func() {}, nil
			}, nil)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "human-readable name for the source")
	return cmd
}

func newIngestURLCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "url <seed-url>",
		Short: "Crawl and index a website rooted at a seed URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, ingestion.SourceURL, args[0], name, func(store *metastore.Store) (ingestion.Producer, func(), error) {
				producer, closer := ingestion.NewURLProducer(args[0], crawlConfig(), log)
				return producer, closer, nil
			}, func(p ingestion.Producer) ingestion.ImageFetcher {
				return p.(*ingestion.URLProducer).Crawler
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "human-readable name for the source")
	return cmd
}

func newIngestSitemapCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "sitemap <sitemap-url>",
		Short: "Fetch a sitemap and index every entry it names",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, ingestion.SourceSitemap, args[0], name, func(store *metastore.Store) (ingestion.Producer, func(), error) {
				cfg := crawlConfig()
				c := crawler.New(cfg, log)
				producer := ingestion.SitemapProducer{
					SeedURL:   args[0],
					MaxPages:  loadedConfig.Crawl.MaxPages,
					Crawler:   c,
					UserAgent: cfg.UserAgent,
				}
				return producer, c.Close, nil
			}, func(p ingestion.Producer) ingestion.ImageFetcher {
				return p.(ingestion.SitemapProducer).Crawler
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "human-readable name for the source")
	return cmd
}

// crawlConfig adapts the loaded [crawl] section to crawler.Config.
func crawlConfig() crawler.Config {
	c := loadedConfig.Crawl
	return crawler.Config{
		MaxDepth:          c.MaxDepth,
		MaxPages:          c.MaxPages,
		AllowedDomains:    c.AllowedDomains,
		PathPrefix:        c.PathPrefix,
		RateLimitPerHost:  c.RateLimitPerHost,
		UserAgent:         c.UserAgent,
		TimeoutSecs:       c.TimeoutSecs,
		RespectRobotsTxt:  c.RespectRobotsTxt,
		AutoJSRendering:   c.AutoJSRendering,
		JSPageLoadTimeout: time.Duration(c.JSPageLoadTimeoutMS) * time.Millisecond,
		JSRenderWait:      time.Duration(c.JSRenderWaitMS) * time.Millisecond,
		JSNoSandbox:       c.JSNoSandbox,
	}
}

// runIngest resolves or creates the Source, builds the pipeline, runs
// it against the producer newProducer yields, and prints the result
// summary. Overlaps are reported but never block the run. fetcherOf is
// nil for producers with no network access (dir); when non-nil and
// multimodal extraction is enabled, its result is wired into the
// pipeline so discovered images get downloaded, stored, and embedded
// alongside the document's text chunks.
func runIngest(cmd *cobra.Command, kind ingestion.SourceKind, uri, name string, newProducer func(*metastore.Store) (ingestion.Producer, func(), error), fetcherOf func(ingestion.Producer) ingestion.ImageFetcher) error {
	ctx := cmd.Context()

	store, err := openMetastore()
	if err != nil {
		return err
	}
	defer store.Close()

	source, err := ingestion.ResolveSource(ctx, store, kind, uri, name)
	if err != nil {
		return err
	}

	vectors, err := openVectorStore(ctx, loadedConfig)
	if err != nil {
		return err
	}
	defer vectors.Close()

	emb, err := buildEmbedder(loadedConfig)
	if err != nil {
		return err
	}

	producer, closeProducer, err := newProducer(store)
	if err != nil {
		return err
	}
	defer closeProducer()

	pipeline, err := ingestion.NewPipeline(store, vectors, emb, ingestion.Config{
		Chunk:      loadedConfig.Chunk.ToChunkerConfig(),
		BatchSize:  loadedConfig.Embedding.BatchSize,
		Multimodal: multimodalConfig(),
	}, log)
	if err != nil {
		return err
	}

	if loadedConfig.Crawl.Multimodal.Enabled && fetcherOf != nil {
		assets, err := openAssetStore()
		if err != nil {
			return err
		}
		pipeline.WithMultimodal(assets, fetcherOf(producer))
	}

	result, err := pipeline.Run(ctx, source, producer)
	if err != nil {
		return err
	}

	fmt.Printf("source %s (%s)\n", source.ID, source.URI)
	for _, o := range result.Overlaps {
		fmt.Printf("  overlap: %s is %s of source %s\n", source.URI, o.Relation, o.SourceID)
	}
	fmt.Printf("run %s: %s\n", result.RunID, result.Status)
	fmt.Printf("  docs processed: %d, skipped: %d\n", result.DocsProcessed, result.DocsSkipped)
	fmt.Printf("  chunks created: %d, updated: %d, deleted: %d\n", result.ChunksCreated, result.ChunksUpdated, result.ChunksDeleted)
	for _, e := range result.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	return nil
}
