package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/librarian/librarian/internal/metastore"
	"github.com/librarian/librarian/internal/query"
)

// NewQueryCmd constructs the `librarian query` subcommand.
func NewQueryCmd() *cobra.Command {
	var k int
	var minScore float64
	var sourceIDs []string
	var sourceTypes []string
	var pathPrefix string
	var dedupe bool

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search indexed documents for the closest matching chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openMetastore()
			if err != nil {
				return err
			}
			defer store.Close()

			vectors, err := openVectorStore(ctx, loadedConfig)
			if err != nil {
				return err
			}
			defer vectors.Close()

			emb, err := buildEmbedder(loadedConfig)
			if err != nil {
				return err
			}
			rerank := buildReranker(loadedConfig)

			engine := query.NewEngine(vectors, store, emb, rerank, query.Config{
				DefaultK:                   loadedConfig.Query.DefaultK,
				MaxResults:                 loadedConfig.Query.MaxResults,
				MinScore:                   float32(loadedConfig.Query.MinScore),
				HybridSearch:               loadedConfig.Query.HybridSearch,
				BM25Weight:                 float32(loadedConfig.Query.BM25Weight),
				RerankEnabled:              loadedConfig.Reranker.Enabled,
				RerankTopK:                 loadedConfig.Reranker.TopK,
				RerankerSupportsMultimodal: loadedConfig.Reranker.SupportsMultimodal,
			})

			req := query.Request{
				Query:       args[0],
				K:           k,
				MinScore:    float32(minScore),
				SourceIDs:   sourceIDs,
				SourceTypes: sourceTypes,
				PathPrefix:  pathPrefix,
				DedupeDocs:  dedupe,
			}
			if loadedConfig.Query.HybridSearch {
				corpus, err := bm25Corpus(ctx, store)
				if err != nil {
					return err
				}
				req.BM25Corpus = corpus
			}

			results, err := engine.Run(ctx, req)
			if err != nil {
				return err
			}

			for i, r := range results {
				fmt.Printf("%d. [%.4f] %s (%s)\n", i+1, r.Score, r.Title, r.DocURI)
				if r.ChunkText != "" {
					fmt.Printf("   %s\n", truncate(r.ChunkText, 200))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&k, "k", 0, "number of results to return (default: config query.default_k)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop results below this similarity score")
	cmd.Flags().StringArrayVar(&sourceIDs, "source-id", nil, "restrict results to these source ids (repeatable)")
	cmd.Flags().StringArrayVar(&sourceTypes, "source-type", nil, "restrict results to these source types (repeatable)")
	cmd.Flags().StringVar(&pathPrefix, "path-prefix", "", "restrict results to source uris with this prefix")
	cmd.Flags().BoolVar(&dedupe, "dedupe", false, "keep only the highest-scoring chunk per document")

	return cmd
}

// bm25Corpus loads every chunk's text, keyed by point id, for the
// hybrid fusion pass. This is a full scan and is only paid when
// hybrid_search is enabled.
func bm25Corpus(ctx context.Context, store *metastore.Store) (map[string]string, error) {
	pointIDs, err := store.AllPointIDs(ctx)
	if err != nil {
		return nil, err
	}
	corpus := make(map[string]string, len(pointIDs))
	for _, id := range pointIDs {
		chunk, err := store.GetChunkByPointID(ctx, id)
		if err != nil {
			continue
		}
		corpus[id] = chunk.ChunkText
	}
	return corpus, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
