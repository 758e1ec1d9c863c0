package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCmd constructs the `librarian status` subcommand: a
// summary of the metadata database's content, globally or for one
// source.
func NewStatusCmd() *cobra.Command {
	var sourceRef string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show source, document, and chunk counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openMetastore()
			if err != nil {
				return err
			}
			defer store.Close()

			if sourceRef == "" {
				stats, err := store.GetGlobalStats(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("sources: %d, documents: %d, chunks: %d\n", stats.SourceCount, stats.DocumentCount, stats.ChunkCount)
				return nil
			}

			source, err := resolveSourceArg(ctx, store, sourceRef)
			if err != nil {
				return err
			}
			stats, err := store.GetSourceStats(ctx, source.ID)
			if err != nil {
				return err
			}
			fmt.Printf("source %s (%s): documents: %d, chunks: %d\n", source.ID, source.URI, stats.DocumentCount, stats.ChunkCount)

			runs, err := store.ListSourceRuns(ctx, source.ID)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Printf("  run %s [%s] operation=%s docs=%d created=%d updated=%d deleted=%d\n",
					r.ID, r.Status, r.Operation, r.DocsProcessed, r.ChunksCreated, r.ChunksUpdated, r.ChunksDeleted)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceRef, "source", "", "limit to one source, by id, name, or uri")
	return cmd
}
