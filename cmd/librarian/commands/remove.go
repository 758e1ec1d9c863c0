package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRemoveCmd constructs the `librarian remove` subcommand: deletes
// a source and every document/chunk it owns, mirroring the deletion
// to the vector store before dropping the metadata rows.
func NewRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <source>",
		Short: "Delete a source and all of its documents, chunks, and vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openMetastore()
			if err != nil {
				return err
			}
			defer store.Close()

			source, err := resolveSourceArg(ctx, store, args[0])
			if err != nil {
				return err
			}

			docs, err := store.ListSourceDocuments(ctx, source.ID)
			if err != nil {
				return err
			}
			var pointIDs []string
			for _, d := range docs {
				chunks, err := store.GetChunks(ctx, d.ID)
				if err != nil {
					return err
				}
				for _, c := range chunks {
					pointIDs = append(pointIDs, c.PointID)
				}
			}

			if len(pointIDs) > 0 {
				vectors, err := openVectorStore(ctx, loadedConfig)
				if err != nil {
					return err
				}
				defer vectors.Close()
				if err := vectors.DeletePoints(ctx, pointIDs); err != nil {
					log.Warn("remove: failed to delete vector points, orphans recoverable by prune", "source_id", source.ID, "error", err)
				}
			}

			if err := store.DeleteSource(ctx, source.ID); err != nil {
				return err
			}
			fmt.Printf("removed source %s (%s), %d documents, %d chunks\n", source.ID, source.URI, len(docs), len(pointIDs))
			return nil
		},
	}
}
