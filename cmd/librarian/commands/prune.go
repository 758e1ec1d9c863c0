package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPruneCmd constructs the `librarian prune` subcommand: an offline
// reconciliation pass comparing the metadata store's chunk point ids
// against the vector store's point ids and reporting (or removing)
// the orphans left behind by a failed vector deletion.
func NewPruneCmd() *cobra.Command {
	var removeOrphans bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Find (and optionally remove) vector points with no matching chunk row",
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

			knownIDs, err := store.AllPointIDs(ctx)
			if err != nil {
				return err
			}
			known := make(map[string]bool, len(knownIDs))
			for _, id := range knownIDs {
				known[id] = true
			}

			vectorIDs, err := vectors.ListAllPointIDs(ctx)
			if err != nil {
				return err
			}

			var orphans []string
			for _, id := range vectorIDs {
				if !known[id] {
					orphans = append(orphans, id)
				}
			}

			fmt.Printf("chunk point ids: %d, vector store point ids: %d, orphans: %d\n",
				len(knownIDs), len(vectorIDs), len(orphans))

			if !removeOrphans || len(orphans) == 0 {
				return nil
			}
			if err := vectors.DeletePoints(ctx, orphans); err != nil {
				return err
			}
			fmt.Printf("removed %d orphaned vector points\n", len(orphans))
			return nil
		},
	}

	cmd.Flags().BoolVar(&removeOrphans, "remove-orphans", false, "delete vector points with no matching chunk row")
	return cmd
}
