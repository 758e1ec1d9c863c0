package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/librarian/librarian/internal/librarianerr"
	"github.com/librarian/librarian/internal/metastore"
)

// NewDBCmd constructs the `librarian db {init|status|reset}` command
// group, operating on the metadata database independently of
// config.toml (unlike `init`, which scaffolds both).
func NewDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the metadata database",
	}
	cmd.AddCommand(newDBInitCmd(), newDBStatusCmd(), newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the metadata database if it does not already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := metastore.DefaultDBPath()
			if err != nil {
				return err
			}
			store, err := metastore.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Printf("database ready at %s\n", path)
			return nil
		},
	}
}

func newDBStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print database path and content counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMetastore()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.GetGlobalStats(cmd.Context())
			if err != nil {
				return err
			}
			path, err := metastore.DefaultDBPath()
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", path)
			fmt.Printf("sources: %d, documents: %d, chunks: %d\n", stats.SourceCount, stats.DocumentCount, stats.ChunkCount)
			return nil
		},
	}
}

func newDBResetCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the metadata database and recreate an empty one",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return librarianerr.Newf(librarianerr.KindConfig, "db reset: pass --yes to confirm — this deletes all indexed metadata")
			}
			path, err := metastore.DefaultDBPath()
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return librarianerr.New(librarianerr.KindIO, err)
			}
			store, err := metastore.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Printf("database reset at %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive reset")
	return cmd
}
