package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/librarian/librarian/internal/config"
	"github.com/librarian/librarian/internal/librarianerr"
	"github.com/librarian/librarian/internal/metastore"
)

// NewInitCmd constructs the `librarian init` subcommand: it scaffolds
// a fresh base directory with a default config.toml and an empty
// metadata database, the one-time setup step before any ingest runs.
func NewInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default config.toml and metadata database",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return librarianerr.New(librarianerr.KindIO, fmt.Errorf("init: %w", err))
			}
			baseDir := filepath.Join(home, ".librarian")
			if err := os.MkdirAll(baseDir, 0o700); err != nil {
				return librarianerr.New(librarianerr.KindIO, fmt.Errorf("init: create %s: %w", baseDir, err))
			}

			cfgPath := filepath.Join(baseDir, "config.toml")
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return librarianerr.Newf(librarianerr.KindAlreadyInitialized, "init: %s already exists (use --force to overwrite)", cfgPath)
			}

			data, err := toml.Marshal(config.Default())
			if err != nil {
				return librarianerr.New(librarianerr.KindTomlSerialize, fmt.Errorf("init: encode default config: %w", err))
			}
			if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
				return librarianerr.New(librarianerr.KindIO, fmt.Errorf("init: write %s: %w", cfgPath, err))
			}

			dbPath, err := metastore.DefaultDBPath()
			if err != nil {
				return err
			}
			store, err := metastore.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Printf("initialized %s\n", baseDir)
			fmt.Printf("  config: %s\n", cfgPath)
			fmt.Printf("  database: %s\n", dbPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config.toml")
	return cmd
}
