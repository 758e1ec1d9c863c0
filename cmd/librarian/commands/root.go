// Package commands defines all Cobra CLI commands for the librarian binary.
package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/librarian/librarian/internal/config"
	"github.com/librarian/librarian/internal/logging"
)

// configPath holds the --config flag value for TOML config file override.
var configPath string

// loadedConfig and log are populated by the root command's
// PersistentPreRunE and read by every subcommand's RunE.
var (
	loadedConfig *config.Config
	log          *slog.Logger
)

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "librarian",
		Short: "librarian — index documentation and answer retrieval queries against it",
		Long: `librarian crawls directories, websites, and sitemaps, chunks and embeds
their documents, and stores the result in a local SQLite metadata
database paired with a Qdrant vector collection.

Configuration is read from a TOML file (default: ~/.librarian/config.toml),
overridable with --config or the LIBRARIAN_CONFIG environment variable.
See 'librarian --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log = logging.New()

			cfg, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfig = cfg

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to TOML config file (default: ~/.librarian/config.toml)")

	root.AddCommand(
		NewInitCmd(),
		NewIngestCmd(),
		NewQueryCmd(),
		NewStatusCmd(),
		NewSourcesCmd(),
		NewPruneCmd(),
		NewReindexCmd(),
		NewUpdateCmd(),
		NewRemoveCmd(),
		NewRenameCmd(),
		NewDBCmd(),
		NewVersionCmd(),
	)

	return root
}
