package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRenameCmd constructs the `librarian rename` subcommand.
func NewRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <source> <new-name>",
		Short: "Rename a registered source",
		Args:  cobra.ExactArgs(2),
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
			if err := store.UpdateSourceName(ctx, source.ID, args[1]); err != nil {
				return err
			}
			fmt.Printf("renamed %s to %q\n", source.ID, args[1])
			return nil
		},
	}
}
