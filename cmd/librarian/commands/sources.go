package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSourcesCmd constructs the `librarian sources` subcommand: a list
// of every registered Source.
func NewSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List every registered source",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openMetastore()
			if err != nil {
				return err
			}
			defer store.Close()

			sources, err := store.ListSources(ctx)
			if err != nil {
				return err
			}
			for _, s := range sources {
				name := s.Name
				if name == "" {
					name = "-"
				}
				fmt.Printf("%s  %-8s %-20s %s\n", s.ID, s.Type, name, s.URI)
			}
			return nil
		},
	}
}
