package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/boxes/internal/config"
	"github.com/git-pkgs/boxes/store"
)

func newRemoveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name> <provider> <version>",
		Short: "Remove an installed box",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			st, err := store.NewStore(cfg.StoreRoot)
			if err != nil {
				return err
			}
			name, provider, version := args[0], args[1], args[2]
			if err := st.Remove(name, provider, version); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s, %s)\n", name, provider, version)
			return nil
		},
	}
}
