package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/boxes/internal/config"
	"github.com/git-pkgs/boxes/store"
)

func newListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed boxes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			st, err := store.NewStore(cfg.StoreRoot)
			if err != nil {
				return err
			}
			installed, err := st.List()
			if err != nil {
				return err
			}
			if len(installed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No boxes installed.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPROVIDER\tVERSION")
			for _, box := range installed {
				fmt.Fprintf(w, "%s\t%s\t%s\n", box.Name, box.Provider, box.Version)
			}
			return w.Flush()
		},
	}
}
