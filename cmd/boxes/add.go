package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/git-pkgs/boxes"
	"github.com/git-pkgs/boxes/client"
	"github.com/git-pkgs/boxes/fetch"
	"github.com/git-pkgs/boxes/internal/config"
	"github.com/git-pkgs/boxes/prompt"
	"github.com/git-pkgs/boxes/store"
)

func newAddCmd(configPath *string) *cobra.Command {
	var (
		name              string
		versionConstraint string
		providers         []string
		force             bool
		asMetadata        bool
	)

	cmd := &cobra.Command{
		Use:   "add [flags] <source>...",
		Short: "Resolve and install a box",
		Long: `Resolve a box from one or more sources and install it.

A source may be a direct artifact URL or path, a metadata document URL
or path, an owner/name shorthand expanded against the configured box
server, or a single pkg:box/... reference.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			st, err := store.NewStore(cfg.StoreRoot)
			if err != nil {
				return err
			}

			spec := boxes.BoxSpec{
				Name:              name,
				Sources:           args,
				VersionConstraint: versionConstraint,
				Providers:         providers,
				Force:             force,
				AsMetadata:        asMetadata,
			}
			if len(args) == 1 && strings.HasPrefix(args[0], "pkg:") {
				refSpec, serverURL, err := boxes.ParseBoxRef(args[0])
				if err != nil {
					return err
				}
				refSpec.Force = force
				if versionConstraint != "" {
					refSpec.VersionConstraint = versionConstraint
				}
				if len(providers) > 0 {
					refSpec.Providers = providers
				}
				if serverURL != "" {
					cfg.ServerURL = serverURL
				}
				spec = refSpec
			}

			fetcher := fetch.NewCircuitBreakerFetcher(fetch.NewFetcher(
				fetch.WithTimeout(cfg.FetchTimeout()),
				fetch.WithMaxRetries(cfg.MaxRetries),
			))
			opts := []boxes.Option{
				boxes.WithLogger(newLogger()),
				boxes.WithServerURL(cfg.ServerURL),
				boxes.WithFetcher(fetcher),
				boxes.WithClient(client.NewClient(
					client.WithTimeout(cfg.FetchTimeout()),
					client.WithMaxRetries(cfg.MaxRetries),
				)),
			}
			if chooser, ok := prompt.Terminal(); ok {
				opts = append(opts, boxes.WithChooser(chooser))
			}

			box, err := boxes.Add(cmd.Context(), st, spec, opts...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s (%s, %s)\n", box.Name, box.Provider, box.Version)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "box name (required for direct artifact sources)")
	cmd.Flags().StringVar(&versionConstraint, "box-version", "", "version constraint, e.g. \"~> 1.0\"")
	cmd.Flags().StringArrayVar(&providers, "provider", nil, "acceptable provider (repeatable)")
	cmd.Flags().BoolVar(&force, "force", false, "replace an already-installed box")
	cmd.Flags().BoolVar(&asMetadata, "metadata", false, "treat sources as metadata documents")
	return cmd
}
