// Command boxes manages versioned, provider-specific box images: it
// resolves box sources, downloads artifacts, and installs them into the
// local box store.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/git-pkgs/boxes/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "boxes",
		Short:         "Manage versioned, provider-specific box images",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")

	root.AddCommand(
		newAddCmd(&configPath),
		newListCmd(&configPath),
		newRemoveCmd(&configPath),
	)
	return root
}

// newLogger builds the command logger: human-readable text when stderr
// is a terminal, JSON when piped or redirected.
func newLogger() *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
