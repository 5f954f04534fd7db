package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X chatlibre/cmd.version=...".
var version = "dev"

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chatlibre",
		Short: "LibreTranslate-compatible proxy backed by LLM chat APIs",
		Long: `chatlibre serves the LibreTranslate /translate and /languages endpoints
and forwards each request to an ordered list of chat models, falling back to
the next model when a reply cannot be decoded.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML configuration file (defaults are used when empty)")

	root.AddCommand(
		newServeCmd(&configPath),
		newLanguagesCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatlibre version %s\n", version)
		},
	}
}
