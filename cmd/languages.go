package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"chatlibre/internal/config"
)

func newLanguagesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "Print the supported language codes and names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if *configPath != "" {
				loaded, err := config.Load(*configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			directory, err := loadDirectory(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, lang := range directory.List() {
				fmt.Fprintf(w, "%s\t%s\n", lang.Code, lang.Name)
			}
			return w.Flush()
		},
	}
}
