package cli

import (
	"fmt"

	"localservices/internal/config"

	"github.com/spf13/cobra"
)

func NewVersionCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the configured application version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", cfg.App.Name, cfg.App.Version, cfg.App.Environment)
			return nil
		},
	}
}
