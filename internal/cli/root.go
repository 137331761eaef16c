package cli

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

// NewRoot builds the bookingd command tree.
func NewRoot() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "bookingd",
		Short:         "Booking coordination engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("CONFIG_PATH", defaultConfigPath), "path to config file")

	cmd.AddCommand(NewServeCmd(&configPath))
	cmd.AddCommand(NewSeedCmd(&configPath))
	cmd.AddCommand(NewBackupCmd(&configPath))
	cmd.AddCommand(NewVersionCmd(&configPath))
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
