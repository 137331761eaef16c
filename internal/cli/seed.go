package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load providers and listings from the config into the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := rt.syncDirectory(ctx); err != nil {
				return err
			}

			listings, err := rt.db.ListListings(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "providers: %d\nlistings: %d\n", len(rt.cfg.Directory.Providers), len(listings))
			return nil
		},
	}
}
