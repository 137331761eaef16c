package cli

import (
	"context"
	"fmt"
	"time"

	"localservices/internal/database"
	"localservices/internal/logging"

	"github.com/spf13/cobra"
)

func NewBackupCmd(configPath *string) *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Take a database backup now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, closer, err := loadConfigAndLogger(*configPath)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer.Close()
			}

			backups := database.NewBackupService(cfg.Database.Path, cfg.Backup, logging.Component(logger, "backup"))

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			if err := backups.PerformBackup(ctx); err != nil {
				return err
			}

			if cleanup {
				removed := backups.CleanupOldBackups()
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d old backups\n", removed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cleanup, "cleanup", true, "remove backups older than the retention period")
	return cmd
}
