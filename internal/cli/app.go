package cli

import (
	"context"
	"fmt"
	"io"

	"localservices/internal/config"
	"localservices/internal/database"
	"localservices/internal/logging"

	"github.com/rs/zerolog"
)

// runtime holds what every subcommand needs: config, logger and the store.
type runtime struct {
	cfg    *config.Config
	logger *zerolog.Logger
	db     *database.DB
	closer io.Closer
}

func loadConfigAndLogger(configPath string) (*config.Config, *zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, closer, nil
}

func openRuntime(configPath string) (*runtime, error) {
	cfg, logger, closer, err := loadConfigAndLogger(configPath)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDB(cfg.Database.Path, logging.Component(logger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}

	return &runtime{cfg: cfg, logger: logger, db: db, closer: closer}, nil
}

// syncDirectory loads the configured providers and listings into the store.
func (rt *runtime) syncDirectory(ctx context.Context) error {
	if err := rt.db.SyncProviders(ctx, rt.cfg.Directory.Providers); err != nil {
		return fmt.Errorf("sync providers: %w", err)
	}
	if err := rt.db.SyncListings(ctx, rt.cfg.Directory.Listings); err != nil {
		return fmt.Errorf("sync listings: %w", err)
	}
	rt.logger.Info().
		Int("providers", len(rt.cfg.Directory.Providers)).
		Int("listings", len(rt.cfg.Directory.Listings)).
		Msg("directory synced")
	return nil
}

func (rt *runtime) Close() {
	if rt.db != nil {
		_ = rt.db.Close()
	}
	if rt.closer != nil {
		_ = rt.closer.Close()
	}
}
