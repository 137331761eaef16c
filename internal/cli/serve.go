package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"localservices/internal/api"
	"localservices/internal/database"
	"localservices/internal/domain"
	"localservices/internal/events"
	"localservices/internal/logging"
	"localservices/internal/metrics"
	"localservices/internal/repository"
	"localservices/internal/service"
	"localservices/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func NewServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(*configPath)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, rt)
		},
	}
}

func serve(ctx context.Context, rt *runtime) error {
	cfg := rt.cfg
	logger := logging.Component(rt.logger, "api-main")

	if err := rt.syncDirectory(ctx); err != nil {
		return err
	}

	redisClient := initRedis(ctx, rt)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}
	availability := newAvailabilityStore(redisClient, rt.logger)

	retry := worker.DefaultRetryPolicy
	retry.MaxRetries = cfg.Booking.CancelRetries

	bus := events.NewEventBus()
	svc := service.NewBookingService(rt.db, rt.db, rt.db, availability, bus, service.Options{
		MaxDuration: cfg.Booking.MaxDuration,
		Currency:    cfg.Booking.Currency,
		CancelRetry: retry,
	}, logging.Component(rt.logger, "booking"))
	watcher := service.NewWatcher(svc, bus, cfg.Booking.WatchBuffer, logging.Component(rt.logger, "watcher"))

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}
	httpServer := api.NewHTTPServer(&cfg.API, rt.db, svc, watcher, rt.logger)

	startMetrics(ctx, rt)
	startBackups(ctx, rt)

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func initRedis(ctx context.Context, rt *runtime) *redis.Client {
	if rt.cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(rt.cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		rt.logger.Warn().Err(err).Msg("redis connection failed, continuing with in-memory availability")
		_ = client.Close()
		return nil
	}

	rt.logger.Info().Str("addr", rt.cfg.Redis.Address).Msg("redis connected")
	return client
}

func newAvailabilityStore(client *redis.Client, logger *zerolog.Logger) domain.AvailabilityStore {
	memory := repository.NewMemoryAvailabilityStore()
	if client == nil {
		return memory
	}
	return repository.NewFailoverAvailabilityStore(
		repository.NewRedisAvailabilityStore(client),
		memory,
		logging.Component(logger, "availability"),
	)
}

func startMetrics(ctx context.Context, rt *runtime) {
	if !rt.cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, rt.cfg.Monitoring.PrometheusPort, rt.logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func startBackups(ctx context.Context, rt *runtime) {
	if !rt.cfg.Backup.Enabled {
		return
	}
	backups := database.NewBackupService(rt.cfg.Database.Path, rt.cfg.Backup, logging.Component(rt.logger, "backup"))
	go func() {
		if err := backups.Start(ctx); err != nil {
			rt.logger.Error().Err(err).Msg("backup scheduler stopped")
		}
	}()
}
