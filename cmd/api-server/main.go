package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/meeting-scheduler/internal/api"
	"github.com/hackgods/meeting-scheduler/internal/booking"
	"github.com/hackgods/meeting-scheduler/internal/config"
	"github.com/hackgods/meeting-scheduler/internal/db"
	"github.com/hackgods/meeting-scheduler/internal/integration"
	"github.com/hackgods/meeting-scheduler/internal/metrics"
	"github.com/hackgods/meeting-scheduler/internal/poll"
	redisclient "github.com/hackgods/meeting-scheduler/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := config.StartupLogger(os.Stderr, "api-server")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := cfg.Logger("api-server")
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("storage", cfg.Storage).Msg("api-server starting up")

	if cfg.JWTSecret == "" {
		logger.Warn().Msg("JWT_HMAC_SECRET not set, host endpoints will reject every request")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		bookingRepo     booking.Repository
		pollRepo        poll.Repository
		integrationRepo integration.Repository
		checks          []api.Check
	)

	switch cfg.Storage {
	case config.StoragePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.Open(pgCtx, cfg.PostgresDSN, db.DefaultPoolOptions, logger)
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()

		bookingRepo = booking.NewPgRepository(pgPool)
		pollRepo = poll.NewPgRepository(pgPool)
		integrationRepo = integration.NewPgRepository(pgPool)
		checks = append(checks, api.Check{Name: "postgres", Required: true, Ping: pgPool.Ping})
	default:
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
		bookingRepo = booking.NewMemoryRepository()
		pollRepo = poll.NewMemoryRepository()
		integrationRepo = integration.NewMemoryRepository()
	}

	var locker redisclient.Locker
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		checks = append(checks, api.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	} else {
		logger.Warn().Msg("REDIS_ADDR not set, slot locks are process local")
		locker = redisclient.NewLocalLocker(cfg.LockTTL)
	}

	googleCfg := integration.GoogleOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	var meet *integration.GoogleMeet
	if googleCfg != nil {
		meet = integration.NewGoogleMeet(googleCfg)
	}
	integrations := integration.NewService(integrationRepo, googleCfg, logger)
	linker := integration.NewLinker(integrationRepo, meet)

	bookingSvc := booking.NewService(bookingRepo, locker, linker, integrations, cfg, logger)
	pollSvc := poll.NewService(pollRepo, logger)

	if cfg.MetricsEnabled {
		metrics.Register()
	}

	handler := api.NewRouter(api.RouterConfig{
		Booking:         bookingSvc,
		Polls:           pollSvc,
		Integrations:    integrations,
		Tokens:          api.NewTokens(cfg.JWTSecret),
		Health:          api.NewHealthHandler(cfg.Env, version, checks...),
		Logger:          logger,
		PublicRateLimit: cfg.PublicRateLimit,
		PublicRateBurst: cfg.PublicRateBurst,
		TrustedProxies:  cfg.TrustedProxies,
		MetricsEnabled:  cfg.MetricsEnabled,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("api-server stopped")
}
