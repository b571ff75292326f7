package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/meeting-scheduler/internal/config"
	"github.com/hackgods/meeting-scheduler/internal/db"
	"github.com/hackgods/meeting-scheduler/internal/metrics"
	"github.com/hackgods/meeting-scheduler/internal/poll"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := config.StartupLogger(os.Stderr, "poll-closer")
		boot.Fatal().Err(err).Msg("config load error")
	}
	logger := cfg.Logger("poll-closer")
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("poll-closer starting up")

	if cfg.Storage != config.StoragePostgres {
		logger.Fatal().Str("storage", cfg.Storage).Msg("poll-closer needs STORAGE=postgres")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.Open(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2, MinConns: 1}, logger)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()

	if cfg.MetricsEnabled {
		metrics.Register()
	}

	svc := poll.NewService(poll.NewPgRepository(pgPool), logger)

	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping poll-closer")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *poll.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := svc.CloseExpired(runCtx)
	if err != nil {
		logger.Error().Err(err).Int("expired", n).Msg("close run error")
		return
	}
	logger.Info().Int("expired", n).Dur("took", time.Since(start)).Msg("close run complete")
}
