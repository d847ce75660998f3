package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alexcyl0107/clinique/internal/alert"
	"github.com/Alexcyl0107/clinique/internal/api"
	"github.com/Alexcyl0107/clinique/internal/appointment"
	"github.com/Alexcyl0107/clinique/internal/config"
	"github.com/Alexcyl0107/clinique/internal/logging"
	redisclient "github.com/Alexcyl0107/clinique/internal/redis"
	"github.com/Alexcyl0107/clinique/internal/store"
)

func main() {
	bootLogger := logging.New(os.Getenv("APP_ENV"), "api-server")
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, "api-server")
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("store", cfg.StoreDriver).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := store.Open(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("store open error")
	}
	defer closeStore()

	var rdb *redis.Client
	var locker redisclient.Locker
	if cfg.RedisEnabled() {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisAppointmentLocker(rdb, cfg.LockTTL, cfg.LockWait)
		logger.Info().Msg("connected to Redis")
	} else {
		locker = redisclient.NewLocalAppointmentLocker(cfg.LockWait)
		logger.Warn().Msg("no redis configured, appointment locks are local to this process")
	}

	svc := appointment.NewService(repo, locker, appointment.DefaultCatalog(), logger.With().Str("component", "lifecycle").Logger())
	srv := newServer(cfg, svc, repo, rdb, logger)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		logger.Error().Err(err).Msg("http server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("api-server stopped")
}

// newServer wires the HTTP API around an already opened store and lock backend.
func newServer(cfg config.Config, svc *appointment.Service, repo appointment.Repository, rdb *redis.Client, logger zerolog.Logger) *http.Server {
	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		Coordinator:    alert.NewCoordinator(svc),
		Store:          repo,
		StoreDriver:    cfg.StoreDriver,
		Redis:          rdb,
		Logger:         logger,
		JWTSecret:      []byte(cfg.JWTSecret),
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Env:            cfg.Env,
		Version:        cfg.Version,
	})

	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
