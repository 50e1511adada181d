package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aitoolflow/engine/internal/api"
	"github.com/aitoolflow/engine/internal/auth"
	"github.com/aitoolflow/engine/internal/cache"
	"github.com/aitoolflow/engine/internal/repository"
	"github.com/aitoolflow/engine/pkg/config"
	"github.com/aitoolflow/engine/pkg/database"
	"github.com/aitoolflow/engine/pkg/logger"
)

const devJWTSecret = "dev-only-insecure-secret-change-me"

func main() {
	cfg := config.MustLoad()

	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting toolflow engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("db_driver", cfg.DBDriver),
	)

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, database.Options{Verbose: cfg.IsDevelopment()})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	log.Info("database ready")

	var sc cache.SuggestionCache = cache.Nop{}
	rdb, err := database.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	switch {
	case err != nil:
		log.Warn("redis unavailable, suggestion cache disabled", zap.Error(err))
	case rdb != nil:
		defer rdb.Close()
		sc = cache.NewRedisSuggestionCache(rdb, cfg.SuggestionCacheTTL)
		log.Info("suggestion cache enabled", zap.Duration("ttl", cfg.SuggestionCacheTTL))
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		log.Warn("JWT_SECRET not set, using development secret")
		secret = []byte(devJWTSecret)
	}

	handler := api.New(api.Options{
		DB:              db,
		Cache:           sc,
		Tokens:          auth.NewTokenIssuer(secret, cfg.TokenTTL),
		BcryptCost:      cfg.BcryptCost,
		CatalogPageSize: cfg.CatalogPageSize,
		SuggestionLimit: cfg.SuggestionLimit,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
