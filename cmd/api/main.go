package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wavecall/api/internal/app/migrate"
	"github.com/wavecall/api/internal/cache"
	httpx "github.com/wavecall/api/internal/http"
	"github.com/wavecall/api/internal/repository/postgres"
	"github.com/wavecall/api/internal/service/auth"
	"github.com/wavecall/api/internal/service/media"
	"github.com/wavecall/api/internal/service/team"
	"github.com/wavecall/api/internal/ws"
	"github.com/wavecall/api/pkg/config"
	"github.com/wavecall/api/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	level := slog.LevelInfo
	if cfg.Environment == "development" {
		level = slog.LevelDebug
	}
	log := logger.New("api", level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
	if err != nil {
		log.Error("failed to configure migrations", "error", err)
		os.Exit(1)
	}
	defer runner.Close()
	if err := runner.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	if cfg.MigrateOnStart {
		if err := runner.Ensure(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	repo := postgres.New(pool)

	teamCache := cache.NewMemoryCache(cfg.TeamCacheTTL)
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisCache, err := cache.NewRedisCache(addr, cfg.RedisPassword, cfg.RedisDB, cfg.TeamCacheTTL, log)
		if err != nil {
			log.Warn("redis cache unavailable, using in-process cache", "error", err)
		} else {
			teamCache = redisCache
		}
	}
	defer teamCache.Close()

	presenceHub := ws.NewHub(cfg.PresenceBuffer)

	authSvc := auth.New(repo, teamCache, log, cfg)
	teamSvc := team.New(repo, repo, teamCache, log)
	mediaSvc := media.New(presenceHub, log, cfg)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, teamSvc, mediaSvc, presenceHub, limiter, pool.Ping, teamCache.Ping)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("api server starting", "addr", cfg.Addr)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("api server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
