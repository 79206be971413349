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

	"github.com/taskflow/taskflow/internal/app/migrate"
	httpx "github.com/taskflow/taskflow/internal/http"
	"github.com/taskflow/taskflow/internal/repository/postgres"
	"github.com/taskflow/taskflow/internal/service/auth"
	"github.com/taskflow/taskflow/internal/service/events"
	"github.com/taskflow/taskflow/internal/service/project"
	"github.com/taskflow/taskflow/internal/service/task"
	"github.com/taskflow/taskflow/internal/service/team"
	"github.com/taskflow/taskflow/internal/service/user"
	"github.com/taskflow/taskflow/internal/ws"
	"github.com/taskflow/taskflow/pkg/config"
	"github.com/taskflow/taskflow/pkg/logger"
)

func main() {
	cfg := config.LoadAPIConfig()
	log := logger.New("api", slog.LevelInfo)

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
	if err := runner.Ensure(ctx); err != nil {
		log.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	repo := postgres.New(pool)
	hub := ws.NewHub(log)
	publisher := events.New(hub, log)

	authSvc := auth.New(repo, log, cfg)
	userSvc := user.New(repo, log)
	teamSvc := team.New(repo, repo, repo, log)
	projectSvc := project.New(repo, repo, repo, repo, publisher, log)
	taskSvc := task.New(repo, repo, repo, publisher, log)

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, authSvc, userSvc, teamSvc, projectSvc, taskSvc, hub, httpx.Options{
		Limiter:      limiter,
		DBHealth:     pool.Ping,
		WSSendBuffer: cfg.WSSendBuffer,
		SSEHeartbeat: cfg.SSEHeartbeatEvery,
	})
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
