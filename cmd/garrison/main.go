package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/garrison-hq/garrison/internal/app"
	"github.com/garrison-hq/garrison/internal/auth"
	"github.com/garrison-hq/garrison/internal/observability"
	"github.com/garrison-hq/garrison/internal/personnel"
	"github.com/garrison-hq/garrison/internal/platform/cache"
	"github.com/garrison-hq/garrison/internal/platform/db"
	"github.com/garrison-hq/garrison/internal/rbac"
	"github.com/garrison-hq/garrison/internal/session"
	"github.com/garrison-hq/garrison/internal/shared"
	"github.com/garrison-hq/garrison/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	catalog := rbac.DefaultCatalog()
	if err := catalog.Validate(); err != nil {
		logger.Error("permission catalog", slog.Any("error", err))
		os.Exit(1)
	}

	authRepo := auth.NewRepository(pool)
	authService := auth.NewService(authRepo)

	sessions, err := session.NewWebSessions(session.WebConfig{
		Redis:            redisClient,
		Authenticator:    authService,
		Catalog:          catalog,
		Timer:            cfg.TimerConfig(),
		Logger:           logger,
		Metrics:          metrics,
		SIDCookie:        "garrison_sid",
		CredentialCookie: "garrison_credential",
		TTL:              cfg.CredentialTTL,
		Secure:           cfg.IsProduction(),
	})
	if err != nil {
		logger.Error("init sessions", slog.Any("error", err))
		os.Exit(1)
	}
	defer sessions.Close()

	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	authHandler := auth.NewHandler(logger, authService, sessions, catalog, csrfManager, cfg.IsProduction())

	personnelRepo := personnel.NewRepository(pool)
	personnelService := personnel.NewService(logger, personnelRepo)
	personnelHandler := personnel.NewHandler(logger, personnelService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Sessions:         sessions,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		PersonnelHandler: personnelHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
