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

	"github.com/civicconnect/civic/internal/app"
	"github.com/civicconnect/civic/internal/auth"
	"github.com/civicconnect/civic/internal/credential"
	"github.com/civicconnect/civic/internal/observability"
	"github.com/civicconnect/civic/internal/platform/cache"
	"github.com/civicconnect/civic/internal/platform/db"
	"github.com/civicconnect/civic/internal/rbac"
	"github.com/civicconnect/civic/internal/shared"
	"github.com/civicconnect/civic/internal/users"
	"github.com/civicconnect/civic/internal/view"
	"github.com/civicconnect/civic/jobs"
	"github.com/civicconnect/civic/migrations"
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

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("civic exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer dbpool.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, dbpool, migrations.FS, logger); err != nil {
			return err
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "civic_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return err
	}

	queueOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(queueOpts, metrics)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(queueOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(auth.ServiceConfig{
		Repo:   authRepo,
		Hasher: credential.NewHasher(cfg.BcryptCost),
		Tokens: auth.NewTokenStore(redisClient, cfg.VerificationTTL),
		Mailer: jobClient,
		Logger: logger,
	})
	rbacMiddleware := rbac.Middleware{Logger: logger, Metrics: metrics}
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, rbacMiddleware)

	usersService := users.NewService(users.NewRepository(dbpool), logger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Pages: &app.Pages{
			Templates:   templates,
			CSRF:        csrfManager,
			Auth:        authService,
			Users:       usersService,
			Logger:      logger,
			IdleTimeout: cfg.SessionIdleTimeout,
		},
		AuthHandler:    authHandler,
		AuthService:    authService,
		Loader:         auth.NewPrincipalLoader(authRepo, logger),
		UsersHandler:   usersHandler,
		RBACMiddleware: rbacMiddleware,
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
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
	return g.Wait()
}
