package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-orgchart/pkg/audit"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/handlers"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/metrics"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/middleware"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/repositories"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/schema"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/services"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/sessions"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/tabular"
	"github.com/ekaya-inc/ekaya-orgchart/pkg/validation"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion service",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, a, skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	return cmd
}

func serve(ctx context.Context, a *app, skipMigrations bool) error {
	logger := a.logger
	cfg := a.cfg

	logger.Info("Starting ekaya-orgchart",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("staging_backend", cfg.Staging.Backend),
		zap.Duration("staging_ttl", cfg.StagingTTL()),
		zap.Int64("upload_max_bytes", cfg.Upload.MaxBytes))

	if err := a.connectDB(ctx); err != nil {
		return err
	}
	if !skipMigrations {
		if err := a.migrate(); err != nil {
			return err
		}
	}
	if err := a.connectRedis(ctx); err != nil {
		return err
	}

	stagingStore, err := a.stagingStore()
	if err != nil {
		return err
	}
	sessionStore := a.sessionStore()
	m := metrics.New()

	ingestionService := services.NewIngestionService(
		schema.MustDefault(),
		tabular.NewParser(tabular.Options{UnzipSizeLimit: cfg.Upload.UnzipSizeLimit}),
		stagingStore,
		sessionStore,
		repositories.NewOrgChartRepository(a.db),
		validation.New(),
		m,
		audit.NewAuditor(logger),
		services.IngestionConfig{
			MaxUploadBytes: cfg.Upload.MaxBytes,
			StagingTTL:     cfg.StagingTTL(),
		},
		logger,
	)

	sweeper := services.NewSweeper(stagingStore, sessionStore, cfg.StagingTTL(), m, logger)
	sweeper.RunScheduler(ctx, cfg.SweepInterval())

	checks := map[string]handlers.DependencyCheck{
		"database": func(ctx context.Context) error { return a.db.Ping(ctx) },
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}

	identifier := sessions.NewCookieIdentifier(cfg.Session.Secret, cfg.SessionTTL(), cfg.SecureCookies())
	sessionMiddleware := middleware.Session(identifier, sessionStore, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, checks, logger).RegisterRoutes(mux)
	handlers.NewIngestionHandler(ingestionService, cfg.Upload.MaxBytes, logger).RegisterRoutes(mux, sessionMiddleware)
	mux.Handle("GET /metrics", m.Handler())

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
