package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resource-management-service/internal/config"
	"resource-management-service/internal/core"
	"resource-management-service/internal/handler"
	"resource-management-service/internal/middleware"
	"resource-management-service/internal/platform/kafka"
	"resource-management-service/internal/platform/logger"
	"resource-management-service/internal/platform/memory"
	"resource-management-service/internal/platform/postgres"
	"resource-management-service/internal/seed"
	"resource-management-service/internal/service"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds everything built from the configuration.
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	repo      core.Repository
	publisher core.EventPublisher
	svc       *service.ResourceService
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "resource-service",
		Short:         "Resource catalog service with Kafka event publishing",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create the database schema and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app) error {
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Insert sample resources into an empty catalog",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app) error {
					_, err := seed.Run(ctx, a.repo, a.log)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "export",
			Short: "Publish every resource to Kafka in batches and exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app) error {
					total, err := a.svc.ExportAll(ctx)
					if err != nil {
						return err
					}
					a.log.Info("export finished", "total", total)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "env",
			Short: "Print supported environment variables",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), config.Usage())
			},
		},
	)

	return root
}

func runServe(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withApp(ctx, configPath, func(ctx context.Context, a *app) error {
		if a.cfg.Seed.Enabled {
			if _, err := seed.Run(ctx, a.repo, a.log); err != nil {
				return err
			}
		}

		var auth func(http.Handler) http.Handler
		if a.cfg.Auth.Enabled {
			auth = middleware.JWTAuth([]byte(a.cfg.Auth.JWTSecret))
		}

		resourceHandler := handler.NewHandler(a.svc, a.log)
		healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{"storage": a.repo})

		srv := &http.Server{
			Addr:         a.cfg.Server.Port,
			Handler:      handler.NewRouter(resourceHandler, healthHandler, auth),
			ReadTimeout:  a.cfg.Server.ReadTimeout,
			WriteTimeout: a.cfg.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			a.log.Info("server listening", "addr", a.cfg.Server.Port)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("server failed: %w", err)
		case <-ctx.Done():
		}
		a.log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		a.log.Info("server stopped gracefully")
		return nil
	})
}

// withApp builds the application, runs fn and releases everything afterwards.
func withApp(ctx context.Context, configPath string, fn func(context.Context, *app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	a := &app{cfg: cfg, log: log}

	switch cfg.Storage.Driver {
	case config.StorageMemory:
		a.repo = memory.NewRepository()
	default:
		db, err := initDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		repo := postgres.NewRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database migrations completed")
		a.repo = repo
	}

	if cfg.Kafka.Enabled {
		a.publisher = kafka.NewProducer(kafka.Config{
			Brokers:                cfg.Kafka.Brokers,
			Topic:                  cfg.Kafka.Topic,
			ExportKey:              cfg.Kafka.ExportKey,
			BatchTimeout:           cfg.Kafka.BatchTimeout,
			AllowAutoTopicCreation: cfg.Kafka.AllowAutoTopicCreation,
		}, log)
	} else {
		a.publisher = kafka.NewNoOpProducer(log)
	}
	defer func() {
		if err := a.publisher.Close(); err != nil {
			log.Error("failed to close publisher", "error", err)
		}
	}()

	a.svc = service.NewResourceService(a.repo, a.publisher, log,
		service.WithExportBatchSize(cfg.Export.BatchSize))

	return fn(ctx, a)
}

func initDB(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.ConnectTimeout

	err = backoff.RetryNotify(
		func() error { return db.PingContext(ctx) },
		backoff.WithContext(policy, ctx),
		func(err error, next time.Duration) {
			log.Warn("database not ready, retrying", "error", err, "retry_in", next)
		},
	)
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
