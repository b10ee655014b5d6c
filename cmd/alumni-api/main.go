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

	"github.com/RyanVerWey/Tech-Talk/app"
	"github.com/RyanVerWey/Tech-Talk/config"
	"github.com/RyanVerWey/Tech-Talk/internal/observability"
	"github.com/RyanVerWey/Tech-Talk/repositories/postgres"
	"github.com/RyanVerWey/Tech-Talk/routes"
	"github.com/RyanVerWey/Tech-Talk/services/ratelimit"
	"github.com/RyanVerWey/Tech-Talk/services/tokens"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// env carries what every subcommand needs
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	var e env
	var logLevel string

	root := &cobra.Command{
		Use:           "alumni-api",
		Short:         "Alumni network API: Google sign-in, sessions and profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(cmd.Context())
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.Observability.LogLevel = logLevel
			}
			logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug|info|warn|error)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server with the cleanup and audit workers",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), e.cfg, e.logger)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context(), e.cfg, e.logger)
			},
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Delete expired and revoked sessions once",
			RunE: func(cmd *cobra.Command, args []string) error {
				deleted, err := runCleanup(cmd.Context(), e.cfg, e.logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d sessions\n", deleted)
				return nil
			},
		},
	)

	return root
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if err := deps.Start(ctx); err != nil {
		_ = deps.Close(context.Background())
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           routes.SetupRoutes(deps),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Environment),
			zap.String("client_url", cfg.Client.URL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case err := <-serveErr:
		runErr = fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := deps.Close(shutdownCtx); err != nil {
		logger.Error("dependency shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped")
	return runErr
}

func runMigrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer factory.Close()

	return factory.Migrate(ctx)
}

// runCleanup performs one sweep. Unlike the background worker it reports
// failures to the caller.
func runCleanup(ctx context.Context, cfg *config.Config, logger *zap.Logger) (int64, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return 0, err
	}
	defer factory.Close()

	repos := factory.NewRepositories()
	svc := tokens.NewService(tokens.Config{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTokenTTL,
		RefreshTTL: cfg.JWT.RefreshTokenTTL,
	}, repos.RefreshTokens, repos.Users, logger)

	deleted, err := svc.Cleanup(ctx)
	if err != nil {
		return 0, err
	}

	if cfg.RateLimit.Store == config.StorePostgres {
		cutoff := time.Now().Add(-cfg.RateLimit.Window)
		pruned, err := ratelimit.NewPostgresStore(factory.GetDB().DB, logger).PruneBefore(ctx, cutoff)
		if err != nil {
			return deleted, err
		}
		logger.Info("pruned rate limit attempts", zap.Int64("rows_deleted", pruned))
	}

	logger.Info("cleanup finished", zap.Int64("rows_deleted", deleted))
	return deleted, nil
}
