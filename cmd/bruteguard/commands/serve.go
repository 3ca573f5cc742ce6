package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/bruteguard/internal/app"
)

func newServeCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			logger.Info("configuration loaded",
				slog.String("env", cfg.Server.Env),
				slog.String("driver", cfg.Database.Driver),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !skipMigrate {
				if err := app.Migrate(ctx, &cfg.Database, logger, "up"); err != nil {
					return fmt.Errorf("migrating ledger: %w", err)
				}
			}

			store, err := app.OpenStore(ctx, &cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("opening ledger: %w", err)
			}
			defer func() {
				if err := store.Close(); err != nil {
					logger.Error("closing ledger", slog.Any("error", err))
				}
			}()

			a, err := app.New(ctx, cfg, store, logger)
			if err != nil {
				return err
			}

			bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = a.EnsureAdmin(bootCtx)
			cancel()
			if err != nil {
				return err
			}

			a.Start(ctx)

			server := &http.Server{
				Addr:         ":" + cfg.Server.Port,
				Handler:      a.Handler,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("starting server", slog.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case err := <-serveErr:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", slog.Any("error", err))
			}
			if err := a.Shutdown(shutdownCtx); err != nil {
				logger.Error("background shutdown error", slog.Any("error", err))
			}

			logger.Info("server stopped gracefully")
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply pending migrations on startup")
	return cmd
}
