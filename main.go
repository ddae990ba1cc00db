package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/saiMhatre/stocky/internal/config"
	"github.com/saiMhatre/stocky/internal/domain"
)

const shutdownTimeout = 10 * time.Second

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "stocky",
	Short: "Stock reward ledger service",
	Long: `Stocky grants users whole or fractional shares as rewards and records every
grant in a double-entry ledger, including the fees the company pays for it.

Corporate actions (splits, bonuses, mergers, delistings and dividends) are
announced through the API and applied to existing holdings by process-actions.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (environment variables override it)")
	rootCmd.AddCommand(serveCmd(), migrateCmd(), processActionsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the environment and configuration and builds the logger.
func setup() (*config.Config, *logrus.Logger, error) {
	config.LoadDotEnv(logrus.StandardLogger())
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cfg.Log.NewLogger(), nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the price refresher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := openApp(ctx, cfg, logger)
			if err != nil {
				logger.Error("db connect:", err)
				return err
			}
			defer app.Close()

			go startPriceFetcher(ctx, app)

			srv := &http.Server{
				Addr:              ":" + cfg.Server.Port,
				Handler:           app.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				logger.Infof("starting server on %s", cfg.Server.Port)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			app, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			logger.WithField("driver", cfg.Database.Driver).Info("schema up to date")
			return nil
		},
	}
}

func processActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-actions",
		Short: "Apply every announced corporate action that is due",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			app, err := openApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Actions.ProcessPending(cmd.Context())
			if err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{
				"processed": report.Count(domain.ActionProcessed),
				"cancelled": report.Count(domain.ActionCancelled),
				"skipped":   report.Skipped,
			}).Info("corporate actions processed")
			return nil
		},
	}
}
