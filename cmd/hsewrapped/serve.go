package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"HSEWrapped/internal/app"
	"HSEWrapped/internal/config"
	"HSEWrapped/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot until interrupted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		logger := logging.New(cfg.Logging.Level)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := application.Close(); err != nil {
				logger.Error("shutdown incomplete", "error", err)
			}
		}()

		if err := application.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("application stopped", "error", err)
			return err
		}
		logger.Info("application stopped")
		return nil
	},
}
