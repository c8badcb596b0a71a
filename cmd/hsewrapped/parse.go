package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"HSEWrapped/internal/app"
	"HSEWrapped/internal/config"
	"HSEWrapped/internal/infrastructure/portfolio"
	"HSEWrapped/internal/logging"
)

var parseTimeout time.Duration

var parseCmd = &cobra.Command{
	Use:   "parse <portfolio-url>",
	Short: "Aggregate one portfolio and print the computed report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, err := portfolio.ParseSubject(args[0])
		if err != nil {
			return err
		}

		cfg := config.Load()
		logger := logging.New(cfg.Logging.Level)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		timeout := parseTimeout
		if timeout <= 0 {
			timeout = cfg.Admission.RequestTimeout
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = application.Close() }()

		report, err := application.Analyze(ctx, subject)
		if err != nil {
			return fmt.Errorf("analyze %s: %w", subject.URL, err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	parseCmd.Flags().DurationVar(&parseTimeout, "timeout", 0, "overall deadline (defaults to the request timeout)")
}
