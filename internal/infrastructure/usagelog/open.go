package usagelog

import (
	"context"
	"fmt"
	"log/slog"

	"HSEWrapped/internal/config"
	"HSEWrapped/internal/ports"
)

// Open returns the usage log selected by cfg.Driver.
func Open(ctx context.Context, cfg config.UsageConfig, logger *slog.Logger) (ports.UsageLog, error) {
	var (
		store ports.UsageLog
		err   error
	)
	switch cfg.Driver {
	case config.UsageDriverJSON, "":
		store, err = OpenFile(cfg.Path, logger)
	case config.UsageDriverPostgres:
		store, err = OpenPostgres(ctx, cfg.DSN)
	case config.UsageDriverRedis:
		store, err = OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown usage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
