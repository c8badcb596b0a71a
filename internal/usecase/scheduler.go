package usecase

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	"HSEWrapped/internal/ports"
)

// Sweeper removes slide images that outlived their request, e.g. after a crash
// between rendering and cleanup.
type Sweeper struct {
	driver ports.Scheduler
	dir    string
	maxAge time.Duration
	logger *slog.Logger
}

// NewSweeper returns a helper to start/stop the recurring sweep.
func NewSweeper(driver ports.Scheduler, dir string, maxAge time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{driver: driver, dir: dir, maxAge: maxAge, logger: log}
}

// Start registers the sweep with the provided scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.driver == nil || s.dir == "" || s.maxAge <= 0 {
		return nil
	}

	job := func(trigger time.Time) {
		removed, err := s.Sweep(trigger)
		if err != nil {
			s.logger.Warn("artifact sweep incomplete", "removed", removed, "err", err)
			return
		}
		if removed > 0 {
			s.logger.Info("stale artifacts removed", "count", removed)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

// Sweep deletes artifacts last modified more than maxAge before now.
func (s *Sweeper) Sweep(now time.Time) (int, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, ArtifactPattern))
	if err != nil {
		return 0, err
	}

	var (
		result  *multierror.Error
		removed int
	)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				result = multierror.Append(result, err)
			}
			continue
		}
		if info.IsDir() || now.Sub(info.ModTime()) < s.maxAge {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, err)
			continue
		}
		removed++
	}
	return removed, result.ErrorOrNil()
}
