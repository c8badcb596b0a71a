// Package pause waits between outbound calls without outliving the caller's
// context.
package pause

import (
	"context"
	"time"
)

// For blocks for d or until ctx is done, returning ctx.Err() in the latter
// case. A non-positive d only reports whether ctx is already done.
func For(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
