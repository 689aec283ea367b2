package replay

import (
	"context"
	"time"
)

// Clock reports the live time records are stamped with.
type Clock interface {
	Now() time.Time
}

// Timer suspends a replay unit until the next record is due.
type Timer interface {
	// Wait blocks for d or until ctx is done, returning ctx.Err() in the latter case.
	Wait(ctx context.Context, d time.Duration) error
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// SystemTimer sleeps on a runtime timer.
type SystemTimer struct{}

// Wait implements Timer.
func (SystemTimer) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
