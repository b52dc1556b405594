// Package clock holds the time sources and cancellable waits used by the
// scheduler.
package clock

import (
	"context"
	"time"
)

// Clock is a monotonic time source.
type Clock interface {
	Now() time.Time
}

// System is the real monotonic clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Sleep pauses for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when interrupted.
func Sleep(ctx context.Context, d time.Duration) error {
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

// SleepUntil pauses until the absolute time at, measured on c.
func SleepUntil(ctx context.Context, c Clock, at time.Time) error {
	return Sleep(ctx, at.Sub(c.Now()))
}
