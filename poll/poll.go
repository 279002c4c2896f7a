// Package poll repeats a check on a fixed interval until it succeeds.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrMaxAttempts is returned when the condition never held within
// Options.MaxAttempts checks.
var ErrMaxAttempts = errors.New("poll: maximum attempts reached")

// Condition reports whether the awaited state has been reached.
type Condition func(ctx context.Context) (bool, error)

type Options struct {
	// Interval between two checks.
	Interval time.Duration
	// MaxAttempts bounds the number of checks. Zero means unbounded.
	MaxAttempts int
	// Timeout bounds the total wait. Zero means unbounded.
	Timeout time.Duration
}

// Until checks cond immediately and then once per interval until it returns
// true, returns an error, or the attempts, timeout or context run out.
func Until(ctx context.Context, opts Options, cond Condition) error {
	if opts.Interval <= 0 {
		return errors.New("poll: interval must be positive")
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return ErrMaxAttempts
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
