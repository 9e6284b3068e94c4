package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/sammcj/mcp-lens/internal/lens"
	"github.com/sirupsen/logrus"
)

// Options configures retry behaviour
type Options struct {
	// Retries is the number of extra attempts after the first, zero disables retrying
	Retries     int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// ShouldRetry decides whether an error is worth another attempt, lens.Retryable when nil
	ShouldRetry func(error) bool
}

// DefaultOptions returns backoff settings suited to the Lens endpoint
func DefaultOptions(retries int) Options {
	return Options{
		Retries:     retries,
		InitialWait: time.Second,
		MaxWait:     15 * time.Second,
		Jitter:      true,
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, runs out of
// attempts or ctx is done. Waits grow exponentially up to MaxWait.
func Do(ctx context.Context, opts Options, logger *logrus.Logger, fn func(context.Context) error) error {
	shouldRetry := opts.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = lens.Retryable
	}

	wait := opts.InitialWait
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || attempt >= opts.Retries || !shouldRetry(err) {
			return err
		}

		sleep := wait
		if opts.Jitter {
			sleep = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if opts.MaxWait > 0 && sleep > opts.MaxWait {
			sleep = opts.MaxWait
		}

		if logger != nil {
			logger.WithError(err).WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"wait":    sleep.String(),
			}).Warn("Lens search failed, retrying")
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		wait *= 2
		if opts.MaxWait > 0 && wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
}
