package retry

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sammcj/mcp-lens/internal/lens"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func fastOptions(retries int) Options {
	return Options{Retries: retries, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}
}

func TestDo_SucceedsAfterRetryableErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastOptions(3), quietLogger(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &lens.UploadError{Op: "results", StatusCode: 503}
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastOptions(5), quietLogger(), func(context.Context) error {
		calls++
		return &lens.ExtractionError{Reason: "no script"}
	})

	assert.True(t, lens.IsExtractionError(err))
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastOptions(2), quietLogger(), func(context.Context) error {
		calls++
		return &lens.UploadError{Op: "upload", StatusCode: 429}
	})

	assert.True(t, lens.IsUploadError(err))
	assert.Equal(t, 3, calls)
}

func TestDo_ZeroRetries(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), fastOptions(0), nil, func(context.Context) error {
		calls++
		return errors.New("connection reset")
	})
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := Options{Retries: 3, InitialWait: time.Hour, ShouldRetry: func(error) bool { return true }}

	err := Do(ctx, opts, quietLogger(), func(context.Context) error {
		cancel()
		return errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions(2)
	assert.Equal(t, 2, opts.Retries)
	assert.True(t, opts.Jitter)
	assert.Nil(t, opts.ShouldRetry)
}
