package pair

import (
	"context"
	"time"
)

// RetryConfig bounds how RPC calls are retried.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func withRetry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
