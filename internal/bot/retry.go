package bot

import (
	"context"
	"time"
)

// maxRetryDelay caps the exponential backoff so a long outage keeps probing
// instead of sleeping for minutes between attempts.
const maxRetryDelay = 30 * time.Second

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(backoffDelay(baseDelay, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// backoffDelay doubles the base delay per attempt up to maxRetryDelay.
// Shift overflow collapses to the cap as well.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt >= 62 {
		return maxRetryDelay
	}
	delay := base << uint(attempt)
	if delay <= 0 || delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
