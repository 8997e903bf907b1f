package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Do calls fn until it succeeds, backing off exponentially between attempts:
// baseDelay, 2*baseDelay, 4*baseDelay and so on. With a one second base and
// five attempts it gives up after roughly 15s of waiting.
func Do(ctx context.Context, name string, maxRetries int, baseDelay time.Duration, fn func(ctx context.Context) error) error {
	// Ensure at least one attempt even if maxRetries is 0
	attempts := maxRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 0 {
				log.Info().Str("operation", name).Int("attempt", attempt+1).Msg("operation succeeded after retry")
			}
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		backoff := baseDelay << attempt
		log.Warn().
			Err(err).
			Str("operation", name).
			Int("attempt", attempt+1).
			Int("max_retries", maxRetries).
			Dur("next_retry_in", backoff).
			Msg("operation failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, err)
}
