// internal/retry/retry.go
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/scrape/pkg/models"
)

// Policy defines retry behavior with exponential backoff
type Policy struct {
	MaxAttempts    int           // Maximum number of attempts (>= 1)
	InitialBackoff time.Duration // Backoff before the second attempt
	MaxBackoff     time.Duration // Cap on the backoff schedule
	Multiplier     float64       // Backoff growth factor
	Jitter         float64       // Random fraction [0, Jitter) added per wait
}

// DefaultPolicy returns a sensible default retry policy
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

// WithAttempts returns a copy of the policy with a different budget.
func (p Policy) WithAttempts(n int) Policy {
	p.MaxAttempts = n
	return p
}

// Do invokes op up to p.MaxAttempts times, waiting an exponentially
// growing delay between attempts. Only errors tagged Transient are
// retried; a Permanent error returns immediately without consuming
// further attempts. On exhausting the budget the last error is wrapped
// as RETRIES_EXHAUSTED. Context expiry wins over any pending backoff.
//
// op receives the caller's context and must honor its cancellation.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if ctx == nil {
		ctx = context.Background()
	}
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, models.FromContext(ctx)
		}

		v, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				log.Debug().Int("attempts", attempt+1).Msg("Retry succeeded")
			}
			return v, nil
		}

		lastErr = err

		if !models.IsTransient(err) {
			log.Debug().Err(err).Msg("Error is not retryable")
			return zero, err
		}

		// Don't sleep after the last attempt
		if attempt < p.MaxAttempts-1 {
			backoff := withJitter(p.Backoff(attempt), p.Jitter)

			log.Debug().
				Int("attempt", attempt+1).
				Int("max_attempts", p.MaxAttempts).
				Dur("backoff", backoff).
				Err(err).
				Msg("Retrying after backoff")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return zero, models.FromContext(ctx)
			}
		}
	}

	log.Warn().
		Int("attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("Max retry attempts exceeded")

	return zero, models.Exhausted(p.MaxAttempts, lastErr)
}

// Backoff returns the base delay after the given zero-based attempt.
// The schedule is non-decreasing and capped at MaxBackoff.
func (p Policy) Backoff(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier <= 1 {
		multiplier = 2.0
	}
	backoff := float64(p.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if max := float64(p.MaxBackoff); p.MaxBackoff > 0 && backoff > max {
		backoff = max
	}
	return time.Duration(backoff)
}

// withJitter adds a random fraction of the base delay to spread out
// synchronized retries against a struggling dependency.
func withJitter(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	return base + time.Duration(rand.Float64()*jitter*float64(base))
}
