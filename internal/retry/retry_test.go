// internal/retry/retry_test.go
package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pagebound/scrape/pkg/models"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if v != "ok" {
		t.Errorf("Expected 'ok', got %q", v)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, models.NewScrapeError(models.ErrCodeNavigation, "flaky", nil).AsTransient()
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if v != 42 {
		t.Errorf("Expected 42, got %d", v)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	permanent := models.NewScrapeError(models.ErrCodeInvalidRule, "bad rule", nil)
	_, err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})
	if calls != 1 {
		t.Errorf("Permanent error consumed %d attempts, want 1", calls)
	}
	if models.CodeOf(err) != models.ErrCodeInvalidRule {
		t.Errorf("Expected INVALID_RULE, got %v", err)
	}
}

func TestDo_UnclassifiedErrorNotRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("plain error")
	})
	if calls != 1 {
		t.Errorf("Unclassified error consumed %d attempts, want 1", calls)
	}
	if err == nil {
		t.Fatal("Expected an error")
	}
}

func TestDo_ExhaustionWrapsLastError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, models.NewScrapeError(models.ErrCodePoolExhausted, "busy", nil).AsTransient()
	})
	if calls != 3 {
		t.Errorf("Expected exactly 3 calls, got %d", calls)
	}
	if models.CodeOf(err) != models.ErrCodeRetriesExhausted {
		t.Fatalf("Expected RETRIES_EXHAUSTED, got %v", err)
	}
	var se *models.ScrapeError
	if !errors.As(err, &se) {
		t.Fatal("Expected a *ScrapeError")
	}
	if se.Details["attempts"] != 3 {
		t.Errorf("Expected attempts detail 3, got %v", se.Details["attempts"])
	}
	if models.CodeOf(se.Underlying) != models.ErrCodePoolExhausted {
		t.Errorf("Expected last error preserved, got %v", se.Underlying)
	}
}

func TestDo_ContextCancellationWinsOverBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxAttempts: 3, InitialBackoff: time.Hour, Multiplier: 2.0}
	start := time.Now()
	_, err := Do(ctx, p, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, models.NewScrapeError(models.ErrCodeNavigation, "flaky", nil).AsTransient()
	})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Backoff was not interrupted by cancellation (took %s)", elapsed)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if models.CodeOf(err) != models.ErrCodeCancelled {
		t.Errorf("Expected CANCELLED, got %v", err)
	}
}

func TestDo_DeadlineMapsToTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := Do(ctx, Policy{MaxAttempts: 5, InitialBackoff: 50 * time.Millisecond, Multiplier: 2.0},
		func(ctx context.Context) (int, error) {
			return 0, models.NewScrapeError(models.ErrCodeNavigation, "flaky", nil).AsTransient()
		})
	if models.CodeOf(err) != models.ErrCodeTimeout {
		t.Errorf("Expected TIMEOUT, got %v", err)
	}
}

func TestBackoff_NonDecreasingAndCapped(t *testing.T) {
	p := Policy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2.0}
	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		b := p.Backoff(attempt)
		if b < prev {
			t.Errorf("Backoff decreased at attempt %d: %s < %s", attempt, b, prev)
		}
		if b > p.MaxBackoff {
			t.Errorf("Backoff exceeded cap at attempt %d: %s", attempt, b)
		}
		prev = b
	}
	if p.Backoff(9) != time.Second {
		t.Errorf("Expected backoff to saturate at the cap, got %s", p.Backoff(9))
	}
}
