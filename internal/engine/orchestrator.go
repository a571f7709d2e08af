// Package engine implements the scrape orchestrator: the single
// Scrape(request) -> result operation composing the session pool, the
// retry policy engine, and the extraction pipeline.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/scrape/internal/extract"
	"github.com/pagebound/scrape/internal/ratelimit"
	"github.com/pagebound/scrape/internal/retry"
	"github.com/pagebound/scrape/internal/session"
	"github.com/pagebound/scrape/pkg/models"
)

// State names one phase of the per-request machine:
// Pending -> AcquiringSession -> Navigating -> Extracting -> Releasing
// -> Succeeded | Failed.
type State string

const (
	StatePending   State = "Pending"
	StateAcquiring State = "AcquiringSession"
	StateNavigate  State = "Navigating"
	StateExtract   State = "Extracting"
	StateReleasing State = "Releasing"
	StateSucceeded State = "Succeeded"
	StateFailed    State = "Failed"
)

// CookieSource resolves a named auth session into cookies applied
// before navigation.
type CookieSource interface {
	Cookies(name string) ([]models.Cookie, error)
}

// Options tunes the orchestrator's retry budgets.
type Options struct {
	// AcquireRetry governs session acquisition. Contention is expected
	// to be short-lived, so the budget stays small.
	AcquireRetry retry.Policy

	// NavigateRetry governs page loads, the dominant source of
	// transient failure.
	NavigateRetry retry.Policy

	// RequestAttempts is the outer budget for re-navigation when a
	// required field is missing from settled content.
	RequestAttempts int

	// ShareNavigationBudget makes re-navigations draw from the
	// navigation retry budget instead of the distinct request-level one.
	ShareNavigationBudget bool

	// DefaultTimeout caps requests that carry no timeout of their own.
	DefaultTimeout time.Duration
}

// DefaultOptions returns the standard retry budgets.
func DefaultOptions() Options {
	return Options{
		AcquireRetry:    retry.DefaultPolicy().WithAttempts(2),
		NavigateRetry:   retry.DefaultPolicy().WithAttempts(4),
		RequestAttempts: 3,
		DefaultTimeout:  60 * time.Second,
	}
}

// Orchestrator drives one scrape request through the state machine.
type Orchestrator struct {
	sessions *session.Manager
	limiter  ratelimit.RateLimiter
	cookies  CookieSource
	opts     Options
}

// New creates an orchestrator. limiter and cookies may be nil.
func New(sessions *session.Manager, limiter ratelimit.RateLimiter, cookies CookieSource, opts Options) *Orchestrator {
	if opts.RequestAttempts < 1 {
		opts.RequestAttempts = 1
	}
	return &Orchestrator{
		sessions: sessions,
		limiter:  limiter,
		cookies:  cookies,
		opts:     opts,
	}
}

// Scrape runs one request to its single terminal outcome: a ScrapeResult
// or a classified error, never both, never neither. The request-level
// wall clock timeout spans every state; Releasing runs on every path.
func (o *Orchestrator) Scrape(ctx context.Context, req *models.ScrapeRequest) (*models.ScrapeResult, error) {
	start := time.Now()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = o.opts.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var cookies []models.Cookie
	if req.SessionName != "" && o.cookies != nil {
		var err error
		cookies, err = o.cookies.Cookies(req.SessionName)
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeInvalidRequest,
				fmt.Sprintf("auth session %q could not be loaded", req.SessionName), err)
		}
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, req.URL); err != nil {
			return nil, models.FromContext(ctx)
		}
	}

	log.Debug().Str("url", req.URL).Str("state", string(StatePending)).Msg("Request admitted")

	navAttempts := 0
	var result *models.ScrapeResult
	var lastErr error

	for attempt := 1; attempt <= o.opts.RequestAttempts; attempt++ {
		navPolicy := o.opts.NavigateRetry
		if o.opts.ShareNavigationBudget {
			remaining := navPolicy.MaxAttempts - navAttempts
			if attempt > 1 && remaining < 1 {
				break
			}
			if remaining >= 1 {
				navPolicy = navPolicy.WithAttempts(remaining)
			}
		}

		result, lastErr = o.runAttempt(ctx, req, cookies, &navAttempts, navPolicy)
		if lastErr == nil {
			result.ElapsedMs = time.Since(start).Milliseconds()
			log.Info().
				Str("url", req.URL).
				Int("attempts", result.Attempts).
				Int64("elapsed_ms", result.ElapsedMs).
				Str("state", string(StateSucceeded)).
				Msg("Scrape completed")
			return result, nil
		}

		// Only a transient missing field warrants a fresh navigation;
		// everything else already spent its own retry budget.
		if models.CodeOf(lastErr) != models.ErrCodeMissingField || !models.IsTransient(lastErr) {
			break
		}
		if attempt < o.opts.RequestAttempts {
			backoff := o.opts.NavigateRetry.Backoff(attempt - 1)
			log.Debug().
				Str("url", req.URL).
				Int("request_attempt", attempt).
				Dur("backoff", backoff).
				Msg("Required field missing, re-navigating")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, models.FromContext(ctx)
			}
		}
	}

	if ctx.Err() != nil {
		lastErr = models.FromContext(ctx)
	}
	log.Warn().
		Str("url", req.URL).
		Str("state", string(StateFailed)).
		Err(lastErr).
		Msg("Scrape failed")
	return nil, lastErr
}

// runAttempt executes one pass of the state machine. The deferred
// Releasing transition is the scoped-acquisition guarantee: it runs on
// success, failure, timeout, and cancellation alike.
func (o *Orchestrator) runAttempt(ctx context.Context, req *models.ScrapeRequest, cookies []models.Cookie, navAttempts *int, navPolicy retry.Policy) (*models.ScrapeResult, error) {
	log.Debug().Str("url", req.URL).Str("state", string(StateAcquiring)).Msg("State transition")
	sess, err := retry.Do(ctx, o.opts.AcquireRetry, func(ctx context.Context) (*session.Session, error) {
		return o.sessions.Acquire(ctx)
	})
	if err != nil {
		return nil, o.settle(ctx, err)
	}

	healthy := true
	defer func() {
		log.Debug().Str("url", req.URL).Str("session_id", sess.ID()).
			Str("state", string(StateReleasing)).Msg("State transition")
		o.sessions.Release(sess, healthy)
	}()

	log.Debug().Str("url", req.URL).Str("state", string(StateNavigate)).Msg("State transition")
	outcome, err := retry.Do(ctx, navPolicy, func(ctx context.Context) (*session.NavigationOutcome, error) {
		*navAttempts++
		return o.sessions.Navigate(ctx, sess, req, cookies)
	})
	if err != nil {
		healthy = sessionStillHealthy(err)
		return nil, o.settle(ctx, err)
	}

	log.Debug().Str("url", req.URL).Str("state", string(StateExtract)).Msg("State transition")
	fields, err := extract.Run(outcome.HTML, req.Rules)
	if err != nil {
		return nil, o.settle(ctx, err)
	}

	return &models.ScrapeResult{
		Fields:    fields,
		Attempts:  *navAttempts,
		SessionID: sess.ID(),
		FinalURL:  outcome.FinalURL,
		FetchedAt: time.Now(),
	}, nil
}

// settle applies the Timeout/Cancelled precedence rule on the way out.
func (o *Orchestrator) settle(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return models.FromContext(ctx)
	}
	return err
}

// sessionStillHealthy decides whether the session goes back to the idle
// pool after a failed navigation. A dead driver or an interrupted
// protocol exchange can leave the tab in an unknown state.
func sessionStillHealthy(err error) bool {
	switch models.CodeOf(err) {
	case models.ErrCodeDriverUnavailable, models.ErrCodeTimeout, models.ErrCodeCancelled:
		return false
	}
	return true
}

func validateRequest(req *models.ScrapeRequest) error {
	if req == nil || req.URL == "" {
		return models.NewScrapeError(models.ErrCodeInvalidRequest, "request has no URL", nil)
	}
	u, err := url.ParseRequestURI(req.URL)
	if err != nil || u.Host == "" {
		return models.NewScrapeError(models.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid URL %q", req.URL), err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.NewScrapeError(models.ErrCodeInvalidRequest,
			fmt.Sprintf("invalid URL scheme %q: must be http or https", u.Scheme), nil)
	}
	for i, step := range req.Steps {
		switch step.Type {
		case models.StepClick, models.StepWaitVisible, models.StepScroll,
			models.StepSleep, models.StepFill, models.StepEval:
		default:
			return models.NewScrapeError(models.ErrCodeInvalidRequest,
				fmt.Sprintf("step %d has unknown type %q", i, step.Type), nil).
				WithDetail("step", i)
		}
		switch step.Type {
		case models.StepClick, models.StepWaitVisible, models.StepFill:
			if step.Selector == "" {
				return models.NewScrapeError(models.ErrCodeInvalidRequest,
					fmt.Sprintf("step %d (%s) requires a selector", i, step.Type), nil).
					WithDetail("step", i)
			}
		}
	}
	return nil
}
