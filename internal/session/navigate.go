// internal/session/navigate.go
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/scrape/pkg/models"
)

// Navigate loads the request URL on the session, executes the ordered
// navigation steps, waits for the stability signal, and returns the
// rendered content. Each step runs under its own timeout; a step that
// exceeds it fails with STEP_TIMEOUT naming the step index.
func (m *Manager) Navigate(ctx context.Context, s *Session, req *models.ScrapeRequest, cookies []models.Cookie) (*NavigationOutcome, error) {
	start := time.Now()

	if len(cookies) > 0 {
		if err := s.proto.SetCookies(ctx, cookies); err != nil {
			return nil, m.translate(ctx, err, "failed to set session cookies")
		}
	}

	if err := s.proto.Navigate(ctx, req.URL); err != nil {
		return nil, m.translate(ctx, err, fmt.Sprintf("navigation to %s failed", req.URL))
	}

	for i, step := range req.Steps {
		if err := m.performStep(ctx, s, i, step); err != nil {
			return nil, err
		}
	}

	// Stability signal: the page counts as settled once the wait
	// selector is present.
	waitFor := req.WaitSelector
	if waitFor == "" {
		waitFor = "body"
	}
	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.StabilityTimeout)
	err := s.proto.WaitReady(waitCtx, waitFor)
	cancel()
	if err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return nil, models.NewScrapeError(models.ErrCodeStepTimeout,
				fmt.Sprintf("stability selector %q not present within %s", waitFor, m.cfg.StabilityTimeout), err).
				AsTransient().
				WithDetail("selector", waitFor)
		}
		return nil, m.translate(ctx, err, "stability wait failed")
	}

	html, err := s.proto.HTML(ctx)
	if err != nil {
		return nil, m.translate(ctx, err, "failed to read rendered content")
	}

	finalURL, err := s.proto.CurrentURL(ctx)
	if err != nil || finalURL == "" {
		finalURL = req.URL
	}

	m.mu.Lock()
	s.currentURL = finalURL
	s.lastActive = time.Now()
	m.mu.Unlock()

	log.Debug().
		Str("session_id", s.id).
		Str("url", req.URL).
		Int("steps", len(req.Steps)).
		Dur("elapsed", time.Since(start)).
		Msg("Navigation settled")

	return &NavigationOutcome{HTML: html, FinalURL: finalURL}, nil
}

func (m *Manager) performStep(ctx context.Context, s *Session, index int, step models.NavigationStep) error {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = m.cfg.StepTimeout
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	err := s.proto.Perform(stepCtx, step)
	cancel()
	if err == nil {
		return nil
	}

	// Request-level timeout and cancellation win over step classification.
	if ctx.Err() != nil {
		return models.FromContext(ctx)
	}
	if errors.Is(err, context.DeadlineExceeded) || stepCtx.Err() != nil {
		return models.NewScrapeError(models.ErrCodeStepTimeout,
			fmt.Sprintf("step %d (%s) exceeded its %s timeout", index, step.Type, timeout), err).
			AsTransient().
			WithDetail("step", index).
			WithDetail("type", string(step.Type))
	}

	return models.NewScrapeError(models.ErrCodeNavigation,
		fmt.Sprintf("step %d (%s) failed", index, step.Type), err).
		AsTransient().
		WithDetail("step", index).
		WithDetail("type", string(step.Type))
}

// translate maps a raw protocol error into the taxonomy. Timeout and
// cancellation of the request context always take precedence; anything
// else from the driver is a transient navigation fault.
func (m *Manager) translate(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return models.FromContext(ctx)
	}
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return err
	}
	return models.NewScrapeError(models.ErrCodeNavigation, msg, err).AsTransient()
}
