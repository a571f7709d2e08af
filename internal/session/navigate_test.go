// internal/session/navigate_test.go
package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pagebound/scrape/pkg/models"
)

func acquireWithProto(t *testing.T, setup func(*fakeProto)) (*Manager, *Session, *fakeProto) {
	t.Helper()
	driver := &fakeDriver{setup: setup}
	m := NewManager(driver, testConfig())
	t.Cleanup(func() { m.Close() })

	s, err := m.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	return m, s, driver.lastProtos[0]
}

func TestNavigate_RunsStepsInOrder(t *testing.T) {
	m, s, proto := acquireWithProto(t, func(p *fakeProto) {
		p.html = "<html><body>ready</body></html>"
	})

	req := &models.ScrapeRequest{
		URL: "https://example.com",
		Steps: []models.NavigationStep{
			{Type: models.StepClick, Selector: "#load-more"},
			{Type: models.StepScroll},
			{Type: models.StepSleep, Milliseconds: 1},
		},
	}

	outcome, err := m.Navigate(context.Background(), s, req, nil)
	if err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}
	if outcome.HTML != "<html><body>ready</body></html>" {
		t.Errorf("Unexpected HTML: %q", outcome.HTML)
	}

	proto.mu.Lock()
	defer proto.mu.Unlock()
	if len(proto.performed) != 3 {
		t.Fatalf("Expected 3 steps, got %d", len(proto.performed))
	}
	wantOrder := []models.StepType{models.StepClick, models.StepScroll, models.StepSleep}
	for i, want := range wantOrder {
		if proto.performed[i].Type != want {
			t.Errorf("Step %d: expected %s, got %s", i, want, proto.performed[i].Type)
		}
	}
}

func TestNavigate_AppliesCookiesBeforeNavigation(t *testing.T) {
	m, s, proto := acquireWithProto(t, nil)

	cookies := []models.Cookie{{Name: "sid", Value: "abc", Domain: "example.com"}}
	req := &models.ScrapeRequest{URL: "https://example.com"}

	if _, err := m.Navigate(context.Background(), s, req, cookies); err != nil {
		t.Fatalf("Navigate failed: %v", err)
	}

	proto.mu.Lock()
	defer proto.mu.Unlock()
	if len(proto.cookies) != 1 || proto.cookies[0].Name != "sid" {
		t.Errorf("Cookies not applied: %+v", proto.cookies)
	}
}

func TestNavigate_StepTimeoutNamesTheStep(t *testing.T) {
	m, s, _ := acquireWithProto(t, func(p *fakeProto) {
		p.blockPerform = true
	})

	req := &models.ScrapeRequest{
		URL:   "https://example.com",
		Steps: []models.NavigationStep{{Type: models.StepClick, Selector: "#btn"}},
	}

	_, err := m.Navigate(context.Background(), s, req, nil)
	if models.CodeOf(err) != models.ErrCodeStepTimeout {
		t.Fatalf("Expected STEP_TIMEOUT, got %v", err)
	}
	if !models.IsTransient(err) {
		t.Error("STEP_TIMEOUT should be transient")
	}
	var se *models.ScrapeError
	if !errors.As(err, &se) {
		t.Fatal("Expected a *ScrapeError")
	}
	if se.Details["step"] != 0 {
		t.Errorf("Expected step index 0 in details, got %v", se.Details["step"])
	}
}

func TestNavigate_RequestCancellationWinsOverStepTimeout(t *testing.T) {
	m, s, _ := acquireWithProto(t, func(p *fakeProto) {
		p.blockPerform = true
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	req := &models.ScrapeRequest{
		URL:   "https://example.com",
		Steps: []models.NavigationStep{{Type: models.StepClick, Selector: "#btn", Timeout: time.Minute}},
	}

	_, err := m.Navigate(ctx, s, req, nil)
	if models.CodeOf(err) != models.ErrCodeCancelled {
		t.Fatalf("Expected CANCELLED, got %v", err)
	}
}

func TestNavigate_StabilityTimeoutIsTransient(t *testing.T) {
	m, s, _ := acquireWithProto(t, func(p *fakeProto) {
		p.blockWait = true
	})

	req := &models.ScrapeRequest{URL: "https://example.com", WaitSelector: "#app"}

	_, err := m.Navigate(context.Background(), s, req, nil)
	if models.CodeOf(err) != models.ErrCodeStepTimeout {
		t.Fatalf("Expected STEP_TIMEOUT, got %v", err)
	}
	var se *models.ScrapeError
	if !errors.As(err, &se) {
		t.Fatal("Expected a *ScrapeError")
	}
	if se.Details["selector"] != "#app" {
		t.Errorf("Expected selector detail '#app', got %v", se.Details["selector"])
	}
}

func TestNavigate_ProtocolErrorBecomesNavigationFailed(t *testing.T) {
	m, s, _ := acquireWithProto(t, func(p *fakeProto) {
		p.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	})

	req := &models.ScrapeRequest{URL: "https://bad.invalid"}

	_, err := m.Navigate(context.Background(), s, req, nil)
	if models.CodeOf(err) != models.ErrCodeNavigation {
		t.Fatalf("Expected NAVIGATION_FAILED, got %v", err)
	}
	if !models.IsTransient(err) {
		t.Error("NAVIGATION_FAILED should be transient")
	}
}
