// internal/transport/httpserver/server_test.go
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pagebound/scrape/internal/cache"
	"github.com/pagebound/scrape/internal/engine"
	"github.com/pagebound/scrape/internal/retry"
	"github.com/pagebound/scrape/internal/session"
	"github.com/pagebound/scrape/internal/transport"
	"github.com/pagebound/scrape/pkg/models"
)

type pageProto struct {
	id   string
	html string
	mu   sync.Mutex
	navs int
}

func (p *pageProto) ID() string { return p.id }
func (p *pageProto) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navs++
	return nil
}
func (p *pageProto) SetCookies(ctx context.Context, cookies []models.Cookie) error { return nil }
func (p *pageProto) Perform(ctx context.Context, step models.NavigationStep) error { return nil }
func (p *pageProto) WaitReady(ctx context.Context, selector string) error          { return nil }
func (p *pageProto) HTML(ctx context.Context) (string, error)                      { return p.html, nil }
func (p *pageProto) CurrentURL(ctx context.Context) (string, error)                { return "", nil }
func (p *pageProto) Ping(ctx context.Context) error                                { return nil }
func (p *pageProto) Close() error                                                  { return nil }

type pageDriver struct {
	mu    sync.Mutex
	seq   int
	html  string
	proto *pageProto
}

func (d *pageDriver) Connect(ctx context.Context) (session.ProtocolSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	d.proto = &pageProto{id: fmt.Sprintf("tab-%d", d.seq), html: d.html}
	return d.proto, nil
}
func (d *pageDriver) Close() error { return nil }

func testRouter(t *testing.T, authToken string) (*gin.Engine, *cache.MemoryCache) {
	t.Helper()
	driver := &pageDriver{html: `<html><body><h1>Hello</h1></body></html>`}
	mgr := session.NewManager(driver, session.Config{
		MaxSessions:    2,
		AcquireTimeout: 200 * time.Millisecond,
		ConnectRetry:   retry.Policy{MaxAttempts: 1, InitialBackoff: time.Millisecond},
	})
	t.Cleanup(func() { mgr.Close() })

	orch := engine.New(mgr, nil, nil, engine.Options{
		AcquireRetry:    retry.Policy{MaxAttempts: 1, InitialBackoff: time.Millisecond},
		NavigateRetry:   retry.Policy{MaxAttempts: 1, InitialBackoff: time.Millisecond},
		RequestAttempts: 1,
		DefaultTimeout:  5 * time.Second,
	})

	cc := cache.NewMemoryCache(10, time.Minute)
	t.Cleanup(cc.Close)

	inv := transport.NewInvoker(orch, cc)
	return NewRouter(inv, mgr, cc, authToken), cc
}

func postScrape(t *testing.T, router *gin.Engine, body string, headers map[string]string) (*httptest.ResponseRecorder, *models.ScrapeResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scrape", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp models.ScrapeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Response is not valid JSON: %v\n%s", err, w.Body.String())
	}
	return w, &resp
}

func TestScrapeEndpoint_Success(t *testing.T) {
	router, _ := testRouter(t, "")

	body := `{"url":"https://example.com","rules":[{"field":"title","selector":"h1"}]}`
	w, resp := postScrape(t, router, body, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !resp.Success || resp.Result == nil {
		t.Fatalf("Expected success, got %+v", resp)
	}
	f, ok := resp.Result.Fields.Get("title")
	if !ok || f.Single == nil || *f.Single != "Hello" {
		t.Errorf("Expected title 'Hello', got %+v", f)
	}
	if resp.RequestID == "" {
		t.Error("Expected a request ID on the response")
	}
}

func TestScrapeEndpoint_MalformedBody(t *testing.T) {
	router, _ := testRouter(t, "")

	w, resp := postScrape(t, router, `{"url": 12}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidRequest {
		t.Errorf("Expected INVALID_REQUEST, got %+v", resp.Error)
	}
}

func TestScrapeEndpoint_InvalidURLMapsTo400(t *testing.T) {
	router, _ := testRouter(t, "")

	w, resp := postScrape(t, router, `{"url":"ftp://example.com"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
	if resp.Success {
		t.Error("Expected failure envelope")
	}
}

func TestScrapeEndpoint_CacheRoundTrip(t *testing.T) {
	router, _ := testRouter(t, "")

	// MaxAge is expressed in nanoseconds on the wire.
	body := fmt.Sprintf(`{"url":"https://example.com","rules":[{"field":"title","selector":"h1"}],"max_age":%d}`,
		time.Minute.Nanoseconds())

	_, first := postScrape(t, router, body, nil)
	if first.CacheStatus != "miss" {
		t.Errorf("First request: expected cache miss, got %q", first.CacheStatus)
	}

	_, second := postScrape(t, router, body, nil)
	if second.CacheStatus != "hit" {
		t.Errorf("Second request: expected cache hit, got %q", second.CacheStatus)
	}
}

func TestAuthMiddleware(t *testing.T) {
	router, _ := testRouter(t, "sekrit")
	body := `{"url":"https://example.com","rules":[{"field":"title","selector":"h1"}]}`

	w, _ := postScrape(t, router, body, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}

	w, _ = postScrape(t, router, body, map[string]string{"Authorization": "Bearer wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with bad token, got %d", w.Code)
	}

	w, resp := postScrape(t, router, body, map[string]string{"Authorization": "Bearer sekrit"})
	if w.Code != http.StatusOK || !resp.Success {
		t.Errorf("Expected 200 with valid bearer token, got %d", w.Code)
	}

	w, _ = postScrape(t, router, body, map[string]string{"X-API-Key": "sekrit"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with valid X-API-Key, got %d", w.Code)
	}
}

func TestHealthEndpoint_OpenAndReportsPool(t *testing.T) {
	router, _ := testRouter(t, "sekrit")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Health must not require auth, got %d", w.Code)
	}

	var health HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("Invalid health JSON: %v", err)
	}
	if health.Status != "healthy" {
		t.Errorf("Expected healthy, got %q", health.Status)
	}
	if health.MaxSessions != 2 {
		t.Errorf("Expected max_sessions 2, got %d", health.MaxSessions)
	}
}
