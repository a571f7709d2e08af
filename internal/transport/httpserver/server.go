// Package httpserver exposes the scrape engine over HTTP.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pagebound/scrape/internal/cache"
	"github.com/pagebound/scrape/internal/session"
	"github.com/pagebound/scrape/internal/transport"
	"github.com/pagebound/scrape/pkg/models"
)

// Server wraps the gin engine with graceful shutdown.
type Server struct {
	httpSrv *http.Server
}

// Options configures the HTTP surface.
type Options struct {
	Host string
	Port int

	// AuthToken, when set, is required on every request except health.
	AuthToken string
}

// New creates the server around a configured router.
func New(inv *transport.Invoker, sessions *session.Manager, cc *cache.MemoryCache, opts Options) *Server {
	router := NewRouter(inv, sessions, cc, opts.AuthToken)
	return &Server{
		httpSrv: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", opts.Host, opts.Port),
			Handler: router,
		},
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.httpSrv.Addr).Msg("HTTP server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Health is intentionally outside auth so monitoring probes always work.
func NewRouter(inv *transport.Invoker, sessions *session.Manager, cc *cache.MemoryCache, authToken string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")

	v1.GET("/health", Health(sessions, cc, time.Now()))

	protected := v1.Group("")
	if authToken != "" {
		protected.Use(Auth(authToken))
	}
	protected.POST("/scrape", Scrape(inv))

	return r
}

// Scrape returns the handler for POST /api/v1/scrape.
func Scrape(inv *transport.Invoker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidRequest,
					Message: err.Error(),
				},
			})
			return
		}

		resp := inv.Invoke(c.Request.Context(), &req)
		c.JSON(transport.StatusOf(resp), resp)
	}
}

// HealthResponse reports pool and cache utilisation.
type HealthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	LiveSessions int    `json:"live_sessions"`
	IdleSessions int    `json:"idle_sessions"`
	MaxSessions  int    `json:"max_sessions"`
	CacheEntries int    `json:"cache_entries,omitempty"`
	CacheHits    uint64 `json:"cache_hits,omitempty"`
	CacheMisses  uint64 `json:"cache_misses,omitempty"`
}

// Health returns the handler for GET /api/v1/health.
//
// Status degrades when every pool slot is live and none are idle.
func Health(sessions *session.Manager, cc *cache.MemoryCache, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		live, idle, capacity := sessions.Stats()

		status := "healthy"
		if live >= capacity && idle == 0 {
			status = "degraded"
		}

		resp := HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			LiveSessions: live,
			IdleSessions: idle,
			MaxSessions:  capacity,
		}
		if cc != nil {
			resp.CacheEntries, resp.CacheHits, resp.CacheMisses = cc.Stats()
		}

		c.JSON(http.StatusOK, resp)
	}
}
