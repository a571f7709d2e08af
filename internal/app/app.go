// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pagebound/scrape/internal/auth"
	"github.com/pagebound/scrape/internal/cache"
	"github.com/pagebound/scrape/internal/config"
	"github.com/pagebound/scrape/internal/engine"
	"github.com/pagebound/scrape/internal/ratelimit"
	"github.com/pagebound/scrape/internal/retry"
	"github.com/pagebound/scrape/internal/session"
	"github.com/pagebound/scrape/internal/transport"
)

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once at startup and shared across all commands and
// transports. Use Close() to ensure proper resource cleanup on shutdown.
type Application struct {
	Config       *config.Config
	Logger       *zerolog.Logger
	Cache        *cache.MemoryCache
	RateLimiter  ratelimit.RateLimiter
	Sessions     *session.Manager
	AuthStore    *auth.Store
	Orchestrator *engine.Orchestrator
	Invoker      *transport.Invoker
	startTime    time.Time
}

// New creates and initializes a new Application with all dependencies.
//
// The browser process itself starts lazily on the first session
// acquisition, so creating the Application is cheap even when the
// command never scrapes.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := initLogger(cfg)

	var memCache *cache.MemoryCache
	var cc cache.Cache
	if cfg.CacheEnabled {
		memCache = cache.NewMemoryCache(cfg.CacheMaxEntries, cfg.CacheTTL)
		cc = memCache
		logger.Debug().
			Int("max_entries", cfg.CacheMaxEntries).
			Dur("ttl", cfg.CacheTTL).
			Msg("Result cache initialized")
	}

	rateLimiter := ratelimit.NewDomainLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	logger.Debug().
		Float64("rps", cfg.RateLimitRPS).
		Int("burst", cfg.RateLimitBurst).
		Msg("Rate limiter initialized")

	driver := session.NewCDPDriver(session.CDPOptions{
		Headless:   cfg.BrowserHeadless,
		ChromePath: cfg.ChromePath,
		UserAgent:  cfg.UserAgent,
		Proxy:      cfg.Proxy,
	})

	sessions := session.NewManager(driver, session.Config{
		MaxSessions:      cfg.MaxSessions,
		AcquireTimeout:   cfg.AcquireTimeout,
		IdleTTL:          cfg.IdleTTL,
		HealthTimeout:    cfg.HealthTimeout,
		StepTimeout:      cfg.StepTimeout,
		StabilityTimeout: cfg.StabilityTimeout,
		ConnectRetry:     retry.DefaultPolicy(),
	})
	logger.Debug().
		Int("max_sessions", cfg.MaxSessions).
		Dur("idle_ttl", cfg.IdleTTL).
		Msg("Session pool initialized")

	store := auth.NewStore()

	basePolicy := retry.DefaultPolicy()
	basePolicy.InitialBackoff = cfg.InitialBackoff
	orch := engine.New(sessions, rateLimiter, store, engine.Options{
		AcquireRetry:          basePolicy.WithAttempts(cfg.AcquireAttempts),
		NavigateRetry:         basePolicy.WithAttempts(cfg.NavigateAttempts),
		RequestAttempts:       cfg.RequestAttempts,
		ShareNavigationBudget: cfg.ShareNavigationBudget,
		DefaultTimeout:        cfg.DefaultTimeout,
	})

	app := &Application{
		Config:       cfg,
		Logger:       &logger,
		Cache:        memCache,
		RateLimiter:  rateLimiter,
		Sessions:     sessions,
		AuthStore:    store,
		Orchestrator: orch,
		Invoker:      transport.NewInvoker(orch, cc),
		startTime:    time.Now(),
	}

	logger.Info().Msg("Application initialized successfully")
	return app, nil
}

func initLogger(cfg *config.Config) zerolog.Logger {
	logLevel := zerolog.InfoLevel
	switch cfg.LogLevel {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var logWriter io.Writer
	if cfg.JSONLog {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
		})
	}

	logger := log.Output(logWriter).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// Close gracefully shuts down the application and all its resources.
//
// Any errors during shutdown are logged but do not prevent other
// shutdown steps.
func (a *Application) Close(ctx context.Context) error {
	a.Logger.Info().Msg("Shutting down application")

	if a.Sessions != nil {
		if err := a.Sessions.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing session pool")
		}
	}

	if a.Cache != nil {
		a.Cache.Close()
	}

	uptime := time.Since(a.startTime)
	a.Logger.Info().Dur("uptime", uptime).Msg("Application shutdown complete")
	return nil
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
