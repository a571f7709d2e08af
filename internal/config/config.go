package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// Config holds application configuration values
type Config struct {
	// Logging
	LogLevel string
	JSONLog  bool

	// HTTP server
	ServerHost string
	ServerPort int
	AuthToken  string

	// Browser
	BrowserHeadless bool
	ChromePath      string
	UserAgent       string
	Proxy           string

	// Session pool
	MaxSessions      int
	AcquireTimeout   time.Duration
	IdleTTL          time.Duration
	HealthTimeout    time.Duration
	StepTimeout      time.Duration
	StabilityTimeout time.Duration

	// Retry budgets
	AcquireAttempts       int
	NavigateAttempts      int
	RequestAttempts       int
	ShareNavigationBudget bool
	InitialBackoff        time.Duration

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Caching
	CacheEnabled    bool
	CacheMaxEntries int
	CacheTTL        time.Duration

	// Requests
	DefaultTimeout time.Duration
}

// Load builds a Config by combining defaults, environment variables, and CLI flags.
// Caller should pass the root *cobra.Command so flags can be read.
func Load(cmd *cobra.Command) (*Config, error) {
	cfg := &Config{
		LogLevel:         DefaultLogLevel,
		JSONLog:          DefaultJSONLog,
		ServerHost:       DefaultServerHost,
		ServerPort:       DefaultServerPort,
		BrowserHeadless:  DefaultBrowserHeadless,
		UserAgent:        DefaultUserAgent,
		MaxSessions:      DefaultMaxSessions,
		AcquireTimeout:   DefaultAcquireTimeout,
		IdleTTL:          DefaultIdleTTL,
		HealthTimeout:    DefaultHealthTimeout,
		StepTimeout:      DefaultStepTimeout,
		StabilityTimeout: DefaultStabilityTimeout,
		AcquireAttempts:  DefaultAcquireAttempts,
		NavigateAttempts: DefaultNavigateAttempts,
		RequestAttempts:  DefaultRequestAttempts,
		InitialBackoff:   DefaultInitialBackoff,
		RateLimitRPS:     DefaultRateLimitRPS,
		RateLimitBurst:   DefaultRateLimitBurst,
		CacheEnabled:     DefaultCacheEnabled,
		CacheMaxEntries:  DefaultCacheMaxEntries,
		CacheTTL:         DefaultCacheTTL,
		DefaultTimeout:   DefaultRequestTimeout,
	}

	// Override from environment variables (simple helpers)
	if v := os.Getenv("SCRAPE_USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := os.Getenv("SCRAPE_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SCRAPE_CHROME_PATH"); v != "" {
		cfg.ChromePath = v
	}
	if v := os.Getenv("SCRAPE_AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}
	if v := os.Getenv("SCRAPE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.ServerPort = p
		}
	}
	if v := os.Getenv("SCRAPE_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSessions = n
		}
	}

	// Read CLI flags if provided
	if cmd != nil {
		if f := cmd.Flags().Lookup("user-agent"); f != nil {
			if s := f.Value.String(); s != "" {
				cfg.UserAgent = s
			}
		}
		if f := cmd.Flags().Lookup("proxy"); f != nil {
			if s := f.Value.String(); s != "" {
				cfg.Proxy = s
			}
		}
		if f := cmd.Flags().Lookup("chrome-path"); f != nil {
			if s := f.Value.String(); s != "" {
				cfg.ChromePath = s
			}
		}
		if f := cmd.Flags().Lookup("timeout"); f != nil && f.Changed {
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.DefaultTimeout = d
			}
		}
		if f := cmd.Flags().Lookup("sessions"); f != nil && f.Changed {
			if n, err := strconv.Atoi(f.Value.String()); err == nil {
				cfg.MaxSessions = n
			}
		}
		if f := cmd.Flags().Lookup("headful"); f != nil {
			if f.Value.String() == "true" {
				cfg.BrowserHeadless = false
			}
		}
		if f := cmd.Flags().Lookup("no-cache"); f != nil {
			if f.Value.String() == "true" {
				cfg.CacheEnabled = false
			}
		}
		if f := cmd.Flags().Lookup("json"); f != nil {
			if f.Value.String() == "true" {
				cfg.JSONLog = true
			}
		}
		if f := cmd.Flags().Lookup("verbose"); f != nil {
			if f.Value.String() == "true" {
				cfg.LogLevel = "debug"
			}
		}
		if f := cmd.Flags().Lookup("quiet"); f != nil {
			if f.Value.String() == "true" {
				cfg.LogLevel = "error"
			}
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
