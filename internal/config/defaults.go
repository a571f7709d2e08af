package config

import "time"

// Default constants for application configuration
const (
	DefaultLogLevel         = "info"
	DefaultJSONLog          = false
	DefaultServerHost       = "0.0.0.0"
	DefaultServerPort       = 8080
	DefaultUserAgent        = "Scrape/1.0 (https://github.com/pagebound/scrape)"
	DefaultBrowserHeadless  = true
	DefaultMaxSessions      = 3
	DefaultMaxSessionsCap   = 16
	DefaultAcquireTimeout   = 10 * time.Second
	DefaultIdleTTL          = 5 * time.Minute
	DefaultHealthTimeout    = 2 * time.Second
	DefaultStepTimeout      = 20 * time.Second
	DefaultStabilityTimeout = 15 * time.Second
	DefaultAcquireAttempts  = 2
	DefaultNavigateAttempts = 4
	DefaultRequestAttempts  = 3
	DefaultInitialBackoff   = 1 * time.Second
	DefaultRateLimitRPS     = 5.0
	DefaultRateLimitBurst   = 10
	DefaultCacheEnabled     = true
	DefaultCacheMaxEntries  = 1000
	DefaultCacheTTL         = 15 * time.Minute
	DefaultRequestTimeout   = 60 * time.Second
)
