package config

import "fmt"

func validate(c *Config) error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if c.MaxSessions <= 0 || c.MaxSessions > DefaultMaxSessionsCap {
		return fmt.Errorf("session pool size must be between 1 and %d", DefaultMaxSessionsCap)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("acquire timeout must be > 0")
	}
	if c.DefaultTimeout <= 0 {
		return fmt.Errorf("default request timeout must be > 0")
	}
	if c.RequestAttempts <= 0 || c.NavigateAttempts <= 0 || c.AcquireAttempts <= 0 {
		return fmt.Errorf("retry attempts must be > 0")
	}
	if c.CacheEnabled && c.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be > 0")
	}
	return nil
}
