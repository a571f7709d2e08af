// Package session owns the lifecycle of browser-driver sessions: pooled
// acquisition, health checks, navigation, and teardown. The driver
// process is reachable only through the Driver capability; no other
// component talks to the browser directly.
package session

import (
	"context"
	"time"

	"github.com/pagebound/scrape/pkg/models"
)

// Driver opens protocol sessions against the browser-driver process.
type Driver interface {
	// Connect opens one new browser tab/context. The returned session
	// is exclusively owned by the caller until Close.
	Connect(ctx context.Context) (ProtocolSession, error)

	// Close tears down the driver connection and every session it owns.
	Close() error
}

// ProtocolSession is the command surface of a single live browser
// tab/context. Implementations translate to the driver's wire protocol;
// errors returned here are raw protocol errors, translated into the
// taxonomy by the Manager.
type ProtocolSession interface {
	ID() string
	Navigate(ctx context.Context, url string) error
	SetCookies(ctx context.Context, cookies []models.Cookie) error
	Perform(ctx context.Context, step models.NavigationStep) error
	WaitReady(ctx context.Context, selector string) error
	HTML(ctx context.Context) (string, error)
	CurrentURL(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Session is one pooled driver connection. It is exclusively owned by at
// most one in-flight request at a time; the Manager enforces this by
// keeping idle and busy sessions in disjoint sets.
type Session struct {
	id         string
	proto      ProtocolSession
	currentURL string
	busy       bool
	createdAt  time.Time
	lastActive time.Time
}

// ID returns the opaque session identifier issued by the driver.
func (s *Session) ID() string {
	return s.id
}

// CurrentURL returns the last URL the session settled on.
func (s *Session) CurrentURL() string {
	return s.currentURL
}

// Age returns how long the session has existed.
func (s *Session) Age() time.Duration {
	return time.Since(s.createdAt)
}

// NavigationOutcome is the rendered result of a successful navigation.
type NavigationOutcome struct {
	HTML     string
	FinalURL string
}
