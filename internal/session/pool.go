// internal/session/pool.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagebound/scrape/internal/retry"
	"github.com/pagebound/scrape/pkg/models"
)

// Config tunes the session pool.
type Config struct {
	MaxSessions      int           // Fixed ceiling on concurrent sessions
	AcquireTimeout   time.Duration // Wait for a free slot before POOL_EXHAUSTED
	IdleTTL          time.Duration // Idle sessions older than this are torn down
	HealthTimeout    time.Duration // Budget for the pre-reuse ping
	StepTimeout      time.Duration // Default per-step timeout
	StabilityTimeout time.Duration // Budget for the post-navigation stability wait
	ConnectRetry     retry.Policy  // Driver connection retry budget
}

// DefaultConfig returns a sensible pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxSessions:      3,
		AcquireTimeout:   10 * time.Second,
		IdleTTL:          5 * time.Minute,
		HealthTimeout:    2 * time.Second,
		StepTimeout:      20 * time.Second,
		StabilityTimeout: 15 * time.Second,
		ConnectRetry:     retry.DefaultPolicy(),
	}
}

// Manager is the session pool: an arena of live sessions indexed by
// driver-issued ID plus an idle set of sessions available for
// acquisition. Busy sessions appear only in the arena, so the idle-TTL
// sweep can never touch a session that is in use.
type Manager struct {
	driver Driver
	cfg    Config

	mu       sync.Mutex
	sessions map[string]*Session // every live session, idle or busy
	closed   bool

	idle  chan *Session
	slots chan struct{} // capacity tokens; one per allowed session
	stop  chan struct{}
}

// NewManager creates a session pool over the given driver. Sessions are
// created lazily on first acquisition, not up front.
func NewManager(driver Driver, cfg Config) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1
	}

	m := &Manager{
		driver:   driver,
		cfg:      cfg,
		sessions: make(map[string]*Session),
		idle:     make(chan *Session, cfg.MaxSessions),
		slots:    make(chan struct{}, cfg.MaxSessions),
		stop:     make(chan struct{}),
	}
	for i := 0; i < cfg.MaxSessions; i++ {
		m.slots <- struct{}{}
	}

	if cfg.IdleTTL > 0 {
		go m.sweepIdle()
	}

	log.Debug().Int("max_sessions", cfg.MaxSessions).Msg("Session pool ready")
	return m
}

// Acquire returns an exclusively-owned session: a health-checked idle
// one when available, otherwise a freshly connected one if a slot is
// free. Blocks up to AcquireTimeout for a slot, then fails with
// POOL_EXHAUSTED (bounded admission, not unbounded queuing).
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	if m.isClosed() {
		return nil, models.NewScrapeError(models.ErrCodeDriverUnavailable,
			"session pool is closed", nil)
	}

	timer := time.NewTimer(m.cfg.AcquireTimeout)
	defer timer.Stop()

	for {
		// Prefer reusing an idle session over opening a new one.
		select {
		case s := <-m.idle:
			if m.activate(ctx, s) {
				return s, nil
			}
			continue
		default:
		}

		select {
		case s := <-m.idle:
			if m.activate(ctx, s) {
				return s, nil
			}
		case <-m.slots:
			s, err := m.spawn(ctx)
			if err != nil {
				m.slots <- struct{}{}
				return nil, err
			}
			return s, nil
		case <-timer.C:
			return nil, models.NewScrapeError(models.ErrCodePoolExhausted,
				fmt.Sprintf("no session became free within %s", m.cfg.AcquireTimeout), nil).
				AsTransient()
		case <-ctx.Done():
			return nil, models.FromContext(ctx)
		}
	}
}

// Release returns the session to the idle set, or tears it down when the
// last operation signaled a driver-level fault. Must be called exactly
// once per Acquire, on every exit path.
func (m *Manager) Release(s *Session, healthy bool) {
	if s == nil {
		return
	}

	m.mu.Lock()
	closed := m.closed
	s.busy = false
	s.lastActive = time.Now()
	m.mu.Unlock()

	if closed || !healthy {
		m.destroy(s)
		m.freeSlot()
		log.Debug().Str("session_id", s.id).Bool("healthy", healthy).Msg("Session torn down on release")
		return
	}

	select {
	case m.idle <- s:
		log.Debug().Str("session_id", s.id).Msg("Session released to pool")
	default:
		// Idle capacity equals the slot count, so this means double release.
		m.destroy(s)
		m.freeSlot()
		log.Warn().Str("session_id", s.id).Msg("Idle set full, discarding session")
	}
}

// Close tears down every idle session and the driver connection.
// Busy sessions are destroyed when their owners release them.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stop)

	for {
		select {
		case s := <-m.idle:
			m.destroy(s)
		default:
			err := m.driver.Close()
			log.Info().Msg("Session pool closed")
			return err
		}
	}
}

// Stats reports pool occupancy for health endpoints.
func (m *Manager) Stats() (live, idle, capacity int) {
	m.mu.Lock()
	live = len(m.sessions)
	m.mu.Unlock()
	return live, len(m.idle), m.cfg.MaxSessions
}

// activate health-checks an idle session before reuse. A failed ping
// demotes the session to teardown instead of handing it out.
func (m *Manager) activate(ctx context.Context, s *Session) bool {
	pingCtx, cancel := context.WithTimeout(ctx, m.cfg.HealthTimeout)
	err := s.proto.Ping(pingCtx)
	cancel()
	if err != nil {
		log.Debug().Str("session_id", s.id).Err(err).Msg("Health check failed, tearing down session")
		m.destroy(s)
		m.freeSlot()
		return false
	}

	m.mu.Lock()
	s.busy = true
	s.lastActive = time.Now()
	m.mu.Unlock()
	return true
}

// spawn connects a new session, retrying per the driver connection
// budget. Exhaustion surfaces as DRIVER_UNAVAILABLE.
func (m *Manager) spawn(ctx context.Context) (*Session, error) {
	proto, err := retry.Do(ctx, m.cfg.ConnectRetry, func(ctx context.Context) (ProtocolSession, error) {
		p, err := m.driver.Connect(ctx)
		if err != nil {
			return nil, models.NewScrapeError(models.ErrCodeDriverUnavailable,
				"driver connection failed", err).AsTransient()
		}
		return p, nil
	})
	if err != nil {
		if models.CodeOf(err) == models.ErrCodeRetriesExhausted {
			err = models.NewScrapeError(models.ErrCodeDriverUnavailable,
				"driver unreachable after connection retries", err).AsTransient()
		}
		return nil, err
	}

	now := time.Now()
	s := &Session{
		id:         proto.ID(),
		proto:      proto,
		busy:       true,
		createdAt:  now,
		lastActive: now,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		proto.Close()
		return nil, models.NewScrapeError(models.ErrCodeDriverUnavailable,
			"session pool is closed", nil)
	}
	m.sessions[s.id] = s
	m.mu.Unlock()

	log.Debug().Str("session_id", s.id).Msg("Session created")
	return s, nil
}

func (m *Manager) destroy(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
	if err := s.proto.Close(); err != nil {
		log.Debug().Str("session_id", s.id).Err(err).Msg("Error closing session")
	}
}

func (m *Manager) freeSlot() {
	select {
	case m.slots <- struct{}{}:
	default:
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// sweepIdle proactively tears down idle sessions older than the TTL to
// bound resource usage. Only the idle set is examined, so a busy session
// can never be evicted mid-request.
func (m *Manager) sweepIdle() {
	interval := m.cfg.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweepOnce(time.Now())
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) sweepOnce(now time.Time) {
	var keep []*Session
	for {
		select {
		case s := <-m.idle:
			if now.Sub(s.lastActive) > m.cfg.IdleTTL {
				log.Debug().Str("session_id", s.id).Msg("Evicting idle session past TTL")
				m.destroy(s)
				m.freeSlot()
			} else {
				keep = append(keep, s)
			}
		default:
			for _, s := range keep {
				m.idle <- s
			}
			return
		}
	}
}
