package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/cartsync"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/metrics"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/session"
)

// GuestKeyPrefix prefixes the guest store key of every session.
const GuestKeyPrefix = "guestCart:"

// SessionManagerConfig tunes a SessionManager.
type SessionManagerConfig struct {
	// IdleTTL evicts sessions not used for this long.
	IdleTTL time.Duration

	// OpTimeout bounds each store call of a session's synchronizer.
	OpTimeout time.Duration
}

// SessionDeps are shared by every session of a manager.
type SessionDeps struct {
	Users    repository.UserStore
	Guests   repository.GuestStore
	Products ProductLookup
	Events   event.Publisher
	Logger   *slog.Logger
}

// SessionManager owns the cart sessions of the server, keyed by session id.
type SessionManager struct {
	deps SessionDeps
	cfg  SessionManagerConfig
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*CartSession
}

// NewSessionManager creates an empty manager.
func NewSessionManager(deps SessionDeps, cfg SessionManagerConfig) *SessionManager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &SessionManager{
		deps:     deps,
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*CartSession),
	}
}

// GuestKey returns the guest store key of sessionID.
func GuestKey(sessionID string) string {
	return GuestKeyPrefix + sessionID
}

// Session returns the session for id, starting it on first use.
func (m *SessionManager) Session(id string) *CartSession {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		s.touch(now)
		return s
	}

	store := domain.NewStore()
	resolver := session.NewResolver()
	s := &CartSession{
		id:       id,
		store:    store,
		resolver: resolver,
		products: m.deps.Products,
		logger:   m.deps.Logger,
	}
	s.sync = cartsync.New(cartsync.Deps{
		Store:    store,
		Resolver: resolver,
		Users:    m.deps.Users,
		Guests:   m.deps.Guests,
		Events:   m.deps.Events,
		Logger:   m.deps.Logger.With(slog.String("session_id", id)),
	}, cartsync.Config{
		GuestKey:  GuestKey(id),
		OpTimeout: m.cfg.OpTimeout,
	})
	s.touch(now)

	m.sessions[id] = s
	metrics.SessionsActive.Set(float64(len(m.sessions)))
	m.deps.Logger.Debug("cart session started", slog.String("session_id", id))
	return s
}

// Len returns the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle flushes and closes every session idle for longer than the TTL
// and returns how many were evicted.
func (m *SessionManager) EvictIdle(ctx context.Context) int {
	now := m.now()

	m.mu.Lock()
	var idle []*CartSession
	for id, s := range m.sessions {
		if s.idleSince(now) > m.cfg.IdleTTL {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	metrics.SessionsActive.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, s := range idle {
		m.stop(ctx, s)
	}
	if len(idle) > 0 {
		m.deps.Logger.InfoContext(ctx, "evicted idle cart sessions", slog.Int("count", len(idle)))
	}
	return len(idle)
}

// Run evicts idle sessions periodically until ctx is done.
func (m *SessionManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.EvictIdle(ctx)
		}
	}
}

// Shutdown flushes and closes every session.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	all := make([]*CartSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	clear(m.sessions)
	metrics.SessionsActive.Set(0)
	m.mu.Unlock()

	var errs []error
	for _, s := range all {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
		s.Close()
	}
	return errors.Join(errs...)
}

func (m *SessionManager) stop(ctx context.Context, s *CartSession) {
	if err := s.Flush(ctx); err != nil {
		m.deps.Logger.WarnContext(ctx, "failed to flush cart session",
			slog.String("session_id", s.id),
			slog.String("error", err.Error()),
		)
	}
	s.Close()
}
