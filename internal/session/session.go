// Package session implements the authenticator and session store of
// spec §4.3: resolving (username, secret) to a uid via the Odoo RPC pool,
// issuing opaque session ids with inactivity TTL, and reaping expired
// entries with a background sweeper. The store interface itself is
// grounded on the small CRUD-shaped SessionStore ports used across the
// example corpus (e.g. AutoCookies-gslice's ports.SessionStore); the
// dual memory/Redis backends follow the teacher's
// sessions/memoryhost-vs-sessions/redishost split.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/odoomcp/gateway/internal/gwerr"
)

// Session is the server-side authorization record spec §3 describes.
type Session struct {
	ID         string
	UID        int64
	CreatedAt  time.Time
	LastUsedAt time.Time
	TTL        time.Duration
}

func (s Session) expired(now time.Time) bool {
	return now.After(s.LastUsedAt.Add(s.TTL))
}

// Store is the persistence contract shared by the memory and Redis
// implementations.
type Store interface {
	Put(ctx context.Context, s Session) error
	Touch(ctx context.Context, id string, now time.Time) (Session, bool, error)
	Delete(ctx context.Context, id string) error
	Sweep(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// Authenticator is the narrow capability the dispatcher depends on
// (spec §9: "break cyclic objects with capability interfaces"), rather
// than the concrete session.Manager.
type Authenticator interface {
	CreateSession(ctx context.Context, username, secret string) (Session, error)
	Resolve(ctx context.Context, sessionID string) (int64, error)
	Destroy(ctx context.Context, sessionID string) error
}

// PoolAuthenticate is the narrow slice of the connection pool the
// Manager needs: acquire a handler, authenticate, release.
type PoolAuthenticate func(ctx context.Context, username, secret string) (uid int64, err error)

// Manager implements Authenticator on top of a Store and a pool
// authentication capability.
type Manager struct {
	store       Store
	authenticate PoolAuthenticate
	ttl         time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewManager builds a Manager. sweepInterval <= 0 disables the background
// sweep (tests may drive Store.Sweep manually instead).
func NewManager(store Store, authenticate PoolAuthenticate, ttl, sweepInterval time.Duration) *Manager {
	m := &Manager{store: store, authenticate: authenticate, ttl: ttl, stop: make(chan struct{})}
	if sweepInterval > 0 {
		m.wg.Add(1)
		go m.sweepLoop(sweepInterval)
	}
	return m
}

func (m *Manager) sweepLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_, _ = m.store.Sweep(context.Background(), time.Now())
		case <-m.stop:
			return
		}
	}
}

// CreateSession authenticates against Odoo and, on success, mints a new
// opaque session id.
func (m *Manager) CreateSession(ctx context.Context, username, secret string) (Session, error) {
	uid, err := m.authenticate(ctx, username, secret)
	if err != nil {
		return Session{}, err
	}
	id, err := newSessionID()
	if err != nil {
		return Session{}, gwerr.Wrap(gwerr.KindInternal, err, "generate session id")
	}
	now := time.Now()
	s := Session{ID: id, UID: uid, CreatedAt: now, LastUsedAt: now, TTL: m.ttl}
	if err := m.store.Put(ctx, s); err != nil {
		return Session{}, gwerr.Wrap(gwerr.KindSession, err, "persist session")
	}
	return s, nil
}

// Resolve touches last_used and returns the session's uid, or a
// KindSession error if the id is unknown or expired.
func (m *Manager) Resolve(ctx context.Context, sessionID string) (int64, error) {
	s, ok, err := m.store.Touch(ctx, sessionID, time.Now())
	if err != nil {
		return 0, gwerr.Wrap(gwerr.KindSession, err, "resolve session")
	}
	if !ok {
		return 0, gwerr.New(gwerr.KindSession, "session not found or expired")
	}
	return s.UID, nil
}

// Destroy idempotently removes a session.
func (m *Manager) Destroy(ctx context.Context, sessionID string) error {
	return m.store.Delete(ctx, sessionID)
}

// Close stops the background sweeper and the underlying store.
func (m *Manager) Close() error {
	close(m.stop)
	m.wg.Wait()
	return m.store.Close()
}

func newSessionID() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

var _ Authenticator = (*Manager)(nil)
