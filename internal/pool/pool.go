// Package pool implements the bounded connection pool to Odoo (spec §4.2):
// acquire/release with health checks and retrying construction. It is
// grounded on the narrow-capability, explicit-lifecycle idiom used
// throughout the teacher (sessions.SessionHost, broker.Broker: small
// interfaces with Start/Close semantics) rather than on any single
// concrete pool implementation -- no example repo ships a generic
// RPC-handler pool, so the acquire/release/health-probe loop itself is
// original, built from the invariants spec §4.2 states directly.
package pool

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/odoomcp/gateway/internal/gwerr"
	"github.com/odoomcp/gateway/internal/odoorpc"
)

// Factory constructs and authenticates a new Handler.
type Factory func(ctx context.Context) (odoorpc.Handler, error)

// Options configures a Pool.
type Options struct {
	Size                     int
	AcquireTimeout           time.Duration
	RetryCount               int
	BaseRetryDelay           time.Duration
	ConnectionHealthInterval time.Duration
	MaxConsecutiveFailures   int
	Logger                   *slog.Logger
}

type conn struct {
	handler  odoorpc.Handler
	inUse    bool
	lastUsed time.Time
	healthy  bool
	failures int
}

// Pool is a bounded set of Odoo RPC handlers with lazy construction, health
// probing, and retrying replacement (spec §4.2).
type Pool struct {
	factory Factory
	opts    Options
	log     *slog.Logger

	mu    sync.Mutex
	conns []*conn

	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Pool. Connections are constructed lazily on first Acquire,
// up to opts.Size.
func New(factory Factory, opts Options) *Pool {
	if opts.Size <= 0 {
		opts.Size = 1
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 30 * time.Second
	}
	if opts.RetryCount <= 0 {
		opts.RetryCount = 3
	}
	if opts.BaseRetryDelay <= 0 {
		opts.BaseRetryDelay = 200 * time.Millisecond
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 3
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Pool{
		factory: factory,
		opts:    opts,
		log:     opts.Logger,
		stopCh:  make(chan struct{}),
	}
	return p
}

// Release returns a borrowed connection. ok indicates whether the call the
// caller made with it succeeded; failures count toward the retry budget.
type Release func(ok bool)

// Acquire returns the first healthy idle connection, lazily constructing
// one if the pool has capacity, or blocks up to opts.AcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (odoorpc.Handler, Release, error) {
	deadline := time.Now().Add(p.opts.AcquireTimeout)
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, nil, gwerr.New(gwerr.KindPoolConnFail, "pool is closed")
		}
		for _, c := range p.conns {
			if !c.inUse && c.healthy {
				c.inUse = true
				c.lastUsed = time.Now()
				handler := c.handler
				p.mu.Unlock()
				return handler, p.releaseFunc(c), nil
			}
		}
		if len(p.conns) < p.opts.Size {
			c := &conn{}
			p.conns = append(p.conns, c)
			p.mu.Unlock()

			handler, err := p.construct(ctx)
			p.mu.Lock()
			if err != nil {
				p.removeConn(c)
				p.mu.Unlock()
				return nil, nil, err
			}
			c.handler = handler
			c.healthy = true
			c.inUse = true
			c.lastUsed = time.Now()
			p.mu.Unlock()
			return handler, p.releaseFunc(c), nil
		}
		p.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil, gwerr.New(gwerr.KindPoolTimeout, "timed out waiting for a pool connection")
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(minDuration(remaining, 25*time.Millisecond)):
		}
	}
}

func (p *Pool) releaseFunc(c *conn) Release {
	return func(ok bool) {
		p.mu.Lock()
		defer p.mu.Unlock()
		c.inUse = false
		c.lastUsed = time.Now()
		if !ok {
			c.failures++
			if c.failures >= p.opts.MaxConsecutiveFailures {
				p.log.Warn("odoo connection exceeded failure budget, destroying", "failures", c.failures)
				p.removeConn(c)
			}
		} else {
			c.failures = 0
		}
	}
}

// removeConn must be called with p.mu held.
func (p *Pool) removeConn(target *conn) {
	if target.handler != nil {
		_ = target.handler.Close()
	}
	out := p.conns[:0]
	for _, c := range p.conns {
		if c != target {
			out = append(out, c)
		}
	}
	p.conns = out
}

// construct retries handler creation with exponential backoff, per
// spec §4.2's retry policy.
func (p *Pool) construct(ctx context.Context) (odoorpc.Handler, error) {
	var lastErr error
	delay := p.opts.BaseRetryDelay
	for attempt := 0; attempt <= p.opts.RetryCount; attempt++ {
		handler, err := p.factory(ctx)
		if err == nil {
			return handler, nil
		}
		lastErr = err
		if attempt == p.opts.RetryCount {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(delay) / 2 + 1))
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	return nil, gwerr.Wrap(gwerr.KindPoolConnFail, lastErr, "failed to construct odoo connection")
}

// HealthProbe issues a cheap RPC against every idle connection older than
// opts.ConnectionHealthInterval, destroying any that fail (spec §4.2).
func (p *Pool) HealthProbe(ctx context.Context) {
	p.mu.Lock()
	stale := make([]*conn, 0)
	now := time.Now()
	for _, c := range p.conns {
		if !c.inUse && c.healthy && now.Sub(c.lastUsed) >= p.opts.ConnectionHealthInterval {
			stale = append(stale, c)
		}
	}
	p.mu.Unlock()

	for _, c := range stale {
		_, err := c.handler.Call(ctx, "common", "version", nil)
		p.mu.Lock()
		if err != nil {
			p.log.Warn("odoo connection failed health probe, destroying", "error", err)
			p.removeConn(c)
		} else {
			c.lastUsed = time.Now()
		}
		p.mu.Unlock()
	}
}

// StartHealthLoop runs HealthProbe on a ticker until Close is called.
func (p *Pool) StartHealthLoop(ctx context.Context) {
	if p.opts.ConnectionHealthInterval <= 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.opts.ConnectionHealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.HealthProbe(ctx)
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stats reports pool occupancy for the /health endpoint (spec §4.11).
type Stats struct {
	Size    int
	Idle    int
	InUse   int
	Healthy int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Size: p.opts.Size}
	for _, c := range p.conns {
		if c.inUse {
			s.InUse++
		} else {
			s.Idle++
		}
		if c.healthy {
			s.Healthy++
		}
	}
	return s
}

// Close destroys every connection and stops the health loop.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	for _, c := range p.conns {
		if c.handler != nil {
			_ = c.handler.Close()
		}
	}
	p.conns = nil
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
