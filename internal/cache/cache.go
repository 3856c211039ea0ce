// Package cache implements the read-cache and schema-version tracker of
// spec §4.5, keyed on (db, uid, model, method, args_hash, schema_version)
// so a schema bump invalidates every entry for that model without a scan.
// The memory backend is grounded on the teacher's storage/memory.Storage:
// an LRU capacity bound (github.com/hashicorp/golang-lru/v2) with a
// per-item expiry checked on Get, plus a background sweep goroutine for
// items nobody touches again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the read-through cache interface shared by the memory and Redis
// backends, so the dispatcher does not know which one is active.
type Cache interface {
	Get(ctx context.Context, key Key) (any, bool, error)
	Set(ctx context.Context, key Key, value any, ttl time.Duration) error
	// InvalidateModel bumps the schema version for model, orphaning every
	// cache entry keyed to the previous version (spec §4.5's "schema
	// version" invalidation strategy).
	InvalidateModel(ctx context.Context, model string) error
	SchemaVersion(ctx context.Context, model string) (int64, error)
	Close() error
}

// Key identifies one cached read. Args is hashed rather than embedded
// verbatim to keep key length bounded regardless of domain/field complexity.
type Key struct {
	Database string
	UID      int64
	Model    string
	Method   string
	Args     any
}

func (k Key) hash(schemaVersion int64) (string, error) {
	payload := struct {
		Method string `json:"method"`
		Args   any    `json:"args"`
	}{k.Method, k.Args}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("cache: hash key: %w", err)
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%s:%d:%s:%s:v%d", k.Database, k.UID, k.Model, hex.EncodeToString(sum[:16]), schemaVersion), nil
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Memory is the in-process cache backend.
type Memory struct {
	mu       sync.RWMutex
	items    *lru.Cache[string, *entry]
	versions map[string]int64

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewMemory builds a Memory cache holding at most maxItems entries.
func NewMemory(maxItems int) (*Memory, error) {
	if maxItems <= 0 {
		maxItems = 10000
	}
	items, err := lru.New[string, *entry](maxItems)
	if err != nil {
		return nil, fmt.Errorf("cache: new lru: %w", err)
	}
	m := &Memory{
		items:    items,
		versions: make(map[string]int64),
		stop:     make(chan struct{}),
	}
	m.wg.Add(1)
	go m.sweepLoop()
	return m, nil
}

func (m *Memory) SchemaVersion(ctx context.Context, model string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.versions[model], nil
}

func (m *Memory) InvalidateModel(ctx context.Context, model string) error {
	m.mu.Lock()
	m.versions[model]++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(ctx context.Context, key Key) (any, bool, error) {
	version, _ := m.SchemaVersion(ctx, key.Model)
	storageKey, err := key.hash(version)
	if err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	e, ok := m.items.Get(storageKey)
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		m.mu.Lock()
		m.items.Remove(storageKey)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(ctx context.Context, key Key, value any, ttl time.Duration) error {
	version, _ := m.SchemaVersion(ctx, key.Model)
	storageKey, err := key.hash(version)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.items.Add(storageKey, &entry{value: value, expiresAt: time.Now().Add(ttl)})
	m.mu.Unlock()
	return nil
}

func (m *Memory) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

func (m *Memory) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, k := range m.items.Keys() {
		if e, ok := m.items.Peek(k); ok && now.After(e.expiresAt) {
			m.items.Remove(k)
		}
	}
}

func (m *Memory) Close() error {
	close(m.stop)
	m.wg.Wait()
	m.mu.Lock()
	m.items.Purge()
	m.mu.Unlock()
	return nil
}
