package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateResolveDestroy(t *testing.T) {
	store := NewMemoryStore()
	mgr := NewManager(store, func(ctx context.Context, username, secret string) (int64, error) {
		return 42, nil
	}, time.Minute, 0)
	defer mgr.Close()

	ctx := context.Background()
	s, err := mgr.CreateSession(ctx, "admin", "secret")
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.EqualValues(t, 42, s.UID)

	uid, err := mgr.Resolve(ctx, s.ID)
	require.NoError(t, err)
	require.EqualValues(t, 42, uid)

	require.NoError(t, mgr.Destroy(ctx, s.ID))
	_, err = mgr.Resolve(ctx, s.ID)
	require.Error(t, err)
}

func TestResolveExpiredSessionFails(t *testing.T) {
	store := NewMemoryStore()
	mgr := NewManager(store, func(ctx context.Context, username, secret string) (int64, error) {
		return 1, nil
	}, time.Millisecond, 0)
	defer mgr.Close()

	ctx := context.Background()
	s, err := mgr.CreateSession(ctx, "u", "s")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = mgr.Resolve(ctx, s.ID)
	require.Error(t, err)
}

func TestCreateSessionPropagatesAuthFailure(t *testing.T) {
	store := NewMemoryStore()
	authErr := context.DeadlineExceeded
	mgr := NewManager(store, func(ctx context.Context, username, secret string) (int64, error) {
		return 0, authErr
	}, time.Minute, 0)
	defer mgr.Close()

	_, err := mgr.CreateSession(context.Background(), "u", "s")
	require.ErrorIs(t, err, authErr)
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, Session{ID: "a", TTL: time.Millisecond, LastUsedAt: time.Now()}))
	time.Sleep(5 * time.Millisecond)

	n, err := store.Sweep(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, ok, err := store.Touch(ctx, "a", time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}
