package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDisabledAlwaysAllows(t *testing.T) {
	l := New(0, 0)
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("client")
		require.True(t, ok)
	}
}

func TestBurstThenDeny(t *testing.T) {
	l := New(60, 0) // 1/sec, burst 60
	allowed := 0
	for i := 0; i < 61; i++ {
		ok, _ := l.Allow("client")
		if ok {
			allowed++
		}
	}
	require.LessOrEqual(t, allowed, 60)
	require.GreaterOrEqual(t, allowed, 1)
}

func TestPerKeyIsolation(t *testing.T) {
	l := New(60, 0)
	for i := 0; i < 60; i++ {
		ok, _ := l.Allow("a")
		require.True(t, ok)
	}
	ok, _ := l.Allow("b")
	require.True(t, ok, "a separate client key must have its own bucket")
}

func TestWaitReturnsRateLimitErrorWhenNoWaitBudget(t *testing.T) {
	l := New(60, 0)
	for i := 0; i < 60; i++ {
		_, _ = l.Allow("client")
	}
	err := l.Wait(context.Background(), "client")
	require.Error(t, err)
}

func TestEvictRemovesIdleBuckets(t *testing.T) {
	l := New(60, 0)
	l.Allow("client")
	require.Equal(t, 1, l.Evict(0))
}

func TestEvictKeepsRecentBuckets(t *testing.T) {
	l := New(60, 0)
	l.Allow("client")
	require.Equal(t, 0, l.Evict(time.Hour))
}
