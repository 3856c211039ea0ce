package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/odoomcp/gateway/internal/odoorpc"
	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	closed atomic.Bool
	fail   bool
}

func (f *fakeHandler) Authenticate(ctx context.Context, db, user, secret string) (int64, error) {
	return 1, nil
}
func (f *fakeHandler) ExecuteKw(ctx context.Context, model, method string, positional []any, named map[string]any) (any, error) {
	return nil, nil
}
func (f *fakeHandler) Call(ctx context.Context, service, method string, positional []any) (any, error) {
	if f.fail {
		return nil, errors.New("boom")
	}
	return "ok", nil
}
func (f *fakeHandler) Close() error {
	f.closed.Store(true)
	return nil
}

var _ odoorpc.Handler = (*fakeHandler)(nil)

func TestAcquireReleaseReusesConnection(t *testing.T) {
	var built int32
	p := New(func(ctx context.Context) (odoorpc.Handler, error) {
		atomic.AddInt32(&built, 1)
		return &fakeHandler{}, nil
	}, Options{Size: 2, AcquireTimeout: time.Second})
	defer p.Close()

	ctx := context.Background()
	h1, rel1, err := p.Acquire(ctx)
	require.NoError(t, err)
	rel1(true)

	h2, rel2, err := p.Acquire(ctx)
	require.NoError(t, err)
	rel2(true)

	require.Same(t, h1, h2)
	require.EqualValues(t, 1, built)
}

func TestAcquireRespectsSizeBound(t *testing.T) {
	p := New(func(ctx context.Context) (odoorpc.Handler, error) {
		return &fakeHandler{}, nil
	}, Options{Size: 1, AcquireTimeout: 50 * time.Millisecond})
	defer p.Close()

	ctx := context.Background()
	_, rel, err := p.Acquire(ctx)
	require.NoError(t, err)

	_, _, err = p.Acquire(ctx)
	require.Error(t, err)
	rel(true)
}

func TestReleaseDestroysConnectionAfterFailureBudget(t *testing.T) {
	handler := &fakeHandler{}
	p := New(func(ctx context.Context) (odoorpc.Handler, error) {
		return handler, nil
	}, Options{Size: 1, AcquireTimeout: time.Second, MaxConsecutiveFailures: 2})
	defer p.Close()

	ctx := context.Background()
	_, rel, err := p.Acquire(ctx)
	require.NoError(t, err)
	rel(false)

	_, rel2, err := p.Acquire(ctx)
	require.NoError(t, err)
	rel2(false)

	require.True(t, handler.closed.Load())
	require.Equal(t, 1, p.Stats().Size-p.Stats().Idle-p.Stats().InUse+0) // configured size 1; the evicted connection is neither idle nor in use
}

func TestConstructRetriesThenFails(t *testing.T) {
	var attempts int32
	p := New(func(ctx context.Context) (odoorpc.Handler, error) {
		atomic.AddInt32(&attempts, 1)
		return nil, errors.New("connect refused")
	}, Options{Size: 1, RetryCount: 2, BaseRetryDelay: time.Millisecond, AcquireTimeout: time.Second})
	defer p.Close()

	_, _, err := p.Acquire(context.Background())
	require.Error(t, err)
	require.EqualValues(t, 3, attempts) // 1 initial + 2 retries
}
