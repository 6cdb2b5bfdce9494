package redisclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLocker(t *testing.T, ttl, wait time.Duration) Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewProviderLocker(client, ttl, wait)
}

func TestWithProviderLockRunsFn(t *testing.T) {
	l := testLocker(t, time.Second, 100*time.Millisecond)

	ran := false
	err := l.WithProviderLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestLockIsExclusive(t *testing.T) {
	l := testLocker(t, time.Second, 50*time.Millisecond)
	providerID := uuid.New()

	err := l.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
		// Nested acquire for the same provider times out.
		inner := l.WithProviderLock(ctx, providerID, func(context.Context) error {
			t.Fatal("nested critical section must not run")
			return nil
		})
		require.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)
}

func TestDistinctProvidersDoNotContend(t *testing.T) {
	l := testLocker(t, time.Second, 50*time.Millisecond)

	err := l.WithProviderLock(context.Background(), uuid.New(), func(ctx context.Context) error {
		return l.WithProviderLock(ctx, uuid.New(), func(context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
}

func TestLockReleasedAfterFn(t *testing.T) {
	l := testLocker(t, time.Second, 50*time.Millisecond)
	providerID := uuid.New()

	require.NoError(t, l.WithProviderLock(context.Background(), providerID, func(context.Context) error {
		return nil
	}))

	// Immediately reacquirable once the first holder returns.
	require.NoError(t, l.WithProviderLock(context.Background(), providerID, func(context.Context) error {
		return nil
	}))
}

func TestWaitingAcquirerGetsLock(t *testing.T) {
	l := testLocker(t, time.Second, 2*time.Second)
	providerID := uuid.New()

	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = l.WithProviderLock(context.Background(), providerID, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()

	<-started
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	// Polls until the holder releases, then enters.
	err := l.WithProviderLock(context.Background(), providerID, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	wg.Wait()
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	l := testLocker(t, time.Second, 5*time.Second)
	providerID := uuid.New()

	err := l.WithProviderLock(context.Background(), providerID, func(ctx context.Context) error {
		inner, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		return l.WithProviderLock(inner, providerID, func(context.Context) error {
			return nil
		})
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
