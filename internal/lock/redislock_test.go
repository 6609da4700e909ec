package lock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/calvindo/checkout-pricing/internal/lock"
)

func newTestLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}
}

// Two workers racing for the sweep lock must serialize: the second sweep
// starts only after the first releases.
func TestWithLockSerializesSweeps(t *testing.T) {
	locker := newTestLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstHeld := make(chan struct{})
	releaseFirst := make(chan struct{})

	go func() {
		err := locker.WithLock(ctx, "lock:cart-sweep", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "sweep-a")
			mu.Unlock()
			close(firstHeld)
			<-releaseFirst
			return nil
		})
		require.NoError(t, err)
	}()

	<-firstHeld

	go func() {
		err := locker.WithLock(ctx, "lock:cart-sweep", 100*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "sweep-b")
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}()

	close(releaseFirst)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"sweep-a", "sweep-b"}, order)
}

func TestWithLockReleasesAfterError(t *testing.T) {
	locker := newTestLocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	boom := errors.New("sweep failed")
	err := locker.WithLock(ctx, "lock:tax-warm", time.Second, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The failed run must not leave the key held.
	var ran atomic.Bool
	err = locker.WithLock(ctx, "lock:tax-warm", time.Second, func(context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran.Load())
}
