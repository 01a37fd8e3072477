package lock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/warmtransfer/pkg/lock"
	"github.com/aretw0/warmtransfer/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_SerializesSameKey(t *testing.T) {
	m := lock.New()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithLock(ctx, "session:r1", func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, m.Held(), "entries must be garbage collected")
}

func TestManager_DifferentKeysDoNotBlock(t *testing.T) {
	m := lock.New()
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = m.WithLock(ctx, "session:a", func(ctx context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	finished := make(chan struct{})
	go func() {
		_ = m.WithLock(ctx, "session:b", func(ctx context.Context) error { return nil })
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("lock on unrelated key blocked")
	}
	close(done)
}

func TestManager_WithLocksOrdersKeys(t *testing.T) {
	m := lock.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		keys := []string{"session:a", "session:b"}
		if i%2 == 1 {
			keys = []string{"session:b", "session:a", "session:b"}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.WithLocks(ctx, keys, func(ctx context.Context) error { return nil }))
		}()
	}

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("WithLocks deadlocked")
	}
}

type fakeLocker struct {
	mu       sync.Mutex
	locked   []string
	unlocked []string
	err      error
}

func (f *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	f.locked = append(f.locked, key)
	f.mu.Unlock()
	return func(ctx context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.unlocked = append(f.unlocked, key)
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	fl := &fakeLocker{}
	m := lock.New(lock.WithLocker(fl), lock.WithTTL(time.Second))

	err := m.WithLock(context.Background(), "transfer:t1", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"transfer:t1"}, fl.locked)
	assert.Equal(t, []string{"transfer:t1"}, fl.unlocked)

	fl.err = errors.New("redis down")
	called := false
	err = m.WithLock(context.Background(), "transfer:t1", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}
