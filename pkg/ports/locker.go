package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for cross-process mutual exclusion.
// It lets several coordinator replicas serialize mutations of the same session
// or transfer record.
type DistributedLocker interface {
	// Lock blocks until the lock for key is held or ctx is done.
	// The lock is released by the returned UnlockFunc, or by the store after ttl.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
