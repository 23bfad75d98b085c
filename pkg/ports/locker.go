package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// The session manager uses it to keep a session's runs exclusive across instances.
type DistributedLocker interface {
	// TryLock attempts to acquire the lock for key without waiting.
	// It returns domain.ErrRunInProgress when another holder owns the lock.
	// The returned UnlockFunc MUST be called to release it; the lock also
	// expires on its own after ttl.
	TryLock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
