package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/ports"
)

// DefaultPrefix namespaces every key written by the locker.
const DefaultPrefix = "pipeprobe:"

// ErrLockAcquire is returned when the lock cannot be acquired.
var ErrLockAcquire = errors.New("failed to acquire distributed lock")

// unlockScript deletes the key only if it still holds our token.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker implements ports.DistributedLocker using Redis.
type Locker struct {
	client *backend.Client
	prefix string
	poll   time.Duration
}

// Option configures the Locker.
type Option func(*Locker)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(l *Locker) { l.prefix = prefix }
}

// WithPollInterval sets how often Lock retries while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(l *Locker) { l.poll = d }
}

// NewLocker creates a new Redis locker.
func NewLocker(client *backend.Client, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		prefix: DefaultPrefix,
		poll:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, opts ...Option) (*Locker, error) {
	client := backend.NewClient(&backend.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewLocker(client, opts...), nil
}

// Close releases the underlying client.
func (l *Locker) Close() error {
	return l.client.Close()
}

// TryLock acquires the lock with a single SET NX PX.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	unlock, ok, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunInProgress, key)
	}
	return unlock, nil
}

// Lock polls until the lock is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		unlock, ok, err := l.acquire(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockAcquire, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *Locker) acquire(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, bool, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis error acquiring lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return func(ctx context.Context) error {
		return l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
	}, true, nil
}
