package locker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker provides mutual exclusion keyed by a contended resource.
// Check-then-write sequences in the booking and signup services run
// under a lock scoped to the resource key, never a global lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

const (
	acquireRetryDelay = 25 * time.Millisecond
	acquireTimeout    = 3 * time.Second
)

// WithLock acquires the key, runs fn and releases. Acquisition retries
// until acquireTimeout or context cancellation.
func WithLock(ctx context.Context, l Locker, key string, ttl time.Duration, fn func() error) error {
	deadline := time.Now().Add(acquireTimeout)
	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = l.Unlock(releaseCtx, key, token)
			}()
			return fn()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("acquire lock %s: timed out", key)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-time.After(acquireRetryDelay):
		}
	}
}

// RedisLocker implements Locker with SET NX and an ownership token so a
// lock can only be released by the holder that acquired it.
type RedisLocker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLocker builds a Redis-backed locker.
func NewRedisLocker(client *redis.Client, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, logger: logger}
}

// TryLock attempts a non-blocking acquisition of key.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("setnx %s: %w", key, err)
	}
	if !acquired {
		return "", false, nil
	}
	return token, true, nil
}

// Unlock releases key when the stored token matches.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	stored, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get lock %s: %w", key, err)
	}
	if stored != token {
		l.logger.Warn("lock ownership mismatch on unlock", zap.String("key", key))
		return fmt.Errorf("lock %s not owned by this holder", key)
	}
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// MemoryLocker is a process-local Locker used in tests and single-node
// deployments without Redis.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]string
}

// NewMemoryLocker builds an empty in-memory locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]string)}
}

// TryLock acquires key if it is not currently held.
func (l *MemoryLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[key]; held {
		return "", false, nil
	}
	token := uuid.NewString()
	l.locks[key] = token
	return token, true, nil
}

// Unlock releases key when token matches the holder.
func (l *MemoryLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored, held := l.locks[key]
	if !held {
		return nil
	}
	if stored != token {
		return fmt.Errorf("lock %s not owned by this holder", key)
	}
	delete(l.locks, key)
	return nil
}
