package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when another holder owns the lock
var ErrLockHeld = errors.New("lock held by another process")

// releaseScript deletes the key only when it still carries our token
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Locker hands out cross-process mutexes backed by SET NX PX.
// With Redis disabled every Acquire succeeds and Release is a no-op.
type Locker struct {
	client *Client
	prefix string
}

// NewLocker creates a new locker
func NewLocker(client *Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

// Acquire takes the named lock for at most ttl.
// The returned release func must be called once the critical section ends.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	if !l.client.Enabled() {
		return func(context.Context) error { return nil }, nil
	}

	key := fmt.Sprintf("%s:lock:%s", l.prefix, name)
	token := uuid.NewString()

	ok, err := l.client.Redis().SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrLockHeld)
	}

	release := func(ctx context.Context) error {
		return l.client.Redis().Eval(ctx, releaseScript, []string{key}, token).Err()
	}
	return release, nil
}
