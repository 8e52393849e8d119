package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// LockScope names what an order lock protects. Keys are
// orderflow:lock:<scope>:<id>.
type LockScope string

const (
	ScopePaymentCallback LockScope = "payment:callback"

	lockKeyPrefix = "orderflow:lock:"
)

var (
	ErrLockNotConfigured = errors.New("ratelimit: lock client not configured")
	ErrLockKeyEmpty      = errors.New("ratelimit: lock scope and id are required")
	ErrLockTTL           = errors.New("ratelimit: lock ttl must be positive")
)

// releaseIfHolder deletes the key only while it still carries the holder's
// token, so a lease that expired and went to someone else stays put.
var releaseIfHolder = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short leases on order resources across API replicas.
type Locker struct {
	client redis.UniversalClient
}

func NewLocker(client redis.UniversalClient) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

func lockKey(scope LockScope, id string) (string, error) {
	id = strings.TrimSpace(id)
	if scope == "" || id == "" {
		return "", ErrLockKeyEmpty
	}
	return lockKeyPrefix + string(scope) + ":" + id, nil
}

// Acquire returns the lease token, or ok=false while someone else holds it.
func (l *Locker) Acquire(ctx context.Context, scope LockScope, id string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrLockNotConfigured
	}
	if ttl <= 0 {
		return "", false, ErrLockTTL
	}
	key, err := lockKey(scope, id)
	if err != nil {
		return "", false, err
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release is a no-op without a token or once the lease has passed on.
func (l *Locker) Release(ctx context.Context, scope LockScope, id, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	key, err := lockKey(scope, id)
	if err != nil {
		return err
	}
	return releaseIfHolder.Run(ctx, l.client, []string{key}, token).Err()
}
