// Package runlock serializes scoring runs per artifact so two requests
// never fan out over the same product or campaign at once.
package runlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrLocked is returned when another run already holds the key.
var ErrLocked = eris.New("runlock: run already in progress")

// Release gives up a held lock. It is safe to call more than once.
type Release func(ctx context.Context) error

// Locker acquires exclusive, expiring locks by key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

// Key builds the lock key for one artifact of one tenant.
func Key(tenantID, kind, artifactID string) string {
	return "tailorreach:run:" + tenantID + ":" + kind + ":" + artifactID
}

// Memory is an in-process Locker for single-instance deployments and tests.
type Memory struct {
	mu   sync.Mutex
	held map[string]memoryLock
	now  func() time.Time
}

type memoryLock struct {
	token   string
	expires time.Time
}

// NewMemory creates an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]memoryLock), now: time.Now}
}

// Acquire takes key for ttl. An expired holder is replaced.
func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (Release, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, ok := m.held[key]; ok && now.Before(l.expires) {
		return nil, eris.Wrapf(ErrLocked, "key %s", key)
	}

	token := uuid.NewString()
	m.held[key] = memoryLock{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if l, ok := m.held[key]; ok && l.token == token {
			delete(m.held, key)
		}
		return nil
	}, nil
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared across instances through SET NX PX.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps a go-redis client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Acquire takes key for ttl or returns ErrLocked.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, eris.Wrapf(err, "runlock: acquire %s", key)
	}
	if !ok {
		return nil, eris.Wrapf(ErrLocked, "key %s", key)
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var relErr error
		once.Do(func() {
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				relErr = eris.Wrapf(err, "runlock: release %s", key)
				zap.L().Warn("runlock: release failed", zap.String("key", key), zap.Error(err))
			}
		})
		return relErr
	}, nil
}

// Ping checks connectivity to Redis.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return eris.Wrap(err, "runlock: ping")
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
