// Package lease provides the run lease that keeps two refresh runs from
// mutating content at the same time.
package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/agentstation/freshen/pkg/constants"
	"github.com/agentstation/freshen/pkg/errors"
)

// DefaultKey is the redis key of the refresh lease.
const DefaultKey = "freshen:refresh:lease"

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Redis is a lease held as a redis key with a TTL. The TTL bounds how long a
// crashed holder can block later runs.
type Redis struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedis returns a lease on key. Empty key and non-positive ttl use defaults.
func NewRedis(client redis.Cmdable, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = constants.LeaseTTL
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// Acquire takes the lease without blocking. The returned release deletes the
// key only while this holder still owns it.
func (l *Redis) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, errors.WrapResource("acquire", "lease", l.key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrLeaseHeld, l.key)
	}
	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Int()
		if err != nil {
			return errors.WrapResource("release", "lease", l.key, err)
		}
		if n == 0 {
			return fmt.Errorf("lease %s expired before release", l.key)
		}
		return nil
	}, nil
}

// Local is an in-process lease for single-instance deployments.
type Local struct {
	mu sync.Mutex
}

// Acquire takes the lease without blocking.
func (l *Local) Acquire(ctx context.Context) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.mu.TryLock() {
		return nil, errors.ErrLeaseHeld
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, nil
}
