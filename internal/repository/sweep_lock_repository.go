package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const sweepLockPrefix = "ledger:sweep:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// SweepLockRepository coordinates sweeps across processes with a redis SETNX lease.
// Without a client every acquire succeeds and the database conditional updates are the
// only guard.
type SweepLockRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewSweepLockRepository constructs the repository. client may be nil.
func NewSweepLockRepository(client *redis.Client, logger *zap.Logger) *SweepLockRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepLockRepository{client: client, logger: logger}
}

// Acquire tries to take the named lock for ttl. The returned release func is never nil.
func (r *SweepLockRepository) Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), acquired bool, err error) {
	noop := func() {}
	if r.client == nil {
		return noop, true, nil
	}

	key := sweepLockPrefix + name
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return noop, false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !ok {
		return noop, false, nil
	}

	return func() {
		// Release with a fresh context; the caller's may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			r.logger.Warn("failed to release sweep lock", zap.String("lock", key), zap.Error(err))
		}
	}, true, nil
}

// Close releases the underlying Redis connection if present.
func (r *SweepLockRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
