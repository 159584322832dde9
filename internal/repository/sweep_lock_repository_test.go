package repository

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepLockWithoutRedisAlwaysAcquires(t *testing.T) {
	repo := NewSweepLockRepository(nil, nil)

	release, acquired, err := repo.Acquire(context.Background(), "expiry", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NotNil(t, release)
	release()
	assert.NoError(t, repo.Close())
}

func TestSweepLockReportsBackendErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	repo := NewSweepLockRepository(client, nil)
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release, acquired, err := repo.Acquire(ctx, "renewal", time.Minute)
	require.Error(t, err)
	assert.False(t, acquired)
	assert.NotNil(t, release)
	assert.Contains(t, err.Error(), sweepLockPrefix+"renewal")
}
