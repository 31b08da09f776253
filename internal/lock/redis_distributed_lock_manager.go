package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "scheduler:lease:"

// Only the owner may delete or extend a lease, so both operations compare the
// stored node id before acting.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// RedisDistributedLockManager keeps one key per job whose value is the owning
// node id and whose TTL is the lease expiry.
type RedisDistributedLockManager struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisDistributedLockManager(client redis.UniversalClient, keyPrefix string) *RedisDistributedLockManager {
	if keyPrefix == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisDistributedLockManager{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (l *RedisDistributedLockManager) key(jobID string) string {
	return l.keyPrefix + jobID
}

func (l *RedisDistributedLockManager) Acquire(ctx context.Context, jobID, nodeID string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(jobID), nodeID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease for job %s: %w", jobID, err)
	}
	return ok, nil
}

func (l *RedisDistributedLockManager) Release(ctx context.Context, jobID, nodeID string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(jobID)}, nodeID).Err(); err != nil {
		return fmt.Errorf("failed to release lease for job %s: %w", jobID, err)
	}
	return nil
}

func (l *RedisDistributedLockManager) Refresh(ctx context.Context, jobID, nodeID string, ttl time.Duration) (bool, error) {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key(jobID)}, nodeID, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to refresh lease for job %s: %w", jobID, err)
	}
	return n == 1, nil
}

// Holder returns the node currently holding the lease, or "" when it is free.
func (l *RedisDistributedLockManager) Holder(ctx context.Context, jobID string) (string, error) {
	nodeID, err := l.client.Get(ctx, l.key(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return nodeID, err
}
