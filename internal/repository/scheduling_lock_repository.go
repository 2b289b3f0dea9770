package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// SchedulingLockRepository provides short-lived mutual exclusion over Redis with
// SET NX PX. A nil client grants every lock.
type SchedulingLockRepository struct {
	client *redis.Client
	prefix string
}

// NewSchedulingLockRepository constructs a SchedulingLockRepository with keys under prefix.
func NewSchedulingLockRepository(client *redis.Client, prefix string) *SchedulingLockRepository {
	return &SchedulingLockRepository{client: client, prefix: prefix + "lock:"}
}

// Acquire tries to take key for ttl. It returns the token to release with and whether the
// lock was obtained.
func (r *SchedulingLockRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	if r.client == nil {
		return token, true, nil
	}
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return token, ok, nil
}

// Release frees key if token still owns it.
func (r *SchedulingLockRepository) Release(ctx context.Context, key, token string) error {
	if r.client == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
