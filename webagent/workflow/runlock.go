// Copyright 2025 WebAgent
// SPDX-License-Identifier: BUSL-1.1

package workflow

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// redisLockPrefix namespaces run lock keys in a shared Redis.
const redisLockPrefix = "webagent:runlock:"

// releaseScript deletes the lock key only when it still holds our token,
// so an expired lock reacquired by another run is never released by us.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0`)

// RedisLocker grants the per-task mutation lock via SETNX with a TTL. The
// TTL bounds how long a crashed run can block repairs for its task.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker. A non-positive ttl defaults to five
// minutes.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// Acquire takes the task's run lock. When Redis itself is unreachable the
// locker fails open: the store's version compare-and-set remains the
// authoritative guard, and refusing every repair during a Redis outage
// would be worse than racing one.
func (l *RedisLocker) Acquire(ctx context.Context, taskID string) (func(), error) {
	key := redisLockPrefix + taskID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return func() {}, nil
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		releaseScript.Run(ctx, l.client, []string{key}, token)
	}, nil
}
