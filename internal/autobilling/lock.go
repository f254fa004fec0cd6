package autobilling

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const runLockKey = "billing:autobilling:run"

const runLockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// runLocker serializes whole batch runs so an overlapping manual trigger and
// a scheduled trigger never interleave two full passes.
type runLocker interface {
	TryAcquire(ctx context.Context) (release func(context.Context), ok bool, err error)
}

type redisRunLock struct {
	client *redis.Client
	ttl    time.Duration
	script *redis.Script
}

func newRedisRunLock(client *redis.Client, ttl time.Duration) *redisRunLock {
	return &redisRunLock{
		client: client,
		ttl:    ttl,
		script: redis.NewScript(runLockReleaseScript),
	}
}

func (l *redisRunLock) TryAcquire(ctx context.Context) (func(context.Context), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, runLockKey, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) {
		_ = l.script.Run(ctx, l.client, []string{runLockKey}, token).Err()
	}
	return release, true, nil
}

// localRunLock covers single-process deployments and tests without redis.
type localRunLock struct {
	mu sync.Mutex
}

func (l *localRunLock) TryAcquire(context.Context) (func(context.Context), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return func(context.Context) { l.mu.Unlock() }, true, nil
}
