// internal/lock/redis.go
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/outreach-backend/internal/logx"
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a lease-based lock shared across processes.
type RedisLocker struct {
	Client    redis.UniversalClient
	Namespace string
	TTL       time.Duration
	Retry     time.Duration
}

func NewRedisLocker(addr, password string) *RedisLocker {
	return &RedisLocker{
		Client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       0,
		}),
		Namespace: "outreach:lock",
		TTL:       30 * time.Second,
		Retry:     100 * time.Millisecond,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	full := l.Namespace + ":" + key
	token := uuid.NewString()

	for {
		ok, err := l.Client.SetNX(ctx, full, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Retry):
		}
	}

	return func() {
		// the caller's ctx may already be cancelled
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.Client, []string{full}, token).Err(); err != nil {
			logx.L().Warnw("lock_release_failed", "key", full, "error", err)
		}
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.Client.Close()
}

var _ Locker = (*RedisLocker)(nil)
