package rediscache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a per-key mutex shared between processes. Each lock carries a
// random token so that a holder whose TTL expired cannot release a successor's lock.
type Locker struct {
	c       *redis.Client
	prefix  string
	ttl     time.Duration
	backoff time.Duration
}

func NewLocker(c *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{c: c, prefix: "lock:tracking:", ttl: ttl, backoff: 25 * time.Millisecond}
}

// Lock blocks until the lock is taken or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	k := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.c.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "redis lock")
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				_ = releaseScript.Run(ctx, l.c, []string{k}, token).Err()
			}, nil
		}

		t := time.NewTimer(l.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, errors.Wrap(ctx.Err(), "redis lock wait")
		case <-t.C:
		}
	}
}
