package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginRateLimiter cuenta logins fallidos por clave con ventana decreciente.
type LoginRateLimiter interface {
	Attempts(ctx context.Context, key string) (int, error)
	Fail(ctx context.Context, key string) (int, error)
	RetryAfter(ctx context.Context, key string) (time.Duration, error)
	Reset(ctx context.Context, key string) error
}

const loginFailScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

var loginFailLua = redis.NewScript(loginFailScript)

type redisLoginRateLimiter struct {
	client redis.UniversalClient
	window time.Duration
	prefix string
}

// NewRedisLoginRateLimiter crea un limiter respaldado en Redis. La clave vive
// bajo login_attempts:<email> y expira sola al cerrar la ventana.
func NewRedisLoginRateLimiter(client redis.UniversalClient, window time.Duration) LoginRateLimiter {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &redisLoginRateLimiter{
		client: client,
		window: window,
		prefix: "login_attempts:",
	}
}

func (l *redisLoginRateLimiter) Attempts(ctx context.Context, key string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	n, err := l.client.Get(ctx, l.prefix+normalizeEmail(key)).Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, storeErr(err)
	}
	return n, nil
}

func (l *redisLoginRateLimiter) Fail(ctx context.Context, key string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	seconds := int(l.window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	count, err := loginFailLua.Run(ctx, l.client, []string{l.prefix + normalizeEmail(key)}, seconds).Int()
	if err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

func (l *redisLoginRateLimiter) RetryAfter(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	ttl, err := l.client.PTTL(ctx, l.prefix+normalizeEmail(key)).Result()
	if err != nil {
		return 0, storeErr(err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (l *redisLoginRateLimiter) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := l.client.Del(ctx, l.prefix+normalizeEmail(key)).Err(); err != nil {
		return storeErr(err)
	}
	return nil
}
