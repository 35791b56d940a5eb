package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a lease held with SET NX PX. The lease outlives a crashed
// holder by at most ttl.
type RedisLock struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisLock(client redis.UniversalClient, key string, ttl time.Duration, logger zerolog.Logger) *RedisLock {
	return &RedisLock{
		client: client,
		key:    key,
		ttl:    ttl,
		logger: logger.With().Str("component", "redis_lock").Str("key", key).Logger(),
	}
}

func (l *RedisLock) TryLock(ctx context.Context) (func(), bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to set lock key: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	unlock := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err(); err != nil {
			l.logger.Warn().Err(err).Msg("failed to release lock, it will expire")
		}
	}
	return unlock, true, nil
}

// NewRedisClient builds a client from a redis:// or rediss:// URL.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

func newToken() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
