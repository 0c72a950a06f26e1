package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// Redis is a Locker shared by every process using the same Redis.
type Redis struct {
	client *redis.Client
	script *redis.Script
	prefix string
}

// NewRedis creates a Redis locker. Keys are stored under prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = "cloudbill:lock:"
	}
	return &Redis{
		client: client,
		script: redis.NewScript(releaseScript),
		prefix: prefix,
	}
}

func (l *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if err := checkArgs(key, ttl); err != nil {
		return "", false, err
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Release deletes the key only while token still owns it.
func (l *Redis) Release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{l.prefix + key}, token).Err()
}

// Ping checks the Redis connection.
func (l *Redis) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
