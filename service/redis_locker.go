package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnTengye/contracthub/config"
	"github.com/AnTengye/contracthub/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every replica using the same Redis.
// Locks expire after ttl.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client *redis.Client, ttl, retry time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: "contracthub:lock:",
		ttl:    ttl,
		retry:  retry,
	}
}

// NewRedisLockerFromConfig connects to Redis and verifies the connection.
func NewRedisLockerFromConfig(ctx context.Context, cfg *config.LockConfig) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisLocker(client,
		time.Duration(cfg.TTLSeconds)*time.Second,
		time.Duration(cfg.RetryMillis)*time.Millisecond,
	), nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			logger.Warn(ctx, "failed to release lock", "key", key, "error", err)
		}
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}
