package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps a go-redis client with the operations the agent needs
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient connects to url, which may be a redis:// URL or a bare host:port
func NewRedisClient(url string) (*RedisClient, error) {
	if url == "" {
		url = "localhost:6379"
	}

	var opts *redis.Options
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     url,
			Password: "", // no password by default
			DB:       0,  // use default DB
		}
	}
	return &RedisClient{client: redis.NewClient(opts)}, nil
}

// Ping checks the connection
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the connection pool
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Claim sets key only if it does not exist yet and reports whether this caller set it
func (r *RedisClient) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
}

// Release deletes a claimed key so the work can be retried
func (r *RedisClient) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
