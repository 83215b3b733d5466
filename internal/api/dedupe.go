package api

import (
	"context"
	"time"

	"whatsapp-agent/backend/pkg/cache"
)

// Claimer marks a webhook delivery as taken. Claim reports false when the key was already claimed.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// CacheClaimer claims keys in the process-local cache when redis is not configured
type CacheClaimer struct {
	cache *cache.Cache[struct{}]
}

// NewCacheClaimer wraps c
func NewCacheClaimer(c *cache.Cache[struct{}]) *CacheClaimer {
	return &CacheClaimer{cache: c}
}

// Claim implements Claimer
func (c *CacheClaimer) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	return c.cache.SetIfAbsent(key, struct{}{}, ttl), nil
}

func dedupeKey(messageID string) string {
	return "wa:msg:" + messageID
}
