// Package previewcache is the optional Redis-backed preview cache named
// in spec.md §6, grounded on the original implementation's
// services/cache_redis.py (same key shape, same TTL knob) and wired to
// github.com/redis/go-redis/v9.
package previewcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL matches PREVIEW_CACHE_TTL's default of 600 seconds.
const DefaultTTL = 600 * time.Second

// Cache is a no-op when Client is nil, so callers can always construct
// one and let the REDIS_URL-gated wiring decide whether it does
// anything, matching the original's redis_cache_enabled() gate.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

// New builds a Cache; ttl <= 0 uses DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{Client: client, TTL: ttl}
}

// MakeKey builds the cache key "preview:<model>:<minPreviewTokens>:<sha256(query)>".
func MakeKey(query, model string, minPreviewTokens int) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("preview:%s:%d:%s", model, minPreviewTokens, hex.EncodeToString(sum[:]))
}

type entry struct {
	Tokens int    `json:"tokens"`
	Text   string `json:"text"`
}

// Get returns the cached (tokens, text) for key, or ok=false on a cache
// miss, a disabled cache, or any error (a cache problem must never fail
// the race).
func (c *Cache) Get(ctx context.Context, key string) (tokens int, text string, ok bool) {
	if c.Client == nil {
		return 0, "", false
	}
	raw, err := c.Client.Get(ctx, key).Bytes()
	if err != nil {
		return 0, "", false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return 0, "", false
	}
	return e.Tokens, e.Text, true
}

// Set stores (tokens, text) under key with the configured TTL. It is a
// no-op when the cache is disabled, tokens <= 0, or text is empty.
func (c *Cache) Set(ctx context.Context, key string, tokens int, text string) {
	if c.Client == nil || tokens <= 0 || text == "" {
		return
	}
	data, err := json.Marshal(entry{Tokens: tokens, Text: text})
	if err != nil {
		return
	}
	_ = c.Client.SetEx(ctx, key, data, c.TTL).Err()
}
