// Package cache stores rendered email diffs in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "diff:email:"
	defaultTTL    = 24 * time.Hour
	scanBatch     = 100
)

// Entry is a cached compaction result. Empty records that the diff had no
// renderable result, so callers do not recompute it.
type Entry struct {
	HTML      string    `json:"html,omitempty"`
	Empty     bool      `json:"empty,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DiffCache implements diff result storage using Redis
type DiffCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewDiffCache connects to redisURL and verifies the connection.
func NewDiffCache(ctx context.Context, redisURL string, ttl time.Duration) (*DiffCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewDiffCacheWithClient(client, ttl), nil
}

// NewDiffCacheWithClient creates a cache from an existing Redis client
func NewDiffCacheWithClient(client *redis.Client, ttl time.Duration) *DiffCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &DiffCache{client: client, prefix: defaultPrefix, ttl: ttl}
}

func (c *DiffCache) documentPrefix(documentID string) string {
	return c.prefix + documentID + ":"
}

func (c *DiffCache) key(documentID, fromID, toID string) string {
	return c.documentPrefix(documentID) + fromID + ":" + toID
}

// Get returns the entry for the diff between two revisions of a document.
func (c *DiffCache) Get(ctx context.Context, documentID, fromID, toID string) (Entry, bool, error) {
	raw, err := c.client.Get(ctx, c.key(documentID, fromID, toID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get diff: %w", err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("unmarshal diff: %w", err)
	}
	return entry, true, nil
}

// Set stores entry for the cache TTL.
func (c *DiffCache) Set(ctx context.Context, documentID, fromID, toID string, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal diff: %w", err)
	}
	if err := c.client.Set(ctx, c.key(documentID, fromID, toID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set diff: %w", err)
	}
	return nil
}

// Invalidate removes every cached diff of a document.
func (c *DiffCache) Invalidate(ctx context.Context, documentID string) error {
	iter := c.client.Scan(ctx, 0, c.documentPrefix(documentID)+"*", scanBatch).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan diffs: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate diffs: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *DiffCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *DiffCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
