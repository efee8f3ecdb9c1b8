// Package cache stores resolved chains keyed by graph revision, so any graph
// write makes every earlier entry unreachable without explicit invalidation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ownergraph/internal/resolver/models"
	id "ownergraph/pkg/domain"
)

const keyPrefix = "ownergraph:chains:"

// Key identifies one cacheable resolution.
type Key struct {
	SubjectID id.EntityID
	Revision  int64
	AsOf      time.Time
	MaxDepth  int
	MaxVisits int
}

func (k Key) String() string {
	return fmt.Sprintf("%s%s:%d:%d:%d:%d", keyPrefix, k.SubjectID, k.Revision, k.AsOf.UTC().UnixNano(), k.MaxDepth, k.MaxVisits)
}

// RedisCache keeps results in Redis as JSON with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns (nil, false, nil) on a miss.
func (c *RedisCache) Get(ctx context.Context, key Key) (*models.Result, bool, error) {
	raw, err := c.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read chain cache: %w", err)
	}
	var result models.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, fmt.Errorf("decode chain cache entry: %w", err)
	}
	return &result, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key Key, result *models.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode chain cache entry: %w", err)
	}
	if err := c.client.Set(ctx, key.String(), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write chain cache: %w", err)
	}
	return nil
}

// InMemory is a process-local cache for tests and single-instance runs.
// Entries never expire; revision keys bound its useful lifetime.
type InMemory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string][]byte)}
}

func (c *InMemory) Get(_ context.Context, key Key) (*models.Result, bool, error) {
	c.mu.RLock()
	raw, ok := c.entries[key.String()]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	var result models.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, false, err
	}
	return &result, true, nil
}

func (c *InMemory) Set(_ context.Context, key Key, result *models.Result) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[key.String()] = raw
	c.mu.Unlock()
	return nil
}

func (c *InMemory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
