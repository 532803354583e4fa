// Package redis implements the AttentionCache port on Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/gitactivity/internal/domain/model"
	"github.com/ericfisherdev/gitactivity/internal/domain/port/driven"
)

const keyPrefix = "gitactivity:attention:"

// clearBatch is the SCAN page size and the largest DEL issued by ClearAttention.
const clearBatch = 100

// Compile-time interface satisfaction check.
var _ driven.AttentionCache = (*AttentionCache)(nil)

// AttentionCache stores computed attention sets as JSON strings with a TTL.
type AttentionCache struct {
	client goredis.UniversalClient
}

// NewAttentionCache creates an AttentionCache on client.
func NewAttentionCache(client goredis.UniversalClient) *AttentionCache {
	return &AttentionCache{client: client}
}

// NewClient parses a redis:// URL and verifies the server answers.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// GetAttention returns the cached sets for key, or nil on a miss.
func (c *AttentionCache) GetAttention(ctx context.Context, key string) (*model.AttentionSets, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attention %s: %w", key, err)
	}

	var sets model.AttentionSets
	if err := json.Unmarshal(raw, &sets); err != nil {
		return nil, fmt.Errorf("decode attention %s: %w", key, err)
	}
	return &sets, nil
}

// SetAttention stores sets under key for ttl.
func (c *AttentionCache) SetAttention(ctx context.Context, key string, sets model.AttentionSets, ttl time.Duration) error {
	raw, err := json.Marshal(sets)
	if err != nil {
		return fmt.Errorf("encode attention %s: %w", key, err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set attention %s: %w", key, err)
	}
	return nil
}

// ClearAttention deletes every key under the attention prefix.
func (c *AttentionCache) ClearAttention(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", clearBatch).Iterator()
	keys := make([]string, 0, clearBatch)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == clearBatch {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("clear attention: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan attention keys: %w", err)
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("clear attention: %w", err)
		}
	}
	return nil
}
