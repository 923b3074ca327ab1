package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	codeKeyPrefix = "dsa:code:"

	// DefaultCodeTTL is how long a resolved code stays cached
	DefaultCodeTTL = 5 * time.Minute
)

// Observer is told about cache hits and misses
type Observer interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

const cacheType = "code"

// CodeCache is a read-through Redis cache in front of code lookups.
// Redis failures fall back to the source.
type CodeCache struct {
	client   *Client
	source   domain.CodeFinder
	ttl      time.Duration
	logger   logger.Logger
	observer Observer
}

// NewCodeCache wraps source with a Redis cache
func NewCodeCache(client *Client, source domain.CodeFinder, ttl time.Duration, log logger.Logger) *CodeCache {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CodeCache{client: client, source: source, ttl: ttl, logger: log}
}

// WithObserver reports hits and misses to o
func (c *CodeCache) WithObserver(o Observer) *CodeCache {
	c.observer = o
	return c
}

// GetByCode returns the cached code record or loads it from the source.
// Missing codes are not cached.
func (c *CodeCache) GetByCode(ctx context.Context, code string) (*domain.AffiliateCode, error) {
	key := codeKeyPrefix + code

	raw, err := c.client.Get(ctx, key)
	switch {
	case err == nil:
		var cached domain.AffiliateCode
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			if c.observer != nil {
				c.observer.RecordCacheHit(cacheType)
			}
			return &cached, nil
		}
		c.logger.Warn("discarding unreadable cached code", "code", code)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("code cache read failed", "code", code, "error", err)
	}

	if c.observer != nil {
		c.observer.RecordCacheMiss(cacheType)
	}

	record, err := c.source.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(record); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl); err != nil {
			c.logger.Warn("code cache write failed", "code", code, "error", err)
		}
	}
	return record, nil
}

// Invalidate drops cached lookups for the given code strings
func (c *CodeCache) Invalidate(ctx context.Context, codes ...string) error {
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		keys = append(keys, codeKeyPrefix+code)
	}
	return c.client.Delete(ctx, keys...)
}

// Flush drops every cached code
func (c *CodeCache) Flush(ctx context.Context) (int, error) {
	return c.client.DeletePattern(ctx, codeKeyPrefix+"*")
}
