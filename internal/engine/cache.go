// internal/engine/cache.go
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/common/metrics"
	"ichra-quotes/internal/models"
)

// ==========================
// Quote Cache
// ==========================

// QuoteCache stores assembled quotes keyed by group and filter set. A hit
// short-circuits quote generation entirely; no external call is made.
type QuoteCache interface {
	Get(ctx context.Context, groupID string, filters models.PlanFilters) (*models.QuoteResult, bool)
	Set(ctx context.Context, quote *models.QuoteResult) error
	InvalidateGroup(ctx context.Context, groupID string) error
}

// RedisQuoteCache is the redis-backed cache. Entries live under
// quote:{groupId}:{filterHash} and expire on a fixed TTL; a per-group set
// tracks live keys so administrative invalidation does not need SCAN.
type RedisQuoteCache struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

func NewRedisQuoteCache(client *redis.Client, ttl time.Duration, log logger.Logger) *RedisQuoteCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisQuoteCache{
		client: client,
		ttl:    ttl,
		log:    log.WithFields(map[string]interface{}{"component": "quote-cache"}),
	}
}

// Get returns the cached quote for (groupID, filters), if present. Cache
// transport failures are treated as misses; the engine regenerates.
func (c *RedisQuoteCache) Get(ctx context.Context, groupID string, filters models.PlanFilters) (*models.QuoteResult, bool) {
	raw, err := c.client.Get(ctx, quoteKey(groupID, filters)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Warn("quote cache read failed", map[string]interface{}{
				"groupId": groupID,
			})
		}
		metrics.QuoteCacheHits.WithLabelValues("miss").Inc()
		return nil, false
	}

	var quote models.QuoteResult
	if err := json.Unmarshal([]byte(raw), &quote); err != nil {
		c.log.WithError(err).Warn("corrupt cache entry discarded", map[string]interface{}{
			"groupId": groupID,
		})
		metrics.QuoteCacheHits.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.QuoteCacheHits.WithLabelValues("hit").Inc()
	return &quote, true
}

// Set stores the quote and registers its key in the group's key set so
// InvalidateGroup can find it later.
func (c *RedisQuoteCache) Set(ctx context.Context, quote *models.QuoteResult) error {
	payload, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("marshal quote for cache: %w", err)
	}

	key := quoteKey(quote.GroupID, quote.Filters)
	setKey := groupKeySet(quote.GroupID)

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, payload, c.ttl)
	pipe.SAdd(ctx, setKey, key)
	pipe.Expire(ctx, setKey, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache quote: %w", err)
	}
	return nil
}

// InvalidateGroup drops every cached quote for the group. Used when
// pricing data changes administratively.
func (c *RedisQuoteCache) InvalidateGroup(ctx context.Context, groupID string) error {
	setKey := groupKeySet(groupID)
	keys, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("list cached quotes for group %s: %w", groupID, err)
	}
	keys = append(keys, setKey)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate group %s: %w", groupID, err)
	}
	c.log.Info("group cache invalidated", map[string]interface{}{
		"groupId": groupID,
		"entries": len(keys) - 1,
	})
	return nil
}

func quoteKey(groupID string, filters models.PlanFilters) string {
	return fmt.Sprintf("quote:%s:%s", groupID, filterHash(filters))
}

func groupKeySet(groupID string) string {
	return "quote:group:" + groupID
}

// filterHash derives a stable short key from the filter set. PlanFilters
// marshals with deterministic field order, so the digest is stable for
// equal filters.
func filterHash(filters models.PlanFilters) string {
	payload, _ := json.Marshal(filters)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}
