// internal/marketplace/geo_cache.go
package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ichra-quotes/internal/common/logger"
)

// ==========================
// Geography Cache
// ==========================

// CachedGeoResolver wraps a GeoResolver with a redis cache keyed by zip.
// Rating geography changes on regulatory cycles, not per quote, so a hit
// spares the member's geography call and its scheduler budget. Cache
// transport failures degrade to misses; the inner resolver still runs.
type CachedGeoResolver struct {
	inner  GeoResolver
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

func NewCachedGeoResolver(inner GeoResolver, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedGeoResolver {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedGeoResolver{
		inner:  inner,
		client: client,
		ttl:    ttl,
		log:    log.WithFields(map[string]interface{}{"component": "geo-cache"}),
	}
}

func (c *CachedGeoResolver) ResolveCounty(ctx context.Context, zip string) (*CountyResolution, error) {
	key := geoKey(zip)

	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var resolution CountyResolution
		if err := json.Unmarshal([]byte(raw), &resolution); err == nil && len(resolution.Counties) > 0 {
			return &resolution, nil
		}
		c.log.Warn("corrupt geography cache entry discarded", map[string]interface{}{
			"zip": zip,
		})
	} else if !errors.Is(err, redis.Nil) {
		c.log.WithError(err).Warn("geography cache read failed", map[string]interface{}{
			"zip": zip,
		})
	}

	resolution, err := c.inner.ResolveCounty(ctx, zip)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(resolution)
	if err != nil {
		return resolution, nil
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("geography cache write failed", map[string]interface{}{
			"zip": zip,
		})
	}
	return resolution, nil
}

func geoKey(zip string) string {
	return fmt.Sprintf("geo:zip:%s", zip)
}
