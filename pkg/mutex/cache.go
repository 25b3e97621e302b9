package mutex

import (
	"context"
	"fmt"
)

// redisKey mirrors the key shape documented on models.AssetLock:
// "lock:{tenant}:{asset}".
func redisKey(tenantID, assetID string) string {
	return fmt.Sprintf("lock:%s:%s", tenantID, assetID)
}

// fastPathLikelyFree reports whether Redis believes every asset is free.
// A cache miss, a Redis error, or a disabled client all return true — the
// fast path only ever short-circuits a guaranteed-busy case and never
// blocks a real attempt against Postgres.
func (g *Guard) fastPathLikelyFree(ctx context.Context, tenantID string, assetIDs []string) bool {
	if g.redis == nil {
		return true
	}
	for _, assetID := range assetIDs {
		exists, err := g.redis.Exists(ctx, redisKey(tenantID, assetID)).Result()
		if err != nil {
			return true
		}
		if exists > 0 {
			return false
		}
	}
	return true
}

// cacheHeld marks assets as held in the Redis fast path after a successful
// Postgres acquisition. Best-effort: a cache write failure never unwinds
// the acquisition, since Postgres already holds the authoritative lock.
func (g *Guard) cacheHeld(ctx context.Context, tenantID string, assetIDs []string) {
	if g.redis == nil {
		return
	}
	for _, assetID := range assetIDs {
		if err := g.redis.Set(ctx, redisKey(tenantID, assetID), "1", g.cfg.LeaseDuration).Err(); err != nil {
			g.logger.Warn("redis fast-path cache write failed", "asset_id", assetID, "error", err)
		}
	}
}

// evictCache clears the Redis fast-path entries on release.
func (g *Guard) evictCache(ctx context.Context, tenantID string, assetIDs []string) {
	if g.redis == nil {
		return
	}
	keys := make([]string, len(assetIDs))
	for i, assetID := range assetIDs {
		keys[i] = redisKey(tenantID, assetID)
	}
	if err := g.redis.Del(ctx, keys...).Err(); err != nil {
		g.logger.Warn("redis fast-path cache eviction failed", "error", err)
	}
}
