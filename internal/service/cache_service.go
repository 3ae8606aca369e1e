package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bazaarverse/numrent/pkg/cache"
	"github.com/bazaarverse/numrent/pkg/logger"
)

// CacheService keeps upstream catalog and price responses in Redis so catalog
// browsing does not hammer the provider.
type CacheService struct {
	cache *cache.RedisCache
	log   logger.Logger
}

func NewCacheService(c *cache.RedisCache, log logger.Logger) *CacheService {
	return &CacheService{cache: c, log: log}
}

func (s *CacheService) GetCatalog(ctx context.Context, key string) (json.RawMessage, bool) {
	if s == nil || s.cache == nil {
		return nil, false
	}

	val, err := s.cache.Get(ctx, key)
	if err != nil {
		if err != cache.ErrCacheMiss {
			s.log.Warn("Catalog cache read failed", logger.Field{Key: "error", Value: err.Error()})
		}
		return nil, false
	}

	return json.RawMessage(val), true
}

func (s *CacheService) SetCatalog(ctx context.Context, key string, raw json.RawMessage, ttl time.Duration) {
	if s == nil || s.cache == nil {
		return
	}

	if err := s.cache.Set(ctx, key, []byte(raw), ttl); err != nil {
		s.log.Warn("Catalog cache write failed", logger.Field{Key: "error", Value: err.Error()})
	}
}

func (s *CacheService) GetPriceTable(ctx context.Context, serverID, country string) (PriceTable, bool) {
	if s == nil || s.cache == nil {
		return nil, false
	}

	var table PriceTable
	key := priceKey(serverID, country)
	if err := s.cache.GetJSON(ctx, key, &table); err != nil {
		if err != cache.ErrCacheMiss {
			s.log.Warn("Price cache read failed", logger.Field{Key: "error", Value: err.Error()})
		}
		return nil, false
	}

	return table, true
}

func (s *CacheService) SetPriceTable(ctx context.Context, serverID, country string, table PriceTable, ttl time.Duration) {
	if s == nil || s.cache == nil {
		return
	}

	if err := s.cache.Set(ctx, priceKey(serverID, country), table, ttl); err != nil {
		s.log.Warn("Price cache write failed", logger.Field{Key: "error", Value: err.Error()})
	}
}

func priceKey(serverID, country string) string {
	return fmt.Sprintf("prices:%s:%s", serverID, country)
}

func CatalogKey(parts ...string) string {
	key := "catalog"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
