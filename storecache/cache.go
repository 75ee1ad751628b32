// Package storecache decorates a billing adapter with a Redis-backed product
// catalog cache and a query quota. Catalog listings are slow-moving and the
// stores meter their APIs, so catalog reads are cached and rate limited;
// entitlement and transaction operations always go to the live store.
package storecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bivex/storebridge/billing"
)

// ErrCacheMiss reports a catalog key with no cached entry.
var ErrCacheMiss = errors.New("catalog entry not cached")

// Cache key constants
const (
	KeyCatalog = "storebridge:catalog:%s:%s:%s"
)

// TTL constants
const (
	TTLCatalog = 1 * time.Hour
)

// ProductCache stores catalog listings per platform and item type.
type ProductCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewProductCache creates a catalog cache with the default TTL.
func NewProductCache(client *redis.Client, logger *zap.Logger) *ProductCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductCache{
		client: client,
		logger: logger,
		ttl:    TTLCatalog,
	}
}

// WithTTL overrides the catalog TTL.
func (c *ProductCache) WithTTL(ttl time.Duration) *ProductCache {
	c.ttl = ttl
	return c
}

// SetProducts stores a catalog listing for the exact id set it answers.
func (c *ProductCache) SetProducts(ctx context.Context, platform billing.Platform, itemType billing.ItemType, productIDs []string, products []billing.Product) error {
	key := catalogKey(platform, itemType, productIDs)

	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set catalog: %w", err)
	}

	c.logger.Debug("Cached catalog listing",
		zap.String("platform", string(platform)),
		zap.Int("products", len(products)),
	)
	return nil
}

// GetProducts retrieves a cached catalog listing, ErrCacheMiss when absent.
func (c *ProductCache) GetProducts(ctx context.Context, platform billing.Platform, itemType billing.ItemType, productIDs []string) ([]billing.Product, error) {
	key := catalogKey(platform, itemType, productIDs)

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}

	var products []billing.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	return products, nil
}

// InvalidatePlatform removes every cached listing for one platform.
func (c *ProductCache) InvalidatePlatform(ctx context.Context, platform billing.Platform) error {
	pattern := fmt.Sprintf(KeyCatalog, platform, "*", "*")

	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan catalog keys: %w", err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete catalog keys: %w", err)
		}
		c.logger.Debug("Invalidated catalog", zap.String("platform", string(platform)), zap.Int("count", len(keys)))
	}
	return nil
}

// catalogKey is stable under id order so permutations of one request share
// an entry.
func catalogKey(platform billing.Platform, itemType billing.ItemType, productIDs []string) string {
	ids := make([]string, len(productIDs))
	copy(ids, productIDs)
	sort.Strings(ids)
	return fmt.Sprintf(KeyCatalog, platform, itemType, strings.Join(ids, ","))
}
