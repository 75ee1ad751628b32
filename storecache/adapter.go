package storecache

import (
	"context"

	"go.uber.org/zap"

	"github.com/bivex/storebridge/billing"
)

// Adapter wraps a platform adapter. Catalog queries are answered from the
// cache when possible and metered by the quota otherwise; entitlement and
// transaction operations pass straight through because they must reflect the
// live store.
type Adapter struct {
	next   billing.Adapter
	cache  *ProductCache
	quota  Quota
	logger *zap.Logger
}

// Wrap decorates next. Cache and quota are each optional; nil disables that
// half of the decoration.
func Wrap(next billing.Adapter, cache *ProductCache, quota Quota, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		next:   next,
		cache:  cache,
		quota:  quota,
		logger: logger.With(zap.String("component", "storecache")),
	}
}

func (a *Adapter) Platform() billing.Platform {
	return a.next.Platform()
}

func (a *Adapter) Connect(ctx context.Context) bool {
	return a.next.Connect(ctx)
}

func (a *Adapter) Disconnect(ctx context.Context) {
	a.next.Disconnect(ctx)
}

// GetProductInfo answers from the cache when it can. On a miss the quota
// meters the store call, and a fresh answer is written back; a write-back
// failure only costs the caching, not the answer.
func (a *Adapter) GetProductInfo(ctx context.Context, itemType billing.ItemType, productIDs []string) ([]billing.Product, error) {
	platform := a.next.Platform()

	if a.cache != nil {
		products, err := a.cache.GetProducts(ctx, platform, itemType, productIDs)
		if err == nil {
			a.logger.Debug("catalog served from cache",
				zap.String("platform", string(platform)),
				zap.Int("products", len(products)),
			)
			return products, nil
		}
		if err != ErrCacheMiss {
			a.logger.Warn("catalog cache read failed", zap.Error(err))
		}
	}

	if a.quota != nil {
		allowed, err := a.quota.Allow(ctx, string(platform))
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, ErrQuotaExceeded
		}
	}

	products, err := a.next.GetProductInfo(ctx, itemType, productIDs)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.SetProducts(ctx, platform, itemType, productIDs, products); err != nil {
			a.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return products, nil
}

func (a *Adapter) GetPurchases(ctx context.Context, itemType billing.ItemType, verify billing.Verifier) ([]billing.Purchase, error) {
	return a.next.GetPurchases(ctx, itemType, verify)
}

func (a *Adapter) Purchase(ctx context.Context, req billing.Request) (billing.Purchase, error) {
	return a.next.Purchase(ctx, req)
}

func (a *Adapter) Consume(ctx context.Context, req billing.Request) (billing.Purchase, error) {
	return a.next.Consume(ctx, req)
}
