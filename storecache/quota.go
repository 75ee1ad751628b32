package storecache

import (
	"context"
	"errors"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrQuotaExceeded reports a catalog query denied by the store quota.
var ErrQuotaExceeded = errors.New("store query quota exceeded")

// Quota decides whether one more metered store call may go out.
type Quota interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// QuotaConfig defines the metered call budget.
type QuotaConfig struct {
	PerMinute int // calls per minute per platform
	Burst     int
}

// RateQuota enforces the budget with a Redis sliding window shared by every
// process talking to the same store.
type RateQuota struct {
	limiter  *redis_rate.Limiter
	logger   *zap.Logger
	cfg      QuotaConfig
	failOpen bool // if true, allow calls when Redis is unavailable
	prefix   string
}

// NewRateQuota creates a quota over the given Redis client.
func NewRateQuota(client *redis.Client, cfg QuotaConfig, failOpen bool, logger *zap.Logger) *RateQuota {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateQuota{
		limiter:  redis_rate.NewLimiter(client),
		logger:   logger,
		cfg:      cfg,
		failOpen: failOpen,
		prefix:   "storebridge:quota:",
	}
}

// Allow reports whether the call under key fits the budget. A limiter error
// with failOpen set admits the call; the store's own throttling is the
// backstop then.
func (q *RateQuota) Allow(ctx context.Context, key string) (bool, error) {
	limit := redis_rate.PerMinute(q.cfg.PerMinute)
	limit.Burst = q.cfg.Burst

	res, err := q.limiter.Allow(ctx, q.prefix+key, limit)
	if err != nil {
		q.logger.Error("quota limiter error", zap.Error(err))
		if q.failOpen {
			return true, nil
		}
		return false, err
	}
	return res.Allowed > 0, nil
}
