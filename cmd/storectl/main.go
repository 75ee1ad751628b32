// storectl runs billing operations against one store from the command line:
//
//	storectl -platform playstore -op products -ids premium,coins
//	storectl -platform appstore -op purchases -type subscription
//	storectl -platform amazon -op purchase -id premium -payload <user> -token <receipt>
//	storectl -platform playstore -op consume -id coins -token <token>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bivex/storebridge/billing"
	"github.com/bivex/storebridge/internal/config"
	"github.com/bivex/storebridge/internal/logging"
	"github.com/bivex/storebridge/storecache"

	// Store adapters register themselves with the billing registry.
	_ "github.com/bivex/storebridge/amazon"
	_ "github.com/bivex/storebridge/appstore"
	_ "github.com/bivex/storebridge/msstore"
	_ "github.com/bivex/storebridge/playstore"
)

func main() {
	var (
		platformFlag = flag.String("platform", "", "store platform: "+platformList())
		opFlag       = flag.String("op", "", "operation: products, purchases, purchase, consume")
		typeFlag     = flag.String("type", "inapp", "item type: inapp or subscription")
		idsFlag      = flag.String("ids", "", "comma separated product ids (products)")
		idFlag       = flag.String("id", "", "product id (purchase, consume)")
		payloadFlag  = flag.String("payload", "", "platform payload: receipt data, user id")
		tokenFlag    = flag.String("token", "", "purchase token or receipt id")
		timeoutFlag  = flag.Duration("timeout", 30*time.Second, "operation timeout")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logging.Init(&cfg.Sentry); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logging.Sync()

	runID := uuid.NewString()
	logger := logging.WithRunID(runID)

	platform, err := billing.NewPlatform(*platformFlag)
	if err != nil {
		logger.Fatal("Unknown platform", zap.String("platform", *platformFlag))
	}
	itemType, err := billing.NewItemType(*typeFlag)
	if err != nil {
		logger.Fatal("Unknown item type", zap.String("type", *typeFlag))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	billingCfg := cfg.Billing(platform)
	billingCfg.Logger = logger
	adapter, err := billing.Open(platform, billingCfg)
	if err != nil {
		logger.Fatal("Failed to open adapter", zap.Error(err))
	}

	// Decorate catalog reads with the Redis cache and quota when Redis is
	// configured; without it the adapter runs bare.
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		opts.PoolSize = cfg.Redis.PoolSize
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to ping Redis", zap.Error(err))
		}

		cache := storecache.NewProductCache(redisClient, logger).WithTTL(cfg.Cache.CatalogTTL)
		quota := storecache.NewRateQuota(redisClient, storecache.QuotaConfig{
			PerMinute: cfg.Cache.QuotaPerMinute,
			Burst:     cfg.Cache.QuotaBurst,
		}, cfg.Cache.FailOpen, logger)
		adapter = storecache.Wrap(adapter, cache, quota, logger)
	}

	if !adapter.Connect(ctx) {
		logger.Fatal("Store unreachable", zap.String("platform", string(platform)))
	}
	defer adapter.Disconnect(ctx)

	var result any
	switch *opFlag {
	case "products":
		ids := splitIDs(*idsFlag)
		result, err = adapter.GetProductInfo(ctx, itemType, ids)
	case "purchases":
		result, err = adapter.GetPurchases(ctx, itemType, nil)
	case "purchase":
		purchase, perr := adapter.Purchase(ctx, billing.Request{
			ProductID:     *idFlag,
			ItemType:      itemType,
			Payload:       *payloadFlag,
			PurchaseToken: *tokenFlag,
		})
		if perr == nil && !purchase.State.Final() {
			logger.Info("purchase not settled yet; the store is waiting on user or store action",
				zap.String("state", purchase.State.String()))
		}
		result, err = purchase, perr
	case "consume":
		result, err = adapter.Consume(ctx, billing.Request{
			ProductID:     *idFlag,
			ItemType:      itemType,
			PurchaseToken: *tokenFlag,
		})
	default:
		logger.Fatal("Unknown operation", zap.String("op", *opFlag))
	}
	if err != nil {
		logger.Fatal("Operation failed", zap.String("op", *opFlag), zap.Error(err))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode result", zap.Error(err))
	}
	fmt.Fprintln(os.Stdout, string(out))
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

func platformList() string {
	names := make([]string, 0, 4)
	for _, p := range billing.Platforms() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}
