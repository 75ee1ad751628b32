package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/bivex/storebridge/amazon"
	"github.com/bivex/storebridge/appstore"
	"github.com/bivex/storebridge/billing"
	"github.com/bivex/storebridge/msstore"
	"github.com/bivex/storebridge/playstore"
)

// Config holds all tool configuration
type Config struct {
	Environment string
	Sandbox     bool
	Stores      StoresConfig
	Redis       RedisConfig
	Cache       CacheConfig
	Sentry      SentryConfig
}

// StoresConfig holds the per-platform credentials
type StoresConfig struct {
	GooglePackageName       string
	GoogleServiceAccountKey string
	AppleSharedSecret       string
	AppleReceiptData        string
	AmazonSharedSecret      string
	MSTenantID              string
	MSClientID              string
	MSClientSecret          string
	MSBeneficiary           string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL          string
	Password     string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// CacheConfig holds catalog cache and store quota settings
type CacheConfig struct {
	CatalogTTL     time.Duration
	QuotaPerMinute int
	QuotaBurst     int
	FailOpen       bool
}

// SentryConfig holds Sentry configuration
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// .env file is optional (env vars are used)
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Environment: viper.GetString("environment"),
		Sandbox:     viper.GetBool("sandbox"),
		Stores: StoresConfig{
			GooglePackageName:       viper.GetString("google_package_name"),
			GoogleServiceAccountKey: viper.GetString("google_service_account_key"),
			AppleSharedSecret:       viper.GetString("apple_shared_secret"),
			AppleReceiptData:        viper.GetString("apple_receipt_data"),
			AmazonSharedSecret:      viper.GetString("amazon_shared_secret"),
			MSTenantID:              viper.GetString("ms_tenant_id"),
			MSClientID:              viper.GetString("ms_client_id"),
			MSClientSecret:          viper.GetString("ms_client_secret"),
			MSBeneficiary:           viper.GetString("ms_beneficiary"),
		},
		Redis: RedisConfig{
			URL:          viper.GetString("redis_url"),
			Password:     viper.GetString("redis_password"),
			PoolSize:     viper.GetInt("redis_pool_size"),
			MinIdleConns: viper.GetInt("redis_min_idle_conns"),
			DialTimeout:  viper.GetDuration("redis_dial_timeout"),
			ReadTimeout:  viper.GetDuration("redis_read_timeout"),
			WriteTimeout: viper.GetDuration("redis_write_timeout"),
		},
		Cache: CacheConfig{
			CatalogTTL:     viper.GetDuration("cache_catalog_ttl"),
			QuotaPerMinute: viper.GetInt("cache_quota_per_minute"),
			QuotaBurst:     viper.GetInt("cache_quota_burst"),
			FailOpen:       viper.GetBool("cache_fail_open"),
		},
		Sentry: SentryConfig{
			DSN:         viper.GetString("sentry_dsn"),
			Environment: viper.GetString("sentry_environment"),
			Release:     viper.GetString("sentry_release"),
		},
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("environment", "production")
	viper.SetDefault("sandbox", false)

	// Redis defaults
	viper.SetDefault("redis_pool_size", 10)
	viper.SetDefault("redis_min_idle_conns", 3)
	viper.SetDefault("redis_dial_timeout", 5*time.Second)
	viper.SetDefault("redis_read_timeout", 3*time.Second)
	viper.SetDefault("redis_write_timeout", 3*time.Second)

	// Cache defaults
	viper.SetDefault("cache_catalog_ttl", 1*time.Hour)
	viper.SetDefault("cache_quota_per_minute", 60)
	viper.SetDefault("cache_quota_burst", 10)
	viper.SetDefault("cache_fail_open", true)
}

// Billing builds the adapter construction config for one platform from the
// store credentials. Unknown platforms fall through to billing.Open's own
// error.
func (c *Config) Billing(platform billing.Platform) billing.Config {
	cfg := billing.Config{
		Sandbox:     c.Sandbox,
		Credentials: map[string]string{},
	}
	switch platform {
	case billing.PlatformGooglePlay:
		cfg.Credentials[playstore.CredentialPackageName] = c.Stores.GooglePackageName
		cfg.Credentials[playstore.CredentialServiceAccountJSON] = c.Stores.GoogleServiceAccountKey
	case billing.PlatformAppStore:
		cfg.Credentials[appstore.CredentialSharedSecret] = c.Stores.AppleSharedSecret
		cfg.Credentials[appstore.CredentialReceiptData] = c.Stores.AppleReceiptData
	case billing.PlatformAmazon:
		cfg.Credentials[amazon.CredentialSharedSecret] = c.Stores.AmazonSharedSecret
	case billing.PlatformMicrosoftStore:
		cfg.Credentials[msstore.CredentialTenantID] = c.Stores.MSTenantID
		cfg.Credentials[msstore.CredentialClientID] = c.Stores.MSClientID
		cfg.Credentials[msstore.CredentialClientSecret] = c.Stores.MSClientSecret
		cfg.Credentials[msstore.CredentialBeneficiary] = c.Stores.MSBeneficiary
	}
	return cfg
}
