// Package initializer turns configuration into the shared dependencies.
package initializer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/amirasaad/settlement/infra"
	"github.com/amirasaad/settlement/infra/alerting"
	infracache "github.com/amirasaad/settlement/infra/cache"
	infraeventbus "github.com/amirasaad/settlement/infra/eventbus"
	"github.com/amirasaad/settlement/infra/provider/mockpayout"
	"github.com/amirasaad/settlement/infra/provider/stripepayout"
	infrarepo "github.com/amirasaad/settlement/infra/repository"
	infratenant "github.com/amirasaad/settlement/infra/tenant"
	"github.com/amirasaad/settlement/pkg/cache"
	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/eventbus"
	"github.com/amirasaad/settlement/pkg/pii"
	"github.com/amirasaad/settlement/pkg/provider"
	"github.com/redis/go-redis/v9"
)

// InitializeDependencies builds the shared dependencies from cfg. The
// returned cleanup closes every connection that was opened.
func InitializeDependencies(cfg *config.App) (deps config.Deps, cleanup func(), err error) {
	logger := SetupLogger(cfg.Log)
	var closers []io.Closer
	cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("Failed to close dependency", "error", err)
			}
		}
	}
	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		logger.Error("Failed to initialize database", "error", err)
		return deps, cleanup, err
	}
	if sqlDB, err := db.DB(); err == nil {
		closers = append(closers, sqlDB)
	}
	if cfg.DB.AutoMigrate {
		if err := infrarepo.AutoMigrate(db); err != nil {
			return deps, cleanup, fmt.Errorf("migrate: %w", err)
		}
	}

	bus, err := initEventBus(cfg, logger)
	if err != nil {
		return deps, cleanup, err
	}
	if c, ok := bus.(io.Closer); ok {
		closers = append(closers, c)
	}

	quota, err := initQuotaCache(cfg, logger)
	if err != nil {
		return deps, cleanup, err
	}
	if c, ok := quota.(io.Closer); ok {
		closers = append(closers, c)
	}

	cipher, err := pii.NewCipher(cfg.Crypto.IBANKey)
	if err != nil {
		return deps, cleanup, fmt.Errorf("iban cipher: %w", err)
	}

	payouts, err := initPayoutProvider(cfg.Provider, logger)
	if err != nil {
		return deps, cleanup, err
	}

	if cfg.PubSub != nil && cfg.PubSub.ProjectID != "" {
		pub, err := alerting.NewTopicPublisher(context.Background(), cfg.PubSub.ProjectID, cfg.PubSub.AlertTopic)
		if err != nil {
			return deps, cleanup, err
		}
		closers = append(closers, pub)
		alerting.NewForwarder(pub, logger).Register(bus)
		logger.Info("Forwarding integrity alerts", "topic", cfg.PubSub.AlertTopic)
	}

	deps = config.Deps{
		Uow:            infrarepo.NewUoW(db),
		PayoutProvider: payouts,
		EventBus:       bus,
		QuotaCache:     quota,
		Features:       infratenant.NewStaticFlags(cfg.Tenant.EnabledFeatures...),
		Tenants:        infratenant.NewDirectory(db, cfg.Tenant.PlatformID),
		Cipher:         cipher,
		Logger:         logger,
		Config:         cfg,
	}
	return deps, cleanup, nil
}

// initEventBus picks the transport from EVENT_BUS_DRIVER. A configured
// broker that cannot be reached falls back to memory so the API still
// starts; a driver with no address configured is an error.
func initEventBus(cfg *config.App, logger *slog.Logger) (eventbus.Bus, error) {
	driver := ""
	if cfg.EventBus != nil {
		driver = cfg.EventBus.Driver
	}
	switch driver {
	case "", "memory":
		return infraeventbus.NewWithMemory(logger), nil
	case "redis":
		if cfg.Redis == nil || cfg.Redis.URL == "" {
			return nil, errors.New("event bus driver redis requires REDIS_URL")
		}
		bus, err := infraeventbus.NewWithRedis(cfg.Redis.URL, cfg.EventBus.Stream, cfg.EventBus.Group, logger)
		if err != nil {
			logger.Warn("Redis event bus unavailable, using memory", "error", err)
			return infraeventbus.NewWithMemory(logger), nil
		}
		return bus, nil
	case "kafka":
		if cfg.Kafka == nil || cfg.Kafka.Brokers == "" {
			return nil, errors.New("event bus driver kafka requires KAFKA_BROKERS")
		}
		bus, err := infraeventbus.NewWithKafka(cfg.Kafka.Brokers, logger, &infraeventbus.KafkaEventBusConfig{
			GroupID:     cfg.Kafka.GroupID,
			TopicPrefix: cfg.Kafka.TopicPrefix,
		})
		if err != nil {
			logger.Warn("Kafka event bus unavailable, using memory", "error", err)
			return infraeventbus.NewWithMemory(logger), nil
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported EVENT_BUS_DRIVER %q", driver)
	}
}

func initQuotaCache(cfg *config.App, logger *slog.Logger) (cache.QuotaCache, error) {
	b := cfg.Billing
	switch b.QuotaCacheDriver {
	case "", "memory":
		return infracache.NewMemoryQuotaCache(b.QuotaCacheTTL, nil), nil
	case "redis":
		if cfg.Redis == nil || cfg.Redis.URL == "" {
			return nil, errors.New("quota cache driver redis requires REDIS_URL")
		}
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("quota cache: invalid REDIS_URL: %w", err)
		}
		opt.PoolSize = cfg.Redis.PoolSize
		opt.DialTimeout = cfg.Redis.DialTimeout
		opt.ReadTimeout = cfg.Redis.ReadTimeout
		opt.WriteTimeout = cfg.Redis.WriteTimeout
		return infracache.NewRedisQuotaCache(opt, cfg.Redis.KeyPrefix, b.QuotaCacheTTL, logger), nil
	default:
		return nil, fmt.Errorf("unsupported BILLING_QUOTA_CACHE_DRIVER %q", b.QuotaCacheDriver)
	}
}

func initPayoutProvider(cfg *config.Provider, logger *slog.Logger) (provider.PayoutProvider, error) {
	switch cfg.Driver {
	case "", "mock":
		logger.Warn("Using the mock payout provider")
		return mockpayout.New(cfg.WebhookSecret), nil
	case "stripe":
		if cfg.Stripe == nil || cfg.Stripe.ApiKey == "" {
			return nil, errors.New("payout provider stripe requires PAYOUT_PROVIDER_STRIPE_API_KEY")
		}
		return stripepayout.New(cfg.Stripe, logger), nil
	default:
		return nil, fmt.Errorf("unsupported PAYOUT_PROVIDER_DRIVER %q", cfg.Driver)
	}
}
