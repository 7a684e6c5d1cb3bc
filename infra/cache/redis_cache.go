package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"log/slog"

	"github.com/amirasaad/settlement/pkg/cache"
	"github.com/redis/go-redis/v9"
)

// RedisQuotaCache implements QuotaCache using Redis so every API replica
// sees the same invalidations.
type RedisQuotaCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisQuotaCache creates a RedisQuotaCache from redis.Options.
func NewRedisQuotaCache(
	opt *redis.Options,
	prefix string,
	ttl time.Duration,
	logger *slog.Logger,
) *RedisQuotaCache {
	return NewRedisQuotaCacheWithClient(redis.NewClient(opt), prefix, ttl, logger)
}

// NewRedisQuotaCacheWithClient wraps an existing client.
func NewRedisQuotaCacheWithClient(
	client *redis.Client,
	prefix string,
	ttl time.Duration,
	logger *slog.Logger,
) *RedisQuotaCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQuotaCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *RedisQuotaCache) key(tenantID string) string {
	return r.prefix + "boost_quota:" + tenantID
}

func (r *RedisQuotaCache) Get(ctx context.Context, tenantID string) (*cache.Quota, error) {
	val, err := r.client.Get(ctx, r.key(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("quota cache miss", "tenant_id", tenantID)
		return nil, nil
	}
	if err != nil {
		r.logger.Error("quota cache get error", "tenant_id", tenantID, "error", err)
		return nil, err
	}
	var q cache.Quota
	if err := json.Unmarshal(val, &q); err != nil {
		r.logger.Error("quota cache unmarshal error", "tenant_id", tenantID, "error", err)
		return nil, err
	}
	return &q, nil
}

func (r *RedisQuotaCache) Set(ctx context.Context, tenantID string, q *cache.Quota) error {
	if q == nil {
		return nil
	}
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(tenantID), data, r.ttl).Err(); err != nil {
		r.logger.Error("quota cache set error", "tenant_id", tenantID, "error", err)
		return err
	}
	return nil
}

func (r *RedisQuotaCache) Invalidate(ctx context.Context, tenantID string) error {
	if err := r.client.Del(ctx, r.key(tenantID)).Err(); err != nil {
		r.logger.Error("quota cache delete error", "tenant_id", tenantID, "error", err)
		return err
	}
	r.logger.Debug("quota cache invalidated", "tenant_id", tenantID)
	return nil
}

// Close releases the underlying client.
func (r *RedisQuotaCache) Close() error {
	return r.client.Close()
}

var _ cache.QuotaCache = (*RedisQuotaCache)(nil)
