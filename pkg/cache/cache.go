package cache

import (
	"context"
)

// Quota is the cached impression usage of a tenant for one billing period.
type Quota struct {
	PeriodKey string `json:"periodKey"`
	Used      int64  `json:"used"`
}

// QuotaCache fronts the boost usage sum. A miss returns (nil, nil).
type QuotaCache interface {
	Get(ctx context.Context, tenantID string) (*Quota, error)
	Set(ctx context.Context, tenantID string, q *Quota) error
	Invalidate(ctx context.Context, tenantID string) error
}
