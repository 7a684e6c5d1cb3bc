package config

import (
	"log/slog"
	"time"

	"github.com/amirasaad/settlement/pkg/cache"
	"github.com/amirasaad/settlement/pkg/eventbus"
	"github.com/amirasaad/settlement/pkg/pii"
	"github.com/amirasaad/settlement/pkg/provider"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/tenant"
)

// Deps holds the shared dependencies the services are built from.
type Deps struct {
	Uow            repository.UnitOfWork
	PayoutProvider provider.PayoutProvider
	EventBus       eventbus.Bus
	QuotaCache     cache.QuotaCache
	Features       tenant.FeatureFlags
	Tenants        tenant.Directory
	Cipher         *pii.Cipher
	Clock          func() time.Time
	Logger         *slog.Logger
	Config         *App
}

// Now returns the configured clock or the wall clock in UTC.
func (d Deps) Now() time.Time {
	if d.Clock != nil {
		return d.Clock()
	}
	return time.Now().UTC()
}

// PlatformTenant is the tenant that owns escrow, clearing and revenue accounts.
func (d Deps) PlatformTenant() string {
	if d.Config != nil && d.Config.Tenant != nil && d.Config.Tenant.PlatformID != "" {
		return d.Config.Tenant.PlatformID
	}
	return "PLATFORM"
}

// Currency is the settlement currency; amounts are never converted.
func (d Deps) Currency() string {
	if d.Config != nil && d.Config.Payout != nil && d.Config.Payout.Currency != "" {
		return d.Config.Payout.Currency
	}
	return "TRY"
}
