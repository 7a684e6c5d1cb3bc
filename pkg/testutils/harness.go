package testutils

import (
	"log/slog"
	"testing"
	"time"

	infracache "github.com/amirasaad/settlement/infra/cache"
	infraeventbus "github.com/amirasaad/settlement/infra/eventbus"
	"github.com/amirasaad/settlement/infra/provider/mockpayout"
	infrarepo "github.com/amirasaad/settlement/infra/repository"
	infratenant "github.com/amirasaad/settlement/infra/tenant"
	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/pii"
	"gorm.io/gorm"
)

// WebhookSecret signs mock provider webhooks in tests.
const WebhookSecret = "test-webhook-secret"

// Harness bundles a migrated database with in-memory collaborators.
type Harness struct {
	DB       *gorm.DB
	Clock    *Clock
	Uow      *infrarepo.UoW
	Bus      *infraeventbus.MemoryEventBus
	Flags    *infratenant.StaticFlags
	Provider *mockpayout.Provider
	Cache    *infracache.MemoryQuotaCache
	Config   *config.App
	Deps     config.Deps
}

// NewHarness seeds the platform tenant plus tenants and starts the clock at
// 2026-03-10 09:00 UTC.
func NewHarness(t *testing.T, tenants ...string) *Harness {
	t.Helper()
	db := NewTestDB(t, append([]string{PlatformTenant}, tenants...)...)
	clock := NewClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	uow := infrarepo.NewUoW(db, infrarepo.WithClock(clock.Now))
	bus := infraeventbus.NewWithMemory(slog.Default())
	flags := infratenant.NewStaticFlags("BOOST_ENABLED")
	prov := mockpayout.New(WebhookSecret)
	quota := infracache.NewMemoryQuotaCache(time.Minute, clock.Now)
	cipher, err := pii.NewCipher("test-iban-key")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	cfg := TestConfig()
	return &Harness{
		DB:       db,
		Clock:    clock,
		Uow:      uow,
		Bus:      bus,
		Flags:    flags,
		Provider: prov,
		Cache:    quota,
		Config:   cfg,
		Deps: config.Deps{
			Uow:            uow,
			PayoutProvider: prov,
			EventBus:       bus,
			QuotaCache:     quota,
			Features:       flags,
			Tenants:        infratenant.NewDirectory(db, PlatformTenant),
			Cipher:         cipher,
			Clock:          clock.Now,
			Logger:         slog.Default(),
			Config:         cfg,
		},
	}
}

// TestConfig returns the defaults the services run with in tests.
func TestConfig() *config.App {
	return &config.App{
		Env:      "test",
		Log:      &config.Log{},
		Provider: &config.Provider{Driver: "mock", WebhookSecret: WebhookSecret, Timeout: 2 * time.Second},
		Payout: &config.Payout{
			Currency:       "TRY",
			OutboxBatch:    25,
			MaxAttempts:    5,
			ReconcileAfter: 10 * time.Minute,
			ReconcileBatch: 50,
		},
		Webhook:   &config.Webhook{ClockSkew: 5 * time.Minute, ReplayStatus: 200, ProcessBatch: 50},
		Billing:   &config.Billing{GraceDays: 5, InvoiceDueDays: 14, QuotaCacheTTL: time.Minute, QuotaCacheDriver: "memory"},
		Risk:      &config.Risk{DayOffset: 3 * time.Hour},
		Integrity: &config.Integrity{StaleSending: 15 * time.Minute, SilentSent: 24 * time.Hour},
		Scheduler: &config.Scheduler{},
		Tenant:    &config.Tenant{PlatformID: PlatformTenant, EnabledFeatures: []string{"BOOST_ENABLED"}},
	}
}
