package repository

import (
	"context"
	"sync"
	"time"

	"github.com/amirasaad/settlement/pkg/repository"
	"gorm.io/gorm"
)

// UoW provides the transaction boundary and tx-bound repositories in one
// abstraction. Every repository handed out by a UoW shares its session.
type UoW struct {
	db    *gorm.DB
	tx    *gorm.DB
	hooks *completionHooks
	now   func() time.Time
}

// Option configures a UoW.
type Option func(*UoW)

// WithClock sets the clock used for updated_at stamps written by claims.
func WithClock(now func() time.Time) Option {
	return func(u *UoW) { u.now = now }
}

// NewUoW creates a new UoW for the given *gorm.DB.
func NewUoW(db *gorm.DB, opts ...Option) *UoW {
	u := &UoW{db: db, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Do runs fn in a transaction. When called on a tx-bound UoW it joins the
// open transaction instead of starting a new one. Completion hooks run
// after the outermost transaction ends, whatever its outcome.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	if u.tx != nil {
		return fn(u)
	}
	hooks := &completionHooks{}
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UoW{db: u.db, tx: tx, hooks: hooks, now: u.now})
	})
	hooks.run(context.WithoutCancel(ctx))
	return err
}

// AfterCompletion defers fn until the outermost transaction has ended.
// Outside a transaction fn runs immediately.
func (u *UoW) AfterCompletion(fn func(ctx context.Context)) {
	if u.hooks == nil {
		fn(context.Background())
		return
	}
	u.hooks.add(fn)
}

func (u *UoW) session() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

func (u *UoW) Claimer() repository.Claimer {
	return &claimer{db: u.session(), now: u.now}
}

func (u *UoW) Idempotency() repository.IdempotencyRepository {
	return &idempotencyRepository{db: u.session()}
}

func (u *UoW) Ledger() repository.LedgerRepository {
	return &ledgerRepository{db: u.session()}
}

func (u *UoW) Destinations() repository.DestinationRepository {
	return &destinationRepository{db: u.session()}
}

func (u *UoW) PayoutRequests() repository.PayoutRequestRepository {
	return &payoutRequestRepository{db: u.session()}
}

func (u *UoW) Profiles() repository.ProfileRepository {
	return &profileRepository{db: u.session()}
}

func (u *UoW) ProviderPayouts() repository.ProviderPayoutRepository {
	return &providerPayoutRepository{db: u.session()}
}

func (u *UoW) Outbox() repository.OutboxRepository {
	return &outboxRepository{db: u.session()}
}

func (u *UoW) Webhooks() repository.WebhookEventRepository {
	return &webhookEventRepository{db: u.session()}
}

func (u *UoW) Payments() repository.ProviderPaymentRepository {
	return &paymentRepository{db: u.session()}
}

func (u *UoW) Billing() repository.BillingRepository {
	return &billingRepository{db: u.session()}
}

func (u *UoW) Policies() repository.PolicyRepository {
	return &policyRepository{db: u.session()}
}

func (u *UoW) Alerts() repository.AlertRepository {
	return &alertRepository{db: u.session()}
}

func (u *UoW) OpsLogs() repository.OpsLogRepository {
	return &opsLogRepository{db: u.session()}
}

func (u *UoW) Metrics() repository.MetricsRepository {
	return &metricsRepository{db: u.session()}
}

type completionHooks struct {
	mu  sync.Mutex
	fns []func(ctx context.Context)
}

func (h *completionHooks) add(fn func(ctx context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

func (h *completionHooks) run(ctx context.Context) {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

var _ repository.UnitOfWork = (*UoW)(nil)
