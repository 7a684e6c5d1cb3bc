package repository

import (
	"context"
	"time"

	"github.com/amirasaad/settlement/pkg/domain/billing"
	"github.com/amirasaad/settlement/pkg/domain/escrow"
	"github.com/amirasaad/settlement/pkg/domain/idempotency"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/metrics"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/domain/rollout"
	"github.com/amirasaad/settlement/pkg/domain/webhook"
	"github.com/shopspring/decimal"
)

// Find* methods return (nil, nil) when nothing matches. Get* methods return
// domain.ErrNotFound. Inserts that hit a unique index return
// domain.ErrAlreadyExists.

type IdempotencyRepository interface {
	FindByKey(ctx context.Context, key string) (*idempotency.Record, error)
	Insert(ctx context.Context, rec *idempotency.Record) error
	Complete(ctx context.Context, key string, result []byte, at time.Time) error
}

// EntryFilter narrows ListEntries. Zero fields do not filter.
type EntryFilter struct {
	TenantID     string
	AccountTypes []ledger.AccountType
	From         time.Time
	To           time.Time
}

// GroupFilter narrows ListGroups. Zero fields do not filter.
type GroupFilter struct {
	Type      ledger.GroupType
	KeyPrefix string
	Keys      []string
	Limit     int
}

type LedgerRepository interface {
	FindAccount(ctx context.Context, tenantID string) (*ledger.Account, error)
	// LockAccount is FindAccount holding a row lock until the transaction
	// ends. Backends without row locks fall back to a plain read.
	LockAccount(ctx context.Context, tenantID string) (*ledger.Account, error)
	CreateAccount(ctx context.Context, acct *ledger.Account) error
	ListAccounts(ctx context.Context) ([]*ledger.Account, error)
	// ApplyWalletDelta adds the deltas to the cached balances in one statement.
	// A negative available delta only applies while the balance covers it,
	// otherwise it fails with ledger.ErrWalletOverdrawn.
	ApplyWalletDelta(ctx context.Context, accountID string, available, reserved decimal.Decimal, at time.Time) error

	FindGroupByKey(ctx context.Context, key string) (*ledger.Group, error)
	// InsertGroup writes the group and its entries.
	InsertGroup(ctx context.Context, g *ledger.Group) error
	ListGroups(ctx context.Context, f GroupFilter) ([]*ledger.Group, error)
	ListEntries(ctx context.Context, f EntryFilter) ([]ledger.Entry, error)
}

type DestinationRepository interface {
	Create(ctx context.Context, d *payout.Destination) error
	Get(ctx context.Context, id string) (*payout.Destination, error)
	// FindByFingerprint looks a destination up by the keyed hash of its
	// normalised IBAN.
	FindByFingerprint(ctx context.Context, tenantID, fingerprint string) (*payout.Destination, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*payout.Destination, error)
	UpdateStatus(ctx context.Context, id string, status payout.DestinationStatus, at time.Time) error
}

type PayoutRequestRepository interface {
	Create(ctx context.Context, r *payout.Request) error
	Get(ctx context.Context, id string) (*payout.Request, error)
	List(ctx context.Context, tenantID string, status payout.RequestStatus) ([]*payout.Request, error)
}

type ProfileRepository interface {
	FindByTenant(ctx context.Context, tenantID string) (*payout.SellerPaymentProfile, error)
	Create(ctx context.Context, p *payout.SellerPaymentProfile) error
	Update(ctx context.Context, p *payout.SellerPaymentProfile) error
}

// PayoutFilter narrows ProviderPayoutRepository.List. Zero fields do not filter.
type PayoutFilter struct {
	SellerTenantID string
	Statuses       []payout.ProviderStatus
	CreatedFrom    time.Time
	CreatedTo      time.Time
	UpdatedBefore  time.Time
	SucceededIn    [2]time.Time
	Limit          int
}

type ProviderPayoutRepository interface {
	Create(ctx context.Context, p *payout.ProviderPayout) error
	GetByProviderID(ctx context.Context, providerPayoutID string) (*payout.ProviderPayout, error)
	List(ctx context.Context, f PayoutFilter) ([]*payout.ProviderPayout, error)
	// ListQueuedWithoutOutbox returns QUEUED payouts that have no outbox row.
	ListQueuedWithoutOutbox(ctx context.Context, limit int) ([]*payout.ProviderPayout, error)
	// ListSucceededWithoutFinalize returns SUCCEEDED payouts that no
	// PAYOUT_FINALIZE ledger group references.
	ListSucceededWithoutFinalize(ctx context.Context, limit int) ([]*payout.ProviderPayout, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, o *payout.Outbox) error
	Get(ctx context.Context, id string) (*payout.Outbox, error)
	FindByProviderPayoutID(ctx context.Context, providerPayoutID string) (*payout.Outbox, error)
	// ListDue returns PENDING or FAILED rows below maxAttempts whose
	// next_retry_at is null or not after now.
	ListDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*payout.Outbox, error)
	ListStaleSending(ctx context.Context, before time.Time, limit int) ([]*payout.Outbox, error)
}

type WebhookEventRepository interface {
	Insert(ctx context.Context, e *webhook.Event) error
	Get(ctx context.Context, id string) (*webhook.Event, error)
	ListByStatus(ctx context.Context, status webhook.Status, limit int) ([]*webhook.Event, error)
}

// PaymentFilter narrows ProviderPaymentRepository.List. Zero fields do not filter.
type PaymentFilter struct {
	TenantID   string
	Statuses   []escrow.PaymentStatus
	PaidFrom   time.Time
	PaidTo     time.Time
	ReversedIn [2]time.Time
}

type ProviderPaymentRepository interface {
	Create(ctx context.Context, p *escrow.ProviderPayment) error
	FindByProviderID(ctx context.Context, providerPaymentID string) (*escrow.ProviderPayment, error)
	List(ctx context.Context, f PaymentFilter) ([]*escrow.ProviderPayment, error)
	// MarkReversed moves a PAID payment to status and stamps reversed_at. It
	// reports false when the payment is no longer PAID.
	MarkReversed(ctx context.Context, id string, status escrow.PaymentStatus, at time.Time) (bool, error)
}

// InvoiceFilter narrows BillingRepository.ListInvoices. Zero fields do not filter.
type InvoiceFilter struct {
	TenantID         string
	SubscriptionID   string
	Statuses         []billing.InvoiceStatus
	CollectionStatus billing.CollectionStatus
	DueBefore        time.Time
	GraceEndsBefore  time.Time
	ExcludeInvoiceID string
	Limit            int
}

type BillingRepository interface {
	CreatePlan(ctx context.Context, p *billing.Plan) error
	GetPlan(ctx context.Context, id string) (*billing.Plan, error)
	ListPlans(ctx context.Context) ([]*billing.Plan, error)

	CreateSubscription(ctx context.Context, s *billing.Subscription) error
	GetSubscription(ctx context.Context, id string) (*billing.Subscription, error)
	FindActiveSubscription(ctx context.Context, tenantID string) (*billing.Subscription, error)
	// ListSubscriptionsEndingBefore returns ACTIVE subscriptions whose period ended.
	ListSubscriptionsEndingBefore(ctx context.Context, at time.Time, limit int) ([]*billing.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, fields map[string]any) error

	CreateInvoice(ctx context.Context, inv *billing.Invoice) error
	GetInvoice(ctx context.Context, id string) (*billing.Invoice, error)
	FindInvoice(ctx context.Context, subscriptionID, periodKey string) (*billing.Invoice, error)
	ListInvoices(ctx context.Context, f InvoiceFilter) ([]*billing.Invoice, error)
	CountInvoices(ctx context.Context, f InvoiceFilter) (int64, error)

	// AddUsage increments the tenant's counters for day, creating the row.
	AddUsage(ctx context.Context, tenantID string, day time.Time, impressions, clicks int64, at time.Time) error
	SumImpressions(ctx context.Context, tenantID string, from, to time.Time) (int64, error)
}

type PolicyRepository interface {
	Find(ctx context.Context, tenantID string) (*rollout.Policy, error)
	Upsert(ctx context.Context, p *rollout.Policy) error
	// SetBoostPaused creates the policy row when absent.
	SetBoostPaused(ctx context.Context, tenantID string, paused bool, at time.Time) error
}

// AlertFilter narrows AlertRepository.List. Zero fields do not filter.
type AlertFilter struct {
	Type        ops.AlertType
	Severity    ops.Severity
	Unresolved  bool
	CreatedFrom time.Time
	CreatedTo   time.Time
	Limit       int
}

type AlertRepository interface {
	// InsertIfAbsent reports whether the alert was new for its (type, reference).
	InsertIfAbsent(ctx context.Context, a *ops.Alert) (bool, error)
	List(ctx context.Context, f AlertFilter) ([]*ops.Alert, error)
	Count(ctx context.Context, f AlertFilter) (int64, error)
	Resolve(ctx context.Context, id string, at time.Time) error
}

// OpsLogFilter narrows OpsLogRepository.List. Zero fields do not filter.
type OpsLogFilter struct {
	TenantID   string
	Action     ops.Action
	Severity   ops.Severity
	EntityType string
	EntityID   string
	Limit      int
}

type OpsLogRepository interface {
	Append(ctx context.Context, e *ops.LogEntry) error
	List(ctx context.Context, f OpsLogFilter) ([]*ops.LogEntry, error)
}

type MetricsRepository interface {
	UpsertPlatform(ctx context.Context, m *metrics.Daily) error
	UpsertTenant(ctx context.Context, m *metrics.Daily) error
	ListPlatform(ctx context.Context, from, to time.Time) ([]*metrics.Daily, error)
	ListTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*metrics.Daily, error)
}
