// Package model holds the gorm table models of the settlement store.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// IdempotencyRecord marks one logical operation as started or done.
type IdempotencyRecord struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	Key         string `gorm:"type:varchar(255);uniqueIndex;not null"`
	Scope       string `gorm:"type:varchar(64);not null"`
	Actor       string `gorm:"type:varchar(64)"`
	Status      string `gorm:"type:varchar(16);not null"`
	Result      string `gorm:"type:text"`
	CreatedAt   time.Time
	CompletedAt *time.Time
}

func (IdempotencyRecord) TableName() string { return "idempotency_records" }

type LedgerAccount struct {
	ID               string          `gorm:"type:varchar(36);primaryKey"`
	TenantID         string          `gorm:"type:varchar(64);uniqueIndex;not null"`
	Currency         string          `gorm:"type:varchar(3);not null"`
	AvailableBalance decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	ReservedBalance  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (LedgerAccount) TableName() string { return "ledger_accounts" }

type LedgerGroup struct {
	ID             string        `gorm:"type:varchar(36);primaryKey"`
	TenantID       string        `gorm:"type:varchar(64);index;not null"`
	Type           string        `gorm:"type:varchar(32);index;not null"`
	IdempotencyKey string        `gorm:"type:varchar(255);uniqueIndex;not null"`
	Description    string        `gorm:"type:varchar(255)"`
	Entries        []LedgerEntry `gorm:"foreignKey:GroupID"`
	CreatedAt      time.Time
}

func (LedgerGroup) TableName() string { return "ledger_groups" }

type LedgerEntry struct {
	ID              string          `gorm:"type:varchar(36);primaryKey"`
	GroupID         string          `gorm:"type:varchar(36);index;not null"`
	TenantID        string          `gorm:"type:varchar(64);index;not null"`
	LedgerAccountID string          `gorm:"type:varchar(36);index;not null"`
	AccountType     string          `gorm:"type:varchar(32);not null"`
	Direction       string          `gorm:"type:varchar(6);not null"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency        string          `gorm:"type:varchar(3);not null"`
	RefType         string          `gorm:"type:varchar(32)"`
	ReferenceID     string          `gorm:"type:varchar(64)"`
	CreatedAt       time.Time       `gorm:"index"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

type PayoutDestination struct {
	ID                  string `gorm:"type:varchar(36);primaryKey"`
	TenantID            string `gorm:"type:varchar(64);not null;uniqueIndex:ux_destination_tenant_iban"`
	IBANFingerprint     string `gorm:"column:iban_fingerprint;type:varchar(64);not null;uniqueIndex:ux_destination_tenant_iban"`
	IBANMasked          string `gorm:"column:iban_masked;type:varchar(64);not null"`
	HolderNameMasked    string `gorm:"type:varchar(128)"`
	IBANEncrypted       string `gorm:"column:iban_encrypted;type:text;not null"`
	HolderNameEncrypted string `gorm:"type:text;not null"`
	IsDefault           bool
	Status              string `gorm:"type:varchar(16);not null"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (PayoutDestination) TableName() string { return "payout_destinations" }

type PayoutRequest struct {
	ID             string          `gorm:"type:varchar(36);primaryKey"`
	TenantID       string          `gorm:"type:varchar(64);index;not null"`
	DestinationID  string          `gorm:"type:varchar(36);not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency       string          `gorm:"type:varchar(3);not null"`
	Status         string          `gorm:"type:varchar(16);index;not null"`
	RequestedBy    string          `gorm:"type:varchar(64)"`
	ApprovedBy     string          `gorm:"type:varchar(64)"`
	FailureCode    string          `gorm:"type:varchar(64)"`
	FailureMessage string          `gorm:"type:varchar(255)"`
	RequestedAt    time.Time
	ApprovedAt     *time.Time
	RejectedAt     *time.Time
	ProcessingAt   *time.Time
	PaidAt         *time.Time
	FailedAt       *time.Time
	UpdatedAt      time.Time
}

func (PayoutRequest) TableName() string { return "payout_requests" }

type SellerPaymentProfile struct {
	ID             string `gorm:"type:varchar(36);primaryKey"`
	TenantID       string `gorm:"type:varchar(64);uniqueIndex;not null"`
	SubMerchantKey string `gorm:"type:varchar(128)"`
	DestinationID  string `gorm:"type:varchar(36)"`
	Status         string `gorm:"type:varchar(16);not null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (SellerPaymentProfile) TableName() string { return "seller_payment_profiles" }

type ProviderPayout struct {
	ID                string          `gorm:"type:varchar(36);primaryKey"`
	ProviderPayoutID  string          `gorm:"type:varchar(64);uniqueIndex;not null"`
	IdempotencyKey    string          `gorm:"type:varchar(255);uniqueIndex;not null"`
	ShipmentID        string          `gorm:"type:varchar(64);not null"`
	SellerTenantID    string          `gorm:"type:varchar(64);index;not null"`
	GrossAmount       decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	CommissionAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	NetAmount         decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	Status            string          `gorm:"type:varchar(24);index;not null"`
	ExternalReference string          `gorm:"type:varchar(128)"`
	FailureReason     string          `gorm:"type:varchar(255)"`
	SentAt            *time.Time
	SucceededAt       *time.Time
	FailedAt          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time `gorm:"index"`
}

func (ProviderPayout) TableName() string { return "provider_payouts" }

type PayoutOutbox struct {
	ID               string `gorm:"type:varchar(36);primaryKey"`
	IdempotencyKey   string `gorm:"type:varchar(255);uniqueIndex;not null"`
	ProviderPayoutID string `gorm:"type:varchar(64);index;not null"`
	Payload          string `gorm:"type:text;not null"`
	Status           string `gorm:"type:varchar(16);index;not null"`
	AttemptCount     int    `gorm:"not null;default:0"`
	NextRetryAt      *time.Time
	LastError        string `gorm:"type:text"`
	SentAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (PayoutOutbox) TableName() string { return "payout_outbox" }

type ProviderWebhookEvent struct {
	ID              string `gorm:"type:varchar(36);primaryKey"`
	ExternalEventID string `gorm:"type:varchar(64);uniqueIndex;not null"`
	EventType       string `gorm:"type:varchar(32);not null"`
	Payload         string `gorm:"type:text;not null"`
	Timestamp       int64
	Status          string `gorm:"type:varchar(16);index;not null"`
	Outcome         string `gorm:"type:varchar(255)"`
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
	UpdatedAt       time.Time
}

func (ProviderWebhookEvent) TableName() string { return "provider_webhook_events" }

type ProviderPayment struct {
	ID                string          `gorm:"type:varchar(36);primaryKey"`
	ProviderPaymentID string          `gorm:"type:varchar(64);uniqueIndex;not null"`
	TenantID          string          `gorm:"type:varchar(64);index;not null"`
	BuyerTenantID     string          `gorm:"type:varchar(64)"`
	OrderID           string          `gorm:"type:varchar(64)"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	Status            string          `gorm:"type:varchar(16);index;not null"`
	PaidAt            time.Time       `gorm:"index"`
	ReversedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (ProviderPayment) TableName() string { return "provider_payments" }

type BoostPlan struct {
	ID                     string          `gorm:"type:varchar(36);primaryKey"`
	Code                   string          `gorm:"type:varchar(64);uniqueIndex;not null"`
	Name                   string          `gorm:"type:varchar(128);not null"`
	MonthlyPrice           decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency               string          `gorm:"type:varchar(3);not null"`
	MonthlyImpressionQuota int64
	IsActive               bool
	CreatedAt              time.Time
}

func (BoostPlan) TableName() string { return "boost_plans" }

type BoostSubscription struct {
	ID                 string `gorm:"type:varchar(36);primaryKey"`
	TenantID           string `gorm:"type:varchar(64);index;not null"`
	PlanID             string `gorm:"type:varchar(36);not null"`
	Status             string `gorm:"type:varchar(16);index;not null"`
	AutoRenew          bool
	BillingBlocked     bool
	BlockedAt          *time.Time
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelledAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (BoostSubscription) TableName() string { return "boost_subscriptions" }

type BoostInvoice struct {
	ID               string          `gorm:"type:varchar(36);primaryKey"`
	TenantID         string          `gorm:"type:varchar(64);index;not null"`
	SubscriptionID   string          `gorm:"type:varchar(36);not null;uniqueIndex:ux_invoice_subscription_period"`
	PeriodKey        string          `gorm:"type:varchar(7);not null;uniqueIndex:ux_invoice_subscription_period"`
	Amount           decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Currency         string          `gorm:"type:varchar(3);not null"`
	Status           string          `gorm:"type:varchar(16);not null"`
	CollectionStatus string          `gorm:"type:varchar(16);index;not null"`
	LedgerGroupID    string          `gorm:"type:varchar(36)"`
	IssuedAt         time.Time
	DueAt            time.Time
	GraceEndsAt      *time.Time
	OverdueAt        *time.Time
	PaidAt           *time.Time
	UpdatedAt        time.Time
}

func (BoostInvoice) TableName() string { return "boost_invoices" }

type BoostUsageDaily struct {
	ID                   string    `gorm:"type:varchar(36);primaryKey"`
	TenantID             string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_usage_tenant_day"`
	Day                  time.Time `gorm:"not null;uniqueIndex:ux_usage_tenant_day"`
	SponsoredImpressions int64     `gorm:"not null;default:0"`
	SponsoredClicks      int64     `gorm:"not null;default:0"`
	UpdatedAt            time.Time
}

func (BoostUsageDaily) TableName() string { return "boost_usage_daily" }

type TenantRolloutPolicy struct {
	ID                   string              `gorm:"type:varchar(36);primaryKey"`
	TenantID             string              `gorm:"type:varchar(64);uniqueIndex;not null"`
	MaxDailyGmv          decimal.NullDecimal `gorm:"type:decimal(20,4)"`
	MaxDailyPayout       decimal.NullDecimal `gorm:"type:decimal(20,4)"`
	MaxSingleOrderAmount decimal.NullDecimal `gorm:"type:decimal(20,4)"`
	EscrowPaused         bool                `gorm:"not null;default:false"`
	PayoutPaused         bool                `gorm:"not null;default:false"`
	BoostPaused          bool                `gorm:"not null;default:false"`
	UpdatedAt            time.Time
}

func (TenantRolloutPolicy) TableName() string { return "tenant_rollout_policies" }

type FinanceIntegrityAlert struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	Type        string `gorm:"type:varchar(32);not null;uniqueIndex:ux_alert_type_reference"`
	Severity    string `gorm:"type:varchar(16);not null"`
	ReferenceID string `gorm:"type:varchar(255);not null;uniqueIndex:ux_alert_type_reference"`
	Details     string `gorm:"type:text"`
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

func (FinanceIntegrityAlert) TableName() string { return "finance_integrity_alerts" }

type FinanceOpsLog struct {
	ID         string `gorm:"type:varchar(36);primaryKey"`
	TenantID   string `gorm:"type:varchar(64);index"`
	Actor      string `gorm:"type:varchar(64);not null"`
	Action     string `gorm:"type:varchar(64);index;not null"`
	EntityType string `gorm:"type:varchar(32)"`
	EntityID   string `gorm:"type:varchar(255)"`
	Severity   string `gorm:"type:varchar(16);not null"`
	Payload    string `gorm:"type:text"`
	CreatedAt  time.Time
}

func (FinanceOpsLog) TableName() string { return "finance_ops_logs" }

type PlatformDailyMetrics struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	Day          time.Time `gorm:"uniqueIndex;not null"`
	DailyFigures `gorm:"embedded"`
}

func (PlatformDailyMetrics) TableName() string { return "platform_daily_metrics" }

type TenantDailyMetrics struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	Day          time.Time `gorm:"not null;uniqueIndex:ux_tenant_metrics_day"`
	TenantID     string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_tenant_metrics_day"`
	DailyFigures `gorm:"embedded"`
}

func (TenantDailyMetrics) TableName() string { return "tenant_daily_metrics" }

// DailyFigures is embedded by both metrics tables.
type DailyFigures struct {
	GrossGmv              decimal.Decimal `gorm:"type:decimal(20,4)"`
	OrderCount            int64
	ActiveBuyers          int64
	ActiveSellers         int64
	CommissionRevenue     decimal.Decimal `gorm:"type:decimal(20,4)"`
	BoostRevenue          decimal.Decimal `gorm:"type:decimal(20,4)"`
	TakeRate              decimal.Decimal `gorm:"type:decimal(10,4)"`
	EscrowFloat           decimal.Decimal `gorm:"type:decimal(20,4)"`
	PayoutVolume          decimal.Decimal `gorm:"type:decimal(20,4)"`
	PayoutCount           int64
	ChargebackAmount      decimal.Decimal `gorm:"type:decimal(20,4)"`
	ChargebackCount       int64
	ReceivableOutstanding decimal.Decimal `gorm:"type:decimal(20,4)"`
	CriticalAlerts        int64
	ComputedAt            time.Time
}

// Company is the read-only tenant directory table owned by tenant management.
type Company struct {
	ID   string `gorm:"type:varchar(64);primaryKey"`
	Name string `gorm:"type:varchar(255)"`
}

func (Company) TableName() string { return "companies" }

// All lists the models owned by the settlement store, in migration order.
func All() []any {
	return []any{
		&IdempotencyRecord{},
		&LedgerAccount{},
		&LedgerGroup{},
		&LedgerEntry{},
		&PayoutDestination{},
		&PayoutRequest{},
		&SellerPaymentProfile{},
		&ProviderPayout{},
		&PayoutOutbox{},
		&ProviderWebhookEvent{},
		&ProviderPayment{},
		&BoostPlan{},
		&BoostSubscription{},
		&BoostInvoice{},
		&BoostUsageDaily{},
		&TenantRolloutPolicy{},
		&FinanceIntegrityAlert{},
		&FinanceOpsLog{},
		&PlatformDailyMetrics{},
		&TenantDailyMetrics{},
	}
}
