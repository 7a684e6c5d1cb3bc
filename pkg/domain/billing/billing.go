// Package billing models recurring boost subscriptions, their invoices and
// the dunning states an unpaid invoice moves through.
package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FeatureBoost is the tenant feature flag that gates boost billing.
const FeatureBoost = "BOOST_ENABLED"

var (
	ErrBoostPaused          = errors.New("boost is paused for tenant")
	ErrPlanNotFound         = errors.New("boost plan not found or inactive")
	ErrSubscriptionNotFound = errors.New("boost subscription not found")
	ErrSubscriptionExists   = errors.New("tenant already has an active boost subscription")
	ErrSubscriptionInactive = errors.New("boost subscription is not active")
	ErrFeatureDisabled      = errors.New("BOOST_ENABLED is not active for this tenant")
	ErrInvoiceNotFound      = errors.New("boost invoice not found")
	ErrInvoiceNotPayable    = errors.New("boost invoice is not payable")
	ErrInvoiceExists        = errors.New("invoice already issued for this period")
	ErrInvalidPeriod        = errors.New("period key must look like YYYY-MM")
)

// SubscriptionStatus of a boost subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionPaused    SubscriptionStatus = "PAUSED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
)

// InvoiceStatus of a boost invoice.
type InvoiceStatus string

const (
	InvoiceIssued InvoiceStatus = "ISSUED"
	InvoicePaid   InvoiceStatus = "PAID"
	InvoiceVoid   InvoiceStatus = "VOID"
)

// CollectionStatus is the dunning state of an invoice.
type CollectionStatus string

const (
	CollectionCurrent CollectionStatus = "CURRENT"
	CollectionGrace   CollectionStatus = "GRACE"
	CollectionOverdue CollectionStatus = "OVERDUE"
)

type Plan struct {
	ID                     string          `json:"id"`
	Code                   string          `json:"code"`
	Name                   string          `json:"name"`
	MonthlyPrice           decimal.Decimal `json:"monthlyPrice"`
	Currency               string          `json:"currency"`
	MonthlyImpressionQuota int64           `json:"monthlyImpressionQuota"`
	IsActive               bool            `json:"isActive"`
	CreatedAt              time.Time       `json:"createdAt"`
}

type Subscription struct {
	ID                 string             `json:"id"`
	TenantID           string             `json:"tenantId"`
	PlanID             string             `json:"planId"`
	Status             SubscriptionStatus `json:"status"`
	AutoRenew          bool               `json:"autoRenew"`
	BillingBlocked     bool               `json:"billingBlocked"`
	BlockedAt          *time.Time         `json:"blockedAt,omitempty"`
	CurrentPeriodStart time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd   time.Time          `json:"currentPeriodEnd"`
	CancelledAt        *time.Time         `json:"cancelledAt,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

type Invoice struct {
	ID               string           `json:"id"`
	TenantID         string           `json:"tenantId"`
	SubscriptionID   string           `json:"subscriptionId"`
	PeriodKey        string           `json:"periodKey"`
	Amount           decimal.Decimal  `json:"amount"`
	Currency         string           `json:"currency"`
	Status           InvoiceStatus    `json:"status"`
	CollectionStatus CollectionStatus `json:"collectionStatus"`
	LedgerGroupID    string           `json:"ledgerGroupId,omitempty"`
	IssuedAt         time.Time        `json:"issuedAt"`
	DueAt            time.Time        `json:"dueAt"`
	GraceEndsAt      *time.Time       `json:"graceEndsAt,omitempty"`
	OverdueAt        *time.Time       `json:"overdueAt,omitempty"`
	PaidAt           *time.Time       `json:"paidAt,omitempty"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// UsageDaily is sponsored impressions served for a tenant on one day.
type UsageDaily struct {
	ID                   string
	TenantID             string
	Day                  time.Time
	SponsoredImpressions int64
	SponsoredClicks      int64
	UpdatedAt            time.Time
}

// ActiveBoost is the eligibility answer for sponsored inventory.
type ActiveBoost struct {
	Subscription   *Subscription `json:"subscription"`
	Plan           *Plan         `json:"plan"`
	UsedQuota      int64         `json:"usedQuota"`
	RemainingQuota int64         `json:"remainingQuota"`
}

// PeriodKey renders the UTC month of t as YYYY-MM.
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PeriodBounds returns [start, end) of a YYYY-MM period.
func PeriodBounds(key string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01", key, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, key)
	}
	return start, start.AddDate(0, 1, 0), nil
}
