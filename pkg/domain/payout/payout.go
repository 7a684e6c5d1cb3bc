// Package payout models seller withdrawals: bank destinations, internal
// payout requests, and provider-backed release payouts with their outbox.
package payout

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount       = errors.New("Amount must be greater than zero")
	ErrDestinationNotFound = errors.New("Destination not found")
	ErrInsufficientFunds   = errors.New("Insufficient funds")
	ErrSellerNotOnboarded  = errors.New("Seller not onboarded: no active sub-merchant profile")
	ErrPayoutNotSucceeded  = errors.New("payout is not in SUCCEEDED state")
	ErrAmountMismatch      = errors.New("gross must equal commission plus net")
	ErrRequestNotFound     = errors.New("payout request not found")
	ErrPayoutNotFound      = errors.New("provider payout not found")
)

// DestinationStatus of a bank destination.
type DestinationStatus string

const (
	DestinationActive   DestinationStatus = "ACTIVE"
	DestinationDisabled DestinationStatus = "DISABLED"
)

// Destination is a tenant bank target. Raw values only exist encrypted.
type Destination struct {
	ID                  string
	TenantID            string
	IBANMasked          string
	IBANFingerprint     string
	HolderNameMasked    string
	IBANEncrypted       string
	HolderNameEncrypted string
	IsDefault           bool
	Status              DestinationStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DestinationView is what read APIs return.
type DestinationView struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenantId"`
	IBAN       string            `json:"iban"`
	HolderName string            `json:"holderName"`
	IsDefault  bool              `json:"isDefault"`
	Status     DestinationStatus `json:"status"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// View strips everything but the masked fields.
func (d *Destination) View() *DestinationView {
	return &DestinationView{
		ID:         d.ID,
		TenantID:   d.TenantID,
		IBAN:       d.IBANMasked,
		HolderName: d.HolderNameMasked,
		IsDefault:  d.IsDefault,
		Status:     d.Status,
		CreatedAt:  d.CreatedAt,
	}
}

// RequestStatus of an internal withdrawal.
type RequestStatus string

const (
	RequestRequested    RequestStatus = "REQUESTED"
	RequestApproved     RequestStatus = "APPROVED"
	RequestRejected     RequestStatus = "REJECTED"
	RequestProcessing   RequestStatus = "PROCESSING"
	RequestPaidInternal RequestStatus = "PAID_INTERNAL"
	RequestFailed       RequestStatus = "FAILED"
)

// FailureInsufficientFunds is stored when the processing-time balance check fails.
const FailureInsufficientFunds = "INSUFFICIENT_FUNDS"

// Request is a seller-initiated withdrawal settled against the internal ledger.
type Request struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenantId"`
	DestinationID  string          `json:"destinationId"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         RequestStatus   `json:"status"`
	RequestedBy    string          `json:"requestedBy"`
	ApprovedBy     string          `json:"approvedBy,omitempty"`
	FailureCode    string          `json:"failureCode,omitempty"`
	FailureMessage string          `json:"failureMessage,omitempty"`
	RequestedAt    time.Time       `json:"requestedAt"`
	ApprovedAt     *time.Time      `json:"approvedAt,omitempty"`
	RejectedAt     *time.Time      `json:"rejectedAt,omitempty"`
	ProcessingAt   *time.Time      `json:"processingAt,omitempty"`
	PaidAt         *time.Time      `json:"paidAt,omitempty"`
	FailedAt       *time.Time      `json:"failedAt,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ProfileStatus of a seller payment profile.
type ProfileStatus string

const (
	ProfileActive   ProfileStatus = "ACTIVE"
	ProfileInactive ProfileStatus = "INACTIVE"
)

// SellerPaymentProfile links a tenant to its provider sub-merchant.
type SellerPaymentProfile struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenantId"`
	SubMerchantKey string        `json:"subMerchantKey"`
	DestinationID  string        `json:"destinationId"`
	Status         ProfileStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Active reports whether payouts may be released to this seller.
func (p *SellerPaymentProfile) Active() bool {
	return p != nil && p.Status == ProfileActive && p.SubMerchantKey != ""
}

// ProviderStatus of an external release payout.
type ProviderStatus string

const (
	ProviderQueued            ProviderStatus = "QUEUED"
	ProviderSent              ProviderStatus = "SENT"
	ProviderSucceeded         ProviderStatus = "SUCCEEDED"
	ProviderFailed            ProviderStatus = "FAILED"
	ProviderReconcileRequired ProviderStatus = "RECONCILE_REQUIRED"
)

// CapCountedStatuses are the payout states counted against the daily payout cap.
var CapCountedStatuses = []ProviderStatus{
	ProviderQueued, ProviderSent, ProviderSucceeded, ProviderReconcileRequired,
}

// ProviderPayout is one release of seller earnings through the provider.
type ProviderPayout struct {
	ID                string          `json:"id"`
	ProviderPayoutID  string          `json:"providerPayoutId"`
	IdempotencyKey    string          `json:"idempotencyKey"`
	ShipmentID        string          `json:"shipmentId"`
	SellerTenantID    string          `json:"sellerTenantId"`
	GrossAmount       decimal.Decimal `json:"grossAmount"`
	CommissionAmount  decimal.Decimal `json:"commissionAmount"`
	NetAmount         decimal.Decimal `json:"netAmount"`
	Currency          string          `json:"currency"`
	Status            ProviderStatus  `json:"status"`
	ExternalReference string          `json:"externalReference,omitempty"`
	FailureReason     string          `json:"failureReason,omitempty"`
	SentAt            *time.Time      `json:"sentAt,omitempty"`
	SucceededAt       *time.Time      `json:"succeededAt,omitempty"`
	FailedAt          *time.Time      `json:"failedAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// OutboxStatus of a dispatch envelope.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "PENDING"
	OutboxSending OutboxStatus = "SENDING"
	OutboxSent    OutboxStatus = "SENT"
	OutboxFailed  OutboxStatus = "FAILED"
)

// Outbox is the dispatch bookkeeping for one ProviderPayout.
type Outbox struct {
	ID               string
	IdempotencyKey   string
	ProviderPayoutID string
	Payload          OutboxPayload
	Status           OutboxStatus
	AttemptCount     int
	NextRetryAt      *time.Time
	LastError        string
	SentAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OutboxPayload is the envelope the worker replays to the provider.
type OutboxPayload struct {
	ProviderPayoutID string          `json:"providerPayoutId"`
	SellerTenantID   string          `json:"sellerTenantId"`
	NetAmount        decimal.Decimal `json:"netAmount"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
	Currency         string          `json:"currency"`
}

// Parked reports whether a failed row has exhausted its retries.
func (o *Outbox) Parked(maxAttempts int) bool {
	return o.Status == OutboxFailed && o.AttemptCount >= maxAttempts
}

// NextRetry returns now + 2^attempts minutes.
func NextRetry(now time.Time, attempts int) time.Time {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 20 {
		attempts = 20
	}
	return now.Add(time.Duration(1<<uint(attempts)) * time.Minute)
}
