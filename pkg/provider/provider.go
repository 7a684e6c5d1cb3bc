// Package provider declares the external payout provider the settlement
// engine releases seller earnings through.
package provider

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPayoutNotFound is returned by GetPayoutStatus for ids the provider never saw.
	ErrPayoutNotFound = errors.New("provider payout not found")
	// ErrSubMerchantNotFound is returned by UpdateSubMerchant for unknown keys.
	ErrSubMerchantNotFound = errors.New("provider sub-merchant not found")
	// ErrUnavailable marks transient provider failures.
	ErrUnavailable = errors.New("payout provider unavailable")
)

// PayoutStatus is the provider-side state of a split payout.
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "PENDING"
	PayoutSucceeded PayoutStatus = "SUCCEEDED"
	PayoutFailed    PayoutStatus = "FAILED"
)

type SubMerchantInput struct {
	TenantID   string
	IBAN       string
	HolderName string
	Email      string
	Currency   string
}

type SubMerchant struct {
	Key string
}

// SplitPayoutInput sends NetAmount to the sub-merchant and keeps
// CommissionAmount on the platform.
type SplitPayoutInput struct {
	ProviderPayoutID string
	SubMerchantKey   string
	NetAmount        decimal.Decimal
	CommissionAmount decimal.Decimal
	Currency         string
	IdempotencyKey   string
}

type SplitPayoutResult struct {
	ExternalReference string
	Status            PayoutStatus
}

type PayoutStatusResult struct {
	ProviderPayoutID  string
	Status            PayoutStatus
	ExternalReference string
	FailureReason     string
}

// PayoutProvider is the adapter boundary. Implementations must be safe for
// concurrent use and must treat ProviderPayoutID as an idempotency key.
type PayoutProvider interface {
	CreateSubMerchant(ctx context.Context, in SubMerchantInput) (*SubMerchant, error)
	UpdateSubMerchant(ctx context.Context, key, iban, holderName string) error
	CreateSplitPayout(ctx context.Context, in SplitPayoutInput) (*SplitPayoutResult, error)
	GetPayoutStatus(ctx context.Context, providerPayoutID string) (*PayoutStatusResult, error)
	VerifyWebhookSignature(signature string, payload []byte) bool
}
