// Package escrow models buyer payments captured by the provider and held
// for the seller until release.
package escrow

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrPaymentNotFound    = errors.New("provider payment not found")
	ErrPaymentNotCaptured = errors.New("provider payment is not in PAID state")
)

// PaymentStatus of a captured provider payment.
type PaymentStatus string

const (
	PaymentPaid       PaymentStatus = "PAID"
	PaymentRefunded   PaymentStatus = "REFUNDED"
	PaymentChargeback PaymentStatus = "CHARGEBACK"
)

// ProviderPayment is a buyer payment held in escrow. TenantID is the
// selling tenant whose GMV the payment counts toward.
type ProviderPayment struct {
	ID                string          `json:"id"`
	ProviderPaymentID string          `json:"providerPaymentId"`
	TenantID          string          `json:"tenantId"`
	BuyerTenantID     string          `json:"buyerTenantId,omitempty"`
	OrderID           string          `json:"orderId"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Status            PaymentStatus   `json:"status"`
	PaidAt            time.Time       `json:"paidAt"`
	ReversedAt        *time.Time      `json:"reversedAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// ReversalSplit is how a refund or chargeback is funded: first from the
// seller's available wallet, the remainder as a receivable.
type ReversalSplit struct {
	FromWallet     decimal.Decimal
	FromReceivable decimal.Decimal
}

// SplitReversal funds amount from available first.
func SplitReversal(amount, available decimal.Decimal) ReversalSplit {
	if available.IsNegative() {
		available = decimal.Zero
	}
	if available.GreaterThanOrEqual(amount) {
		return ReversalSplit{FromWallet: amount, FromReceivable: decimal.Zero}
	}
	return ReversalSplit{FromWallet: available, FromReceivable: amount.Sub(available)}
}
