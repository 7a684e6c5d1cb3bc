package repository

import (
	"context"
	"strings"
	"time"
)

// ClaimTarget is a table whose rows move through a status machine.
type ClaimTarget string

const (
	ClaimPayoutRequest  ClaimTarget = "payout_requests"
	ClaimProviderPayout ClaimTarget = "provider_payouts"
	ClaimOutbox         ClaimTarget = "payout_outbox"
	ClaimWebhookEvent   ClaimTarget = "provider_webhook_events"
	ClaimInvoice        ClaimTarget = "boost_invoices"
	ClaimSubscription   ClaimTarget = "boost_subscriptions"

	// ClaimInvoiceCollection swaps the dunning column instead of status.
	ClaimInvoiceCollection ClaimTarget = "boost_invoices.collection_status"
)

// Table is the table the target updates.
func (t ClaimTarget) Table() string {
	table, _, _ := strings.Cut(string(t), ".")
	return table
}

// Column is the status column the target swaps, "status" unless qualified.
func (t ClaimTarget) Column() string {
	if _, col, ok := strings.Cut(string(t), "."); ok {
		return col
	}
	return "status"
}

// Claimer is the only mutual-exclusion primitive: a conditional update that
// succeeds for exactly one concurrent caller.
type Claimer interface {
	// CompareAndSwapStatus runs UPDATE ... SET status = to WHERE id = ? AND
	// status IN (from). It reports false when no row matched. set holds
	// extra columns written in the same statement; updated_at is always set.
	CompareAndSwapStatus(
		ctx context.Context,
		target ClaimTarget,
		id string,
		from []string,
		to string,
		set map[string]any,
	) (bool, error)

	// CompareAndSwapStale is CompareAndSwapStatus with the additional
	// condition updated_at < before, for reclaiming abandoned rows.
	CompareAndSwapStale(
		ctx context.Context,
		target ClaimTarget,
		id string,
		from string,
		before time.Time,
		to string,
		set map[string]any,
	) (bool, error)
}
