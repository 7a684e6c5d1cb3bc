// Package events defines the domain events carried on the event bus.
// Handlers run outside the emitting transaction, so an event survives a
// rollback of the work that produced it.
package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names an event on the bus.
type EventType string

const (
	EventTypePolicyViolated        EventType = "Policy.Violated"
	EventTypeIntegrityAlertRaised  EventType = "Integrity.AlertRaised"
	EventTypeWebhookReplayRejected EventType = "Webhook.ReplayRejected"
	EventTypePayoutFinalized       EventType = "Payout.Finalized"
	EventTypeBillingStateChanged   EventType = "Billing.StateChanged"
)

func (et EventType) String() string {
	return string(et)
}

// Event is implemented by everything emitted on the bus.
type Event interface {
	Type() string
}

// PolicyViolated is emitted when a risk guard refuses an operation.
type PolicyViolated struct {
	TenantID   string    `json:"tenantId"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Actor      string    `json:"actor"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// IntegrityAlertRaised is emitted for each new sentinel or repair finding.
type IntegrityAlertRaised struct {
	AlertID     string    `json:"alertId"`
	AlertType   string    `json:"alertType"`
	Severity    string    `json:"severity"`
	ReferenceID string    `json:"referenceId"`
	Details     string    `json:"details"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// WebhookReplayRejected is emitted when a delivery repeats a stored event.
type WebhookReplayRejected struct {
	ExternalEventID string    `json:"externalEventId"`
	EventType       string    `json:"eventType"`
	OccurredAt      time.Time `json:"occurredAt"`
}

// PayoutFinalized is emitted once the finalize ledger group is posted.
type PayoutFinalized struct {
	ProviderPayoutID string          `json:"providerPayoutId"`
	SellerTenantID   string          `json:"sellerTenantId"`
	ShipmentID       string          `json:"shipmentId"`
	NetAmount        decimal.Decimal `json:"netAmount"`
	Currency         string          `json:"currency"`
	LedgerGroupID    string          `json:"ledgerGroupId"`
	OccurredAt       time.Time       `json:"occurredAt"`
}

// BillingStateChanged is emitted when an invoice or subscription changes
// collection state, so quota caches can be dropped.
type BillingStateChanged struct {
	TenantID       string    `json:"tenantId"`
	SubscriptionID string    `json:"subscriptionId"`
	InvoiceID      string    `json:"invoiceId,omitempty"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func (PolicyViolated) Type() string        { return EventTypePolicyViolated.String() }
func (IntegrityAlertRaised) Type() string  { return EventTypeIntegrityAlertRaised.String() }
func (WebhookReplayRejected) Type() string { return EventTypeWebhookReplayRejected.String() }
func (PayoutFinalized) Type() string       { return EventTypePayoutFinalized.String() }
func (BillingStateChanged) Type() string   { return EventTypeBillingStateChanged.String() }

// EventTypes builds an empty event for decoding a bus envelope.
var EventTypes = map[EventType]func() Event{
	EventTypePolicyViolated:        func() Event { return &PolicyViolated{} },
	EventTypeIntegrityAlertRaised:  func() Event { return &IntegrityAlertRaised{} },
	EventTypeWebhookReplayRejected: func() Event { return &WebhookReplayRejected{} },
	EventTypePayoutFinalized:       func() Event { return &PayoutFinalized{} },
	EventTypeBillingStateChanged:   func() Event { return &BillingStateChanged{} },
}

// As unwraps e into T whether it was emitted by value or decoded into a
// pointer by a transport.
func As[T Event](e Event) (T, bool) {
	if v, ok := e.(T); ok {
		return v, true
	}
	if p, ok := any(e).(*T); ok && p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}
