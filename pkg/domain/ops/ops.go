// Package ops holds the finance observability trail: integrity alerts and
// the append-only ops/audit log with typed payloads.
package ops

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Severity of a log entry or alert.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// AlertType names an integrity finding.
type AlertType string

const (
	AlertLedgerUnbalanced  AlertType = "LEDGER_UNBALANCED"
	AlertFinalizeMissing   AlertType = "FINALIZE_MISSING"
	AlertFinalizeOrphan    AlertType = "FINALIZE_ORPHAN"
	AlertWalletDrift       AlertType = "WALLET_DRIFT"
	AlertOutboxMissing     AlertType = "OUTBOX_MISSING"
	AlertReconcileRequired AlertType = "RECONCILE_REQUIRED"
)

// Alert is deduplicated by (Type, ReferenceID).
type Alert struct {
	ID          string     `json:"id"`
	Type        AlertType  `json:"type"`
	Severity    Severity   `json:"severity"`
	ReferenceID string     `json:"referenceId"`
	Details     string     `json:"details"`
	CreatedAt   time.Time  `json:"createdAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
}

// Action names what an ops log entry records.
type Action string

const (
	ActionDestinationCreated       Action = "PAYOUT_DESTINATION_CREATED"
	ActionDestinationDisabled      Action = "PAYOUT_DESTINATION_DISABLED"
	ActionPayoutRequested          Action = "PAYOUT_REQUEST_CREATED"
	ActionPayoutApproved           Action = "PAYOUT_REQUEST_APPROVED"
	ActionPayoutRejected           Action = "PAYOUT_REQUEST_REJECTED"
	ActionPayoutPaidInternal       Action = "PAYOUT_REQUEST_PAID_INTERNAL"
	ActionPayoutFailed             Action = "PAYOUT_REQUEST_FAILED"
	ActionSellerOnboarded          Action = "SELLER_SUBMERCHANT_ONBOARDED"
	ActionSellerUpdated            Action = "SELLER_SUBMERCHANT_UPDATED"
	ActionReleaseEnqueued          Action = "RELEASE_PAYOUT_ENQUEUED"
	ActionOutboxParked             Action = "PAYOUT_OUTBOX_PARKED"
	ActionPayoutStatusChanged      Action = "PROVIDER_PAYOUT_STATUS_CHANGED"
	ActionPayoutFinalized          Action = "PAYOUT_FINALIZED"
	ActionWebhookReplayRejected    Action = "WEBHOOK_REPLAY_REJECTED"
	ActionPolicyViolation          Action = "POLICY_VIOLATION"
	ActionPolicyUpdated            Action = "ROLLOUT_POLICY_UPDATED"
	ActionSentinelScan             Action = "SENTINEL_SCAN"
	ActionOutboxStaleReset         Action = "OUTBOX_STALE_RESET"
	ActionReconcileRequired        Action = "PAYOUT_RECONCILE_REQUIRED"
	ActionEscrowCaptured           Action = "ESCROW_PAYMENT_CAPTURED"
	ActionEarningReleased          Action = "EARNING_RELEASED_TO_WALLET"
	ActionChargebackRecorded       Action = "CHARGEBACK_RECORDED"
	ActionRefundRecorded           Action = "REFUND_RECORDED"
	ActionBoostInvoiceIssued       Action = "BOOST_INVOICE_ISSUED"
	ActionBoostInvoicePaid         Action = "BOOST_INVOICE_PAID"
	ActionBoostInvoiceGraceStarted Action = "BOOST_INVOICE_GRACE_STARTED"
	ActionBoostInvoiceOverdue      Action = "BOOST_INVOICE_OVERDUE"
	ActionBoostSubscriptionBlocked Action = "BOOST_SUBSCRIPTION_BLOCKED_FOR_NONPAYMENT"
	ActionBoostSubscriptionChanged Action = "BOOST_SUBSCRIPTION_STATUS_CHANGED"
	ActionBoostSubscriptionRenewed Action = "BOOST_SUBSCRIPTION_RENEWED"
	ActionMetricsRollup            Action = "DAILY_METRICS_ROLLUP"
)

// LogEntry is one row of the append-only ops/audit trail.
type LogEntry struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId,omitempty"`
	Actor      string    `json:"actor"`
	Action     Action    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Severity   Severity  `json:"severity"`
	Payload    Payload   `json:"payload"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SystemActor is used by scheduled jobs.
const SystemActor = "SYSTEM"

// PayloadKind tags a payload variant.
type PayloadKind string

const (
	KindTransition      PayloadKind = "TRANSITION"
	KindMoney           PayloadKind = "MONEY"
	KindPolicyViolation PayloadKind = "POLICY_VIOLATION"
	KindWebhookReplay   PayloadKind = "WEBHOOK_REPLAY"
	KindSentinelScan    PayloadKind = "SENTINEL_SCAN"
	KindOutboxAttempt   PayloadKind = "OUTBOX_ATTEMPT"
	KindUnknown         PayloadKind = "UNKNOWN"
)

// Payload is a typed ops log body.
type Payload interface {
	Kind() PayloadKind
}

// Transition records a status change.
type Transition struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// Money records an amount that moved or was committed.
type Money struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	LedgerGroupID string          `json:"ledgerGroupId,omitempty"`
	Reference     string          `json:"reference,omitempty"`
}

type PolicyViolation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type WebhookReplay struct {
	ExternalEventID string `json:"externalEventId"`
	EventType       string `json:"eventType"`
}

type SentinelScan struct {
	NewFindings int            `json:"newFindings"`
	ByType      map[string]int `json:"byType"`
}

type OutboxAttempt struct {
	Attempts  int    `json:"attempts"`
	LastError string `json:"lastError,omitempty"`
}

// Unknown preserves payloads written by a kind this build does not know.
type Unknown struct {
	Raw json.RawMessage `json:"raw"`
}

func (Transition) Kind() PayloadKind      { return KindTransition }
func (Money) Kind() PayloadKind           { return KindMoney }
func (PolicyViolation) Kind() PayloadKind { return KindPolicyViolation }
func (WebhookReplay) Kind() PayloadKind   { return KindWebhookReplay }
func (SentinelScan) Kind() PayloadKind    { return KindSentinelScan }
func (OutboxAttempt) Kind() PayloadKind   { return KindOutboxAttempt }
func (Unknown) Kind() PayloadKind         { return KindUnknown }

type taggedPayload struct {
	Kind PayloadKind     `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// EncodePayload serialises a payload with its kind tag.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	if u, ok := p.(Unknown); ok {
		return u.Raw, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode ops payload: %w", err)
	}
	return json.Marshal(taggedPayload{Kind: p.Kind(), Data: data})
}

// DecodePayload is the inverse of EncodePayload. Unrecognised or malformed
// input comes back as Unknown rather than an error.
func DecodePayload(raw []byte) Payload {
	if len(raw) == 0 {
		return nil
	}
	var tp taggedPayload
	if err := json.Unmarshal(raw, &tp); err != nil {
		return Unknown{Raw: raw}
	}
	var (
		p   Payload
		err error
	)
	switch tp.Kind {
	case KindTransition:
		var v Transition
		err = json.Unmarshal(tp.Data, &v)
		p = v
	case KindMoney:
		var v Money
		err = json.Unmarshal(tp.Data, &v)
		p = v
	case KindPolicyViolation:
		var v PolicyViolation
		err = json.Unmarshal(tp.Data, &v)
		p = v
	case KindWebhookReplay:
		var v WebhookReplay
		err = json.Unmarshal(tp.Data, &v)
		p = v
	case KindSentinelScan:
		var v SentinelScan
		err = json.Unmarshal(tp.Data, &v)
		p = v
	case KindOutboxAttempt:
		var v OutboxAttempt
		err = json.Unmarshal(tp.Data, &v)
		p = v
	default:
		return Unknown{Raw: raw}
	}
	if err != nil {
		return Unknown{Raw: raw}
	}
	return p
}
