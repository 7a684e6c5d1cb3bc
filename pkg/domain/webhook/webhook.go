// Package webhook holds provider webhook events and their typed payloads.
package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrExpiredTimestamp = errors.New("Expired timestamp")
	ErrInvalidSignature = errors.New("Invalid signature")
	ErrReplayedPayload  = errors.New("Replayed payload")
	ErrInvalidPayload   = errors.New("Invalid payload")
)

// Status of a stored webhook event.
type Status string

const (
	StatusReceived  Status = "RECEIVED"
	StatusProcessed Status = "PROCESSED"
)

// Event is a webhook delivery that passed every ingestion gate.
type Event struct {
	ID              string
	ExternalEventID string
	EventType       Kind
	Payload         json.RawMessage
	Timestamp       int64
	Status          Status
	Outcome         string
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
}

// Delivery is the raw HTTP input.
type Delivery struct {
	Signature string
	Timestamp string
	Payload   []byte
}

// ParseTimestamp reads an epoch-milliseconds header.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrExpiredTimestamp
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, ErrExpiredTimestamp
	}
	return time.UnixMilli(ms).UTC(), nil
}

// WithinSkew reports whether ts lies within skew of now in either direction.
func WithinSkew(ts, now time.Time, skew time.Duration) bool {
	d := now.Sub(ts)
	if d < 0 {
		d = -d
	}
	return d <= skew
}

// ExternalEventID is the replay key: sha256 over payload, timestamp and type.
func ExternalEventID(payload []byte, timestamp string, eventType string) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(timestamp))
	h.Write([]byte(eventType))
	return hex.EncodeToString(h.Sum(nil))
}

// Kind tags a payload variant.
type Kind string

const (
	KindPayoutSucceeded Kind = "PAYOUT_SUCCEEDED"
	KindPayoutFailed    Kind = "PAYOUT_FAILED"
	KindChargeback      Kind = "CHARGEBACK"
	KindUnknown         Kind = "UNKNOWN"
)

// Payload is one typed webhook body.
type Payload interface {
	Kind() Kind
}

type PayoutSucceeded struct {
	ProviderPayoutID  string `json:"providerPayoutId"`
	ExternalReference string `json:"externalReference"`
}

type PayoutFailed struct {
	ProviderPayoutID string `json:"providerPayoutId"`
	Reason           string `json:"reason"`
}

type Chargeback struct {
	ProviderPaymentID string          `json:"providerPaymentId"`
	Amount            decimal.Decimal `json:"amount"`
	Reason            string          `json:"reason"`
}

// Unknown keeps event types this service does not act on.
type Unknown struct {
	EventType string          `json:"eventType"`
	Raw       json.RawMessage `json:"raw"`
}

func (PayoutSucceeded) Kind() Kind { return KindPayoutSucceeded }
func (PayoutFailed) Kind() Kind    { return KindPayoutFailed }
func (Chargeback) Kind() Kind      { return KindChargeback }
func (Unknown) Kind() Kind         { return KindUnknown }

type envelope struct {
	EventType string `json:"eventType"`
}

// EventTypeOf extracts the event type without validating the body. It
// returns "" when the payload is not a JSON object.
func EventTypeOf(raw []byte) string {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.EventType
}

// Parse decodes a payload into its variant.
func Parse(raw []byte) (Payload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	switch Kind(env.EventType) {
	case KindPayoutSucceeded:
		var p PayoutSucceeded
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.ProviderPayoutID == "" {
			return nil, fmt.Errorf("%w: providerPayoutId is required", ErrInvalidPayload)
		}
		return p, nil
	case KindPayoutFailed:
		var p PayoutFailed
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.ProviderPayoutID == "" {
			return nil, fmt.Errorf("%w: providerPayoutId is required", ErrInvalidPayload)
		}
		return p, nil
	case KindChargeback:
		var p Chargeback
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if p.ProviderPaymentID == "" || !p.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: chargeback needs providerPaymentId and a positive amount", ErrInvalidPayload)
		}
		return p, nil
	default:
		return Unknown{EventType: env.EventType, Raw: json.RawMessage(raw)}, nil
	}
}
