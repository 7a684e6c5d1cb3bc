// Package rollout carries per-tenant risk caps and kill-switches.
package rollout

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Code identifies a policy violation.
type Code string

const (
	CodeDailyGmvLimitExceeded    Code = "DAILY_GMV_LIMIT_EXCEEDED"
	CodeDailyPayoutLimitExceeded Code = "DAILY_PAYOUT_LIMIT_EXCEEDED"
	CodeSingleOrderLimitExceeded Code = "SINGLE_ORDER_LIMIT_EXCEEDED"
	CodeEscrowPaused             Code = "ESCROW_PAUSED"
	CodePayoutPaused             Code = "PAYOUT_PAUSED"
)

// Sentinels for errors.Is matching against a *ViolationError.
var (
	ErrDailyGmvLimitExceeded    = &ViolationError{Code: CodeDailyGmvLimitExceeded}
	ErrDailyPayoutLimitExceeded = &ViolationError{Code: CodeDailyPayoutLimitExceeded}
	ErrSingleOrderLimitExceeded = &ViolationError{Code: CodeSingleOrderLimitExceeded}
	ErrEscrowPaused             = &ViolationError{Code: CodeEscrowPaused}
	ErrPayoutPaused             = &ViolationError{Code: CodePayoutPaused}
)

// ViolationError is returned by every risk guard.
type ViolationError struct {
	Code     Code
	TenantID string
	Message  string
}

func (e *ViolationError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code so callers can compare with the package sentinels.
func (e *ViolationError) Is(target error) bool {
	t, ok := target.(*ViolationError)
	return ok && t.Code == e.Code
}

// Policy holds the caps and kill-switches of one tenant. A nil cap is unlimited.
type Policy struct {
	ID                   string           `json:"id"`
	TenantID             string           `json:"tenantId"`
	MaxDailyGmv          *decimal.Decimal `json:"maxDailyGmv,omitempty"`
	MaxDailyPayout       *decimal.Decimal `json:"maxDailyPayout,omitempty"`
	MaxSingleOrderAmount *decimal.Decimal `json:"maxSingleOrderAmount,omitempty"`
	EscrowPaused         bool             `json:"escrowPaused"`
	PayoutPaused         bool             `json:"payoutPaused"`
	BoostPaused          bool             `json:"boostPaused"`
	UpdatedAt            time.Time        `json:"updatedAt"`
}

// DayWindow returns the [start, end) bounds of the local day containing now.
func DayWindow(now time.Time, offset time.Duration) (time.Time, time.Time) {
	loc := time.FixedZone("risk", int(offset.Seconds()))
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.Add(24 * time.Hour).UTC()
}
