// Package ledger holds the double-entry journal types and the balance rules
// every group must satisfy before it is written.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies the leg of an entry.
type AccountType string

const (
	AccountWalletAvailable      AccountType = "WALLET_AVAILABLE"
	AccountWalletReserved       AccountType = "WALLET_RESERVED"
	AccountPayoutOut            AccountType = "PAYOUT_OUT"
	AccountPlatformRevenue      AccountType = "PLATFORM_REVENUE"
	AccountEscrowLiability      AccountType = "ESCROW_LIABILITY"
	AccountChargebackReceivable AccountType = "CHARGEBACK_RECEIVABLE"
	AccountProviderClearing     AccountType = "PROVIDER_CLEARING"
	AccountReceivable           AccountType = "ACCOUNTS_RECEIVABLE"
	AccountBoostRevenue         AccountType = "BOOST_REVENUE"
)

// Direction of an entry.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// GroupType names the financial event a group records.
type GroupType string

const (
	GroupPayoutReserve    GroupType = "PAYOUT_RESERVE"
	GroupPayoutComplete   GroupType = "PAYOUT_COMPLETE"
	GroupPayoutFinalize   GroupType = "PAYOUT_FINALIZE"
	GroupEscrowCapture    GroupType = "ESCROW_CAPTURE"
	GroupEarningRelease   GroupType = "EARNING_RELEASE"
	GroupChargeback       GroupType = "CHARGEBACK"
	GroupRefund           GroupType = "REFUND"
	GroupBoostInvoice     GroupType = "BOOST_INVOICE_ISSUE"
	GroupBoostPayment     GroupType = "BOOST_INVOICE_PAYMENT"
	GroupManualAdjustment GroupType = "MANUAL_ADJUSTMENT"
)

// FinalizeKeyPrefix prefixes the idempotency key of payout finalize groups.
const FinalizeKeyPrefix = "PAYOUT_FINALIZE:"

var (
	ErrUnbalancedGroup = errors.New("ledger group does not balance")
	ErrNegativeAmount  = errors.New("ledger entry amount must be non-negative")
	ErrMissingCurrency = errors.New("ledger entry currency is required")
	ErrTooFewEntries   = errors.New("ledger group needs at least two entries")
	ErrInvalidLine     = errors.New("ledger entry is invalid")
	ErrWalletOverdrawn = errors.New("wallet available balance would go negative")
)

// Account is the per-tenant ledger account. Balances are a cache of the
// wallet entries and may be rebuilt from them at any time.
type Account struct {
	ID               string
	TenantID         string
	Currency         string
	AvailableBalance decimal.Decimal
	ReservedBalance  decimal.Decimal
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Group is one atomic financial event.
type Group struct {
	ID             string
	TenantID       string
	Type           GroupType
	IdempotencyKey string
	Description    string
	Entries        []Entry
	CreatedAt      time.Time
}

// Entry is a single immutable journal leg.
type Entry struct {
	ID              string
	GroupID         string
	TenantID        string
	LedgerAccountID string
	AccountType     AccountType
	Direction       Direction
	Amount          decimal.Decimal
	Currency        string
	RefType         string
	ReferenceID     string
	CreatedAt       time.Time
}

// Line is an entry to be posted. TenantID selects the ledger account.
type Line struct {
	TenantID    string
	AccountType AccountType
	Direction   Direction
	Amount      decimal.Decimal
	Currency    string
	RefType     string
	ReferenceID string
}

// GroupInput describes a group to post.
type GroupInput struct {
	TenantID       string
	Type           GroupType
	IdempotencyKey string
	Description    string
	Lines          []Line
}

// Totals holds the per-currency debit and credit sums of a group.
type Totals struct {
	Currency string
	Debits   decimal.Decimal
	Credits  decimal.Decimal
}

// Balanced reports whether debits equal credits.
func (t Totals) Balanced() bool {
	return t.Debits.Equal(t.Credits)
}

// Validate rejects a group whose lines cannot be posted.
func (in GroupInput) Validate() error {
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		return fmt.Errorf("%w: idempotency key is required", ErrInvalidLine)
	}
	if in.Type == "" {
		return fmt.Errorf("%w: group type is required", ErrInvalidLine)
	}
	if len(in.Lines) < 2 {
		return ErrTooFewEntries
	}
	for i, l := range in.Lines {
		if l.TenantID == "" || l.AccountType == "" {
			return fmt.Errorf("%w: line %d needs tenant and account type", ErrInvalidLine, i)
		}
		if l.Direction != Debit && l.Direction != Credit {
			return fmt.Errorf("%w: line %d has direction %q", ErrInvalidLine, i, l.Direction)
		}
		if l.Amount.IsNegative() {
			return fmt.Errorf("%w: line %d", ErrNegativeAmount, i)
		}
		if strings.TrimSpace(l.Currency) == "" {
			return fmt.Errorf("%w: line %d", ErrMissingCurrency, i)
		}
	}
	for _, t := range TotalsOf(in.Lines) {
		if !t.Balanced() {
			return fmt.Errorf("%w: %s debits %s credits %s",
				ErrUnbalancedGroup, t.Currency, t.Debits.String(), t.Credits.String())
		}
	}
	return nil
}

// TotalsOf sums lines per currency, sorted by currency code.
func TotalsOf(lines []Line) []Totals {
	byCurrency := map[string]*Totals{}
	for _, l := range lines {
		t, ok := byCurrency[l.Currency]
		if !ok {
			t = &Totals{Currency: l.Currency, Debits: decimal.Zero, Credits: decimal.Zero}
			byCurrency[l.Currency] = t
		}
		if l.Direction == Debit {
			t.Debits = t.Debits.Add(l.Amount)
		} else {
			t.Credits = t.Credits.Add(l.Amount)
		}
	}
	out := make([]Totals, 0, len(byCurrency))
	for _, t := range byCurrency {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// WalletDelta returns the change a line applies to the cached wallet
// balances. Only wallet legs move the cache; CREDIT increases a balance.
func WalletDelta(l Line) (available, reserved decimal.Decimal) {
	signed := l.Amount
	if l.Direction == Debit {
		signed = signed.Neg()
	}
	switch l.AccountType {
	case AccountWalletAvailable:
		return signed, decimal.Zero
	case AccountWalletReserved:
		return decimal.Zero, signed
	default:
		return decimal.Zero, decimal.Zero
	}
}

// Balances are entry-derived wallet balances for one ledger account.
type Balances struct {
	Available decimal.Decimal
	Reserved  decimal.Decimal
}
