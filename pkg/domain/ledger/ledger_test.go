package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(dir Direction, acct AccountType, amount int64, currency string) Line {
	return Line{
		TenantID:    "T1",
		AccountType: acct,
		Direction:   dir,
		Amount:      decimal.NewFromInt(amount),
		Currency:    currency,
	}
}

func TestGroupInput_Validate(t *testing.T) {
	tests := []struct {
		name    string
		lines   []Line
		wantErr error
	}{
		{
			name: "balanced single currency",
			lines: []Line{
				line(Debit, AccountWalletAvailable, 100, "TRY"),
				line(Credit, AccountWalletReserved, 100, "TRY"),
			},
		},
		{
			name: "balanced three legs",
			lines: []Line{
				line(Debit, AccountEscrowLiability, 100, "TRY"),
				line(Credit, AccountPlatformRevenue, 10, "TRY"),
				line(Credit, AccountPayoutOut, 90, "TRY"),
			},
		},
		{
			name: "unbalanced",
			lines: []Line{
				line(Debit, AccountWalletAvailable, 100, "TRY"),
				line(Credit, AccountWalletReserved, 90, "TRY"),
			},
			wantErr: ErrUnbalancedGroup,
		},
		{
			name: "balanced overall but not per currency",
			lines: []Line{
				line(Debit, AccountWalletAvailable, 100, "TRY"),
				line(Credit, AccountWalletReserved, 100, "EUR"),
			},
			wantErr: ErrUnbalancedGroup,
		},
		{
			name:    "single line",
			lines:   []Line{line(Debit, AccountWalletAvailable, 100, "TRY")},
			wantErr: ErrTooFewEntries,
		},
		{
			name: "negative amount",
			lines: []Line{
				line(Debit, AccountWalletAvailable, -5, "TRY"),
				line(Credit, AccountWalletReserved, -5, "TRY"),
			},
			wantErr: ErrNegativeAmount,
		},
		{
			name: "missing currency",
			lines: []Line{
				line(Debit, AccountWalletAvailable, 5, ""),
				line(Credit, AccountWalletReserved, 5, ""),
			},
			wantErr: ErrMissingCurrency,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := GroupInput{TenantID: "T1", Type: GroupPayoutReserve, IdempotencyKey: "K", Lines: tt.lines}
			err := in.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGroupInput_ValidateRequiresKey(t *testing.T) {
	in := GroupInput{Type: GroupPayoutReserve, Lines: []Line{
		line(Debit, AccountWalletAvailable, 1, "TRY"),
		line(Credit, AccountWalletReserved, 1, "TRY"),
	}}
	assert.ErrorIs(t, in.Validate(), ErrInvalidLine)
}

func TestWalletDelta(t *testing.T) {
	avail, reserved := WalletDelta(line(Debit, AccountWalletAvailable, 40, "TRY"))
	assert.True(t, avail.Equal(decimal.NewFromInt(-40)))
	assert.True(t, reserved.IsZero())

	avail, reserved = WalletDelta(line(Credit, AccountWalletReserved, 40, "TRY"))
	assert.True(t, avail.IsZero())
	assert.True(t, reserved.Equal(decimal.NewFromInt(40)))

	avail, reserved = WalletDelta(line(Credit, AccountPayoutOut, 40, "TRY"))
	assert.True(t, avail.IsZero())
	assert.True(t, reserved.IsZero())
}
