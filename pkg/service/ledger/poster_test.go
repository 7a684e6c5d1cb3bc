package ledger_test

import (
	"context"
	"testing"
	"time"

	infrarepo "github.com/amirasaad/settlement/infra/repository"
	infratenant "github.com/amirasaad/settlement/infra/tenant"
	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/repository"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	"github.com/amirasaad/settlement/pkg/testutils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*ledgersvc.Poster, repository.UnitOfWork) {
	t.Helper()
	clock := testutils.NewClock(time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	db := testutils.NewTestDB(t, "seller-1")
	uow := infrarepo.NewUoW(db, infrarepo.WithClock(clock.Now))
	poster := ledgersvc.NewPoster(infratenant.NewDirectory(db, testutils.PlatformTenant), clock.Now, nil)
	return poster, uow
}

func line(tenant string, acct ledger.AccountType, dir ledger.Direction, amount string) ledger.Line {
	return ledger.Line{
		TenantID:    tenant,
		AccountType: acct,
		Direction:   dir,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "TRY",
	}
}

func release(key, amount string) ledger.GroupInput {
	return ledger.GroupInput{
		TenantID:       "seller-1",
		Type:           ledger.GroupEarningRelease,
		IdempotencyKey: key,
		Lines: []ledger.Line{
			line(testutils.PlatformTenant, ledger.AccountEscrowLiability, ledger.Debit, amount),
			line("seller-1", ledger.AccountWalletAvailable, ledger.Credit, amount),
		},
	}
}

func TestPostGroup_WritesEntriesAndMovesCache(t *testing.T) {
	poster, uow := setup(t)
	ctx := context.Background()

	var g *ledger.Group
	err := uow.Do(ctx, func(tx repository.UnitOfWork) error {
		var err error
		g, err = poster.PostGroup(ctx, tx, release("EARNING_RELEASE:s-1", "150.00"))
		return err
	})
	require.NoError(t, err)
	require.Len(t, g.Entries, 2)

	acct, err := uow.Ledger().FindAccount(ctx, "seller-1")
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.True(t, acct.AvailableBalance.Equal(decimal.RequireFromString("150")))

	b, err := ledgersvc.Balances(ctx, uow, "seller-1")
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(acct.AvailableBalance))
	assert.True(t, b.Reserved.IsZero())

	platform, err := uow.Ledger().FindAccount(ctx, testutils.PlatformTenant)
	require.NoError(t, err)
	require.NotNil(t, platform)
	assert.True(t, platform.AvailableBalance.IsZero(), "non-wallet legs leave the cache alone")
}

func TestPostGroup_SameKeyPostsOnce(t *testing.T) {
	poster, uow := setup(t)
	ctx := context.Background()

	first, err := poster.PostGroup(ctx, uow, release("EARNING_RELEASE:s-2", "10"))
	require.NoError(t, err)
	second, err := poster.PostGroup(ctx, uow, release("EARNING_RELEASE:s-2", "10"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	w, err := ledgersvc.WalletOf(ctx, uow, "seller-1")
	require.NoError(t, err)
	assert.True(t, w.Available.Equal(decimal.NewFromInt(10)))
	assert.True(t, w.Derived.Available.Equal(decimal.NewFromInt(10)))
}

func TestPostGroup_RejectsBeforeWriting(t *testing.T) {
	poster, uow := setup(t)
	ctx := context.Background()

	unbalanced := release("BAD:1", "10")
	unbalanced.Lines[1].Amount = decimal.NewFromInt(9)
	_, err := poster.PostGroup(ctx, uow, unbalanced)
	assert.ErrorIs(t, err, ledger.ErrUnbalancedGroup)

	single := release("BAD:2", "10")
	single.Lines = single.Lines[:1]
	_, err = poster.PostGroup(ctx, uow, single)
	assert.ErrorIs(t, err, ledger.ErrTooFewEntries)

	groups, err := uow.Ledger().ListGroups(ctx, repository.GroupFilter{})
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestPostGroup_OverdrawFailsAndRollsBack(t *testing.T) {
	poster, uow := setup(t)
	ctx := context.Background()

	_, err := poster.PostGroup(ctx, uow, release("EARNING_RELEASE:s-4", "100"))
	require.NoError(t, err)

	reserve := ledger.GroupInput{
		TenantID:       "seller-1",
		Type:           ledger.GroupPayoutReserve,
		IdempotencyKey: "PAYOUT_RESERVE:r-1",
		Lines: []ledger.Line{
			line("seller-1", ledger.AccountWalletAvailable, ledger.Debit, "150"),
			line("seller-1", ledger.AccountWalletReserved, ledger.Credit, "150"),
		},
	}
	err = uow.Do(ctx, func(tx repository.UnitOfWork) error {
		_, err := poster.PostGroup(ctx, tx, reserve)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrWalletOverdrawn)

	g, err := uow.Ledger().FindGroupByKey(ctx, "PAYOUT_RESERVE:r-1")
	require.NoError(t, err)
	assert.Nil(t, g)
	w, err := ledgersvc.WalletOf(ctx, uow, "seller-1")
	require.NoError(t, err)
	assert.True(t, w.Available.Equal(decimal.NewFromInt(100)))
	assert.True(t, w.Reserved.IsZero())
}

func TestLockedBalances(t *testing.T) {
	poster, uow := setup(t)
	ctx := context.Background()

	b, err := ledgersvc.LockedBalances(ctx, uow, "seller-1")
	require.NoError(t, err)
	assert.True(t, b.Available.IsZero(), "no account yet")

	_, err = poster.PostGroup(ctx, uow, release("EARNING_RELEASE:s-5", "40"))
	require.NoError(t, err)
	err = uow.Do(ctx, func(tx repository.UnitOfWork) error {
		b, err = ledgersvc.LockedBalances(ctx, tx, "seller-1")
		return err
	})
	require.NoError(t, err)
	assert.True(t, b.Available.Equal(decimal.NewFromInt(40)))
}

func TestPostGroup_UnknownTenant(t *testing.T) {
	poster, uow := setup(t)
	in := release("EARNING_RELEASE:s-3", "5")
	in.Lines[1].TenantID = "ghost"
	_, err := poster.PostGroup(context.Background(), uow, in)
	assert.ErrorIs(t, err, domain.ErrUnknownTenant)
}

func TestSumWallet(t *testing.T) {
	b := ledgersvc.SumWallet([]ledger.Entry{
		{AccountType: ledger.AccountWalletAvailable, Direction: ledger.Credit, Amount: decimal.NewFromInt(100)},
		{AccountType: ledger.AccountWalletAvailable, Direction: ledger.Debit, Amount: decimal.NewFromInt(30)},
		{AccountType: ledger.AccountWalletReserved, Direction: ledger.Credit, Amount: decimal.NewFromInt(30)},
		{AccountType: ledger.AccountPayoutOut, Direction: ledger.Credit, Amount: decimal.NewFromInt(999)},
	})
	assert.True(t, b.Available.Equal(decimal.NewFromInt(70)))
	assert.True(t, b.Reserved.Equal(decimal.NewFromInt(30)))
}
