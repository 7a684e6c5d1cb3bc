package payout_test

import (
	"context"
	"testing"

	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/domain/rollout"
	"github.com/amirasaad/settlement/pkg/pii"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/service/idempotency"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	"github.com/amirasaad/settlement/pkg/service/opslog"
	payoutsvc "github.com/amirasaad/settlement/pkg/service/payout"
	"github.com/amirasaad/settlement/pkg/service/risk"
	"github.com/amirasaad/settlement/pkg/testutils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const iban = "TR33 0006 1005 1978 6457 8413 26"

type fixture struct {
	h        *testutils.Harness
	svc      *payoutsvc.Service
	poster   *ledgersvc.Poster
	audit    *opslog.Recorder
	policies *risk.Policies
}

func setup(t *testing.T) *fixture {
	t.Helper()
	h := testutils.NewHarness(t, "seller-1", "seller-2")
	audit := opslog.New(h.Uow, h.Clock.Now, nil)
	audit.Register(h.Bus)
	poster := ledgersvc.NewPoster(h.Deps.Tenants, h.Clock.Now, nil)
	riskGuard := risk.NewGuard(h.Bus, h.Clock.Now, h.Config.Risk.DayOffset, nil)
	svc := payoutsvc.NewService(h.Deps, idempotency.NewGuard(h.Uow, h.Clock.Now), poster, riskGuard, audit)
	return &fixture{h: h, svc: svc, poster: poster, audit: audit, policies: risk.NewPolicies(h.Uow, audit, h.Clock.Now, nil)}
}

func (f *fixture) fund(t *testing.T, tenantID, key, amount string) {
	t.Helper()
	_, err := f.poster.PostGroup(context.Background(), f.h.Uow, ledger.GroupInput{
		TenantID:       tenantID,
		Type:           ledger.GroupEarningRelease,
		IdempotencyKey: key,
		Lines: []ledger.Line{
			{TenantID: testutils.PlatformTenant, AccountType: ledger.AccountEscrowLiability, Direction: ledger.Debit, Amount: decimal.RequireFromString(amount), Currency: "TRY"},
			{TenantID: tenantID, AccountType: ledger.AccountWalletAvailable, Direction: ledger.Credit, Amount: decimal.RequireFromString(amount), Currency: "TRY"},
		},
	})
	require.NoError(t, err)
}

func (f *fixture) destination(t *testing.T, tenantID string) *payout.DestinationView {
	t.Helper()
	d, err := f.svc.CreateDestination(context.Background(), "user-1", payoutsvc.DestinationInput{
		TenantID:   tenantID,
		IBAN:       iban,
		HolderName: "Ahmet Yilmaz",
	})
	require.NoError(t, err)
	return d
}

func TestCreateDestination_EncryptsAndMasks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	d := f.destination(t, "seller-1")
	assert.Equal(t, "TR33 **** **** **** 1326", d.IBAN)
	assert.Equal(t, "A**** Y*****", d.HolderName)

	again := f.destination(t, "seller-1")
	assert.Equal(t, d.ID, again.ID)

	stored, err := f.h.Uow.Destinations().Get(ctx, d.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.IBANEncrypted, "TR33")
	plain, err := f.h.Deps.Cipher.Decrypt(stored.IBANEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "TR330006100519786457841326", plain)

	_, err = f.svc.CreateDestination(ctx, "user-1", payoutsvc.DestinationInput{
		TenantID: "seller-1", IBAN: "TR00 1234", HolderName: "X",
	})
	assert.ErrorIs(t, err, pii.ErrInvalidIBAN)
}

func TestCreateDestination_SameMaskDifferentIBAN(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first := f.destination(t, "seller-1")
	second, err := f.svc.CreateDestination(ctx, "user-1", payoutsvc.DestinationInput{
		TenantID:   "seller-1",
		IBAN:       "TR330006100034786457841326",
		HolderName: "Ayse Kaya",
	})
	require.NoError(t, err)
	assert.Equal(t, first.IBAN, second.IBAN, "both IBANs share a mask")
	assert.NotEqual(t, first.ID, second.ID)

	stored, err := f.h.Uow.Destinations().Get(ctx, second.ID)
	require.NoError(t, err)
	plain, err := f.h.Deps.Cipher.Decrypt(stored.IBANEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "TR330006100034786457841326", plain)

	// The same IBAN under another tenant is a separate destination.
	other := f.destination(t, "seller-2")
	assert.NotEqual(t, first.ID, other.ID)
}

func TestCreateRequest_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d := f.destination(t, "seller-1")
	f.fund(t, "seller-1", "EARNING_RELEASE:ship-1", "100")

	_, err := f.svc.CreateRequest(ctx, "user-1", payoutsvc.RequestInput{TenantID: "seller-1", DestinationID: d.ID, Amount: decimal.Zero})
	assert.ErrorIs(t, err, payout.ErrInvalidAmount)
	assert.EqualError(t, err, "Amount must be greater than zero")

	_, err = f.svc.CreateRequest(ctx, "user-2", payoutsvc.RequestInput{TenantID: "seller-2", DestinationID: d.ID, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, payout.ErrDestinationNotFound)

	_, err = f.svc.CreateRequest(ctx, "user-1", payoutsvc.RequestInput{TenantID: "seller-1", DestinationID: d.ID, Amount: decimal.NewFromInt(101)})
	assert.ErrorIs(t, err, payout.ErrInsufficientFunds)

	require.NoError(t, f.svc.DisableDestination(ctx, "user-1", "seller-1", d.ID))
	_, err = f.svc.CreateRequest(ctx, "user-1", payoutsvc.RequestInput{TenantID: "seller-1", DestinationID: d.ID, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, payout.ErrDestinationNotFound)
}

func TestCreateRequest_PayoutKillSwitch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d := f.destination(t, "seller-1")
	f.fund(t, "seller-1", "EARNING_RELEASE:ship-1", "100")
	_, err := f.policies.Upsert(ctx, "admin-1", risk.PolicyInput{TenantID: "seller-1", PayoutPaused: true})
	require.NoError(t, err)

	_, err = f.svc.CreateRequest(ctx, "user-1", payoutsvc.RequestInput{TenantID: "seller-1", DestinationID: d.ID, Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, rollout.ErrPayoutPaused)
}

func TestProcessInternal_PostsFourEntriesOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d := f.destination(t, "seller-1")
	f.fund(t, "seller-1", "EARNING_RELEASE:ship-1", "100")

	req, err := f.svc.CreateRequest(ctx, "user-1", payoutsvc.RequestInput{TenantID: "seller-1", DestinationID: d.ID, Amount: decimal.NewFromInt(60)})
	require.NoError(t, err)
	assert.Equal(t, payout.RequestRequested, req.Status)
	assert.Equal(t, "TRY", req.Currency)

	_, err = f.svc.ProcessInternal(ctx, "admin-1", req.ID)
	require.ErrorIs(t, err, domain.ErrInvalidTransition, "REQUESTED cannot be processed")

	_, err = f.svc.Approve(ctx, "admin-1", req.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, "admin-1", req.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	paid, err := f.svc.ProcessInternal(ctx, "admin-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, payout.RequestPaidInternal, paid.Status)
	assert.NotNil(t, paid.PaidAt)

	replay, err := f.svc.ProcessInternal(ctx, "admin-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, paid.ID, replay.ID)

	entries, err := f.h.Uow.Ledger().ListEntries(ctx, repository.EntryFilter{TenantID: "seller-1"})
	require.NoError(t, err)
	// one release credit plus reserve and complete legs
	assert.Len(t, entries, 5)

	w, err := ledgersvc.WalletOf(ctx, f.h.Uow, "seller-1")
	require.NoError(t, err)
	assert.True(t, w.Available.Equal(decimal.NewFromInt(40)))
	assert.True(t, w.Reserved.IsZero())
	assert.True(t, w.Derived.Available.Equal(w.Available))
}

func TestProcessInternal_InsufficientFundsFailsRequest(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d := f.destination(t, "seller-1")
	f.fund(t, "seller-1", "EARNING_RELEASE:ship-1", "100")

	first, err := f.svc.CreateRequest(ctx, "user-1", payoutsvc.RequestInput{TenantID: "seller-1", DestinationID: d.ID, Amount: decimal.NewFromInt(80)})
	require.NoError(t, err)
	second, err := f.svc.CreateRequest(ctx, "user-1", payoutsvc.RequestInput{TenantID: "seller-1", DestinationID: d.ID, Amount: decimal.NewFromInt(80)})
	require.NoError(t, err)
	for _, id := range []string{first.ID, second.ID} {
		_, err = f.svc.Approve(ctx, "admin-1", id)
		require.NoError(t, err)
	}

	_, err = f.svc.ProcessInternal(ctx, "admin-1", first.ID)
	require.NoError(t, err)
	_, err = f.svc.ProcessInternal(ctx, "admin-1", second.ID)
	require.ErrorIs(t, err, payout.ErrInsufficientFunds)

	failed, err := f.svc.GetRequest(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, payout.RequestFailed, failed.Status)
	assert.Equal(t, payout.FailureInsufficientFunds, failed.FailureCode)

	groups, err := f.h.Uow.Ledger().ListGroups(ctx, repository.GroupFilter{KeyPrefix: "PAYOUT_RESERVE:" + second.ID})
	require.NoError(t, err)
	assert.Empty(t, groups)

	rec, err := f.h.Uow.Idempotency().FindByKey(ctx, "PAYOUT_PROCESS:"+second.ID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	logs, err := f.audit.List(ctx, repository.OpsLogFilter{Action: ops.ActionPayoutFailed})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ops.Transition{
		From:   string(payout.RequestProcessing),
		To:     string(payout.RequestFailed),
		Reason: payout.FailureInsufficientFunds,
	}, logs[0].Payload)
	assert.NotNil(t, failed.ProcessingAt)
	assert.NotNil(t, failed.FailedAt)
}

func TestReject(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	d := f.destination(t, "seller-1")
	f.fund(t, "seller-1", "EARNING_RELEASE:ship-1", "100")
	req, err := f.svc.CreateRequest(ctx, "user-1", payoutsvc.RequestInput{TenantID: "seller-1", DestinationID: d.ID, Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, "admin-1", req.ID, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, payout.RequestRejected, rejected.Status)
	assert.Equal(t, "duplicate", rejected.FailureMessage)

	_, err = f.svc.Approve(ctx, "admin-1", req.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.Approve(ctx, "admin-1", "missing")
	assert.ErrorIs(t, err, payout.ErrRequestNotFound)
}
