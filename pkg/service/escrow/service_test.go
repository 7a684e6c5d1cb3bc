package escrow_test

import (
	"context"
	"testing"
	"time"

	"github.com/amirasaad/settlement/pkg/domain/escrow"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/domain/rollout"
	"github.com/amirasaad/settlement/pkg/repository"
	escrowsvc "github.com/amirasaad/settlement/pkg/service/escrow"
	"github.com/amirasaad/settlement/pkg/service/idempotency"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	"github.com/amirasaad/settlement/pkg/service/opslog"
	"github.com/amirasaad/settlement/pkg/service/risk"
	"github.com/amirasaad/settlement/pkg/testutils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	h        *testutils.Harness
	svc      *escrowsvc.Service
	audit    *opslog.Recorder
	policies *risk.Policies
}

func setup(t *testing.T) *fixture {
	t.Helper()
	h := testutils.NewHarness(t, "seller-1")
	audit := opslog.New(h.Uow, h.Clock.Now, nil)
	audit.Register(h.Bus)
	svc := escrowsvc.NewService(
		h.Deps,
		idempotency.NewGuard(h.Uow, h.Clock.Now),
		ledgersvc.NewPoster(h.Deps.Tenants, h.Clock.Now, nil),
		risk.NewGuard(h.Bus, h.Clock.Now, h.Config.Risk.DayOffset, nil),
		audit,
	)
	return &fixture{h: h, svc: svc, audit: audit, policies: risk.NewPolicies(h.Uow, audit, h.Clock.Now, nil)}
}

func capture(id, amount string) escrowsvc.CaptureInput {
	return escrowsvc.CaptureInput{
		ProviderPaymentID: id,
		TenantID:          "seller-1",
		BuyerTenantID:     "buyer-1",
		OrderID:           "order-" + id,
		Amount:            decimal.RequireFromString(amount),
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCapturePayment_PostsEscrowOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	pay, err := f.svc.CapturePayment(ctx, "system", capture("pay-1", "100"))
	require.NoError(t, err)
	assert.Equal(t, escrow.PaymentPaid, pay.Status)
	assert.Equal(t, "TRY", pay.Currency)

	again, err := f.svc.CapturePayment(ctx, "system", capture("pay-1", "100"))
	require.NoError(t, err)
	assert.Equal(t, pay.ID, again.ID)

	groups, err := f.h.Uow.Ledger().ListGroups(ctx, repository.GroupFilter{Type: ledger.GroupEscrowCapture})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Entries, 2)

	_, err = f.svc.CapturePayment(ctx, "system", capture("pay-2", "0"))
	assert.ErrorIs(t, err, payout.ErrInvalidAmount)
}

func TestCapturePayment_RiskCaps(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	gmvCap := dec("150")
	orderCap := dec("120")
	_, err := f.policies.Upsert(ctx, "admin-1", risk.PolicyInput{
		TenantID:             "seller-1",
		MaxDailyGmv:          &gmvCap,
		MaxSingleOrderAmount: &orderCap,
	})
	require.NoError(t, err)

	_, err = f.svc.CapturePayment(ctx, "system", capture("pay-1", "100"))
	require.NoError(t, err)

	_, err = f.svc.CapturePayment(ctx, "system", capture("pay-2", "130"))
	assert.ErrorIs(t, err, rollout.ErrSingleOrderLimitExceeded)

	_, err = f.svc.CapturePayment(ctx, "system", capture("pay-3", "60"))
	assert.ErrorIs(t, err, rollout.ErrDailyGmvLimitExceeded)

	payments, err := f.h.Uow.Payments().List(ctx, repository.PaymentFilter{TenantID: "seller-1"})
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	// the violation log is written outside the rolled back transaction
	assert.Eventually(t, func() bool {
		logs, err := f.audit.List(ctx, repository.OpsLogFilter{Action: ops.ActionPolicyViolation})
		return err == nil && len(logs) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestCapturePayment_EscrowPaused(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.policies.Upsert(ctx, "admin-1", risk.PolicyInput{TenantID: "seller-1", EscrowPaused: true})
	require.NoError(t, err)

	_, err = f.svc.CapturePayment(ctx, "system", capture("pay-1", "10"))
	assert.ErrorIs(t, err, rollout.ErrEscrowPaused)

	rec, err := f.h.Uow.Idempotency().FindByKey(ctx, "ESCROW_CAPTURE:pay-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestReleaseToWallet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.ReleaseToWallet(ctx, "system", escrowsvc.ReleaseInput{
		ShipmentID: "ship-1", SellerTenantID: "seller-1",
		GrossAmount: dec("100"), CommissionAmount: dec("10"), NetAmount: dec("80"),
	})
	assert.ErrorIs(t, err, payout.ErrAmountMismatch)

	in := escrowsvc.ReleaseInput{
		ShipmentID: "ship-1", SellerTenantID: "seller-1",
		GrossAmount: dec("100"), CommissionAmount: dec("10"), NetAmount: dec("90"),
	}
	rel, err := f.svc.ReleaseToWallet(ctx, "system", in)
	require.NoError(t, err)
	again, err := f.svc.ReleaseToWallet(ctx, "system", in)
	require.NoError(t, err)
	assert.Equal(t, rel.LedgerGroupID, again.LedgerGroupID)

	w, err := ledgersvc.WalletOf(ctx, f.h.Uow, "seller-1")
	require.NoError(t, err)
	assert.True(t, w.Available.Equal(dec("90")), w.Available.String())
}

func TestHandleChargeback_SplitsWalletAndReceivable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.CapturePayment(ctx, "system", capture("pay-1", "100"))
	require.NoError(t, err)
	_, err = f.svc.ReleaseToWallet(ctx, "system", escrowsvc.ReleaseInput{
		ShipmentID: "ship-1", SellerTenantID: "seller-1",
		GrossAmount: dec("100"), CommissionAmount: dec("10"), NetAmount: dec("90"),
	})
	require.NoError(t, err)

	rev, err := f.svc.HandleChargeback(ctx, "system", escrowsvc.ReversalInput{ProviderPaymentID: "pay-1", Reason: "fraud"})
	require.NoError(t, err)
	assert.Equal(t, escrow.PaymentChargeback, rev.Status)
	assert.True(t, rev.FromWallet.Equal(dec("90")))
	assert.True(t, rev.FromReceivable.Equal(dec("10")))

	again, err := f.svc.HandleChargeback(ctx, "system", escrowsvc.ReversalInput{ProviderPaymentID: "pay-1", Reason: "fraud"})
	require.NoError(t, err)
	assert.Equal(t, rev.LedgerGroupID, again.LedgerGroupID)

	w, err := ledgersvc.WalletOf(ctx, f.h.Uow, "seller-1")
	require.NoError(t, err)
	assert.True(t, w.Available.IsZero())

	_, err = f.svc.HandleRefund(ctx, "system", escrowsvc.ReversalInput{ProviderPaymentID: "pay-1"})
	assert.ErrorIs(t, err, escrow.ErrPaymentNotCaptured)
	_, err = f.svc.HandleRefund(ctx, "system", escrowsvc.ReversalInput{ProviderPaymentID: "missing"})
	assert.ErrorIs(t, err, escrow.ErrPaymentNotFound)
}

func TestHandleRefund_Partial(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.svc.CapturePayment(ctx, "system", capture("pay-1", "100"))
	require.NoError(t, err)
	_, err = f.svc.ReleaseToWallet(ctx, "system", escrowsvc.ReleaseInput{
		ShipmentID: "ship-1", SellerTenantID: "seller-1",
		GrossAmount: dec("100"), CommissionAmount: dec("10"), NetAmount: dec("90"),
	})
	require.NoError(t, err)

	rev, err := f.svc.HandleRefund(ctx, "system", escrowsvc.ReversalInput{ProviderPaymentID: "pay-1", Amount: dec("30")})
	require.NoError(t, err)
	assert.Equal(t, escrow.PaymentRefunded, rev.Status)
	assert.True(t, rev.FromReceivable.IsZero())

	w, err := ledgersvc.WalletOf(ctx, f.h.Uow, "seller-1")
	require.NoError(t, err)
	assert.True(t, w.Available.Equal(dec("60")))
	assert.True(t, w.Derived.Available.Equal(dec("60")))
}
