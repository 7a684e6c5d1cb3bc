package integrity_test

import (
	"context"
	"testing"
	"time"

	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/service/integrity"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	"github.com/amirasaad/settlement/pkg/service/opslog"
	"github.com/amirasaad/settlement/pkg/testutils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setup(t *testing.T) (*testutils.Harness, *opslog.Recorder) {
	t.Helper()
	h := testutils.NewHarness(t, "seller-1")
	return h, opslog.New(h.Uow, h.Clock.Now, nil)
}

func post(t *testing.T, h *testutils.Harness, key string, amount string) *ledger.Group {
	t.Helper()
	poster := ledgersvc.NewPoster(h.Deps.Tenants, h.Clock.Now, nil)
	var g *ledger.Group
	require.NoError(t, h.Uow.Do(context.Background(), func(uow repository.UnitOfWork) error {
		var err error
		g, err = poster.PostGroup(context.Background(), uow, ledger.GroupInput{
			TenantID:       "seller-1",
			Type:           ledger.GroupEarningRelease,
			IdempotencyKey: key,
			Lines: []ledger.Line{
				{TenantID: testutils.PlatformTenant, AccountType: ledger.AccountEscrowLiability, Direction: ledger.Debit, Amount: dec(amount), Currency: "TRY"},
				{TenantID: "seller-1", AccountType: ledger.AccountWalletAvailable, Direction: ledger.Credit, Amount: dec(amount), Currency: "TRY"},
			},
		})
		return err
	}))
	return g
}

func providerPayout(t *testing.T, h *testutils.Harness, id string, status payout.ProviderStatus) *payout.ProviderPayout {
	t.Helper()
	now := h.Clock.Now()
	po := &payout.ProviderPayout{
		ID:               uuid.NewString(),
		ProviderPayoutID: id,
		IdempotencyKey:   "RELEASE_PAYOUT:" + id,
		ShipmentID:       "ship-" + id,
		SellerTenantID:   "seller-1",
		GrossAmount:      dec("100"),
		CommissionAmount: dec("10"),
		NetAmount:        dec("90"),
		Currency:         "TRY",
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, h.Uow.ProviderPayouts().Create(context.Background(), po))
	return po
}

func TestSentinel_CleanLedgerHasNoFindings(t *testing.T) {
	h, audit := setup(t)
	post(t, h, "EARNING_RELEASE:ship-1", "40")

	rep, err := integrity.NewSentinel(h.Deps, audit).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.NewFindings)

	logs, err := audit.List(context.Background(), repository.OpsLogFilter{Action: ops.ActionSentinelScan})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestSentinel_DetectsEveryFindingOnce(t *testing.T) {
	h, audit := setup(t)
	ctx := context.Background()
	post(t, h, "EARNING_RELEASE:ship-1", "40")
	acct, err := h.Uow.Ledger().FindAccount(ctx, "seller-1")
	require.NoError(t, err)

	broken := uuid.NewString()
	require.NoError(t, h.Uow.Ledger().InsertGroup(ctx, &ledger.Group{
		ID:             broken,
		TenantID:       "seller-1",
		Type:           ledger.GroupManualAdjustment,
		IdempotencyKey: "MANUAL:1",
		CreatedAt:      h.Clock.Now(),
		Entries: []ledger.Entry{
			{ID: uuid.NewString(), TenantID: "seller-1", LedgerAccountID: acct.ID, AccountType: ledger.AccountPlatformRevenue, Direction: ledger.Debit, Amount: dec("5"), Currency: "TRY", CreatedAt: h.Clock.Now()},
			{ID: uuid.NewString(), TenantID: "seller-1", LedgerAccountID: acct.ID, AccountType: ledger.AccountPayoutOut, Direction: ledger.Credit, Amount: dec("4"), Currency: "TRY", CreatedAt: h.Clock.Now()},
		},
	}))
	missing := providerPayout(t, h, "po-succeeded", payout.ProviderSucceeded)
	providerPayout(t, h, "po-sent", payout.ProviderSent)
	orphan := post(t, h, ledger.FinalizeKeyPrefix+"po-sent", "1")
	require.NoError(t, h.Uow.Ledger().ApplyWalletDelta(ctx, acct.ID, dec("3"), decimal.Zero, h.Clock.Now()))

	sentinel := integrity.NewSentinel(h.Deps, audit)
	rep, err := sentinel.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.NewFindings)
	assert.Equal(t, map[string]int{
		string(ops.AlertLedgerUnbalanced): 1,
		string(ops.AlertFinalizeMissing):  1,
		string(ops.AlertFinalizeOrphan):   1,
		string(ops.AlertWalletDrift):      1,
	}, rep.ByType)

	alerts, err := h.Uow.Alerts().List(ctx, repository.AlertFilter{})
	require.NoError(t, err)
	refs := map[ops.AlertType]string{}
	for _, a := range alerts {
		refs[a.Type] = a.ReferenceID
	}
	assert.Equal(t, broken, refs[ops.AlertLedgerUnbalanced])
	assert.Equal(t, missing.ID, refs[ops.AlertFinalizeMissing])
	assert.Equal(t, orphan.ID, refs[ops.AlertFinalizeOrphan])
	assert.Equal(t, acct.ID, refs[ops.AlertWalletDrift])

	again, err := sentinel.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.NewFindings)

	logs, err := audit.List(ctx, repository.OpsLogFilter{Action: ops.ActionSentinelScan})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ops.SeverityCritical, logs[0].Severity)
	scan, ok := logs[0].Payload.(ops.SentinelScan)
	require.True(t, ok)
	assert.Equal(t, 4, scan.NewFindings)

	var raised int
	for _, e := range h.Bus.Published() {
		if _, ok := events.As[events.IntegrityAlertRaised](e); ok {
			raised++
		}
	}
	assert.Equal(t, 4, raised)
}

func TestRepair_ResetsStaleSendingOncePerWindow(t *testing.T) {
	h, audit := setup(t)
	ctx := context.Background()
	po := providerPayout(t, h, "po-1", payout.ProviderQueued)
	now := h.Clock.Now()
	o := &payout.Outbox{
		ID:               uuid.NewString(),
		IdempotencyKey:   po.IdempotencyKey,
		ProviderPayoutID: po.ProviderPayoutID,
		Payload:          payout.OutboxPayload{ProviderPayoutID: po.ProviderPayoutID, SellerTenantID: "seller-1", NetAmount: dec("90"), Currency: "TRY"},
		Status:           payout.OutboxPending,
		AttemptCount:     1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, h.Uow.Outbox().Create(ctx, o))
	ok, err := h.Uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimOutbox, o.ID,
		[]string{string(payout.OutboxPending)}, string(payout.OutboxSending), nil)
	require.NoError(t, err)
	require.True(t, ok)

	repair := integrity.NewRepair(h.Deps, audit)
	h.Clock.Advance(10 * time.Minute)
	rep, err := repair.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.StaleReset, "still inside the window")

	h.Clock.Advance(6 * time.Minute)
	rep, err = repair.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.StaleReset)

	reset, err := h.Uow.Outbox().Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, payout.OutboxPending, reset.Status)
	assert.Equal(t, 2, reset.AttemptCount)

	rep, err = repair.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.StaleReset)

	logs, err := audit.List(ctx, repository.OpsLogFilter{Action: ops.ActionOutboxStaleReset})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRepair_FlagsMissingOutboxAndSilentPayouts(t *testing.T) {
	h, audit := setup(t)
	ctx := context.Background()
	queued := providerPayout(t, h, "po-queued", payout.ProviderQueued)
	sent := providerPayout(t, h, "po-sent", payout.ProviderSent)
	repair := integrity.NewRepair(h.Deps, audit)

	rep, err := repair.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, integrity.RepairReport{OutboxMissing: 1}, rep)

	h.Clock.Advance(25 * time.Hour)
	rep, err = repair.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, integrity.RepairReport{ReconcileRequired: 1}, rep)

	got, err := h.Uow.ProviderPayouts().GetByProviderID(ctx, sent.ProviderPayoutID)
	require.NoError(t, err)
	assert.Equal(t, payout.ProviderReconcileRequired, got.Status)

	alerts, err := h.Uow.Alerts().List(ctx, repository.AlertFilter{Unresolved: true})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	byType := map[ops.AlertType]string{}
	for _, a := range alerts {
		byType[a.Type] = a.ReferenceID
	}
	assert.Equal(t, queued.ID, byType[ops.AlertOutboxMissing])
	assert.Equal(t, sent.ID, byType[ops.AlertReconcileRequired])

	logs, err := audit.List(ctx, repository.OpsLogFilter{Action: ops.ActionReconcileRequired})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}
