package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	infrarepo "github.com/amirasaad/settlement/infra/repository"
	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/idempotency"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/testutils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUoW_AfterCompletionRunsAfterRollback(t *testing.T) {
	db := testutils.NewTestDB(t)
	uow := infrarepo.NewUoW(db)
	ctx := context.Background()

	var order []string
	boom := errors.New("boom")
	err := uow.Do(ctx, func(tx repository.UnitOfWork) error {
		tx.AfterCompletion(func(ctx context.Context) { order = append(order, "hook") })
		require.NoError(t, tx.Idempotency().Insert(ctx, &idempotency.Record{
			ID: uuid.NewString(), Key: "K1", Scope: "TEST", Status: idempotency.StatusInProgress, CreatedAt: time.Now().UTC(),
		}))
		order = append(order, "body")
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"body", "hook"}, order)

	rec, err := uow.Idempotency().FindByKey(ctx, "K1")
	require.NoError(t, err)
	assert.Nil(t, rec, "insert must have rolled back")
}

func TestUoW_NestedDoJoinsOuterTransaction(t *testing.T) {
	db := testutils.NewTestDB(t)
	uow := infrarepo.NewUoW(db)
	ctx := context.Background()

	hookRan := false
	err := uow.Do(ctx, func(outer repository.UnitOfWork) error {
		return outer.Do(ctx, func(inner repository.UnitOfWork) error {
			inner.AfterCompletion(func(context.Context) { hookRan = true })
			assert.False(t, hookRan, "hook must wait for the outer transaction")
			return inner.Idempotency().Insert(ctx, &idempotency.Record{
				ID: uuid.NewString(), Key: "K2", Scope: "TEST", Status: idempotency.StatusInProgress, CreatedAt: time.Now().UTC(),
			})
		})
	})
	require.NoError(t, err)
	assert.True(t, hookRan)

	rec, err := uow.Idempotency().FindByKey(ctx, "K2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, idempotency.StatusInProgress, rec.Status)
}

func TestUoW_AfterCompletionOutsideTransactionRunsNow(t *testing.T) {
	uow := infrarepo.NewUoW(testutils.NewTestDB(t))
	ran := false
	uow.AfterCompletion(func(context.Context) { ran = true })
	assert.True(t, ran)
}

func TestUoW_DuplicateKeyMapsToAlreadyExists(t *testing.T) {
	uow := infrarepo.NewUoW(testutils.NewTestDB(t))
	ctx := context.Background()
	rec := func() *idempotency.Record {
		return &idempotency.Record{
			ID: uuid.NewString(), Key: "DUP", Scope: "TEST", Status: idempotency.StatusInProgress, CreatedAt: time.Now().UTC(),
		}
	}
	require.NoError(t, uow.Idempotency().Insert(ctx, rec()))
	assert.ErrorIs(t, uow.Idempotency().Insert(ctx, rec()), domain.ErrAlreadyExists)
}

func TestClaimer_OnlyOneWinner(t *testing.T) {
	clock := testutils.NewClock(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))
	uow := infrarepo.NewUoW(testutils.NewTestDB(t), infrarepo.WithClock(clock.Now))
	ctx := context.Background()

	req := &payout.Request{
		ID:            uuid.NewString(),
		TenantID:      "T1",
		DestinationID: uuid.NewString(),
		Amount:        decimal.NewFromInt(10),
		Currency:      "TRY",
		Status:        payout.RequestApproved,
		RequestedAt:   clock.Now(),
		UpdatedAt:     clock.Now(),
	}
	require.NoError(t, uow.PayoutRequests().Create(ctx, req))

	clock.Advance(time.Minute)
	from := []string{string(payout.RequestApproved)}
	ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimPayoutRequest, req.ID, from, string(payout.RequestProcessing),
		map[string]any{"processing_at": clock.Now()})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimPayoutRequest, req.ID, from, string(payout.RequestProcessing), nil)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := uow.PayoutRequests().Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, payout.RequestProcessing, got.Status)
	assert.True(t, clock.Now().Equal(got.UpdatedAt))
	require.NotNil(t, got.ProcessingAt)
}

func TestClaimer_CompareAndSwapStale(t *testing.T) {
	clock := testutils.NewClock(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))
	uow := infrarepo.NewUoW(testutils.NewTestDB(t), infrarepo.WithClock(clock.Now))
	ctx := context.Background()

	o := &payout.Outbox{
		ID:               uuid.NewString(),
		IdempotencyKey:   "RELEASE_PAYOUT:S1",
		ProviderPayoutID: "pp-1",
		Status:           payout.OutboxSending,
		CreatedAt:        clock.Now(),
		UpdatedAt:        clock.Now(),
	}
	require.NoError(t, uow.Outbox().Create(ctx, o))

	ok, err := uow.Claimer().CompareAndSwapStale(ctx, repository.ClaimOutbox, o.ID, string(payout.OutboxSending),
		clock.Now().Add(-15*time.Minute), string(payout.OutboxPending), nil)
	require.NoError(t, err)
	assert.False(t, ok, "fresh row is not stale")

	clock.Advance(20 * time.Minute)
	ok, err = uow.Claimer().CompareAndSwapStale(ctx, repository.ClaimOutbox, o.ID, string(payout.OutboxSending),
		clock.Now().Add(-15*time.Minute), string(payout.OutboxPending), nil)
	require.NoError(t, err)
	assert.True(t, ok)
}
