// Package disbursement releases seller earnings through the external payout
// provider: sub-merchant onboarding, the dispatch outbox, reconciliation,
// webhook ingestion and the final ledger posting.
package disbursement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/eventbus"
	"github.com/amirasaad/settlement/pkg/pii"
	"github.com/amirasaad/settlement/pkg/provider"
	"github.com/amirasaad/settlement/pkg/repository"
	escrowsvc "github.com/amirasaad/settlement/pkg/service/escrow"
	"github.com/amirasaad/settlement/pkg/service/idempotency"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	"github.com/amirasaad/settlement/pkg/service/opslog"
	"github.com/amirasaad/settlement/pkg/service/risk"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// payoutNamespace derives provider payout ids from shipment ids.
var payoutNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("settlement.provider-payout"))

// ProviderPayoutID is the deterministic provider payout id of a shipment.
func ProviderPayoutID(shipmentID string) string {
	return uuid.NewSHA1(payoutNamespace, []byte(shipmentID)).String()
}

type settings struct {
	outboxBatch    int
	maxAttempts    int
	reconcileAfter time.Duration
	reconcileBatch int
	clockSkew      time.Duration
	processBatch   int
	callTimeout    time.Duration
}

func settingsFrom(cfg *config.App) settings {
	s := settings{
		outboxBatch:    25,
		maxAttempts:    5,
		reconcileAfter: 10 * time.Minute,
		reconcileBatch: 50,
		clockSkew:      5 * time.Minute,
		processBatch:   50,
		callTimeout:    15 * time.Second,
	}
	if cfg == nil {
		return s
	}
	if p := cfg.Payout; p != nil {
		if p.OutboxBatch > 0 {
			s.outboxBatch = p.OutboxBatch
		}
		if p.MaxAttempts > 0 {
			s.maxAttempts = p.MaxAttempts
		}
		if p.ReconcileAfter > 0 {
			s.reconcileAfter = p.ReconcileAfter
		}
		if p.ReconcileBatch > 0 {
			s.reconcileBatch = p.ReconcileBatch
		}
	}
	if w := cfg.Webhook; w != nil {
		if w.ClockSkew > 0 {
			s.clockSkew = w.ClockSkew
		}
		if w.ProcessBatch > 0 {
			s.processBatch = w.ProcessBatch
		}
	}
	if cfg.Provider != nil && cfg.Provider.Timeout > 0 {
		s.callTimeout = cfg.Provider.Timeout
	}
	return s
}

// Service orchestrates provider payouts.
type Service struct {
	uow      repository.UnitOfWork
	provider provider.PayoutProvider
	bus      eventbus.Bus
	cipher   *pii.Cipher
	guard    *idempotency.Guard
	poster   *ledgersvc.Poster
	risk     *risk.Guard
	audit    *opslog.Recorder
	escrow   *escrowsvc.Service
	platform string
	currency string
	cfg      settings
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(
	deps config.Deps,
	guard *idempotency.Guard,
	poster *ledgersvc.Poster,
	riskGuard *risk.Guard,
	audit *opslog.Recorder,
	escrow *escrowsvc.Service,
) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:      deps.Uow,
		provider: deps.PayoutProvider,
		bus:      deps.EventBus,
		cipher:   deps.Cipher,
		guard:    guard,
		poster:   poster,
		risk:     riskGuard,
		audit:    audit,
		escrow:   escrow,
		platform: deps.PlatformTenant(),
		currency: deps.Currency(),
		cfg:      settingsFrom(deps.Config),
		now:      deps.Now,
		logger:   logger.With("service", "disbursement"),
	}
}

// OnboardInput points a seller's sub-merchant at one of its destinations.
type OnboardInput struct {
	TenantID      string `json:"tenantId" validate:"required"`
	DestinationID string `json:"destinationId" validate:"required"`
	Email         string `json:"email" validate:"omitempty,email"`
}

// Onboard creates or updates the seller's sub-merchant with the decrypted
// bank details of the destination. The provider is called outside any
// transaction.
func (s *Service) Onboard(ctx context.Context, actor string, in OnboardInput) (*payout.SellerPaymentProfile, error) {
	d, err := s.uow.Destinations().Get(ctx, in.DestinationID)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && (d.TenantID != in.TenantID || d.Status != payout.DestinationActive)) {
		return nil, payout.ErrDestinationNotFound
	}
	if err != nil {
		return nil, err
	}
	iban, err := s.cipher.Decrypt(d.IBANEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt destination %s: %w", d.ID, err)
	}
	holder, err := s.cipher.Decrypt(d.HolderNameEncrypted)
	if err != nil {
		return nil, fmt.Errorf("decrypt destination %s: %w", d.ID, err)
	}

	existing, err := s.uow.Profiles().FindByTenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.callTimeout)
	defer cancel()

	action := ops.ActionSellerOnboarded
	key := ""
	if existing != nil && existing.SubMerchantKey != "" {
		action = ops.ActionSellerUpdated
		key = existing.SubMerchantKey
		if err := s.provider.UpdateSubMerchant(callCtx, key, iban, holder); err != nil {
			return nil, fmt.Errorf("update sub-merchant: %w", err)
		}
	} else {
		sm, err := s.provider.CreateSubMerchant(callCtx, provider.SubMerchantInput{
			TenantID:   in.TenantID,
			IBAN:       iban,
			HolderName: holder,
			Email:      in.Email,
			Currency:   s.currency,
		})
		if err != nil {
			return nil, fmt.Errorf("create sub-merchant: %w", err)
		}
		key = sm.Key
	}

	var out *payout.SellerPaymentProfile
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		now := s.now()
		p, err := uow.Profiles().FindByTenant(ctx, in.TenantID)
		if err != nil {
			return err
		}
		if p == nil {
			p = &payout.SellerPaymentProfile{
				ID:             uuid.NewString(),
				TenantID:       in.TenantID,
				SubMerchantKey: key,
				DestinationID:  d.ID,
				Status:         payout.ProfileActive,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := uow.Profiles().Create(ctx, p); err != nil {
				return err
			}
		} else {
			p.SubMerchantKey = key
			p.DestinationID = d.ID
			p.Status = payout.ProfileActive
			p.UpdatedAt = now
			if err := uow.Profiles().Update(ctx, p); err != nil {
				return err
			}
		}
		out = p
		return s.audit.Append(ctx, uow, ops.LogEntry{
			TenantID:   in.TenantID,
			Actor:      actor,
			Action:     action,
			EntityType: "seller_payment_profile",
			EntityID:   p.ID,
			Payload:    ops.Transition{To: string(payout.ProfileActive), Reason: d.IBANMasked},
		})
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		// another onboarding for the tenant won the unique index
		return s.uow.Profiles().FindByTenant(ctx, in.TenantID)
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("seller onboarded", "tenant_id", in.TenantID, "action", action)
	return out, nil
}

// ReleasePayoutInput releases one delivered shipment through the provider.
type ReleasePayoutInput struct {
	ShipmentID       string          `json:"shipmentId" validate:"required"`
	SellerTenantID   string          `json:"sellerTenantId" validate:"required"`
	GrossAmount      decimal.Decimal `json:"grossAmount"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
	NetAmount        decimal.Decimal `json:"netAmount"`
	Currency         string          `json:"currency"`
}

// EnqueueReleasePayout records a QUEUED provider payout and its PENDING
// outbox row in one transaction. The same shipment always yields the same
// payout.
func (s *Service) EnqueueReleasePayout(ctx context.Context, actor string, in ReleasePayoutInput) (*payout.ProviderPayout, error) {
	if !in.GrossAmount.IsPositive() || !in.NetAmount.IsPositive() || in.CommissionAmount.IsNegative() {
		return nil, payout.ErrInvalidAmount
	}
	if !in.GrossAmount.Equal(in.CommissionAmount.Add(in.NetAmount)) {
		return nil, payout.ErrAmountMismatch
	}
	if in.Currency == "" {
		in.Currency = s.currency
	}
	key := "RELEASE_PAYOUT:" + in.ShipmentID
	po, _, err := idempotency.Run(ctx, s.guard, key, "shipment", actor,
		func(uow repository.UnitOfWork) (*payout.ProviderPayout, error) {
			profile, err := uow.Profiles().FindByTenant(ctx, in.SellerTenantID)
			if err != nil {
				return nil, err
			}
			if !profile.Active() {
				return nil, payout.ErrSellerNotOnboarded
			}
			subject := risk.Subject{TenantID: in.SellerTenantID, Actor: actor, EntityType: "shipment", EntityID: in.ShipmentID}
			if err := s.risk.AssertPayoutNotPaused(ctx, uow, subject); err != nil {
				return nil, err
			}
			if err := s.risk.AssertWithinPayoutLimit(ctx, uow, subject, in.NetAmount); err != nil {
				return nil, err
			}

			now := s.now()
			po := &payout.ProviderPayout{
				ID:               uuid.NewString(),
				ProviderPayoutID: ProviderPayoutID(in.ShipmentID),
				IdempotencyKey:   key,
				ShipmentID:       in.ShipmentID,
				SellerTenantID:   in.SellerTenantID,
				GrossAmount:      in.GrossAmount,
				CommissionAmount: in.CommissionAmount,
				NetAmount:        in.NetAmount,
				Currency:         in.Currency,
				Status:           payout.ProviderQueued,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := uow.ProviderPayouts().Create(ctx, po); err != nil {
				return nil, err
			}
			if err := uow.Outbox().Create(ctx, &payout.Outbox{
				ID:               uuid.NewString(),
				IdempotencyKey:   key,
				ProviderPayoutID: po.ProviderPayoutID,
				Payload: payout.OutboxPayload{
					ProviderPayoutID: po.ProviderPayoutID,
					SellerTenantID:   po.SellerTenantID,
					NetAmount:        po.NetAmount,
					CommissionAmount: po.CommissionAmount,
					Currency:         po.Currency,
				},
				Status:    payout.OutboxPending,
				CreatedAt: now,
				UpdatedAt: now,
			}); err != nil {
				return nil, err
			}
			return po, s.audit.Append(ctx, uow, ops.LogEntry{
				TenantID:   in.SellerTenantID,
				Actor:      actor,
				Action:     ops.ActionReleaseEnqueued,
				EntityType: "provider_payout",
				EntityID:   po.ProviderPayoutID,
				Payload:    ops.Money{Amount: po.NetAmount, Currency: po.Currency, Reference: in.ShipmentID},
			})
		})
	if err != nil {
		return nil, err
	}
	return po, nil
}

// OutboxReport summarises one dispatch cycle.
type OutboxReport struct {
	Due     int `json:"due"`
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Parked  int `json:"parked"`
}

// RunOutboxCycle dispatches due outbox rows. Each row is claimed in its
// own statement, sent without a transaction open, and its outcome recorded
// in a second short transaction.
func (s *Service) RunOutboxCycle(ctx context.Context) (OutboxReport, error) {
	var rep OutboxReport
	due, err := s.uow.Outbox().ListDue(ctx, s.now(), s.cfg.maxAttempts, s.cfg.outboxBatch)
	if err != nil {
		return rep, err
	}
	rep.Due = len(due)
	for _, o := range due {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		ok, err := s.uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimOutbox, o.ID,
			[]string{string(payout.OutboxPending), string(payout.OutboxFailed)}, string(payout.OutboxSending), nil)
		if err != nil {
			return rep, err
		}
		if !ok {
			continue
		}
		rep.Claimed++

		res, sendErr := s.send(ctx, o)
		if sendErr == nil {
			if err := s.recordSent(ctx, o, res); err != nil {
				return rep, err
			}
			rep.Sent++
			continue
		}
		parked, err := s.recordFailure(ctx, o, sendErr)
		if err != nil {
			return rep, err
		}
		rep.Failed++
		if parked {
			rep.Parked++
		}
	}
	if rep.Claimed > 0 {
		s.logger.Info("outbox cycle finished",
			"due", rep.Due, "sent", rep.Sent, "failed", rep.Failed, "parked", rep.Parked)
	}
	return rep, nil
}

func (s *Service) send(ctx context.Context, o *payout.Outbox) (*provider.SplitPayoutResult, error) {
	profile, err := s.uow.Profiles().FindByTenant(ctx, o.Payload.SellerTenantID)
	if err != nil {
		return nil, err
	}
	if !profile.Active() {
		return nil, payout.ErrSellerNotOnboarded
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.callTimeout)
	defer cancel()
	return s.provider.CreateSplitPayout(callCtx, provider.SplitPayoutInput{
		ProviderPayoutID: o.Payload.ProviderPayoutID,
		SubMerchantKey:   profile.SubMerchantKey,
		NetAmount:        o.Payload.NetAmount,
		CommissionAmount: o.Payload.CommissionAmount,
		Currency:         o.Payload.Currency,
		IdempotencyKey:   o.IdempotencyKey,
	})
}

func (s *Service) recordSent(ctx context.Context, o *payout.Outbox, res *provider.SplitPayoutResult) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		now := s.now()
		if _, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimOutbox, o.ID,
			[]string{string(payout.OutboxSending)}, string(payout.OutboxSent),
			map[string]any{"sent_at": now, "last_error": ""}); err != nil {
			return err
		}
		po, err := uow.ProviderPayouts().GetByProviderID(ctx, o.ProviderPayoutID)
		if err != nil {
			return err
		}
		ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimProviderPayout, po.ID,
			[]string{string(payout.ProviderQueued)}, string(payout.ProviderSent),
			map[string]any{"external_reference": res.ExternalReference, "sent_at": now})
		if err != nil || !ok {
			return err
		}
		return s.audit.Append(ctx, uow, ops.LogEntry{
			TenantID:   po.SellerTenantID,
			Actor:      ops.SystemActor,
			Action:     ops.ActionPayoutStatusChanged,
			EntityType: "provider_payout",
			EntityID:   po.ProviderPayoutID,
			Payload:    ops.Transition{From: string(payout.ProviderQueued), To: string(payout.ProviderSent)},
		})
	})
}

// recordFailure schedules the next attempt or parks the row once the
// attempts are exhausted.
func (s *Service) recordFailure(ctx context.Context, o *payout.Outbox, sendErr error) (bool, error) {
	attempts := o.AttemptCount + 1
	parked := attempts >= s.cfg.maxAttempts
	now := s.now()
	set := map[string]any{"attempt_count": attempts, "last_error": sendErr.Error()}
	if parked {
		set["next_retry_at"] = nil
	} else {
		set["next_retry_at"] = payout.NextRetry(now, attempts)
	}
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimOutbox, o.ID,
			[]string{string(payout.OutboxSending)}, string(payout.OutboxFailed), set)
		if err != nil || !ok || !parked {
			return err
		}
		return s.audit.Append(ctx, uow, ops.LogEntry{
			TenantID:   o.Payload.SellerTenantID,
			Actor:      ops.SystemActor,
			Action:     ops.ActionOutboxParked,
			EntityType: "payout_outbox",
			EntityID:   o.ID,
			Severity:   ops.SeverityWarning,
			Payload:    ops.OutboxAttempt{Attempts: attempts, LastError: sendErr.Error()},
		})
	})
	if err != nil {
		return false, err
	}
	s.logger.Warn("payout dispatch failed",
		"outbox_id", o.ID, "provider_payout_id", o.ProviderPayoutID, "attempts", attempts, "parked", parked, "error", sendErr)
	return parked, nil
}

// ReconcileReport summarises one reconcile cycle.
type ReconcileReport struct {
	Checked   int `json:"checked"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Errors    int `json:"errors"`
	Finalized int `json:"finalized"`
}

// RunReconcileCycle asks the provider about payouts that went quiet after
// dispatch, then finalizes SUCCEEDED payouts whose ledger settlement is
// still missing. Provider errors skip the row.
func (s *Service) RunReconcileCycle(ctx context.Context) (ReconcileReport, error) {
	rep, err := s.reconcileProvider(ctx)
	if err != nil {
		return rep, err
	}
	rep.Finalized, err = s.FinalizePending(ctx)
	return rep, err
}

// FinalizePending posts the finalize group of SUCCEEDED payouts left
// without one, for example when the process stopped between the status
// change and the posting. It returns how many it finalized.
func (s *Service) FinalizePending(ctx context.Context) (int, error) {
	pending, err := s.uow.ProviderPayouts().ListSucceededWithoutFinalize(ctx, s.cfg.reconcileBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, po := range pending {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		res, err := s.FinalizePayoutLedger(ctx, ops.SystemActor, po.ProviderPayoutID)
		if err != nil {
			s.logger.Error("finalize sweep failed", "provider_payout_id", po.ProviderPayoutID, "error", err)
			continue
		}
		if res.Message == "Finalized" {
			n++
		}
	}
	return n, nil
}

func (s *Service) reconcileProvider(ctx context.Context) (ReconcileReport, error) {
	var rep ReconcileReport
	payouts, err := s.uow.ProviderPayouts().List(ctx, repository.PayoutFilter{
		Statuses:      []payout.ProviderStatus{payout.ProviderSent, payout.ProviderReconcileRequired},
		UpdatedBefore: s.now().Add(-s.cfg.reconcileAfter),
		Limit:         s.cfg.reconcileBatch,
	})
	if err != nil {
		return rep, err
	}
	for _, po := range payouts {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Checked++
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.callTimeout)
		res, err := s.provider.GetPayoutStatus(callCtx, po.ProviderPayoutID)
		cancel()
		if err != nil {
			rep.Errors++
			s.logger.Warn("payout status lookup failed", "provider_payout_id", po.ProviderPayoutID, "error", err)
			continue
		}
		var to payout.ProviderStatus
		switch res.Status {
		case provider.PayoutSucceeded:
			to = payout.ProviderSucceeded
		case provider.PayoutFailed:
			to = payout.ProviderFailed
		default:
			rep.Pending++
			continue
		}
		var changed bool
		err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
			var err error
			changed, err = s.applyProviderStatus(ctx, uow, po, to, res.ExternalReference, res.FailureReason, "reconcile")
			return err
		})
		if err != nil {
			return rep, err
		}
		if !changed {
			continue
		}
		if to == payout.ProviderFailed {
			rep.Failed++
			continue
		}
		rep.Succeeded++
		if _, err := s.FinalizePayoutLedger(ctx, ops.SystemActor, po.ProviderPayoutID); err != nil {
			s.logger.Error("finalize after reconcile failed", "provider_payout_id", po.ProviderPayoutID, "error", err)
		}
	}
	return rep, nil
}

// applyProviderStatus moves a dispatched payout to a terminal provider
// state. It reports false when the payout was no longer in flight.
func (s *Service) applyProviderStatus(
	ctx context.Context,
	uow repository.UnitOfWork,
	po *payout.ProviderPayout,
	to payout.ProviderStatus,
	externalRef, reason, source string,
) (bool, error) {
	now := s.now()
	set := map[string]any{}
	if to == payout.ProviderSucceeded {
		set["succeeded_at"] = now
		if externalRef != "" {
			set["external_reference"] = externalRef
		}
	} else {
		set["failed_at"] = now
		set["failure_reason"] = reason
	}
	ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimProviderPayout, po.ID,
		[]string{string(payout.ProviderSent), string(payout.ProviderReconcileRequired)}, string(to), set)
	if err != nil || !ok {
		return false, err
	}
	severity := ops.SeverityInfo
	if to == payout.ProviderFailed {
		severity = ops.SeverityWarning
	}
	return true, s.audit.Append(ctx, uow, ops.LogEntry{
		TenantID:   po.SellerTenantID,
		Actor:      ops.SystemActor,
		Action:     ops.ActionPayoutStatusChanged,
		EntityType: "provider_payout",
		EntityID:   po.ProviderPayoutID,
		Severity:   severity,
		Payload:    ops.Transition{From: string(po.Status), To: string(to), Reason: source},
	})
}

// FinalizeResult is the outcome of FinalizePayoutLedger.
type FinalizeResult struct {
	ProviderPayoutID string `json:"providerPayoutId"`
	LedgerGroupID    string `json:"ledgerGroupId"`
	Message          string `json:"message"`
}

// FinalizePayoutLedger posts the settlement of a SUCCEEDED payout: escrow
// is debited with the gross, the commission is platform revenue and the net
// leaves through the seller's payout account. It runs at most once per
// payout.
func (s *Service) FinalizePayoutLedger(ctx context.Context, actor, providerPayoutID string) (*FinalizeResult, error) {
	key := ledger.FinalizeKeyPrefix + providerPayoutID
	var po *payout.ProviderPayout
	res, fresh, err := idempotency.Run(ctx, s.guard, key, "provider_payout", actor,
		func(uow repository.UnitOfWork) (*FinalizeResult, error) {
			var err error
			po, err = uow.ProviderPayouts().GetByProviderID(ctx, providerPayoutID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil, payout.ErrPayoutNotFound
			}
			if err != nil {
				return nil, err
			}
			if po.Status != payout.ProviderSucceeded {
				return nil, payout.ErrPayoutNotSucceeded
			}
			ref := func(tenantID string, acct ledger.AccountType, dir ledger.Direction, amount decimal.Decimal) ledger.Line {
				return ledger.Line{
					TenantID:    tenantID,
					AccountType: acct,
					Direction:   dir,
					Amount:      amount,
					Currency:    po.Currency,
					RefType:     "provider_payout",
					ReferenceID: po.ProviderPayoutID,
				}
			}
			lines := []ledger.Line{ref(s.platform, ledger.AccountEscrowLiability, ledger.Debit, po.GrossAmount)}
			if po.CommissionAmount.IsPositive() {
				lines = append(lines, ref(s.platform, ledger.AccountPlatformRevenue, ledger.Credit, po.CommissionAmount))
			}
			lines = append(lines, ref(po.SellerTenantID, ledger.AccountPayoutOut, ledger.Credit, po.NetAmount))
			g, err := s.poster.PostGroup(ctx, uow, ledger.GroupInput{
				TenantID:       po.SellerTenantID,
				Type:           ledger.GroupPayoutFinalize,
				IdempotencyKey: key,
				Description:    "finalize shipment " + po.ShipmentID,
				Lines:          lines,
			})
			if err != nil {
				return nil, err
			}
			if err := s.audit.Append(ctx, uow, ops.LogEntry{
				TenantID:   po.SellerTenantID,
				Actor:      actor,
				Action:     ops.ActionPayoutFinalized,
				EntityType: "provider_payout",
				EntityID:   po.ProviderPayoutID,
				Payload:    ops.Money{Amount: po.NetAmount, Currency: po.Currency, LedgerGroupID: g.ID, Reference: po.ShipmentID},
			}); err != nil {
				return nil, err
			}
			return &FinalizeResult{ProviderPayoutID: providerPayoutID, LedgerGroupID: g.ID, Message: "Finalized"}, nil
		})
	if err != nil {
		return nil, err
	}
	if !fresh {
		res.Message = "Already processed"
		return res, nil
	}
	if s.bus != nil {
		if err := s.bus.Emit(ctx, events.PayoutFinalized{
			ProviderPayoutID: po.ProviderPayoutID,
			SellerTenantID:   po.SellerTenantID,
			ShipmentID:       po.ShipmentID,
			NetAmount:        po.NetAmount,
			Currency:         po.Currency,
			LedgerGroupID:    res.LedgerGroupID,
			OccurredAt:       s.now(),
		}); err != nil {
			s.logger.Error("failed to emit payout finalized", "provider_payout_id", providerPayoutID, "error", err)
		}
	}
	return res, nil
}

// GetPayout returns a provider payout by its provider id.
func (s *Service) GetPayout(ctx context.Context, providerPayoutID string) (*payout.ProviderPayout, error) {
	po, err := s.uow.ProviderPayouts().GetByProviderID(ctx, providerPayoutID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, payout.ErrPayoutNotFound
	}
	return po, err
}

// ListPayouts returns provider payouts matching f.
func (s *Service) ListPayouts(ctx context.Context, f repository.PayoutFilter) ([]*payout.ProviderPayout, error) {
	return s.uow.ProviderPayouts().List(ctx, f)
}
