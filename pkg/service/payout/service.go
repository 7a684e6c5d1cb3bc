// Package payout runs the internal withdrawal pipeline: bank destinations,
// seller requests, admin approval and settlement against the ledger.
package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/pii"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/service/idempotency"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	"github.com/amirasaad/settlement/pkg/service/opslog"
	"github.com/amirasaad/settlement/pkg/service/risk"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service provides the internal payout operations.
type Service struct {
	uow      repository.UnitOfWork
	guard    *idempotency.Guard
	poster   *ledgersvc.Poster
	risk     *risk.Guard
	audit    *opslog.Recorder
	cipher   *pii.Cipher
	currency string
	now      func() time.Time
	logger   *slog.Logger
}

// NewService wires the service from shared deps and its collaborators.
func NewService(
	deps config.Deps,
	guard *idempotency.Guard,
	poster *ledgersvc.Poster,
	riskGuard *risk.Guard,
	audit *opslog.Recorder,
) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		uow:      deps.Uow,
		guard:    guard,
		poster:   poster,
		risk:     riskGuard,
		audit:    audit,
		cipher:   deps.Cipher,
		currency: deps.Currency(),
		now:      deps.Now,
		logger:   logger.With("service", "payout"),
	}
}

// DestinationInput carries raw bank details; they are never stored in clear.
type DestinationInput struct {
	TenantID   string `json:"tenantId" validate:"required"`
	IBAN       string `json:"iban" validate:"required"`
	HolderName string `json:"holderName" validate:"required"`
	IsDefault  bool   `json:"isDefault"`
}

// CreateDestination stores an encrypted destination. A second call for the
// same IBAN returns the stored one.
func (s *Service) CreateDestination(ctx context.Context, actor string, in DestinationInput) (*payout.DestinationView, error) {
	iban, err := pii.NormalizeIBAN(in.IBAN)
	if err != nil {
		return nil, err
	}
	if in.HolderName == "" {
		return nil, fmt.Errorf("%w: holder name is required", domain.ErrValidation)
	}
	fingerprint := s.cipher.Fingerprint(iban)
	if existing, err := s.uow.Destinations().FindByFingerprint(ctx, in.TenantID, fingerprint); err != nil {
		return nil, err
	} else if existing != nil {
		return existing.View(), nil
	}

	ibanEnc, err := s.cipher.Encrypt(iban)
	if err != nil {
		return nil, err
	}
	nameEnc, err := s.cipher.Encrypt(in.HolderName)
	if err != nil {
		return nil, err
	}
	now := s.now()
	d := &payout.Destination{
		ID:                  uuid.NewString(),
		TenantID:            in.TenantID,
		IBANMasked:          pii.MaskIBAN(iban),
		IBANFingerprint:     fingerprint,
		HolderNameMasked:    pii.MaskName(in.HolderName),
		IBANEncrypted:       ibanEnc,
		HolderNameEncrypted: nameEnc,
		IsDefault:           in.IsDefault,
		Status:              payout.DestinationActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		if err := uow.Destinations().Create(ctx, d); err != nil {
			return err
		}
		return s.audit.Append(ctx, uow, ops.LogEntry{
			TenantID:   d.TenantID,
			Actor:      actor,
			Action:     ops.ActionDestinationCreated,
			EntityType: "payout_destination",
			EntityID:   d.ID,
		})
	})
	if errors.Is(err, domain.ErrAlreadyExists) {
		existing, ferr := s.uow.Destinations().FindByFingerprint(ctx, in.TenantID, fingerprint)
		if ferr != nil || existing == nil {
			return nil, err
		}
		return existing.View(), nil
	}
	if err != nil {
		return nil, err
	}
	return d.View(), nil
}

func (s *Service) ListDestinations(ctx context.Context, tenantID string) ([]*payout.DestinationView, error) {
	rows, err := s.uow.Destinations().ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*payout.DestinationView, 0, len(rows))
	for _, d := range rows {
		out = append(out, d.View())
	}
	return out, nil
}

// DisableDestination stops a destination from receiving new requests.
func (s *Service) DisableDestination(ctx context.Context, actor, tenantID, id string) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		d, err := ownedDestination(ctx, uow, tenantID, id)
		if err != nil {
			return err
		}
		if d.Status == payout.DestinationDisabled {
			return nil
		}
		if err := uow.Destinations().UpdateStatus(ctx, id, payout.DestinationDisabled, s.now()); err != nil {
			return err
		}
		return s.audit.Append(ctx, uow, ops.LogEntry{
			TenantID:   tenantID,
			Actor:      actor,
			Action:     ops.ActionDestinationDisabled,
			EntityType: "payout_destination",
			EntityID:   id,
			Payload:    ops.Transition{From: string(payout.DestinationActive), To: string(payout.DestinationDisabled)},
		})
	})
}

func ownedDestination(ctx context.Context, uow repository.UnitOfWork, tenantID, id string) (*payout.Destination, error) {
	d, err := uow.Destinations().Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && d.TenantID != tenantID) {
		return nil, payout.ErrDestinationNotFound
	}
	return d, err
}

// RequestInput is a seller withdrawal.
type RequestInput struct {
	TenantID      string          `json:"tenantId" validate:"required"`
	DestinationID string          `json:"destinationId" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

// CreateRequest records a withdrawal after a soft balance check against the
// cached wallet. The hard check happens when it is processed.
func (s *Service) CreateRequest(ctx context.Context, actor string, in RequestInput) (*payout.Request, error) {
	if !in.Amount.IsPositive() {
		return nil, payout.ErrInvalidAmount
	}
	if in.Currency == "" {
		in.Currency = s.currency
	}
	var req *payout.Request
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		d, err := ownedDestination(ctx, uow, in.TenantID, in.DestinationID)
		if err != nil {
			return err
		}
		if d.Status != payout.DestinationActive {
			return payout.ErrDestinationNotFound
		}
		subject := risk.Subject{TenantID: in.TenantID, Actor: actor, EntityType: "payout_request", EntityID: in.DestinationID}
		if err := s.risk.AssertPayoutNotPaused(ctx, uow, subject); err != nil {
			return err
		}
		acct, err := uow.Ledger().FindAccount(ctx, in.TenantID)
		if err != nil {
			return err
		}
		if acct == nil || acct.AvailableBalance.LessThan(in.Amount) {
			return payout.ErrInsufficientFunds
		}
		now := s.now()
		req = &payout.Request{
			ID:            uuid.NewString(),
			TenantID:      in.TenantID,
			DestinationID: in.DestinationID,
			Amount:        in.Amount,
			Currency:      in.Currency,
			Status:        payout.RequestRequested,
			RequestedBy:   actor,
			RequestedAt:   now,
			UpdatedAt:     now,
		}
		if err := uow.PayoutRequests().Create(ctx, req); err != nil {
			return err
		}
		return s.audit.Append(ctx, uow, ops.LogEntry{
			TenantID:   in.TenantID,
			Actor:      actor,
			Action:     ops.ActionPayoutRequested,
			EntityType: "payout_request",
			EntityID:   req.ID,
			Payload:    ops.Money{Amount: in.Amount, Currency: in.Currency},
		})
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) GetRequest(ctx context.Context, id string) (*payout.Request, error) {
	req, err := s.uow.PayoutRequests().Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, payout.ErrRequestNotFound
	}
	return req, err
}

func (s *Service) ListRequests(ctx context.Context, tenantID string, status payout.RequestStatus) ([]*payout.Request, error) {
	return s.uow.PayoutRequests().List(ctx, tenantID, status)
}

// Approve moves REQUESTED to APPROVED.
func (s *Service) Approve(ctx context.Context, actor, id string) (*payout.Request, error) {
	now := s.now()
	return s.transition(ctx, actor, id,
		[]payout.RequestStatus{payout.RequestRequested}, payout.RequestApproved,
		map[string]any{"approved_by": actor, "approved_at": now},
		ops.ActionPayoutApproved, "")
}

// Reject moves REQUESTED or APPROVED to REJECTED.
func (s *Service) Reject(ctx context.Context, actor, id, reason string) (*payout.Request, error) {
	now := s.now()
	return s.transition(ctx, actor, id,
		[]payout.RequestStatus{payout.RequestRequested, payout.RequestApproved}, payout.RequestRejected,
		map[string]any{"rejected_at": now, "failure_message": reason},
		ops.ActionPayoutRejected, reason)
}

func (s *Service) transition(
	ctx context.Context,
	actor, id string,
	from []payout.RequestStatus,
	to payout.RequestStatus,
	set map[string]any,
	action ops.Action,
	reason string,
) (*payout.Request, error) {
	var out *payout.Request
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		req, err := uow.PayoutRequests().Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return payout.ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimPayoutRequest, id,
			requestStatuses(from), string(to), set)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: payout request %s is %s", domain.ErrInvalidTransition, id, req.Status)
		}
		if err := s.audit.Append(ctx, uow, ops.LogEntry{
			TenantID:   req.TenantID,
			Actor:      actor,
			Action:     action,
			EntityType: "payout_request",
			EntityID:   id,
			Payload:    ops.Transition{From: string(req.Status), To: string(to), Reason: reason},
		}); err != nil {
			return err
		}
		out, err = uow.PayoutRequests().Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payout request transitioned", "request_id", id, "to", to, "actor", actor)
	return out, nil
}

// ProcessInternal settles an APPROVED request: it reserves and completes
// the amount in the ledger and marks the request PAID_INTERNAL. When the
// entry-derived balance is short the request ends FAILED.
func (s *Service) ProcessInternal(ctx context.Context, actor, id string) (*payout.Request, error) {
	key := "PAYOUT_PROCESS:" + id
	req, _, err := idempotency.Run(ctx, s.guard, key, "payout_request", actor,
		func(uow repository.UnitOfWork) (*payout.Request, error) {
			return s.settle(ctx, uow, actor, id)
		})
	if errors.Is(err, payout.ErrInsufficientFunds) {
		if ferr := s.markFailed(ctx, actor, id); ferr != nil {
			s.logger.Error("failed to mark payout request failed", "request_id", id, "error", ferr)
		}
		return nil, err
	}
	return req, err
}

func (s *Service) settle(ctx context.Context, uow repository.UnitOfWork, actor, id string) (*payout.Request, error) {
	req, err := uow.PayoutRequests().Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, payout.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimPayoutRequest, id,
		[]string{string(payout.RequestApproved)}, string(payout.RequestProcessing),
		map[string]any{"processing_at": s.now()})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: payout request %s is %s", domain.ErrInvalidTransition, id, req.Status)
	}

	bal, err := ledgersvc.LockedBalances(ctx, uow, req.TenantID)
	if err != nil {
		return nil, err
	}
	if bal.Available.LessThan(req.Amount) {
		return nil, payout.ErrInsufficientFunds
	}

	leg := func(acct ledger.AccountType, dir ledger.Direction) ledger.Line {
		return ledger.Line{
			TenantID:    req.TenantID,
			AccountType: acct,
			Direction:   dir,
			Amount:      req.Amount,
			Currency:    req.Currency,
			RefType:     "payout_request",
			ReferenceID: req.ID,
		}
	}
	if _, err := s.poster.PostGroup(ctx, uow, ledger.GroupInput{
		TenantID:       req.TenantID,
		Type:           ledger.GroupPayoutReserve,
		IdempotencyKey: "PAYOUT_RESERVE:" + req.ID,
		Description:    "reserve payout request",
		Lines: []ledger.Line{
			leg(ledger.AccountWalletAvailable, ledger.Debit),
			leg(ledger.AccountWalletReserved, ledger.Credit),
		},
	}); errors.Is(err, ledger.ErrWalletOverdrawn) {
		return nil, payout.ErrInsufficientFunds
	} else if err != nil {
		return nil, err
	}
	complete, err := s.poster.PostGroup(ctx, uow, ledger.GroupInput{
		TenantID:       req.TenantID,
		Type:           ledger.GroupPayoutComplete,
		IdempotencyKey: "PAYOUT_COMPLETE:" + req.ID,
		Description:    "complete payout request",
		Lines: []ledger.Line{
			leg(ledger.AccountWalletReserved, ledger.Debit),
			leg(ledger.AccountPayoutOut, ledger.Credit),
		},
	})
	if err != nil {
		return nil, err
	}

	ok, err = uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimPayoutRequest, id,
		[]string{string(payout.RequestProcessing)}, string(payout.RequestPaidInternal),
		map[string]any{"paid_at": s.now()})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: payout request %s left PROCESSING", domain.ErrInvalidTransition, id)
	}
	if err := s.audit.Append(ctx, uow, ops.LogEntry{
		TenantID:   req.TenantID,
		Actor:      actor,
		Action:     ops.ActionPayoutPaidInternal,
		EntityType: "payout_request",
		EntityID:   id,
		Payload:    ops.Money{Amount: req.Amount, Currency: req.Currency, LedgerGroupID: complete.ID},
	}); err != nil {
		return nil, err
	}
	return uow.PayoutRequests().Get(ctx, id)
}

// markFailed runs after the money transaction rolled back, so the request
// is APPROVED again. It walks APPROVED to PROCESSING to FAILED in one
// transaction.
func (s *Service) markFailed(ctx context.Context, actor, id string) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		now := s.now()
		ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimPayoutRequest, id,
			[]string{string(payout.RequestApproved)}, string(payout.RequestProcessing),
			map[string]any{"processing_at": now})
		if err != nil || !ok {
			return err
		}
		ok, err = uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimPayoutRequest, id,
			[]string{string(payout.RequestProcessing)}, string(payout.RequestFailed),
			map[string]any{
				"failure_code":    payout.FailureInsufficientFunds,
				"failure_message": payout.ErrInsufficientFunds.Error(),
				"failed_at":       now,
			})
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: payout request %s left PROCESSING", domain.ErrInvalidTransition, id)
		}
		req, err := uow.PayoutRequests().Get(ctx, id)
		if err != nil {
			return err
		}
		return s.audit.Append(ctx, uow, ops.LogEntry{
			TenantID:   req.TenantID,
			Actor:      actor,
			Action:     ops.ActionPayoutFailed,
			EntityType: "payout_request",
			EntityID:   id,
			Severity:   ops.SeverityWarning,
			Payload: ops.Transition{
				From:   string(payout.RequestProcessing),
				To:     string(payout.RequestFailed),
				Reason: payout.FailureInsufficientFunds,
			},
		})
	})
}

func requestStatuses(in []payout.RequestStatus) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
