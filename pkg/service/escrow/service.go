// Package escrow captures buyer payments into escrow, releases seller
// earnings to wallets and books refunds and chargebacks against them.
package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/escrow"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/service/idempotency"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	"github.com/amirasaad/settlement/pkg/service/opslog"
	"github.com/amirasaad/settlement/pkg/service/risk"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	uow      repository.UnitOfWork
	guard    *idempotency.Guard
	poster   *ledgersvc.Poster
	risk     *risk.Guard
	audit    *opslog.Recorder
	platform string
	currency string
	now      func() time.Time
	logger   *slog.Logger
}

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
		platform: deps.PlatformTenant(),
		currency: deps.Currency(),
		now:      deps.Now,
		logger:   logger.With("service", "escrow"),
	}
}

// CaptureInput is a buyer payment confirmed by the provider. TenantID is
// the seller.
type CaptureInput struct {
	ProviderPaymentID string          `json:"providerPaymentId" validate:"required"`
	TenantID          string          `json:"tenantId" validate:"required"`
	BuyerTenantID     string          `json:"buyerTenantId"`
	OrderID           string          `json:"orderId" validate:"required"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
}

// CapturePayment records a PAID payment and moves its amount from provider
// clearing into escrow. The escrow switch and the order and GMV caps of the
// seller are checked first.
func (s *Service) CapturePayment(ctx context.Context, actor string, in CaptureInput) (*escrow.ProviderPayment, error) {
	if !in.Amount.IsPositive() {
		return nil, payout.ErrInvalidAmount
	}
	if in.Currency == "" {
		in.Currency = s.currency
	}
	key := "ESCROW_CAPTURE:" + in.ProviderPaymentID
	pay, _, err := idempotency.Run(ctx, s.guard, key, "provider_payment", actor,
		func(uow repository.UnitOfWork) (*escrow.ProviderPayment, error) {
			subject := risk.Subject{TenantID: in.TenantID, Actor: actor, EntityType: "order", EntityID: in.OrderID}
			if err := s.risk.AssertEscrowNotPaused(ctx, uow, subject); err != nil {
				return nil, err
			}
			if err := s.risk.AssertWithinSingleOrderLimit(ctx, uow, subject, in.Amount); err != nil {
				return nil, err
			}
			if err := s.risk.AssertWithinGmvLimit(ctx, uow, subject, in.Amount); err != nil {
				return nil, err
			}

			now := s.now()
			pay := &escrow.ProviderPayment{
				ID:                uuid.NewString(),
				ProviderPaymentID: in.ProviderPaymentID,
				TenantID:          in.TenantID,
				BuyerTenantID:     in.BuyerTenantID,
				OrderID:           in.OrderID,
				Amount:            in.Amount,
				Currency:          in.Currency,
				Status:            escrow.PaymentPaid,
				PaidAt:            now,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if err := uow.Payments().Create(ctx, pay); err != nil {
				return nil, err
			}
			g, err := s.poster.PostGroup(ctx, uow, ledger.GroupInput{
				TenantID:       s.platform,
				Type:           ledger.GroupEscrowCapture,
				IdempotencyKey: key,
				Description:    "capture order " + in.OrderID,
				Lines: []ledger.Line{
					s.line(s.platform, ledger.AccountProviderClearing, ledger.Debit, in.Amount, in.Currency, "provider_payment", pay.ID),
					s.line(s.platform, ledger.AccountEscrowLiability, ledger.Credit, in.Amount, in.Currency, "provider_payment", pay.ID),
				},
			})
			if err != nil {
				return nil, err
			}
			return pay, s.audit.Append(ctx, uow, ops.LogEntry{
				TenantID:   in.TenantID,
				Actor:      actor,
				Action:     ops.ActionEscrowCaptured,
				EntityType: "provider_payment",
				EntityID:   pay.ID,
				Payload:    ops.Money{Amount: in.Amount, Currency: in.Currency, LedgerGroupID: g.ID, Reference: in.OrderID},
			})
		})
	if err != nil {
		return nil, err
	}
	return pay, nil
}

// ReleaseInput splits a delivered shipment into commission and seller net.
type ReleaseInput struct {
	ShipmentID       string          `json:"shipmentId" validate:"required"`
	SellerTenantID   string          `json:"sellerTenantId" validate:"required"`
	GrossAmount      decimal.Decimal `json:"grossAmount"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
	NetAmount        decimal.Decimal `json:"netAmount"`
	Currency         string          `json:"currency"`
}

// Release is the outcome of ReleaseToWallet.
type Release struct {
	ShipmentID     string          `json:"shipmentId"`
	SellerTenantID string          `json:"sellerTenantId"`
	NetAmount      decimal.Decimal `json:"netAmount"`
	LedgerGroupID  string          `json:"ledgerGroupId"`
}

// ReleaseToWallet moves a shipment's gross out of escrow: the commission to
// platform revenue and the net to the seller's available wallet.
func (s *Service) ReleaseToWallet(ctx context.Context, actor string, in ReleaseInput) (*Release, error) {
	if !in.GrossAmount.IsPositive() || in.NetAmount.IsNegative() || in.CommissionAmount.IsNegative() {
		return nil, payout.ErrInvalidAmount
	}
	if !in.GrossAmount.Equal(in.CommissionAmount.Add(in.NetAmount)) {
		return nil, payout.ErrAmountMismatch
	}
	if in.Currency == "" {
		in.Currency = s.currency
	}
	key := "EARNING_RELEASE:" + in.ShipmentID
	rel, _, err := idempotency.Run(ctx, s.guard, key, "shipment", actor,
		func(uow repository.UnitOfWork) (*Release, error) {
			lines := []ledger.Line{
				s.line(s.platform, ledger.AccountEscrowLiability, ledger.Debit, in.GrossAmount, in.Currency, "shipment", in.ShipmentID),
			}
			if in.CommissionAmount.IsPositive() {
				lines = append(lines, s.line(s.platform, ledger.AccountPlatformRevenue, ledger.Credit,
					in.CommissionAmount, in.Currency, "shipment", in.ShipmentID))
			}
			if in.NetAmount.IsPositive() {
				lines = append(lines, s.line(in.SellerTenantID, ledger.AccountWalletAvailable, ledger.Credit,
					in.NetAmount, in.Currency, "shipment", in.ShipmentID))
			}
			g, err := s.poster.PostGroup(ctx, uow, ledger.GroupInput{
				TenantID:       in.SellerTenantID,
				Type:           ledger.GroupEarningRelease,
				IdempotencyKey: key,
				Description:    "release shipment " + in.ShipmentID,
				Lines:          lines,
			})
			if err != nil {
				return nil, err
			}
			if err := s.audit.Append(ctx, uow, ops.LogEntry{
				TenantID:   in.SellerTenantID,
				Actor:      actor,
				Action:     ops.ActionEarningReleased,
				EntityType: "shipment",
				EntityID:   in.ShipmentID,
				Payload:    ops.Money{Amount: in.NetAmount, Currency: in.Currency, LedgerGroupID: g.ID},
			}); err != nil {
				return nil, err
			}
			return &Release{
				ShipmentID:     in.ShipmentID,
				SellerTenantID: in.SellerTenantID,
				NetAmount:      in.NetAmount,
				LedgerGroupID:  g.ID,
			}, nil
		})
	return rel, err
}

// ReversalInput reverses all or part of a captured payment. A zero amount
// reverses the whole payment.
type ReversalInput struct {
	ProviderPaymentID string          `json:"providerPaymentId" validate:"required"`
	Amount            decimal.Decimal `json:"amount"`
	Reason            string          `json:"reason"`
}

// Reversal is the outcome of a refund or chargeback.
type Reversal struct {
	PaymentID      string               `json:"paymentId"`
	Status         escrow.PaymentStatus `json:"status"`
	Amount         decimal.Decimal      `json:"amount"`
	FromWallet     decimal.Decimal      `json:"fromWallet"`
	FromReceivable decimal.Decimal      `json:"fromReceivable"`
	LedgerGroupID  string               `json:"ledgerGroupId"`
}

// HandleChargeback books a provider chargeback against the seller.
func (s *Service) HandleChargeback(ctx context.Context, actor string, in ReversalInput) (*Reversal, error) {
	return s.reverse(ctx, s.uow, actor, in, escrow.PaymentChargeback)
}

// HandleChargebackIn is HandleChargeback inside the caller's transaction.
func (s *Service) HandleChargebackIn(ctx context.Context, uow repository.UnitOfWork, actor string, in ReversalInput) (*Reversal, error) {
	return s.reverse(ctx, uow, actor, in, escrow.PaymentChargeback)
}

// HandleRefund books a refund to the buyer against the seller.
func (s *Service) HandleRefund(ctx context.Context, actor string, in ReversalInput) (*Reversal, error) {
	return s.reverse(ctx, s.uow, actor, in, escrow.PaymentRefunded)
}

func (s *Service) reverse(
	ctx context.Context,
	outer repository.UnitOfWork,
	actor string,
	in ReversalInput,
	to escrow.PaymentStatus,
) (*Reversal, error) {
	groupType, action, prefix := ledger.GroupChargeback, ops.ActionChargebackRecorded, "CHARGEBACK:"
	if to == escrow.PaymentRefunded {
		groupType, action, prefix = ledger.GroupRefund, ops.ActionRefundRecorded, "REFUND:"
	}
	key := prefix + in.ProviderPaymentID
	rev, _, err := idempotency.Run(ctx, s.guard.With(outer), key, "provider_payment", actor,
		func(uow repository.UnitOfWork) (*Reversal, error) {
			pay, err := uow.Payments().FindByProviderID(ctx, in.ProviderPaymentID)
			if err != nil {
				return nil, err
			}
			if pay == nil {
				return nil, escrow.ErrPaymentNotFound
			}
			if pay.Status != escrow.PaymentPaid {
				return nil, escrow.ErrPaymentNotCaptured
			}
			amount := in.Amount
			if amount.IsZero() {
				amount = pay.Amount
			}
			if amount.IsNegative() || amount.GreaterThan(pay.Amount) {
				return nil, fmt.Errorf("%w: reversal %s exceeds payment %s", domain.ErrValidation, amount, pay.Amount)
			}

			bal, err := ledgersvc.LockedBalances(ctx, uow, pay.TenantID)
			if err != nil {
				return nil, err
			}
			split := escrow.SplitReversal(amount, bal.Available)
			var lines []ledger.Line
			if split.FromWallet.IsPositive() {
				lines = append(lines, s.line(pay.TenantID, ledger.AccountWalletAvailable, ledger.Debit,
					split.FromWallet, pay.Currency, "provider_payment", pay.ID))
			}
			if split.FromReceivable.IsPositive() {
				lines = append(lines, s.line(pay.TenantID, ledger.AccountChargebackReceivable, ledger.Debit,
					split.FromReceivable, pay.Currency, "provider_payment", pay.ID))
			}
			lines = append(lines, s.line(s.platform, ledger.AccountProviderClearing, ledger.Credit,
				amount, pay.Currency, "provider_payment", pay.ID))
			g, err := s.poster.PostGroup(ctx, uow, ledger.GroupInput{
				TenantID:       pay.TenantID,
				Type:           groupType,
				IdempotencyKey: key,
				Description:    in.Reason,
				Lines:          lines,
			})
			if err != nil {
				return nil, err
			}

			ok, err := uow.Payments().MarkReversed(ctx, pay.ID, to, s.now())
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, escrow.ErrPaymentNotCaptured
			}
			severity := ops.SeverityInfo
			if split.FromReceivable.IsPositive() {
				severity = ops.SeverityWarning
			}
			if err := s.audit.Append(ctx, uow, ops.LogEntry{
				TenantID:   pay.TenantID,
				Actor:      actor,
				Action:     action,
				EntityType: "provider_payment",
				EntityID:   pay.ID,
				Severity:   severity,
				Payload:    ops.Money{Amount: amount, Currency: pay.Currency, LedgerGroupID: g.ID, Reference: in.Reason},
			}); err != nil {
				return nil, err
			}
			s.logger.Info("payment reversed",
				"payment_id", pay.ID, "status", to, "from_wallet", split.FromWallet, "receivable", split.FromReceivable)
			return &Reversal{
				PaymentID:      pay.ID,
				Status:         to,
				Amount:         amount,
				FromWallet:     split.FromWallet,
				FromReceivable: split.FromReceivable,
				LedgerGroupID:  g.ID,
			}, nil
		})
	return rev, err
}

func (s *Service) line(
	tenantID string,
	acct ledger.AccountType,
	dir ledger.Direction,
	amount decimal.Decimal,
	currency, refType, refID string,
) ledger.Line {
	return ledger.Line{
		TenantID:    tenantID,
		AccountType: acct,
		Direction:   dir,
		Amount:      amount,
		Currency:    currency,
		RefType:     refType,
		ReferenceID: refID,
	}
}
