// Package billing runs boost subscriptions: plans, activation, monthly
// invoices, sponsored usage and the dunning that blocks unpaid tenants.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/settlement/pkg/cache"
	"github.com/amirasaad/settlement/pkg/config"
	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/billing"
	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/eventbus"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/service/idempotency"
	ledgersvc "github.com/amirasaad/settlement/pkg/service/ledger"
	"github.com/amirasaad/settlement/pkg/service/opslog"
	"github.com/amirasaad/settlement/pkg/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const rolloverBatch = 100

type Service struct {
	uow       repository.UnitOfWork
	guard     *idempotency.Guard
	poster    *ledgersvc.Poster
	audit     *opslog.Recorder
	flags     tenant.FeatureFlags
	quota     cache.QuotaCache
	bus       eventbus.Bus
	platform  string
	currency  string
	graceDays int
	dueDays   int
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(
	deps config.Deps,
	guard *idempotency.Guard,
	poster *ledgersvc.Poster,
	audit *opslog.Recorder,
) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		uow:       deps.Uow,
		guard:     guard,
		poster:    poster,
		audit:     audit,
		flags:     deps.Features,
		quota:     deps.QuotaCache,
		bus:       deps.EventBus,
		platform:  deps.PlatformTenant(),
		currency:  deps.Currency(),
		graceDays: 5,
		dueDays:   14,
		now:       deps.Now,
		logger:    logger.With("service", "billing"),
	}
	if deps.Config != nil && deps.Config.Billing != nil {
		if b := deps.Config.Billing; b.GraceDays > 0 {
			s.graceDays = b.GraceDays
		}
		if b := deps.Config.Billing; b.InvoiceDueDays > 0 {
			s.dueDays = b.InvoiceDueDays
		}
	}
	return s
}

// PlanInput defines a boost plan.
type PlanInput struct {
	Code                   string          `json:"code" validate:"required"`
	Name                   string          `json:"name" validate:"required"`
	MonthlyPrice           decimal.Decimal `json:"monthlyPrice"`
	Currency               string          `json:"currency"`
	MonthlyImpressionQuota int64           `json:"monthlyImpressionQuota" validate:"gte=0"`
}

func (s *Service) CreatePlan(ctx context.Context, actor string, in PlanInput) (*billing.Plan, error) {
	if !in.MonthlyPrice.IsPositive() {
		return nil, fmt.Errorf("%w: monthly price must be positive", domain.ErrValidation)
	}
	if in.Currency == "" {
		in.Currency = s.currency
	}
	p := &billing.Plan{
		ID:                     uuid.NewString(),
		Code:                   strings.ToUpper(strings.TrimSpace(in.Code)),
		Name:                   in.Name,
		MonthlyPrice:           in.MonthlyPrice,
		Currency:               in.Currency,
		MonthlyImpressionQuota: in.MonthlyImpressionQuota,
		IsActive:               true,
		CreatedAt:              s.now(),
	}
	if err := s.uow.Billing().CreatePlan(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("boost plan created", "code", p.Code, "actor", actor)
	return p, nil
}

func (s *Service) ListPlans(ctx context.Context) ([]*billing.Plan, error) {
	return s.uow.Billing().ListPlans(ctx)
}

func findPlan(ctx context.Context, uow repository.UnitOfWork, code string) (*billing.Plan, error) {
	plans, err := uow.Billing().ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, p := range plans {
		if p.Code == code && p.IsActive {
			return p, nil
		}
	}
	return nil, billing.ErrPlanNotFound
}

// ActivateInput subscribes a seller to a plan.
type ActivateInput struct {
	TenantID  string `json:"tenantId" validate:"required"`
	PlanCode  string `json:"planCode" validate:"required"`
	AutoRenew bool   `json:"autoRenew"`
}

// ActivateSubscription starts a one month period from now. The tenant needs
// the boost feature, no boost pause and no other ACTIVE subscription.
func (s *Service) ActivateSubscription(ctx context.Context, actor string, in ActivateInput) (*billing.Subscription, error) {
	enabled, err := s.flags.IsFeatureEnabled(ctx, in.TenantID, billing.FeatureBoost)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, billing.ErrFeatureDisabled
	}
	var sub *billing.Subscription
	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		policy, err := uow.Policies().Find(ctx, in.TenantID)
		if err != nil {
			return err
		}
		if policy != nil && policy.BoostPaused {
			return billing.ErrBoostPaused
		}
		plan, err := findPlan(ctx, uow, in.PlanCode)
		if err != nil {
			return err
		}
		existing, err := uow.Billing().FindActiveSubscription(ctx, in.TenantID)
		if err != nil {
			return err
		}
		if existing != nil {
			return billing.ErrSubscriptionExists
		}
		now := s.now()
		sub = &billing.Subscription{
			ID:                 uuid.NewString(),
			TenantID:           in.TenantID,
			PlanID:             plan.ID,
			Status:             billing.SubscriptionActive,
			AutoRenew:          in.AutoRenew,
			CurrentPeriodStart: now,
			CurrentPeriodEnd:   now.AddDate(0, 1, 0),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := uow.Billing().CreateSubscription(ctx, sub); err != nil {
			return err
		}
		return s.audit.Append(ctx, uow, ops.LogEntry{
			TenantID:   in.TenantID,
			Actor:      actor,
			Action:     ops.ActionBoostSubscriptionChanged,
			EntityType: "boost_subscription",
			EntityID:   sub.ID,
			Payload:    ops.Transition{To: string(billing.SubscriptionActive), Reason: plan.Code},
		})
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, sub, "", "", string(billing.SubscriptionActive))
	return sub, nil
}

// PauseSubscription pauses an ACTIVE subscription and the tenant's boost.
func (s *Service) PauseSubscription(ctx context.Context, actor, subscriptionID, reason string) (*billing.Subscription, error) {
	return s.changeStatus(ctx, actor, subscriptionID, reason,
		[]billing.SubscriptionStatus{billing.SubscriptionActive}, billing.SubscriptionPaused, nil)
}

// CancelSubscription ends an ACTIVE or PAUSED subscription and turns off
// auto renewal.
func (s *Service) CancelSubscription(ctx context.Context, actor, subscriptionID, reason string) (*billing.Subscription, error) {
	return s.changeStatus(ctx, actor, subscriptionID, reason,
		[]billing.SubscriptionStatus{billing.SubscriptionActive, billing.SubscriptionPaused},
		billing.SubscriptionCancelled,
		map[string]any{"cancelled_at": s.now(), "auto_renew": false})
}

func (s *Service) changeStatus(
	ctx context.Context,
	actor, subscriptionID, reason string,
	from []billing.SubscriptionStatus,
	to billing.SubscriptionStatus,
	set map[string]any,
) (*billing.Subscription, error) {
	var (
		sub  *billing.Subscription
		prev billing.SubscriptionStatus
	)
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		cur, err := uow.Billing().GetSubscription(ctx, subscriptionID)
		if errors.Is(err, domain.ErrNotFound) {
			return billing.ErrSubscriptionNotFound
		}
		if err != nil {
			return err
		}
		prev = cur.Status
		allowed := make([]string, 0, len(from))
		for _, f := range from {
			allowed = append(allowed, string(f))
		}
		ok, err := uow.Claimer().CompareAndSwapStatus(ctx, repository.ClaimSubscription, cur.ID, allowed, string(to), set)
		if err != nil {
			return err
		}
		if !ok {
			return billing.ErrSubscriptionInactive
		}
		if to == billing.SubscriptionPaused {
			if err := uow.Policies().SetBoostPaused(ctx, cur.TenantID, true, s.now()); err != nil {
				return err
			}
		}
		if sub, err = uow.Billing().GetSubscription(ctx, cur.ID); err != nil {
			return err
		}
		return s.audit.Append(ctx, uow, ops.LogEntry{
			TenantID:   cur.TenantID,
			Actor:      actor,
			Action:     ops.ActionBoostSubscriptionChanged,
			EntityType: "boost_subscription",
			EntityID:   cur.ID,
			Severity:   ops.SeverityWarning,
			Payload:    ops.Transition{From: string(prev), To: string(to), Reason: reason},
		})
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, sub, "", string(prev), string(to))
	return sub, nil
}

func (s *Service) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	sub, err := s.uow.Billing().GetSubscription(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, billing.ErrSubscriptionNotFound
	}
	return sub, err
}

// IssueInvoice bills an ACTIVE subscription for periodKey (YYYY-MM) and
// books the receivable.
func (s *Service) IssueInvoice(ctx context.Context, actor, subscriptionID, periodKey string) (*billing.Invoice, error) {
	if _, _, err := billing.PeriodBounds(periodKey); err != nil {
		return nil, err
	}
	key := invoiceKey(subscriptionID, periodKey)
	inv, fresh, err := idempotency.Run(ctx, s.guard, key, "boost_invoice", actor,
		func(uow repository.UnitOfWork) (*billing.Invoice, error) {
			sub, err := uow.Billing().GetSubscription(ctx, subscriptionID)
			if errors.Is(err, domain.ErrNotFound) {
				return nil, billing.ErrSubscriptionNotFound
			}
			if err != nil {
				return nil, err
			}
			if sub.Status != billing.SubscriptionActive {
				return nil, billing.ErrSubscriptionInactive
			}
			existing, err := uow.Billing().FindInvoice(ctx, sub.ID, periodKey)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				return nil, billing.ErrInvoiceExists
			}
			return s.issue(ctx, uow, actor, sub, periodKey)
		})
	if err != nil {
		return nil, err
	}
	if fresh {
		s.emitInvoice(ctx, inv, "", string(billing.InvoiceIssued))
	}
	return inv, nil
}

func invoiceKey(subscriptionID, periodKey string) string {
	return "BOOST_INVOICE_ISSUE:" + subscriptionID + ":" + periodKey
}

// issue writes the invoice and its receivable posting. The ledger group
// shares the invoice key so a period is booked once whichever path issues
// it.
func (s *Service) issue(
	ctx context.Context,
	uow repository.UnitOfWork,
	actor string,
	sub *billing.Subscription,
	periodKey string,
) (*billing.Invoice, error) {
	plan, err := uow.Billing().GetPlan(ctx, sub.PlanID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, billing.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	now := s.now()
	inv := &billing.Invoice{
		ID:               uuid.NewString(),
		TenantID:         sub.TenantID,
		SubscriptionID:   sub.ID,
		PeriodKey:        periodKey,
		Amount:           plan.MonthlyPrice,
		Currency:         plan.Currency,
		Status:           billing.InvoiceIssued,
		CollectionStatus: billing.CollectionCurrent,
		IssuedAt:         now,
		DueAt:            now.AddDate(0, 0, s.dueDays),
		UpdatedAt:        now,
	}
	g, err := s.poster.PostGroup(ctx, uow, ledger.GroupInput{
		TenantID:       s.platform,
		Type:           ledger.GroupBoostInvoice,
		IdempotencyKey: invoiceKey(sub.ID, periodKey),
		Description:    "boost invoice " + periodKey,
		Lines: []ledger.Line{
			s.line(ledger.AccountReceivable, ledger.Debit, inv),
			s.line(ledger.AccountBoostRevenue, ledger.Credit, inv),
		},
	})
	if err != nil {
		return nil, err
	}
	inv.LedgerGroupID = g.ID
	if err := uow.Billing().CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return inv, s.audit.Append(ctx, uow, ops.LogEntry{
		TenantID:   sub.TenantID,
		Actor:      actor,
		Action:     ops.ActionBoostInvoiceIssued,
		EntityType: "boost_invoice",
		EntityID:   inv.ID,
		Payload:    ops.Money{Amount: inv.Amount, Currency: inv.Currency, LedgerGroupID: g.ID, Reference: periodKey},
	})
}

func (s *Service) line(acct ledger.AccountType, dir ledger.Direction, inv *billing.Invoice) ledger.Line {
	return ledger.Line{
		TenantID:    s.platform,
		AccountType: acct,
		Direction:   dir,
		Amount:      inv.Amount,
		Currency:    inv.Currency,
		RefType:     "boost_invoice",
		ReferenceID: inv.ID,
	}
}

func (s *Service) ListInvoices(ctx context.Context, f repository.InvoiceFilter) ([]*billing.Invoice, error) {
	return s.uow.Billing().ListInvoices(ctx, f)
}

// RecordUsage adds sponsored impressions and clicks to the tenant's day.
func (s *Service) RecordUsage(ctx context.Context, tenantID string, day time.Time, impressions, clicks int64) error {
	if impressions < 0 || clicks < 0 {
		return fmt.Errorf("%w: usage counters must not be negative", domain.ErrValidation)
	}
	d := day.UTC().Truncate(24 * time.Hour)
	if err := s.uow.Billing().AddUsage(ctx, tenantID, d, impressions, clicks, s.now()); err != nil {
		return err
	}
	s.invalidate(ctx, tenantID)
	return nil
}

// GetActiveBoostSubscription answers whether the tenant may be served
// sponsored inventory. It returns nil when the feature is off, boost is
// paused, there is no ACTIVE unblocked subscription or any invoice is
// OVERDUE.
func (s *Service) GetActiveBoostSubscription(ctx context.Context, tenantID string) (*billing.ActiveBoost, error) {
	enabled, err := s.flags.IsFeatureEnabled(ctx, tenantID, billing.FeatureBoost)
	if err != nil || !enabled {
		return nil, err
	}
	policy, err := s.uow.Policies().Find(ctx, tenantID)
	if err != nil || (policy != nil && policy.BoostPaused) {
		return nil, err
	}
	sub, err := s.uow.Billing().FindActiveSubscription(ctx, tenantID)
	if err != nil || sub == nil || sub.BillingBlocked {
		return nil, err
	}
	overdue, err := s.uow.Billing().CountInvoices(ctx, repository.InvoiceFilter{
		TenantID:         tenantID,
		Statuses:         []billing.InvoiceStatus{billing.InvoiceIssued},
		CollectionStatus: billing.CollectionOverdue,
	})
	if err != nil || overdue > 0 {
		return nil, err
	}
	plan, err := s.uow.Billing().GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	used, err := s.usedQuota(ctx, sub)
	if err != nil {
		return nil, err
	}
	remaining := plan.MonthlyImpressionQuota - used
	if remaining < 0 {
		remaining = 0
	}
	return &billing.ActiveBoost{Subscription: sub, Plan: plan, UsedQuota: used, RemainingQuota: remaining}, nil
}

// usedQuota reads the period's impressions through the quota cache. Cache
// failures fall back to the database.
func (s *Service) usedQuota(ctx context.Context, sub *billing.Subscription) (int64, error) {
	period := sub.ID + ":" + sub.CurrentPeriodStart.UTC().Format(time.DateOnly)
	if s.quota != nil {
		q, err := s.quota.Get(ctx, sub.TenantID)
		if err != nil {
			s.logger.Warn("quota cache read failed", "tenant_id", sub.TenantID, "error", err)
		} else if q != nil && q.PeriodKey == period {
			return q.Used, nil
		}
	}
	from := sub.CurrentPeriodStart.UTC().Truncate(24 * time.Hour)
	used, err := s.uow.Billing().SumImpressions(ctx, sub.TenantID, from, sub.CurrentPeriodEnd)
	if err != nil {
		return 0, err
	}
	if s.quota != nil {
		if err := s.quota.Set(ctx, sub.TenantID, &cache.Quota{PeriodKey: period, Used: used}); err != nil {
			s.logger.Warn("quota cache write failed", "tenant_id", sub.TenantID, "error", err)
		}
	}
	return used, nil
}

func (s *Service) invalidate(ctx context.Context, tenantID string) {
	if s.quota == nil {
		return
	}
	if err := s.quota.Invalidate(ctx, tenantID); err != nil {
		s.logger.Warn("quota cache invalidate failed", "tenant_id", tenantID, "error", err)
	}
}

func (s *Service) emit(ctx context.Context, sub *billing.Subscription, invoiceID, from, to string) {
	if s.bus == nil || sub == nil {
		return
	}
	if err := s.bus.Emit(ctx, events.BillingStateChanged{
		TenantID:       sub.TenantID,
		SubscriptionID: sub.ID,
		InvoiceID:      invoiceID,
		From:           from,
		To:             to,
		OccurredAt:     s.now(),
	}); err != nil {
		s.logger.Error("failed to emit billing change", "subscription_id", sub.ID, "error", err)
	}
}

func (s *Service) emitInvoice(ctx context.Context, inv *billing.Invoice, from, to string) {
	s.emit(ctx, &billing.Subscription{ID: inv.SubscriptionID, TenantID: inv.TenantID}, inv.ID, from, to)
}
