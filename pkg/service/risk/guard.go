// Package risk enforces per-tenant rollout caps and kill-switches.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/settlement/pkg/domain/escrow"
	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/domain/rollout"
	"github.com/amirasaad/settlement/pkg/eventbus"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/shopspring/decimal"
)

// Subject identifies who attempted what, for the violation trail.
type Subject struct {
	TenantID   string
	Actor      string
	EntityType string
	EntityID   string
}

// Guard evaluates policies inside the caller's transaction. Violations are
// published after that transaction ends, so they are recorded even though
// the refused operation rolls back.
type Guard struct {
	bus       eventbus.Bus
	now       func() time.Time
	dayOffset time.Duration
	logger    *slog.Logger
}

func NewGuard(bus eventbus.Bus, now func() time.Time, dayOffset time.Duration, logger *slog.Logger) *Guard {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{bus: bus, now: now, dayOffset: dayOffset, logger: logger.With("service", "risk")}
}

func (g *Guard) policy(ctx context.Context, uow repository.UnitOfWork, tenantID string) (*rollout.Policy, error) {
	p, err := uow.Policies().Find(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load rollout policy %s: %w", tenantID, err)
	}
	if p == nil {
		return &rollout.Policy{TenantID: tenantID}, nil
	}
	return p, nil
}

func (g *Guard) AssertEscrowNotPaused(ctx context.Context, uow repository.UnitOfWork, s Subject) error {
	p, err := g.policy(ctx, uow, s.TenantID)
	if err != nil {
		return err
	}
	if p.EscrowPaused {
		return g.violate(uow, s, rollout.CodeEscrowPaused, "escrow is paused for tenant")
	}
	return nil
}

func (g *Guard) AssertPayoutNotPaused(ctx context.Context, uow repository.UnitOfWork, s Subject) error {
	p, err := g.policy(ctx, uow, s.TenantID)
	if err != nil {
		return err
	}
	if p.PayoutPaused {
		return g.violate(uow, s, rollout.CodePayoutPaused, "payouts are paused for tenant")
	}
	return nil
}

func (g *Guard) AssertWithinSingleOrderLimit(
	ctx context.Context,
	uow repository.UnitOfWork,
	s Subject,
	amount decimal.Decimal,
) error {
	p, err := g.policy(ctx, uow, s.TenantID)
	if err != nil {
		return err
	}
	if p.MaxSingleOrderAmount != nil && amount.GreaterThan(*p.MaxSingleOrderAmount) {
		return g.violate(uow, s, rollout.CodeSingleOrderLimitExceeded,
			fmt.Sprintf("order %s exceeds limit %s", amount, p.MaxSingleOrderAmount))
	}
	return nil
}

// AssertWithinGmvLimit adds amount to the tenant's PAID payments of the
// current risk day.
func (g *Guard) AssertWithinGmvLimit(
	ctx context.Context,
	uow repository.UnitOfWork,
	s Subject,
	amount decimal.Decimal,
) error {
	p, err := g.policy(ctx, uow, s.TenantID)
	if err != nil || p.MaxDailyGmv == nil {
		return err
	}
	from, to := rollout.DayWindow(g.now(), g.dayOffset)
	payments, err := uow.Payments().List(ctx, repository.PaymentFilter{
		TenantID: s.TenantID,
		Statuses: []escrow.PaymentStatus{escrow.PaymentPaid},
		PaidFrom: from,
		PaidTo:   to,
	})
	if err != nil {
		return err
	}
	total := amount
	for _, pay := range payments {
		total = total.Add(pay.Amount)
	}
	if total.GreaterThan(*p.MaxDailyGmv) {
		return g.violate(uow, s, rollout.CodeDailyGmvLimitExceeded,
			fmt.Sprintf("daily gmv %s exceeds limit %s", total, p.MaxDailyGmv))
	}
	return nil
}

// AssertWithinPayoutLimit adds amount to the net of the tenant's payouts
// created in the current risk day and not failed.
func (g *Guard) AssertWithinPayoutLimit(
	ctx context.Context,
	uow repository.UnitOfWork,
	s Subject,
	amount decimal.Decimal,
) error {
	p, err := g.policy(ctx, uow, s.TenantID)
	if err != nil || p.MaxDailyPayout == nil {
		return err
	}
	from, to := rollout.DayWindow(g.now(), g.dayOffset)
	payouts, err := uow.ProviderPayouts().List(ctx, repository.PayoutFilter{
		SellerTenantID: s.TenantID,
		Statuses:       payout.CapCountedStatuses,
		CreatedFrom:    from,
		CreatedTo:      to,
	})
	if err != nil {
		return err
	}
	total := amount
	for _, po := range payouts {
		total = total.Add(po.NetAmount)
	}
	if total.GreaterThan(*p.MaxDailyPayout) {
		return g.violate(uow, s, rollout.CodeDailyPayoutLimitExceeded,
			fmt.Sprintf("daily payout %s exceeds limit %s", total, p.MaxDailyPayout))
	}
	return nil
}

func (g *Guard) violate(uow repository.UnitOfWork, s Subject, code rollout.Code, msg string) error {
	verr := &rollout.ViolationError{Code: code, TenantID: s.TenantID, Message: msg}
	evt := events.PolicyViolated{
		TenantID:   s.TenantID,
		Code:       string(code),
		Message:    msg,
		Actor:      s.Actor,
		EntityType: s.EntityType,
		EntityID:   s.EntityID,
		OccurredAt: g.now(),
	}
	g.logger.Warn("policy violation", "tenant_id", s.TenantID, "code", code, "entity_id", s.EntityID)
	uow.AfterCompletion(func(ctx context.Context) {
		if g.bus == nil {
			return
		}
		if err := g.bus.Emit(ctx, evt); err != nil {
			g.logger.Error("failed to emit policy violation", "tenant_id", s.TenantID, "code", code, "error", err)
		}
	})
	return verr
}
