package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/settlement/pkg/domain"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/domain/rollout"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/amirasaad/settlement/pkg/service/opslog"
	"github.com/shopspring/decimal"
)

// PolicyInput replaces a tenant's caps and switches. Nil caps are unlimited.
type PolicyInput struct {
	TenantID             string           `json:"tenantId" validate:"required"`
	MaxDailyGmv          *decimal.Decimal `json:"maxDailyGmv"`
	MaxDailyPayout       *decimal.Decimal `json:"maxDailyPayout"`
	MaxSingleOrderAmount *decimal.Decimal `json:"maxSingleOrderAmount"`
	EscrowPaused         bool             `json:"escrowPaused"`
	PayoutPaused         bool             `json:"payoutPaused"`
	BoostPaused          bool             `json:"boostPaused"`
}

// Policies is the admin surface for rollout policies.
type Policies struct {
	uow    repository.UnitOfWork
	audit  *opslog.Recorder
	now    func() time.Time
	logger *slog.Logger
}

func NewPolicies(uow repository.UnitOfWork, audit *opslog.Recorder, now func() time.Time, logger *slog.Logger) *Policies {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Policies{uow: uow, audit: audit, now: now, logger: logger.With("service", "policies")}
}

// Get returns the tenant policy, or an unrestricted one when none is stored.
func (p *Policies) Get(ctx context.Context, tenantID string) (*rollout.Policy, error) {
	pol, err := p.uow.Policies().Find(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if pol == nil {
		return &rollout.Policy{TenantID: tenantID}, nil
	}
	return pol, nil
}

// Upsert stores the policy and audits the change.
func (p *Policies) Upsert(ctx context.Context, actor string, in PolicyInput) (*rollout.Policy, error) {
	if in.TenantID == "" {
		return nil, fmt.Errorf("%w: tenantId is required", domain.ErrValidation)
	}
	for _, c := range []*decimal.Decimal{in.MaxDailyGmv, in.MaxDailyPayout, in.MaxSingleOrderAmount} {
		if c != nil && c.IsNegative() {
			return nil, fmt.Errorf("%w: caps must be non-negative", domain.ErrValidation)
		}
	}
	var out *rollout.Policy
	err := p.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		existing, err := uow.Policies().Find(ctx, in.TenantID)
		if err != nil {
			return err
		}
		pol := &rollout.Policy{
			TenantID:             in.TenantID,
			MaxDailyGmv:          in.MaxDailyGmv,
			MaxDailyPayout:       in.MaxDailyPayout,
			MaxSingleOrderAmount: in.MaxSingleOrderAmount,
			EscrowPaused:         in.EscrowPaused,
			PayoutPaused:         in.PayoutPaused,
			BoostPaused:          in.BoostPaused,
			UpdatedAt:            p.now(),
		}
		if existing != nil {
			pol.ID = existing.ID
		}
		if err := uow.Policies().Upsert(ctx, pol); err != nil {
			return err
		}
		out = pol
		return p.audit.Append(ctx, uow, ops.LogEntry{
			TenantID:   in.TenantID,
			Actor:      actor,
			Action:     ops.ActionPolicyUpdated,
			EntityType: "tenant_rollout_policy",
			EntityID:   in.TenantID,
			Payload:    ops.Transition{From: describe(existing), To: describe(pol)},
		})
	})
	if err != nil {
		return nil, err
	}
	p.logger.Info("rollout policy updated", "tenant_id", in.TenantID, "actor", actor)
	return out, nil
}

func describe(p *rollout.Policy) string {
	if p == nil {
		return "none"
	}
	limit := func(d *decimal.Decimal) string {
		if d == nil {
			return "-"
		}
		return d.String()
	}
	return fmt.Sprintf("gmv=%s payout=%s order=%s escrowPaused=%t payoutPaused=%t boostPaused=%t",
		limit(p.MaxDailyGmv), limit(p.MaxDailyPayout), limit(p.MaxSingleOrderAmount),
		p.EscrowPaused, p.PayoutPaused, p.BoostPaused)
}
