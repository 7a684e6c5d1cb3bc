package repository

import (
	"context"
	"time"

	"github.com/amirasaad/settlement/infra/repository/model"
	"github.com/amirasaad/settlement/pkg/domain/rollout"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type policyRepository struct {
	db *gorm.DB
}

func (r *policyRepository) Find(ctx context.Context, tenantID string) (*rollout.Policy, error) {
	var row model.TenantRolloutPolicy
	found, err := findOne(r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Take(&row).Error)
	if err != nil || !found {
		return nil, err
	}
	return &rollout.Policy{
		ID:                   row.ID,
		TenantID:             row.TenantID,
		MaxDailyGmv:          fromNull(row.MaxDailyGmv),
		MaxDailyPayout:       fromNull(row.MaxDailyPayout),
		MaxSingleOrderAmount: fromNull(row.MaxSingleOrderAmount),
		EscrowPaused:         row.EscrowPaused,
		PayoutPaused:         row.PayoutPaused,
		BoostPaused:          row.BoostPaused,
		UpdatedAt:            row.UpdatedAt,
	}, nil
}

func (r *policyRepository) Upsert(ctx context.Context, p *rollout.Policy) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	row := model.TenantRolloutPolicy{
		ID:                   p.ID,
		TenantID:             p.TenantID,
		MaxDailyGmv:          toNull(p.MaxDailyGmv),
		MaxDailyPayout:       toNull(p.MaxDailyPayout),
		MaxSingleOrderAmount: toNull(p.MaxSingleOrderAmount),
		EscrowPaused:         p.EscrowPaused,
		PayoutPaused:         p.PayoutPaused,
		BoostPaused:          p.BoostPaused,
		UpdatedAt:            p.UpdatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"max_daily_gmv", "max_daily_payout", "max_single_order_amount",
				"escrow_paused", "payout_paused", "boost_paused", "updated_at",
			}),
		}).Create(&row).Error
	})
}

func (r *policyRepository) SetBoostPaused(ctx context.Context, tenantID string, paused bool, at time.Time) error {
	row := model.TenantRolloutPolicy{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		BoostPaused: paused,
		UpdatedAt:   at,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"boost_paused", "updated_at"}),
		}).Create(&row).Error
	})
}

func toNull(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNull(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}
