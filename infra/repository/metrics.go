package repository

import (
	"context"
	"time"

	"github.com/amirasaad/settlement/infra/repository/model"
	"github.com/amirasaad/settlement/pkg/domain/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var figureColumns = []string{
	"gross_gmv", "order_count", "active_buyers", "active_sellers",
	"commission_revenue", "boost_revenue", "take_rate", "escrow_float",
	"payout_volume", "payout_count", "chargeback_amount", "chargeback_count",
	"receivable_outstanding", "critical_alerts", "computed_at",
}

type metricsRepository struct {
	db *gorm.DB
}

func (r *metricsRepository) UpsertPlatform(ctx context.Context, m *metrics.Daily) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row := model.PlatformDailyMetrics{ID: m.ID, Day: m.Day, DailyFigures: toFigures(m)}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "day"}},
			DoUpdates: clause.AssignmentColumns(figureColumns),
		}).Create(&row).Error
	})
}

func (r *metricsRepository) UpsertTenant(ctx context.Context, m *metrics.Daily) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row := model.TenantDailyMetrics{ID: m.ID, Day: m.Day, TenantID: m.TenantID, DailyFigures: toFigures(m)}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "day"}, {Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns(figureColumns),
		}).Create(&row).Error
	})
}

func (r *metricsRepository) ListPlatform(ctx context.Context, from, to time.Time) ([]*metrics.Daily, error) {
	var rows []model.PlatformDailyMetrics
	if err := r.db.WithContext(ctx).
		Where("day >= ? AND day < ?", from, to).
		Order("day").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*metrics.Daily, 0, len(rows))
	for i := range rows {
		out = append(out, fromFigures(rows[i].ID, rows[i].Day, "", rows[i].DailyFigures))
	}
	return out, nil
}

func (r *metricsRepository) ListTenant(ctx context.Context, tenantID string, from, to time.Time) ([]*metrics.Daily, error) {
	var rows []model.TenantDailyMetrics
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND day >= ? AND day < ?", tenantID, from, to).
		Order("day").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*metrics.Daily, 0, len(rows))
	for i := range rows {
		out = append(out, fromFigures(rows[i].ID, rows[i].Day, rows[i].TenantID, rows[i].DailyFigures))
	}
	return out, nil
}

func toFigures(m *metrics.Daily) model.DailyFigures {
	return model.DailyFigures{
		GrossGmv:              m.GrossGmv,
		OrderCount:            m.OrderCount,
		ActiveBuyers:          m.ActiveBuyers,
		ActiveSellers:         m.ActiveSellers,
		CommissionRevenue:     m.CommissionRevenue,
		BoostRevenue:          m.BoostRevenue,
		TakeRate:              m.TakeRate,
		EscrowFloat:           m.EscrowFloat,
		PayoutVolume:          m.PayoutVolume,
		PayoutCount:           m.PayoutCount,
		ChargebackAmount:      m.ChargebackAmount,
		ChargebackCount:       m.ChargebackCount,
		ReceivableOutstanding: m.ReceivableOutstanding,
		CriticalAlerts:        m.CriticalAlerts,
		ComputedAt:            m.ComputedAt,
	}
}

func fromFigures(id string, day time.Time, tenantID string, f model.DailyFigures) *metrics.Daily {
	return &metrics.Daily{
		ID:                    id,
		Day:                   day,
		TenantID:              tenantID,
		GrossGmv:              f.GrossGmv,
		OrderCount:            f.OrderCount,
		ActiveBuyers:          f.ActiveBuyers,
		ActiveSellers:         f.ActiveSellers,
		CommissionRevenue:     f.CommissionRevenue,
		BoostRevenue:          f.BoostRevenue,
		TakeRate:              f.TakeRate,
		EscrowFloat:           f.EscrowFloat,
		PayoutVolume:          f.PayoutVolume,
		PayoutCount:           f.PayoutCount,
		ChargebackAmount:      f.ChargebackAmount,
		ChargebackCount:       f.ChargebackCount,
		ReceivableOutstanding: f.ReceivableOutstanding,
		CriticalAlerts:        f.CriticalAlerts,
		ComputedAt:            f.ComputedAt,
	}
}
