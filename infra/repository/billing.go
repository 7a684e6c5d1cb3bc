package repository

import (
	"context"
	"time"

	"github.com/amirasaad/settlement/infra/repository/model"
	"github.com/amirasaad/settlement/pkg/domain/billing"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type billingRepository struct {
	db *gorm.DB
}

func (r *billingRepository) CreatePlan(ctx context.Context, p *billing.Plan) error {
	row := model.BoostPlan{
		ID:                     p.ID,
		Code:                   p.Code,
		Name:                   p.Name,
		MonthlyPrice:           p.MonthlyPrice,
		Currency:               p.Currency,
		MonthlyImpressionQuota: p.MonthlyImpressionQuota,
		IsActive:               p.IsActive,
		CreatedAt:              p.CreatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *billingRepository) GetPlan(ctx context.Context, id string) (*billing.Plan, error) {
	var row model.BoostPlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapPlan(&row), nil
}

func (r *billingRepository) ListPlans(ctx context.Context) ([]*billing.Plan, error) {
	var rows []model.BoostPlan
	if err := r.db.WithContext(ctx).Order("code").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*billing.Plan, 0, len(rows))
	for i := range rows {
		out = append(out, mapPlan(&rows[i]))
	}
	return out, nil
}

func mapPlan(row *model.BoostPlan) *billing.Plan {
	return &billing.Plan{
		ID:                     row.ID,
		Code:                   row.Code,
		Name:                   row.Name,
		MonthlyPrice:           row.MonthlyPrice,
		Currency:               row.Currency,
		MonthlyImpressionQuota: row.MonthlyImpressionQuota,
		IsActive:               row.IsActive,
		CreatedAt:              row.CreatedAt,
	}
}

func (r *billingRepository) CreateSubscription(ctx context.Context, s *billing.Subscription) error {
	row := model.BoostSubscription{
		ID:                 s.ID,
		TenantID:           s.TenantID,
		PlanID:             s.PlanID,
		Status:             string(s.Status),
		AutoRenew:          s.AutoRenew,
		BillingBlocked:     s.BillingBlocked,
		BlockedAt:          s.BlockedAt,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *billingRepository) GetSubscription(ctx context.Context, id string) (*billing.Subscription, error) {
	var row model.BoostSubscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapSubscription(&row), nil
}

func (r *billingRepository) FindActiveSubscription(ctx context.Context, tenantID string) (*billing.Subscription, error) {
	var row model.BoostSubscription
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, string(billing.SubscriptionActive)).
		Order("created_at DESC").
		Take(&row).Error
	found, err := findOne(err)
	if err != nil || !found {
		return nil, err
	}
	return mapSubscription(&row), nil
}

func (r *billingRepository) ListSubscriptionsEndingBefore(ctx context.Context, at time.Time, limit int) ([]*billing.Subscription, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND current_period_end <= ?", string(billing.SubscriptionActive), at).
		Order("current_period_end, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.BoostSubscription
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*billing.Subscription, 0, len(rows))
	for i := range rows {
		out = append(out, mapSubscription(&rows[i]))
	}
	return out, nil
}

func (r *billingRepository) UpdateSubscription(ctx context.Context, id string, fields map[string]any) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Model(&model.BoostSubscription{}).
			Where("id = ?", id).Updates(fields).Error
	})
}

func mapSubscription(row *model.BoostSubscription) *billing.Subscription {
	return &billing.Subscription{
		ID:                 row.ID,
		TenantID:           row.TenantID,
		PlanID:             row.PlanID,
		Status:             billing.SubscriptionStatus(row.Status),
		AutoRenew:          row.AutoRenew,
		BillingBlocked:     row.BillingBlocked,
		BlockedAt:          row.BlockedAt,
		CurrentPeriodStart: row.CurrentPeriodStart,
		CurrentPeriodEnd:   row.CurrentPeriodEnd,
		CancelledAt:        row.CancelledAt,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func (r *billingRepository) CreateInvoice(ctx context.Context, inv *billing.Invoice) error {
	row := model.BoostInvoice{
		ID:               inv.ID,
		TenantID:         inv.TenantID,
		SubscriptionID:   inv.SubscriptionID,
		PeriodKey:        inv.PeriodKey,
		Amount:           inv.Amount,
		Currency:         inv.Currency,
		Status:           string(inv.Status),
		CollectionStatus: string(inv.CollectionStatus),
		LedgerGroupID:    inv.LedgerGroupID,
		IssuedAt:         inv.IssuedAt,
		DueAt:            inv.DueAt,
		UpdatedAt:        inv.UpdatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *billingRepository) GetInvoice(ctx context.Context, id string) (*billing.Invoice, error) {
	var row model.BoostInvoice
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapInvoice(&row), nil
}

func (r *billingRepository) FindInvoice(ctx context.Context, subscriptionID, periodKey string) (*billing.Invoice, error) {
	var row model.BoostInvoice
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND period_key = ?", subscriptionID, periodKey).
		Take(&row).Error
	found, err := findOne(err)
	if err != nil || !found {
		return nil, err
	}
	return mapInvoice(&row), nil
}

func (r *billingRepository) ListInvoices(ctx context.Context, f repository.InvoiceFilter) ([]*billing.Invoice, error) {
	q := invoiceQuery(r.db.WithContext(ctx), f).Order("due_at, id")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []model.BoostInvoice
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*billing.Invoice, 0, len(rows))
	for i := range rows {
		out = append(out, mapInvoice(&rows[i]))
	}
	return out, nil
}

func (r *billingRepository) CountInvoices(ctx context.Context, f repository.InvoiceFilter) (int64, error) {
	var n int64
	err := invoiceQuery(r.db.WithContext(ctx).Model(&model.BoostInvoice{}), f).Count(&n).Error
	return n, err
}

func invoiceQuery(q *gorm.DB, f repository.InvoiceFilter) *gorm.DB {
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.SubscriptionID != "" {
		q = q.Where("subscription_id = ?", f.SubscriptionID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.CollectionStatus != "" {
		q = q.Where("collection_status = ?", string(f.CollectionStatus))
	}
	if !f.DueBefore.IsZero() {
		q = q.Where("due_at < ?", f.DueBefore)
	}
	if !f.GraceEndsBefore.IsZero() {
		q = q.Where("grace_ends_at < ?", f.GraceEndsBefore)
	}
	if f.ExcludeInvoiceID != "" {
		q = q.Where("id <> ?", f.ExcludeInvoiceID)
	}
	return q
}

func mapInvoice(row *model.BoostInvoice) *billing.Invoice {
	return &billing.Invoice{
		ID:               row.ID,
		TenantID:         row.TenantID,
		SubscriptionID:   row.SubscriptionID,
		PeriodKey:        row.PeriodKey,
		Amount:           row.Amount,
		Currency:         row.Currency,
		Status:           billing.InvoiceStatus(row.Status),
		CollectionStatus: billing.CollectionStatus(row.CollectionStatus),
		LedgerGroupID:    row.LedgerGroupID,
		IssuedAt:         row.IssuedAt,
		DueAt:            row.DueAt,
		GraceEndsAt:      row.GraceEndsAt,
		OverdueAt:        row.OverdueAt,
		PaidAt:           row.PaidAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

func (r *billingRepository) AddUsage(
	ctx context.Context,
	tenantID string,
	day time.Time,
	impressions, clicks int64,
	at time.Time,
) error {
	row := model.BoostUsageDaily{
		ID:                   uuid.NewString(),
		TenantID:             tenantID,
		Day:                  day,
		SponsoredImpressions: impressions,
		SponsoredClicks:      clicks,
		UpdatedAt:            at,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "day"}},
			DoUpdates: clause.Assignments(map[string]any{
				"sponsored_impressions": gorm.Expr("boost_usage_daily.sponsored_impressions + ?", impressions),
				"sponsored_clicks":      gorm.Expr("boost_usage_daily.sponsored_clicks + ?", clicks),
				"updated_at":            at,
			}),
		}).Create(&row).Error
	})
}

func (r *billingRepository) SumImpressions(ctx context.Context, tenantID string, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.BoostUsageDaily{}).
		Select("COALESCE(SUM(sponsored_impressions), 0)").
		Where("tenant_id = ? AND day >= ? AND day < ?", tenantID, from, to).
		Scan(&total).Error
	return total, err
}
