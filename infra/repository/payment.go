package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/settlement/infra/repository/model"
	"github.com/amirasaad/settlement/pkg/domain/escrow"
	"github.com/amirasaad/settlement/pkg/repository"
	"gorm.io/gorm"
)

type paymentRepository struct {
	db *gorm.DB
}

func (r *paymentRepository) Create(ctx context.Context, p *escrow.ProviderPayment) error {
	row := model.ProviderPayment{
		ID:                p.ID,
		ProviderPaymentID: p.ProviderPaymentID,
		TenantID:          p.TenantID,
		BuyerTenantID:     p.BuyerTenantID,
		OrderID:           p.OrderID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Status:            string(p.Status),
		PaidAt:            p.PaidAt.UTC(),
		CreatedAt:         p.CreatedAt.UTC(),
		UpdatedAt:         p.UpdatedAt.UTC(),
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *paymentRepository) FindByProviderID(ctx context.Context, providerPaymentID string) (*escrow.ProviderPayment, error) {
	var row model.ProviderPayment
	err := r.db.WithContext(ctx).Where("provider_payment_id = ?", providerPaymentID).Take(&row).Error
	found, err := findOne(err)
	if err != nil || !found {
		return nil, err
	}
	return mapPayment(&row), nil
}

func (r *paymentRepository) List(ctx context.Context, f repository.PaymentFilter) ([]*escrow.ProviderPayment, error) {
	q := r.db.WithContext(ctx).Order("paid_at, id")
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status IN ?", statuses)
	}
	if !f.PaidFrom.IsZero() {
		q = q.Where("paid_at >= ?", f.PaidFrom.UTC())
	}
	if !f.PaidTo.IsZero() {
		q = q.Where("paid_at < ?", f.PaidTo.UTC())
	}
	if !f.ReversedIn[0].IsZero() {
		q = q.Where("reversed_at IS NOT NULL AND reversed_at >= ? AND reversed_at < ?",
			f.ReversedIn[0].UTC(), f.ReversedIn[1].UTC())
	}
	var rows []model.ProviderPayment
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*escrow.ProviderPayment, 0, len(rows))
	for i := range rows {
		out = append(out, mapPayment(&rows[i]))
	}
	return out, nil
}

func (r *paymentRepository) MarkReversed(ctx context.Context, id string, status escrow.PaymentStatus, at time.Time) (bool, error) {
	at = at.UTC()
	res := r.db.WithContext(ctx).Model(&model.ProviderPayment{}).
		Where("id = ? AND status = ?", id, string(escrow.PaymentPaid)).
		Updates(model.ProviderPayment{Status: string(status), ReversedAt: &at, UpdatedAt: at})
	if res.Error != nil {
		return false, fmt.Errorf("reverse payment %s: %w", id, MapGormErrorToDomain(res.Error))
	}
	return res.RowsAffected == 1, nil
}

func mapPayment(row *model.ProviderPayment) *escrow.ProviderPayment {
	return &escrow.ProviderPayment{
		ID:                row.ID,
		ProviderPaymentID: row.ProviderPaymentID,
		TenantID:          row.TenantID,
		BuyerTenantID:     row.BuyerTenantID,
		OrderID:           row.OrderID,
		Amount:            row.Amount,
		Currency:          row.Currency,
		Status:            escrow.PaymentStatus(row.Status),
		PaidAt:            row.PaidAt,
		ReversedAt:        row.ReversedAt,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}
