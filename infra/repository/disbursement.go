package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amirasaad/settlement/infra/repository/model"
	"github.com/amirasaad/settlement/pkg/domain/ledger"
	"github.com/amirasaad/settlement/pkg/domain/payout"
	"github.com/amirasaad/settlement/pkg/repository"
	"gorm.io/gorm"
)

type providerPayoutRepository struct {
	db *gorm.DB
}

func (r *providerPayoutRepository) Create(ctx context.Context, p *payout.ProviderPayout) error {
	row := model.ProviderPayout{
		ID:                p.ID,
		ProviderPayoutID:  p.ProviderPayoutID,
		IdempotencyKey:    p.IdempotencyKey,
		ShipmentID:        p.ShipmentID,
		SellerTenantID:    p.SellerTenantID,
		GrossAmount:       p.GrossAmount,
		CommissionAmount:  p.CommissionAmount,
		NetAmount:         p.NetAmount,
		Currency:          p.Currency,
		Status:            string(p.Status),
		ExternalReference: p.ExternalReference,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *providerPayoutRepository) GetByProviderID(ctx context.Context, providerPayoutID string) (*payout.ProviderPayout, error) {
	var row model.ProviderPayout
	err := r.db.WithContext(ctx).Where("provider_payout_id = ?", providerPayoutID).Take(&row).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapProviderPayout(&row), nil
}

func (r *providerPayoutRepository) List(ctx context.Context, f repository.PayoutFilter) ([]*payout.ProviderPayout, error) {
	q := r.db.WithContext(ctx).Order("updated_at, id")
	if f.SellerTenantID != "" {
		q = q.Where("seller_tenant_id = ?", f.SellerTenantID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where("status IN ?", statuses)
	}
	if !f.CreatedFrom.IsZero() {
		q = q.Where("created_at >= ?", f.CreatedFrom)
	}
	if !f.CreatedTo.IsZero() {
		q = q.Where("created_at < ?", f.CreatedTo)
	}
	if !f.UpdatedBefore.IsZero() {
		q = q.Where("updated_at < ?", f.UpdatedBefore)
	}
	if !f.SucceededIn[0].IsZero() {
		q = q.Where("succeeded_at >= ? AND succeeded_at < ?", f.SucceededIn[0], f.SucceededIn[1])
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []model.ProviderPayout
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return mapProviderPayouts(rows), nil
}

func (r *providerPayoutRepository) ListQueuedWithoutOutbox(ctx context.Context, limit int) ([]*payout.ProviderPayout, error) {
	q := r.db.WithContext(ctx).
		Where("status = ?", string(payout.ProviderQueued)).
		Where("NOT EXISTS (?)", r.db.Model(&model.PayoutOutbox{}).
			Select("1").
			Where("payout_outbox.provider_payout_id = provider_payouts.provider_payout_id")).
		Order("created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.ProviderPayout
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return mapProviderPayouts(rows), nil
}

func (r *providerPayoutRepository) ListSucceededWithoutFinalize(ctx context.Context, limit int) ([]*payout.ProviderPayout, error) {
	finalized := r.db.Model(&model.LedgerEntry{}).
		Select("1").
		Joins("JOIN ledger_groups ON ledger_groups.id = ledger_entries.group_id").
		Where("ledger_groups.type = ?", string(ledger.GroupPayoutFinalize)).
		Where("ledger_entries.ref_type = ?", "provider_payout").
		Where("ledger_entries.reference_id = provider_payouts.provider_payout_id")
	q := r.db.WithContext(ctx).
		Where("status = ?", string(payout.ProviderSucceeded)).
		Where("NOT EXISTS (?)", finalized).
		Order("succeeded_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.ProviderPayout
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return mapProviderPayouts(rows), nil
}

func mapProviderPayouts(rows []model.ProviderPayout) []*payout.ProviderPayout {
	out := make([]*payout.ProviderPayout, 0, len(rows))
	for i := range rows {
		out = append(out, mapProviderPayout(&rows[i]))
	}
	return out
}

func mapProviderPayout(row *model.ProviderPayout) *payout.ProviderPayout {
	return &payout.ProviderPayout{
		ID:                row.ID,
		ProviderPayoutID:  row.ProviderPayoutID,
		IdempotencyKey:    row.IdempotencyKey,
		ShipmentID:        row.ShipmentID,
		SellerTenantID:    row.SellerTenantID,
		GrossAmount:       row.GrossAmount,
		CommissionAmount:  row.CommissionAmount,
		NetAmount:         row.NetAmount,
		Currency:          row.Currency,
		Status:            payout.ProviderStatus(row.Status),
		ExternalReference: row.ExternalReference,
		FailureReason:     row.FailureReason,
		SentAt:            row.SentAt,
		SucceededAt:       row.SucceededAt,
		FailedAt:          row.FailedAt,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}

type outboxRepository struct {
	db *gorm.DB
}

func (r *outboxRepository) Create(ctx context.Context, o *payout.Outbox) error {
	payload, err := json.Marshal(o.Payload)
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}
	row := model.PayoutOutbox{
		ID:               o.ID,
		IdempotencyKey:   o.IdempotencyKey,
		ProviderPayoutID: o.ProviderPayoutID,
		Payload:          string(payload),
		Status:           string(o.Status),
		AttemptCount:     o.AttemptCount,
		NextRetryAt:      o.NextRetryAt,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *outboxRepository) Get(ctx context.Context, id string) (*payout.Outbox, error) {
	var row model.PayoutOutbox
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapOutbox(&row)
}

func (r *outboxRepository) FindByProviderPayoutID(ctx context.Context, providerPayoutID string) (*payout.Outbox, error) {
	var row model.PayoutOutbox
	err := r.db.WithContext(ctx).Where("provider_payout_id = ?", providerPayoutID).Take(&row).Error
	found, err := findOne(err)
	if err != nil || !found {
		return nil, err
	}
	return mapOutbox(&row)
}

func (r *outboxRepository) ListDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*payout.Outbox, error) {
	q := r.db.WithContext(ctx).
		Where("status IN ?", []string{string(payout.OutboxPending), string(payout.OutboxFailed)}).
		Where("attempt_count < ?", maxAttempts).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("created_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.find(q)
}

func (r *outboxRepository) ListStaleSending(ctx context.Context, before time.Time, limit int) ([]*payout.Outbox, error) {
	q := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", string(payout.OutboxSending), before).
		Order("updated_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.find(q)
}

func (r *outboxRepository) find(q *gorm.DB) ([]*payout.Outbox, error) {
	var rows []model.PayoutOutbox
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*payout.Outbox, 0, len(rows))
	for i := range rows {
		o, err := mapOutbox(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func mapOutbox(row *model.PayoutOutbox) (*payout.Outbox, error) {
	o := &payout.Outbox{
		ID:               row.ID,
		IdempotencyKey:   row.IdempotencyKey,
		ProviderPayoutID: row.ProviderPayoutID,
		Status:           payout.OutboxStatus(row.Status),
		AttemptCount:     row.AttemptCount,
		NextRetryAt:      row.NextRetryAt,
		LastError:        row.LastError,
		SentAt:           row.SentAt,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(row.Payload), &o.Payload); err != nil {
		return nil, fmt.Errorf("decode outbox %s payload: %w", row.ID, err)
	}
	return o, nil
}
