package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/settlement/infra/repository/model"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type alertRepository struct {
	db *gorm.DB
}

func (r *alertRepository) InsertIfAbsent(ctx context.Context, a *ops.Alert) (bool, error) {
	row := model.FinanceIntegrityAlert{
		ID:          a.ID,
		Type:        string(a.Type),
		Severity:    string(a.Severity),
		ReferenceID: a.ReferenceID,
		Details:     a.Details,
		CreatedAt:   a.CreatedAt,
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("insert alert %s/%s: %w", a.Type, a.ReferenceID, MapGormErrorToDomain(res.Error))
	}
	return res.RowsAffected == 1, nil
}

func (r *alertRepository) List(ctx context.Context, f repository.AlertFilter) ([]*ops.Alert, error) {
	q := alertQuery(r.db.WithContext(ctx), f).Order("created_at DESC, id")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []model.FinanceIntegrityAlert
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ops.Alert, 0, len(rows))
	for i := range rows {
		row := rows[i]
		out = append(out, &ops.Alert{
			ID:          row.ID,
			Type:        ops.AlertType(row.Type),
			Severity:    ops.Severity(row.Severity),
			ReferenceID: row.ReferenceID,
			Details:     row.Details,
			CreatedAt:   row.CreatedAt,
			ResolvedAt:  row.ResolvedAt,
		})
	}
	return out, nil
}

func (r *alertRepository) Count(ctx context.Context, f repository.AlertFilter) (int64, error) {
	var n int64
	err := alertQuery(r.db.WithContext(ctx).Model(&model.FinanceIntegrityAlert{}), f).Count(&n).Error
	return n, err
}

func (r *alertRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Model(&model.FinanceIntegrityAlert{}).
			Where("id = ? AND resolved_at IS NULL", id).
			Update("resolved_at", at).Error
	})
}

func alertQuery(q *gorm.DB, f repository.AlertFilter) *gorm.DB {
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", string(f.Severity))
	}
	if f.Unresolved {
		q = q.Where("resolved_at IS NULL")
	}
	if !f.CreatedFrom.IsZero() {
		q = q.Where("created_at >= ?", f.CreatedFrom)
	}
	if !f.CreatedTo.IsZero() {
		q = q.Where("created_at < ?", f.CreatedTo)
	}
	return q
}

type opsLogRepository struct {
	db *gorm.DB
}

func (r *opsLogRepository) Append(ctx context.Context, e *ops.LogEntry) error {
	payload, err := ops.EncodePayload(e.Payload)
	if err != nil {
		return err
	}
	row := model.FinanceOpsLog{
		ID:         e.ID,
		TenantID:   e.TenantID,
		Actor:      e.Actor,
		Action:     string(e.Action),
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Severity:   string(e.Severity),
		Payload:    string(payload),
		CreatedAt:  e.CreatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *opsLogRepository) List(ctx context.Context, f repository.OpsLogFilter) ([]*ops.LogEntry, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC, id")
	if f.TenantID != "" {
		q = q.Where("tenant_id = ?", f.TenantID)
	}
	if f.Action != "" {
		q = q.Where("action = ?", string(f.Action))
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", string(f.Severity))
	}
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var rows []model.FinanceOpsLog
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*ops.LogEntry, 0, len(rows))
	for i := range rows {
		row := rows[i]
		out = append(out, &ops.LogEntry{
			ID:         row.ID,
			TenantID:   row.TenantID,
			Actor:      row.Actor,
			Action:     ops.Action(row.Action),
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			Severity:   ops.Severity(row.Severity),
			Payload:    ops.DecodePayload([]byte(row.Payload)),
			CreatedAt:  row.CreatedAt,
		})
	}
	return out, nil
}
