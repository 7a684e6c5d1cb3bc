package repository

import (
	"context"
	"time"

	"github.com/amirasaad/settlement/infra/repository/model"
	"github.com/amirasaad/settlement/pkg/domain/idempotency"
	"gorm.io/gorm"
)

type idempotencyRepository struct {
	db *gorm.DB
}

func (r *idempotencyRepository) FindByKey(ctx context.Context, key string) (*idempotency.Record, error) {
	var row model.IdempotencyRecord
	found, err := findOne(r.db.WithContext(ctx).Where(map[string]any{"key": key}).Take(&row).Error)
	if err != nil || !found {
		return nil, err
	}
	rec := &idempotency.Record{
		ID:          row.ID,
		Key:         row.Key,
		Scope:       row.Scope,
		Actor:       row.Actor,
		Status:      idempotency.Status(row.Status),
		CreatedAt:   row.CreatedAt,
		CompletedAt: row.CompletedAt,
	}
	if row.Result != "" {
		rec.Result = []byte(row.Result)
	}
	return rec, nil
}

func (r *idempotencyRepository) Insert(ctx context.Context, rec *idempotency.Record) error {
	row := model.IdempotencyRecord{
		ID:        rec.ID,
		Key:       rec.Key,
		Scope:     rec.Scope,
		Actor:     rec.Actor,
		Status:    string(rec.Status),
		CreatedAt: rec.CreatedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, result []byte, at time.Time) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Model(&model.IdempotencyRecord{}).
			Where(map[string]any{"key": key}).
			Updates(map[string]any{
				"status":       string(idempotency.StatusCompleted),
				"result":       string(result),
				"completed_at": at,
			}).Error
	})
}
