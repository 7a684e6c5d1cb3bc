package repository

import (
	"context"

	"github.com/amirasaad/settlement/infra/repository/model"
	"github.com/amirasaad/settlement/pkg/domain/webhook"
	"gorm.io/gorm"
)

type webhookEventRepository struct {
	db *gorm.DB
}

func (r *webhookEventRepository) Insert(ctx context.Context, e *webhook.Event) error {
	row := model.ProviderWebhookEvent{
		ID:              e.ID,
		ExternalEventID: e.ExternalEventID,
		EventType:       string(e.EventType),
		Payload:         string(e.Payload),
		Timestamp:       e.Timestamp,
		Status:          string(e.Status),
		ReceivedAt:      e.ReceivedAt,
		UpdatedAt:       e.ReceivedAt,
	}
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(&row).Error
	})
}

func (r *webhookEventRepository) Get(ctx context.Context, id string) (*webhook.Event, error) {
	var row model.ProviderWebhookEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	return mapWebhookEvent(&row), nil
}

func (r *webhookEventRepository) ListByStatus(ctx context.Context, status webhook.Status, limit int) ([]*webhook.Event, error) {
	q := r.db.WithContext(ctx).Where("status = ?", string(status)).Order("received_at, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.ProviderWebhookEvent
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*webhook.Event, 0, len(rows))
	for i := range rows {
		out = append(out, mapWebhookEvent(&rows[i]))
	}
	return out, nil
}

func mapWebhookEvent(row *model.ProviderWebhookEvent) *webhook.Event {
	return &webhook.Event{
		ID:              row.ID,
		ExternalEventID: row.ExternalEventID,
		EventType:       webhook.Kind(row.EventType),
		Payload:         []byte(row.Payload),
		Timestamp:       row.Timestamp,
		Status:          webhook.Status(row.Status),
		Outcome:         row.Outcome,
		ReceivedAt:      row.ReceivedAt,
		ProcessedAt:     row.ProcessedAt,
	}
}
