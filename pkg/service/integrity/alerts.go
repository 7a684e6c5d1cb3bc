// Package integrity audits the ledger and payout state and heals rows that
// workers abandoned. The sentinel only raises alerts; nothing it finds is
// corrected automatically.
package integrity

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/eventbus"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/google/uuid"
)

// raiser records deduplicated alerts and announces the new ones.
type raiser struct {
	uow    repository.UnitOfWork
	bus    eventbus.Bus
	now    func() time.Time
	logger *slog.Logger
}

// raise inserts the alert unless (type, reference) is already known and
// reports whether it was new.
func (r *raiser) raise(
	ctx context.Context,
	typ ops.AlertType,
	severity ops.Severity,
	referenceID string,
	details map[string]any,
) (bool, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return false, err
	}
	a := &ops.Alert{
		ID:          uuid.NewString(),
		Type:        typ,
		Severity:    severity,
		ReferenceID: referenceID,
		Details:     string(raw),
		CreatedAt:   r.now(),
	}
	created, err := r.uow.Alerts().InsertIfAbsent(ctx, a)
	if err != nil || !created {
		return false, err
	}
	r.logger.Warn("integrity alert raised", "type", typ, "reference_id", referenceID)
	if r.bus != nil {
		if err := r.bus.Emit(ctx, events.IntegrityAlertRaised{
			AlertID:     a.ID,
			AlertType:   string(typ),
			Severity:    string(severity),
			ReferenceID: referenceID,
			Details:     a.Details,
			OccurredAt:  a.CreatedAt,
		}); err != nil {
			r.logger.Error("failed to emit integrity alert", "alert_id", a.ID, "error", err)
		}
	}
	return true, nil
}
