// Package opslog writes and reads the finance ops/audit trail.
package opslog

import (
	"context"
	"log/slog"
	"time"

	"github.com/amirasaad/settlement/pkg/domain/events"
	"github.com/amirasaad/settlement/pkg/domain/ops"
	"github.com/amirasaad/settlement/pkg/eventbus"
	"github.com/amirasaad/settlement/pkg/repository"
	"github.com/google/uuid"
)

// Recorder appends ops log entries.
type Recorder struct {
	uow    repository.UnitOfWork
	now    func() time.Time
	logger *slog.Logger
}

func New(uow repository.UnitOfWork, now func() time.Time, logger *slog.Logger) *Recorder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{uow: uow, now: now, logger: logger.With("service", "opslog")}
}

// Append writes e through uow so it commits with the caller's work.
func (r *Recorder) Append(ctx context.Context, uow repository.UnitOfWork, e ops.LogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	if e.Actor == "" {
		e.Actor = ops.SystemActor
	}
	if e.Severity == "" {
		e.Severity = ops.SeverityInfo
	}
	return uow.OpsLogs().Append(ctx, &e)
}

// AppendDetached writes e in its own transaction, for entries that must
// survive the caller's rollback.
func (r *Recorder) AppendDetached(ctx context.Context, e ops.LogEntry) error {
	return r.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		return r.Append(ctx, uow, e)
	})
}

// List returns entries newest first.
func (r *Recorder) List(ctx context.Context, f repository.OpsLogFilter) ([]*ops.LogEntry, error) {
	return r.uow.OpsLogs().List(ctx, f)
}

// Register subscribes the recorder to the events it persists.
func (r *Recorder) Register(bus eventbus.Bus) {
	bus.Register(events.EventTypePolicyViolated, r.onPolicyViolated)
}

func (r *Recorder) onPolicyViolated(ctx context.Context, e events.Event) error {
	v, ok := events.As[events.PolicyViolated](e)
	if !ok {
		r.logger.Warn("unexpected event", "event_type", e.Type())
		return nil
	}
	entry := ops.LogEntry{
		TenantID:   v.TenantID,
		Actor:      v.Actor,
		Action:     ops.ActionPolicyViolation,
		EntityType: v.EntityType,
		EntityID:   v.EntityID,
		Severity:   ops.SeverityWarning,
		Payload:    ops.PolicyViolation{Code: v.Code, Message: v.Message},
		CreatedAt:  v.OccurredAt,
	}
	if err := r.AppendDetached(ctx, entry); err != nil {
		r.logger.Error("failed to persist policy violation", "tenant_id", v.TenantID, "code", v.Code, "error", err)
		return err
	}
	return nil
}
