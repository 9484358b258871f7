package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/paintdesk/paintdesk/internal/shared"
)

// AuditRecordJob persists queued audit events via the audit log.
type AuditRecordJob struct {
	sink   shared.AuditRecorder
	logger *slog.Logger
}

// NewAuditRecordJob constructs the handler.
func NewAuditRecordJob(sink shared.AuditRecorder, logger *slog.Logger) *AuditRecordJob {
	return &AuditRecordJob{sink: sink, logger: logger}
}

// Handle processes TaskAuditRecord tasks.
func (j *AuditRecordJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload AuditPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	err := j.sink.Record(ctx, shared.AuditEvent{
		Actor:    payload.Actor,
		Entity:   payload.Entity,
		EntityID: payload.EntityID,
		Field:    payload.Field,
		OldValue: payload.OldValue,
		NewValue: payload.NewValue,
		Note:     payload.Note,
		At:       payload.At,
	})
	if err != nil {
		j.logger.Error("persist audit event",
			slog.String("entity", payload.Entity),
			slog.String("entity_id", payload.EntityID),
			slog.Any("error", err))
		return err
	}
	return nil
}
