package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEvent is a fact emitted by the billing engine for the notification
// sink: which field changed on which entity, by whom, and when.
type AuditEvent struct {
	Actor    string
	Entity   string
	EntityID string
	Field    string
	OldValue string
	NewValue string
	Note     string
	At       time.Time
}

// AuditRecorder consumes audit events. The engine emits; delivery is the
// sink's concern.
type AuditRecorder interface {
	Record(ctx context.Context, event AuditEvent) error
}

// AuditLogger persists audit events into audit_events.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the event.
func (l *AuditLogger) Record(ctx context.Context, event AuditEvent) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if event.Entity == "" || event.EntityID == "" || event.Field == "" {
		return errors.New("audit event requires entity/entity_id/field")
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	meta, err := json.Marshal(map[string]string{"note": event.Note})
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO audit_events (actor, entity, entity_id, field, old_value, new_value, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.Actor, event.Entity, event.EntityID, event.Field, event.OldValue, event.NewValue, meta, event.At)
	return err
}

// NopAuditRecorder discards events. Used when no sink is configured.
type NopAuditRecorder struct{}

// Record implements AuditRecorder.
func (NopAuditRecorder) Record(context.Context, AuditEvent) error { return nil }
