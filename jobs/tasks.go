package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/paintdesk/paintdesk/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditRecord delivers an audit event to the sink.
	TaskAuditRecord = "audit:record"
	// TaskOverdueScan finds sent invoices past due and emits reminder facts.
	TaskOverdueScan = "billing:overdue_scan"
	// TaskIdempotencyCleanup prunes stale idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// AuditPayload carries one audit event across the queue.
type AuditPayload struct {
	Actor    string    `json:"actor,omitempty"`
	Entity   string    `json:"entity"`
	EntityID string    `json:"entity_id"`
	Field    string    `json:"field"`
	OldValue string    `json:"old_value,omitempty"`
	NewValue string    `json:"new_value,omitempty"`
	Note     string    `json:"note,omitempty"`
	At       time.Time `json:"at"`
}

// NewAuditRecordTask constructs an Asynq task for one audit event.
func NewAuditRecordTask(payload AuditPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRecord, data), nil
}

// NewOverdueScanTask constructs the periodic overdue scan task.
func NewOverdueScanTask() *asynq.Task {
	return asynq.NewTask(TaskOverdueScan, nil)
}

// NewIdempotencyCleanupTask constructs the key-pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// Enqueuer ships audit events through the queue instead of writing them
// inline, so a slow sink never stalls a billing transaction. It satisfies
// shared.AuditRecorder.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer constructs an Enqueuer over redis.
func NewEnqueuer(redisOpts asynq.RedisClientOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(redisOpts)}
}

// Record implements shared.AuditRecorder.
func (e *Enqueuer) Record(ctx context.Context, event shared.AuditEvent) error {
	task, err := NewAuditRecordTask(AuditPayload{
		Actor:    event.Actor,
		Entity:   event.Entity,
		EntityID: event.EntityID,
		Field:    event.Field,
		OldValue: event.OldValue,
		NewValue: event.NewValue,
		Note:     event.Note,
		At:       event.At,
	})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases the underlying client.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
