package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OverdueScanJob lists sent invoices past their due date and logs reminder
// facts for the notification layer. Invoice status itself is never flipped
// here; overdue is derived on read.
type OverdueScanJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewOverdueScanJob constructs the handler.
func NewOverdueScanJob(pool *pgxpool.Pool, logger *slog.Logger) *OverdueScanJob {
	return &OverdueScanJob{pool: pool, logger: logger}
}

// Handle processes TaskOverdueScan tasks.
func (j *OverdueScanJob) Handle(ctx context.Context, _ *asynq.Task) error {
	rows, err := j.pool.Query(ctx, `
		SELECT id, invoice_number, client_id, due_date, total_amount - paid_amount
		FROM invoices
		WHERE status = 'sent' AND due_date IS NOT NULL AND due_date < $1
		ORDER BY due_date`, time.Now())
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id          int64
			number      *string
			clientID    int64
			due         time.Time
			outstanding int64
		)
		if err := rows.Scan(&id, &number, &clientID, &due, &outstanding); err != nil {
			return err
		}
		num := ""
		if number != nil {
			num = *number
		}
		j.logger.Info("invoice overdue",
			slog.Int64("invoice_id", id),
			slog.String("invoice_number", num),
			slog.Int64("client_id", clientID),
			slog.Time("due_date", due),
			slog.Int64("outstanding_cents", outstanding))
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	j.logger.Info("overdue scan complete", slog.Int("count", count))
	return nil
}
