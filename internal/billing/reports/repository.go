package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paintdesk/paintdesk/internal/billing/money"
)

// Repository reads aggregate report data. All queries are read-only.
type Repository interface {
	ListOutstanding(ctx context.Context) ([]OutstandingInvoice, error)
	CountByStatus(ctx context.Context, now time.Time) (StatusCounts, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListOutstanding(ctx context.Context) ([]OutstandingInvoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.invoice_number, i.client_id, c.name,
		       i.total_amount - i.paid_amount, i.due_date
		FROM invoices i
		JOIN clients c ON c.id = i.client_id
		WHERE i.status = 'sent' AND i.total_amount > i.paid_amount
		ORDER BY i.due_date NULLS LAST, i.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutstandingInvoice
	for rows.Next() {
		var inv OutstandingInvoice
		var number pgtype.Text
		var due pgtype.Timestamptz
		var outstanding int64
		if err := rows.Scan(&inv.ID, &number, &inv.ClientID, &inv.ClientName, &outstanding, &due); err != nil {
			return nil, err
		}
		if number.Valid {
			inv.InvoiceNumber = &number.String
		}
		if due.Valid {
			inv.DueDate = &due.Time
		}
		inv.Outstanding = money.Cents(outstanding)
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *repository) CountByStatus(ctx context.Context, now time.Time) (StatusCounts, error) {
	var counts StatusCounts
	rows, err := r.pool.Query(ctx, `
		SELECT CASE
		         WHEN status = 'sent' AND due_date IS NOT NULL AND due_date < $1 THEN 'overdue'
		         ELSE status
		       END AS effective, COUNT(*)
		FROM invoices
		GROUP BY effective`, now)
	if err != nil {
		return counts, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, err
		}
		switch status {
		case "draft":
			counts.Draft = n
		case "sent":
			counts.Sent = n
		case "overdue":
			counts.Overdue = n
		case "paid":
			counts.Paid = n
		case "void":
			counts.Void = n
		}
	}
	return counts, rows.Err()
}
