package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paintdesk/paintdesk/internal/billing/money"
	"github.com/paintdesk/paintdesk/internal/platform/db"
	"github.com/paintdesk/paintdesk/internal/shared"
)

// InvoiceBalance is the invoice-side view the ledger needs: current status
// and amounts, read under a row lock so concurrent payments serialize.
type InvoiceBalance struct {
	ID          int64
	Status      string
	TotalAmount money.Cents
	PaidAmount  money.Cents
}

// Repository defines data access for the payment ledger, including the
// invoice-side balance writes it is the sole owner of.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Payment, error)
	ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error)
	Insert(ctx context.Context, p Payment) (int64, error)
	Update(ctx context.Context, p Payment) error
	Delete(ctx context.Context, id int64) error
	LockInvoice(ctx context.Context, invoiceID int64) (*InvoiceBalance, error)
	SumForInvoice(ctx context.Context, invoiceID int64) (money.Cents, error)
	SetInvoiceBalance(ctx context.Context, invoiceID int64, paid money.Cents, status string) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const paymentColumns = `
	id, invoice_id, amount, payment_method, payment_date,
	reference_number, notes, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Payment, error) {
	row := r.db.QueryRow(ctx, `SELECT`+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *repository) ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT`+paymentColumns+` FROM payments WHERE invoice_id = $1 ORDER BY payment_date, id`,
		invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *repository) Insert(ctx context.Context, p Payment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO payments (invoice_id, amount, payment_method, payment_date, reference_number, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id`,
		p.InvoiceID, int64(p.Amount), string(p.Method), p.PaymentDate,
		textOrNil(p.ReferenceNumber), textOrNil(p.Notes),
	).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, p Payment) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET amount = $1, payment_method = $2, payment_date = $3,
		    reference_number = $4, notes = $5, updated_at = NOW()
		WHERE id = $6`,
		int64(p.Amount), string(p.Method), p.PaymentDate,
		textOrNil(p.ReferenceNumber), textOrNil(p.Notes), p.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// LockInvoice reads the invoice balance under FOR UPDATE. Two payments
// racing against the same invoice, or a void racing a payment, queue here.
func (r *repository) LockInvoice(ctx context.Context, invoiceID int64) (*InvoiceBalance, error) {
	var bal InvoiceBalance
	var total, paid int64
	err := r.db.QueryRow(ctx,
		`SELECT id, status, total_amount, paid_amount FROM invoices WHERE id = $1 FOR UPDATE`,
		invoiceID).Scan(&bal.ID, &bal.Status, &total, &paid)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	bal.TotalAmount = money.Cents(total)
	bal.PaidAmount = money.Cents(paid)
	return &bal, nil
}

// SumForInvoice recomputes the paid total from the surviving rows. The
// ledger never does incremental arithmetic on paid_amount.
func (r *repository) SumForInvoice(ctx context.Context, invoiceID int64) (money.Cents, error) {
	var sum int64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1`,
		invoiceID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum payments for invoice %d: %w", invoiceID, err)
	}
	return money.Cents(sum), nil
}

func (r *repository) SetInvoiceBalance(ctx context.Context, invoiceID int64, paid money.Cents, status string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE invoices SET paid_amount = $1, status = $2, updated_at = NOW() WHERE id = $3`,
		int64(paid), status, invoiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var method string
	var amount int64
	var ref, notes pgtype.Text
	var date time.Time

	err := row.Scan(&p.ID, &p.InvoiceID, &amount, &method, &date, &ref, &notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Amount = money.Cents(amount)
	p.Method = Method(method)
	p.PaymentDate = date
	if ref.Valid {
		p.ReferenceNumber = &ref.String
	}
	if notes.Valid {
		p.Notes = &notes.String
	}
	return &p, nil
}

func textOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
