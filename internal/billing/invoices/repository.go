package invoices

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
	"github.com/paintdesk/paintdesk/internal/billing/sequence"
	"github.com/paintdesk/paintdesk/internal/platform/db"
	"github.com/paintdesk/paintdesk/internal/shared"
)

// EstimateSnapshot is the slice of an estimate row the conversion pipeline
// needs. The pipeline reads it and writes the invoice in one transaction;
// the two components only ever meet through the store.
type EstimateSnapshot struct {
	ID            int64
	ClientID      int64
	Title         string
	Description   *string
	Status        string
	TotalAmount   money.Cents
	TermsAndNotes *string
	Areas         []InvoiceArea
}

// Repository defines data access for invoices, including the guarded
// estimate-side writes that conversion and voiding perform in the same
// transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	AllocateNumber(ctx context.Context) (string, error)
	Get(ctx context.Context, id int64) (*Invoice, error)
	List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error)
	Create(ctx context.Context, inv Invoice) (int64, error)
	InsertArea(ctx context.Context, area InvoiceArea) (int64, error)
	DeleteAreas(ctx context.Context, invoiceID int64) error
	UpdateDraft(ctx context.Context, id int64, updates map[string]interface{}) error
	AssignNumber(ctx context.Context, id int64, number string) error
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	Void(ctx context.Context, id int64, from Status, reason string, at time.Time) error
	LockEstimateForConversion(ctx context.Context, estimateID int64) (*EstimateSnapshot, error)
	MarkEstimateConverted(ctx context.Context, estimateID int64) error
	RevertEstimateToApproved(ctx context.Context, estimateID int64) error
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

func (r *repository) AllocateNumber(ctx context.Context) (string, error) {
	alloc, err := sequence.NextTx(ctx, r.db, sequence.NameInvoice)
	if err != nil {
		return "", err
	}
	return alloc.Format(), nil
}

const invoiceColumns = `
	id, invoice_number, estimate_id, client_id, title, description, status,
	total_amount, paid_amount, due_date, payment_terms,
	voided_at, void_reason, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	row := r.db.QueryRow(ctx, `SELECT`+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	areas, err := r.listAreas(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Areas = areas
	return inv, nil
}

func (r *repository) List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.ClientID != nil {
		where += fmt.Sprintf(" AND client_id = $%d", argPos)
		args = append(args, *req.ClientID)
		argPos++
	}
	if req.Status != nil && *req.Status != StatusOverdue {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(*req.Status))
		argPos++
	}
	if req.Status != nil && *req.Status == StatusOverdue {
		// Overdue is derived: sent and past due.
		where += fmt.Sprintf(" AND status = 'sent' AND due_date < $%d", argPos)
		args = append(args, time.Now())
		argPos++
	}
	if req.DueFrom != nil {
		where += fmt.Sprintf(" AND due_date >= $%d", argPos)
		args = append(args, *req.DueFrom)
		argPos++
	}
	if req.DueTo != nil {
		where += fmt.Sprintf(" AND due_date <= $%d", argPos)
		args = append(args, *req.DueTo)
		argPos++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM invoices "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT%s FROM invoices %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		invoiceColumns, where, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *inv)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, inv Invoice) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoices (
			invoice_number, estimate_id, client_id, title, description, status,
			total_amount, paid_amount, due_date, payment_terms, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING id`,
		inv.InvoiceNumber, inv.EstimateID, inv.ClientID, inv.Title, textOrNil(inv.Description), string(inv.Status),
		int64(inv.TotalAmount), int64(inv.PaidAmount), inv.DueDate, textOrNil(inv.PaymentTerms),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("create invoice: %w", shared.ErrConflict)
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) InsertArea(ctx context.Context, area InvoiceArea) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO invoice_areas (invoice_id, name, description, labor_cost, material_cost, area_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		area.InvoiceID, area.Name, textOrNil(area.Description),
		int64(area.LaborCost), int64(area.MaterialCost), area.AreaOrder,
	).Scan(&id)
	return id, err
}

func (r *repository) DeleteAreas(ctx context.Context, invoiceID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM invoice_areas WHERE invoice_id = $1`, invoiceID)
	return err
}

func (r *repository) UpdateDraft(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE invoices SET updated_at = NOW()"
	var args []interface{}
	argPos := 1
	for _, col := range []string{"title", "description", "total_amount", "due_date", "payment_terms"} {
		if v, ok := updates[col]; ok {
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}
	query += fmt.Sprintf(" WHERE id = $%d AND status = 'draft'", argPos)
	args = append(args, id)

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMiss(ctx, id, StatusDraft)
	}
	return nil
}

// AssignNumber sets the invoice number exactly once: the guard refuses to
// overwrite a number that is already there, so a re-entrant draft->sent
// call cannot burn a second sequence value against the row.
func (r *repository) AssignNumber(ctx context.Context, id int64, number string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE invoices SET invoice_number = $1, updated_at = NOW() WHERE id = $2 AND invoice_number IS NULL`,
		number, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("invoice number %s taken: %w", number, shared.ErrConflict)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invoice %d already numbered: %w", id, shared.ErrConflict)
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE invoices SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMiss(ctx, id, from)
	}
	return nil
}

func (r *repository) Void(ctx context.Context, id int64, from Status, reason string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices
		SET status = 'void', void_reason = $1, voided_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		reason, at, id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMiss(ctx, id, from)
	}
	return nil
}

// LockEstimateForConversion reads the current-version estimate row under
// FOR UPDATE so a racing conversion or revision serializes behind it.
func (r *repository) LockEstimateForConversion(ctx context.Context, estimateID int64) (*EstimateSnapshot, error) {
	var snap EstimateSnapshot
	var desc, terms pgtype.Text
	var total int64
	err := r.db.QueryRow(ctx, `
		SELECT id, client_id, title, description, status, total_amount, terms_and_notes
		FROM estimates
		WHERE id = $1 AND is_current_version
		FOR UPDATE`, estimateID).
		Scan(&snap.ID, &snap.ClientID, &snap.Title, &desc, &snap.Status, &total, &terms)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap.TotalAmount = money.Cents(total)
	if desc.Valid {
		snap.Description = &desc.String
	}
	if terms.Valid {
		snap.TermsAndNotes = &terms.String
	}

	rows, err := r.db.Query(ctx, `
		SELECT name, description, labor_cost, material_cost, area_order
		FROM estimate_areas
		WHERE estimate_id = $1
		ORDER BY area_order, id`, estimateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a InvoiceArea
		var areaDesc pgtype.Text
		var labor, material int64
		if err := rows.Scan(&a.Name, &areaDesc, &labor, &material, &a.AreaOrder); err != nil {
			return nil, err
		}
		if areaDesc.Valid {
			a.Description = &areaDesc.String
		}
		a.LaborCost = money.Cents(labor)
		a.MaterialCost = money.Cents(material)
		snap.Areas = append(snap.Areas, a)
	}
	return &snap, rows.Err()
}

func (r *repository) MarkEstimateConverted(ctx context.Context, estimateID int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE estimates SET status = 'converted', updated_at = NOW() WHERE id = $1 AND status = 'approved'`,
		estimateID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("estimate %d no longer approved: %w", estimateID, shared.ErrInvalidState)
	}
	return nil
}

func (r *repository) RevertEstimateToApproved(ctx context.Context, estimateID int64) error {
	// Nothing to revert if the estimate moved on in the meantime; the void
	// itself still stands.
	_, err := r.db.Exec(ctx,
		`UPDATE estimates SET status = 'approved', updated_at = NOW() WHERE id = $1 AND status = 'converted'`,
		estimateID)
	return err
}

func (r *repository) listAreas(ctx context.Context, invoiceID int64) ([]InvoiceArea, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, name, description, labor_cost, material_cost, area_order
		FROM invoice_areas
		WHERE invoice_id = $1
		ORDER BY area_order, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InvoiceArea
	for rows.Next() {
		var a InvoiceArea
		var desc pgtype.Text
		var labor, material int64
		if err := rows.Scan(&a.ID, &a.InvoiceID, &a.Name, &desc, &labor, &material, &a.AreaOrder); err != nil {
			return nil, err
		}
		if desc.Valid {
			a.Description = &desc.String
		}
		a.LaborCost = money.Cents(labor)
		a.MaterialCost = money.Cents(material)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) classifyMiss(ctx context.Context, id int64, expected Status) error {
	var current string
	err := r.db.QueryRow(ctx, `SELECT status FROM invoices WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("invoice %d is %s, expected %s: %w", id, current, expected, shared.ErrInvalidTransition)
}

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var status string
	var number, desc, terms, voidReason pgtype.Text
	var estimateID pgtype.Int8
	var total, paid int64
	var dueDate, voidedAt pgtype.Timestamptz

	err := row.Scan(
		&inv.ID, &number, &estimateID, &inv.ClientID, &inv.Title, &desc, &status,
		&total, &paid, &dueDate, &terms,
		&voidedAt, &voidReason, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.Status = Status(status)
	inv.TotalAmount = money.Cents(total)
	inv.PaidAmount = money.Cents(paid)
	if number.Valid {
		inv.InvoiceNumber = &number.String
	}
	if estimateID.Valid {
		inv.EstimateID = &estimateID.Int64
	}
	if desc.Valid {
		inv.Description = &desc.String
	}
	if terms.Valid {
		inv.PaymentTerms = &terms.String
	}
	if dueDate.Valid {
		inv.DueDate = &dueDate.Time
	}
	if voidedAt.Valid {
		inv.VoidedAt = &voidedAt.Time
	}
	if voidReason.Valid {
		inv.VoidReason = &voidReason.String
	}
	return &inv, nil
}

func textOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
