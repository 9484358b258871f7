package estimates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paintdesk/paintdesk/internal/billing/money"
	"github.com/paintdesk/paintdesk/internal/billing/sequence"
	"github.com/paintdesk/paintdesk/internal/platform/db"
	"github.com/paintdesk/paintdesk/internal/shared"
)

// Repository defines data access for the estimate version chain and the
// revision ledger.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	AllocateNumber(ctx context.Context) (string, error)
	Get(ctx context.Context, id int64) (*Estimate, error)
	List(ctx context.Context, req ListEstimatesRequest) ([]Estimate, int, error)
	Create(ctx context.Context, e Estimate) (int64, error)
	InsertArea(ctx context.Context, area ProjectArea) (int64, error)
	DeleteAreas(ctx context.Context, estimateID int64) error
	UpdateDraft(ctx context.Context, id int64, updates map[string]interface{}) error
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	Delete(ctx context.Context, id int64) error
	Supersede(ctx context.Context, oldID, newID int64) error
	InsertRevision(ctx context.Context, rev Revision) (int64, error)
	ListRevisions(ctx context.Context, groupID uuid.UUID) ([]Revision, error)
	History(ctx context.Context, groupID uuid.UUID) ([]Estimate, error)
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
	alloc, err := sequence.NextTx(ctx, r.db, sequence.NameEstimate)
	if err != nil {
		return "", err
	}
	return alloc.Format(), nil
}

const estimateColumns = `
	id, estimate_number, client_id, title, description, status,
	labor_cost, material_cost, markup_basis, total_amount,
	revision_number, version_group_id, is_current_version,
	parent_estimate_id, superseded_by, superseded_at,
	terms_and_notes, created_at, updated_at`

func (r *repository) Get(ctx context.Context, id int64) (*Estimate, error) {
	row := r.db.QueryRow(ctx, `SELECT`+estimateColumns+` FROM estimates WHERE id = $1`, id)
	e, err := scanEstimate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	areas, err := r.listAreas(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	e.Areas = areas
	return e, nil
}

func (r *repository) List(ctx context.Context, req ListEstimatesRequest) ([]Estimate, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.CurrentOnly {
		where += " AND is_current_version"
	}
	if req.ClientID != nil {
		where += fmt.Sprintf(" AND client_id = $%d", argPos)
		args = append(args, *req.ClientID)
		argPos++
	}
	if req.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(*req.Status))
		argPos++
	}
	if req.DateFrom != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argPos)
		args = append(args, *req.DateTo)
		argPos++
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM estimates "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf("SELECT%s FROM estimates %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		estimateColumns, where, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Estimate
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, e Estimate) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO estimates (
			estimate_number, client_id, title, description, status,
			labor_cost, material_cost, markup_basis, total_amount,
			revision_number, version_group_id, is_current_version,
			parent_estimate_id, terms_and_notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING id`,
		e.EstimateNumber, e.ClientID, e.Title, textOrNil(e.Description), string(e.Status),
		int64(e.LaborCost), int64(e.MaterialCost), e.MarkupBasis, int64(e.TotalAmount),
		e.RevisionNumber, e.VersionGroupID, e.IsCurrentVersion,
		e.ParentEstimateID, textOrNil(e.TermsAndNotes),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("estimate %s: %w", e.EstimateNumber, shared.ErrConflict)
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) InsertArea(ctx context.Context, area ProjectArea) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO estimate_areas (estimate_id, name, description, labor_cost, material_cost, area_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		area.EstimateID, area.Name, textOrNil(area.Description),
		int64(area.LaborCost), int64(area.MaterialCost), area.AreaOrder,
	).Scan(&id)
	return id, err
}

func (r *repository) DeleteAreas(ctx context.Context, estimateID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM estimate_areas WHERE estimate_id = $1`, estimateID)
	return err
}

func (r *repository) UpdateDraft(ctx context.Context, id int64, updates map[string]interface{}) error {
	query := "UPDATE estimates SET updated_at = NOW()"
	var args []interface{}
	argPos := 1
	for _, col := range []string{"title", "description", "terms_and_notes", "labor_cost", "material_cost", "markup_basis", "total_amount"} {
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

// UpdateStatus performs a guarded status write: the row must still hold the
// expected source status or the update affects zero rows and the operation
// fails, which is what serializes racing transitions.
func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE estimates SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMiss(ctx, id, from)
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM estimates WHERE id = $1 AND status = 'draft'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM estimates WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return shared.ErrNotFound
		}
		return fmt.Errorf("only draft estimates can be deleted: %w", shared.ErrConflict)
	}
	return nil
}

// Supersede flips the version-currency flag on the old row and links its
// successor. The is_current_version guard makes a racing second revision
// fail instead of silently forking the chain.
func (r *repository) Supersede(ctx context.Context, oldID, newID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE estimates
		SET is_current_version = FALSE, superseded_by = $1, superseded_at = NOW(), updated_at = NOW()
		WHERE id = $2 AND is_current_version`,
		newID, oldID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("estimate %d already superseded: %w", oldID, shared.ErrConflict)
	}
	return nil
}

func (r *repository) InsertRevision(ctx context.Context, rev Revision) (int64, error) {
	diffJSON, err := json.Marshal(rev.Diff)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.db.QueryRow(ctx, `
		INSERT INTO estimate_revisions (
			version_group_id, estimate_id, revision_number, revision_type,
			change_summary, approval_status,
			previous_labor_cost, previous_material_cost, previous_markup_basis, previous_total_amount,
			diff, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		RETURNING id`,
		rev.VersionGroupID, rev.EstimateID, rev.RevisionNumber, string(rev.RevisionType),
		rev.ChangeSummary, string(rev.ApprovalStatus),
		int64(rev.PreviousLabor), int64(rev.PreviousMaterial), rev.PreviousMarkup, int64(rev.PreviousTotal),
		diffJSON,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("revision %d: %w", rev.RevisionNumber, shared.ErrConflict)
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) ListRevisions(ctx context.Context, groupID uuid.UUID) ([]Revision, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, version_group_id, estimate_id, revision_number, revision_type,
		       change_summary, approval_status,
		       previous_labor_cost, previous_material_cost, previous_markup_basis, previous_total_amount,
		       diff, created_at
		FROM estimate_revisions
		WHERE version_group_id = $1
		ORDER BY revision_number`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		var rev Revision
		var revType, approval string
		var labor, material, total int64
		var diffJSON []byte
		if err := rows.Scan(
			&rev.ID, &rev.VersionGroupID, &rev.EstimateID, &rev.RevisionNumber, &revType,
			&rev.ChangeSummary, &approval,
			&labor, &material, &rev.PreviousMarkup, &total,
			&diffJSON, &rev.CreatedAt,
		); err != nil {
			return nil, err
		}
		rev.RevisionType = RevisionType(revType)
		rev.ApprovalStatus = ApprovalStatus(approval)
		rev.PreviousLabor = cents(labor)
		rev.PreviousMaterial = cents(material)
		rev.PreviousTotal = cents(total)
		if len(diffJSON) > 0 {
			if err := json.Unmarshal(diffJSON, &rev.Diff); err != nil {
				return nil, err
			}
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

func (r *repository) History(ctx context.Context, groupID uuid.UUID) ([]Estimate, error) {
	rows, err := r.db.Query(ctx,
		`SELECT`+estimateColumns+` FROM estimates WHERE version_group_id = $1 ORDER BY revision_number`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Estimate
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *repository) listAreas(ctx context.Context, estimateID int64) ([]ProjectArea, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, estimate_id, name, description, labor_cost, material_cost, area_order
		FROM estimate_areas
		WHERE estimate_id = $1
		ORDER BY area_order, id`, estimateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProjectArea
	for rows.Next() {
		var a ProjectArea
		var desc pgtype.Text
		var labor, material int64
		if err := rows.Scan(&a.ID, &a.EstimateID, &a.Name, &desc, &labor, &material, &a.AreaOrder); err != nil {
			return nil, err
		}
		if desc.Valid {
			a.Description = &desc.String
		}
		a.LaborCost = cents(labor)
		a.MaterialCost = cents(material)
		out = append(out, a)
	}
	return out, rows.Err()
}

// classifyMiss disambiguates a zero-row guarded update: the row is either
// gone or no longer in the expected status.
func (r *repository) classifyMiss(ctx context.Context, id int64, expected Status) error {
	var current string
	err := r.db.QueryRow(ctx, `SELECT status FROM estimates WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("estimate %d is %s, expected %s: %w", id, current, expected, shared.ErrInvalidTransition)
}

func scanEstimate(row pgx.Row) (*Estimate, error) {
	var e Estimate
	var status string
	var desc, terms pgtype.Text
	var labor, material, total int64
	var parentID, supersededBy pgtype.Int8
	var supersededAt pgtype.Timestamptz

	err := row.Scan(
		&e.ID, &e.EstimateNumber, &e.ClientID, &e.Title, &desc, &status,
		&labor, &material, &e.MarkupBasis, &total,
		&e.RevisionNumber, &e.VersionGroupID, &e.IsCurrentVersion,
		&parentID, &supersededBy, &supersededAt,
		&terms, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Status = Status(status)
	e.LaborCost = cents(labor)
	e.MaterialCost = cents(material)
	e.TotalAmount = cents(total)
	if desc.Valid {
		e.Description = &desc.String
	}
	if terms.Valid {
		e.TermsAndNotes = &terms.String
	}
	if parentID.Valid {
		e.ParentEstimateID = &parentID.Int64
	}
	if supersededBy.Valid {
		e.SupersededBy = &supersededBy.Int64
	}
	if supersededAt.Valid {
		e.SupersededAt = &supersededAt.Time
	}
	return &e, nil
}

func cents(v int64) money.Cents {
	return money.Cents(v)
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
