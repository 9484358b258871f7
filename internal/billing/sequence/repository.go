package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paintdesk/paintdesk/internal/shared"
)

// ErrMissing indicates the named sequence row does not exist. This is a
// configuration error: the allocator fails closed rather than silently
// starting a counter from zero.
var ErrMissing = errors.New("sequence not configured")

// Allocation is the result of one counter increment.
type Allocation struct {
	Prefix string
	Width  int
	Value  int64
}

// Querier is the subset of pgx used by the allocator, satisfied by both
// *pgxpool.Pool and pgx.Tx so number allocation can join a caller's
// transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// NextTx increments the named counter and returns the allocation, as a
// single atomic read-increment-write. Two concurrent callers serialize on
// the row lock taken by UPDATE, so they can never observe the same value.
func NextTx(ctx context.Context, q Querier, name string) (Allocation, error) {
	var alloc Allocation
	err := q.QueryRow(ctx, `
		UPDATE document_sequences
		SET current_number = current_number + 1
		WHERE name = $1
		RETURNING prefix, pad_width, current_number`, name).
		Scan(&alloc.Prefix, &alloc.Width, &alloc.Value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allocation{}, fmt.Errorf("sequence %q: %w", name, ErrMissing)
		}
		return Allocation{}, fmt.Errorf("sequence %q: %w: %v", name, shared.ErrStore, err)
	}
	return alloc, nil
}

// Format renders the allocation as a document number, e.g. EST-1001.
func (a Allocation) Format() string {
	return fmt.Sprintf("%s%0*d", a.Prefix, a.Width, a.Value)
}

// Repository provides PostgreSQL backed allocation outside an existing
// transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Next allocates the next number for name in its own transaction.
func (r *Repository) Next(ctx context.Context, name string) (Allocation, error) {
	return NextTx(ctx, r.pool, name)
}
