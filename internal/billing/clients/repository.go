package clients

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paintdesk/paintdesk/internal/shared"
)

// Repository defines data access for clients.
type Repository interface {
	Get(ctx context.Context, id int64) (*Client, error)
	Create(ctx context.Context, c Client) (int64, error)
	List(ctx context.Context, req ListClientsRequest) ([]Client, int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (*Client, error) {
	var c Client
	var email, phone, address pgtype.Text
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, address, created_at, updated_at
		FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &email, &phone, &address, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if email.Valid {
		c.Email = &email.String
	}
	if phone.Valid {
		c.Phone = &phone.String
	}
	if address.Valid {
		c.Address = &address.String
	}
	return &c, nil
}

func (r *repository) Create(ctx context.Context, c Client) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clients (name, email, phone, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id`,
		c.Name, c.Email, c.Phone, c.Address).Scan(&id)
	return id, err
}

func (r *repository) List(ctx context.Context, req ListClientsRequest) ([]Client, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1
	if req.Search != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", argPos)
		args = append(args, "%"+req.Search+"%")
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM clients "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT id, name, email, phone, address, created_at, updated_at
		FROM clients %s ORDER BY name, id LIMIT $%d OFFSET $%d`, where, argPos, argPos+1)
	args = append(args, limit, req.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		var c Client
		var email, phone, address pgtype.Text
		if err := rows.Scan(&c.ID, &c.Name, &email, &phone, &address, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if email.Valid {
			c.Email = &email.String
		}
		if phone.Valid {
			c.Phone = &phone.String
		}
		if address.Valid {
			c.Address = &address.String
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}
