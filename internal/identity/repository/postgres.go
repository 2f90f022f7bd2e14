package repository

import (
	"context"
	"database/sql"
	"errors"

	"clinic-sync/backend/internal/identity/domain"
)

// PostgresRepository persists operators in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an operator repository over the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the operator for id, or nil if not found. It returns an
// error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Operator, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, name, role, password_hash, created_at FROM operators WHERE id = $1`, id)
	return scanOperator(row)
}

// GetByUsername returns the operator with the given username, or nil if not
// found. It returns an error only for database failures, not for missing
// rows.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, name, role, password_hash, created_at FROM operators WHERE username = $1`, username)
	return scanOperator(row)
}

// Create persists the operator. The operator must have ID set; it is not
// assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, o *domain.Operator) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO operators (id, username, name, role, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.Username, o.Name, o.Role, o.PasswordHash, o.CreatedAt)
	return err
}

// List returns all operators ordered by name.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Operator, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, username, name, role, password_hash, created_at FROM operators ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Operator
	for rows.Next() {
		var o domain.Operator
		if err := rows.Scan(&o.ID, &o.Username, &o.Name, &o.Role, &o.PasswordHash, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func scanOperator(row *sql.Row) (*domain.Operator, error) {
	var o domain.Operator
	err := row.Scan(&o.ID, &o.Username, &o.Name, &o.Role, &o.PasswordHash, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}
