package repository

import (
	"context"

	"clinic-sync/backend/internal/identity/domain"
)

// Repository defines persistence for operator accounts.
type Repository interface {
	// GetByID returns the operator for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
	// GetByUsername returns the operator with the given username, or nil if
	// not found.
	GetByUsername(ctx context.Context, username string) (*domain.Operator, error)
	// Create persists the operator. ID must be set by the caller.
	Create(ctx context.Context, o *domain.Operator) error
	// List returns all operators ordered by name.
	List(ctx context.Context) ([]*domain.Operator, error)
}
