package users

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create and Update return ErrEmailTaken on a duplicate address.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	Update(ctx context.Context, u *User) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter) ([]*User, int, error)
}
