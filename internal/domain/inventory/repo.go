package inventory

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicine, error)
	Update(ctx context.Context, m *Medicine) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ListFilter) ([]*Medicine, int, error)
	LowStock(ctx context.Context) ([]*Medicine, error)
	// AdjustStock applies delta to the stored stock in a single statement and
	// returns the new stock. When the result would be negative nothing
	// changes and the current stock is returned with ErrInsufficientStock.
	// Negative deltas require an active medicine (ErrMedicineInactive);
	// restocks apply regardless.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error)
}
