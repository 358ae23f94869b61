package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/healthstore/healthstore/internal/domain/inventory"
)

type Repository interface {
	// Create inserts the order and its lines.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// Lock reads the order and holds a row lock until the transaction ends.
	Lock(ctx context.Context, id uuid.UUID) (*Order, error)
	// UpdateStatus persists status, payment status and processedBy.
	UpdateStatus(ctx context.Context, o *Order) error
	List(ctx context.Context, f ListFilter) ([]*Order, int, error)
}

// Catalog is the inventory surface the ledger needs. AdjustStock must be a
// single atomic relative update.
type Catalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*inventory.Medicine, error)
	AdjustStock(ctx context.Context, id uuid.UUID, delta int) (int, error)
}
