package vitals

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, v *VitalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*VitalRecord, error)
	Update(ctx context.Context, v *VitalRecord) error
	List(ctx context.Context, f ListFilter) ([]*VitalRecord, int, error)
	RecentCritical(ctx context.Context, limit int) ([]*VitalRecord, error)
}
