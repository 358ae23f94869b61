package patients

import (
	"context"

	"github.com/google/uuid"
)

type Directory interface {
	List(ctx context.Context, f PatientFilter) ([]*Patient, int, error)
	// Get returns ErrPatientNotFound for ids that are not patients.
	Get(ctx context.Context, id uuid.UUID) (*Patient, error)
}

type RecordRepository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	Update(ctx context.Context, r *Record) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error)
}
