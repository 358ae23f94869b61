package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/internal/platform/db"
	"github.com/healthstore/healthstore/internal/platform/outbox"
)

var (
	ErrPatientNotFound = errors.New("patient not found")
	ErrRecordNotFound  = errors.New("patient record not found")
	ErrForbidden       = errors.New("not authorized to access this record")
	ErrInvalidRecord   = errors.New("invalid patient record")
)

// AggregateType names the outbox aggregate of medical records.
const AggregateType = "patient_record"

const (
	EventRecordCreated = "patient_record.created"
	EventRecordUpdated = "patient_record.updated"
)

// EventWriter records domain events in the caller's transaction.
type EventWriter interface {
	Write(ctx context.Context, e outbox.Event) error
}

// FileIndex reports whether an uploaded file exists.
type FileIndex interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	directory Directory
	records   RecordRepository
	tx        db.TxManager
	files     FileIndex
	events    EventWriter
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(directory Directory, records RecordRepository, tx db.TxManager, logger zerolog.Logger) *Service {
	return &Service{
		directory: directory,
		records:   records,
		tx:        tx,
		logger:    logger.With().Str("component", "patients").Logger(),
		now:       time.Now,
	}
}

// SetFiles enables attachment validation against the file store.
func (s *Service) SetFiles(f FileIndex) { s.files = f }

func (s *Service) SetEvents(w EventWriter) { s.events = w }

// IsActivePatient reports whether id names an active patient user.
func (s *Service) IsActivePatient(ctx context.Context, id uuid.UUID) (bool, error) {
	p, err := s.directory.Get(ctx, id)
	if errors.Is(err, ErrPatientNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IsActive, nil
}

func (s *Service) List(ctx context.Context, f PatientFilter) ([]*Patient, int, error) {
	f.Search = strings.TrimSpace(f.Search)
	return s.directory.List(ctx, f)
}

// Get returns a patient. Patients may only read themselves.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Patient, error) {
	if actor.IsPatient() && actor.UserID != id {
		return nil, ErrForbidden
	}
	return s.directory.Get(ctx, id)
}

// Records lists a patient's records, newest first. A patient always gets
// their own regardless of the requested id.
func (s *Service) Records(ctx context.Context, actor auth.Principal, patientID uuid.UUID) ([]*Record, error) {
	if actor.IsPatient() {
		patientID = actor.UserID
	}
	return s.records.ListByPatient(ctx, patientID)
}

func (s *Service) Record(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Record, error) {
	r, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsPatient() && r.PatientID != actor.UserID {
		return nil, ErrForbidden
	}
	return r, nil
}

func (s *Service) validate(ctx context.Context, r *Record) error {
	for i, line := range r.Prescription {
		if strings.TrimSpace(line.Medicine) == "" || strings.TrimSpace(line.Dosage) == "" ||
			strings.TrimSpace(line.Frequency) == "" || strings.TrimSpace(line.Duration) == "" {
			return fmt.Errorf("%w: prescription[%d] requires medicine, dosage, frequency and duration", ErrInvalidRecord, i)
		}
	}
	if r.FollowUpDate != nil && r.FollowUpDate.Before(r.Date) {
		return fmt.Errorf("%w: followUpDate precedes record date", ErrInvalidRecord)
	}
	if s.files == nil {
		return nil
	}
	for _, id := range r.Attachments {
		ok, err := s.files.Exists(ctx, id)
		if err != nil {
			return fmt.Errorf("lookup attachment: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: attachment %s not found", ErrInvalidRecord, id)
		}
	}
	return nil
}

// CreateRecord writes a record for patientID authored by the calling doctor.
func (s *Service) CreateRecord(ctx context.Context, actor auth.Principal, patientID uuid.UUID, in RecordInput) (*Record, error) {
	if actor.Role != auth.RoleDoctor {
		return nil, ErrForbidden
	}
	if _, err := s.directory.Get(ctx, patientID); err != nil {
		return nil, err
	}
	r := &Record{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  actor.UserID,
		Date:      s.now().UTC(),
	}
	in.apply(r)
	if err := s.validate(ctx, r); err != nil {
		return nil, err
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.records.Create(ctx, r); err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		return s.emit(ctx, EventRecordCreated, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateRecord merges in onto a record. Only the authoring doctor may edit.
func (s *Service) UpdateRecord(ctx context.Context, actor auth.Principal, id uuid.UUID, in RecordInput) (*Record, error) {
	if actor.Role != auth.RoleDoctor {
		return nil, ErrForbidden
	}
	var r *Record
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.records.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if r.DoctorID != actor.UserID {
			return ErrForbidden
		}
		in.apply(r)
		if err := s.validate(ctx, r); err != nil {
			return err
		}
		if err := s.records.Update(ctx, r); err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		return s.emit(ctx, EventRecordUpdated, r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) emit(ctx context.Context, eventType string, r *Record) error {
	if s.events == nil {
		return nil
	}
	return s.events.Write(ctx, outbox.Event{
		AggregateType: AggregateType,
		AggregateID:   r.ID,
		EventType:     eventType,
		Payload: map[string]any{
			"recordId":   r.ID,
			"patientId":  r.PatientID,
			"doctorId":   r.DoctorID,
			"occurredAt": s.now().UTC(),
		},
	})
}
