package vitals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/internal/platform/db"
	"github.com/healthstore/healthstore/internal/platform/outbox"
	"github.com/healthstore/healthstore/internal/platform/telemetry"
)

var (
	ErrVitalNotFound   = errors.New("health vital not found")
	ErrPatientRequired = errors.New("patient ID is required")
	ErrPatientNotFound = errors.New("patient not found")
	ErrForbidden       = errors.New("not authorized to access this record")
	ErrInvalidVital    = errors.New("invalid measurement")
)

// AggregateType names the outbox aggregate of vital records.
const AggregateType = "vital"

// TopicCritical is the alert topic for critical records.
const TopicCritical = "vital.critical"

// CriticalFeedLimit caps the critical alerts listing.
const CriticalFeedLimit = 50

// EventWriter records domain events in the caller's transaction.
type EventWriter interface {
	Write(ctx context.Context, e outbox.Event) error
}

// AlertPublisher pushes a realtime notification.
type AlertPublisher interface {
	Publish(ctx context.Context, topic, resourceID string, data any) error
}

// PatientDirectory confirms that an id belongs to an active patient.
type PatientDirectory interface {
	IsActivePatient(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo     Repository
	tx       db.TxManager
	patients PatientDirectory
	events   EventWriter
	alerts   AlertPublisher
	metrics  *telemetry.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, tx db.TxManager, patients PatientDirectory, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		patients: patients,
		logger:   logger.With().Str("component", "vitals").Logger(),
		now:      time.Now,
	}
}

// SetEvents attaches an outbox writer for vital.critical events.
func (s *Service) SetEvents(w EventWriter) { s.events = w }

// SetAlerts attaches the realtime alert publisher.
func (s *Service) SetAlerts(p AlertPublisher) { s.alerts = p }

func (s *Service) SetMetrics(m *telemetry.Metrics) { s.metrics = m }

func (s *Service) resolvePatient(ctx context.Context, actor auth.Principal, requested *uuid.UUID) (uuid.UUID, error) {
	if actor.IsPatient() {
		return actor.UserID, nil
	}
	if requested == nil || *requested == uuid.Nil {
		return uuid.Nil, ErrPatientRequired
	}
	if s.patients != nil {
		ok, err := s.patients.IsActivePatient(ctx, *requested)
		if err != nil {
			return uuid.Nil, fmt.Errorf("lookup patient: %w", err)
		}
		if !ok {
			return uuid.Nil, ErrPatientNotFound
		}
	}
	return *requested, nil
}

type bound struct {
	name string
	v    *float64
	max  float64
}

func (b bound) check() error {
	if b.v == nil {
		return nil
	}
	if math.IsNaN(*b.v) || math.IsInf(*b.v, 0) || *b.v < 0 || (b.max > 0 && *b.v > b.max) {
		return fmt.Errorf("%w: %s out of range", ErrInvalidVital, b.name)
	}
	return nil
}

func validate(r *VitalRecord) error {
	m := r.Measurements()
	if t := m.Temperature; t != nil && (math.IsNaN(*t) || math.IsInf(*t, 0)) {
		return fmt.Errorf("%w: temperature out of range", ErrInvalidVital)
	}
	bounds := []bound{
		{"heartRate", m.HeartRate, 0},
		{"bloodPressure.systolic", m.Systolic, 0},
		{"bloodPressure.diastolic", m.Diastolic, 0},
		{"oxygenLevel", m.OxygenLevel, 100},
	}
	if r.Weight != nil {
		bounds = append(bounds, bound{"weight", r.Weight.Value, 0})
	}
	if r.Height != nil {
		bounds = append(bounds, bound{"height", r.Height.Value, 0})
	}
	for _, b := range bounds {
		if err := b.check(); err != nil {
			return err
		}
	}
	return nil
}

// classify runs the classifier on r and records per-metric counters.
func (s *Service) classify(r *VitalRecord) {
	res := Apply(r)
	for metric, status := range res.Statuses() {
		s.metrics.VitalClassified(metric, string(status))
	}
}

// Create records a new set of vitals. Patients record for themselves; other
// roles name the patient.
func (s *Service) Create(ctx context.Context, actor auth.Principal, in VitalInput) (*VitalRecord, error) {
	patientID, err := s.resolvePatient(ctx, actor, in.Patient)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rec := &VitalRecord{
		ID:         uuid.New(),
		PatientID:  patientID,
		RecordedBy: actor.UserID,
		Date:       now,
	}
	rec.merge(in)
	rec.applyDefaults()
	if err := validate(rec); err != nil {
		return nil, err
	}
	s.classify(rec)

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, rec); err != nil {
			return fmt.Errorf("create vital: %w", err)
		}
		return s.recordCritical(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, rec)
	return rec, nil
}

// Update merges in onto an existing record and reclassifies it.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id uuid.UUID, in VitalInput) (*VitalRecord, error) {
	if actor.Role != auth.RoleDoctor {
		return nil, ErrForbidden
	}
	var rec *VitalRecord
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		rec.merge(in)
		rec.applyDefaults()
		if err := validate(rec); err != nil {
			return err
		}
		s.classify(rec)
		if err := s.repo.Update(ctx, rec); err != nil {
			return fmt.Errorf("update vital: %w", err)
		}
		return s.recordCritical(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	rec.UpdatedAt = s.now().UTC()
	s.notify(ctx, rec)
	return rec, nil
}

func (s *Service) recordCritical(ctx context.Context, rec *VitalRecord) error {
	if !rec.IsCritical || s.events == nil {
		return nil
	}
	return s.events.Write(ctx, outbox.Event{
		AggregateType: AggregateType,
		AggregateID:   rec.ID,
		EventType:     TopicCritical,
		Payload: map[string]any{
			"vitalId":   rec.ID,
			"patientId": rec.PatientID,
			"statuses":  Classify(rec.Measurements()).Statuses(),
			"date":      rec.Date,
		},
	})
}

// notify publishes the realtime alert after commit. Failures are logged.
func (s *Service) notify(ctx context.Context, rec *VitalRecord) {
	if !rec.IsCritical {
		return
	}
	s.metrics.CriticalVital()
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Publish(ctx, TopicCritical, rec.ID.String(), rec); err != nil {
		s.logger.Warn().Err(err).Str("vital_id", rec.ID.String()).Msg("critical vital alert not delivered")
	}
}

// Get returns one record. Patients may only read their own.
func (s *Service) Get(ctx context.Context, actor auth.Principal, id uuid.UUID) (*VitalRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsPatient() && rec.PatientID != actor.UserID {
		return nil, ErrForbidden
	}
	return rec, nil
}

// List returns records newest first. A patient's listing is always scoped to
// themselves.
func (s *Service) List(ctx context.Context, actor auth.Principal, f ListFilter) ([]*VitalRecord, int, error) {
	if actor.IsPatient() {
		self := actor.UserID
		f.PatientID = &self
	}
	return s.repo.List(ctx, f)
}

// Critical returns the most recent critical records.
func (s *Service) Critical(ctx context.Context) ([]*VitalRecord, error) {
	return s.repo.RecentCritical(ctx, CriticalFeedLimit)
}
