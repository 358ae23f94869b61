package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/internal/platform/db"
	"github.com/healthstore/healthstore/internal/platform/outbox"
	"github.com/healthstore/healthstore/internal/platform/telemetry"
)

var (
	ErrMedicineNotFound  = errors.New("medicine not found")
	ErrInvalidMedicine   = errors.New("invalid medicine")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrMedicineInactive  = errors.New("medicine is inactive")
)

// TopicLowStock is the alert topic for products at or below their minimum.
const TopicLowStock = "inventory.low_stock"

// AggregateType names the outbox aggregate of medicines.
const AggregateType = "medicine"

const (
	EventStockAdjusted = "medicine.stock_adjusted"
	EventCreated       = "medicine.created"
	EventDeactivated   = "medicine.deactivated"
)

type EventWriter interface {
	Write(ctx context.Context, e outbox.Event) error
}

type AlertPublisher interface {
	Publish(ctx context.Context, topic, resourceID string, data any) error
}

type Service struct {
	repo    Repository
	tx      db.TxManager
	events  EventWriter
	alerts  AlertPublisher
	metrics *telemetry.Metrics
	logger  zerolog.Logger
}

func NewService(repo Repository, tx db.TxManager, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		logger: logger.With().Str("component", "inventory").Logger(),
	}
}

func (s *Service) SetEvents(w EventWriter) { s.events = w }

func (s *Service) SetAlerts(p AlertPublisher) { s.alerts = p }

func (s *Service) SetMetrics(m *telemetry.Metrics) { s.metrics = m }

func validate(m *Medicine) error {
	switch {
	case m.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidMedicine)
	case !m.Category.Valid():
		return fmt.Errorf("%w: invalid category %q", ErrInvalidMedicine, m.Category)
	case m.ExpiryDate.IsZero():
		return fmt.Errorf("%w: expiry date is required", ErrInvalidMedicine)
	case m.Price < 0 || math.IsNaN(m.Price) || math.IsInf(m.Price, 0):
		return fmt.Errorf("%w: price must be non-negative", ErrInvalidMedicine)
	case m.Stock < 0:
		return fmt.Errorf("%w: stock must be non-negative", ErrInvalidMedicine)
	case m.MinStockLevel < 0:
		return fmt.Errorf("%w: minimum stock level must be non-negative", ErrInvalidMedicine)
	}
	return nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]*Medicine, int, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	return s.repo.GetByID(ctx, id)
}

// LowStock returns active medicines at or below their minimum level, lowest
// stock first.
func (s *Service) LowStock(ctx context.Context) ([]*Medicine, error) {
	return s.repo.LowStock(ctx)
}

func (s *Service) Create(ctx context.Context, actor auth.Principal, in MedicineInput) (*Medicine, error) {
	m := &Medicine{
		ID:            uuid.New(),
		MinStockLevel: DefaultMinStockLevel,
		Unit:          DefaultUnit,
		IsActive:      true,
		AddedBy:       actor.UserID,
	}
	in.apply(m)
	if m.Unit == "" {
		m.Unit = DefaultUnit
	}
	if err := validate(m); err != nil {
		return nil, err
	}
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, m); err != nil {
			return fmt.Errorf("create medicine: %w", err)
		}
		return s.event(ctx, EventCreated, m, map[string]any{"medicineId": m.ID, "name": m.Name, "stock": m.Stock})
	})
	if err != nil {
		return nil, err
	}
	s.NotifyIfLow(ctx, m)
	return m, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in MedicineInput) (*Medicine, error) {
	var m *Medicine
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		m, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		in.apply(m)
		if m.Unit == "" {
			m.Unit = DefaultUnit
		}
		if err := validate(m); err != nil {
			return err
		}
		return s.repo.Update(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	if in.Stock != nil || in.MinStockLevel != nil {
		s.NotifyIfLow(ctx, m)
	}
	return m, nil
}

// Deactivate soft-deletes a medicine so historical orders keep their
// reference.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Deactivate(ctx, id); err != nil {
			return err
		}
		return s.event(ctx, EventDeactivated, &Medicine{ID: id}, map[string]any{"medicineId": id})
	})
}

// AdjustStock applies a relative stock change. A negative delta larger than
// the current stock fails with ErrInsufficientStock; one against an inactive
// medicine fails with ErrMedicineInactive.
func (s *Service) AdjustStock(ctx context.Context, id uuid.UUID, delta int) (*Medicine, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta must be non-zero", ErrInvalidMedicine)
	}
	var m *Medicine
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		stock, err := s.repo.AdjustStock(ctx, id, delta)
		if err != nil {
			if errors.Is(err, ErrInsufficientStock) {
				return &StockError{MedicineID: id, Available: stock}
			}
			return err
		}
		if m, err = s.repo.GetByID(ctx, id); err != nil {
			return err
		}
		m.Stock = stock
		return s.event(ctx, EventStockAdjusted, m, map[string]any{
			"medicineId": id,
			"delta":      delta,
			"stock":      stock,
			"lowStock":   m.IsLowStock(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.NotifyIfLow(ctx, m)
	return m, nil
}

func (s *Service) event(ctx context.Context, eventType string, m *Medicine, payload map[string]any) error {
	if s.events == nil {
		return nil
	}
	return s.events.Write(ctx, outbox.Event{
		AggregateType: AggregateType,
		AggregateID:   m.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

// LowStockAlert is the realtime payload of an inventory.low_stock alert.
type LowStockAlert struct {
	MedicineID    uuid.UUID `json:"medicineId"`
	Name          string    `json:"name"`
	Stock         int       `json:"stock"`
	MinStockLevel int       `json:"minStockLevel"`
}

// NotifyIfLow publishes a low-stock alert for an active medicine whose stock
// is at or below its minimum. Delivery failures are logged.
func (s *Service) NotifyIfLow(ctx context.Context, m *Medicine) {
	if m == nil || !m.IsActive || !m.IsLowStock() {
		return
	}
	s.metrics.LowStock()
	if s.alerts == nil {
		return
	}
	alert := LowStockAlert{MedicineID: m.ID, Name: m.Name, Stock: m.Stock, MinStockLevel: m.MinStockLevel}
	if err := s.alerts.Publish(ctx, TopicLowStock, m.ID.String(), alert); err != nil {
		s.logger.Warn().Err(err).Str("medicine_id", m.ID.String()).Msg("low stock alert not delivered")
	}
}

// StockError reports a stock adjustment that would go below zero.
type StockError struct {
	MedicineID uuid.UUID
	Available  int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for medicine %s (available %d)", e.MedicineID, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

func (e *StockError) Details() map[string]any {
	return map[string]any{"product": e.MedicineID, "available": e.Available}
}
