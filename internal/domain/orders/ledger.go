package orders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/healthstore/healthstore/internal/domain/inventory"
	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/internal/platform/db"
	"github.com/healthstore/healthstore/internal/platform/outbox"
	"github.com/healthstore/healthstore/internal/platform/telemetry"
)

// AggregateType names the outbox aggregate of orders.
const AggregateType = "order"

const (
	EventPlaced        = "order.placed"
	EventCancelled     = "order.cancelled"
	EventStatusChanged = "order.status_changed"
)

const maxPaymentMethodLen = 30

type EventWriter interface {
	Write(ctx context.Context, e outbox.Event) error
}

type PatientDirectory interface {
	IsActivePatient(ctx context.Context, id uuid.UUID) (bool, error)
}

// LowStockNotifier is told about medicines whose stock changed in a
// committed ledger operation.
type LowStockNotifier interface {
	NotifyIfLow(ctx context.Context, m *inventory.Medicine)
}

// FileIndex reports whether an uploaded file exists.
type FileIndex interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// Ledger places, cancels and advances orders. Every operation that touches
// stock runs the order write and the stock adjustments in one transaction.
type Ledger struct {
	repo     Repository
	catalog  Catalog
	tx       db.TxManager
	patients PatientDirectory
	events   EventWriter
	lowStock LowStockNotifier
	files    FileIndex
	metrics  *telemetry.Metrics
	tracer   trace.Tracer
	logger   zerolog.Logger
}

func NewLedger(repo Repository, catalog Catalog, tx db.TxManager, patients PatientDirectory, logger zerolog.Logger) *Ledger {
	return &Ledger{
		repo:     repo,
		catalog:  catalog,
		tx:       tx,
		patients: patients,
		tracer:   otel.Tracer("healthstore/orders"),
		logger:   logger.With().Str("component", "orders").Logger(),
	}
}

func (l *Ledger) SetEvents(w EventWriter) { l.events = w }

func (l *Ledger) SetLowStockNotifier(n LowStockNotifier) { l.lowStock = n }

// SetFiles enables prescription file validation on placement.
func (l *Ledger) SetFiles(f FileIndex) { l.files = f }

func (l *Ledger) SetMetrics(m *telemetry.Metrics) { l.metrics = m }

// outcome classifies err for metrics and span attributes.
func outcome(err error) string {
	var se *StockError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &se), errors.Is(err, ErrInvalidTransition):
		return "rejected"
	case errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrPatientRequired), errors.Is(err, ErrPatientNotFound):
		return "invalid"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrOrderNotFound):
		return "not_found"
	}
	return "error"
}

func (l *Ledger) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := l.tracer.Start(ctx, "orders."+op, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		err := *errp
		res := outcome(err)
		span.SetAttributes(attribute.String("order.outcome", res))
		if res == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		l.metrics.OrderOutcome(op, res)
	}
}

func (l *Ledger) resolvePatient(ctx context.Context, buyer auth.Principal, requested *uuid.UUID) (uuid.UUID, error) {
	if buyer.IsPatient() {
		return buyer.UserID, nil
	}
	if requested == nil || *requested == uuid.Nil {
		return uuid.Nil, ErrPatientRequired
	}
	if l.patients != nil {
		ok, err := l.patients.IsActivePatient(ctx, *requested)
		if err != nil {
			return uuid.Nil, fmt.Errorf("lookup patient: %w", err)
		}
		if !ok {
			return uuid.Nil, ErrPatientNotFound
		}
	}
	return *requested, nil
}

func validateCart(req PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}
	for i, it := range req.Items {
		if it.MedicineID == uuid.Nil {
			return fmt.Errorf("%w: item %d has no medicine", ErrInvalidOrder, i+1)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("%w: item %d quantity must be at least 1", ErrInvalidOrder, i+1)
		}
	}
	if len(req.PaymentMethod) > maxPaymentMethodLen {
		return fmt.Errorf("%w: payment method too long", ErrInvalidOrder)
	}
	return nil
}

// PlaceOrder prices the cart against live stock and reserves it. Either the
// order and every stock decrement commit together or nothing changes.
func (l *Ledger) PlaceOrder(ctx context.Context, buyer auth.Principal, req PlaceOrderRequest) (o *Order, err error) {
	ctx, finish := l.start(ctx, "place", attribute.Int("order.lines", len(req.Items)))
	defer finish(&err)

	if err := validateCart(req); err != nil {
		return nil, err
	}
	patientID, err := l.resolvePatient(ctx, buyer, req.Patient)
	if err != nil {
		return nil, err
	}
	if req.PrescriptionFile != nil && l.files != nil {
		ok, err := l.files.Exists(ctx, *req.PrescriptionFile)
		if err != nil {
			return nil, fmt.Errorf("lookup prescription file: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: prescription file not found", ErrInvalidOrder)
		}
	}

	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		method = DefaultPaymentMethod
	}
	o = &Order{
		ID:               uuid.New(),
		PatientID:        patientID,
		PlacedBy:         buyer.UserID,
		Status:           StatusPending,
		PaymentStatus:    PaymentPending,
		PaymentMethod:    method,
		PrescriptionFile: req.PrescriptionFile,
		Notes:            req.Notes,
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("order.id", o.ID.String()))

	var touched map[uuid.UUID]*inventory.Medicine
	err = l.tx.WithTx(ctx, func(ctx context.Context) error {
		products, err := l.priceLines(ctx, o, req.Items)
		if err != nil {
			return err
		}
		if err := l.repo.Create(ctx, o); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for _, d := range stockDeltas(o.Items, -1) {
			stock, err := l.catalog.AdjustStock(ctx, d.medicineID, d.delta)
			if err != nil {
				return stockFailure(err, d.medicineID, products[d.medicineID], stock)
			}
			products[d.medicineID].Stock = stock
		}
		touched = products
		return l.event(ctx, EventPlaced, o, map[string]any{
			"orderId":   o.ID,
			"patientId": o.PatientID,
			"items":     o.Items,
			"total":     o.Total,
		})
	})
	if err != nil {
		return nil, err
	}
	l.notifyStock(ctx, touched)
	return o, nil
}

// priceLines validates every line against the stock remaining after the
// preceding lines and fills in the snapshots and totals.
func (l *Ledger) priceLines(ctx context.Context, o *Order, cart []CartItem) (map[uuid.UUID]*inventory.Medicine, error) {
	products := make(map[uuid.UUID]*inventory.Medicine, len(cart))
	remaining := make(map[uuid.UUID]int, len(cart))
	o.Items = make([]Item, 0, len(cart))

	for _, line := range cart {
		m, ok := products[line.MedicineID]
		if !ok {
			var err error
			m, err = l.catalog.GetByID(ctx, line.MedicineID)
			if errors.Is(err, inventory.ErrMedicineNotFound) {
				return nil, &StockError{Kind: StockNotFound, ProductID: line.MedicineID}
			}
			if err != nil {
				return nil, fmt.Errorf("load medicine %s: %w", line.MedicineID, err)
			}
			if !m.IsActive {
				return nil, &StockError{Kind: StockInactive, ProductID: m.ID, Name: m.Name}
			}
			products[m.ID] = m
			remaining[m.ID] = m.Stock
		}
		if line.Quantity > remaining[m.ID] {
			return nil, &StockError{Kind: StockInsufficient, ProductID: m.ID, Name: m.Name, Available: remaining[m.ID]}
		}
		remaining[m.ID] -= line.Quantity

		o.Items = append(o.Items, Item{
			MedicineID: m.ID,
			Name:       m.Name,
			Quantity:   line.Quantity,
			Price:      m.Price,
			Total:      LineTotal(m.Price, line.Quantity),
		})
		if m.PrescriptionRequired {
			o.PrescriptionRequired = true
		}
	}
	t := Price(o.Items)
	o.Subtotal, o.Tax, o.Discount, o.Total = t.Subtotal, t.Tax, t.Discount, t.Total
	return products, nil
}

type stockDelta struct {
	medicineID uuid.UUID
	delta      int
}

// stockDeltas nets the lines per medicine, scaled by sign, in ascending
// medicine id order. Every transaction touching several medicines takes their
// row locks in that order.
func stockDeltas(items []Item, sign int) []stockDelta {
	net := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		net[it.MedicineID] += it.Quantity
	}
	out := make([]stockDelta, 0, len(net))
	for id, qty := range net {
		out = append(out, stockDelta{medicineID: id, delta: sign * qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].medicineID[:], out[j].medicineID[:]) < 0
	})
	return out
}

// stockFailure maps a failed conditional decrement to a StockError carrying
// the stock re-read at commit time.
func stockFailure(err error, id uuid.UUID, m *inventory.Medicine, available int) error {
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock):
		se := &StockError{Kind: StockInsufficient, ProductID: id, Available: available}
		if m != nil {
			se.Name = m.Name
		}
		return se
	case errors.Is(err, inventory.ErrMedicineInactive):
		se := &StockError{Kind: StockInactive, ProductID: id}
		if m != nil {
			se.Name = m.Name
		}
		return se
	case errors.Is(err, inventory.ErrMedicineNotFound):
		return &StockError{Kind: StockNotFound, ProductID: id}
	}
	return fmt.Errorf("adjust stock for %s: %w", id, err)
}

func canManage(actor auth.Principal, o *Order) bool {
	return actor.IsStaff() || actor.UserID == o.PatientID || actor.UserID == o.PlacedBy
}

// CancelOrder restores the stock of every line and marks the order
// cancelled. Completed and already cancelled orders are rejected.
func (l *Ledger) CancelOrder(ctx context.Context, id uuid.UUID, requester auth.Principal) (o *Order, err error) {
	ctx, finish := l.start(ctx, "cancel", attribute.String("order.id", id.String()))
	defer finish(&err)

	var touched map[uuid.UUID]*inventory.Medicine
	err = l.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = l.repo.Lock(ctx, id); err != nil {
			return err
		}
		if !canManage(requester, o) {
			return ErrForbidden
		}
		if touched, err = l.cancelLocked(ctx, o); err != nil {
			return err
		}
		if err := l.repo.UpdateStatus(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return l.event(ctx, EventCancelled, o, map[string]any{
			"orderId":     o.ID,
			"cancelledBy": requester.UserID,
			"items":       o.Items,
		})
	})
	if err != nil {
		return nil, err
	}
	l.notifyStock(ctx, touched)
	return o, nil
}

// cancelLocked restores stock by each line's captured quantity and sets the
// status. The order row must already be locked. The returned map has nil
// entries: those medicines are reloaded before the low-stock check.
func (l *Ledger) cancelLocked(ctx context.Context, o *Order) (map[uuid.UUID]*inventory.Medicine, error) {
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, &TransitionError{From: o.Status, To: StatusCancelled}
	}
	touched := make(map[uuid.UUID]*inventory.Medicine, len(o.Items))
	for _, d := range stockDeltas(o.Items, 1) {
		if _, err := l.catalog.AdjustStock(ctx, d.medicineID, d.delta); err != nil {
			return nil, fmt.Errorf("restore stock for %s: %w", d.medicineID, err)
		}
		touched[d.medicineID] = nil
	}
	o.Status = StatusCancelled
	return touched, nil
}

// SetStatus moves an order through the transition table and/or updates its
// payment status. Staff only. A move to cancelled restores stock.
func (l *Ledger) SetStatus(ctx context.Context, id uuid.UUID, upd StatusUpdate, actor auth.Principal) (o *Order, err error) {
	ctx, finish := l.start(ctx, "set_status", attribute.String("order.id", id.String()))
	defer finish(&err)

	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	if upd.Status == nil && upd.PaymentStatus == nil {
		return nil, fmt.Errorf("%w: status or paymentStatus is required", ErrInvalidOrder)
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, *upd.Status)
	}
	if upd.PaymentStatus != nil && !upd.PaymentStatus.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalidOrder, *upd.PaymentStatus)
	}

	var touched map[uuid.UUID]*inventory.Medicine
	err = l.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = l.repo.Lock(ctx, id); err != nil {
			return err
		}
		from, fromPayment := o.Status, o.PaymentStatus

		if upd.Status != nil && *upd.Status != o.Status {
			to := *upd.Status
			if !CanTransition(o.Status, to) {
				return &TransitionError{From: o.Status, To: to}
			}
			if to == StatusCancelled {
				if touched, err = l.cancelLocked(ctx, o); err != nil {
					return err
				}
			} else {
				o.Status = to
			}
			if to == StatusProcessing || to == StatusCompleted {
				by := actor.UserID
				o.ProcessedBy = &by
			}
		}
		if upd.PaymentStatus != nil {
			o.PaymentStatus = *upd.PaymentStatus
		}
		if o.Status == from && o.PaymentStatus == fromPayment {
			return nil
		}

		if err := l.repo.UpdateStatus(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		eventType := EventStatusChanged
		if o.Status == StatusCancelled && from != StatusCancelled {
			eventType = EventCancelled
		}
		return l.event(ctx, eventType, o, map[string]any{
			"orderId":       o.ID,
			"from":          from,
			"to":            o.Status,
			"paymentStatus": o.PaymentStatus,
			"changedBy":     actor.UserID,
		})
	})
	if err != nil {
		return nil, err
	}
	l.notifyStock(ctx, touched)
	return o, nil
}

func (l *Ledger) event(ctx context.Context, eventType string, o *Order, payload map[string]any) error {
	if l.events == nil {
		return nil
	}
	payload["occurredAt"] = time.Now().UTC()
	return l.events.Write(ctx, outbox.Event{
		AggregateType: AggregateType,
		AggregateID:   o.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}

func (l *Ledger) notifyStock(ctx context.Context, touched map[uuid.UUID]*inventory.Medicine) {
	if l.lowStock == nil {
		return
	}
	for id, m := range touched {
		if m == nil {
			full, err := l.catalog.GetByID(ctx, id)
			if err != nil {
				l.logger.Warn().Err(err).Str("medicine_id", id.String()).Msg("reload medicine for stock check")
				continue
			}
			m = full
		}
		l.lowStock.NotifyIfLow(ctx, m)
	}
}

// Get returns one order. Patients may only read their own.
func (l *Ledger) Get(ctx context.Context, actor auth.Principal, id uuid.UUID) (*Order, error) {
	o, err := l.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsPatient() && o.PatientID != actor.UserID {
		return nil, ErrForbidden
	}
	return o, nil
}

// List returns orders newest first; a patient only sees their own.
func (l *Ledger) List(ctx context.Context, actor auth.Principal, f ListFilter) ([]*Order, int, error) {
	if actor.IsPatient() {
		self := actor.UserID
		f.PatientID = &self
	}
	return l.repo.List(ctx, f)
}
