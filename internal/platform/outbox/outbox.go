// Package outbox implements the transactional outbox: domain events are
// written in the same transaction as the state change that produced them and
// a relay later forwards them to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/healthstore/healthstore/internal/platform/db"
)

// ErrNoTransaction is returned by Writer.Write when ctx carries no transaction.
var ErrNoTransaction = errors.New("outbox: write requires a transaction in context")

// Event is a domain event to be recorded.
type Event struct {
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       any
}

// Record is a stored outbox row.
type Record struct {
	ID            int64
	EventID       uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       json.RawMessage
	Headers       map[string]string
	CreatedAt     time.Time
	Attempts      int
}

// Envelope is the message value published for each record.
type Envelope struct {
	EventID       uuid.UUID       `json:"eventId"`
	EventType     string          `json:"eventType"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   uuid.UUID       `json:"aggregateId"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Payload       json.RawMessage `json:"payload"`
}

// Envelope builds the published message for r.
func (r Record) Envelope() Envelope {
	return Envelope{
		EventID:       r.EventID,
		EventType:     r.EventType,
		AggregateType: r.AggregateType,
		AggregateID:   r.AggregateID,
		OccurredAt:    r.CreatedAt,
		Payload:       r.Payload,
	}
}

// Writer appends events to the outbox_events table.
type Writer struct{}

// NewWriter returns a Writer.
func NewWriter() *Writer { return &Writer{} }

// Write inserts e using the transaction carried by ctx. The current trace
// context is stored with the event so the relay can continue the trace.
func (w *Writer) Write(ctx context.Context, e Event) error {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return ErrNoTransaction
	}
	if e.AggregateType == "" || e.EventType == "" {
		return fmt.Errorf("outbox: aggregate type and event type are required")
	}
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	headers, err := json.Marshal(traceHeaders(ctx))
	if err != nil {
		return fmt.Errorf("outbox: marshal headers: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, headers)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), e.AggregateType, e.AggregateID, e.EventType, payload, headers)
	if err != nil {
		return fmt.Errorf("outbox: insert event: %w", err)
	}
	return nil
}

func traceHeaders(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}
