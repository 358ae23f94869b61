package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/healthstore/healthstore/internal/platform/telemetry"
)

// Publisher delivers one message to a broker.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// RelayConfig controls batch size and cadence.
type RelayConfig struct {
	TopicPrefix  string
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  int
}

// DefaultRelayConfig returns the defaults used by the relay command.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		TopicPrefix:  "healthstore",
		BatchSize:    100,
		PollInterval: time.Second,
		MaxAttempts:  10,
	}
}

// Stats is a snapshot of relay counters.
type Stats struct {
	Batches   int64
	Published int64
	Failed    int64
	LastRun   time.Time
}

// Relay polls the outbox and publishes records in id order.
type Relay struct {
	store     Store
	publisher Publisher
	cfg       RelayConfig
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
	tracer    trace.Tracer

	mu    sync.Mutex
	stats Stats
}

// NewRelay creates a Relay. Zero config fields take their defaults.
func NewRelay(store Store, publisher Publisher, cfg RelayConfig, logger zerolog.Logger, metrics *telemetry.Metrics) *Relay {
	def := DefaultRelayConfig()
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = def.TopicPrefix
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With().Str("component", "outbox-relay").Logger(),
		metrics:   metrics,
		tracer:    otel.Tracer("healthstore/outbox"),
	}
}

// Topic returns the broker topic for an aggregate type.
func (r *Relay) Topic(aggregateType string) string {
	return r.cfg.TopicPrefix + "." + aggregateType
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// another poll.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().
		Int("batch_size", r.cfg.BatchSize).
		Dur("poll_interval", r.cfg.PollInterval).
		Msg("outbox relay started")

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		n, err := r.ProcessBatch(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("outbox batch failed")
		}
		if n >= r.cfg.BatchSize && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessBatch publishes one batch and returns how many records it claimed.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	ctx, span := r.tracer.Start(ctx, "outbox.process_batch")
	defer span.End()

	published, failed, err := r.store.Claim(ctx, r.cfg.BatchSize, r.cfg.MaxAttempts, r.publish)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	span.SetAttributes(attribute.Int("outbox.published", published), attribute.Int("outbox.failed", failed))

	r.mu.Lock()
	r.stats.Batches++
	r.stats.Published += int64(published)
	r.stats.Failed += int64(failed)
	r.stats.LastRun = time.Now()
	r.mu.Unlock()

	if pending, perr := r.store.Pending(ctx, r.cfg.MaxAttempts); perr == nil {
		r.metrics.SetOutboxPending(pending)
	}
	return published + failed, nil
}

func (r *Relay) publish(ctx context.Context, rec Record) error {
	parent := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(rec.Headers))
	ctx, span := r.tracer.Start(parent, "outbox.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("event.type", rec.EventType),
			attribute.String("aggregate.type", rec.AggregateType),
			attribute.Int64("outbox.id", rec.ID),
		))
	defer span.End()

	value, err := json.Marshal(rec.Envelope())
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	headers := map[string]string{"event_type": rec.EventType, "event_id": rec.EventID.String()}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))

	topic := r.Topic(rec.AggregateType)
	if err := r.publisher.Publish(ctx, topic, rec.AggregateID.String(), value, headers); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.PublishFailed()
		r.logger.Warn().Err(err).
			Int64("outbox_id", rec.ID).
			Str("event_type", rec.EventType).
			Int("attempts", rec.Attempts+1).
			Msg("outbox publish failed")
		return err
	}
	r.metrics.Published(topic)
	return nil
}

// Stats returns a copy of the relay counters.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
