// Package kafka publishes outbox events with franz-go behind a circuit
// breaker and manages the event topics.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/healthstore/healthstore/internal/platform/telemetry"
)

// ErrBreakerOpen is returned while the circuit breaker rejects requests.
var ErrBreakerOpen = errors.New("kafka: circuit breaker open")

// ProducerConfig holds broker and breaker settings.
type ProducerConfig struct {
	Brokers        []string
	ClientID       string
	ProduceTimeout time.Duration
	// Breaker opens after this many consecutive failures.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// DefaultProducerConfig returns defaults for the relay.
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:          brokers,
		ClientID:         "healthstore-relay",
		ProduceTimeout:   10 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// syncProducer is the subset of *kgo.Client the producer needs.
type syncProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Producer publishes records synchronously. It satisfies outbox.Publisher.
type Producer struct {
	client  syncProducer
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  zerolog.Logger
}

// NewProducer connects a franz-go client.
func NewProducer(cfg ProducerConfig, logger zerolog.Logger, metrics *telemetry.Metrics) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.Lz4Compression()),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: create client: %w", err)
	}
	return newProducer(client, cfg, logger, metrics), nil
}

func newProducer(client syncProducer, cfg ProducerConfig, logger zerolog.Logger, metrics *telemetry.Metrics) *Producer {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.ProduceTimeout <= 0 {
		cfg.ProduceTimeout = 10 * time.Second
	}
	logger = logger.With().Str("component", "kafka-producer").Logger()
	threshold := cfg.FailureThreshold

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
			metrics.SetBreakerState(name, int(to))
		},
	})
	metrics.SetBreakerState("kafka", int(gobreaker.StateClosed))

	return &Producer{
		client:  client,
		breaker: breaker,
		timeout: cfg.ProduceTimeout,
		logger:  logger,
	}
}

// Publish sends one record and waits for acknowledgement.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: []byte(key), Value: value}
	for k, v := range headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}

	_, err := p.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		return nil, p.client.ProduceSync(ctx, rec).FirstErr()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	}
	if err != nil {
		return fmt.Errorf("kafka: produce to %s: %w", topic, err)
	}
	return nil
}

// State reports the breaker state.
func (p *Producer) State() gobreaker.State {
	return p.breaker.State()
}

// Close releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
