package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Aggregate types that produce outbox events.
var AggregateTypes = []string{"order", "medicine", "vital", "patient_record"}

// TopicConfig describes one topic.
type TopicConfig struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]*string
}

// EventTopics returns the topic set for prefix.
func EventTopics(prefix string, partitions int32, replication int16) []TopicConfig {
	retention := "604800000"
	topics := make([]TopicConfig, 0, len(AggregateTypes))
	for _, agg := range AggregateTypes {
		topics = append(topics, TopicConfig{
			Name:              prefix + "." + agg,
			Partitions:        partitions,
			ReplicationFactor: replication,
			Configs:           map[string]*string{"retention.ms": &retention},
		})
	}
	return topics
}

// TopicResult reports what EnsureTopics did for one topic.
type TopicResult struct {
	Name    string
	Created bool
	Err     error
}

// EnsureTopics creates any missing topics. Existing topics are left as they
// are.
func EnsureTopics(ctx context.Context, brokers []string, topics []TopicConfig) ([]TopicResult, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("kafka: create admin client: %w", err)
	}
	defer client.Close()
	admin := kadm.NewClient(client)

	results := make([]TopicResult, 0, len(topics))
	for _, t := range topics {
		resp, err := admin.CreateTopic(ctx, t.Partitions, t.ReplicationFactor, t.Configs, t.Name)
		if err == nil {
			err = resp.Err
		}
		switch {
		case err == nil:
			results = append(results, TopicResult{Name: t.Name, Created: true})
		case errors.Is(err, kerr.TopicAlreadyExists):
			results = append(results, TopicResult{Name: t.Name})
		default:
			results = append(results, TopicResult{Name: t.Name, Err: err})
		}
	}
	return results, nil
}
