// Package websocket pushes operational alerts (critical vitals, low stock) to
// connected staff clients. Clients subscribe to topics; each topic is visible
// only to the roles listed in the hub's access list.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/internal/platform/telemetry"
)

// Event is a single alert delivered to subscribers.
type Event struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	ResourceID string          `json:"resourceId,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscription change from a client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// TopicACL maps a topic to the roles allowed to receive it.
type TopicACL map[string][]auth.Role

// Allowed reports whether role may subscribe to topic.
func (a TopicACL) Allowed(topic string, role auth.Role) bool {
	for _, r := range a[topic] {
		if r == role {
			return true
		}
	}
	return false
}

// TopicsFor lists every topic role may receive.
func (a TopicACL) TopicsFor(role auth.Role) []string {
	var out []string
	for topic := range a {
		if a.Allowed(topic, role) {
			out = append(out, topic)
		}
	}
	return out
}

// Client is one connected websocket session.
type Client struct {
	ID     string
	UserID string
	Role   auth.Role
	Send   chan []byte

	topics map[string]struct{}
}

// NewClient returns a client with a buffered send queue.
func NewClient(id, userID string, role auth.Role, buffer int) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		Role:   role,
		Send:   make(chan []byte, buffer),
		topics: make(map[string]struct{}),
	}
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> subscribers
	all     map[*Client]struct{}

	acl     TopicACL
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
	nextID  func() string
}

func NewHub(acl TopicACL, logger zerolog.Logger, metrics *telemetry.Metrics) *Hub {
	var seq uint64
	var seqMu sync.Mutex
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		acl:     acl,
		logger:  logger.With().Str("component", "alert_hub").Logger(),
		metrics: metrics,
		now:     time.Now,
		nextID: func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("evt-%d", seq)
		},
	}
}

// Register adds a client and subscribes it to topics it is allowed to see.
func (h *Hub) Register(client *Client, topics []string) {
	h.mu.Lock()
	h.all[client] = struct{}{}
	h.subscribeLocked(client, topics)
	n := len(h.all)
	h.mu.Unlock()

	h.metrics.SetWebsocketClients(n)
}

// Unregister removes a client from every topic and closes its send queue.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.all[client]; !ok {
		h.mu.Unlock()
		return
	}
	for topic := range client.topics {
		h.removeLocked(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
	n := len(h.all)
	h.mu.Unlock()

	h.metrics.SetWebsocketClients(n)
}

// Subscribe adds permitted topics and returns those that were rejected.
func (h *Hub) Subscribe(client *Client, topics []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subscribeLocked(client, topics)
}

func (h *Hub) subscribeLocked(client *Client, topics []string) (rejected []string) {
	for _, topic := range topics {
		if !h.acl.Allowed(topic, client.Role) {
			rejected = append(rejected, topic)
			continue
		}
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
		client.topics[topic] = struct{}{}
	}
	return rejected
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		h.removeLocked(client, topic)
	}
}

func (h *Hub) removeLocked(client *Client, topic string) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
	delete(client.topics, topic)
}

// ProcessMessage applies a subscribe or unsubscribe request.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) []string {
	switch msg.Action {
	case "subscribe":
		return h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
	return nil
}

// Publish marshals data and delivers it to every subscriber of topic. Slow
// clients whose queue is full miss the event rather than block the caller.
func (h *Hub) Publish(_ context.Context, topic, resourceID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}
	msg, err := json.Marshal(Event{
		ID:         h.nextID(),
		Topic:      topic,
		ResourceID: resourceID,
		Timestamp:  h.now().UTC(),
		Data:       raw,
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for client := range h.clients[topic] {
		select {
		case client.Send <- msg:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn().Str("topic", topic).Int("dropped", dropped).Msg("alert dropped for slow clients")
	}
	return nil
}

// sendTo queues msg for a single client if it is still registered.
func (h *Hub) sendTo(client *Client, msg []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.all[client]; !ok {
		return false
	}
	select {
	case client.Send <- msg:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of subscribers of topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.all))
	for c := range h.all {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}
