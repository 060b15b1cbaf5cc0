package realtime

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/angelmondragon/preorder-backend/pkg/logger"
	"github.com/angelmondragon/preorder-backend/pkg/metrics"
)

const defaultBufferSize = 32

// Subscription is one subscriber's bounded event stream.
type Subscription struct {
	topic  string
	events chan Event
	hub    *Hub
	once   sync.Once
}

// Events returns the stream. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Close detaches the subscription and closes its stream. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub is the in-process topic membership. A subscriber whose buffer is full
// misses the event; clients recover by refetching over REST.
type Hub struct {
	mu         sync.RWMutex
	topics     map[string]map[*Subscription]struct{}
	bufferSize int
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
}

// NewHub builds a hub with the given per-subscriber buffer.
func NewHub(bufferSize int, m *metrics.OrderMetrics, logg *logger.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		topics:     make(map[string]map[*Subscription]struct{}),
		bufferSize: bufferSize,
		metrics:    m,
		logg:       logg,
	}
}

func (h *Hub) Subscribe(ctx context.Context, topic string) (*Subscription, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, fmt.Errorf("topic required")
	}
	sub := &Subscription{
		topic:  topic,
		events: make(chan Event, h.bufferSize),
		hub:    h,
	}

	h.mu.Lock()
	members, ok := h.topics[topic]
	if !ok {
		members = make(map[*Subscription]struct{})
		h.topics[topic] = members
	}
	members[sub] = struct{}{}
	h.mu.Unlock()
	h.metrics.AddSubscribers(1)

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub, nil
}

// Publish delivers locally. Use RedisBroker to reach subscribers on other replicas.
func (h *Hub) Publish(ctx context.Context, topic string, event Event) error {
	h.Deliver(ctx, topic, event)
	return nil
}

// Deliver fans event out to the topic's local subscribers and returns how many received it.
func (h *Hub) Deliver(ctx context.Context, topic string, event Event) int {
	event.Topic = topic

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.topics[topic] {
		select {
		case sub.events <- event:
			delivered++
			h.metrics.IncRealtimeDelivered(event.Name)
		default:
			h.metrics.IncRealtimeDropped(event.Name)
			if h.logg != nil {
				h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
					"topic": topic,
					"event": event.Name,
				}), "realtime.dropped")
			}
		}
	}
	return delivered
}

// Subscribers returns the number of local subscribers on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.topics[sub.topic]
	if _, ok := members[sub]; !ok {
		return
	}
	delete(members, sub)
	if len(members) == 0 {
		delete(h.topics, sub.topic)
	}
	close(sub.events)
	h.metrics.AddSubscribers(-1)
}
