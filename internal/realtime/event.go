package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventNewOrder          = "newOrder"
	EventOrderStatusUpdate = "orderStatusUpdate"
)

// Event is a named realtime message delivered to every subscriber of a topic.
type Event struct {
	Name       string          `json:"event"`
	Topic      string          `json:"topic,omitempty"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEvent marshals data into an Event.
func NewEvent(name string, data any, at time.Time) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s event: %w", name, err)
	}
	return Event{Name: name, Data: raw, OccurredAt: at.UTC()}, nil
}

// Notifier publishes events to a topic. Delivery is best-effort.
type Notifier interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// Subscriber registers interest in a topic until ctx ends or the subscription is closed.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (*Subscription, error)
}

// RestaurantTopic is the operator dashboard topic for a restaurant.
func RestaurantTopic(restaurantID uuid.UUID) string {
	return "restaurant:" + restaurantID.String()
}

// UserTopic is the personal topic of a customer.
func UserTopic(userID uuid.UUID) string {
	return "user:" + userID.String()
}
