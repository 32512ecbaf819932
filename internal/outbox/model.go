package outbox

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is one outbox row. Payload holds the encoded orders.Envelope.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Topic         string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time
	Status        Status
	RelayID       string
	RetryCount    int
	LastError     *string
}

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
	HeaderEventID      = "x-event-id"
)

// FromEnvelope builds the pending row for env. The caller stamps env.TraceID first.
func FromEnvelope(env orders.Envelope) (Event, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s envelope: %w", env.EventType, err)
	}
	aggregate := "order"
	if env.EventType == orders.EventStockReceived {
		aggregate = "inventory"
	}
	return Event{
		AggregateType: aggregate,
		AggregateID:   env.CorrelationID,
		Topic:         orders.TopicFor(env.EventType),
		Type:          env.EventType,
		Payload:       payload,
		Headers: map[string]string{
			HeaderEventType:    env.EventType,
			HeaderEventVersion: strconv.Itoa(env.EventVersion),
			HeaderEventID:      env.EventID,
		},
		Traceparent: env.TraceID,
		CreatedAt:   env.OccurredAt,
		Status:      StatusPending,
	}, nil
}
