package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated          = "OrderCreated"
	EventOrderConfirmed        = "OrderConfirmed"
	EventPaymentFailed         = "PaymentFailed"
	EventOrderCancelled        = "OrderCancelled"
	EventOrderStatusChanged    = "OrderStatusChanged"
	EventOrderShipped          = "OrderShipped"
	EventOrderRefunded         = "OrderRefunded"
	EventReservationExpired    = "ReservationExpired"
	EventStockReceived         = "StockReceived"
	EventPaymentForClosedOrder = "PaymentReceivedForClosedOrder"
	EventOrderRated            = "OrderRated"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id, or unit id for stock events
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(eventType, producer, correlationID string, at time.Time, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    at.UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       b,
	}, nil
}

type ItemQty struct {
	UnitID string `json:"unit_id"`
	Qty    int64  `json:"qty"`
}

// OrderEventPayload is shared by every order lifecycle event.
type OrderEventPayload struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        string          `json:"user_id"`
	Status        Status          `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Items         []ItemQty       `json:"items,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

func NewOrderEventPayload(o *Order, notes string) OrderEventPayload {
	items := make([]ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, ItemQty{UnitID: it.UnitID, Qty: it.Qty})
	}
	return OrderEventPayload{
		OrderID:       o.ID,
		OrderNumber:   o.Number,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		Currency:      o.Currency,
		Items:         items,
		Notes:         notes,
	}
}

type StockReceivedPayload struct {
	UnitID    string `json:"unit_id"`
	Qty       int64  `json:"qty"`
	Reference string `json:"reference"`
	OnHand    int64  `json:"on_hand"`
}

type ReservationExpiredPayload struct {
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
	UnitID        string `json:"unit_id"`
	Qty           int64  `json:"qty"`
}
