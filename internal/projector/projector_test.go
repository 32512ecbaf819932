package projector

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
)

type memCache struct {
	docs map[string]redisx.CachedStatus
	err  error
}

func (c *memCache) Put(_ context.Context, s redisx.CachedStatus) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	if cur, ok := c.docs[s.OrderID]; ok && cur.Version > s.Version {
		return false, nil
	}
	c.docs[s.OrderID] = s
	return true, nil
}

func message(t *testing.T, eventType string, at time.Time, payload any) kafka.Message {
	t.Helper()
	env, err := orders.NewEnvelope(eventType, "test", "o-1", at, payload)
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("o-1"), Value: b}
}

func orderPayload(status orders.Status) orders.OrderEventPayload {
	return orders.OrderEventPayload{
		OrderID: "o-1", UserID: "u-1", Status: status, PaymentStatus: orders.PaymentPaid,
		Total: decimal.RequireFromString("20.00"), Currency: "USD",
	}
}

func TestProjectorWritesLatestStatus(t *testing.T) {
	cache := &memCache{docs: map[string]redisx.CachedStatus{}}
	p := New(zap.NewNop(), cache)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, p.Handle(context.Background(), message(t, orders.EventOrderShipped, at.Add(time.Minute), orderPayload(orders.StatusShipped))))
	require.NoError(t, p.Handle(context.Background(), message(t, orders.EventOrderStatusChanged, at, orderPayload(orders.StatusProcessing))))

	doc := cache.docs["o-1"]
	assert.Equal(t, "SHIPPED", doc.Status)
	assert.Equal(t, "u-1", doc.UserID)
	assert.Equal(t, "PAID", doc.PaymentStatus)
}

func TestProjectorSkipsForeignEvents(t *testing.T) {
	cache := &memCache{docs: map[string]redisx.CachedStatus{}}
	p := New(zap.NewNop(), cache)

	require.NoError(t, p.Handle(context.Background(), kafka.Message{Value: []byte("not json")}))
	require.NoError(t, p.Handle(context.Background(), message(t, orders.EventReservationExpired, time.Now(),
		orders.ReservationExpiredPayload{OrderID: "o-1", UnitID: "U1", Qty: 1})))
	assert.Empty(t, cache.docs)
}

func TestProjectorReturnsCacheErrors(t *testing.T) {
	p := New(zap.NewNop(), &memCache{err: errors.New("redis down")})
	err := p.Handle(context.Background(), message(t, orders.EventOrderCreated, time.Now(), orderPayload(orders.StatusPending)))
	assert.Error(t, err)
}
