// Package projector keeps the order status cache in step with order.events.
package projector

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-fulfillment/internal/kafka"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
	"github.com/ariefcatur/go-order-fulfillment/internal/redisx"
)

type Cache interface {
	Put(ctx context.Context, s redisx.CachedStatus) (bool, error)
}

type Projector struct {
	log   *zap.Logger
	cache Cache
}

func New(log *zap.Logger, cache Cache) *Projector {
	return &Projector{log: log, cache: cache}
}

// Handle is a kafka.Handler. Undecodable messages are logged and skipped; only
// cache write failures are returned so the consumer retries them.
func (p *Projector) Handle(ctx context.Context, m kafka.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		p.log.Warn("skipping undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	switch env.EventType {
	case orders.EventReservationExpired, orders.EventStockReceived:
		return nil
	}
	payload, err := kafkax.UnwrapPayload[orders.OrderEventPayload](env.Payload)
	if err != nil || payload.OrderID == "" {
		p.log.Warn("skipping event without order payload", zap.String("event_id", env.EventID), zap.String("type", env.EventType), zap.Error(err))
		return nil
	}

	written, err := p.cache.Put(ctx, redisx.CachedStatus{
		OrderID:       payload.OrderID,
		UserID:        payload.UserID,
		Status:        string(payload.Status),
		PaymentStatus: string(payload.PaymentStatus),
		UpdatedAt:     env.OccurredAt,
		Version:       env.OccurredAt.UnixMilli(),
	})
	if err != nil {
		return err
	}
	if !written {
		p.log.Debug("stale event ignored", zap.String("order_id", payload.OrderID), zap.String("type", env.EventType))
	}
	return nil
}
