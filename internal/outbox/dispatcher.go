package outbox

import (
	"context"
	"errors"
	"sort"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/tracing"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// ErrPermanent marks a dispatch failure that retrying cannot fix.
var ErrPermanent = errors.New("permanent")

type Dispatcher struct {
	log          *zap.Logger
	producer     Producer
	defaultTopic string
	tracer       trace.Tracer
}

// NewDispatcher publishes to each event's own topic, falling back to defaultTopic.
func NewDispatcher(log *zap.Logger, producer Producer, defaultTopic string) *Dispatcher {
	return &Dispatcher{log: log, producer: producer, defaultTopic: defaultTopic, tracer: otel.Tracer("outbox")}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if len(event.Payload) == 0 {
		return errors.Join(ErrPermanent, errors.New("empty payload"))
	}
	keys := make([]string, 0, len(event.Headers))
	for k := range event.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafka.Header, 0, len(keys)+2)
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(event.Headers[k])})
	}

	ctx, span := d.tracer.Start(tracing.FromTraceparent(ctx, event.Traceparent), "outbox.dispatch",
		trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(attribute.String("messaging.event_type", event.Type), attribute.Int64("outbox.id", event.ID))
	headers = tracing.InjectKafkaHeaders(ctx, headers)

	topic := event.Topic
	if topic == "" {
		topic = d.defaultTopic
	}
	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
	if err := d.producer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.log.Error("outbox dispatch failed", zap.Int64("event_id", event.ID), zap.String("type", event.Type), zap.Error(err))
		return err
	}
	d.log.Debug("outbox dispatched", zap.Int64("event_id", event.ID), zap.String("type", event.Type), zap.String("topic", topic))
	return nil
}
