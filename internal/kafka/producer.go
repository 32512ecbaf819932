package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer writes synchronously: the outbox relay marks rows sent only after the
// brokers acknowledged them. Each message carries its own topic.
type Producer struct {
	log *zap.Logger
	w   *kafka.Writer
}

func NewProducer(log *zap.Logger, brokers []string) *Producer {
	return &Producer{
		log: log,
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Producer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	now := time.Now()
	for i := range msgs {
		if msgs[i].Time.IsZero() {
			msgs[i].Time = now
		}
	}
	if err := p.w.WriteMessages(ctx, msgs...); err != nil {
		p.log.Warn("kafka write failed", zap.Int("messages", len(msgs)), zap.Error(err))
		return err
	}
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }
