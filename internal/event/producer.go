package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Producer publishes storefront events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartChanged publishes a cart.changed event keyed by the cart key.
func (p *Producer) PublishCartChanged(ctx context.Context, ev CartChanged) error {
	if err := p.publish(ctx, TopicCartChanged, ev.Key, ev); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.changed event",
		slog.String("cart_key", ev.Key),
		slog.Int("item_count", ev.ItemCount),
		slog.Bool("cleared", ev.Cleared),
	)
	return nil
}

// PublishOrderSubmitted publishes an order.submitted event.
func (p *Producer) PublishOrderSubmitted(ctx context.Context, ev OrderSubmitted) error {
	if err := p.publish(ctx, TopicOrderSubmitted, ev.Key, ev); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published order.submitted event",
		slog.String("cart_key", ev.Key),
		slog.String("order_total", ev.OrderTotal),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, key string, data any) error {
	event, err := pkgkafka.NewEvent(topic, key, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}
