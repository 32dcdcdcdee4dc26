// Package event publishes cart and order notifications, both to in-process
// subscribers and to Kafka.
package event

import (
	"context"
	"errors"
	"time"
)

// Kafka topics for storefront events.
const (
	TopicCartChanged    = "storefront.cart.changed"
	TopicOrderSubmitted = "storefront.order.submitted"
)

// SourceStorefront identifies events originating from this service.
const SourceStorefront = "storefront"

// CartChanged is emitted after every write to a cart entry.
type CartChanged struct {
	Key          string  `json:"cart_key"`
	ItemCount    int     `json:"item_count"`
	ItemSubtotal float64 `json:"item_subtotal"`
	Lines        int     `json:"lines"`
	Cleared      bool    `json:"cleared"`
}

// OrderSubmitted is emitted once the checkout endpoint accepted an order.
type OrderSubmitted struct {
	Key         string    `json:"cart_key"`
	OrderTotal  string    `json:"order_total"`
	Tax         string    `json:"tax"`
	Shipping    float64   `json:"shipping"`
	ItemCount   int       `json:"item_count"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Publisher delivers storefront notifications.
type Publisher interface {
	PublishCartChanged(ctx context.Context, ev CartChanged) error
	PublishOrderSubmitted(ctx context.Context, ev OrderSubmitted) error
}

// Fanout publishes every notification to each of its publishers in order.
// All publishers are attempted; their errors are joined.
type Fanout []Publisher

// PublishCartChanged sends ev to every publisher and joins their errors.
func (f Fanout) PublishCartChanged(ctx context.Context, ev CartChanged) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishCartChanged(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishOrderSubmitted sends ev to every publisher and joins their errors.
func (f Fanout) PublishOrderSubmitted(ctx context.Context, ev OrderSubmitted) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishOrderSubmitted(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
