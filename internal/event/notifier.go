package event

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultSubscriptionBuffer is the channel capacity used when Subscribe is
// given a non-positive buffer.
const DefaultSubscriptionBuffer = 64

// Notifier fans CartChanged notifications out to in-process subscribers.
// Delivery never blocks the publisher: a subscriber whose buffer is full
// misses the notification.
type Notifier struct {
	mu     sync.RWMutex
	subs   map[int]chan CartChanged
	next   int
	closed bool
	logger *slog.Logger
}

// NewNotifier creates a notifier without subscribers.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{subs: make(map[int]chan CartChanged), logger: logger}
}

// Subscribe registers a subscriber. The returned cancel func unregisters it
// and closes the channel; calling it more than once is safe.
func (n *Notifier) Subscribe(buffer int) (<-chan CartChanged, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	ch := make(chan CartChanged, buffer)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return ch, func() {}
	}
	id := n.next
	n.next++
	n.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() { n.unsubscribe(id) })
	}
}

func (n *Notifier) unsubscribe(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ch, ok := n.subs[id]; ok {
		delete(n.subs, id)
		close(ch)
	}
}

// PublishCartChanged delivers ev to every subscriber with buffer space.
func (n *Notifier) PublishCartChanged(ctx context.Context, ev CartChanged) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
			n.logger.WarnContext(ctx, "dropping cart notification for slow subscriber",
				slog.String("cart_key", ev.Key),
			)
		}
	}
	return nil
}

// PublishOrderSubmitted is a no-op; in-process subscribers only follow carts.
func (n *Notifier) PublishOrderSubmitted(context.Context, OrderSubmitted) error {
	return nil
}

// Subscribers returns the number of active subscriptions.
func (n *Notifier) Subscribers() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs)
}

// Close closes every subscription. Later subscriptions are closed at once.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, ch := range n.subs {
		delete(n.subs, id)
		close(ch)
	}
	n.closed = true
}
