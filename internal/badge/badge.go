// Package badge tracks the header cart badge: the item count shown per cart
// and how it changed since the previous update.
package badge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/utafrali/storefront/internal/event"
)

// Transition describes how the badge changed on its last update.
type Transition string

const (
	TransitionNone      Transition = "none"
	TransitionAppear    Transition = "appear"
	TransitionBump      Transition = "bump"
	TransitionDisappear Transition = "disappear"
)

// View is the badge state of one cart.
type View struct {
	Key        string     `json:"cart_key"`
	Count      int        `json:"count"`
	Visible    bool       `json:"visible"`
	Transition Transition `json:"transition"`
}

// Badge holds the latest View of every cart with items in it.
type Badge struct {
	mu     sync.RWMutex
	views  map[string]View
	logger *slog.Logger
}

// New creates an empty badge tracker.
func New(logger *slog.Logger) *Badge {
	return &Badge{views: make(map[string]View), logger: logger}
}

// Observe applies a cart notification and returns the resulting view.
func (b *Badge) Observe(ev event.CartChanged) View {
	count := ev.ItemCount
	if ev.Cleared || count < 0 {
		count = 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.apply(ev.Key, count)
}

// View returns the current view of key. Unknown carts are hidden.
func (b *Badge) View(key string) View {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if v, ok := b.views[key]; ok {
		return v
	}
	return View{Key: key, Transition: TransitionNone}
}

// Reconcile brings the view of key in line with count, as read from the
// cart itself. A matching view is returned unchanged.
func (b *Badge) Reconcile(key string, count int) View {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.views[key]; ok && v.Count == count {
		return v
	}
	return b.apply(key, max(count, 0))
}

// apply records count for key. Hidden carts are not kept; their next view
// is the zero view.
func (b *Badge) apply(key string, count int) View {
	prev := b.views[key].Count
	v := View{Key: key, Count: count, Visible: count > 0, Transition: transition(prev, count)}
	if count == 0 {
		delete(b.views, key)
		return v
	}
	b.views[key] = v
	return v
}

func transition(prev, next int) Transition {
	switch {
	case prev == 0 && next > 0:
		return TransitionAppear
	case prev > 0 && next == 0:
		return TransitionDisappear
	case prev != next:
		return TransitionBump
	default:
		return TransitionNone
	}
}

// Run observes notifications from ch until ctx is done or ch is closed.
func (b *Badge) Run(ctx context.Context, ch <-chan event.CartChanged) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			v := b.Observe(ev)
			b.logger.DebugContext(ctx, "cart badge updated",
				slog.String("cart_key", v.Key),
				slog.Int("count", v.Count),
				slog.String("transition", string(v.Transition)),
			)
		}
	}
}
