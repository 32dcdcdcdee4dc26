package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/pricing"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

// ProductSource looks up catalog products by id.
type ProductSource interface {
	GetProduct(ctx context.Context, id string) (json.RawMessage, error)
}

// CartService implements the cart operations behind the cart page, the
// add-to-cart buttons and the header badge.
type CartService struct {
	repo      repository.CartRepository
	engine    *pricing.Engine
	products  ProductSource
	publisher event.Publisher
	logger    *slog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(
	repo repository.CartRepository,
	engine *pricing.Engine,
	products ProductSource,
	publisher event.Publisher,
	logger *slog.Logger,
) *CartService {
	return &CartService{
		repo:      repo,
		engine:    engine,
		products:  products,
		publisher: publisher,
		logger:    logger,
	}
}

// GetCart loads and normalizes the cart under key. The normalized cart is
// written back only when merging changed the number of lines or any
// quantity.
func (s *CartService) GetCart(ctx context.Context, key string) (domain.Cart, error) {
	if key == "" {
		return domain.Cart{}, errCartKeyRequired()
	}

	cart, err := s.repo.Load(ctx, key)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	normalized := domain.Normalize(cart)
	if domain.SameQuantities(cart, normalized) {
		return normalized, nil
	}

	if err := s.repo.Save(ctx, key, normalized); err != nil {
		return domain.Cart{}, fmt.Errorf("save normalized cart: %w", err)
	}
	s.publishChanged(ctx, key, normalized)

	s.logger.InfoContext(ctx, "cart normalized",
		slog.String("cart_key", key),
		slog.Int("lines_before", cart.Len()),
		slog.Int("lines_after", normalized.Len()),
	)

	return normalized, nil
}

// AddLine appends a raw product line to the cart. Duplicates are merged the
// next time the cart is read.
func (s *CartService) AddLine(ctx context.Context, key string, raw json.RawMessage) (domain.Cart, error) {
	if key == "" {
		return domain.Cart{}, errCartKeyRequired()
	}

	line, err := domain.DecodeLine(raw)
	if err != nil {
		return domain.Cart{}, apperrors.InvalidInput("cart line must be a JSON object")
	}

	cart, err := s.repo.Load(ctx, key)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	cart = domain.AddLine(cart, line)
	if err := s.repo.Save(ctx, key, cart); err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}
	s.publishChanged(ctx, key, cart)

	s.logger.InfoContext(ctx, "line added to cart",
		slog.String("cart_key", key),
		slog.String("line_key", line.Key()),
		slog.Int("quantity", line.Quantity),
	)

	return cart, nil
}

// AddProduct fetches a product from the catalog and appends it to the cart.
func (s *CartService) AddProduct(ctx context.Context, key, productID string) (domain.Cart, error) {
	if key == "" {
		return domain.Cart{}, errCartKeyRequired()
	}
	if productID == "" {
		return domain.Cart{}, apperrors.InvalidInput("product id is required")
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get product %s: %w", productID, err)
	}

	return s.AddLine(ctx, key, product)
}

// AdjustQuantity adds delta to the quantity of the line with the given dedup
// key in the normalized cart. A line that drops to zero is removed; an
// unknown line key leaves the cart unchanged.
func (s *CartService) AdjustQuantity(ctx context.Context, key, lineKey string, delta int) (domain.Cart, error) {
	if key == "" {
		return domain.Cart{}, errCartKeyRequired()
	}

	cart, err := s.repo.Load(ctx, key)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	normalized := domain.Normalize(cart)
	if normalized.FindLine(lineKey) < 0 {
		return normalized, nil
	}

	adjusted := domain.AdjustQuantity(normalized, lineKey, delta)
	if err := s.repo.Save(ctx, key, adjusted); err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}
	s.publishChanged(ctx, key, adjusted)

	s.logger.InfoContext(ctx, "cart line quantity adjusted",
		slog.String("cart_key", key),
		slog.String("line_key", lineKey),
		slog.Int("delta", delta),
	)

	return adjusted, nil
}

// RemoveLine drops every line with the given dedup key.
func (s *CartService) RemoveLine(ctx context.Context, key, lineKey string) (domain.Cart, error) {
	if key == "" {
		return domain.Cart{}, errCartKeyRequired()
	}

	cart, err := s.repo.Load(ctx, key)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}

	remaining := domain.RemoveLine(cart, lineKey)
	if remaining.Len() == cart.Len() {
		return remaining, nil
	}

	if err := s.repo.Save(ctx, key, remaining); err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}
	s.publishChanged(ctx, key, remaining)

	s.logger.InfoContext(ctx, "line removed from cart",
		slog.String("cart_key", key),
		slog.String("line_key", lineKey),
	)

	return remaining, nil
}

// Clear deletes the cart entry.
func (s *CartService) Clear(ctx context.Context, key string) error {
	if key == "" {
		return errCartKeyRequired()
	}

	if err := s.repo.Clear(ctx, key); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.publishCleared(ctx, key)

	s.logger.InfoContext(ctx, "cart cleared", slog.String("cart_key", key))
	return nil
}

// Summary returns the item count and subtotal of the normalized cart.
func (s *CartService) Summary(ctx context.Context, key string) (pricing.ItemSummary, error) {
	cart, err := s.GetCart(ctx, key)
	if err != nil {
		return pricing.ItemSummary{}, err
	}
	return s.engine.ItemSummary(cart), nil
}

func (s *CartService) publishChanged(ctx context.Context, key string, cart domain.Cart) {
	summary := s.engine.ItemSummary(cart)
	publishCartChanged(ctx, s.publisher, s.logger, event.CartChanged{
		Key:          key,
		ItemCount:    summary.ItemCount,
		ItemSubtotal: summary.ItemSubtotal,
		Lines:        cart.Len(),
	})
}

func (s *CartService) publishCleared(ctx context.Context, key string) {
	publishCartChanged(ctx, s.publisher, s.logger, event.CartChanged{Key: key, Cleared: true})
}

// publishCartChanged logs publish failures instead of returning them; the
// cart write has already happened.
func publishCartChanged(ctx context.Context, p event.Publisher, l *slog.Logger, ev event.CartChanged) {
	if p == nil {
		return
	}
	if err := p.PublishCartChanged(ctx, ev); err != nil {
		logger.WithContext(ctx, l).ErrorContext(ctx, "failed to publish cart.changed event",
			slog.String("cart_key", ev.Key),
			slog.String("error", err.Error()),
		)
	}
}

func errCartKeyRequired() error {
	return apperrors.InvalidInput("cart key is required")
}
