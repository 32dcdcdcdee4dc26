package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/store"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

// KVCartRepository stores each cart as one JSON array in a store.Store.
type KVCartRepository struct {
	store  store.Store
	logger *slog.Logger
}

// NewKVCartRepository creates a cart repository over s.
func NewKVCartRepository(s store.Store, logger *slog.Logger) *KVCartRepository {
	return &KVCartRepository{store: s, logger: logger}
}

// Load reads and decodes the cart under key.
func (r *KVCartRepository) Load(ctx context.Context, key string) (domain.Cart, error) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.Cart{}, nil
		}
		return domain.Cart{}, fmt.Errorf("load cart %s: %w", key, err)
	}

	cart, skipped, err := domain.DecodeCart(data)
	if err != nil {
		logger.WithContext(ctx, r.logger).DebugContext(ctx, "discarding malformed cart entry",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return domain.Cart{}, nil
	}
	if skipped > 0 {
		logger.WithContext(ctx, r.logger).DebugContext(ctx, "skipped malformed cart lines",
			slog.String("key", key),
			slog.Int("skipped", skipped),
		)
	}
	return cart, nil
}

// Save encodes cart and replaces the entry under key.
func (r *KVCartRepository) Save(ctx context.Context, key string, cart domain.Cart) error {
	if err := store.SetJSON(ctx, r.store, key, cart); err != nil {
		return fmt.Errorf("save cart %s: %w", key, err)
	}
	return nil
}

// Clear removes the entry under key.
func (r *KVCartRepository) Clear(ctx context.Context, key string) error {
	if err := r.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("clear cart %s: %w", key, err)
	}
	return nil
}
