package repository

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
)

// CartRepository loads and persists carts by store key.
type CartRepository interface {
	// Load returns the cart under key. Absent or malformed data yields an
	// empty cart; only store failures are returned as errors.
	Load(ctx context.Context, key string) (domain.Cart, error)

	// Save replaces the cart under key.
	Save(ctx context.Context, key string, cart domain.Cart) error

	// Clear deletes the cart under key.
	Clear(ctx context.Context, key string) error
}
