// Package store defines the key-value store the cart engine persists into.
// Each key holds one JSON document; writes replace the whole value.
package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is a persistent key-value store of JSON documents.
type Store interface {
	// Get returns the raw value stored under key. A missing key is reported
	// with an error wrapping errors.ErrNotFound from pkg/errors.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}
