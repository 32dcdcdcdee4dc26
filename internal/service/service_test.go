package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/order"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/store/memory"
)

// --- Mocks ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishCartChanged(ctx context.Context, ev event.CartChanged) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *mockPublisher) PublishOrderSubmitted(ctx context.Context, ev event.OrderSubmitted) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

type mockSubmitter struct {
	mock.Mock
}

func (m *mockSubmitter) Submit(ctx context.Context, sub order.Submission) (json.RawMessage, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

type mockProducts struct {
	mock.Mock
}

func (m *mockProducts) GetProduct(ctx context.Context, id string) (json.RawMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

// --- Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRepo() (*repository.KVCartRepository, *memory.Store) {
	s := memory.New()
	return repository.NewKVCartRepository(s, newTestLogger()), s
}

func seedCart(t *testing.T, s *memory.Store, key, raw string) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), key, []byte(raw)))
}
