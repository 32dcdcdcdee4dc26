package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, trace_id and span_id. Mount it after RequestLogging and
// Tracing. Handlers read it back with logger.FromContext.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CartKey returns middleware that reads the cart key with keyFn, records it
// in the context and adds it to the request-scoped logger. Mount it on
// routes that address a single cart.
func CartKey(keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := logger.WithCartKey(r.Context(), key)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("cart_key", key)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
