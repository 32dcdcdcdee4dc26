package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/internal/badge"
	"github.com/utafrali/storefront/internal/pricing"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// RouterDeps holds everything the router serves.
type RouterDeps struct {
	CartService     *service.CartService
	CheckoutService *service.CheckoutService
	Engine          *pricing.Engine
	Catalog         Catalog
	Badge           *badge.Badge
	Health          *health.Handler
	CORS            middleware.CORSConfig
	// DefaultCartKey is the cart served under /api/v1/cart.
	DefaultCartKey string
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(deps RouterDeps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("storefront"))
	r.Use(middleware.Tracing("storefront"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(deps.CORS))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	cartKey := cartKeyFunc(deps.DefaultCartKey)
	cartHandler := NewCartHandler(deps.CartService, deps.Engine, deps.Badge, cartKey, logger)
	checkoutHandler := NewCheckoutHandler(deps.CheckoutService, cartKey, logger)
	productHandler := NewProductHandler(deps.Catalog, logger)

	cartRoutes := func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.CartKey(cartKey))

		r.Get("/", cartHandler.GetCart)
		r.Delete("/", cartHandler.ClearCart)

		r.Post("/lines", cartHandler.AddLine)
		r.Patch("/lines/quantity", cartHandler.AdjustQuantity)
		r.Delete("/lines", cartHandler.RemoveLine)
		r.Post("/products/{productId}", cartHandler.AddProduct)
		r.Get("/badge", cartHandler.GetBadge)

		r.Get("/totals", checkoutHandler.GetTotals)
		r.Post("/checkout", checkoutHandler.Submit)
		r.Get("/checkout", checkoutHandler.GetStatus)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", productHandler.SearchProducts)
		r.Get("/products/{productId}", productHandler.GetProduct)

		r.Route("/carts/{cartKey}", cartRoutes)
		r.Route("/cart", cartRoutes)
	})

	return r
}
