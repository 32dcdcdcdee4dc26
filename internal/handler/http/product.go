package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/pagination"
)

// Catalog is the product catalog the storefront browses.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (json.RawMessage, error)
	Search(ctx context.Context, category string) (json.RawMessage, error)
}

// ProductHandler passes catalog lookups through to the catalog server.
type ProductHandler struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(catalog Catalog, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, logger: logger}
}

// SearchProducts handles GET /api/v1/products?category=...&page=&per_page=
func (h *ProductHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("category is required"), h.logger)
		return
	}

	raw, err := h.catalog.Search(r.Context(), category)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	var products []json.RawMessage
	if err := json.Unmarshal(raw, &products); err != nil {
		httputil.WriteError(w, r, fmt.Errorf("decode %s products: %w", category, err), h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, pagination.Slice(products, pagination.FromRequest(r)))
}

// GetProduct handles GET /api/v1/products/{productId}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, product)
}
