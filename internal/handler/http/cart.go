package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/badge"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/pricing"
	"github.com/utafrali/storefront/internal/service"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service *service.CartService
	engine  *pricing.Engine
	badge   *badge.Badge
	cartKey func(*http.Request) string
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(
	svc *service.CartService,
	engine *pricing.Engine,
	b *badge.Badge,
	cartKey func(*http.Request) string,
	logger *slog.Logger,
) *CartHandler {
	return &CartHandler{
		service: svc,
		engine:  engine,
		badge:   b,
		cartKey: cartKey,
		logger:  logger,
	}
}

// --- Request DTOs ---

// AdjustQuantityRequest is the JSON request body for changing a line's
// quantity by a signed step.
type AdjustQuantityRequest struct {
	Key   string `json:"key" validate:"required"`
	Delta int    `json:"delta" validate:"ne=0"`
}

// --- Response DTOs ---

// LineResponse is one cart line. Key addresses the line in quantity and
// removal requests; Item holds the persisted line attributes.
type LineResponse struct {
	Key  string          `json:"key"`
	Item domain.CartLine `json:"item"`
}

// CartResponse is the JSON representation of a cart.
type CartResponse struct {
	Key          string         `json:"cart_key"`
	Lines        []LineResponse `json:"lines"`
	ItemCount    int            `json:"item_count"`
	ItemSubtotal string         `json:"item_subtotal"`
}

func (h *CartHandler) cartResponse(key string, cart domain.Cart) CartResponse {
	lines := make([]LineResponse, 0, cart.Len())
	for _, line := range cart.Lines {
		lines = append(lines, LineResponse{Key: line.Key(), Item: line})
	}
	summary := h.engine.ItemSummary(cart)
	return CartResponse{
		Key:          key,
		Lines:        lines,
		ItemCount:    summary.ItemCount,
		ItemSubtotal: pricing.FormatAmount(summary.ItemSubtotal),
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/carts/{cartKey}
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	key := h.cartKey(r)
	cart, err := h.service.GetCart(r.Context(), key)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, h.cartResponse(key, cart))
}

// ClearCart handles DELETE /api/v1/carts/{cartKey}
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context(), h.cartKey(r)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddLine handles POST /api/v1/carts/{cartKey}/lines. The body is the line
// object as the product page holds it.
func (h *CartHandler) AddLine(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	key := h.cartKey(r)
	cart, err := h.service.AddLine(r.Context(), key, json.RawMessage(body))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, h.cartResponse(key, cart))
}

// AddProduct handles POST /api/v1/carts/{cartKey}/products/{productId}
func (h *CartHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	key := h.cartKey(r)
	cart, err := h.service.AddProduct(r.Context(), key, chi.URLParam(r, "productId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusCreated, h.cartResponse(key, cart))
}

// AdjustQuantity handles PATCH /api/v1/carts/{cartKey}/lines/quantity
func (h *CartHandler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	var req AdjustQuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	key := h.cartKey(r)
	cart, err := h.service.AdjustQuantity(r.Context(), key, req.Key, req.Delta)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, h.cartResponse(key, cart))
}

// RemoveLine handles DELETE /api/v1/carts/{cartKey}/lines?key=...
func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	lineKey := r.URL.Query().Get("key")
	if lineKey == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("line key is required"), h.logger)
		return
	}

	key := h.cartKey(r)
	cart, err := h.service.RemoveLine(r.Context(), key, lineKey)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, h.cartResponse(key, cart))
}

// GetBadge handles GET /api/v1/carts/{cartKey}/badge
func (h *CartHandler) GetBadge(w http.ResponseWriter, r *http.Request) {
	key := h.cartKey(r)
	summary, err := h.service.Summary(r.Context(), key)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, h.badge.Reconcile(key, summary.ItemCount))
}
