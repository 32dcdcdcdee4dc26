package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/utafrali/storefront/internal/pricing"
	"github.com/utafrali/storefront/internal/service"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
)

// CheckoutHandler handles HTTP requests for the totals preview and order
// submission.
type CheckoutHandler struct {
	service *service.CheckoutService
	cartKey func(*http.Request) string
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, cartKey func(*http.Request) string, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: svc, cartKey: cartKey, logger: logger}
}

// SubmitResponse is returned for an accepted order.
type SubmitResponse struct {
	Status   service.Status        `json:"status"`
	Totals   pricing.DisplayTotals `json:"totals"`
	Order    json.RawMessage       `json:"order"`
	Response json.RawMessage       `json:"response,omitempty"`
}

// GetTotals handles GET /api/v1/carts/{cartKey}/totals
func (h *CheckoutHandler) GetTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.Totals(r.Context(), h.cartKey(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, totals.Display())
}

// Submit handles POST /api/v1/carts/{cartKey}/checkout. The body is the
// flat object of checkout form fields.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	fields := map[string]string{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("checkout form must be an object of string fields"), h.logger)
			return
		}
	}

	key := h.cartKey(r)
	result, err := h.service.Submit(r.Context(), key, fields)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	order, err := json.Marshal(result.Submission)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp := SubmitResponse{
		Status: h.service.Status(key),
		Totals: result.Totals.Display(),
		Order:  order,
	}
	if json.Valid(result.Response) {
		resp.Response = result.Response
	}
	httputil.WriteData(w, http.StatusCreated, resp)
}

// GetStatus handles GET /api/v1/carts/{cartKey}/checkout
func (h *CheckoutHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.service.Status(h.cartKey(r)))
}
