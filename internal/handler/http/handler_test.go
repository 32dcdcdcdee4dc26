package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/badge"
	"github.com/utafrali/storefront/internal/client"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/order"
	"github.com/utafrali/storefront/internal/pricing"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/service"
	"github.com/utafrali/storefront/internal/store/memory"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/pagination"
)

// ============================================================================
// Test helpers
// ============================================================================

const tentLine = `{"Id":"880RR","Name":"A Tent","FinalPrice":10,"Quantity":1,"Brand":"Trailhead"}`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// upstream fakes the storefront server: the product catalog and the
// checkout endpoint.
type upstream struct {
	server         *httptest.Server
	checkoutStatus int
	checkoutBody   string
	received       []byte
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{checkoutStatus: http.StatusOK, checkoutBody: `{"orderId":"SO-1001"}`}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /product/880RR", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Result":` + tentLine + `}`))
	})
	mux.HandleFunc("GET /product/gone", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Result":null}`))
	})
	mux.HandleFunc("GET /products/search/tents", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Result":[` + tentLine + `]}`))
	})
	mux.HandleFunc("POST /checkout", func(w http.ResponseWriter, r *http.Request) {
		u.received, _ = io.ReadAll(r.Body)
		w.WriteHeader(u.checkoutStatus)
		_, _ = w.Write([]byte(u.checkoutBody))
	})

	u.server = httptest.NewServer(mux)
	t.Cleanup(u.server.Close)
	return u
}

type fixture struct {
	router   http.Handler
	store    *memory.Store
	upstream *upstream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := testLogger()
	up := newUpstream(t)

	doer := httpclient.New(httpclient.Config{
		Timeout:         5 * time.Second,
		MaxRetries:      0,
		RetryWaitMin:    time.Millisecond,
		RetryWaitMax:    time.Millisecond,
		MaxConnsPerHost: 4,
	})
	catalog := client.NewCatalogClient(doer, up.server.URL)
	checkout := client.NewCheckoutClient(doer, up.server.URL)

	st := memory.New()
	repo := repository.NewKVCartRepository(st, logger)
	engine := pricing.NewEngine(pricing.DefaultRates())
	clock := func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }

	router := NewRouter(RouterDeps{
		CartService:     service.NewCartService(repo, engine, catalog, nil, logger),
		CheckoutService: service.NewCheckoutService(repo, engine, order.NewAssemblerWithClock(clock), checkout, nil, logger),
		Engine:          engine,
		Catalog:         catalog,
		Badge:           badge.New(logger),
		Health:          health.NewHandler(),
		CORS:            middleware.DefaultCORSConfig(),
		DefaultCartKey:  "so-cart",
	}, logger)

	return &fixture{router: router, store: st, upstream: up}
}

func (f *fixture) seed(t *testing.T, key string, lines ...string) {
	t.Helper()
	data := "[" + strings.Join(lines, ",") + "]"
	require.NoError(t, f.store.Set(context.Background(), key, []byte(data)))
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// decodeResponse reads the response body into the standard Response struct
// and re-decodes its data into dst when dst is non-nil.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, dst any) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	if dst != nil {
		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, dst))
	}
	return resp
}

type lineBody struct {
	Key  string          `json:"key"`
	Item json.RawMessage `json:"item"`
}

type cartBody struct {
	Key          string     `json:"cart_key"`
	Lines        []lineBody `json:"lines"`
	ItemCount    int        `json:"item_count"`
	ItemSubtotal string     `json:"item_subtotal"`
}

// lineKey reads the key of the only line of key's cart.
func (f *fixture) lineKey(t *testing.T, key string) string {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/api/v1/carts/"+key, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body cartBody
	decodeResponse(t, rec, &body)
	require.Len(t, body.Lines, 1)
	return body.Lines[0].Key
}

// ============================================================================
// Cart
// ============================================================================

func TestGetCart_Absent(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/carts/guest-1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body cartBody
	decodeResponse(t, rec, &body)
	assert.Equal(t, "guest-1", body.Key)
	assert.NotNil(t, body.Lines)
	assert.Empty(t, body.Lines)
	assert.Zero(t, body.ItemCount)
	assert.Equal(t, "0.00", body.ItemSubtotal)
}

func TestGetCart_MergesDuplicates(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "guest-1", tentLine, `{"Id":"880RR","Name":"A Tent","FinalPrice":10,"Quantity":2}`)

	rec := f.do(t, http.MethodGet, "/api/v1/carts/guest-1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body cartBody
	decodeResponse(t, rec, &body)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, "880RR|", body.Lines[0].Key)
	assert.JSONEq(t, `{"Id":"880RR","Name":"A Tent","FinalPrice":10,"Quantity":3,"Brand":"Trailhead"}`, string(body.Lines[0].Item))
	assert.Equal(t, 3, body.ItemCount)
	assert.Equal(t, "30.00", body.ItemSubtotal)

	stored, err := f.store.Get(context.Background(), "guest-1")
	require.NoError(t, err)
	cart, _, err := domain.DecodeCart(stored)
	require.NoError(t, err)
	assert.Equal(t, 1, cart.Len())
}

func TestGetCart_MalformedEntryIsEmpty(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(context.Background(), "guest-1", []byte(`{"not":"an array"}`)))

	rec := f.do(t, http.MethodGet, "/api/v1/carts/guest-1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body cartBody
	decodeResponse(t, rec, &body)
	assert.Empty(t, body.Lines)
}

func TestDefaultCartRoutes(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "so-cart", tentLine)

	rec := f.do(t, http.MethodGet, "/api/v1/cart", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body cartBody
	decodeResponse(t, rec, &body)
	assert.Equal(t, "so-cart", body.Key)
	assert.Equal(t, 1, body.ItemCount)
}

func TestAddLine(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "guest-1", tentLine)

	rec := f.do(t, http.MethodPost, "/api/v1/carts/guest-1/lines", tentLine)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var body cartBody
	decodeResponse(t, rec, &body)
	assert.Len(t, body.Lines, 2, "lines are appended, merging happens on read")
	assert.Equal(t, 2, body.ItemCount)
}

func TestAddLine_NotAnObject(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/carts/guest-1/lines", `[1,2]`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestAddLine_WrongContentType(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/carts/guest-1/lines", strings.NewReader(tentLine))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestAddProduct(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/carts/guest-1/products/880RR", "")

	assert.Equal(t, http.StatusCreated, rec.Code)
	var body cartBody
	decodeResponse(t, rec, &body)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, "10.00", body.ItemSubtotal)
}

func TestAddProduct_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/carts/guest-1/products/gone", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	_, err := f.store.Get(context.Background(), "guest-1")
	assert.Error(t, err, "nothing was written")
}

func adjustBody(t *testing.T, lineKey string, delta int) string {
	t.Helper()
	data, err := json.Marshal(AdjustQuantityRequest{Key: lineKey, Delta: delta})
	require.NoError(t, err)
	return string(data)
}

func TestAdjustQuantity(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "guest-1", `{"Id":"880RR","Name":"A Tent","FinalPrice":10,"Quantity":2}`)
	lineKey := f.lineKey(t, "guest-1")

	rec := f.do(t, http.MethodPatch, "/api/v1/carts/guest-1/lines/quantity", adjustBody(t, lineKey, -1))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body cartBody
	decodeResponse(t, rec, &body)
	assert.Equal(t, 1, body.ItemCount)

	rec = f.do(t, http.MethodPatch, "/api/v1/carts/guest-1/lines/quantity", adjustBody(t, lineKey, -1))
	decodeResponse(t, rec, &body)
	assert.Empty(t, body.Lines, "a line dropping to zero is removed")
}

func TestAdjustQuantity_KeyFromResponse(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty id falls through to sku", `{"Id":"","SKU":"SKU-9","Name":"A Tent","FinalPrice":10,"Quantity":2}`},
		{"numeric id", `{"Id":1.0,"Name":"A Tent","FinalPrice":10,"Quantity":2}`},
		{"variant", `{"Id":"880RR","Name":"A Tent","FinalPrice":10,"Quantity":2,"Colors":[{"ColorName":"Pale Pumpkin"}]}`},
		{"name only", `{"Name":"A Tent","FinalPrice":10,"Quantity":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "guest-1", tt.line)
			lineKey := f.lineKey(t, "guest-1")

			rec := f.do(t, http.MethodPatch, "/api/v1/carts/guest-1/lines/quantity", adjustBody(t, lineKey, -1))

			require.Equal(t, http.StatusOK, rec.Code)
			var body cartBody
			decodeResponse(t, rec, &body)
			require.Len(t, body.Lines, 1)
			assert.Equal(t, lineKey, body.Lines[0].Key)
			assert.Equal(t, 1, body.ItemCount)
		})
	}
}

func TestAdjustQuantity_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing key", `{"delta":1}`},
		{"zero delta", `{"key":"880RR|","delta":0}`},
		{"not json", `{oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPatch, "/api/v1/carts/guest-1/lines/quantity", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRemoveLine(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "guest-1", tentLine, `{"Id":"","SKU":"B2","Name":"Stove","FinalPrice":5}`)

	rec := f.do(t, http.MethodGet, "/api/v1/carts/guest-1", "")
	var body cartBody
	decodeResponse(t, rec, &body)
	require.Len(t, body.Lines, 2)
	stoveKey := body.Lines[1].Key

	rec = f.do(t, http.MethodDelete, "/api/v1/carts/guest-1/lines?key="+url.QueryEscape(stoveKey), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	decodeResponse(t, rec, &body)
	require.Len(t, body.Lines, 1)
	assert.Equal(t, "10.00", body.ItemSubtotal)
}

func TestRemoveLine_MissingKey(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/v1/carts/guest-1/lines", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearCart(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "guest-1", tentLine)

	rec := f.do(t, http.MethodDelete, "/api/v1/carts/guest-1", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, f.store.Len())
}

func TestGetBadge(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/carts/guest-1/badge", "")
	var view badge.View
	decodeResponse(t, rec, &view)
	assert.False(t, view.Visible)
	assert.Equal(t, badge.TransitionNone, view.Transition)

	f.seed(t, "guest-1", tentLine, tentLine)
	rec = f.do(t, http.MethodGet, "/api/v1/carts/guest-1/badge", "")
	decodeResponse(t, rec, &view)
	assert.True(t, view.Visible)
	assert.Equal(t, 2, view.Count)
	assert.Equal(t, badge.TransitionAppear, view.Transition)
}

// ============================================================================
// Totals and checkout
// ============================================================================

func TestGetTotals(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "guest-1", tentLine, `{"Id":"880RR","Name":"A Tent","FinalPrice":10,"Quantity":2}`)

	rec := f.do(t, http.MethodGet, "/api/v1/carts/guest-1/totals", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var totals pricing.DisplayTotals
	decodeResponse(t, rec, &totals)
	assert.Equal(t, pricing.DisplayTotals{
		ItemCount:    3,
		ItemSubtotal: "30.00",
		Tax:          "1.80",
		Shipping:     "14.00",
		OrderTotal:   "45.80",
	}, totals)
}

func TestSubmitCheckout_Success(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "guest-1", tentLine, `{"Id":"880RR","Name":"A Tent","FinalPrice":10,"Quantity":2}`)

	rec := f.do(t, http.MethodPost, "/api/v1/carts/guest-1/checkout", `{"firstName":"Ada","zip":"30301"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Status   service.Status        `json:"status"`
		Totals   pricing.DisplayTotals `json:"totals"`
		Order    map[string]any        `json:"order"`
		Response map[string]any        `json:"response"`
	}
	decodeResponse(t, rec, &body)
	assert.Equal(t, service.StateSucceeded, body.Status.State)
	assert.Equal(t, "45.80", body.Totals.OrderTotal)
	assert.Equal(t, "SO-1001", body.Response["orderId"])
	assert.Equal(t, "Ada", body.Order["firstName"])

	var sent map[string]any
	require.NoError(t, json.Unmarshal(f.upstream.received, &sent))
	assert.Equal(t, "45.80", sent["orderTotal"])
	assert.Equal(t, "1.80", sent["tax"])
	assert.Equal(t, 14.0, sent["shipping"])
	assert.Equal(t, "2026-03-14T09:00:00.000Z", sent["orderDate"])
	assert.Equal(t, "30301", sent["zip"])

	assert.Zero(t, f.store.Len(), "cart is cleared after an accepted order")

	rec = f.do(t, http.MethodGet, "/api/v1/carts/guest-1/checkout", "")
	var status service.Status
	decodeResponse(t, rec, &status)
	assert.Equal(t, service.StateSucceeded, status.State)
}

func TestSubmitCheckout_Rejected(t *testing.T) {
	f := newFixture(t)
	f.upstream.checkoutStatus = http.StatusBadRequest
	f.upstream.checkoutBody = `{"message":"Card declined"}`
	f.seed(t, "guest-1", tentLine)

	rec := f.do(t, http.MethodPost, "/api/v1/carts/guest-1/checkout", `{"card":"4111"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeResponse(t, rec, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Card declined", resp.Error.Message)
	assert.Equal(t, 1, f.store.Len(), "cart is kept")

	rec = f.do(t, http.MethodGet, "/api/v1/carts/guest-1/checkout", "")
	var status service.Status
	decodeResponse(t, rec, &status)
	assert.Equal(t, service.StateFailed, status.State)
	assert.Equal(t, "Card declined", status.Message)
}

func TestSubmitCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/carts/guest-1/checkout", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, service.EmptyCartMessage, resp.Error.Message)
	assert.Nil(t, f.upstream.received, "nothing is sent for an empty cart")
}

func TestSubmitCheckout_NonStringFields(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "guest-1", tentLine)

	rec := f.do(t, http.MethodPost, "/api/v1/carts/guest-1/checkout", `{"zip":30301}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitCheckout_Unreachable(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "guest-1", tentLine)
	f.upstream.server.Close()

	rec := f.do(t, http.MethodPost, "/api/v1/carts/guest-1/checkout", `{}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeResponse(t, rec, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, service.TransportFailureMessage, resp.Error.Message)
	assert.Equal(t, 1, f.store.Len())
}

func TestGetCheckoutStatus_Idle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/carts/guest-1/checkout", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var status service.Status
	decodeResponse(t, rec, &status)
	assert.Equal(t, service.StateIdle, status.State)
	assert.Equal(t, "guest-1", status.Key)
}

// ============================================================================
// Products
// ============================================================================

func TestSearchProducts(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/products?category=tents", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var page pagination.Result[map[string]any]
	decodeResponse(t, rec, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "880RR", page.Items[0]["Id"])
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 1, page.Page)
}

func TestSearchProducts_PastLastPage(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/products?category=tents&page=2&per_page=1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	var page pagination.Result[map[string]any]
	decodeResponse(t, rec, &page)
	assert.Empty(t, page.Items)
	assert.True(t, page.HasPrev)
}

func TestSearchProducts_MissingCategory(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/products", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/products/880RR", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/products/gone", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================================================
// Ambient routes
// ============================================================================

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/ready", "").Code)

	f.do(t, http.MethodGet, "/api/v1/carts/guest-1", "")
	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_http_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/carts/guest-1/lines", http.NoBody)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorrelationIDHeader(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/carts/guest-1", http.NoBody)
	req.Header.Set(middleware.CorrelationIDHeader, "req-42")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(middleware.CorrelationIDHeader))
}
