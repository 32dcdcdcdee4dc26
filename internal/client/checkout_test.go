package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/order"
	"github.com/utafrali/storefront/pkg/httpclient"
)

func testDoer() *httpclient.Client {
	return httpclient.New(httpclient.Config{Timeout: 5 * time.Second, MaxRetries: 2, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond, MaxConnsPerHost: 4})
}

func sampleSubmission() order.Submission {
	return order.Submission{
		Fields:     map[string]string{"fname": "Ada"},
		OrderDate:  time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		OrderTotal: "45.80",
		Tax:        "1.80",
		Shipping:   14,
		Items:      []order.Item{{ID: "A", Name: "Tent", Price: 10, Quantity: 3}},
	}
}

// ---------------------------------------------------------------------------
// Submit
// ---------------------------------------------------------------------------

func TestSubmit_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Ada", body["fname"])
		assert.Equal(t, "45.80", body["orderTotal"])
		assert.Equal(t, "2026-03-14T09:00:00.000Z", body["orderDate"])

		_, _ = w.Write([]byte(`{"orderId":"ord-1","message":"Order Placed"}`))
	}))
	defer server.Close()

	resp, err := NewCheckoutClient(testDoer(), server.URL+"/").Submit(context.Background(), sampleSubmission())
	require.NoError(t, err)
	assert.JSONEq(t, `{"orderId":"ord-1","message":"Order Placed"}`, string(resp))
}

func TestSubmit_BaseURLWithoutSlash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/checkout", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	resp, err := NewCheckoutClient(testDoer(), server.URL+"/api").Submit(context.Background(), sampleSubmission())
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestSubmit_RejectedCardDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Card declined"}`))
	}))
	defer server.Close()

	_, err := NewCheckoutClient(testDoer(), server.URL).Submit(context.Background(), sampleSubmission())

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusBadRequest, rejected.Status)
	assert.Equal(t, "Card declined", rejected.Message)
	assert.NotErrorIs(t, err, ErrTransport)
}

func TestSubmit_NotRetriedOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewCheckoutClient(testDoer(), server.URL).Submit(context.Background(), sampleSubmission())

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, GenericFailureMessage, rejected.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmit_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewCheckoutClient(testDoer(), url).Submit(context.Background(), sampleSubmission())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestSubmit_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("request should not reach the server")
	}))
	defer server.Close()

	_, err := NewCheckoutClient(testDoer(), server.URL).Submit(ctx, sampleSubmission())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
}

type stubDoer struct {
	resp *http.Response
	err  error
}

func (s stubDoer) Do(context.Context, *http.Request) (*http.Response, error) { return s.resp, s.err }

func TestSubmit_BreakerOpenIsTransport(t *testing.T) {
	_, err := NewCheckoutClient(stubDoer{err: httpclient.ErrCircuitOpen}, "http://checkout.invalid/").
		Submit(context.Background(), sampleSubmission())
	assert.ErrorIs(t, err, ErrTransport)
	assert.True(t, errors.Is(err, httpclient.ErrCircuitOpen))
}

// ---------------------------------------------------------------------------
// FailureMessage
// ---------------------------------------------------------------------------

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message string", `{"message":"Card declined"}`, "Card declined"},
		{"message object", `{"message": {"cardNumber": "Invalid Card Number", "expiration": "Card expired"}}`, `{"cardNumber":"Invalid Card Number","expiration":"Card expired"}`},
		{"errors array", `{"errors":["Invalid zip","Missing street"]}`, "Invalid zip, Missing street"},
		{"errors mixed", `{"errors":["Invalid zip",{"field":"exp"}]}`, `Invalid zip, {"field":"exp"}`},
		{"empty message falls to payload", `{"message":"","code":7}`, `{"message":"","code":7}`},
		{"bare string", `"Out of stock"`, "Out of stock"},
		{"other object", `{ "code" : 42 }`, `{"code":42}`},
		{"array", `[1, 2]`, `[1,2]`},
		{"plain text", `Bad Gateway`, "Bad Gateway"},
		{"empty", ``, GenericFailureMessage},
		{"whitespace", "  \n", GenericFailureMessage},
		{"null", `null`, GenericFailureMessage},
		{"empty string", `""`, GenericFailureMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FailureMessage([]byte(tt.body)))
		})
	}
}

func TestRejectedError_Error(t *testing.T) {
	err := &RejectedError{Status: 400, Message: "Card declined"}
	assert.Equal(t, "checkout rejected with status 400: Card declined", err.Error())
}

func TestSubmit_ReadsResponseOnce(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(jsonReader(`{"ok":true}`))}
	got, err := NewCheckoutClient(stubDoer{resp: resp}, "http://checkout.invalid").Submit(context.Background(), sampleSubmission())
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(got))
}
