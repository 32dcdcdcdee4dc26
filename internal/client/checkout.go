package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/internal/order"
	"github.com/utafrali/storefront/pkg/httpclient"
)

// GenericFailureMessage is shown when a rejection carries no usable message.
const GenericFailureMessage = "Checkout failed. Please try again."

// ErrTransport marks a submission that never got a response.
var ErrTransport = errors.New("checkout endpoint unreachable")

// RejectedError is a non-2xx answer from the checkout endpoint.
type RejectedError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("checkout rejected with status %d: %s", e.Status, e.Message)
}

// CheckoutClient submits orders to {base}checkout.
type CheckoutClient struct {
	doer Doer
	url  string
}

// NewCheckoutClient creates a checkout client for the server at baseURL.
func NewCheckoutClient(doer Doer, baseURL string) *CheckoutClient {
	return &CheckoutClient{doer: doer, url: baseWithSlash(baseURL) + "checkout"}
}

// Submit posts sub once. A 2xx response body is returned as is. A non-2xx
// answer is a *RejectedError; no answer at all wraps ErrTransport.
func (c *CheckoutClient) Submit(ctx context.Context, sub order.Submission) (json.RawMessage, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create checkout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	if !httpclient.IsSuccess(resp.StatusCode) {
		return nil, &RejectedError{
			Status:  resp.StatusCode,
			Message: FailureMessage(body),
			Body:    body,
		}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

// FailureMessage derives one human-readable message from a rejection body:
// a string "message" field as is; any other "message" value as compact JSON;
// an "errors" array joined with ", "; a bare JSON string; otherwise the
// compact payload or raw text. An empty body gives GenericFailureMessage.
func FailureMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return GenericFailureMessage
	}

	var payload any
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return string(trimmed)
	}

	switch v := payload.(type) {
	case nil:
		return GenericFailureMessage
	case string:
		if v == "" {
			return GenericFailureMessage
		}
		return v
	case map[string]any:
		if msg, ok := v["message"]; ok && msg != nil {
			if s, ok := msg.(string); ok {
				if s != "" {
					return s
				}
			} else {
				return compact(msg)
			}
		}
		if errs, ok := v["errors"].([]any); ok && len(errs) > 0 {
			parts := make([]string, 0, len(errs))
			for _, e := range errs {
				if s, ok := e.(string); ok {
					parts = append(parts, s)
				} else {
					parts = append(parts, compact(e))
				}
			}
			return strings.Join(parts, ", ")
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}

func compact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return GenericFailureMessage
	}
	return string(data)
}
