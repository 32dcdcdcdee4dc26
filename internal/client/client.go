// Package client holds the HTTP clients for the storefront's remote
// collaborators: the checkout endpoint and the product catalog.
package client

import (
	"context"
	"net/http"
	"strings"
)

// Doer sends a request. *httpclient.Client and *httpclient.CircuitBreakerClient
// both satisfy it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// maxResponseBody bounds how much of any response body is read.
const maxResponseBody = 1 << 20

// baseWithSlash makes sure relative paths can be appended to base.
func baseWithSlash(base string) string {
	if strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}
