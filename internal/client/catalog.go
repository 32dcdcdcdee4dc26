package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httpclient"
)

// CatalogClient reads products from the storefront catalog API, which wraps
// every answer as {"Result": ...}.
type CatalogClient struct {
	doer Doer
	base string
}

// NewCatalogClient creates a catalog client for the server at baseURL.
func NewCatalogClient(doer Doer, baseURL string) *CatalogClient {
	return &CatalogClient{doer: doer, base: baseWithSlash(baseURL)}
}

type resultEnvelope struct {
	Result json.RawMessage `json:"Result"`
}

// GetProduct returns the product object with the given id.
func (c *CatalogClient) GetProduct(ctx context.Context, id string) (json.RawMessage, error) {
	result, err := c.get(ctx, "product/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return nil, apperrors.NotFound("product", id)
	}
	return result, nil
}

// Search returns the products listed under category. A category without
// products yields an empty JSON array.
func (c *CatalogClient) Search(ctx context.Context, category string) (json.RawMessage, error) {
	result, err := c.get(ctx, "products/search/"+url.PathEscape(category))
	if err != nil {
		return nil, err
	}
	if len(result) == 0 || string(result) == "null" {
		return json.RawMessage("[]"), nil
	}
	return result, nil
}

func (c *CatalogClient) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		unavailable := apperrors.ServiceUnavailable("Unable to reach the product catalog.")
		unavailable.Err = fmt.Errorf("%w: %w", apperrors.ErrServiceUnavail, err)
		return nil, unavailable
	}
	if !httpclient.IsSuccess(resp.StatusCode) {
		return nil, httpclient.ParseResponseError(resp, "catalog")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read catalog response: %w", err)
	}

	var env resultEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	return env.Result, nil
}
