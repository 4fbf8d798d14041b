package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/httpclient"
)

// Catalog implements repository.Catalog over REST.
type Catalog struct {
	client  httpclient.Doer
	baseURL string
}

// NewCatalog creates a catalog reading baseURL/products through client.
func NewCatalog(client httpclient.Doer, baseURL string) *Catalog {
	return &Catalog{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// FetchProducts GETs /products.
func (c *Catalog) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodGet, c.baseURL+"/products", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	defer resp.Body.Close()

	if !httpclient.IsSuccess(resp.StatusCode) {
		return nil, httpclient.ParseResponseError(resp, "catalog")
	}

	var products []domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}
