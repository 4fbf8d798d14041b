package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
)

// CatalogService serves the product catalog from a TTL cache. Concurrent
// refreshes share a single backend call.
type CatalogService struct {
	catalog repository.Catalog
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
	group   singleflight.Group

	mu        sync.RWMutex
	products  []domain.Product
	byID      map[domain.ID]domain.Product
	fetchedAt time.Time
}

// NewCatalogService creates a catalog cache in front of catalog.
func NewCatalogService(catalog repository.Catalog, ttl time.Duration, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		catalog: catalog,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Products returns every product. When a refresh fails but an older copy is
// cached, the older copy is served.
func (c *CatalogService) Products(ctx context.Context) ([]domain.Product, error) {
	c.mu.RLock()
	products, fresh := c.products, c.products != nil && c.now().Sub(c.fetchedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return products, nil
	}

	v, err, _ := c.group.Do("products", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		if products != nil {
			c.logger.WarnContext(ctx, "catalog refresh failed, serving cached products",
				slog.String("error", err.Error()),
			)
			return products, nil
		}
		return nil, err
	}
	return v.([]domain.Product), nil
}

func (c *CatalogService) refresh(ctx context.Context) ([]domain.Product, error) {
	products, err := c.catalog.FetchProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	if products == nil {
		products = []domain.Product{}
	}

	byID := make(map[domain.ID]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	c.mu.Lock()
	c.products = products
	c.byID = byID
	c.fetchedAt = c.now()
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "catalog refreshed", slog.Int("products", len(products)))
	return products, nil
}

// Product returns the product with the given id.
func (c *CatalogService) Product(ctx context.Context, id domain.ID) (domain.Product, error) {
	if _, err := c.Products(ctx); err != nil {
		return domain.Product{}, err
	}

	c.mu.RLock()
	p, ok := c.byID[id]
	c.mu.RUnlock()
	if !ok {
		return domain.Product{}, apperrors.NotFound("product", id.String())
	}
	return p, nil
}

// List returns one page of the catalog.
func (c *CatalogService) List(ctx context.Context, params pagination.Params) (pagination.Result[domain.Product], error) {
	products, err := c.Products(ctx)
	if err != nil {
		return pagination.Result[domain.Product]{}, err
	}
	return pagination.Slice(products, params), nil
}
