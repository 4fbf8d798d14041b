package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/database"
)

// Catalog implements repository.Catalog over the products table.
type Catalog struct {
	db database.DBTX
}

// NewCatalog creates a new PostgreSQL-backed catalog.
func NewCatalog(db database.DBTX) *Catalog {
	return &Catalog{db: db}
}

// FetchProducts returns every product ordered by id.
func (c *Catalog) FetchProducts(ctx context.Context) (products []domain.Product, err error) {
	query := `
		SELECT id, name, image, price::text, discount::text, stock, category, description
		FROM products
		ORDER BY id`

	ctx, end := database.TraceQuery(ctx, database.SystemPostgres, "FetchProducts", query)
	defer func() { end(err) }()

	rows, err := c.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p               domain.Product
			id              string
			price, discount string
		)
		if err := rows.Scan(&id, &p.Name, &p.Image, &price, &discount, &p.Stock, &p.Category, &p.Description); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.ID = domain.ID(id)
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price of product %s: %w", id, err)
		}
		if p.Discount, err = decimal.NewFromString(discount); err != nil {
			return nil, fmt.Errorf("parse discount of product %s: %w", id, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}
