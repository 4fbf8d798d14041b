package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Product is a catalog entry as served by the product backend. Fields the
// cart does not use are ignored on decode.
type Product struct {
	ID          ID
	Name        string
	Image       string
	Price       decimal.Decimal
	Discount    decimal.Decimal // percent, 0-100
	Stock       int
	Category    string
	Description string

	// quotedID is set when the id was read as a JSON string.
	quotedID bool
}

// UnitPrice returns the discounted price a cart line captures at add time:
// price × (100 − discount) / 100, unrounded. Rounding to cents happens only
// when an amount is displayed or ordered.
func (p Product) UnitPrice() decimal.Decimal {
	return hundred.Sub(p.Discount).Mul(p.Price).Div(hundred)
}

// InStock reports whether the catalog lists at least one unit.
func (p Product) InStock() bool {
	return p.Stock > 0
}

type productJSON struct {
	ID          json.RawMessage `json:"id"`
	Name        string          `json:"name"`
	Image       string          `json:"image,omitempty"`
	Price       json.Number     `json:"price"`
	Discount    *json.Number    `json:"discount,omitempty"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category,omitempty"`
	Description string          `json:"description,omitempty"`
}

// MarshalJSON emits prices as JSON numbers.
func (p Product) MarshalJSON() ([]byte, error) {
	id, err := encodeID(p.ID, p.quotedID)
	if err != nil {
		return nil, err
	}
	out := productJSON{
		ID:          id,
		Name:        p.Name,
		Image:       p.Image,
		Price:       json.Number(p.Price.String()),
		Stock:       p.Stock,
		Category:    p.Category,
		Description: p.Description,
	}
	if !p.Discount.IsZero() {
		d := json.Number(p.Discount.String())
		out.Discount = &d
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Product) UnmarshalJSON(data []byte) error {
	var in productJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	id, quoted, err := decodeID(in.ID)
	if err != nil {
		return fmt.Errorf("product id: %w", err)
	}
	price, err := parseAmount(in.Price)
	if err != nil {
		return fmt.Errorf("product %s price: %w", id, err)
	}
	var discount decimal.Decimal
	if in.Discount != nil {
		if discount, err = parseAmount(*in.Discount); err != nil {
			return fmt.Errorf("product %s discount: %w", id, err)
		}
	}
	*p = Product{
		ID:          id,
		Name:        in.Name,
		Image:       in.Image,
		Price:       price,
		Discount:    discount,
		Stock:       in.Stock,
		Category:    in.Category,
		Description: in.Description,
		quotedID:    quoted,
	}
	return nil
}

func parseAmount(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}
