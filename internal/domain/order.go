package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Order pricing.
var (
	ShippingFlatRate = decimal.RequireFromString("5.99")
	TaxRate          = decimal.RequireFromString("0.08")
)

// OrderStatusPending is the status of a freshly placed order.
const OrderStatusPending = "pending"

// Address is a shipping address stored on the user record.
type Address struct {
	ID       ID     `json:"id"`
	FullName string `json:"fullName"`
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
	Phone    string `json:"phone,omitempty"`
}

// Order is appended to the user record's orders field at checkout.
type Order struct {
	ID              string
	Items           []LineItem
	ShippingAddress Address
	PaymentMethod   string
	Subtotal        decimal.Decimal
	Shipping        decimal.Decimal
	Tax             decimal.Decimal
	Total           decimal.Decimal
	Status          string
	CreatedAt       time.Time
}

// OrderTotals holds the amounts charged for a cart.
type OrderTotals struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals prices items: flat shipping for a non-empty cart and tax on
// the subtotal. Amounts are rounded to cents.
func ComputeTotals(items []LineItem) OrderTotals {
	subtotal := decimal.Zero
	for _, li := range items {
		subtotal = subtotal.Add(li.Subtotal())
	}
	shipping := decimal.Zero
	if len(items) > 0 {
		shipping = ShippingFlatRate
	}
	tax := subtotal.Mul(TaxRate).Round(2)
	subtotal = subtotal.Round(2)
	return OrderTotals{
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax),
	}
}

type orderJSON struct {
	ID              string      `json:"id"`
	Items           []LineItem  `json:"items"`
	ShippingAddress Address     `json:"shippingAddress"`
	PaymentMethod   string      `json:"paymentMethod"`
	Subtotal        json.Number `json:"subtotal"`
	Shipping        json.Number `json:"shipping"`
	Tax             json.Number `json:"tax"`
	Total           json.Number `json:"total"`
	Status          string      `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// MarshalJSON writes the order in the shape stored on the user record.
func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderJSON{
		ID:              o.ID,
		Items:           CloneItems(o.Items),
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		Subtotal:        json.Number(o.Subtotal.StringFixed(2)),
		Shipping:        json.Number(o.Shipping.StringFixed(2)),
		Tax:             json.Number(o.Tax.StringFixed(2)),
		Total:           json.Number(o.Total.StringFixed(2)),
		Status:          o.Status,
		CreatedAt:       o.CreatedAt.UTC(),
	})
}
