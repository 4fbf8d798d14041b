package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// LineItem is one product in the cart. Name, Image, UnitPrice and Stock are
// captured from the catalog when the line is created and never refreshed.
type LineItem struct {
	ProductID ID
	Name      string
	Image     string
	UnitPrice decimal.Decimal
	Quantity  int
	Stock     int

	// quotedID is set when the id was read as a JSON string.
	quotedID bool
}

// Subtotal returns UnitPrice × Quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Equal reports whether two lines hold the same values.
func (li LineItem) Equal(other LineItem) bool {
	return li.ProductID == other.ProductID &&
		li.Name == other.Name &&
		li.Image == other.Image &&
		li.UnitPrice.Equal(other.UnitPrice) &&
		li.Quantity == other.Quantity &&
		li.Stock == other.Stock
}

type lineItemJSON struct {
	ID       json.RawMessage `json:"id"`
	Name     string          `json:"name"`
	Image    string          `json:"image"`
	Price    json.Number     `json:"price"`
	Quantity int             `json:"quantity"`
	Stock    int             `json:"stock"`
}

// MarshalJSON writes the line in the shape stored on the user record. The id
// keeps the JSON form it was read in.
func (li LineItem) MarshalJSON() ([]byte, error) {
	id, err := encodeID(li.ProductID, li.quotedID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(lineItemJSON{
		ID:       id,
		Name:     li.Name,
		Image:    li.Image,
		Price:    json.Number(li.UnitPrice.String()),
		Quantity: li.Quantity,
		Stock:    li.Stock,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	var in lineItemJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	id, quoted, err := decodeID(in.ID)
	if err != nil {
		return fmt.Errorf("line id: %w", err)
	}
	price, err := parseAmount(in.Price)
	if err != nil {
		return fmt.Errorf("line %s price: %w", id, err)
	}
	*li = LineItem{
		ProductID: id,
		Name:      in.Name,
		Image:     in.Image,
		UnitPrice: price,
		Quantity:  in.Quantity,
		Stock:     in.Stock,
		quotedID:  quoted,
	}
	return nil
}

// ItemsEqual reports whether a and b hold equal lines in the same order.
func ItemsEqual(a, b []LineItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// CloneItems returns a copy of items that never aliases the input. A nil
// input yields an empty, non-nil slice so it encodes as [].
func CloneItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

// State is the in-memory cart. Total and ItemCount are derived from Items by
// Reduce; Loading and LastError describe the last persistence request and are
// never persisted.
type State struct {
	Items     []LineItem
	Total     decimal.Decimal
	ItemCount int
	Loading   bool
	LastError string
}

// NewState returns an empty cart.
func NewState() State {
	return State{Items: []LineItem{}}
}

// Find returns the line for id.
func (s State) Find(id ID) (LineItem, bool) {
	if i := indexOf(s.Items, id); i >= 0 {
		return s.Items[i], true
	}
	return LineItem{}, false
}

func indexOf(items []LineItem, id ID) int {
	for i := range items {
		if items[i].ProductID == id {
			return i
		}
	}
	return -1
}

// Action is a cart transition. The set is closed: only the types declared in
// this package implement it.
type Action interface {
	// Name is a stable identifier used in logs and metrics.
	Name() string
	action()
}

// Initialize replaces the items wholesale.
type Initialize struct{ Items []LineItem }

// Add puts Quantity units of Product in the cart, appending a new line or
// growing the existing one.
type Add struct {
	Product  Product
	Quantity int
}

// Remove drops the line for ProductID.
type Remove struct{ ProductID ID }

// SetQuantity sets the quantity of an existing line, clamped to [1, stock].
type SetQuantity struct {
	ProductID ID
	Quantity  int
}

// Clear empties the cart.
type Clear struct{}

// BeginRequest marks a persistence request in flight.
type BeginRequest struct{}

// RequestSucceeded marks the in-flight request as finished.
type RequestSucceeded struct{}

// RequestFailed records a failed request.
type RequestFailed struct{ Message string }

func (Initialize) Name() string       { return "initialize" }
func (Add) Name() string              { return "add" }
func (Remove) Name() string           { return "remove" }
func (SetQuantity) Name() string      { return "set_quantity" }
func (Clear) Name() string            { return "clear" }
func (BeginRequest) Name() string     { return "begin_request" }
func (RequestSucceeded) Name() string { return "request_succeeded" }
func (RequestFailed) Name() string    { return "request_failed" }

func (Initialize) action()       {}
func (Add) action()              {}
func (Remove) action()           {}
func (SetQuantity) action()      {}
func (Clear) action()            {}
func (BeginRequest) action()     {}
func (RequestSucceeded) action() {}
func (RequestFailed) action()    {}

// Reduce returns the state that results from applying a to s. It never
// mutates s, never fails, and recomputes the derived totals whenever the
// items change.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case Initialize:
		return s.withItems(CloneItems(a.Items))

	case Add:
		qty := max(a.Quantity, 1)
		items := CloneItems(s.Items)
		if i := indexOf(items, a.Product.ID); i >= 0 {
			items[i].Quantity += qty
		} else {
			items = append(items, LineItem{
				ProductID: a.Product.ID,
				Name:      a.Product.Name,
				Image:     a.Product.Image,
				UnitPrice: a.Product.UnitPrice(),
				Quantity:  qty,
				Stock:     a.Product.Stock,
				quotedID:  a.Product.quotedID,
			})
		}
		return s.withItems(items)

	case Remove:
		items := make([]LineItem, 0, len(s.Items))
		for _, li := range s.Items {
			if li.ProductID != a.ProductID {
				items = append(items, li)
			}
		}
		return s.withItems(items)

	case SetQuantity:
		i := indexOf(s.Items, a.ProductID)
		if i < 0 {
			return s
		}
		items := CloneItems(s.Items)
		items[i].Quantity = clampQuantity(a.Quantity, items[i].Stock)
		return s.withItems(items)

	case Clear:
		return s.withItems([]LineItem{})

	case BeginRequest:
		s.Loading = true
		s.LastError = ""
		return s

	case RequestSucceeded:
		s.Loading = false
		s.LastError = ""
		return s

	case RequestFailed:
		s.Loading = false
		s.LastError = a.Message
		return s

	default:
		return s
	}
}

// clampQuantity bounds q to [1, stock]. An unknown stock (below 1) only
// applies the lower bound.
func clampQuantity(q, stock int) int {
	q = max(q, 1)
	if stock >= 1 {
		q = min(q, stock)
	}
	return q
}

func (s State) withItems(items []LineItem) State {
	s.Items = items
	s.Total = decimal.Zero
	s.ItemCount = 0
	for _, li := range items {
		s.Total = s.Total.Add(li.Subtotal())
		s.ItemCount += li.Quantity
	}
	return s
}
