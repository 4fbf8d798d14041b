package domain

import (
	"encoding/json"
	"fmt"
	"maps"
)

// User record field names touched by the cart core.
const (
	FieldCart      = "cart"
	FieldAddresses = "addresses"
	FieldOrders    = "orders"
)

// UserRecord is the remote user document kept as raw JSON fields, so a
// read-modify-write of the cart leaves every other field byte-for-byte intact.
type UserRecord map[string]json.RawMessage

// ID returns the record's id field as text.
func (u UserRecord) ID() string {
	var id ID
	if raw, ok := u["id"]; ok && json.Unmarshal(raw, &id) == nil {
		return id.String()
	}
	return ""
}

// Cart decodes the cart field. ok is false when the field is missing, null or
// not a list of line items.
func (u UserRecord) Cart() (items []LineItem, ok bool) {
	raw, present := u[FieldCart]
	if !present {
		return nil, false
	}
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, false
	}
	return items, true
}

// SetCart replaces the cart field.
func (u UserRecord) SetCart(items []LineItem) error {
	raw, err := json.Marshal(CloneItems(items))
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	u[FieldCart] = raw
	return nil
}

// Addresses decodes the addresses field. A missing or malformed field yields
// no addresses.
func (u UserRecord) Addresses() []Address {
	var out []Address
	if raw, ok := u[FieldAddresses]; ok {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

// Orders returns the raw entries of the orders field. Entries are kept raw so
// appending an order never rewrites existing ones.
func (u UserRecord) Orders() []json.RawMessage {
	var out []json.RawMessage
	if raw, ok := u[FieldOrders]; ok {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

// Clone returns a shallow copy safe to modify at the field level.
func (u UserRecord) Clone() UserRecord {
	return maps.Clone(u)
}
