package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRecord(t *testing.T, s string) UserRecord {
	t.Helper()
	var u UserRecord
	require.NoError(t, json.Unmarshal([]byte(s), &u))
	return u
}

func TestUserRecord_Cart(t *testing.T) {
	u := decodeRecord(t, `{"id":1,"cart":[{"id":3,"name":"Mug","image":"m.png","price":12.5,"quantity":2,"stock":4}]}`)

	items, ok := u.Cart()
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, ID("3"), items[0].ProductID)
	assert.True(t, items[0].UnitPrice.Equal(dec("12.5")))
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "1", u.ID())
}

func TestUserRecord_CartAbsentOrMalformed(t *testing.T) {
	tests := map[string]string{
		"absent":       `{"id":1}`,
		"null":         `{"cart":null}`,
		"object":       `{"cart":{"id":1}}`,
		"string":       `{"cart":"oops"}`,
		"bad price":    `{"cart":[{"id":1,"price":"free","quantity":1}]}`,
		"bad quantity": `{"cart":[{"id":1,"price":1,"quantity":"two"}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := decodeRecord(t, doc).Cart()
			assert.False(t, ok)
		})
	}
}

func TestUserRecord_EmptyCartIsWellFormed(t *testing.T) {
	items, ok := decodeRecord(t, `{"cart":[]}`).Cart()
	assert.True(t, ok)
	assert.Empty(t, items)
}

func TestUserRecord_SetCartPreservesOtherFields(t *testing.T) {
	doc := `{"id":"u1","email":"a@b.c","addresses":[{"id":"addr-1","city":"Oslo"}],"orders":[{"id":"order-1","total":9.99,"extra":{"k":[1,2]}}],"cart":[]}`
	u := decodeRecord(t, doc)

	require.NoError(t, u.SetCart([]LineItem{line("5", "3", 1, 2)}))

	out, err := json.Marshal(u)
	require.NoError(t, err)

	var got, want map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &got))
	require.NoError(t, json.Unmarshal([]byte(doc), &want))
	for _, k := range []string{"id", "email", "addresses", "orders"} {
		assert.JSONEq(t, string(want[k]), string(got[k]), k)
	}
	assert.JSONEq(t, `[{"id":5,"name":"Product 5","image":"","price":3,"quantity":1,"stock":2}]`, string(got["cart"]))
}

func TestUserRecord_SetCartNilEncodesEmptyList(t *testing.T) {
	u := UserRecord{}
	require.NoError(t, u.SetCart(nil))
	assert.Equal(t, `[]`, string(u[FieldCart]))
}

func TestUserRecord_AddressesAndOrders(t *testing.T) {
	u := decodeRecord(t, `{"addresses":[{"id":"a1","fullName":"Ada","city":"Paris"},{"id":2,"city":"Rome"}],"orders":[{"id":"order-1"},{"id":"order-2"}]}`)

	addrs := u.Addresses()
	require.Len(t, addrs, 2)
	assert.Equal(t, ID("a1"), addrs[0].ID)
	assert.Equal(t, "Ada", addrs[0].FullName)
	assert.Equal(t, ID("2"), addrs[1].ID)

	orders := u.Orders()
	require.Len(t, orders, 2)
	assert.JSONEq(t, `{"id":"order-2"}`, string(orders[1]))

	assert.Empty(t, UserRecord{}.Addresses())
	assert.Empty(t, UserRecord{}.Orders())
}

func TestUserRecord_Clone(t *testing.T) {
	u := decodeRecord(t, `{"id":1,"cart":[]}`)
	c := u.Clone()
	c["extra"] = json.RawMessage(`true`)

	assert.NotContains(t, u, "extra")
}

func TestUserRecord_CartKeepsIDForm(t *testing.T) {
	doc := `{"cart":[{"id":"12","name":"A","image":"","price":1,"quantity":1,"stock":3},{"id":13,"name":"B","image":"","price":2,"quantity":1,"stock":3}]}`
	u := decodeRecord(t, doc)

	items, ok := u.Cart()
	require.True(t, ok)
	assert.Equal(t, ID("12"), items[0].ProductID)
	items[0].Quantity = 2
	require.NoError(t, u.SetCart(items))

	assert.JSONEq(t,
		`[{"id":"12","name":"A","image":"","price":1,"quantity":2,"stock":3},{"id":13,"name":"B","image":"","price":2,"quantity":1,"stock":3}]`,
		string(u[FieldCart]))
}
