package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID identifies a record in the storefront backend (products, users,
// addresses). Backends emit ids either as JSON numbers or strings; both decode
// to the same ID, and integer ids encode back as numbers. Records that carry
// an id back to the backend use decodeID and encodeID to keep the form it
// was read in.
type ID string

func (id ID) String() string {
	return string(id)
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if isInteger(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func isInteger(s string) bool {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil && s[0] != '+' && s[0] != '-'
}

// decodeID reads an id and reports whether it was written as a JSON string.
func decodeID(data json.RawMessage) (ID, bool, error) {
	var id ID
	if len(data) == 0 {
		return id, false, nil
	}
	if err := id.UnmarshalJSON(data); err != nil {
		return "", false, err
	}
	trimmed := bytes.TrimSpace(data)
	return id, len(trimmed) > 0 && trimmed[0] == '"', nil
}

// encodeID writes id as a JSON string when quoted is set and in its
// canonical form otherwise.
func encodeID(id ID, quoted bool) (json.RawMessage, error) {
	if quoted {
		return json.Marshal(string(id))
	}
	return id.MarshalJSON()
}
