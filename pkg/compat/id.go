package compat

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ID is the canonical string form of an opaque identifier from the merchant API.
// JSON strings are kept verbatim and JSON numbers keep their literal text, so the
// numeric id 1 and the string id "1" map to the same key.
type ID string

// ParseID converts a raw JSON value into an ID.
// The second return value is false when the identifier is missing: absent,
// null, an empty string, numeric zero, false, or a non-scalar value.
func ParseID(raw json.RawMessage) (ID, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return "", false
		}
		return ID(s), true
	case 'n', 'f', '{', '[':
		return "", false
	case 't':
		return ID("true"), true
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || f == 0 {
		return "", false
	}
	return ID(raw), true
}

// Text renders a raw JSON scalar as plain text: strings unquoted, numbers and
// booleans as their literal text, null or absent as the empty string.
// Objects and arrays are returned as compact JSON.
func Text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return string(raw)
		}
		return s
	}

	if raw[0] == '{' || raw[0] == '[' {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err == nil {
			return buf.String()
		}
	}

	return string(raw)
}
