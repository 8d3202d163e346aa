// Package catalog holds product records from the Dati_Prodotto listing and
// enriches them with compatibility text and image filenames.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/merchant-catalog-export/pkg/compat"
)

// ClassProducts is the listing class serving product records.
const ClassProducts = "Dati_Prodotto"

// Product is a product record as returned by the listing API.
// Keys keep their wire order so the tabular export can use the first
// record's key order as its header.
type Product struct {
	keys   []string
	values map[string]json.RawMessage
}

// NewProduct returns an empty product.
func NewProduct() *Product {
	return &Product{values: make(map[string]json.RawMessage)}
}

// DecodeProducts decodes raw listing records. Records that are not JSON
// objects are skipped; the number skipped is returned.
func DecodeProducts(raw []json.RawMessage) ([]*Product, int) {
	products := make([]*Product, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		p := NewProduct()
		if err := json.Unmarshal(item, p); err != nil {
			skipped++
			continue
		}
		products = append(products, p)
	}
	return products, skipped
}

// UnmarshalJSON decodes a JSON object keeping key order. A repeated key
// keeps its first position and its last value.
func (p *Product) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("product: expected JSON object, got %v", tok)
	}

	p.keys = p.keys[:0]
	p.values = make(map[string]json.RawMessage)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("product: unexpected token %v", tok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("product: decode %q: %w", key, err)
		}
		p.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalJSON encodes the product with its keys in order.
func (p *Product) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		v := p.values[key]
		if len(v) == 0 {
			v = json.RawMessage("null")
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Keys returns the field names in order. The slice must not be modified.
func (p *Product) Keys() []string {
	return p.keys
}

// Get returns the raw value of a field.
func (p *Product) Get(key string) (json.RawMessage, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Text returns a field rendered as plain text, see compat.Text.
func (p *Product) Text(key string) string {
	return compat.Text(p.values[key])
}

// Set stores a raw value. New keys are appended after existing ones.
func (p *Product) Set(key string, value json.RawMessage) {
	if p.values == nil {
		p.values = make(map[string]json.RawMessage)
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// SetString stores a string value.
func (p *Product) SetString(key, value string) {
	encoded, _ := json.Marshal(value)
	p.Set(key, encoded)
}

// ID returns the normalized product id, or "" when the record has none.
func (p *Product) ID() compat.ID {
	id, _ := compat.ParseID(p.values["id"])
	return id
}

// Name returns the product name used in log lines.
func (p *Product) Name() string {
	if name := p.Text("nome"); name != "" {
		return name
	}
	return "No Name"
}
