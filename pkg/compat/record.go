package compat

import (
	"encoding/json"
)

// Listing classes serving the reference data.
const (
	ClassCompatibility = "Dati_Compatibilita"
	ClassRelationship  = "Dati_Prodotto_Compatibilita"
)

// Record is one compatibility definition: a vehicle a product may fit.
type Record struct {
	ID           ID
	Brand        string
	Model        string
	Version      string
	YearFrom     string
	YearTo       string
	Displacement string
}

type wireRecord struct {
	ID           json.RawMessage `json:"id"`
	Brand        json.RawMessage `json:"marchi"`
	Model        json.RawMessage `json:"modelli"`
	Version      json.RawMessage `json:"allestimenti"`
	YearFrom     json.RawMessage `json:"da_anno_modello"`
	YearTo       json.RawMessage `json:"a_anno_modello"`
	Displacement json.RawMessage `json:"cilindrata"`
}

// UnmarshalJSON decodes the wire representation of Dati_Compatibilita.
// Attribute values may arrive as strings, numbers or null.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	id, _ := ParseID(w.ID)
	*r = Record{
		ID:           id,
		Brand:        Text(w.Brand),
		Model:        Text(w.Model),
		Version:      Text(w.Version),
		YearFrom:     Text(w.YearFrom),
		YearTo:       Text(w.YearTo),
		Displacement: Text(w.Displacement),
	}
	return nil
}

// Descriptor returns the denormalized view attached to products.
func (r Record) Descriptor() Descriptor {
	return Descriptor{
		Brand:        r.Brand,
		Model:        r.Model,
		Version:      r.Version,
		YearFrom:     r.YearFrom,
		YearTo:       r.YearTo,
		Displacement: r.Displacement,
	}
}

// Relationship links a product to a compatibility definition.
// Either side may be empty when the source record lacked it.
type Relationship struct {
	ProductID       ID
	CompatibilityID ID
}

type wireRelationship struct {
	ProductID       json.RawMessage `json:"id_prodotti"`
	CompatibilityID json.RawMessage `json:"id_compatibilita"`
}

// UnmarshalJSON decodes the wire representation of Dati_Prodotto_Compatibilita.
func (l *Relationship) UnmarshalJSON(data []byte) error {
	var w wireRelationship
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	productID, _ := ParseID(w.ProductID)
	compatID, _ := ParseID(w.CompatibilityID)
	*l = Relationship{ProductID: productID, CompatibilityID: compatID}
	return nil
}

// Descriptor is a resolved compatibility entry attached to one product.
type Descriptor struct {
	Brand        string
	Model        string
	Version      string
	YearFrom     string
	YearTo       string
	Displacement string
}

// DecodeRecords decodes raw listing records into compatibility definitions.
// Records that are not JSON objects are skipped; the number skipped is returned.
func DecodeRecords(raw []json.RawMessage) ([]Record, int) {
	records := make([]Record, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		var r Record
		if err := json.Unmarshal(item, &r); err != nil {
			skipped++
			continue
		}
		records = append(records, r)
	}
	return records, skipped
}

// DecodeRelationships decodes raw listing records into relationship links.
// Records that are not JSON objects are skipped; the number skipped is returned.
func DecodeRelationships(raw []json.RawMessage) ([]Relationship, int) {
	links := make([]Relationship, 0, len(raw))
	skipped := 0
	for _, item := range raw {
		var l Relationship
		if err := json.Unmarshal(item, &l); err != nil {
			skipped++
			continue
		}
		links = append(links, l)
	}
	return links, skipped
}
