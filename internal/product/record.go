package product

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field keys as used on the wire and in CSV column definitions.
const (
	KeySKU         = "SKU"
	KeyItemName    = "ITEMS_NAME"
	KeyCategory    = "CATEGORY"
	KeyBrandName   = "BRAND_NAME"
	KeyVariantName = "VARIANT_NAME"
	KeyPrice       = "PRICE"
)

// Record is a product as searched, edited, staged in the cart and exported.
// Records are values: copy them, don't share them.
type Record struct {
	// SKU is the unique product identifier (barcode). Case-insensitive, stored upper-cased.
	SKU string `json:"SKU"`

	// ItemName is the human-readable name; required before a record is saved.
	ItemName string `json:"ITEMS_NAME"`

	Category    string `json:"CATEGORY,omitempty"`
	BrandName   string `json:"BRAND_NAME,omitempty"`
	VariantName string `json:"VARIANT_NAME,omitempty"`

	// Price is kept as the text it arrived with; nil means absent.
	Price *string `json:"PRICE"`
}

// recordWire mirrors Record with a raw PRICE so numbers, strings and null all decode.
type recordWire struct {
	SKU         string          `json:"SKU"`
	ItemName    string          `json:"ITEMS_NAME"`
	Category    *string         `json:"CATEGORY"`
	BrandName   *string         `json:"BRAND_NAME"`
	VariantName *string         `json:"VARIANT_NAME"`
	Price       json.RawMessage `json:"PRICE"`
}

// UnmarshalJSON accepts PRICE as a JSON number, string or null, and null text columns.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	price, err := decodePrice(w.Price)
	if err != nil {
		return err
	}
	*r = Record{
		SKU:         w.SKU,
		ItemName:    w.ItemName,
		Category:    deref(w.Category),
		BrandName:   deref(w.BrandName),
		VariantName: deref(w.VariantName),
		Price:       price,
	}
	return nil
}

func decodePrice(raw json.RawMessage) (*string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("PRICE: %w", err)
		}
		return &s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("PRICE must be a number, string or null: %w", err)
	}
	s := n.String()
	return &s, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Get returns the value stored under a wire key. The bool is false when the
// value is absent (nil price or unknown key).
func (r Record) Get(key string) (string, bool) {
	switch strings.ToUpper(key) {
	case KeySKU:
		return r.SKU, true
	case KeyItemName:
		return r.ItemName, true
	case KeyCategory:
		return r.Category, true
	case KeyBrandName:
		return r.BrandName, true
	case KeyVariantName:
		return r.VariantName, true
	case KeyPrice:
		if r.Price == nil {
			return "", false
		}
		return *r.Price, true
	}
	return "", false
}

// Patch carries optional field updates for a form. Nil fields are left alone.
type Patch struct {
	SKU         *string `json:"SKU,omitempty"`
	ItemName    *string `json:"ITEMS_NAME,omitempty"`
	Category    *string `json:"CATEGORY,omitempty"`
	BrandName   *string `json:"BRAND_NAME,omitempty"`
	VariantName *string `json:"VARIANT_NAME,omitempty"`
	Price       *string `json:"PRICE,omitempty"`
}

// Apply returns a copy of r with every non-nil patch field set.
// An empty Price in the patch clears the price.
func (p Patch) Apply(r Record) Record {
	out := r
	if p.SKU != nil {
		out.SKU = *p.SKU
	}
	if p.ItemName != nil {
		out.ItemName = *p.ItemName
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.BrandName != nil {
		out.BrandName = *p.BrandName
	}
	if p.VariantName != nil {
		out.VariantName = *p.VariantName
	}
	if p.Price != nil {
		out.Price = PriceOf(*p.Price)
	}
	return out
}

// FillEmpty returns a copy of base where every blank field is taken from src.
// SKU is never replaced.
func FillEmpty(base, src Record) Record {
	out := base
	if strings.TrimSpace(out.ItemName) == "" {
		out.ItemName = src.ItemName
	}
	if strings.TrimSpace(out.Category) == "" {
		out.Category = src.Category
	}
	if strings.TrimSpace(out.BrandName) == "" {
		out.BrandName = src.BrandName
	}
	if strings.TrimSpace(out.VariantName) == "" {
		out.VariantName = src.VariantName
	}
	if out.Price == nil && src.Price != nil {
		p := *src.Price
		out.Price = &p
	}
	return out
}

// PriceOf converts form input into a price: blank input means absent.
func PriceOf(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// SKUs returns the normalized SKUs of records, in order.
func SKUs(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, NormalizeSKU(r.SKU))
	}
	return out
}

// Clone returns a copy of records with no shared price pointers.
func Clone(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		if r.Price != nil {
			p := *r.Price
			r.Price = &p
		}
		out[i] = r
	}
	return out
}
