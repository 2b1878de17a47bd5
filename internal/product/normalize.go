package product

import (
	"strings"

	"github.com/hpungsan/skumate/internal/errors"
)

// NormalizeSKU canonicalizes a SKU: trimmed and upper-cased.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// Normalize returns a copy of r with every text field upper-cased.
// Price passes through unchanged. Normalize is idempotent and never mutates r.
func Normalize(r Record) Record {
	out := Record{
		SKU:         NormalizeSKU(r.SKU),
		ItemName:    strings.ToUpper(r.ItemName),
		Category:    strings.ToUpper(r.Category),
		BrandName:   strings.ToUpper(r.BrandName),
		VariantName: strings.ToUpper(r.VariantName),
	}
	if r.Price != nil {
		p := *r.Price
		out.Price = &p
	}
	return out
}

// Validate checks the fields a record needs before it is sent upstream.
// requireVariant is set when saving a new pack-size variant.
func Validate(r Record, requireVariant bool) error {
	if strings.TrimSpace(r.SKU) == "" {
		return errors.NewValidation(KeySKU, "SKU is required")
	}
	if strings.TrimSpace(r.ItemName) == "" {
		return errors.NewValidation(KeyItemName, "item name is required")
	}
	if requireVariant && strings.TrimSpace(r.VariantName) == "" {
		return errors.NewValidation(KeyVariantName, "variant name is required for a new variant")
	}
	return nil
}

// LooksLikeBarcode reports whether query is made of at least minDigits digits and nothing else.
func LooksLikeBarcode(query string, minDigits int) bool {
	if minDigits < 1 {
		minDigits = 1
	}
	if len(query) < minDigits {
		return false
	}
	for _, c := range query {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
