package product

import (
	"github.com/hpungsan/skumate/internal/errors"
)

// VariantUnits is the pack-size vocabulary offered when naming a variant.
var VariantUnits = []string{
	"PCS", "RENTENG", "PACK", "BOX", "DUS", "KARUNG",
	"LUSIN", "GROSS", "CUP", "CAN", "BOTTLE", "SACH",
}

// VariantRoot strips a single trailing A-Z from a normalized SKU.
//
// A root that naturally ends in a letter loses it too ("ABC" -> "AB"); the
// allocator cannot tell a real suffix from part of the code.
func VariantRoot(baseSKU string) string {
	sku := NormalizeSKU(baseSKU)
	if n := len(sku); n > 0 && sku[n-1] >= 'A' && sku[n-1] <= 'Z' {
		return sku[:n-1]
	}
	return sku
}

// NextVariantSKU returns the first root+A..Z not present in existing.
// existing is the SKU set of the results in view, not the full catalog.
// Returns a NOT_AVAILABLE error when all 26 suffixes are taken.
func NextVariantSKU(baseSKU string, existing []string) (string, error) {
	root := VariantRoot(baseSKU)
	if root == "" {
		return "", errors.NewValidation(KeySKU, "base SKU is required")
	}

	taken := make(map[string]bool, len(existing))
	for _, s := range existing {
		taken[NormalizeSKU(s)] = true
	}

	for c := byte('A'); c <= 'Z'; c++ {
		candidate := root + string(c)
		if !taken[candidate] {
			return candidate, nil
		}
	}
	return "", errors.NewNotAvailable(root)
}

// NewVariant builds the draft for a new pack-size variant of parent:
// name, brand and category are inherited; variant name and price start empty.
func NewVariant(parent Record, sku string) Record {
	p := Normalize(parent)
	return Record{
		SKU:       NormalizeSKU(sku),
		ItemName:  p.ItemName,
		Category:  p.Category,
		BrandName: p.BrandName,
	}
}
