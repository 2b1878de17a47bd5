// Package csvexport serializes product records into the fixed-column CSV
// files accepted by the point-of-sale importer.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/hpungsan/skumate/internal/product"
)

// Column maps a record field key to the header label written for it.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// CatalogColumns is the schema of the full catalog export; labels are the keys.
var CatalogColumns = []Column{
	{product.KeySKU, "SKU"},
	{product.KeyItemName, "ITEMS_NAME"},
	{product.KeyCategory, "CATEGORY"},
	{product.KeyBrandName, "BRAND_NAME"},
	{product.KeyVariantName, "VARIANT_NAME"},
	{product.KeyPrice, "PRICE"},
}

// MokaColumns is the point-of-sale item import schema used for cart downloads.
var MokaColumns = []Column{
	{product.KeyCategory, "Category"},
	{product.KeySKU, "SKU"},
	{product.KeyItemName, "Items Name (Do Not Edit)"},
	{product.KeyBrandName, "Brand Name"},
	{product.KeyVariantName, "Variant name"},
	{product.KeyPrice, "Basic - Price"},
}

// ColumnSet resolves a column set by name: "catalog" or "moka".
func ColumnSet(name string) ([]Column, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "catalog":
		return CatalogColumns, nil
	case "moka", "pos":
		return MokaColumns, nil
	}
	return nil, fmt.Errorf("unknown column set %q (want catalog or moka)", name)
}

// Write streams records as CSV to w: a header row of column labels, then one
// row per record in the order given. Absent values are written empty, text is
// upper-cased, and cells containing a comma, quote or line break are quoted
// with inner quotes doubled. csv.Writer also quotes a cell with a leading
// space and the lone cell `\.`; readers get the same value back.
func Write(w io.Writer, records []product.Record, columns []Column) (int, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("at least one column is required")
	}

	cw := csv.NewWriter(w)

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Label
	}
	if err := cw.Write(header); err != nil {
		return 0, err
	}

	row := make([]string, len(columns))
	for n, r := range records {
		for i, c := range columns {
			row[i] = cell(r, c.Key)
		}
		if err := cw.Write(row); err != nil {
			return n, err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// ToCSV renders records as a CSV string. See Write for the cell rules.
func ToCSV(records []product.Record, columns []Column) (string, error) {
	var b strings.Builder
	if _, err := Write(&b, records, columns); err != nil {
		return "", err
	}
	return b.String(), nil
}

func cell(r product.Record, key string) string {
	v, ok := r.Get(key)
	if !ok {
		return ""
	}
	return strings.ToUpper(v)
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Filename builds "<label>_<YYYYMMDD_HHMM>.csv" with the label reduced to
// [A-Za-z0-9_-]. A blank label becomes "UNNAMED".
func Filename(label string, now time.Time) string {
	clean := strings.TrimSpace(label)
	if clean == "" {
		clean = "UNNAMED"
	}
	clean = unsafeFilenameChars.ReplaceAllString(clean, "_")
	return fmt.Sprintf("%s_%s.csv", clean, now.Format("20060102_1504"))
}
