package ops

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/charmap"

	"github.com/hpungsan/skumate/internal/catalog"
	"github.com/hpungsan/skumate/internal/config"
	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

// maxImportBytes caps the size of an import file.
const maxImportBytes = 32 << 20

// Adder is the slice of the catalog backend needed to import products.
type Adder interface {
	Add(ctx context.Context, r product.Record) (product.Record, error)
}

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string // required
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Total   int           `json:"total"`
	Added   int           `json:"added"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Errors  []ImportError `json:"errors"`
}

// ImportError describes a row that could not be added.
type ImportError struct {
	Line    int    `json:"line"`
	SKU     string `json:"sku,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// headerAliases maps collapsed header names to record keys. The keys of
// the catalog export map to themselves, so exports re-import cleanly.
var headerAliases = map[string]string{
	"SKU":                    product.KeySKU,
	"ITEMS_NAME":             product.KeyItemName,
	"ITEM_NAME":              product.KeyItemName,
	"ITEMS_NAME_DO_NOT_EDIT": product.KeyItemName,
	"CATEGORY":               product.KeyCategory,
	"PRODUSEN":               product.KeyCategory,
	"BRAND_NAME":             product.KeyBrandName,
	"VARIANT_NAME":           product.KeyVariantName,
	"PRICE":                  product.KeyPrice,
	"BASIC_PRICE":            product.KeyPrice,
}

var headerSeparators = regexp.MustCompile(`[^A-Z0-9]+`)

func headerKey(h string) string {
	h = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.Trim(headerSeparators.ReplaceAllString(h, "_"), "_")
	return headerAliases[h]
}

type importRow struct {
	line   int
	record product.Record
}

// Import reads a catalog CSV and adds every row through the backend.
//
// The file must have a header row with a SKU column. Files that are not
// valid UTF-8 are decoded as Latin-1. Rows with a blank SKU fail; repeated
// SKUs within the file and SKUs the backend already has are skipped.
// Rows are added concurrently, bounded by cfg.ImportConcurrency.
func Import(ctx context.Context, cfg *config.Config, adder Adder, input ImportInput) (*ImportOutput, error) {
	if err := ValidatePath(input.Path, ReadAccess, cfg); err != nil {
		return nil, err
	}

	file, err := openChecked(input.Path, ReadAccess)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImportBytes+1))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to read import file: %w", err))
	}
	if len(data) > maxImportBytes {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("import file exceeds %d bytes", maxImportBytes))
	}

	rows, out, err := parseImport(data)
	if err != nil {
		return nil, err
	}

	limit := 4
	if cfg != nil && cfg.ImportConcurrency > 0 {
		limit = cfg.ImportConcurrency
	}

	results := make([]error, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, row := range rows {
		g.Go(func() error {
			if gctx.Err() != nil {
				return errors.NewCancelled("import")
			}
			_, err := adder.Add(gctx, row.record)
			if errors.Is(err, errors.ErrCancelled) {
				return err
			}
			// Per-row failures are reported, not fatal.
			results[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.NewCancelled("import")
	}
	if ctx.Err() != nil {
		return nil, errors.NewCancelled("import")
	}

	for i, err := range results {
		switch {
		case err == nil:
			out.Added++
		case isDuplicate(err):
			out.Skipped++
		default:
			out.Failed++
			out.Errors = append(out.Errors, ImportError{
				Line:    rows[i].line,
				SKU:     rows[i].record.SKU,
				Code:    string(errors.CodeOf(err)),
				Message: errors.MessageOf(err),
			})
		}
	}
	return out, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, errors.ErrDuplicateSKU) || catalog.IsDuplicate(err)
}

// parseImport decodes data into normalized rows ready to add. Rows that
// fail or are skipped during parsing are already counted in the output.
func parseImport(data []byte) ([]importRow, *ImportOutput, error) {
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("cannot decode import file: %v", err))
		}
		data = decoded
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))

	r := csv.NewReader(bytes.NewReader(data))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, errors.NewInvalidRequest("import file is empty")
	}
	if err != nil {
		return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("invalid CSV header: %v", err))
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := headerKey(h)
		if key == "" {
			continue
		}
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	if _, ok := cols[product.KeySKU]; !ok {
		return nil, nil, errors.NewInvalidRequest("import file must have a SKU column")
	}

	out := &ImportOutput{Errors: []ImportError{}}
	var rows []importRow
	seen := make(map[string]bool)

	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := 0
			if pe, ok := err.(*csv.ParseError); ok {
				line = pe.StartLine
			}
			out.Total++
			out.Failed++
			out.Errors = append(out.Errors, ImportError{
				Line:    line,
				Code:    string(errors.ErrInvalidRequest),
				Message: fmt.Sprintf("invalid CSV row: %v", err),
			})
			continue
		}
		if blankRow(fields) {
			continue
		}
		out.Total++
		line, _ := r.FieldPos(0)

		rec := product.Normalize(rowRecord(fields, cols))
		if rec.SKU == "" {
			out.Failed++
			out.Errors = append(out.Errors, ImportError{
				Line:    line,
				Code:    string(errors.ErrValidation),
				Message: "SKU is required",
			})
			continue
		}
		if seen[rec.SKU] {
			out.Skipped++
			continue
		}
		seen[rec.SKU] = true
		rows = append(rows, importRow{line: line, record: rec})
	}
	return rows, out, nil
}

func rowRecord(fields []string, cols map[string]int) product.Record {
	get := func(key string) string {
		i, ok := cols[key]
		if !ok || i >= len(fields) {
			return ""
		}
		return fields[i]
	}
	return product.Record{
		SKU:         get(product.KeySKU),
		ItemName:    get(product.KeyItemName),
		Category:    get(product.KeyCategory),
		BrandName:   get(product.KeyBrandName),
		VariantName: get(product.KeyVariantName),
		Price:       product.PriceOf(get(product.KeyPrice)),
	}
}

func blankRow(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
