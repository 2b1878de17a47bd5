package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hpungsan/skumate/internal/config"
	"github.com/hpungsan/skumate/internal/csvexport"
	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

// Default labels used for export filenames.
const (
	CartLabel    = "CART"
	CatalogLabel = "ALL_PRODUCTS"
)

// ExportInput contains parameters for the export operations.
type ExportInput struct {
	Path    string             // optional, default: <exports dir>/<label>_<YYYYMMDD_HHMM>.csv
	Label   string             // optional, used for the default filename
	Columns []csvexport.Column // optional, default: csvexport.CatalogColumns
	Now     time.Time          // optional, for tests
}

// ExportOutput contains the result of an export.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// Searcher is the slice of the catalog backend needed to export it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]product.Record, error)
}

// CartSource is the slice of the cart needed to export it.
type CartSource interface {
	Items() []product.Record
}

// ExportCart writes the cart contents. An empty cart is an INVALID_REQUEST.
func ExportCart(ctx context.Context, cfg *config.Config, cart CartSource, input ExportInput) (*ExportOutput, error) {
	items := cart.Items()
	if len(items) == 0 {
		return nil, errors.NewInvalidRequest("cart is empty")
	}
	if input.Label == "" {
		input.Label = CartLabel
	}
	return ExportRecords(ctx, cfg, items, input)
}

// ExportAll fetches every product from the catalog and writes it.
// An empty catalog produces a header-only file.
func ExportAll(ctx context.Context, cfg *config.Config, catalog Searcher, input ExportInput) (*ExportOutput, error) {
	records, err := catalog.Search(ctx, "*")
	if err != nil {
		return nil, err
	}
	if input.Label == "" {
		input.Label = CatalogLabel
	}
	return ExportRecords(ctx, cfg, records, input)
}

// ExportRecords writes records as CSV to a validated path. The file is
// written to a temp file and renamed into place, so an existing file is
// preserved when anything fails.
func ExportRecords(ctx context.Context, cfg *config.Config, records []product.Record, input ExportInput) (*ExportOutput, error) {
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}
	columns := input.Columns
	if len(columns) == 0 {
		columns = csvexport.CatalogColumns
	}

	exportPath := strings.TrimSpace(input.Path)
	if exportPath == "" {
		dir, err := ExportsDir(cfg)
		if err != nil {
			return nil, err
		}
		exportPath = filepath.Join(dir, csvexport.Filename(input.Label, now))
	}

	// Default paths are validated too: the label ends up in the filename.
	if err := ValidatePath(exportPath, WriteAccess, cfg); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("export")
	}

	dir := filepath.Dir(exportPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openChecked(tempPath, WriteAccess)
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	count, err := csvexport.Write(file, records, columns)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to write export: %w", err))
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}

	// Windows cannot rename an open file.
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("export path is a symlink")
	}

	// On Windows os.Rename fails when the destination exists. The existing
	// file is kept rather than deleted first.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		ExportedAt: now.Unix(),
	}, nil
}
