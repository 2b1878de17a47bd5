package ops

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

// recordingAdder collects added records and fails for SKUs listed in fail.
type recordingAdder struct {
	mu    sync.Mutex
	added []product.Record
	fail  map[string]error
}

func (a *recordingAdder) Add(_ context.Context, r product.Record) (product.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err, ok := a.fail[r.SKU]; ok {
		return product.Record{}, err
	}
	a.added = append(a.added, r)
	return r, nil
}

func (a *recordingAdder) bySKU() map[string]product.Record {
	out := make(map[string]product.Record, len(a.added))
	for _, r := range a.added {
		out[r.SKU] = r
	}
	return out
}

func writeImportFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestImport_HappyPath(t *testing.T) {
	cfg := testConfig(t)
	path := writeImportFile(t, cfg.ExportsDir, "catalog.csv", []byte(
		"SKU,ITEMS_NAME,CATEGORY,BRAND_NAME,VARIANT_NAME,PRICE\n"+
			"111,kopi susu,drinks,kapal api,,7000\n"+
			"222,\"teh, manis\",drinks,sosro,500ML,\n"))
	adder := &recordingAdder{}

	out, err := Import(context.Background(), cfg, adder, ImportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, 2, out.Total)
	require.Equal(t, 2, out.Added)
	require.Zero(t, out.Failed)
	require.Empty(t, out.Errors)

	got := adder.bySKU()
	require.Equal(t, "KOPI SUSU", got["111"].ItemName)
	require.Equal(t, "KAPAL API", got["111"].BrandName)
	require.Equal(t, "7000", *got["111"].Price)
	require.Equal(t, "TEH, MANIS", got["222"].ItemName)
	require.Nil(t, got["222"].Price, "empty PRICE must be absent")
}

func TestImport_ProdusenIsCategory(t *testing.T) {
	cfg := testConfig(t)
	path := writeImportFile(t, cfg.ExportsDir, "legacy.csv", []byte(
		"sku,items_name,produsen\nabc,gula,indofood\n"))
	adder := &recordingAdder{}

	_, err := Import(context.Background(), cfg, adder, ImportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, "INDOFOOD", adder.bySKU()["ABC"].Category)
}

func TestImport_MokaHeaders(t *testing.T) {
	cfg := testConfig(t)
	path := writeImportFile(t, cfg.ExportsDir, "moka.csv", []byte(
		"Category,SKU,Items Name (Do Not Edit),Brand Name,Variant name,Basic - Price\n"+
			"SNACK,9,KERIPIK,MAICIH,LEVEL 5,12000\n"))
	adder := &recordingAdder{}

	_, err := Import(context.Background(), cfg, adder, ImportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, product.Record{
		SKU: "9", ItemName: "KERIPIK", Category: "SNACK", BrandName: "MAICIH",
		VariantName: "LEVEL 5", Price: strPtr("12000"),
	}, adder.bySKU()["9"])
}

func TestImport_BOMAndLatin1(t *testing.T) {
	cfg := testConfig(t)
	bom := writeImportFile(t, cfg.ExportsDir, "bom.csv", []byte("\ufeffSKU,ITEMS_NAME\n1,a\n"))
	// "CAFÉ" in ISO-8859-1.
	latin := writeImportFile(t, cfg.ExportsDir, "latin.csv", []byte("SKU,ITEMS_NAME\n2,CAF\xc9\n"))
	adder := &recordingAdder{}

	_, err := Import(context.Background(), cfg, adder, ImportInput{Path: bom})
	require.NoError(t, err)
	_, err = Import(context.Background(), cfg, adder, ImportInput{Path: latin})
	require.NoError(t, err)

	got := adder.bySKU()
	require.Equal(t, "A", got["1"].ItemName)
	require.Equal(t, "CAFÉ", got["2"].ItemName)
}

func TestImport_SkipsDuplicates(t *testing.T) {
	cfg := testConfig(t)
	path := writeImportFile(t, cfg.ExportsDir, "dupes.csv", []byte(
		"SKU,ITEMS_NAME\n1,a\n 1 ,again\n2,b\n3,c\n"))
	adder := &recordingAdder{fail: map[string]error{
		"2": errors.NewUpstream("add_product", "Product with this SKU already exists"),
		"3": errors.NewDuplicateSKU("3"),
	}}

	out, err := Import(context.Background(), cfg, adder, ImportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, 4, out.Total)
	require.Equal(t, 1, out.Added)
	require.Equal(t, 3, out.Skipped)
	require.Zero(t, out.Failed)
	require.Equal(t, "A", adder.bySKU()["1"].ItemName, "first occurrence wins")
}

func TestImport_ReportsFailures(t *testing.T) {
	cfg := testConfig(t)
	path := writeImportFile(t, cfg.ExportsDir, "mixed.csv", []byte(
		"SKU,ITEMS_NAME\n1,a\n,no sku\n\n2,b\n"))
	adder := &recordingAdder{fail: map[string]error{
		"2": errors.NewUpstream("add_product", "database is locked"),
	}}

	out, err := Import(context.Background(), cfg, adder, ImportInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, 3, out.Total, "blank lines are not rows")
	require.Equal(t, 1, out.Added)
	require.Equal(t, 2, out.Failed)
	require.Len(t, out.Errors, 2)

	sort.Slice(out.Errors, func(i, j int) bool { return out.Errors[i].Line < out.Errors[j].Line })
	require.Equal(t, ImportError{Line: 3, Code: "VALIDATION", Message: "SKU is required"}, out.Errors[0])
	require.Equal(t, 5, out.Errors[1].Line)
	require.Equal(t, "2", out.Errors[1].SKU)
	require.Equal(t, "UPSTREAM", out.Errors[1].Code)
	require.Equal(t, "database is locked", out.Errors[1].Message)
}

func TestImport_RequiresSKUColumn(t *testing.T) {
	cfg := testConfig(t)
	path := writeImportFile(t, cfg.ExportsDir, "nosku.csv", []byte("ITEMS_NAME,PRICE\nkopi,1\n"))

	_, err := Import(context.Background(), cfg, &recordingAdder{}, ImportInput{Path: path})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestImport_EmptyFile(t *testing.T) {
	cfg := testConfig(t)
	path := writeImportFile(t, cfg.ExportsDir, "empty.csv", nil)

	_, err := Import(context.Background(), cfg, &recordingAdder{}, ImportInput{Path: path})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestImport_FileNotFound(t *testing.T) {
	cfg := testConfig(t)

	_, err := Import(context.Background(), cfg, &recordingAdder{}, ImportInput{Path: filepath.Join(cfg.ExportsDir, "missing.csv")})
	require.True(t, errors.Is(err, errors.ErrFileNotFound), "got %v", err)
}

func TestImport_PathRequired(t *testing.T) {
	_, err := Import(context.Background(), testConfig(t), &recordingAdder{}, ImportInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "got %v", err)
}

func TestImport_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	path := writeImportFile(t, cfg.ExportsDir, "c.csv", []byte("SKU\n1\n2\n"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	adder := &recordingAdder{}
	_, err := Import(ctx, cfg, adder, ImportInput{Path: path})
	require.True(t, errors.Is(err, errors.ErrCancelled), "got %v", err)
	require.Empty(t, adder.added)
}

func TestImport_ExportRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	records := []product.Record{
		{SKU: "1", ItemName: `a "quoted", name`, Category: "x", Price: strPtr("100")},
		{SKU: "2", ItemName: "multi\nline"},
	}
	exported, err := ExportRecords(context.Background(), cfg, records, ExportInput{Label: "roundtrip"})
	require.NoError(t, err)

	adder := &recordingAdder{}
	out, err := Import(context.Background(), cfg, adder, ImportInput{Path: exported.Path})
	require.NoError(t, err)
	require.Equal(t, 2, out.Added)

	got := adder.bySKU()
	require.Equal(t, product.Normalize(records[0]), got["1"])
	require.Equal(t, product.Normalize(records[1]), got["2"])
}

func TestHeaderKey(t *testing.T) {
	tests := map[string]string{
		"SKU":                      product.KeySKU,
		" sku ":                    product.KeySKU,
		"\ufeffSKU":                product.KeySKU,
		"Items Name (Do Not Edit)": product.KeyItemName,
		"item-name":                product.KeyItemName,
		"PRODUSEN":                 product.KeyCategory,
		"Basic - Price":            product.KeyPrice,
		"Stock":                    "",
	}
	for in, want := range tests {
		if got := headerKey(in); got != want {
			t.Errorf("headerKey(%q) = %q, want %q", in, got, want)
		}
	}
}
