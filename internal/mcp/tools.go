package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Record field arguments shared by lookup_set_fields and cart_add.
func recordFieldOptions(skuRequired bool) []mcp.ToolOption {
	skuOpts := []mcp.PropertyOption{mcp.Description("Product SKU (barcode).")}
	if skuRequired {
		skuOpts = append(skuOpts, mcp.Required())
	}
	return []mcp.ToolOption{
		mcp.WithString("sku", skuOpts...),
		mcp.WithString("items_name", mcp.Description("Item name.")),
		mcp.WithString("category", mcp.Description("Category (manufacturer).")),
		mcp.WithString("brand_name", mcp.Description("Brand name.")),
		mcp.WithString("variant_name", mcp.Description("Variant or pack size, e.g. 1L or 500G.")),
		mcp.WithString("price", mcp.Description("Price as text. An empty string clears it.")),
	}
}

func withOptions(name string, base []mcp.ToolOption, extra ...mcp.ToolOption) mcp.Tool {
	return mcp.NewTool(name, append(base, extra...)...)
}

var lookupSearchToolDef = mcp.NewTool("lookup_search",
	mcp.WithDescription("Search the catalog by SKU or name. An empty query lists every product. "+
		"On a miss the product form opens; barcode-like misses are first looked up with AI. "+
		"Returns the lookup state."),
	mcp.WithString("query", mcp.Description("SKU or name fragment. Case-insensitive.")),
)

var lookupEnrichToolDef = mcp.NewTool("lookup_enrich",
	mcp.WithDescription("Ask an AI provider to fill the empty fields of the open product form."),
	mcp.WithString("provider", mcp.Description("AI provider."), mcp.Enum("gemini", "chatgpt")),
)

var lookupEditToolDef = mcp.NewTool("lookup_edit",
	mcp.WithDescription("Open a search result in the edit form. The SKU cannot be changed while editing."),
	mcp.WithString("sku", mcp.Required(), mcp.Description("SKU of a record in the current results.")),
)

var lookupNewToolDef = mcp.NewTool("lookup_new",
	mcp.WithDescription("Open an empty add form."),
	mcp.WithString("sku", mcp.Description("SKU to prefill.")),
)

var lookupVariantToolDef = mcp.NewTool("lookup_variant",
	mcp.WithDescription("Open an add form for the next free pack-size variant of a search result "+
		"(SKU root plus the first unused letter A-Z)."),
	mcp.WithString("parent_sku", mcp.Required(), mcp.Description("SKU of the parent product in the current results.")),
)

var lookupSetFieldsToolDef = withOptions("lookup_set_fields",
	recordFieldOptions(false),
	mcp.WithDescription("Set fields on the open product form. Omitted fields are left unchanged."),
)

var lookupSmartPasteToolDef = mcp.NewTool("lookup_smart_paste",
	mcp.WithDescription(`Fill the open form from labelled text such as "ITEMS_NAME: (Kopi) BRAND: (Kapal Api)". SKU and price are never read.`),
	mcp.WithString("text", mcp.Required(), mcp.Description("Text to parse.")),
)

var lookupSaveToolDef = mcp.NewTool("lookup_save",
	mcp.WithDescription("Validate and submit the open form: add for a new product, update when editing."),
)

var lookupCancelToolDef = mcp.NewTool("lookup_cancel",
	mcp.WithDescription("Leave the form and drop any pending request. A late response is discarded."),
)

var lookupStateToolDef = mcp.NewTool("lookup_state",
	mcp.WithDescription("Return the current lookup state without changing it."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var cartAddToolDef = withOptions("cart_add",
	recordFieldOptions(true),
	mcp.WithDescription("Stage a product in the export cart. Fails with DUPLICATE_SKU if already staged."),
)

var cartAddResultToolDef = mcp.NewTool("cart_add_result",
	mcp.WithDescription("Stage a record from the current search results in the export cart."),
	mcp.WithString("sku", mcp.Required(), mcp.Description("SKU of a record in the current results.")),
)

var cartRemoveToolDef = mcp.NewTool("cart_remove",
	mcp.WithDescription("Remove a product from the cart. Removing an absent SKU is a no-op."),
	mcp.WithString("sku", mcp.Required(), mcp.Description("SKU to remove.")),
	mcp.WithBoolean("confirm", mcp.Description("Must be true unless confirmation is disabled in config.")),
	mcp.WithDestructiveHintAnnotation(true),
)

var cartClearToolDef = mcp.NewTool("cart_clear",
	mcp.WithDescription("Empty the cart."),
	mcp.WithBoolean("confirm", mcp.Description("Must be true unless confirmation is disabled in config.")),
	mcp.WithDestructiveHintAnnotation(true),
)

var cartListToolDef = mcp.NewTool("cart_list",
	mcp.WithDescription("List the staged products in insertion order."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var cartExportToolDef = mcp.NewTool("cart_export",
	mcp.WithDescription("Write the cart as a point-of-sale CSV file, or return the CSV text inline."),
	mcp.WithString("path", mcp.Description("Target .csv path. Default: <exports dir>/<label>_<YYYYMMDD_HHMM>.csv.")),
	mcp.WithString("label", mcp.Description("Filename label. Default: CART.")),
	mcp.WithString("columns", mcp.Description("Column set."), mcp.Enum("moka", "catalog")),
	mcp.WithBoolean("inline", mcp.Description("Return the CSV text instead of writing a file.")),
)

var catalogExportToolDef = mcp.NewTool("catalog_export",
	mcp.WithDescription("Fetch every product from the catalog and write it as CSV."),
	mcp.WithString("path", mcp.Description("Target .csv path. Default: <exports dir>/<label>_<YYYYMMDD_HHMM>.csv.")),
	mcp.WithString("label", mcp.Description("Filename label. Default: ALL_PRODUCTS.")),
	mcp.WithString("columns", mcp.Description("Column set."), mcp.Enum("catalog", "moka")),
)

var catalogImportToolDef = mcp.NewTool("catalog_import",
	mcp.WithDescription("Add every row of a catalog CSV through the backend. "+
		"Needs a SKU column; PRODUSEN is read as CATEGORY. Existing SKUs are skipped."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Source .csv path.")),
)
