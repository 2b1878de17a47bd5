package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/skumate/internal/cart"
	"github.com/hpungsan/skumate/internal/config"
	"github.com/hpungsan/skumate/internal/csvexport"
	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/ops"
	"github.com/hpungsan/skumate/internal/product"
	"github.com/hpungsan/skumate/internal/workflow"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	cfg     *config.Config
	engine  *workflow.Engine
	cart    *cart.Store
	catalog Catalog
	logger  *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		cfg:     cfg,
		engine:  deps.Engine,
		cart:    deps.Cart,
		catalog: deps.Catalog,
		logger:  logger,
	}
}

// Request types for each tool

// SearchRequest represents the arguments for lookup_search.
type SearchRequest struct {
	Query string `json:"query,omitempty"`
}

// EnrichRequest represents the arguments for lookup_enrich.
type EnrichRequest struct {
	Provider string `json:"provider,omitempty"`
}

// SKURequest represents tools addressed by a single SKU.
type SKURequest struct {
	SKU string `json:"sku"`
}

// VariantRequest represents the arguments for lookup_variant.
type VariantRequest struct {
	ParentSKU string `json:"parent_sku"`
}

// FieldsRequest carries optional record fields. Absent fields are nil.
type FieldsRequest struct {
	SKU         *string `json:"sku,omitempty"`
	ItemName    *string `json:"items_name,omitempty"`
	Category    *string `json:"category,omitempty"`
	BrandName   *string `json:"brand_name,omitempty"`
	VariantName *string `json:"variant_name,omitempty"`
	Price       *string `json:"price,omitempty"`
}

func (f FieldsRequest) patch() product.Patch {
	return product.Patch{
		SKU:         f.SKU,
		ItemName:    f.ItemName,
		Category:    f.Category,
		BrandName:   f.BrandName,
		VariantName: f.VariantName,
		Price:       f.Price,
	}
}

// SmartPasteRequest represents the arguments for lookup_smart_paste.
type SmartPasteRequest struct {
	Text string `json:"text"`
}

// ConfirmRequest represents destructive cart tools.
type ConfirmRequest struct {
	SKU     string `json:"sku,omitempty"`
	Confirm bool   `json:"confirm,omitempty"`
}

// ExportRequest represents the arguments for cart_export and catalog_export.
type ExportRequest struct {
	Path    string `json:"path,omitempty"`
	Label   string `json:"label,omitempty"`
	Columns string `json:"columns,omitempty"`
	Inline  bool   `json:"inline,omitempty"`
}

// ImportRequest represents the arguments for catalog_import.
type ImportRequest struct {
	Path string `json:"path"`
}

// CartOutput is returned by the cart tools.
type CartOutput struct {
	Items   []product.Record `json:"items"`
	Count   int              `json:"count"`
	Changed bool             `json:"changed"`
	// Warning is set when the change was applied but could not be saved.
	Warning string `json:"warning,omitempty"`
}

// CSVOutput is returned by cart_export with inline set.
type CSVOutput struct {
	CSV   string `json:"csv"`
	Count int    `json:"count"`
}

// Lookup handlers

// HandleLookupSearch handles the lookup_search tool call.
func (h *Handlers) HandleLookupSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	return h.dispatch(ctx, workflow.Search{Query: input.Query})
}

// HandleLookupEnrich handles the lookup_enrich tool call.
func (h *Handlers) HandleLookupEnrich(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[EnrichRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	return h.dispatch(ctx, workflow.Enrich{Provider: input.Provider})
}

// HandleLookupEdit handles the lookup_edit tool call.
func (h *Handlers) HandleLookupEdit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SKURequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if strings.TrimSpace(input.SKU) == "" {
		return errorResult(errors.NewInvalidRequest("sku is required")), nil
	}
	return h.dispatch(ctx, workflow.Edit{SKU: input.SKU})
}

// HandleLookupNew handles the lookup_new tool call.
func (h *Handlers) HandleLookupNew(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SKURequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	return h.dispatch(ctx, workflow.NewProduct{SKU: input.SKU})
}

// HandleLookupVariant handles the lookup_variant tool call.
func (h *Handlers) HandleLookupVariant(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[VariantRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if strings.TrimSpace(input.ParentSKU) == "" {
		return errorResult(errors.NewInvalidRequest("parent_sku is required")), nil
	}
	return h.dispatch(ctx, workflow.AddVariant{ParentSKU: input.ParentSKU})
}

// HandleLookupSetFields handles the lookup_set_fields tool call.
func (h *Handlers) HandleLookupSetFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FieldsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	return h.dispatch(ctx, workflow.SetFields{Patch: input.patch()})
}

// HandleLookupSmartPaste handles the lookup_smart_paste tool call.
func (h *Handlers) HandleLookupSmartPaste(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SmartPasteRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	return h.dispatch(ctx, workflow.SmartPaste{Text: input.Text})
}

// HandleLookupSave handles the lookup_save tool call.
func (h *Handlers) HandleLookupSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.dispatch(ctx, workflow.Save{})
}

// HandleLookupCancel handles the lookup_cancel tool call.
func (h *Handlers) HandleLookupCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.dispatch(ctx, workflow.Cancel{})
}

// HandleLookupState handles the lookup_state tool call.
func (h *Handlers) HandleLookupState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.engine.State())
}

func (h *Handlers) dispatch(ctx context.Context, ev workflow.Event) (*mcp.CallToolResult, error) {
	state, err := h.engine.Dispatch(ctx, ev)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(state)
}

// Cart handlers

// HandleCartAdd handles the cart_add tool call.
func (h *Handlers) HandleCartAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FieldsRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	_, err = h.cart.Add(ctx, input.patch().Apply(product.Record{}))
	return h.cartResult(err, true)
}

// HandleCartAddResult handles the cart_add_result tool call.
func (h *Handlers) HandleCartAddResult(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SKURequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	rec, ok := h.engine.State().Find(input.SKU)
	if !ok {
		return errorResult(errors.NewNotFound(product.NormalizeSKU(input.SKU))), nil
	}
	_, err = h.cart.Add(ctx, rec)
	return h.cartResult(err, true)
}

// HandleCartRemove handles the cart_remove tool call.
func (h *Handlers) HandleCartRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConfirmRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if strings.TrimSpace(input.SKU) == "" {
		return errorResult(errors.NewInvalidRequest("sku is required")), nil
	}
	if err := h.requireConfirm(input.Confirm); err != nil {
		return errorResult(err), nil
	}
	removed, err := h.cart.Remove(ctx, input.SKU)
	return h.cartResult(err, removed)
}

// HandleCartClear handles the cart_clear tool call.
func (h *Handlers) HandleCartClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ConfirmRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := h.requireConfirm(input.Confirm); err != nil {
		return errorResult(err), nil
	}
	changed := h.cart.Len() > 0
	return h.cartResult(h.cart.Clear(ctx), changed)
}

// HandleCartList handles the cart_list tool call.
func (h *Handlers) HandleCartList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.cartResult(nil, false)
}

// HandleCartExport handles the cart_export tool call.
func (h *Handlers) HandleCartExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	columns, err := columnSet(input.Columns, csvexport.MokaColumns)
	if err != nil {
		return errorResult(err), nil
	}

	if input.Inline {
		if h.cart.Len() == 0 {
			return errorResult(errors.NewInvalidRequest("cart is empty")), nil
		}
		text, err := h.cart.ToCSV(columns)
		if err != nil {
			return errorResult(errors.NewInternal(err)), nil
		}
		return successResult(CSVOutput{CSV: text, Count: h.cart.Len()})
	}

	result, err := ops.ExportCart(ctx, h.cfg, h.cart, ops.ExportInput{
		Path:    input.Path,
		Label:   input.Label,
		Columns: columns,
	})
	if err != nil {
		return errorResult(err), nil
	}
	h.logger.Info("cart exported", "path", result.Path, "count", result.Count)
	return successResult(result)
}

// Catalog handlers

// HandleCatalogExport handles the catalog_export tool call.
func (h *Handlers) HandleCatalogExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}
	columns, err := columnSet(input.Columns, csvexport.CatalogColumns)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.ExportAll(ctx, h.cfg, h.catalog, ops.ExportInput{
		Path:    input.Path,
		Label:   input.Label,
		Columns: columns,
	})
	if err != nil {
		return errorResult(err), nil
	}
	h.logger.Info("catalog exported", "path", result.Path, "count", result.Count)
	return successResult(result)
}

// HandleCatalogImport handles the catalog_import tool call.
func (h *Handlers) HandleCatalogImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Import(ctx, h.cfg, h.catalog, ops.ImportInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}
	h.logger.Info("catalog imported", "path", input.Path,
		"added", result.Added, "skipped", result.Skipped, "failed", result.Failed)
	return successResult(result)
}

func (h *Handlers) requireConfirm(confirm bool) error {
	if h.cfg.ShouldConfirm() && !confirm {
		return errors.NewInvalidRequest("confirmation required: pass confirm=true")
	}
	return nil
}

// cartResult reports the cart after a mutation. A PERSISTENCE error is a
// warning: the change stays applied in memory.
func (h *Handlers) cartResult(err error, changed bool) (*mcp.CallToolResult, error) {
	out := CartOutput{Changed: changed}
	if err != nil {
		if !errors.Is(err, errors.ErrPersistence) {
			return errorResult(err), nil
		}
		out.Warning = errors.MessageOf(err)
	}
	out.Items = h.cart.Items()
	if out.Items == nil {
		out.Items = []product.Record{}
	}
	out.Count = len(out.Items)
	return successResult(out)
}

func columnSet(name string, fallback []csvexport.Column) ([]csvexport.Column, error) {
	if strings.TrimSpace(name) == "" {
		return fallback, nil
	}
	columns, err := csvexport.ColumnSet(name)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}
	return columns, nil
}

// Result helpers

// errorResult creates an MCP error result from any error.
// INTERNAL errors never include details, which may hold paths or SQL.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var sErr *errors.SkuError
	if stderrors.As(err, &sErr) {
		message := sErr.Message
		// Keep wrapper context such as "row 3: ...".
		if err != error(sErr) {
			message = strings.Replace(err.Error(), sErr.Error(), sErr.Message, 1)
		}
		errorObj := map[string]any{
			"code":    sErr.Code,
			"message": message,
			"status":  sErr.Status,
		}
		if sErr.Code != errors.ErrInternal && len(sErr.Details) > 0 {
			errorObj["details"] = sErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
