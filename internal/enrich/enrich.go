// Package enrich fills in product details for an unknown SKU using an AI
// provider, either through the catalog backend or by calling OpenAI directly.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hpungsan/skumate/internal/product"
)

// Provider names accepted by the backend's enrich endpoint.
const (
	ProviderGemini  = "gemini"
	ProviderChatGPT = "chatgpt"
)

// Request asks for details about one SKU.
type Request struct {
	SKU string
	// NameHint is the item name typed so far, if any.
	NameHint string
	// Provider selects the AI backend; empty means the configured default.
	Provider string
}

// Enricher returns a partial record for a SKU. Unknown fields come back empty.
type Enricher interface {
	Enrich(ctx context.Context, req Request) (product.Record, error)
}

// Result is the JSON object an AI provider answers with.
type Result struct {
	ItemsName   string `json:"items_name"`
	Category    string `json:"category"`
	BrandName   string `json:"brand_name"`
	VariantName string `json:"variant_name"`
}

// Record converts the result into a normalized partial record for sku.
func (r Result) Record(sku string) product.Record {
	return product.Normalize(product.Record{
		SKU:         sku,
		ItemName:    strings.TrimSpace(r.ItemsName),
		Category:    strings.TrimSpace(r.Category),
		BrandName:   strings.TrimSpace(r.BrandName),
		VariantName: strings.TrimSpace(r.VariantName),
	})
}

// ParseResult decodes model output that may be wrapped in a markdown fence
// or prefixed with "json".
func ParseResult(text string) (Result, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(text), "\n", "")
	clean = strings.ReplaceAll(clean, "`", "")
	clean = strings.TrimSpace(clean)
	clean = strings.TrimPrefix(clean, "json")

	var res Result
	if err := json.Unmarshal([]byte(clean), &res); err != nil {
		return Result{}, fmt.Errorf("provider returned invalid JSON: %w", err)
	}
	return res, nil
}

// Prompt builds the instruction sent to the model. Fields the model cannot
// verify must come back as empty strings.
func Prompt(sku, nameHint string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an accurate product data assistant. Provide data for the product with SKU/barcode '%s'", sku)
	if hint := strings.TrimSpace(nameHint); hint != "" {
		fmt.Fprintf(&b, " and a product name similar to '%s'", hint)
	}
	b.WriteString(" in JSON format.\n")
	b.WriteString("Field names must be lower-case snake_case: 'items_name', 'category', 'brand_name' and 'variant_name'.\n")
	b.WriteString("For 'category', use the legal name of the manufacturing company (PT, CV, Corp, Ltd., etc).\n\n")
	b.WriteString("IMPORTANT: If you cannot find 100% accurate and verified information for a field, you MUST return an empty string \"\" for that field. Do NOT guess or invent information.\n")
	b.WriteString("Output only JSON, with no markdown formatting or extra text.")
	return b.String()
}
