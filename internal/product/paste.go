package product

import (
	"regexp"
	"strings"
)

// pasteFields maps clipboard labels to record fields.
// BRAND and SATUAN are the labels used by the supplier sheets.
var pasteFields = []struct {
	re  *regexp.Regexp
	set func(r *Record, v string)
}{
	{pasteRegex("ITEMS_NAME"), func(r *Record, v string) { r.ItemName = v }},
	{pasteRegex("CATEGORY"), func(r *Record, v string) { r.Category = v }},
	{pasteRegex("BRAND"), func(r *Record, v string) { r.BrandName = v }},
	{pasteRegex("SATUAN"), func(r *Record, v string) { r.VariantName = v }},
}

func pasteRegex(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(label) + `: ?\(([^)]+)\)`)
}

// ParseSmartPaste extracts "LABEL: (value)" pairs from pasted text.
// Found values are trimmed and upper-cased; missing labels leave the field empty.
// SKU and price are never read from pasted text.
func ParseSmartPaste(text string) Record {
	var r Record
	for _, f := range pasteFields {
		m := f.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			f.set(&r, strings.ToUpper(v))
		}
	}
	return r
}

// PastePatch converts a parsed paste into a patch that only touches found fields.
func PastePatch(parsed Record) Patch {
	var p Patch
	if parsed.ItemName != "" {
		p.ItemName = &parsed.ItemName
	}
	if parsed.Category != "" {
		p.Category = &parsed.Category
	}
	if parsed.BrandName != "" {
		p.BrandName = &parsed.BrandName
	}
	if parsed.VariantName != "" {
		p.VariantName = &parsed.VariantName
	}
	return p
}
