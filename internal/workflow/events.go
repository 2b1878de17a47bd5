package workflow

import (
	"github.com/hpungsan/skumate/internal/enrich"
	"github.com/hpungsan/skumate/internal/product"
)

// Event is an input to Reduce: a user action or a collaborator completion.
type Event interface {
	event()
}

// Search runs a catalog search. A blank query lists everything.
type Search struct{ Query string }

// Enrich asks an AI provider to fill the form's empty fields.
type Enrich struct{ Provider string }

// Save submits the form as an add or an update.
type Save struct{}

// Edit opens a result in the edit form.
type Edit struct{ SKU string }

// NewProduct opens an empty add form for sku.
type NewProduct struct{ SKU string }

// AddVariant opens an add form for the next free variant of a result.
type AddVariant struct{ ParentSKU string }

// SetFields edits form fields. SKU is ignored while editing.
type SetFields struct{ Patch product.Patch }

// SmartPaste fills the form from "LABEL: (value)" text.
type SmartPaste struct{ Text string }

// Cancel drops any pending request and leaves the form.
type Cancel struct{}

// SearchDone completes a Search request.
type SearchDone struct {
	Token   string
	Results []product.Record
	Err     error
}

// EnrichDone completes an Enrich request.
type EnrichDone struct {
	Token  string
	Record product.Record
	Err    error
}

// SaveDone completes an add or update request.
type SaveDone struct {
	Token  string
	Record product.Record
	Err    error
}

func (Search) event()     {}
func (Enrich) event()     {}
func (Save) event()       {}
func (Edit) event()       {}
func (NewProduct) event() {}
func (AddVariant) event() {}
func (SetFields) event()  {}
func (SmartPaste) event() {}
func (Cancel) event()     {}
func (SearchDone) event() {}
func (EnrichDone) event() {}
func (SaveDone) event()   {}

// Effect is a collaborator call requested by Reduce.
type Effect interface {
	token() string
}

// SearchEffect calls Catalog.Search.
type SearchEffect struct {
	Token string
	Query string
}

// EnrichEffect calls Enricher.Enrich.
type EnrichEffect struct {
	Token   string
	Request enrich.Request
}

// SaveEffect calls Catalog.Add, or Catalog.Update when Update is set.
type SaveEffect struct {
	Token  string
	Record product.Record
	Update bool
}

func (e SearchEffect) token() string { return e.Token }
func (e EnrichEffect) token() string { return e.Token }
func (e SaveEffect) token() string   { return e.Token }
