// Package workflow drives the product lookup flow: search, fall back to AI
// enrichment on a miss, then add or edit through a form.
//
// Reduce is a pure transition function. Engine owns one State, runs the
// catalog and enrichment calls the reducer asks for, and feeds their results
// back in.
package workflow

import (
	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

// Mode is the screen the user is on.
type Mode string

const (
	ModeSearching    Mode = "searching"
	ModeResultsShown Mode = "results"
	ModeAddForm      Mode = "add_form"
	ModeEditForm     Mode = "edit_form"
	ModeEnriching    Mode = "enriching"
)

// Wildcard is the query used when the search box is empty.
const Wildcard = "*"

// Fallback policies for a search miss.
const (
	// FallbackNumeric enriches only when the query looks like a barcode.
	FallbackNumeric = "numeric"
	// FallbackAlways enriches every non-wildcard miss.
	FallbackAlways = "always"
)

// NoticeLevel distinguishes informational notices from errors.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is the last message shown to the user.
type Notice struct {
	Level   NoticeLevel      `json:"level"`
	Code    errors.ErrorCode `json:"code,omitempty"`
	Message string           `json:"message"`
}

// RequestKind names the collaborator call a pending request waits on.
type RequestKind string

const (
	RequestSearch RequestKind = "search"
	RequestEnrich RequestKind = "enrich"
	RequestAdd    RequestKind = "add"
	RequestUpdate RequestKind = "update"
)

// Pending identifies the one in-flight request.
type Pending struct {
	Token string      `json:"token"`
	Kind  RequestKind `json:"kind"`
}

// State is the transient workflow state. It is never persisted.
type State struct {
	Mode  Mode   `json:"mode"`
	Query string `json:"query,omitempty"`

	// EditingSKU is the SKU captured when an edit started. It is the key
	// sent with the update and cannot be changed from the form.
	EditingSKU string `json:"editing_sku,omitempty"`

	Results []product.Record `json:"results"`
	Form    product.Record   `json:"form"`

	// Variant is set while the form holds a new pack-size variant.
	Variant bool `json:"variant,omitempty"`

	// Searched is set once any search has completed.
	Searched bool `json:"searched"`

	// ReturnMode is the form an enrichment returns to.
	ReturnMode Mode `json:"return_mode,omitempty"`

	Pending *Pending `json:"pending,omitempty"`
	Notice  *Notice  `json:"notice,omitempty"`
}

// Initial is the state before anything has happened.
func Initial() State {
	return State{Mode: ModeSearching}
}

// Busy reports whether a request is in flight.
func (s State) Busy() bool {
	return s.Pending != nil
}

// InForm reports whether a form is showing.
func (s State) InForm() bool {
	return s.Mode == ModeAddForm || s.Mode == ModeEditForm
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := s
	out.Results = product.Clone(s.Results)
	if s.Form.Price != nil {
		p := *s.Form.Price
		out.Form.Price = &p
	}
	if s.Pending != nil {
		p := *s.Pending
		out.Pending = &p
	}
	if s.Notice != nil {
		n := *s.Notice
		out.Notice = &n
	}
	return out
}

// Find returns the result with the given SKU.
func (s State) Find(sku string) (product.Record, bool) {
	sku = product.NormalizeSKU(sku)
	for _, r := range s.Results {
		if product.NormalizeSKU(r.SKU) == sku {
			return r, true
		}
	}
	return product.Record{}, false
}
