package workflow

import (
	"fmt"
	"strings"

	"github.com/hpungsan/skumate/internal/enrich"
	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

// Policy controls what happens on a search miss and which provider enriches.
type Policy struct {
	// Fallback is FallbackNumeric or FallbackAlways.
	Fallback string
	// MinDigits is the shortest all-digit query treated as a barcode.
	MinDigits int
	// Provider is the default enrichment provider.
	Provider string
}

// DefaultPolicy enriches barcode-looking misses of 8+ digits with gemini.
func DefaultPolicy() Policy {
	return Policy{Fallback: FallbackNumeric, MinDigits: 8, Provider: enrich.ProviderGemini}
}

func (p Policy) shouldEnrich(query string) bool {
	if p.Fallback == FallbackAlways {
		return true
	}
	return product.LooksLikeBarcode(query, p.MinDigits)
}

// Reducer holds what Reduce needs besides state and event.
type Reducer struct {
	Policy Policy
	// NewToken returns a fresh request token.
	NewToken func() string
}

// Reduce applies ev to s and returns the next state and the calls to make.
//
// A non-nil error means the event was rejected. The returned state then
// differs from s at most by its Notice. BUSY rejections leave s untouched.
// Completions whose token does not match the pending request are ignored.
func (r Reducer) Reduce(s State, ev Event) (State, []Effect, error) {
	s = s.Clone()

	switch ev := ev.(type) {
	case Search:
		return r.search(s, ev)
	case Enrich:
		return r.enrich(s, ev)
	case Save:
		return r.save(s)
	case Edit:
		return r.edit(s, ev)
	case NewProduct:
		return r.newProduct(s, ev)
	case AddVariant:
		return r.addVariant(s, ev)
	case SetFields:
		return r.setFields(s, ev.Patch, false)
	case SmartPaste:
		return r.smartPaste(s, ev)
	case Cancel:
		return r.cancel(s), nil, nil
	case SearchDone:
		return r.searchDone(s, ev)
	case EnrichDone:
		return r.enrichDone(s, ev), nil, nil
	case SaveDone:
		return r.saveDone(s, ev), nil, nil
	}
	return s, nil, errors.NewInvalidRequest(fmt.Sprintf("unknown event %T", ev))
}

func (r Reducer) begin(s *State, kind RequestKind) string {
	token := r.NewToken()
	s.Pending = &Pending{Token: token, Kind: kind}
	return token
}

func busy(s State) error {
	return errors.NewBusy(string(s.Pending.Kind))
}

// reject records err as the notice and returns it.
func reject(s State, err error) (State, []Effect, error) {
	s.Notice = errorNotice(err)
	return s, nil, err
}

func errorNotice(err error) *Notice {
	return &Notice{Level: NoticeError, Code: errors.CodeOf(err), Message: errors.MessageOf(err)}
}

func infoNotice(msg string) *Notice {
	return &Notice{Level: NoticeInfo, Message: msg}
}

func (r Reducer) search(s State, ev Search) (State, []Effect, error) {
	if s.Busy() {
		return s, nil, busy(s)
	}

	q := strings.ToUpper(strings.TrimSpace(ev.Query))
	if q == "" {
		q = Wildcard
	}

	s.Mode = ModeSearching
	s.Query = q
	s.EditingSKU = ""
	s.Form = product.Record{}
	s.Variant = false
	s.ReturnMode = ""
	s.Notice = nil
	token := r.begin(&s, RequestSearch)
	return s, []Effect{SearchEffect{Token: token, Query: q}}, nil
}

func (r Reducer) searchDone(s State, ev SearchDone) (State, []Effect, error) {
	if !matches(s, ev.Token) {
		return s, nil, nil
	}
	s.Pending = nil
	s.Searched = true

	if ev.Err != nil {
		// Keep the previous results on screen.
		s.Mode = ModeResultsShown
		s.Notice = errorNotice(ev.Err)
		return s, nil, nil
	}

	if len(ev.Results) > 0 {
		s.Mode = ModeResultsShown
		s.Results = normalizeAll(ev.Results)
		return s, nil, nil
	}

	s.Results = []product.Record{}
	if s.Query == Wildcard {
		s.Mode = ModeResultsShown
		s.Notice = infoNotice("No products in the catalog.")
		return s, nil, nil
	}

	s.Form = product.Record{SKU: s.Query}
	if r.Policy.shouldEnrich(s.Query) {
		s.Mode = ModeEnriching
		s.ReturnMode = ModeAddForm
		s.Notice = infoNotice("Product not found. Looking it up online with AI...")
		token := r.begin(&s, RequestEnrich)
		return s, []Effect{EnrichEffect{
			Token:   token,
			Request: enrich.Request{SKU: s.Query, Provider: r.Policy.Provider},
		}}, nil
	}

	s.Mode = ModeAddForm
	s.Notice = infoNotice("No matching products found.")
	return s, nil, nil
}

func (r Reducer) enrich(s State, ev Enrich) (State, []Effect, error) {
	if s.Busy() {
		return s, nil, busy(s)
	}
	if !s.InForm() {
		return reject(s, errors.NewInvalidRequest("enrich is only available from a product form"))
	}
	sku := product.NormalizeSKU(s.Form.SKU)
	if s.Mode == ModeEditForm {
		sku = s.EditingSKU
	}
	if sku == "" {
		return reject(s, errors.NewValidation(product.KeySKU, "enter a SKU before asking AI"))
	}

	provider := strings.ToLower(strings.TrimSpace(ev.Provider))
	if provider == "" {
		provider = r.Policy.Provider
	}

	s.ReturnMode = s.Mode
	s.Mode = ModeEnriching
	s.Notice = nil
	token := r.begin(&s, RequestEnrich)
	return s, []Effect{EnrichEffect{
		Token:   token,
		Request: enrich.Request{SKU: sku, NameHint: strings.TrimSpace(s.Form.ItemName), Provider: provider},
	}}, nil
}

func (r Reducer) enrichDone(s State, ev EnrichDone) State {
	if !matches(s, ev.Token) {
		return s
	}
	s.Pending = nil
	s.Mode = s.ReturnMode
	if s.Mode == "" {
		s.Mode = ModeAddForm
	}
	s.ReturnMode = ""

	if ev.Err != nil {
		s.Notice = errorNotice(ev.Err)
		return s
	}

	s.Form = product.FillEmpty(s.Form, product.Normalize(ev.Record))
	s.Notice = infoNotice("Details filled in by AI. Check them before saving.")
	return s
}

func (r Reducer) save(s State) (State, []Effect, error) {
	if s.Busy() {
		return s, nil, busy(s)
	}
	if !s.InForm() {
		return reject(s, errors.NewInvalidRequest("nothing to save"))
	}

	rec := s.Form
	update := s.Mode == ModeEditForm
	if update {
		rec.SKU = s.EditingSKU
	}
	if err := product.Validate(rec, s.Variant); err != nil {
		return reject(s, err)
	}
	rec = product.Normalize(rec)

	kind := RequestAdd
	if update {
		kind = RequestUpdate
	}
	s.Notice = nil
	token := r.begin(&s, kind)
	return s, []Effect{SaveEffect{Token: token, Record: rec, Update: update}}, nil
}

func (r Reducer) saveDone(s State, ev SaveDone) State {
	if !matches(s, ev.Token) {
		return s
	}
	kind := s.Pending.Kind
	s.Pending = nil

	if ev.Err != nil {
		s.Notice = errorNotice(ev.Err)
		return s
	}

	saved := product.Normalize(ev.Record)
	s.Mode = ModeResultsShown
	s.Results = []product.Record{saved}
	s.Form = product.Record{}
	s.EditingSKU = ""
	s.Variant = false
	if kind == RequestUpdate {
		s.Notice = infoNotice("Product updated.")
	} else {
		s.Notice = infoNotice("Product added.")
	}
	return s
}

func (r Reducer) edit(s State, ev Edit) (State, []Effect, error) {
	if s.Busy() {
		return s, nil, busy(s)
	}
	if s.Mode != ModeResultsShown {
		return reject(s, errors.NewInvalidRequest("edit is only available from search results"))
	}
	rec, ok := s.Find(ev.SKU)
	if !ok {
		return reject(s, errors.NewNotFound(product.NormalizeSKU(ev.SKU)))
	}

	s.Mode = ModeEditForm
	s.EditingSKU = product.NormalizeSKU(rec.SKU)
	s.Form = rec
	s.Variant = false
	s.Notice = nil
	return s, nil, nil
}

func (r Reducer) newProduct(s State, ev NewProduct) (State, []Effect, error) {
	if s.Busy() {
		return s, nil, busy(s)
	}
	s.Mode = ModeAddForm
	s.EditingSKU = ""
	s.Form = product.Record{SKU: product.NormalizeSKU(ev.SKU)}
	s.Variant = false
	s.Notice = nil
	return s, nil, nil
}

func (r Reducer) addVariant(s State, ev AddVariant) (State, []Effect, error) {
	if s.Busy() {
		return s, nil, busy(s)
	}
	if s.Mode != ModeResultsShown {
		return reject(s, errors.NewInvalidRequest("variants are created from search results"))
	}
	parent, ok := s.Find(ev.ParentSKU)
	if !ok {
		return reject(s, errors.NewNotFound(product.NormalizeSKU(ev.ParentSKU)))
	}
	sku, err := product.NextVariantSKU(parent.SKU, product.SKUs(s.Results))
	if err != nil {
		return reject(s, err)
	}

	s.Mode = ModeAddForm
	s.EditingSKU = ""
	s.Form = product.NewVariant(parent, sku)
	s.Variant = true
	s.Notice = infoNotice(fmt.Sprintf("New variant %s of %s. Pick a variant name.", sku, product.NormalizeSKU(parent.SKU)))
	return s, nil, nil
}

func (r Reducer) setFields(s State, p product.Patch, paste bool) (State, []Effect, error) {
	if s.Busy() {
		return s, nil, busy(s)
	}
	if !s.InForm() {
		return reject(s, errors.NewInvalidRequest("no form is open"))
	}
	if s.Mode == ModeEditForm {
		p.SKU = nil
	}
	s.Form = p.Apply(s.Form)
	if !paste {
		s.Notice = nil
	}
	return s, nil, nil
}

func (r Reducer) smartPaste(s State, ev SmartPaste) (State, []Effect, error) {
	parsed := product.ParseSmartPaste(ev.Text)
	if parsed == (product.Record{}) {
		if s.Busy() {
			return s, nil, busy(s)
		}
		if !s.InForm() {
			return reject(s, errors.NewInvalidRequest("no form is open"))
		}
		s.Notice = infoNotice("No recognizable fields in the pasted text.")
		return s, nil, nil
	}
	s, effects, err := r.setFields(s, product.PastePatch(parsed), true)
	if err == nil {
		s.Notice = infoNotice("Form filled from pasted text.")
	}
	return s, effects, err
}

func (r Reducer) cancel(s State) State {
	s.Pending = nil
	s.ReturnMode = ""
	s.Form = product.Record{}
	s.EditingSKU = ""
	s.Variant = false
	s.Notice = nil
	if s.Searched {
		s.Mode = ModeResultsShown
	} else {
		s.Mode = ModeSearching
	}
	return s
}

func matches(s State, token string) bool {
	return s.Pending != nil && s.Pending.Token == token
}

func normalizeAll(records []product.Record) []product.Record {
	out := make([]product.Record, len(records))
	for i, r := range records {
		out[i] = product.Normalize(r)
	}
	return out
}
