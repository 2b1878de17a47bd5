package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/skumate/internal/enrich"
	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

// fakeCatalog serves canned results. When gate is set, Search blocks until
// it is closed or the context ends.
type fakeCatalog struct {
	mu        sync.Mutex
	results   map[string][]product.Record
	searchErr error
	addErr    error
	updateErr error
	added     []product.Record
	updated   []product.Record
	gate      chan struct{}
	started   chan struct{}
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{results: make(map[string][]product.Record)}
}

func (f *fakeCatalog) Search(ctx context.Context, q string) ([]product.Record, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, errors.NewCancelled("search")
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.results[q], nil
}

func (f *fakeCatalog) Add(_ context.Context, r product.Record) (product.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return product.Record{}, f.addErr
	}
	f.added = append(f.added, r)
	return r, nil
}

func (f *fakeCatalog) Update(_ context.Context, r product.Record) (product.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return product.Record{}, f.updateErr
	}
	f.updated = append(f.updated, r)
	return r, nil
}

type fakeEnricher struct {
	record product.Record
	err    error
	calls  []enrich.Request
}

func (f *fakeEnricher) Enrich(_ context.Context, req enrich.Request) (product.Record, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return product.Record{}, f.err
	}
	r := f.record
	r.SKU = req.SKU
	return r, nil
}

func recordModes(modes *[]Mode) Option {
	return WithObserver(func(_, to Mode) {
		*modes = append(*modes, to)
	})
}

func TestEngine_BarcodeMissEnrichesBeforeForm(t *testing.T) {
	cat := newFakeCatalog()
	en := &fakeEnricher{record: product.Record{ItemName: "teh botol", BrandName: "sosro"}}
	var modes []Mode
	e := NewEngine(cat, en, recordModes(&modes))

	s, err := e.Dispatch(context.Background(), Search{Query: "99999999"})
	require.NoError(t, err)

	require.Equal(t, []Mode{ModeEnriching, ModeAddForm}, modes)
	require.Equal(t, ModeAddForm, s.Mode)
	require.Equal(t, "99999999", s.Form.SKU)
	require.Equal(t, "TEH BOTOL", s.Form.ItemName)
	require.Len(t, en.calls, 1)
	require.Equal(t, enrich.ProviderGemini, en.calls[0].Provider)
}

func TestEngine_TextMissGoesStraightToForm(t *testing.T) {
	cat := newFakeCatalog()
	en := &fakeEnricher{}
	var modes []Mode
	e := NewEngine(cat, en, recordModes(&modes))

	s, err := e.Dispatch(context.Background(), Search{Query: "widget"})
	require.NoError(t, err)
	require.Equal(t, ModeAddForm, s.Mode)
	require.Equal(t, "WIDGET", s.Form.SKU)
	require.Empty(t, en.calls)
	require.NotContains(t, modes, ModeEnriching)
}

func TestEngine_AlwaysPolicy(t *testing.T) {
	en := &fakeEnricher{record: product.Record{ItemName: "gadget"}}
	e := NewEngine(newFakeCatalog(), en, WithPolicy(Policy{Fallback: FallbackAlways, MinDigits: 8, Provider: "chatgpt"}))

	s, err := e.Dispatch(context.Background(), Search{Query: "widget"})
	require.NoError(t, err)
	require.Equal(t, "GADGET", s.Form.ItemName)
	require.Equal(t, "chatgpt", en.calls[0].Provider)
}

func TestEngine_EnrichFailureStillShowsForm(t *testing.T) {
	en := &fakeEnricher{err: errors.NewUpstream("enrich_with_ai", "AI call failed")}
	e := NewEngine(newFakeCatalog(), en)

	s, err := e.Dispatch(context.Background(), Search{Query: "12345678"})
	require.NoError(t, err)
	require.Equal(t, ModeAddForm, s.Mode)
	require.Equal(t, product.Record{SKU: "12345678"}, s.Form)
	require.Equal(t, NoticeError, s.Notice.Level)
}

func TestEngine_NoEnricher(t *testing.T) {
	e := NewEngine(newFakeCatalog(), nil)

	s, err := e.Dispatch(context.Background(), Search{Query: "12345678"})
	require.NoError(t, err)
	require.Equal(t, ModeAddForm, s.Mode)
	require.Equal(t, errors.ErrInvalidRequest, s.Notice.Code)
}

func TestEngine_AddFailureKeepsForm(t *testing.T) {
	cat := newFakeCatalog()
	cat.addErr = errors.NewUpstream("add_product", "insert failed")
	e := NewEngine(cat, nil)
	ctx := context.Background()

	_, err := e.Dispatch(ctx, NewProduct{SKU: "abc"})
	require.NoError(t, err)
	before, err := e.Dispatch(ctx, SetFields{Patch: product.Patch{ItemName: strPtr("kopi")}})
	require.NoError(t, err)

	s, err := e.Dispatch(ctx, Save{})
	require.NoError(t, err)
	require.Equal(t, ModeAddForm, s.Mode)
	require.Equal(t, before.Form, s.Form)
	require.Equal(t, "insert failed", s.Notice.Message)

	cat.addErr = nil
	s, err = e.Dispatch(ctx, Save{})
	require.NoError(t, err)
	require.Equal(t, ModeResultsShown, s.Mode)
	require.Len(t, cat.added, 1)
	require.Equal(t, "KOPI", cat.added[0].ItemName)
}

func TestEngine_EditAndUpdate(t *testing.T) {
	cat := newFakeCatalog()
	cat.results["KOPI"] = []product.Record{{SKU: "111", ItemName: "KOPI"}}
	e := NewEngine(cat, nil)
	ctx := context.Background()

	_, err := e.Dispatch(ctx, Search{Query: "kopi"})
	require.NoError(t, err)
	_, err = e.Dispatch(ctx, Edit{SKU: "111"})
	require.NoError(t, err)
	_, err = e.Dispatch(ctx, SetFields{Patch: product.Patch{Price: strPtr("7000")}})
	require.NoError(t, err)

	s, err := e.Dispatch(ctx, Save{})
	require.NoError(t, err)
	require.Equal(t, ModeResultsShown, s.Mode)
	require.Len(t, cat.updated, 1)
	require.Equal(t, "111", cat.updated[0].SKU)
	require.Equal(t, "7000", *cat.updated[0].Price)
}

func TestEngine_BusyWhileInFlight(t *testing.T) {
	cat := newFakeCatalog()
	cat.gate = make(chan struct{})
	cat.started = make(chan struct{}, 1)
	e := NewEngine(cat, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := e.Dispatch(ctx, Search{Query: "first"})
		done <- err
	}()
	<-cat.started

	_, err := e.Dispatch(ctx, Search{Query: "second"})
	require.True(t, errors.Is(err, errors.ErrBusy), "got %v", err)
	require.True(t, e.State().Busy())

	close(cat.gate)
	require.NoError(t, <-done)
	require.False(t, e.State().Busy())
	require.Equal(t, "FIRST", e.State().Query)
}

func TestEngine_CancelDiscardsLateResponse(t *testing.T) {
	cat := newFakeCatalog()
	cat.gate = make(chan struct{})
	cat.started = make(chan struct{}, 1)
	cat.results["SLOW"] = []product.Record{{SKU: "LATE"}}
	e := NewEngine(cat, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := e.Dispatch(ctx, Search{Query: "slow"})
		done <- err
	}()
	<-cat.started

	s, err := e.Dispatch(ctx, Cancel{})
	require.NoError(t, err)
	require.False(t, s.Busy())
	require.Equal(t, ModeSearching, s.Mode)

	select {
	case err := <-done:
		require.True(t, errors.Is(err, errors.ErrCancelled), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled dispatch did not return")
	}

	s = e.State()
	require.Empty(t, s.Results)
	require.Equal(t, ModeSearching, s.Mode)
}

func TestEngine_SupersededResponseIgnored(t *testing.T) {
	cat := newFakeCatalog()
	cat.gate = make(chan struct{})
	cat.started = make(chan struct{}, 2)
	cat.results["NEW"] = []product.Record{{SKU: "NEW1"}}
	cat.results["OLD"] = []product.Record{{SKU: "OLD1"}}
	e := NewEngine(cat, nil)
	ctx := context.Background()

	oldDone := make(chan error, 1)
	go func() {
		_, err := e.Dispatch(ctx, Search{Query: "old"})
		oldDone <- err
	}()
	<-cat.started

	_, err := e.Dispatch(ctx, Cancel{})
	require.NoError(t, err)
	require.True(t, errors.Is(<-oldDone, errors.ErrCancelled))

	newDone := make(chan State, 1)
	go func() {
		s, _ := e.Dispatch(ctx, Search{Query: "new"})
		newDone <- s
	}()
	<-cat.started
	close(cat.gate)

	s := <-newDone
	require.Equal(t, []string{"NEW1"}, product.SKUs(s.Results))
}

func TestEngine_SearchFailureNotice(t *testing.T) {
	cat := newFakeCatalog()
	cat.results["A"] = []product.Record{{SKU: "A1"}}
	e := NewEngine(cat, nil)
	ctx := context.Background()

	_, err := e.Dispatch(ctx, Search{Query: "a"})
	require.NoError(t, err)

	cat.searchErr = errors.NewUpstream("search", "backend down")
	s, err := e.Dispatch(ctx, Search{Query: "b"})
	require.NoError(t, err)
	require.Equal(t, ModeResultsShown, s.Mode)
	require.Equal(t, []string{"A1"}, product.SKUs(s.Results))
	require.Equal(t, errors.ErrUpstream, s.Notice.Code)
}

func TestEngine_RejectedEventReturnsError(t *testing.T) {
	e := NewEngine(newFakeCatalog(), nil)

	s, err := e.Dispatch(context.Background(), Save{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
	require.Equal(t, ModeSearching, s.Mode)
	require.NotNil(t, s.Notice)
}

func TestEngine_StateIsCopy(t *testing.T) {
	cat := newFakeCatalog()
	cat.results["A"] = []product.Record{{SKU: "A1", ItemName: "ONE"}}
	e := NewEngine(cat, nil)

	s, err := e.Dispatch(context.Background(), Search{Query: "a"})
	require.NoError(t, err)
	s.Results[0].ItemName = "CHANGED"

	require.Equal(t, "ONE", e.State().Results[0].ItemName)
}
