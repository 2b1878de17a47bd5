package workflow

import (
	"context"
	"crypto/rand"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/skumate/internal/enrich"
	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

// Catalog is the product backend the workflow searches and writes to.
type Catalog interface {
	Search(ctx context.Context, query string) ([]product.Record, error)
	Add(ctx context.Context, r product.Record) (product.Record, error)
	Update(ctx context.Context, r product.Record) (product.Record, error)
}

// Observer is told about every mode change.
type Observer func(from, to Mode)

// Engine owns a workflow State and runs the calls its transitions request.
// At most one call is in flight; events that would start another are
// rejected with BUSY. The state lock is never held during a call.
type Engine struct {
	mu         sync.Mutex
	state      State
	reducer    Reducer
	catalog    Catalog
	enricher   enrich.Enricher
	logger     *slog.Logger
	observer   Observer
	cancelCall context.CancelFunc
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the search-miss policy and default provider.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.reducer.Policy = p
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver registers fn for mode changes. It runs with the state lock
// held and must not call back into the engine.
func WithObserver(fn Observer) Option {
	return func(e *Engine) {
		e.observer = fn
	}
}

// WithTokenSource replaces the ULID request token generator.
func WithTokenSource(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.reducer.NewToken = fn
		}
	}
}

// NewEngine creates an engine in the initial Searching state.
// enricher may be nil, in which case enrichment requests fail.
func NewEngine(catalog Catalog, enricher enrich.Enricher, opts ...Option) *Engine {
	e := &Engine{
		state:    Initial(),
		reducer:  Reducer{Policy: DefaultPolicy(), NewToken: newToken},
		catalog:  catalog,
		enricher: enricher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func newToken() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Dispatch applies ev and runs any calls it triggers until the workflow
// settles, then returns the resulting state.
//
// If the request started by ev is cancelled or superseded while in flight,
// its result is discarded and Dispatch returns a CANCELLED error.
func (e *Engine) Dispatch(ctx context.Context, ev Event) (State, error) {
	effects, callCtx, err := e.apply(ctx, ev)
	if err != nil {
		return e.State(), err
	}

	for len(effects) > 0 {
		done := e.run(callCtx, effects[0])

		var stale bool
		effects, callCtx, stale = e.complete(ctx, done)
		if stale {
			return e.State(), errors.NewCancelled(strings.TrimSuffix(eventName(done), "_done"))
		}
	}
	return e.State(), nil
}

func (e *Engine) apply(ctx context.Context, ev Event) ([]Effect, context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := ev.(Cancel); ok && e.cancelCall != nil {
		e.logger.Debug("cancelling pending request", "pending", e.state.Pending)
		e.cancelCall()
		e.cancelCall = nil
	}

	next, effects, err := e.reducer.Reduce(e.state, ev)
	e.setLocked(next)
	if err != nil {
		e.logger.Debug("workflow event rejected", "event", eventName(ev), "error", err)
		return nil, nil, err
	}
	e.logger.Debug("workflow event", "event", eventName(ev), "mode", next.Mode)
	return effects, e.startLocked(ctx, effects), nil
}

// complete feeds a call result back. stale is true when the result no
// longer matches the pending request and was dropped.
func (e *Engine) complete(ctx context.Context, done Event) ([]Effect, context.Context, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !matches(e.state, tokenOf(done)) {
		e.logger.Debug("discarding stale response", "event", eventName(done))
		return nil, nil, true
	}
	if e.cancelCall != nil {
		e.cancelCall()
		e.cancelCall = nil
	}

	next, effects, err := e.reducer.Reduce(e.state, done)
	if err != nil {
		e.logger.Warn("workflow completion rejected", "event", eventName(done), "error", err)
	}
	e.setLocked(next)
	return effects, e.startLocked(ctx, effects), false
}

func (e *Engine) startLocked(ctx context.Context, effects []Effect) context.Context {
	if len(effects) == 0 {
		return nil
	}
	callCtx, cancel := context.WithCancel(ctx)
	e.cancelCall = cancel
	e.logger.Debug("request started", "token", effects[0].token())
	return callCtx
}

func (e *Engine) setLocked(next State) {
	prev := e.state.Mode
	e.state = next
	if prev != next.Mode {
		e.logger.Debug("workflow mode", "from", prev, "to", next.Mode)
		if e.observer != nil {
			e.observer(prev, next.Mode)
		}
	}
}

// run performs one call. It must be called without the lock.
func (e *Engine) run(ctx context.Context, eff Effect) Event {
	switch eff := eff.(type) {
	case SearchEffect:
		results, err := e.catalog.Search(ctx, eff.Query)
		return SearchDone{Token: eff.Token, Results: results, Err: err}

	case EnrichEffect:
		if e.enricher == nil {
			return EnrichDone{Token: eff.Token, Err: errors.NewInvalidRequest("AI enrichment is not configured")}
		}
		rec, err := e.enricher.Enrich(ctx, eff.Request)
		if err != nil {
			e.logger.Warn("enrichment failed", "sku", eff.Request.SKU, "provider", eff.Request.Provider, "error", err)
		}
		return EnrichDone{Token: eff.Token, Record: rec, Err: err}

	case SaveEffect:
		var (
			rec product.Record
			err error
		)
		if eff.Update {
			rec, err = e.catalog.Update(ctx, eff.Record)
		} else {
			rec, err = e.catalog.Add(ctx, eff.Record)
		}
		if err != nil {
			e.logger.Warn("save failed", "sku", eff.Record.SKU, "update", eff.Update, "error", err)
		}
		return SaveDone{Token: eff.Token, Record: rec, Err: err}
	}
	return nil
}

func tokenOf(ev Event) string {
	switch ev := ev.(type) {
	case SearchDone:
		return ev.Token
	case EnrichDone:
		return ev.Token
	case SaveDone:
		return ev.Token
	}
	return ""
}

func eventName(ev Event) string {
	switch ev.(type) {
	case Search:
		return "search"
	case Enrich:
		return "enrich"
	case Save:
		return "save"
	case Edit:
		return "edit"
	case NewProduct:
		return "new_product"
	case AddVariant:
		return "add_variant"
	case SetFields:
		return "set_fields"
	case SmartPaste:
		return "smart_paste"
	case Cancel:
		return "cancel"
	case SearchDone:
		return "search_done"
	case EnrichDone:
		return "enrich_done"
	case SaveDone:
		return "save_done"
	}
	return "unknown"
}
