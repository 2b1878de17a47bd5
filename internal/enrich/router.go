package enrich

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

// Router picks an Enricher per provider. Providers without a direct
// enricher go through the backend.
type Router struct {
	backend         Enricher
	direct          map[string]Enricher
	defaultProvider string
	logger          *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithDirect serves provider with e instead of the backend.
func WithDirect(provider string, e Enricher) RouterOption {
	return func(r *Router) {
		if e != nil {
			r.direct[strings.ToLower(provider)] = e
		}
	}
}

// WithDefaultProvider sets the provider used when a request names none.
func WithDefaultProvider(provider string) RouterOption {
	return func(r *Router) {
		if provider != "" {
			r.defaultProvider = strings.ToLower(provider)
		}
	}
}

// WithRouterLogger sets the router's logger.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter routes to backend unless a direct enricher is registered.
func NewRouter(backend Enricher, opts ...RouterOption) *Router {
	r := &Router{
		backend:         backend,
		direct:          make(map[string]Enricher),
		defaultProvider: ProviderGemini,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enrich implements Enricher.
func (r *Router) Enrich(ctx context.Context, req Request) (product.Record, error) {
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	if req.Provider == "" {
		req.Provider = r.defaultProvider
	}

	if e, ok := r.direct[req.Provider]; ok {
		r.logger.Debug("enrich direct", "provider", req.Provider, "sku", req.SKU)
		return e.Enrich(ctx, req)
	}
	if r.backend == nil {
		return product.Record{}, errors.NewInvalidRequest("no enricher available for provider " + req.Provider)
	}
	r.logger.Debug("enrich via backend", "provider", req.Provider, "sku", req.SKU)
	return r.backend.Enrich(ctx, req)
}
