// Package cart stages product records for bulk export. The cart is ordered
// by insertion, keyed by normalized SKU, and persisted under one fixed
// storage key.
//
// Two processes sharing a storage key are not coordinated: whichever writes
// last wins.
package cart

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/hpungsan/skumate/internal/csvexport"
	"github.com/hpungsan/skumate/internal/errors"
	"github.com/hpungsan/skumate/internal/product"
)

// Storage is durable string storage addressed by key.
type Storage interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Put(ctx context.Context, key, value string) error
}

// Store is the in-memory cart plus its persisted copy.
// The in-memory slice is authoritative; a failed persist never rolls it back.
type Store struct {
	mu      sync.Mutex
	storage Storage
	key     string
	logger  *slog.Logger
	items   []product.Record
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty cart persisted under key. Call Load to read saved state.
func New(storage Storage, key string, opts ...Option) *Store {
	s := &Store{
		storage: storage,
		key:     key,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory cart with the persisted one and returns a copy.
// Missing, unreadable or malformed data yields an empty cart; the problem is
// logged, not returned.
func (s *Store) Load(ctx context.Context) []product.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil

	raw, found, err := s.storage.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn("cart load failed, starting empty", "key", s.key, "error", err)
		return nil
	}
	if !found || raw == "" {
		return nil
	}

	var saved []product.Record
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		s.logger.Warn("cart data is corrupt, starting empty", "key", s.key, "error", err)
		return nil
	}

	seen := make(map[string]bool, len(saved))
	for _, r := range saved {
		r = product.Normalize(r)
		if r.SKU == "" || seen[r.SKU] {
			s.logger.Debug("dropping unusable cart entry", "key", s.key, "sku", r.SKU)
			continue
		}
		seen[r.SKU] = true
		s.items = append(s.items, r)
	}

	s.logger.Debug("cart loaded", "key", s.key, "count", len(s.items))
	return product.Clone(s.items)
}

// Add normalizes r and appends it.
// If the SKU is already in the cart nothing changes and a DUPLICATE_SKU error
// is returned. A PERSISTENCE error means the record was added in memory but
// not saved.
func (s *Store) Add(ctx context.Context, r product.Record) (product.Record, error) {
	r = product.Normalize(r)
	if r.SKU == "" {
		return r, errors.NewValidation(product.KeySKU, "SKU is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(r.SKU) >= 0 {
		return r, errors.NewDuplicateSKU(r.SKU)
	}

	s.items = append(s.items, r)
	return r, s.persist(ctx)
}

// Remove deletes the entry with the given SKU. Removing an absent SKU is a
// no-op that reports false and still succeeds.
func (s *Store) Remove(ctx context.Context, sku string) (bool, error) {
	sku = product.NormalizeSKU(sku)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(sku)
	if i < 0 {
		return false, nil
	}
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	return true, s.persist(ctx)
}

// Clear empties the cart. Callers confirm with the user first.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	return s.persist(ctx)
}

// Items returns a copy of the cart in display order.
func (s *Store) Items() []product.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return product.Clone(s.items)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Contains reports whether sku is in the cart.
func (s *Store) Contains(sku string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(product.NormalizeSKU(sku)) >= 0
}

// ToCSV renders the current cart with the given columns.
func (s *Store) ToCSV(columns []csvexport.Column) (string, error) {
	return csvexport.ToCSV(s.Items(), columns)
}

// indexOf must be called with mu held.
func (s *Store) indexOf(sku string) int {
	for i, r := range s.items {
		if r.SKU == sku {
			return i
		}
	}
	return -1
}

// persist must be called with mu held.
func (s *Store) persist(ctx context.Context) error {
	items := s.items
	if items == nil {
		items = []product.Record{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return errors.NewPersistence("encode cart", err)
	}
	if err := s.storage.Put(ctx, s.key, string(data)); err != nil {
		s.logger.Error("cart persist failed; in-memory cart kept", "key", s.key, "count", len(s.items), "error", err)
		if errors.Is(err, errors.ErrPersistence) {
			return err
		}
		return errors.NewPersistence("save cart", err)
	}
	return nil
}
