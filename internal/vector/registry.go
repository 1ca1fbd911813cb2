package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/bunmyaku/internal/storage"
)

var (
	// ErrUnknownScope is returned when a scope is not configured in the registry.
	ErrUnknownScope = errors.New("unknown scope")
	// ErrUnpersistedChanges is returned by Reload when the live index holds items
	// added since its last Persist.
	ErrUnpersistedChanges = errors.New("index has unpersisted changes")
)

// Registry holds one Index per knowledge scope.
type Registry struct {
	store  storage.Store
	scopes map[string]string
	opts   []IndexOption

	mu      sync.RWMutex
	indices map[string]*Index
}

// NewRegistry creates a registry for scopes, a map from scope name to store key.
// opts are applied to every index the registry creates.
func NewRegistry(store storage.Store, scopes map[string]string, opts ...IndexOption) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("store: %w", ErrMissingArgument)
	}
	copied := make(map[string]string, len(scopes))
	for name, key := range scopes {
		if name == "" || key == "" {
			return nil, fmt.Errorf("scope %q with key %q: %w", name, key, ErrMissingArgument)
		}
		copied[name] = key
	}
	return &Registry{
		store:   store,
		scopes:  copied,
		opts:    opts,
		indices: make(map[string]*Index),
	}, nil
}

// Scopes returns the configured scope names in sorted order.
func (r *Registry) Scopes() []string {
	names := make([]string, 0, len(r.scopes))
	for name := range r.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScopeForKey returns the scope backed by key.
func (r *Registry) ScopeForKey(key string) (string, bool) {
	for name, k := range r.scopes {
		if k == key {
			return name, true
		}
	}
	return "", false
}

// Index returns the index for scope, creating it on first use.
func (r *Registry) Index(scope string) (*Index, error) {
	r.mu.RLock()
	x, ok := r.indices[scope]
	r.mu.RUnlock()
	if ok {
		return x, nil
	}

	key, ok := r.scopes[scope]
	if !ok {
		return nil, fmt.Errorf("%s: %w", scope, ErrUnknownScope)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if x, ok := r.indices[scope]; ok {
		return x, nil
	}
	x, err := NewIndex(r.store, key, r.opts...)
	if err != nil {
		return nil, err
	}
	r.indices[scope] = x
	return x, nil
}

// Searchers returns the indices for scopes; an empty list selects every scope.
func (r *Registry) Searchers(scopes []string) ([]Searcher, error) {
	if len(scopes) == 0 {
		scopes = r.Scopes()
	}
	out := make([]Searcher, 0, len(scopes))
	for _, scope := range scopes {
		x, err := r.Index(scope)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// LoadAll loads every scope concurrently. Used for eager startup loading.
func (r *Registry) LoadAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, scope := range r.Scopes() {
		x, err := r.Index(scope)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := x.LoadData(gctx); err != nil {
				return fmt.Errorf("load scope %s: %w", scope, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Reload reads a fresh copy of scope from the store and swaps it in.
// Readers holding the previous instance keep a consistent view. The live index is
// kept and ErrUnpersistedChanges returned if it holds writes not yet persisted.
func (r *Registry) Reload(ctx context.Context, scope string) error {
	key, ok := r.scopes[scope]
	if !ok {
		return fmt.Errorf("%s: %w", scope, ErrUnknownScope)
	}
	r.mu.RLock()
	current := r.indices[scope]
	r.mu.RUnlock()
	if current != nil && current.Dirty() {
		return fmt.Errorf("reload scope %s: %w", scope, ErrUnpersistedChanges)
	}
	x, err := NewIndex(r.store, key, r.opts...)
	if err != nil {
		return err
	}
	if err := x.LoadData(ctx); err != nil {
		return fmt.Errorf("reload scope %s: %w", scope, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur := r.indices[scope]; cur != nil && cur.Dirty() {
		return fmt.Errorf("reload scope %s: %w", scope, ErrUnpersistedChanges)
	}
	r.indices[scope] = x
	return nil
}

// ScopeStats describes a scope for status reporting.
type ScopeStats struct {
	Scope  string `json:"scope"`
	Key    string `json:"key"`
	Loaded bool   `json:"loaded"`
	Items  int    `json:"items"`

	// Missing is set by callers that tried to load the scope and found no snapshot.
	Missing bool `json:"missing,omitempty"`
}

// Stats returns per-scope statistics without forcing a load.
func (r *Registry) Stats() []ScopeStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := make([]ScopeStats, 0, len(r.scopes))
	for _, scope := range r.Scopes() {
		s := ScopeStats{Scope: scope, Key: r.scopes[scope]}
		if x, ok := r.indices[scope]; ok {
			s.Loaded = x.Loaded()
			s.Items = x.Len()
		}
		stats = append(stats, s)
	}
	return stats
}
