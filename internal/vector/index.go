// Package vector provides an in-memory cosine-similarity index backed by a line-delimited
// JSON snapshot, a registry of scoped indices, and concurrent multi-scope search.
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hyperjump/bunmyaku/internal/models"
	"github.com/hyperjump/bunmyaku/internal/storage"
)

var (
	// ErrMissingArgument is returned when a required constructor argument is absent.
	ErrMissingArgument = errors.New("missing required argument")
	// ErrZeroVector is returned for vectors whose magnitude is zero; cosine similarity is undefined for them.
	ErrZeroVector = errors.New("zero-magnitude vector")
	// ErrDimensionMismatch is returned when a vector does not match the index dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidItem is returned for items with an empty ID or negative token cost.
	ErrInvalidItem = errors.New("invalid vector item")
)

// Index is an in-memory vector set loaded lazily from a single store key.
//
// Reads are safe for concurrent use once the index is loaded. AddItem and Persist
// must be serialized by the caller against each other and against readers.
//
// By default a missing snapshot is an error for readers. Writers (AddItem, Persist)
// start from an empty set when the snapshot does not exist yet, so a new scope can
// be created by adding items and persisting them.
type Index struct {
	store           storage.Store
	key             string
	logger          *zap.Logger
	dimensions      int
	requireSnapshot bool

	loadMu sync.Mutex
	loaded atomic.Bool
	dirty  atomic.Bool

	items     []models.VectorItem
	positions map[string]int
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithLogger sets the logger used for load and persist events.
func WithLogger(l *zap.Logger) IndexOption {
	return func(x *Index) {
		if l != nil {
			x.logger = l
		}
	}
}

// WithDimensions fixes the dimensionality up front instead of taking it from the first item.
func WithDimensions(n int) IndexOption {
	return func(x *Index) { x.dimensions = n }
}

// WithRequireSnapshot controls whether reads fail when the backing key does not exist.
// It defaults to true; false makes an absent snapshot read as an empty index.
func WithRequireSnapshot(required bool) IndexOption {
	return func(x *Index) { x.requireSnapshot = required }
}

// NewIndex creates an index persisted under key in store. Nothing is read until first use.
func NewIndex(store storage.Store, key string, opts ...IndexOption) (*Index, error) {
	if store == nil {
		return nil, fmt.Errorf("store: %w", ErrMissingArgument)
	}
	if key == "" {
		return nil, fmt.Errorf("key: %w", ErrMissingArgument)
	}
	x := &Index{
		store:           store,
		key:             key,
		logger:          zap.NewNop(),
		requireSnapshot: true,
		positions:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.dimensions < 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", x.dimensions)
	}
	return x, nil
}

// Key returns the store key backing the index.
func (x *Index) Key() string {
	return x.key
}

// Dimensions returns the vector length of the index, or 0 if not yet known.
func (x *Index) Dimensions() int {
	return x.dimensions
}

// Len returns the number of items currently held in memory.
func (x *Index) Len() int {
	if !x.loaded.Load() {
		return 0
	}
	return len(x.items)
}

// Loaded reports whether the snapshot has been read.
func (x *Index) Loaded() bool {
	return x.loaded.Load()
}

// Dirty reports whether items were added since the last load or Persist.
func (x *Index) Dirty() bool {
	return x.dirty.Load()
}

// LoadData reads the snapshot into memory. It runs at most once successfully;
// concurrent callers wait for the first load to finish. An absent snapshot fails
// with storage.ErrNotFound unless the index was built with WithRequireSnapshot(false).
func (x *Index) LoadData(ctx context.Context) error {
	return x.load(ctx, !x.requireSnapshot)
}

func (x *Index) load(ctx context.Context, allowMissing bool) error {
	if x.loaded.Load() {
		return nil
	}
	x.loadMu.Lock()
	defer x.loadMu.Unlock()
	if x.loaded.Load() {
		return nil
	}

	exists, err := x.store.Exists(ctx, x.key)
	if err != nil {
		return fmt.Errorf("check index %s: %w", x.key, err)
	}
	if !exists {
		if !allowMissing {
			return fmt.Errorf("index %s: %w", x.key, storage.ErrNotFound)
		}
		x.logger.Debug("index snapshot absent, starting empty", zap.String("key", x.key))
		x.loaded.Store(true)
		return nil
	}

	records, err := x.store.GetRecords(ctx, x.key)
	if err != nil {
		return fmt.Errorf("read index %s: %w", x.key, err)
	}
	items := make([]models.VectorItem, 0, len(records))
	positions := make(map[string]int, len(records))
	dims := x.dimensions
	for i, raw := range records {
		var item models.VectorItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return fmt.Errorf("index %s record %d: %w", x.key, i+1, err)
		}
		if err := checkItem(item.ID, item.Vector, item.Tokens); err != nil {
			return fmt.Errorf("index %s record %d: %w", x.key, i+1, err)
		}
		if dims == 0 {
			dims = len(item.Vector)
		}
		if len(item.Vector) != dims {
			return fmt.Errorf("index %s record %d: got %d, expected %d: %w", x.key, i+1, len(item.Vector), dims, ErrDimensionMismatch)
		}
		item.Magnitude = Magnitude(item.Vector)
		if item.Magnitude == 0 {
			return fmt.Errorf("index %s record %d (%s): %w", x.key, i+1, item.ID, ErrZeroVector)
		}
		// later lines win, matching upsert semantics
		if pos, ok := positions[item.ID]; ok {
			items[pos] = item
			continue
		}
		positions[item.ID] = len(items)
		items = append(items, item)
	}

	x.items = items
	x.positions = positions
	x.dimensions = dims
	x.loaded.Store(true)
	x.logger.Debug("index loaded", zap.String("key", x.key), zap.Int("items", len(items)), zap.Int("dimensions", dims))
	return nil
}

// HasItem reports whether id is present, loading the index first if needed.
func (x *Index) HasItem(ctx context.Context, id string) (bool, error) {
	if err := x.LoadData(ctx); err != nil {
		return false, err
	}
	_, ok := x.positions[id]
	return ok, nil
}

// AddItem inserts an item or replaces the existing item with the same id.
// It starts an empty index when no snapshot exists yet.
func (x *Index) AddItem(ctx context.Context, id string, vector []float32, tokens int, scope string) error {
	if err := x.load(ctx, true); err != nil {
		return err
	}
	if err := checkItem(id, vector, tokens); err != nil {
		return err
	}
	if x.dimensions != 0 && len(vector) != x.dimensions {
		return fmt.Errorf("got %d, expected %d: %w", len(vector), x.dimensions, ErrDimensionMismatch)
	}
	magnitude := Magnitude(vector)
	if magnitude == 0 {
		return fmt.Errorf("item %s: %w", id, ErrZeroVector)
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	item := models.VectorItem{ID: id, Vector: vec, Tokens: tokens, Scope: scope, Magnitude: magnitude}

	if x.dimensions == 0 {
		x.dimensions = len(vec)
	}
	if pos, ok := x.positions[id]; ok {
		x.items[pos] = item
	} else {
		x.positions[id] = len(x.items)
		x.items = append(x.items, item)
	}
	x.dirty.Store(true)
	return nil
}

// Persist overwrites the snapshot with the in-memory items, one JSON record per line.
func (x *Index) Persist(ctx context.Context) error {
	if err := x.load(ctx, true); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range x.items {
		if err := enc.Encode(&x.items[i]); err != nil {
			return fmt.Errorf("encode item %s: %w", x.items[i].ID, err)
		}
	}
	if err := x.store.Put(ctx, x.key, buf.Bytes()); err != nil {
		return fmt.Errorf("persist index %s: %w", x.key, err)
	}
	x.dirty.Store(false)
	x.logger.Debug("index persisted", zap.String("key", x.key), zap.Int("items", len(x.items)))
	return nil
}

// QueryItems returns items whose cosine similarity to query is at least threshold, best first.
// A limit <= 0 returns every match.
func (x *Index) QueryItems(ctx context.Context, query []float32, threshold float64, limit int) ([]models.QueryResult, error) {
	if err := x.LoadData(ctx); err != nil {
		return nil, err
	}
	queryMagnitude := Magnitude(query)
	if queryMagnitude == 0 {
		return nil, fmt.Errorf("query: %w", ErrZeroVector)
	}
	if len(x.items) == 0 {
		return []models.QueryResult{}, nil
	}
	if len(query) != x.dimensions {
		return nil, fmt.Errorf("query has %d, index %s expects %d: %w", len(query), x.key, x.dimensions, ErrDimensionMismatch)
	}

	if limit <= 0 {
		results := make([]models.QueryResult, 0)
		for i := range x.items {
			item := &x.items[i]
			score := Dot(query, item.Vector) / (queryMagnitude * item.Magnitude)
			if score < threshold {
				continue
			}
			results = append(results, models.QueryResult{ID: item.ID, Score: score, Tokens: item.Tokens, Scope: item.Scope})
		}
		sortByScore(results)
		return results, nil
	}

	top := newTopK(limit)
	for i := range x.items {
		item := &x.items[i]
		score := Dot(query, item.Vector) / (queryMagnitude * item.Magnitude)
		if score < threshold {
			continue
		}
		top.offer(models.QueryResult{ID: item.ID, Score: score, Tokens: item.Tokens, Scope: item.Scope})
	}
	return top.results(), nil
}

func checkItem(id string, vector []float32, tokens int) error {
	if id == "" {
		return fmt.Errorf("empty id: %w", ErrInvalidItem)
	}
	if tokens < 0 {
		return fmt.Errorf("item %s has negative tokens: %w", id, ErrInvalidItem)
	}
	if len(vector) == 0 {
		return fmt.Errorf("item %s: %w", id, ErrZeroVector)
	}
	return nil
}
