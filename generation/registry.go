// Package generation names and versions the cache partitions used by
// the offline caching engine, and prunes the stale ones.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bkalafat/tskulis-sub002/cachestore"
)

// Category identifies one of the content classes the engine caches.
type Category string

const (
	Static  Category = "static"
	Dynamic Category = "dynamic"
	Images  Category = "images"
	API     Category = "api"
)

// Categories returns every known category, in a stable order.
func Categories() []Category {
	return []Category{Static, Dynamic, Images, API}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case Static, Dynamic, Images, API:
		return true
	}
	return false
}

// Handle is an open current-version generation.
type Handle struct {
	name      string
	partition cachestore.Partition
}

func (h *Handle) Name() string {
	return h.name
}

func (h *Handle) Partition() cachestore.Partition {
	return h.partition
}

// Registry composes generation names from a fixed prefix, a category and
// a single global version tag, and manages their lifecycle. The version
// tag is bumped whenever the engine's own logic changes, so a deploy
// invalidates every generation written under older assumptions.
type Registry struct {
	prefix  string
	version string
	store   cachestore.Store

	mu      sync.Mutex
	handles map[Category]*Handle
}

// NewRegistry constructs a Registry over store. Generation names take
// the form "<prefix>-<category>-<version>".
func NewRegistry(store cachestore.Store, prefix, version string) *Registry {
	return &Registry{
		prefix:  prefix,
		version: version,
		store:   store,
		handles: make(map[Category]*Handle),
	}
}

// Version returns the registry's global version tag.
func (r *Registry) Version() string {
	return r.version
}

// Name composes the current-version generation name for a category.
func (r *Registry) Name(category Category) string {
	return fmt.Sprintf("%s-%s-%s", r.prefix, category, r.version)
}

// CurrentNames returns the current-version name for every category.
func (r *Registry) CurrentNames() []string {
	categories := Categories()
	names := make([]string, 0, len(categories))
	for _, category := range categories {
		names = append(names, r.Name(category))
	}
	return names
}

// Open returns the current-version generation for a category, creating
// the handle if absent. Open is idempotent: within one registry
// lifetime the same category always yields the same handle.
func (r *Registry) Open(ctx context.Context, category Category) (*Handle, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("generation: unknown category %q", category)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[category]; ok {
		return h, nil
	}
	name := r.Name(category)
	partition, err := r.store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("generation: opening %s: %w", name, err)
	}
	h := &Handle{name: name, partition: partition}
	r.handles[category] = h
	return h, nil
}

// ListAll enumerates every generation name present in the store,
// current or not.
func (r *Registry) ListAll(ctx context.Context) ([]string, error) {
	return r.store.Names(ctx)
}

// DeleteStale deletes every generation whose name is not in keep and
// returns the names it removed. A failure to delete one generation does
// not stop the sweep; the collected errors are returned alongside
// whatever was deleted.
func (r *Registry) DeleteStale(ctx context.Context, keep []string) ([]string, error) {
	keepSet := make(map[string]bool, len(keep))
	for _, name := range keep {
		keepSet[name] = true
	}
	names, err := r.store.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("generation: listing generations: %w", err)
	}
	var deleted []string
	var errs []error
	for _, name := range names {
		if keepSet[name] {
			continue
		}
		if _, err := r.store.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("generation: deleting %s: %w", name, err))
			continue
		}
		deleted = append(deleted, name)
	}
	return deleted, errors.Join(errs...)
}
