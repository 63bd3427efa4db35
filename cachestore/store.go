package cachestore

import (
	"context"
	"time"
)

// Store is an async key-value response cache partitioned into named
// generations. Implementations must tolerate concurrent use; last write
// wins on a key.
type Store interface {
	// Open returns the partition for name, creating it lazily on first write.
	Open(ctx context.Context, name string) (Partition, error)
	// Names enumerates every generation name currently present in the store.
	Names(ctx context.Context) ([]string, error)
	// Delete removes a generation and all of its entries.
	Delete(ctx context.Context, name string) (bool, error)
	// Close shuts down the store.
	Close() error
}

// Partition is a single named generation. Reads against a deleted
// partition are misses, not errors; a write recreates it.
type Partition interface {
	// Name returns the generation name this partition belongs to.
	Name() string
	// Match retrieves the entry stored under key.
	Match(ctx context.Context, key string) (*Entry, bool, error)
	// Put stores an entry under key, replacing any previous entry.
	Put(ctx context.Context, key string, entry *Entry) error
	// Delete removes the entry stored under key.
	Delete(ctx context.Context, key string) (bool, error)
	// Keys enumerates every key present in the partition.
	Keys(ctx context.Context) ([]string, error)
}

// DefaultQueryTimeout is the per-operation timeout for stores that
// perform I/O (Redis). Prevents indefinite hangs on unresponsive storage.
const DefaultQueryTimeout = 5 * time.Second

type config struct {
	queryTimeout time.Duration
	namespace    string
}

// Option configures a Store implementation.
type Option func(*config)

func defaultConfig() config {
	return config{
		queryTimeout: DefaultQueryTimeout,
		namespace:    "tskulis",
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed stores.
// Defaults to DefaultQueryTimeout (5 seconds).
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithNamespace sets the key namespace for stores that share an external
// backend (Redis). Defaults to "tskulis".
func WithNamespace(ns string) Option {
	return func(c *config) { c.namespace = ns }
}
