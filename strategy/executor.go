package strategy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bkalafat/tskulis-sub002/cachestore"
	"github.com/bkalafat/tskulis-sub002/generation"
	"github.com/bkalafat/tskulis-sub002/logger"
)

// Source says where a served response came from.
type Source int

const (
	SourceCache Source = iota
	SourceNetwork
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceNetwork:
		return "network"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of running a strategy for one request.
// Every path produces one — executors never return an error.
type Result struct {
	Entry  *cachestore.Entry
	Source Source
}

// Executor runs the three caching strategies. It is safe for concurrent
// use; cache writes race last-write-wins by design, matching the
// engine's correctness model.
type Executor struct {
	fetcher Fetcher
	log     logger.Logger
	now     func() time.Time
	bg      sync.WaitGroup
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithClock overrides the executor's time source, for tests.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

func NewExecutor(fetcher Fetcher, log logger.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		fetcher: fetcher,
		log:     log.WithPrefix("[strategy]"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do dispatches a classified request to its strategy. handle may be nil
// when opening the generation failed; the strategy then runs against an
// empty cache.
func (e *Executor) Do(ctx context.Context, req *http.Request, handle *generation.Handle, asn Assignment) *Result {
	switch asn.Strategy {
	case CacheFirst:
		return e.cacheFirst(ctx, req, handle, asn)
	case StaleWhileRevalidate:
		return e.staleWhileRevalidate(ctx, req, handle, asn)
	default:
		return e.networkFirst(ctx, req, handle, asn)
	}
}

// Wait blocks until all background revalidations have finished. Used by
// hosts at shutdown and by tests.
func (e *Executor) Wait() {
	e.bg.Wait()
}

// match reads from the cache, degrading storage errors to misses.
func (e *Executor) match(ctx context.Context, handle *generation.Handle, key string) (*cachestore.Entry, bool) {
	if handle == nil {
		return nil, false
	}
	entry, ok, err := handle.Partition().Match(ctx, key)
	if err != nil {
		e.log.Warn("cache read failed for %s in %s: %s", key, handle.Name(), err)
		return nil, false
	}
	return entry, ok
}

// store tags the entry with the cached-at timestamp and writes it,
// logging (not surfacing) storage errors.
func (e *Executor) store(ctx context.Context, handle *generation.Handle, key string, entry *cachestore.Entry) {
	if handle == nil {
		return
	}
	if err := handle.Partition().Put(ctx, key, entry.WithTimestamp(e.now())); err != nil {
		e.log.Warn("cache write failed for %s in %s: %s", key, handle.Name(), err)
	}
}

// fetch issues the network call. ok is false on transport error or any
// non-2xx status.
func (e *Executor) fetch(ctx context.Context, req *http.Request) (*cachestore.Entry, bool) {
	entry, err := e.fetcher.Fetch(ctx, req)
	if err != nil {
		e.log.Debug("network fetch failed for %s: %s", RequestKey(req), err)
		return nil, false
	}
	if !entry.OK() {
		e.log.Debug("network fetch for %s returned %d", RequestKey(req), entry.Status)
		return entry, false
	}
	return entry, true
}

func (e *Executor) cacheFirst(ctx context.Context, req *http.Request, handle *generation.Handle, asn Assignment) *Result {
	key := RequestKey(req)
	cached, hit := e.match(ctx, handle, key)
	if hit && cached.Fresh(asn.TTL, e.now()) {
		return &Result{Entry: cached, Source: SourceCache}
	}
	if net, ok := e.fetch(ctx, req); ok {
		e.store(ctx, handle, key, net)
		return &Result{Entry: net, Source: SourceNetwork}
	}
	// Stale beats synthesized when the network is down.
	if hit {
		return &Result{Entry: cached, Source: SourceCache}
	}
	if isImageRequest(req, asn.Category) {
		return &Result{Entry: PlaceholderImage(), Source: SourceFallback}
	}
	return &Result{Entry: NotFound(), Source: SourceFallback}
}

func (e *Executor) staleWhileRevalidate(ctx context.Context, req *http.Request, handle *generation.Handle, asn Assignment) *Result {
	key := RequestKey(req)
	cached, hit := e.match(ctx, handle, key)
	if hit && cached.Fresh(asn.TTL, e.now()) {
		// The defining property of this strategy: the network fetch is
		// issued even though the cached copy is returned. The
		// revalidation outlives the request, so it runs on a context
		// detached from the caller's cancellation.
		bgctx := context.WithoutCancel(ctx)
		e.bg.Add(1)
		go func() {
			defer e.bg.Done()
			if net, ok := e.fetch(bgctx, req); ok {
				e.store(bgctx, handle, key, net)
			}
		}()
		return &Result{Entry: cached, Source: SourceCache}
	}
	if net, ok := e.fetch(ctx, req); ok {
		e.store(ctx, handle, key, net)
		return &Result{Entry: net, Source: SourceNetwork}
	}
	if hit {
		return &Result{Entry: cached, Source: SourceCache}
	}
	return &Result{Entry: Unavailable(), Source: SourceFallback}
}

func (e *Executor) networkFirst(ctx context.Context, req *http.Request, handle *generation.Handle, asn Assignment) *Result {
	key := RequestKey(req)
	if net, ok := e.fetch(ctx, req); ok {
		e.store(ctx, handle, key, net)
		return &Result{Entry: net, Source: SourceNetwork}
	}
	// Staleness is deliberately not checked here: when offline, any
	// cached copy is better than none.
	if cached, hit := e.match(ctx, handle, key); hit {
		return &Result{Entry: cached, Source: SourceCache}
	}
	if AcceptsHTML(req) {
		return &Result{Entry: OfflineDocument(), Source: SourceFallback}
	}
	return &Result{Entry: Unavailable(), Source: SourceFallback}
}
