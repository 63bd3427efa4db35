// Package worker ties the caching engine together and drives its
// lifecycle: install-time pre-caching, activate-time generation
// cleanup, per-request strategy dispatch, deferred-write replay and the
// diagnostic message channel.
package worker

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bkalafat/tskulis-sub002/cachestore"
	"github.com/bkalafat/tskulis-sub002/generation"
	"github.com/bkalafat/tskulis-sub002/logger"
	"github.com/bkalafat/tskulis-sub002/strategy"
)

// precacheConcurrency bounds parallel fetches during install.
const precacheConcurrency = 4

// Worker is the caching engine. A host adapter feeds it lifecycle
// events (Install, Activate), intercepted traffic (HandleFetch,
// HandleWrite), sync triggers (HandleSync) and diagnostic messages
// (HandleMessage).
type Worker struct {
	cfg        Config
	id         string
	registry   *generation.Registry
	classifier *strategy.Classifier
	executor   *strategy.Executor
	fetcher    strategy.Fetcher
	log        logger.Logger
	now        func() time.Time
	seq        atomic.Uint64
	seqSeed    sync.Once
}

// Option configures a Worker.
type Option func(*Worker)

// WithClock overrides the worker's time source, for tests. The clock is
// shared with the strategy executor.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// New constructs a Worker over store and fetcher. Zero-value Config
// fields fall back to DefaultConfig.
func New(cfg Config, store cachestore.Store, fetcher strategy.Fetcher, log logger.Logger, opts ...Option) *Worker {
	cfg = cfg.withDefaults()
	w := &Worker{
		cfg:        cfg,
		id:         uuid.NewString(),
		registry:   generation.NewRegistry(store, cfg.Prefix, cfg.Version),
		classifier: strategy.NewClassifier(cfg.Rules),
		fetcher:    fetcher,
		log:        log.WithPrefix("[worker]"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.executor = strategy.NewExecutor(fetcher, log, strategy.WithClock(func() time.Time { return w.now() }))
	return w
}

// ID returns the worker's instance identifier.
func (w *Worker) ID() string {
	return w.id
}

// Version returns the worker's version tag.
func (w *Worker) Version() string {
	return w.cfg.Version
}

// Registry exposes the generation registry, mainly for tests and
// diagnostic tooling.
func (w *Worker) Registry() *generation.Registry {
	return w.registry
}

// Install pre-populates the static generation with the critical
// resource manifest. A resource that fails to fetch is logged and
// skipped — partial pre-cache is acceptable, installation never fails
// because one icon was unreachable.
func (w *Worker) Install(ctx context.Context) error {
	handle, err := w.registry.Open(ctx, generation.Static)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(precacheConcurrency)
	for _, path := range w.cfg.Precache {
		g.Go(func() error {
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, path, nil)
			if err != nil {
				w.log.Warn("precache: bad resource path %q: %s", path, err)
				return nil
			}
			entry, err := w.fetcher.Fetch(gctx, req)
			if err != nil || !entry.OK() {
				w.log.Warn("precache: could not fetch %s", path)
				return nil
			}
			key := strategy.RequestKey(req)
			if err := handle.Partition().Put(gctx, key, entry.WithTimestamp(w.now())); err != nil {
				w.log.Warn("precache: could not store %s: %s", path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	w.log.Info("installed version %s, pre-cached %d resources into %s", w.cfg.Version, len(w.cfg.Precache), handle.Name())
	return nil
}

// Activate deletes every generation that does not belong to the current
// version set, so entries written by older caching logic cannot leak
// into the new one.
func (w *Worker) Activate(ctx context.Context) error {
	keep := w.registry.CurrentNames()
	deleted, err := w.registry.DeleteStale(ctx, keep)
	for _, name := range deleted {
		w.log.Info("activate: removed stale generation %s", name)
	}
	if err != nil {
		return err
	}
	w.log.Info("activated version %s", w.cfg.Version)
	return nil
}

// HandleFetch runs one intercepted request through classification and
// its strategy. ok is false when the request must pass through to the
// network untouched (non-GET, non-HTTP(S) scheme).
func (w *Worker) HandleFetch(ctx context.Context, req *http.Request) (*strategy.Result, bool) {
	asn, ok := w.classifier.Classify(req)
	if !ok {
		return nil, false
	}
	handle, err := w.registry.Open(ctx, asn.Category)
	if err != nil {
		// Treat the generation as empty for this operation.
		w.log.Warn("could not open %s generation: %s", asn.Category, err)
		handle = nil
	}
	return w.executor.Do(ctx, req, handle, asn), true
}

// Wait blocks until background revalidations are drained.
func (w *Worker) Wait() {
	w.executor.Wait()
}
