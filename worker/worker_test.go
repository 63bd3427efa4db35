package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bkalafat/tskulis-sub002/cachestore"
	"github.com/bkalafat/tskulis-sub002/generation"
	"github.com/bkalafat/tskulis-sub002/logger"
	"github.com/bkalafat/tskulis-sub002/strategy"
)

// fakeFetcher records every call and serves canned responses. A call is
// recorded as "METHOD url body".
type fakeFetcher struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]*cachestore.Entry
	fail      map[string]bool
	offline   bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: map[string]*cachestore.Entry{},
		fail:      map[string]bool{},
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, req *http.Request) (*cachestore.Entry, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	key := strategy.RequestKey(req)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s %s %s", req.Method, key, body))
	if f.offline {
		return nil, errors.New("offline")
	}
	if f.fail[key] {
		return nil, errors.New("unreachable")
	}
	if entry, ok := f.responses[key]; ok {
		return entry.Clone(), nil
	}
	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	return cachestore.NewEntry(200, header, []byte("ok:"+key)), nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeFetcher) setOffline(offline bool) {
	f.mu.Lock()
	f.offline = offline
	f.mu.Unlock()
}

func textResponse(status int, body string) *cachestore.Entry {
	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	return cachestore.NewEntry(status, header, []byte(body))
}

type workerFixture struct {
	worker  *Worker
	store   cachestore.Store
	fetcher *fakeFetcher
	now     time.Time
}

func newWorkerFixture(t *testing.T, cfg Config) *workerFixture {
	t.Helper()
	now := time.UnixMilli(1700000000000)
	store := cachestore.NewInMemory()
	fetcher := newFakeFetcher()
	w := New(cfg, store, fetcher, logger.NewTestLogger(), WithClock(func() time.Time { return now }))
	return &workerFixture{worker: w, store: store, fetcher: fetcher, now: now}
}

func (f *workerFixture) partitionKeys(t *testing.T, category generation.Category) []string {
	t.Helper()
	handle, err := f.worker.Registry().Open(context.Background(), category)
	assert.NoError(t, err)
	keys, err := handle.Partition().Keys(context.Background())
	assert.NoError(t, err)
	return keys
}

func TestInstallPrecachesCriticalResources(t *testing.T) {
	f := newWorkerFixture(t, Config{
		Precache: []string{"/", "/offline.html", "/manifest.json"},
	})
	assert.NoError(t, f.worker.Install(context.Background()))
	assert.ElementsMatch(t, []string{"/", "/offline.html", "/manifest.json"}, f.partitionKeys(t, generation.Static))
}

func TestInstallToleratesPartialFailure(t *testing.T) {
	f := newWorkerFixture(t, Config{
		Precache: []string{"/", "/offline.html", "/manifest.json"},
	})
	f.fetcher.fail["/offline.html"] = true

	// one unreachable resource must not fail installation
	assert.NoError(t, f.worker.Install(context.Background()))
	assert.ElementsMatch(t, []string{"/", "/manifest.json"}, f.partitionKeys(t, generation.Static))
}

func TestActivateDeletesStaleGenerations(t *testing.T) {
	ctx := context.Background()
	f := newWorkerFixture(t, Config{Prefix: "tskulis-cache", Version: "v4"})

	// leftovers from an older deploy
	stale, err := f.store.Open(ctx, "tskulis-cache-static-v3")
	assert.NoError(t, err)
	assert.NoError(t, stale.Put(ctx, "/app.js", cachestore.NewEntry(200, http.Header{}, []byte("old"))))

	current, err := f.worker.Registry().Open(ctx, generation.Static)
	assert.NoError(t, err)
	assert.NoError(t, current.Partition().Put(ctx, "/app.js", cachestore.NewEntry(200, http.Header{}, []byte("new"))))

	assert.NoError(t, f.worker.Activate(ctx))

	names, err := f.store.Names(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []string{"tskulis-cache-static-v4"}, names)
}

func TestHandleFetchPassthrough(t *testing.T) {
	f := newWorkerFixture(t, Config{})
	post := httptest.NewRequest(http.MethodPost, "/api/comment", nil)
	result, ok := f.worker.HandleFetch(context.Background(), post)
	assert.False(t, ok)
	assert.Nil(t, result)
	assert.Empty(t, f.fetcher.Calls())
}

func TestHandleFetchDispatchesAndCaches(t *testing.T) {
	f := newWorkerFixture(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/api/news", nil)

	result, ok := f.worker.HandleFetch(context.Background(), req)
	assert.True(t, ok)
	assert.Equal(t, strategy.SourceNetwork, result.Source)
	assert.Equal(t, []byte("ok:/api/news"), result.Entry.Body)
	assert.Equal(t, []string{"/api/news"}, f.partitionKeys(t, generation.API))

	// second hit within the TTL is served from cache, the revalidation
	// runs in the background
	result, ok = f.worker.HandleFetch(context.Background(), req)
	assert.True(t, ok)
	assert.Equal(t, strategy.SourceCache, result.Source)
	f.worker.Wait()
	assert.Len(t, f.fetcher.Calls(), 2)
}

func TestWorkerIdentity(t *testing.T) {
	f := newWorkerFixture(t, Config{})
	assert.NotEmpty(t, f.worker.ID())
	assert.Equal(t, "v4", f.worker.Version())
}
