package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bkalafat/tskulis-sub002/cachestore"
	"github.com/bkalafat/tskulis-sub002/generation"
	"github.com/bkalafat/tskulis-sub002/strategy"
)

// queueKeyPrefix namespaces deferred writes inside the dynamic
// generation, next to regular cached responses.
const queueKeyPrefix = "sync:"

// queuedWrite is the persisted form of a failed state-changing request.
type queuedWrite struct {
	Method string              `msgpack:"method"`
	URL    string              `msgpack:"url"`
	Header map[string][]string `msgpack:"header"`
	Body   []byte              `msgpack:"body"`
}

// queueKey composes a key whose lexicographic order is insertion order:
// a zero-padded sequence number followed by the request identity hash.
func (w *Worker) queueKey(q *queuedWrite) string {
	digest := xxhash.New()
	digest.WriteString(q.Method)
	digest.WriteString("|")
	digest.WriteString(q.URL)
	digest.WriteString("|")
	digest.Write(q.Body)
	return fmt.Sprintf("%s%016d:%016x", queueKeyPrefix, w.seq.Add(1), digest.Sum64())
}

// seedSeq starts the sequence counter past the highest sequence already
// persisted, so writes queued after a restart sort behind the survivors
// instead of colliding with their keys. Runs once per worker.
func (w *Worker) seedSeq(ctx context.Context, part cachestore.Partition) {
	w.seqSeed.Do(func() {
		keys, err := part.Keys(ctx)
		if err != nil {
			w.log.Warn("could not inspect queued writes: %s", err)
			return
		}
		var highest uint64
		for _, key := range keys {
			rest, ok := strings.CutPrefix(key, queueKeyPrefix)
			if !ok {
				continue
			}
			seq, _, ok := strings.Cut(rest, ":")
			if !ok {
				continue
			}
			n, err := strconv.ParseUint(seq, 10, 64)
			if err != nil {
				continue
			}
			if n > highest {
				highest = n
			}
		}
		if highest > w.seq.Load() {
			w.seq.Store(highest)
		}
	})
}

// QueueWrite persists a state-changing request for later replay. The
// request body is consumed.
func (w *Worker) QueueWrite(ctx context.Context, req *http.Request) error {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return fmt.Errorf("worker: reading body of deferred write: %w", err)
		}
	}
	q := &queuedWrite{
		Method: req.Method,
		URL:    strategy.RequestKey(req),
		Header: map[string][]string(req.Header),
		Body:   body,
	}
	payload, err := msgpack.Marshal(q)
	if err != nil {
		return fmt.Errorf("worker: encoding deferred write: %w", err)
	}
	handle, err := w.registry.Open(ctx, generation.Dynamic)
	if err != nil {
		return err
	}
	w.seedSeq(ctx, handle.Partition())
	header := http.Header{}
	header.Set("Content-Type", "application/msgpack")
	entry := cachestore.NewEntry(http.StatusAccepted, header, payload).WithTimestamp(w.now())
	key := w.queueKey(q)
	if err := handle.Partition().Put(ctx, key, entry); err != nil {
		return fmt.Errorf("worker: queueing deferred write: %w", err)
	}
	w.log.Info("queued deferred %s %s as %s", q.Method, q.URL, key)
	return nil
}

// HandleWrite attempts a state-changing request against the network and
// queues it for background sync when the network is down. The caller
// always gets a concrete response: the origin's on success, a
// synthesized 202 once queued, a 503 when even queueing failed.
func (w *Worker) HandleWrite(ctx context.Context, req *http.Request) *strategy.Result {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			w.log.Warn("could not read write request body: %s", err)
			return &strategy.Result{Entry: strategy.Unavailable(), Source: strategy.SourceFallback}
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	attempt := req.Clone(ctx)
	if body != nil {
		attempt.Body = io.NopCloser(bytes.NewReader(body))
	}
	entry, err := w.fetcher.Fetch(ctx, attempt)
	if err == nil {
		return &strategy.Result{Entry: entry, Source: strategy.SourceNetwork}
	}
	w.log.Debug("write to %s failed, deferring: %s", strategy.RequestKey(req), err)
	if body != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
	}
	if err := w.QueueWrite(ctx, req); err != nil {
		w.log.Error("could not queue deferred write: %s", err)
		return &strategy.Result{Entry: strategy.Unavailable(), Source: strategy.SourceFallback}
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json; charset=utf-8")
	accepted := cachestore.NewEntry(http.StatusAccepted, header, []byte(`{"queued":true}`))
	return &strategy.Result{Entry: accepted, Source: strategy.SourceFallback}
}

// HandleSync replays every queued deferred write, oldest first. A
// successful replay removes its queue entry; a failure leaves it for
// the next trigger. Best effort: one attempt per entry per trigger, no
// exactly-once guarantee.
func (w *Worker) HandleSync(ctx context.Context, tag string) error {
	if tag != w.cfg.SyncTag {
		w.log.Debug("ignoring sync trigger %q", tag)
		return nil
	}
	handle, err := w.registry.Open(ctx, generation.Dynamic)
	if err != nil {
		return err
	}
	part := handle.Partition()
	keys, err := part.Keys(ctx)
	if err != nil {
		return fmt.Errorf("worker: listing deferred writes: %w", err)
	}
	var queued []string
	for _, key := range keys {
		if strings.HasPrefix(key, queueKeyPrefix) {
			queued = append(queued, key)
		}
	}
	sort.Strings(queued)
	var replayed, failed int
	for _, key := range queued {
		entry, ok, err := part.Match(ctx, key)
		if err != nil || !ok {
			continue
		}
		var q queuedWrite
		if err := msgpack.Unmarshal(entry.Body, &q); err != nil {
			w.log.Warn("dropping undecodable deferred write %s: %s", key, err)
			part.Delete(ctx, key)
			continue
		}
		if !w.replay(ctx, &q) {
			failed++
			continue
		}
		if _, err := part.Delete(ctx, key); err != nil {
			w.log.Warn("could not dequeue %s: %s", key, err)
		}
		replayed++
	}
	if replayed > 0 || failed > 0 {
		w.log.Info("sync %s: replayed %d, kept %d", tag, replayed, failed)
	}
	return nil
}

func (w *Worker) replay(ctx context.Context, q *queuedWrite) bool {
	req, err := http.NewRequestWithContext(ctx, q.Method, q.URL, bytes.NewReader(q.Body))
	if err != nil {
		w.log.Warn("deferred %s %s is not replayable: %s", q.Method, q.URL, err)
		return true // unreplayable entries would fail forever, drop them
	}
	for k, v := range q.Header {
		req.Header[k] = v
	}
	entry, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		w.log.Debug("replay of %s %s failed: %s", q.Method, q.URL, err)
		return false
	}
	if !entry.OK() {
		w.log.Debug("replay of %s %s returned %d", q.Method, q.URL, entry.Status)
		return false
	}
	return true
}
