package cachestore

import (
	"net/http"
	"strconv"
	"time"
)

// HeaderCachedAt carries the wall-clock write timestamp injected into
// every stored response, in milliseconds since epoch.
const HeaderCachedAt = "X-Cached-At"

// Entry is a stored response. Entries are replace-on-write: an Entry is
// never mutated after it has been put into a partition.
type Entry struct {
	Status int                 `msgpack:"status"`
	Header map[string][]string `msgpack:"header"`
	Body   []byte              `msgpack:"body"`
}

// NewEntry builds an entry from response parts. The header is copied.
func NewEntry(status int, header http.Header, body []byte) *Entry {
	h := make(map[string][]string, len(header))
	for k, v := range header {
		vv := make([]string, len(v))
		copy(vv, v)
		h[k] = vv
	}
	return &Entry{Status: status, Header: h, Body: body}
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	body := make([]byte, len(e.Body))
	copy(body, e.Body)
	clone := NewEntry(e.Status, e.Header, body)
	return clone
}

// HTTPHeader returns the entry's header as an http.Header. The returned
// value aliases the entry and must not be mutated.
func (e *Entry) HTTPHeader() http.Header {
	return http.Header(e.Header)
}

// ContentType returns the entry's Content-Type header.
func (e *Entry) ContentType() string {
	return e.HTTPHeader().Get("Content-Type")
}

// OK reports whether the entry carries a 2xx status.
func (e *Entry) OK() bool {
	return e.Status >= 200 && e.Status < 300
}

// WithTimestamp returns a copy of the entry with the cached-at header
// set to now. The original entry is left untouched.
func (e *Entry) WithTimestamp(now time.Time) *Entry {
	clone := e.Clone()
	clone.HTTPHeader().Set(HeaderCachedAt, strconv.FormatInt(now.UnixMilli(), 10))
	return clone
}

// CachedAt returns the injected write timestamp. ok is false when the
// entry was never tagged (or the header was corrupted), in which case
// the entry must be treated as stale.
func (e *Entry) CachedAt() (time.Time, bool) {
	raw := e.HTTPHeader().Get(HeaderCachedAt)
	if raw == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Age returns the time elapsed since the entry was written.
func (e *Entry) Age(now time.Time) (time.Duration, bool) {
	at, ok := e.CachedAt()
	if !ok {
		return 0, false
	}
	return now.Sub(at), true
}

// Fresh reports whether the entry is within its ttl. The boundary is
// inclusive: an entry whose age equals ttl is still fresh; one
// millisecond past it is stale. Staleness is a pure function of the
// entry's timestamp and the ttl supplied by the caller, so a policy
// change takes effect without rewriting stored entries.
func (e *Entry) Fresh(ttl time.Duration, now time.Time) bool {
	age, ok := e.Age(now)
	if !ok {
		return false
	}
	return age <= ttl
}
