package cachestore

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntryTimestampInjection(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	header := http.Header{}
	header.Set("Content-Type", "application/javascript")
	entry := NewEntry(200, header, []byte("console.log(1)"))

	_, ok := entry.CachedAt()
	assert.False(t, ok)

	tagged := entry.WithTimestamp(now)
	at, ok := tagged.CachedAt()
	assert.True(t, ok)
	assert.Equal(t, now.UnixMilli(), at.UnixMilli())

	// the original must stay untouched
	_, ok = entry.CachedAt()
	assert.False(t, ok)
	assert.Equal(t, "application/javascript", tagged.ContentType())
}

func TestEntryFreshnessBoundary(t *testing.T) {
	ttl := 10 * time.Minute
	written := time.UnixMilli(1700000000000)
	entry := NewEntry(200, http.Header{}, []byte("x")).WithTimestamp(written)

	// age == ttl is the boundary: still fresh
	assert.True(t, entry.Fresh(ttl, written.Add(ttl)))
	// one millisecond past it is stale
	assert.False(t, entry.Fresh(ttl, written.Add(ttl+time.Millisecond)))
	assert.True(t, entry.Fresh(ttl, written))
}

func TestEntryWithoutTimestampIsStale(t *testing.T) {
	entry := NewEntry(200, http.Header{}, []byte("x"))
	assert.False(t, entry.Fresh(time.Hour, time.Now()))

	corrupt := entry.Clone()
	corrupt.HTTPHeader().Set(HeaderCachedAt, "not-a-number")
	assert.False(t, corrupt.Fresh(time.Hour, time.Now()))
}

func TestEntryOK(t *testing.T) {
	assert.True(t, NewEntry(200, http.Header{}, nil).OK())
	assert.True(t, NewEntry(204, http.Header{}, nil).OK())
	assert.False(t, NewEntry(304, http.Header{}, nil).OK())
	assert.False(t, NewEntry(404, http.Header{}, nil).OK())
	assert.False(t, NewEntry(500, http.Header{}, nil).OK())
}

func TestEntryCloneIsDeep(t *testing.T) {
	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	entry := NewEntry(200, header, []byte("abc"))
	clone := entry.Clone()
	clone.Body[0] = 'x'
	clone.HTTPHeader().Set("Content-Type", "text/html")
	assert.Equal(t, []byte("abc"), entry.Body)
	assert.Equal(t, "text/plain", entry.ContentType())
}
