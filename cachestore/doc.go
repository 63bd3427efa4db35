// Package cachestore provides the response storage layer for the
// offline caching engine: an async key-value store of HTTP responses
// partitioned into named cache generations.
//
// # Store and Partition
//
// A [Store] holds any number of named generations; a [Partition] is the
// handle for one of them. Partitions are created lazily by the first
// [Partition.Put], and a handle held across a generation deletion keeps
// working — reads simply become misses. This matters during the
// activate phase, where stale generations are deleted while requests
// may still be in flight against them.
//
// # Entries
//
// An [Entry] is a stored response (status, header, body) carrying the
// write timestamp injected under [HeaderCachedAt]. Freshness is
// computed on read from the timestamp and a caller-supplied TTL — the
// TTL is policy, not data, so changing it takes effect immediately for
// entries already stored. Entries are replace-on-write and never
// mutated in place.
//
// # Implementations
//
//   - [NewInMemory] — in-process maps guarded by a mutex. No
//     serialization, lost on restart. The default for a single-node
//     deployment and for tests.
//   - [NewRedis] — one Redis hash per generation plus an index set of
//     generation names, entries serialized to msgpack. Each operation
//     uses a per-query timeout ([DefaultQueryTimeout]) to prevent hangs
//     on slow storage. Lets several proxy instances share one cache.
package cachestore
