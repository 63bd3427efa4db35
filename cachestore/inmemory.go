package cachestore

import (
	"context"
	"sync"
)

type inMemoryStore struct {
	mutex      sync.Mutex
	partitions map[string]map[string]*Entry
}

var _ Store = (*inMemoryStore)(nil)

// NewInMemory returns a new in-memory Store implementation.
func NewInMemory() Store {
	return &inMemoryStore{partitions: make(map[string]map[string]*Entry)}
}

func (s *inMemoryStore) Open(_ context.Context, name string) (Partition, error) {
	// The backing map is created lazily by the first Put so that opening
	// a partition never allocates storage for generations that stay empty.
	return &inMemoryPartition{store: s, name: name}, nil
}

func (s *inMemoryStore) Names(_ context.Context) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	names := make([]string, 0, len(s.partitions))
	for name := range s.partitions {
		names = append(names, name)
	}
	return names, nil
}

func (s *inMemoryStore) Delete(_ context.Context, name string) (bool, error) {
	s.mutex.Lock()
	_, ok := s.partitions[name]
	if ok {
		delete(s.partitions, name)
	}
	s.mutex.Unlock()
	return ok, nil
}

func (s *inMemoryStore) Close() error {
	s.mutex.Lock()
	s.partitions = make(map[string]map[string]*Entry)
	s.mutex.Unlock()
	return nil
}

// inMemoryPartition holds no entry state of its own; every operation
// resolves the backing map through the store, so a handle held across a
// generation deletion degrades to misses instead of failing.
type inMemoryPartition struct {
	store *inMemoryStore
	name  string
}

var _ Partition = (*inMemoryPartition)(nil)

func (p *inMemoryPartition) Name() string {
	return p.name
}

func (p *inMemoryPartition) Match(_ context.Context, key string) (*Entry, bool, error) {
	p.store.mutex.Lock()
	defer p.store.mutex.Unlock()
	entries, ok := p.store.partitions[p.name]
	if !ok {
		return nil, false, nil
	}
	entry, ok := entries[key]
	if !ok {
		return nil, false, nil
	}
	return entry, true, nil
}

func (p *inMemoryPartition) Put(_ context.Context, key string, entry *Entry) error {
	p.store.mutex.Lock()
	entries, ok := p.store.partitions[p.name]
	if !ok {
		entries = make(map[string]*Entry)
		p.store.partitions[p.name] = entries
	}
	entries[key] = entry
	p.store.mutex.Unlock()
	return nil
}

func (p *inMemoryPartition) Delete(_ context.Context, key string) (bool, error) {
	p.store.mutex.Lock()
	defer p.store.mutex.Unlock()
	entries, ok := p.store.partitions[p.name]
	if !ok {
		return false, nil
	}
	_, ok = entries[key]
	if ok {
		delete(entries, key)
	}
	return ok, nil
}

func (p *inMemoryPartition) Keys(_ context.Context) ([]string, error) {
	p.store.mutex.Lock()
	defer p.store.mutex.Unlock()
	entries, ok := p.store.partitions[p.name]
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	return keys, nil
}
