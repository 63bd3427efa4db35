package cachestore

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

type redisStore struct {
	client *redis.Client
	cfg    config
}

var _ Store = (*redisStore)(nil)

// NewRedis returns a Store backed by Redis. Each generation is a hash
// keyed under the configured namespace; an index set tracks the names of
// every generation present. The caller owns the redis.Client lifecycle —
// Close is a no-op on the client.
func NewRedis(client *redis.Client, opts ...Option) Store {
	return &redisStore{client: client, cfg: applyOptions(opts)}
}

func (s *redisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.cfg.queryTimeout)
}

func (s *redisStore) hashKey(name string) string {
	return s.cfg.namespace + ":gen:" + name
}

func (s *redisStore) indexKey() string {
	return s.cfg.namespace + ":generations"
}

func (s *redisStore) Open(_ context.Context, name string) (Partition, error) {
	return &redisPartition{store: s, name: name}, nil
}

func (s *redisStore) Names(ctx context.Context) ([]string, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return s.client.SMembers(qctx, s.indexKey()).Result()
}

func (s *redisStore) Delete(ctx context.Context, name string) (bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	pipe := s.client.Pipeline()
	del := pipe.Del(qctx, s.hashKey(name))
	pipe.SRem(qctx, s.indexKey(), name)
	if _, err := pipe.Exec(qctx); err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

// Close is a no-op — the caller owns the redis.Client lifecycle.
func (s *redisStore) Close() error {
	return nil
}

type redisPartition struct {
	store *redisStore
	name  string
}

var _ Partition = (*redisPartition)(nil)

func (p *redisPartition) Name() string {
	return p.name
}

func (p *redisPartition) Match(ctx context.Context, key string) (*Entry, bool, error) {
	qctx, cancel := p.store.queryCtx(ctx)
	defer cancel()
	data, err := p.store.client.HGet(qctx, p.store.hashKey(p.name), key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entry Entry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return nil, false, err
	}
	return &entry, true, nil
}

func (p *redisPartition) Put(ctx context.Context, key string, entry *Entry) error {
	data, err := msgpack.Marshal(entry)
	if err != nil {
		return err
	}
	qctx, cancel := p.store.queryCtx(ctx)
	defer cancel()
	pipe := p.store.client.Pipeline()
	pipe.HSet(qctx, p.store.hashKey(p.name), key, data)
	pipe.SAdd(qctx, p.store.indexKey(), p.name)
	_, err = pipe.Exec(qctx)
	return err
}

func (p *redisPartition) Delete(ctx context.Context, key string) (bool, error) {
	qctx, cancel := p.store.queryCtx(ctx)
	defer cancel()
	result, err := p.store.client.HDel(qctx, p.store.hashKey(p.name), key).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}

func (p *redisPartition) Keys(ctx context.Context) ([]string, error) {
	qctx, cancel := p.store.queryCtx(ctx)
	defer cancel()
	return p.store.client.HKeys(qctx, p.store.hashKey(p.name)).Result()
}
