package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"peakform/internal/sentinel"
)

// maxTxAttempts bounds optimistic retries before surfacing a conflict.
// Contention on a single counter document resolves within a few rounds.
const maxTxAttempts = 5

var errTxStale = errors.New("transaction read set changed")

// RedisStore implements Store on Redis. Documents are JSON strings keyed
// doc:<collection>:<id>; a per-collection set doc-index:<collection> backs
// Query and BatchDelete. RunTransaction uses WATCH with a read-set
// verification pass, so a conflicting writer forces a retry rather than a
// lost update.
type RedisStore struct {
	client redis.Cmdable
	watch  watcher
}

// watcher is the subset of *redis.Client needed for optimistic transactions.
type watcher interface {
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
}

// NewRedisStore creates a Redis-backed document store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, watch: client}
}

func docKey(collection, id string) string {
	return "doc:" + collection + ":" + id
}

func indexKey(collection string) string {
	return "doc-index:" + collection
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	raw, err := s.client.Get(ctx, docKey(collection, id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w: %v", sentinel.ErrUnavailable, err)
	}
	return decodeDoc(raw)
}

func (s *RedisStore) Set(ctx context.Context, collection, id string, doc Doc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, docKey(collection, id), raw, 0)
	pipe.SAdd(ctx, indexKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, collection, id string, fields Doc) error {
	return s.RunTransaction(ctx, func(tx Tx) error {
		return tx.Update(collection, id, fields)
	})
}

func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, docKey(collection, id))
	pipe.SRem(ctx, indexKey(collection), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete: %w: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

// Query loads the collection index and filters client-side. Collections here
// are small (counters and audit records trimmed by cleanup); the sweep runs
// out-of-band, so this trades server-side indexing for a simple layout.
func (s *RedisStore) Query(ctx context.Context, collection string, filters []Filter, limit int) ([]Snapshot, error) {
	ids, err := s.client.SMembers(ctx, indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis query: %w: %v", sentinel.ErrUnavailable, err)
	}
	sort.Strings(ids)

	var out []Snapshot
	for _, id := range ids {
		doc, err := s.Get(ctx, collection, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue // index entry raced a delete
		}
		if err != nil {
			return nil, err
		}
		if !matchAll(doc, filters) {
			continue
		}
		out = append(out, Snapshot{ID: id, Data: doc})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// RunTransaction executes fn optimistically: reads go straight to Redis and
// are recorded, writes are buffered. Commit WATCHes the read set, verifies
// it is unchanged, and applies the buffered writes in a MULTI/EXEC. A stale
// read or WATCH failure retries the whole callback.
func (s *RedisStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx := &redisTx{store: s, ctx: ctx, reads: make(map[string]string)}

		if err := fn(tx); err != nil {
			return err // business abort, not a conflict
		}

		err := s.commit(ctx, tx)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) || errors.Is(err, errTxStale) {
			continue
		}
		return fmt.Errorf("redis transaction: %w: %v", sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("redis transaction: %w", sentinel.ErrConflict)
}

func (s *RedisStore) commit(ctx context.Context, tx *redisTx) error {
	keys := make([]string, 0, len(tx.reads))
	for k := range tx.reads {
		keys = append(keys, k)
	}

	return s.watch.Watch(ctx, func(rt *redis.Tx) error {
		// Verify the read set under WATCH: a write between the callback's
		// read and this point shows up as a changed value.
		for key, seen := range tx.reads {
			cur, err := rt.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				cur = ""
			} else if err != nil {
				return err
			}
			if cur != seen {
				return errTxStale
			}
		}

		_, err := rt.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range tx.writes {
				w(pipe)
			}
			return nil
		})
		return err
	}, keys...)
}

type redisTx struct {
	store  *RedisStore
	ctx    context.Context
	reads  map[string]string // key -> raw value at read time ("" = missing)
	writes []func(redis.Pipeliner)
}

func (t *redisTx) Get(collection, id string) (Doc, error) {
	key := docKey(collection, id)
	raw, err := t.store.client.Get(t.ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		t.reads[key] = ""
		return nil, fmt.Errorf("%s/%s: %w", collection, id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w: %v", sentinel.ErrUnavailable, err)
	}
	t.reads[key] = raw
	return decodeDoc(raw)
}

func (t *redisTx) Set(collection, id string, doc Doc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	t.writes = append(t.writes, func(pipe redis.Pipeliner) {
		pipe.Set(t.ctx, docKey(collection, id), raw, 0)
		pipe.SAdd(t.ctx, indexKey(collection), id)
	})
	return nil
}

func (t *redisTx) Update(collection, id string, fields Doc) error {
	doc, err := t.Get(collection, id)
	if err != nil {
		return err
	}
	for k, v := range fields {
		doc[k] = v
	}
	return t.Set(collection, id, doc)
}

func (t *redisTx) Delete(collection, id string) error {
	t.writes = append(t.writes, func(pipe redis.Pipeliner) {
		pipe.Del(t.ctx, docKey(collection, id))
		pipe.SRem(t.ctx, indexKey(collection), id)
	})
	return nil
}

func (s *RedisStore) BatchDelete(ctx context.Context, collection string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	dels := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		dels[i] = pipe.Del(ctx, docKey(collection, id))
		pipe.SRem(ctx, indexKey(collection), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis batch delete: %w: %v", sentinel.ErrUnavailable, err)
	}

	deleted := 0
	for _, cmd := range dels {
		deleted += int(cmd.Val())
	}
	return deleted, nil
}

func decodeDoc(raw string) (Doc, error) {
	var doc Doc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
