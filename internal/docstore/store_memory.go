package docstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"peakform/internal/sentinel"
)

// InMemoryStore implements Store with a process-local map. Transactions are
// serialized under the write lock, which gives the same per-document
// atomicity guarantee the production store provides. Used by unit tests and
// single-instance development runs.
type InMemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Doc
}

// NewInMemoryStore creates an empty in-memory document store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{collections: make(map[string]map[string]Doc)}
}

func (s *InMemoryStore) Get(_ context.Context, collection, id string) (Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(collection, id)
}

func (s *InMemoryStore) get(collection, id string) (Doc, error) {
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, sentinel.ErrNotFound)
	}
	return Clone(doc), nil
}

func (s *InMemoryStore) Set(_ context.Context, collection, id string, doc Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(collection, id, doc)
	return nil
}

func (s *InMemoryStore) set(collection, id string, doc Doc) {
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]Doc)
		s.collections[collection] = col
	}
	col[id] = Clone(doc)
}

func (s *InMemoryStore) Update(_ context.Context, collection, id string, fields Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(collection, id, fields)
}

func (s *InMemoryStore) update(collection, id string, fields Doc) error {
	doc, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, sentinel.ErrNotFound)
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *InMemoryStore) Query(_ context.Context, collection string, filters []Filter, limit int) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Snapshot
	for id, doc := range s.collections[collection] {
		if !matchAll(doc, filters) {
			continue
		}
		out = append(out, Snapshot{ID: id, Data: Clone(doc)})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// RunTransaction holds the write lock for the duration of fn: reads and
// queued writes commit as one unit, and concurrent transactions serialize.
func (s *InMemoryStore) RunTransaction(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *InMemoryStore) BatchDelete(_ context.Context, collection string, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collections[collection]
	deleted := 0
	for _, id := range ids {
		if _, ok := col[id]; ok {
			delete(col, id)
			deleted++
		}
	}
	return deleted, nil
}

// memoryTx buffers writes so a failed callback leaves no partial state.
type memoryTx struct {
	store  *InMemoryStore
	writes []func()
}

func (t *memoryTx) Get(collection, id string) (Doc, error) {
	return t.store.get(collection, id)
}

func (t *memoryTx) Set(collection, id string, doc Doc) error {
	cloned := Clone(doc)
	t.writes = append(t.writes, func() { t.store.set(collection, id, cloned) })
	return nil
}

func (t *memoryTx) Update(collection, id string, fields Doc) error {
	if _, err := t.store.get(collection, id); err != nil {
		return err
	}
	cloned := Clone(fields)
	t.writes = append(t.writes, func() { _ = t.store.update(collection, id, cloned) })
	return nil
}

func (t *memoryTx) Delete(collection, id string) error {
	t.writes = append(t.writes, func() {
		delete(t.store.collections[collection], id)
	})
	return nil
}

func (t *memoryTx) commit() {
	for _, w := range t.writes {
		w()
	}
}

func matchAll(doc Doc, filters []Filter) bool {
	for _, f := range filters {
		if !match(doc, f) {
			return false
		}
	}
	return true
}

func match(doc Doc, f Filter) bool {
	v, ok := doc[f.Field]
	if !ok {
		return false
	}

	if f.Op == "==" {
		return equal(v, f.Value)
	}

	cmp, ok := compare(v, f.Value)
	if !ok {
		return false
	}
	switch f.Op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func equal(a, b any) bool {
	if cmp, ok := compare(a, b); ok {
		return cmp == 0
	}
	return a == b
}

// compare handles the three orderable shapes documents contain: numbers
// (including post-JSON float64), timestamps, and strings.
func compare(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		}
		return 0, true
	}

	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		}
		return 0, true
	}

	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
