package docstore

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local runs.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	newID       func() string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: map[string]map[string]map[string]any{},
		newID:       uuid.NewString,
	}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Data: cloneMap(data)}, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	clauses := filter.clauses()
	wants := make([]any, len(clauses))
	for i, c := range clauses {
		want, err := normalizeValue(c.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		wants[i] = want
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := []Document{}
	for _, id := range ids {
		if !matchesAll(docs[id], clauses, wants) {
			continue
		}
		out = append(out, Document{ID: id, Data: cloneMap(docs[id])})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matchesAll(doc map[string]any, clauses []Filter, wants []any) bool {
	for i, c := range clauses {
		got, ok := lookupPath(doc, c.Field)
		if !ok || !compare(got, c.Op, wants[i]) {
			return false
		}
	}
	return true
}

func (s *MemoryStore) Add(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := s.newID()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]any, opts ...SetOption) error {
	if id == "" {
		return fmt.Errorf("docstore: id is required")
	}
	normalized, err := normalizeFields(data)
	if err != nil {
		return err
	}
	options := resolveSetOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.collection(collection)
	target := map[string]any{}
	if existing, ok := docs[id]; ok && options.merge {
		target = cloneMap(existing)
	}
	mergeInto(target, normalized)
	docs[id] = target
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := validateUpdatePaths(fields); err != nil {
		return err
	}
	normalized, err := normalizeFields(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	target := cloneMap(existing)
	applyUpdate(target, normalized)
	s.collections[collection][id] = target
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

// Count returns the number of documents in a collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *MemoryStore) collection(name string) map[string]map[string]any {
	docs, ok := s.collections[name]
	if !ok {
		docs = map[string]map[string]any{}
		s.collections[name] = docs
	}
	return docs
}

func compare(got any, op Op, want any) bool {
	if op == OpEqual {
		return reflect.DeepEqual(got, want)
	}
	var c int
	switch g := got.(type) {
	case string:
		w, ok := want.(string)
		if !ok {
			return false
		}
		switch {
		case g < w:
			c = -1
		case g > w:
			c = 1
		}
	case float64:
		w, ok := want.(float64)
		if !ok {
			return false
		}
		switch {
		case g < w:
			c = -1
		case g > w:
			c = 1
		}
	default:
		return false
	}
	switch op {
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterOrEqual:
		return c >= 0
	}
	return false
}
