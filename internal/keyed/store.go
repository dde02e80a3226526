// Package keyed holds process-wide state records addressed by document id.
package keyed

import "sync"

// Store maps keys to values and serializes every read-modify-write under a
// single mutex, so concurrent updates to the same key are never lost.
type Store[V any] struct {
	mu    sync.Mutex
	items map[string]V
}

func NewStore[V any]() *Store[V] {
	return &Store[V]{items: make(map[string]V)}
}

func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok
}

// Update applies fn to the current value (ok reports whether one existed)
// and stores the result atomically. fn must not call back into the same Store.
func (s *Store[V]) Update(key string, fn func(cur V, ok bool) V) V {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[key]
	next := fn(cur, ok)
	s.items[key] = next
	return next
}

func (s *Store[V]) Set(key string, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = v
}

func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// Count returns how many stored values satisfy pred.
func (s *Store[V]) Count(pred func(V) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.items {
		if pred(v) {
			n++
		}
	}
	return n
}
