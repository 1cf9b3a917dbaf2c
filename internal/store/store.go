// Package store provides the reactive key/value state container that
// the viewer components communicate through. Components subscribe to
// the keys they project from; a Set synchronously notifies every
// subscriber for that key before returning.
package store

import "sync"

// Key identifies one piece of viewer state.
type Key string

// Well-known state keys. Components may define additional keys, but
// everything the stock controllers react to is listed here.
const (
	KeyVariant         Key = "variant"
	KeyZStack          Key = "zstack"
	KeyShowBoundaries  Key = "showCellBoundaries"
	KeyShowNuclei      Key = "showCellNuclei"
	KeyBoundaryOpacity Key = "boundaryOpacity"
	KeyNucleiOpacity   Key = "nucleiOpacity"
	KeyInnerColoring   Key = "innerColoring"
	KeyInnerOpacity    Key = "innerOpacity"
	KeySelectedGenes   Key = "selectedGenes"
	KeyGeneVisibility  Key = "geneVisibility"
	KeyGeneStyles      Key = "geneStyles"
	KeyFlipX           Key = "flipX"
	KeyFlipY           Key = "flipY"
	KeySwapXY          Key = "swapXY"
)

// Callback receives the key that changed and its new value.
type Callback func(key Key, value any)

type subscription struct {
	id int
	cb Callback
}

// Store is a flat key→value map with per-key subscribers. It is safe
// for concurrent use; callbacks run on the goroutine that called Set,
// without the store lock held, so they may read or write the store
// reentrantly.
type Store struct {
	mu     sync.Mutex
	values map[Key]any
	subs   map[Key][]subscription
	nextID int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		values: make(map[Key]any),
		subs:   make(map[Key][]subscription),
	}
}

// Set stores value under key and synchronously invokes all subscribers
// registered for key, in registration order, before returning.
func (s *Store) Set(key Key, value any) {
	s.mu.Lock()
	s.values[key] = value
	subs := make([]subscription, len(s.subs[key]))
	copy(subs, s.subs[key])
	s.mu.Unlock()

	for _, sub := range subs {
		sub.cb(key, value)
	}
}

// Get returns the value stored under key.
func (s *Store) Get(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Subscribe registers cb for changes to key and returns a function
// that removes the subscription.
func (s *Store) Subscribe(key Key, cb Callback) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[key] = append(s.subs[key], subscription{id: id, cb: cb})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subs[key]
		for i, sub := range subs {
			if sub.id == id {
				s.subs[key] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}

// Bool returns the value under key as a bool, or def if absent or of
// another type.
func (s *Store) Bool(key Key, def bool) bool {
	if v, ok := s.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the value under key as an int, or def.
func (s *Store) Int(key Key, def int) int {
	if v, ok := s.Get(key); ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

// Float returns the value under key as a float64, or def.
func (s *Store) Float(key Key, def float64) float64 {
	if v, ok := s.Get(key); ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}

// String returns the value under key as a string, or def.
func (s *Store) String(key Key, def string) string {
	if v, ok := s.Get(key); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// Strings returns the value under key as a string slice, or nil.
func (s *Store) Strings(key Key) []string {
	if v, ok := s.Get(key); ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
	}
	return nil
}
