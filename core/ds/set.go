// Package ds provides small generic data structures used by the runtime.
package ds

// Set is an ordered set: O(1) membership plus insertion-order iteration.
// The transport session keeps its topic filters in one so a reconnect can
// replay subscriptions in the order they were added.
type Set[T comparable] struct {
	items map[T]struct{}
	order []T
}

// NewSet creates a set containing the given values.
func NewSet[T comparable](values ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]struct{}, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add adds v to the set. No-op if already present. Returns true if added.
func (s *Set[T]) Add(v T) bool {
	if _, ok := s.items[v]; ok {
		return false
	}
	s.items[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

// Contains reports whether v is in the set.
func (s *Set[T]) Contains(v T) bool {
	_, ok := s.items[v]
	return ok
}

// Len returns the number of elements.
func (s *Set[T]) Len() int { return len(s.items) }

// Values returns the elements in insertion order. The returned slice is a
// copy.
func (s *Set[T]) Values() []T {
	out := make([]T, len(s.order))
	copy(out, s.order)
	return out
}
