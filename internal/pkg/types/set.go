// Package types holds small generic containers shared across packages.
package types

import (
	"iter"
	"maps"
	"slices"
)

// Set is a generic hash set backed by map[T]struct{}. It is mutable: Add and
// Delete modify the set in place. The zero value is not usable; use NewSet.
type Set[T comparable] map[T]struct{}

// NewSet creates a Set holding the provided elements.
func NewSet[T comparable](data ...T) Set[T] {
	set := make(Set[T], len(data))
	set.Add(data...)
	return set
}

// Add inserts one or more elements into the set.
func (s Set[T]) Add(values ...T) {
	for _, val := range values {
		s[val] = struct{}{}
	}
}

// Delete removes one or more elements from the set.
func (s Set[T]) Delete(values ...T) {
	for _, val := range values {
		delete(s, val)
	}
}

// Has reports whether v is a member of the set.
func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}

// Len returns the number of elements in the set.
func (s Set[T]) Len() int {
	return len(s)
}

// Difference returns the elements of s that are not in other.
func (s Set[T]) Difference(other Set[T]) Set[T] {
	out := make(Set[T])
	for v := range s {
		if !other.Has(v) {
			out[v] = struct{}{}
		}
	}
	return out
}

// ToIter returns an iterator over all elements in the set.
func (s Set[T]) ToIter() iter.Seq[T] {
	return maps.Keys(s)
}

// ToSlice returns a slice containing all elements in the set.
// The order of elements is not guaranteed.
func (s Set[T]) ToSlice() []T {
	return slices.Collect(s.ToIter())
}
