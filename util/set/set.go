// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package set contains set types.
package set

import (
	"maps"
	"slices"
)

// Set is a set of T.
type Set[T comparable] map[T]struct{}

// Of returns a new set constructed from the elements in slice.
func Of[T comparable](slice ...T) Set[T] {
	s := Set[T]{}
	s.AddSlice(slice)
	return s
}

// Add adds e to the set.
func (s Set[T]) Add(e T) { s[e] = struct{}{} }

// AddSlice adds each element of es to the set.
func (s Set[T]) AddSlice(es []T) {
	for _, e := range es {
		s.Add(e)
	}
}

// Delete removes e from the set.
func (s Set[T]) Delete(e T) { delete(s, e) }

// Contains reports whether s contains e.
func (s Set[T]) Contains(e T) bool {
	_, ok := s[e]
	return ok
}

// Len reports the number of items in s.
func (s Set[T]) Len() int { return len(s) }

// Clone returns a copy of s that shares no state with the original.
func (s Set[T]) Clone() Set[T] { return maps.Clone(s) }

// Slice returns the elements of the set as a slice, in no particular
// order.
func (s Set[T]) Slice() []T { return slices.Collect(maps.Keys(s)) }
