// Copyright (c) The localbus Authors
// SPDX-License-Identifier: BSD-3-Clause

package set

import (
	"slices"
	"testing"
)

func TestSet(t *testing.T) {
	s := Set[int]{}
	s.Add(1)
	s.Add(2)
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if !s.Contains(1) || !s.Contains(2) || s.Contains(3) {
		t.Errorf("contains: unexpected results")
	}
	s.Add(1)
	if s.Len() != 2 {
		t.Errorf("Len() after duplicate Add = %d, want 2", s.Len())
	}
	s.Delete(1)
	if s.Contains(1) {
		t.Error("Contains(1) after Delete")
	}
	s.Delete(42) // absent, no-op

	s2 := Of("a", "b")
	got := s2.Slice()
	slices.Sort(got)
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Slice() = %v", got)
	}

	c := s2.Clone()
	c.Add("c")
	if s2.Contains("c") {
		t.Error("Clone shares state with original")
	}
}

func TestAddSlice(t *testing.T) {
	s := Set[string]{}
	s.AddSlice([]string{"x", "y", "x"})
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}
