package model

import "sort"

// SymbolSet is an insertion-ordered set of symbol names. Iteration order is the
// order in which names were first added; Sorted gives the canonical order used
// for anything written to output.
type SymbolSet struct {
	order []string
	index map[string]int
}

// NewSymbolSet builds a set from names, dropping duplicates.
func NewSymbolSet(names ...string) *SymbolSet {
	s := &SymbolSet{index: make(map[string]int, len(names))}
	for _, n := range names {
		s.Add(n)
	}
	return s
}

func (s *SymbolSet) ensure() {
	if s.index == nil {
		s.index = make(map[string]int)
	}
}

// Add inserts name and reports whether it was new.
func (s *SymbolSet) Add(name string) bool {
	s.ensure()
	if _, ok := s.index[name]; ok {
		return false
	}
	s.index[name] = len(s.order)
	s.order = append(s.order, name)
	return true
}

// AddAll inserts every name from other.
func (s *SymbolSet) AddAll(other *SymbolSet) {
	if other == nil {
		return
	}
	for _, n := range other.order {
		s.Add(n)
	}
}

// Remove deletes name and reports whether it was present.
func (s *SymbolSet) Remove(name string) bool {
	if s == nil || s.index == nil {
		return false
	}
	idx, ok := s.index[name]
	if !ok {
		return false
	}
	s.order = append(s.order[:idx], s.order[idx+1:]...)
	delete(s.index, name)
	for i := idx; i < len(s.order); i++ {
		s.index[s.order[i]] = i
	}
	return true
}

// Has reports membership.
func (s *SymbolSet) Has(name string) bool {
	if s == nil || s.index == nil {
		return false
	}
	_, ok := s.index[name]
	return ok
}

// Len returns the number of names.
func (s *SymbolSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Names returns the names in insertion order.
// Do not modify the returned slice.
func (s *SymbolSet) Names() []string {
	if s == nil {
		return nil
	}
	return s.order
}

// Sorted returns a sorted copy of the names.
func (s *SymbolSet) Sorted() []string {
	if s == nil {
		return nil
	}
	out := append([]string(nil), s.order...)
	sort.Strings(out)
	return out
}

// Intersect returns the sorted names present in both sets.
func (s *SymbolSet) Intersect(other *SymbolSet) []string {
	if s == nil || other == nil {
		return nil
	}
	var out []string
	for _, n := range s.order {
		if other.Has(n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s *SymbolSet) Clone() *SymbolSet {
	if s == nil {
		return NewSymbolSet()
	}
	return NewSymbolSet(s.order...)
}

// MarshalJSON renders the set as a sorted array.
func (s *SymbolSet) MarshalJSON() ([]byte, error) {
	return marshalSorted(s.Sorted())
}
