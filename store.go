package kfx

import (
	"iter"
	"slices"
)

// Store is the immutable result of parsing one container. It is keyed by
// resolved (type, id) names and is safe for concurrent readers.
type Store struct {
	version    Version
	entry      string
	symbols    *SymbolTable
	parts      int
	fragments  []Fragment
	index      map[FragmentKey]int
	types      []string
	skipped    []FragmentKey
	malformed  []FragmentKey
	duplicates []Fragment
}

type storeBuilder struct {
	s *Store
}

func newStoreBuilder() *storeBuilder {
	return &storeBuilder{s: &Store{index: make(map[FragmentKey]int)}}
}

func (b *storeBuilder) add(f Fragment) {
	s := b.s
	key := f.Key()
	if _, ok := s.index[key]; ok {
		s.duplicates = append(s.duplicates, f)
		return
	}
	if !slices.Contains(s.types, f.Type) {
		s.types = append(s.types, f.Type)
	}
	s.index[key] = len(s.fragments)
	s.fragments = append(s.fragments, f)
	switch {
	case !f.Known:
		s.skipped = append(s.skipped, key)
	case f.Err != nil:
		s.malformed = append(s.malformed, key)
	}
}

func (b *storeBuilder) build() *Store { return b.s }

// Get returns the decoded value of a fragment. Missing, malformed and
// forward-skipped fragments report false.
func (s *Store) Get(typ, id string) (Value, bool) {
	i, ok := s.index[FragmentKey{Type: typ, ID: id}]
	if !ok {
		return Value{}, false
	}
	f := s.fragments[i]
	if !f.Known || f.Err != nil {
		return Value{}, false
	}
	return f.Value, true
}

// Fragment returns the full record for a key, malformed or not.
func (s *Store) Fragment(typ, id string) (Fragment, bool) {
	i, ok := s.index[FragmentKey{Type: typ, ID: id}]
	if !ok {
		return Fragment{}, false
	}
	return s.fragments[i], true
}

// Has reports whether any fragment, decoded or not, has this key.
func (s *Store) Has(typ, id string) bool {
	_, ok := s.index[FragmentKey{Type: typ, ID: id}]
	return ok
}

// AllOfType yields the fragments of one type in parse order. Each call is an
// independent pass.
func (s *Store) AllOfType(typ string) iter.Seq[Fragment] {
	return func(yield func(Fragment) bool) {
		for _, f := range s.fragments {
			if f.Type != typ {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

// Fragments yields every stored fragment in parse order.
func (s *Store) Fragments() iter.Seq[Fragment] {
	return slices.Values(s.fragments)
}

// Types returns the distinct fragment types in order of first appearance.
func (s *Store) Types() []string { return slices.Clone(s.types) }

func (s *Store) Len() int { return len(s.fragments) }

// Parts returns the number of container parts the store was built from.
func (s *Store) Parts() int { return s.parts }

func (s *Store) Version() Version { return s.version }

// Entry returns the header's entry fragment id, or "" when none was set.
func (s *Store) Entry() string { return s.entry }

// Symbols returns the symbol table of the first part.
func (s *Store) Symbols() *SymbolTable { return s.symbols }

// Skipped lists fragments whose type is not understood.
func (s *Store) Skipped() []FragmentKey { return slices.Clone(s.skipped) }

// Malformed lists well-framed fragments whose payload failed to decode.
func (s *Store) Malformed() []FragmentKey { return slices.Clone(s.malformed) }

// Duplicates returns the later copies of repeated keys; the first copy is the
// one stored.
func (s *Store) Duplicates() []Fragment { return slices.Clone(s.duplicates) }
