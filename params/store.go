// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package params

import "sync"

// Update is one drained parameter value.
type Update struct {
	Name  string
	Value Value
}

// Store holds the current value of every parameter in a schema plus the set
// of parameters written since the last drain.
//
// Writes that leave a value unchanged (after clamping) do not mark it dirty.
// Store is safe for concurrent use; a write racing a drain lands either
// wholly in that drain or wholly in the next one.
type Store struct {
	schema *Schema

	mu     sync.Mutex
	values []Value
	dirty  []bool
	ndirty int
}

// NewStore creates a store with every parameter at its default.
// The dirty set starts empty.
func NewStore(schema *Schema) *Store {
	s := &Store{
		schema: schema,
		values: make([]Value, schema.Len()),
		dirty:  make([]bool, schema.Len()),
	}
	for i, p := range schema.params {
		s.values[i] = p.Default
	}
	return s
}

// Schema returns the schema the store was created with.
func (s *Store) Schema() *Schema { return s.schema }

// Set writes a single value. It reports whether the parameter became dirty.
func (s *Store) Set(name string, v Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setLocked(name, v)
}

// SetMany writes every known key of partial and returns the names that were
// marked dirty, in schema order. Unknown keys, wrong component counts and NaN
// values are ignored.
func (s *Store) SetMany(partial Set) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []int
	for name, v := range partial {
		if s.setLocked(name, v) {
			changed = append(changed, s.schema.index[name])
		}
	}
	return s.namesOf(changed)
}

func (s *Store) setLocked(name string, v Value) bool {
	i, ok := s.schema.index[name]
	if !ok {
		return false
	}
	clamped, ok := s.schema.params[i].Clamp(v)
	if !ok {
		return false
	}
	if clamped.Equal(s.values[i]) {
		return false
	}
	s.values[i] = clamped
	s.markLocked(i)
	return true
}

// Get returns the current value of name.
func (s *Store) Get(name string) (Value, bool) {
	i, ok := s.schema.index[name]
	if !ok {
		return Value{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[i], true
}

// Snapshot returns a copy of every current value.
func (s *Store) Snapshot() Set {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(Set, len(s.values))
	for i, p := range s.schema.params {
		out[p.Name] = s.values[i]
	}
	return out
}

// DrainDirty returns the dirty parameters with their values, in schema
// order, and clears the dirty set.
func (s *Store) DrainDirty() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ndirty == 0 {
		return nil
	}
	out := make([]Update, 0, s.ndirty)
	for i, d := range s.dirty {
		if !d {
			continue
		}
		out = append(out, Update{Name: s.schema.params[i].Name, Value: s.values[i]})
		s.dirty[i] = false
	}
	s.ndirty = 0
	return out
}

// MarkDirty forces name into the dirty set.
func (s *Store) MarkDirty(name string) {
	i, ok := s.schema.index[name]
	if !ok {
		return
	}
	s.mu.Lock()
	s.markLocked(i)
	s.mu.Unlock()
}

// MarkAllDirty forces every parameter into the dirty set. A freshly linked
// program has no uniform state, so everything must be uploaded again.
func (s *Store) MarkAllDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.dirty {
		s.dirty[i] = true
	}
	s.ndirty = len(s.dirty)
}

func (s *Store) markLocked(i int) {
	if !s.dirty[i] {
		s.dirty[i] = true
		s.ndirty++
	}
}

// DirtyLen returns the size of the dirty set.
func (s *Store) DirtyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ndirty
}

// DirtyNames returns the dirty parameter names in schema order.
func (s *Store) DirtyNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idx []int
	for i, d := range s.dirty {
		if d {
			idx = append(idx, i)
		}
	}
	return s.namesOf(idx)
}

// namesOf maps indices to names in ascending index order.
func (s *Store) namesOf(idx []int) []string {
	if len(idx) == 0 {
		return nil
	}
	mark := make([]bool, len(s.values))
	for _, i := range idx {
		mark[i] = true
	}
	out := make([]string, 0, len(idx))
	for i, m := range mark {
		if m {
			out = append(out, s.schema.params[i].Name)
		}
	}
	return out
}
