// Package state holds the durable sets of post IDs that drive deduplication.
package state

// Set is an insertion-ordered set of post IDs. It is not safe for concurrent
// use; callers serialize access.
type Set struct {
	index map[string]struct{}
	order []string
}

// NewSet creates a set seeded with ids. Duplicate ids are dropped.
func NewSet(ids ...string) *Set {
	s := &Set{index: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Has reports whether id is in the set.
func (s *Set) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Add inserts id and reports whether it was newly added.
func (s *Set) Add(id string) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
	return true
}

// Len returns the number of IDs in the set.
func (s *Set) Len() int {
	return len(s.order)
}

// IDs returns a copy of the IDs in insertion order.
func (s *Set) IDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
