// pkg/core/selection.go
package core

import "sort"

// SelectionSet is the unordered set of currently selected object ids.
type SelectionSet struct {
	ids map[string]struct{}
}

// NewSelectionSet creates a selection holding ids.
func NewSelectionSet(ids ...string) *SelectionSet {
	s := &SelectionSet{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Replace makes ids the whole selection.
func (s *SelectionSet) Replace(ids ...string) {
	s.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

// Toggle flips membership of id and leaves every other id alone.
func (s *SelectionSet) Toggle(id string) {
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return
	}
	s.ids[id] = struct{}{}
}

// Remove drops id if present.
func (s *SelectionSet) Remove(id string) {
	delete(s.ids, id)
}

// Has reports whether id is selected.
func (s *SelectionSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of selected ids.
func (s *SelectionSet) Len() int {
	return len(s.ids)
}

// IDs returns the selected ids sorted, so callers iterate deterministically.
func (s *SelectionSet) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
