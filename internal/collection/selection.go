package collection

import "slices"

// Selection is the set of row identifiers chosen for bulk actions. It is
// independent of the page being displayed.
type Selection struct {
	ids map[ID]struct{}
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{ids: make(map[ID]struct{})}
}

// Toggle adds id if absent, otherwise removes it. It returns whether id is
// selected afterwards.
func (s *Selection) Toggle(id ID) bool {
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Clear empties the selection.
func (s *Selection) Clear() {
	clear(s.ids)
}

// IsSelected reports membership.
func (s *Selection) IsSelected(id ID) bool {
	_, ok := s.ids[id]
	return ok
}

// Size returns the number of selected ids.
func (s *Selection) Size() int {
	return len(s.ids)
}

// IDs returns the selected ids in sorted order.
func (s *Selection) IDs() []ID {
	out := make([]ID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Remove drops ids from the selection.
func (s *Selection) Remove(ids ...ID) {
	for _, id := range ids {
		delete(s.ids, id)
	}
}

// Retain drops every id for which keep returns false.
func (s *Selection) Retain(keep func(ID) bool) {
	for id := range s.ids {
		if !keep(id) {
			delete(s.ids, id)
		}
	}
}

func (s *Selection) rename(from, to ID) {
	if _, ok := s.ids[from]; ok {
		delete(s.ids, from)
		s.ids[to] = struct{}{}
	}
}
