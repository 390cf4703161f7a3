// Package state holds UI-only state: the room list selection cursor and the
// fuzzy matcher used by the jump prompt.
package state

import (
	"sync"

	liststate "github.com/atomicstack/multiverse/internal/state"
)

// Selection is a cursor over a shared list. The cursor is either unset or an
// index into the list; movement wraps around at both ends.
type Selection[T any] struct {
	mu       sync.Mutex
	list     *liststate.List[T]
	selected int
	valid    bool
	offset   int
}

// NewSelection returns a selection over list with no item selected.
func NewSelection[T any](list *liststate.List[T]) *Selection[T] {
	return &Selection[T]{list: list}
}

// List returns the underlying list.
func (s *Selection[T]) List() *liststate.List[T] {
	return s.list
}

// Next moves to the following item, wrapping to the first after the last.
// With no prior selection the first item is chosen. It returns the new index
// and whether it differs from the previous one. An empty list clears the
// selection.
func (s *Selection[T]) Next() (int, bool) {
	return s.move(func(cur, n int) int {
		if cur >= n-1 {
			return 0
		}
		return cur + 1
	})
}

// Previous moves to the preceding item, wrapping to the last before the
// first. With no prior selection the first item is chosen.
func (s *Selection[T]) Previous() (int, bool) {
	return s.move(func(cur, n int) int {
		if cur == 0 {
			return n - 1
		}
		return cur - 1
	})
}

func (s *Selection[T]) move(step func(cur, n int) int) (int, bool) {
	n := s.list.Len()
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == 0 {
		s.valid = false
		return -1, false
	}
	next := 0
	if s.valid {
		cur := s.selected
		if cur >= n {
			cur = n - 1
		}
		next = step(cur, n)
	}
	changed := !s.valid || next != s.selected
	s.selected = next
	s.valid = true
	return next, changed
}

// Select sets the cursor to i. An index outside the list clears the
// selection. It reports whether the selection changed.
func (s *Selection[T]) Select(i int) bool {
	n := s.list.Len()
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= n {
		changed := s.valid
		s.valid = false
		return changed
	}
	changed := !s.valid || s.selected != i
	s.selected = i
	s.valid = true
	return changed
}

// Clear unsets the cursor.
func (s *Selection[T]) Clear() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

// Selected returns the selected index, clamped to the list's current length.
// A list that became empty clears the selection.
func (s *Selection[T]) Selected() (int, bool) {
	n := s.list.Len()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid {
		return -1, false
	}
	if n == 0 {
		s.valid = false
		return -1, false
	}
	if s.selected >= n {
		s.selected = n - 1
	}
	return s.selected, true
}

// SelectedItem returns the selected value.
func (s *Selection[T]) SelectedItem() (T, int, bool) {
	i, ok := s.Selected()
	if !ok {
		var zero T
		return zero, -1, false
	}
	v, ok := s.list.At(i)
	return v, i, ok
}

// Viewport returns the first visible row so the selection stays inside a
// window of maxVisible rows over total items.
func (s *Selection[T]) Viewport(total, maxVisible int) int {
	cursor, ok := s.Selected()
	s.mu.Lock()
	defer s.mu.Unlock()
	if total == 0 || maxVisible <= 0 {
		s.offset = 0
		return 0
	}
	if !ok {
		cursor = 0
	}
	maxOffset := total - maxVisible
	if maxOffset < 0 {
		maxOffset = 0
	}
	if s.offset > maxOffset {
		s.offset = maxOffset
	}
	if s.offset < 0 {
		s.offset = 0
	}
	if cursor < s.offset {
		s.offset = cursor
	}
	if upper := s.offset + maxVisible - 1; cursor > upper {
		s.offset = cursor - maxVisible + 1
		if s.offset > maxOffset {
			s.offset = maxOffset
		}
	}
	return s.offset
}
