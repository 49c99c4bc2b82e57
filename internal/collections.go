package internal

// OrderedSet is a set that remembers first-insertion order.
type OrderedSet[T comparable] struct {
	items map[T]struct{}
	order []T
}

// NewOrderedSet creates and returns a new empty OrderedSet.
func NewOrderedSet[T comparable]() *OrderedSet[T] {
	return &OrderedSet[T]{
		items: make(map[T]struct{}),
	}
}

// Add inserts an item and reports whether it was new.
func (s *OrderedSet[T]) Add(item T) bool {
	if _, ok := s.items[item]; ok {
		return false
	}
	s.items[item] = struct{}{}
	s.order = append(s.order, item)
	return true
}

// Contains checks if an item exists in the set.
func (s *OrderedSet[T]) Contains(item T) bool {
	_, exists := s.items[item]
	return exists
}

// Size returns the number of items in the set.
func (s *OrderedSet[T]) Size() int {
	return len(s.order)
}

// ToSlice returns the items in first-insertion order.
func (s *OrderedSet[T]) ToSlice() []T {
	out := make([]T, len(s.order))
	copy(out, s.order)
	return out
}

// First returns the earliest inserted item.
func (s *OrderedSet[T]) First() (T, bool) {
	var zero T
	if len(s.order) == 0 {
		return zero, false
	}
	return s.order[0], true
}

// Every reports whether fn holds for all items. It is true for an empty set.
func (s *OrderedSet[T]) Every(fn func(T) bool) bool {
	for _, item := range s.order {
		if !fn(item) {
			return false
		}
	}
	return true
}
