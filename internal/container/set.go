package set

// Set is a map as a set data structure.
type Set[T comparable] map[T]struct{}

// Add adds elem to the Set and reports whether it was absent.
func (s Set[T]) Add(elem T) bool {
	if _, ok := s[elem]; ok {
		return false
	}
	s[elem] = struct{}{}
	return true
}

// Contains checks if element exists in the Set.
func (s Set[T]) Contains(elem T) bool {
	_, ok := s[elem]
	return ok
}

// New creates a Set holding elems.
func New[T comparable](elems ...T) Set[T] {
	s := make(Set[T], len(elems))
	for _, e := range elems {
		s[e] = struct{}{}
	}
	return s
}
