package document

import "reflect"

// Set is an unordered collection of unique field values. Element order is
// whatever the producer emitted and carries no meaning.
type Set []any

// NewSet builds a Set from vs, dropping duplicates.
func NewSet(vs ...any) Set {
	s := make(Set, 0, len(vs))
	for _, v := range vs {
		s = s.Add(v)
	}
	return s
}

// Add returns s with v appended unless an equal element is already present.
func (s Set) Add(v any) Set {
	if s.Contains(v) {
		return s
	}
	return append(s, v)
}

// Contains reports whether an element equal to v is in s.
func (s Set) Contains(v any) bool {
	for _, e := range s {
		if equalValue(e, v) {
			return true
		}
	}
	return false
}

// Len returns the number of elements.
func (s Set) Len() int { return len(s) }

func equalValue(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta != nil && ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
