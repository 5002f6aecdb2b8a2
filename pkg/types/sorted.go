package types

import (
	"cmp"
	"slices"
)

// InsertSorted inserts v into the ascending, duplicate-free slice s.
// The second result is false when v was already present.
func InsertSorted[T cmp.Ordered](s []T, v T) ([]T, bool) {
	i, found := slices.BinarySearch(s, v)
	if found {
		return s, false
	}
	return slices.Insert(s, i, v), true
}

// RemoveSorted removes v from the ascending slice s.
// The second result is false when v was not present.
func RemoveSorted[T cmp.Ordered](s []T, v T) ([]T, bool) {
	i, found := slices.BinarySearch(s, v)
	if !found {
		return s, false
	}
	return slices.Delete(s, i, i+1), true
}

// ContainsSorted reports whether v is in the ascending slice s
func ContainsSorted[T cmp.Ordered](s []T, v T) bool {
	_, found := slices.BinarySearch(s, v)
	return found
}
