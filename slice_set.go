package radish

import (
	"golang.org/x/exp/slices"
)

// sliceSet keeps items in insertion order.
// Not safe for concurrent use; the manager only touches it from the tick thread.
type sliceSet[T comparable] struct {
	items []T
	temp  []T
}

func newSliceSet[T comparable]() *sliceSet[T] {
	return new(sliceSet[T])
}

func (slice *sliceSet[T]) Add(x T) bool {
	if slices.Index(slice.items, x) >= 0 {
		return false
	}
	slice.items = append(slice.items, x)
	return true
}

func (slice *sliceSet[T]) Remove(x T) bool {
	index := slices.Index(slice.items, x)
	if index < 0 {
		return false
	}
	slice.items = slices.Delete(slice.items, index, index+1)
	return true
}

func (slice *sliceSet[T]) Contains(x T) bool {
	return slices.Index(slice.items, x) >= 0
}

func (slice *sliceSet[T]) Len() int {
	return len(slice.items)
}

func (slice *sliceSet[T]) Clear() {
	var zero T
	for i := range slice.items {
		slice.items[i] = zero
	}
	slice.items = slice.items[:0]
}

// Each calls fn on a snapshot of the items, so fn may add or
// remove items. Items removed during the walk are skipped.
func (slice *sliceSet[T]) Each(fn func(x T)) {
	if len(slice.items) == 0 {
		return
	}
	snapshot := append(slice.temp[:0], slice.items...)
	slice.temp = nil
	for _, x := range snapshot {
		if slices.Index(slice.items, x) < 0 {
			continue
		}
		fn(x)
	}
	var zero T
	for i := range snapshot {
		snapshot[i] = zero
	}
	slice.temp = snapshot[:0]
}

// Filter returns the items for which keep returns true.
func (slice *sliceSet[T]) Filter(keep func(x T) bool) []T {
	var result []T
	for _, x := range slice.items {
		if keep(x) {
			result = append(result, x)
		}
	}
	return result
}
