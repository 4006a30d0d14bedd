package mapslicehelp

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

func LastElement[T any](elements []T) *T {
	length := len(elements)
	if length > 0 {
		return &elements[length-1]
	}
	return nil
}

// OrderedMapValues returns the values in insertion order.
func OrderedMapValues[K comparable, V any](m *orderedmap.OrderedMap[K, V]) []V {
	l := make([]V, m.Len())
	i := 0
	for p := m.Oldest(); p != nil; p = p.Next() {
		l[i] = p.Value
		i++
	}
	return l
}

// PickByIndex returns the elements at the given indexes, in the order of the indexes.
func PickByIndex[T any](elements []T, indexes []int) []T {
	picked := make([]T, len(indexes))
	for i, idx := range indexes {
		picked[i] = elements[idx]
	}
	return picked
}
