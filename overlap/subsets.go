package overlap

import "iter"

// Subsets enumerates all non-empty subsets of {0..n-1}, largest first.
// Subsets of equal size come in lexicographic order. Every yielded slice is
// ascending and freshly allocated.
func Subsets(n int) iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		for size := n; size > 0; size-- {
			for combination := range Combinations(n, size) {
				if !yield(combination) {
					return
				}
			}
		}
	}
}

// Combinations enumerates the k-element subsets of {0..n-1} in lexicographic order.
func Combinations(n, k int) iter.Seq[[]int] {
	return func(yield func([]int) bool) {
		if k <= 0 || k > n {
			return
		}
		idx := make([]int, k)
		for i := range idx {
			idx[i] = i
		}
		for {
			if !yield(append([]int(nil), idx...)) {
				return
			}
			// find the rightmost index that can still be incremented
			i := k - 1
			for i >= 0 && idx[i] == n-k+i {
				i--
			}
			if i < 0 {
				return
			}
			idx[i]++
			for j := i + 1; j < k; j++ {
				idx[j] = idx[j-1] + 1
			}
		}
	}
}
