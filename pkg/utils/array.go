package utils

import (
	"golang.org/x/exp/constraints"
)

// Returns the smaller item of a sequence
func Min[T constraints.Ordered](input []T) T {
	min := input[0]

	for _, item := range input {
		if item < min {
			min = item
		}
	}

	return min
}

// Returns the biggest item of a sequence
func Max[T constraints.Ordered](input []T) T {
	max := input[0]

	for _, item := range input {
		if item > max {
			max = item
		}
	}

	return max
}
