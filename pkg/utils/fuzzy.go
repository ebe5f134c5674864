package utils

import "strings"

// SimilarityRatio computes a difflib-style similarity in [0, 1]:
// 2*M/T where M is the total length of matching blocks and T the combined
// length of both strings. Comparison is case-insensitive.
func SimilarityRatio(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	matched := matchingBlocks(a, b)
	return 2 * float64(matched) / float64(len(a)+len(b))
}

// matchingBlocks sums the lengths of recursively-found longest common
// substrings, mirroring SequenceMatcher.get_matching_blocks.
func matchingBlocks(a, b string) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingBlocks(a[:ai], b[:bi])
	total += matchingBlocks(a[ai+size:], b[bi+size:])
	return total
}

func longestMatch(a, b string) (int, int, int) {
	bestA, bestB, bestSize := 0, 0, 0

	// lengths[j] holds the length of the match ending at a[i-1], b[j-1]
	lengths := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			cur := lengths[j]
			if a[i-1] == b[j-1] {
				lengths[j] = prev + 1
				if lengths[j] > bestSize {
					bestSize = lengths[j]
					bestA = i - bestSize
					bestB = j - bestSize
				}
			} else {
				lengths[j] = 0
			}
			prev = cur
		}
	}

	return bestA, bestB, bestSize
}
