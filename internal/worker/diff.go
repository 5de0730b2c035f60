package worker

// maxLCSCells bounds the dynamic-programming table for character diffs.
// Beyond it the middle sections are treated as a full replacement.
const maxLCSCells = 4_000_000

// DiffStats reports how many characters a modification added and removed.
// Common prefix and suffix are stripped first, then the middle is compared
// with a longest-common-subsequence table.
func DiffStats(original, modified string) (added, removed int) {
	a, b := []rune(original), []rune(modified)

	// Strip the shared prefix.
	p := 0
	for p < len(a) && p < len(b) && a[p] == b[p] {
		p++
	}
	a, b = a[p:], b[p:]

	// Strip the shared suffix.
	s := 0
	for s < len(a) && s < len(b) && a[len(a)-1-s] == b[len(b)-1-s] {
		s++
	}
	a, b = a[:len(a)-s], b[:len(b)-s]

	if len(a) == 0 || len(b) == 0 || len(a)*len(b) > maxLCSCells {
		return len(b), len(a)
	}

	common := lcsLength(a, b)
	return len(b) - common, len(a) - common
}

// ChangePercent is the share of the original length that churned.
func ChangePercent(added, removed, originalLen int) float64 {
	denom := originalLen
	if denom < 1 {
		denom = 1
	}
	return float64(added+removed) / float64(denom) * 100
}

func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
