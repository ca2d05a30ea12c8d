package resolver

import "strings"

// JaroWinkler returns the Jaro-Winkler similarity of two strings in
// [0, 1], boosting pairs that share a common prefix.
func JaroWinkler(a, b string) float64 {
	j := jaro(a, b)
	if j == 0 {
		return 0
	}

	prefix := 0
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	if max > 4 {
		max = 4
	}
	for i := 0; i < max; i++ {
		if a[i] != b[i] {
			break
		}
		prefix++
	}
	return j + float64(prefix)*0.1*(1-j)
}

func jaro(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}

	window := la
	if lb > window {
		window = lb
	}
	window = window/2 - 1
	if window < 0 {
		window = 0
	}

	aMatched := make([]bool, la)
	bMatched := make([]bool, lb)
	matches := 0
	for i := 0; i < la; i++ {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window + 1
		if hi > lb {
			hi = lb
		}
		for k := lo; k < hi; k++ {
			if bMatched[k] || a[i] != b[k] {
				continue
			}
			aMatched[i] = true
			bMatched[k] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := 0; i < la; i++ {
		if !aMatched[i] {
			continue
		}
		for !bMatched[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions)/2)/m) / 3
}

// nameSimilarity scores two normalized names, taking the better of
// the character-level and token-set comparisons so reordered club
// names still match.
func nameSimilarity(a, b string) float64 {
	jw := JaroWinkler(a, b)
	if ts := TokenSetRatio(a, b); ts > jw {
		return ts
	}
	return jw
}

// TokenSetRatio compares the sorted unique tokens of both strings,
// useful when word order differs ("wanderers wolverhampton").
func TokenSetRatio(a, b string) float64 {
	ta := uniqueSorted(strings.Fields(a))
	tb := uniqueSorted(strings.Fields(b))
	return JaroWinkler(strings.Join(ta, " "), strings.Join(tb, " "))
}

func uniqueSorted(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	// insertion sort, token lists are tiny
	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && out[k] < out[k-1]; k-- {
			out[k], out[k-1] = out[k-1], out[k]
		}
	}
	return out
}
