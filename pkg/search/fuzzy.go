// Package search implements fuzzy name matching and graph-aware recall
// over the entity store. Scoring is a fixed ladder of strategies, tried
// in order: initials, exact, substring, word overlap, word prefix, then
// Levenshtein as the last resort, scaled down so edit-distance guesses
// never outrank literal matches.
package search

import (
	"strings"
	"unicode"
)

// levenshteinThreshold is the minimum normalized similarity before an
// edit-distance match counts at all.
const levenshteinThreshold = 0.6

// Score rates how well query matches target, 0.0 to 1.0.
func Score(query, target string) float64 {
	qOrig := strings.TrimSpace(query)
	q := strings.ToLower(qOrig)
	t := strings.ToLower(strings.TrimSpace(target))

	// Initials ("PS" matches "Peter Steinberger"); checked on the
	// original casing so lowercase queries stay out of this branch.
	if len(qOrig) <= 5 && qOrig == strings.ToUpper(qOrig) && isAlpha(qOrig) {
		var initials strings.Builder
		for _, w := range strings.Fields(target) {
			initials.WriteRune(unicode.ToUpper([]rune(w)[0]))
		}
		if qOrig == initials.String() {
			return 0.75
		}
	}

	if q == t {
		return 1.0
	}
	if strings.Contains(t, q) {
		return 0.9
	}
	if strings.Contains(q, t) {
		return 0.85
	}

	qWords := strings.Fields(q)
	tWords := strings.Fields(t)

	if len(qWords) > 0 && len(tWords) > 0 {
		common := 0
		tSet := make(map[string]bool, len(tWords))
		for _, w := range tWords {
			tSet[w] = true
		}
		for _, w := range uniqueWords(qWords) {
			if tSet[w] {
				common++
			}
		}
		if common > 0 {
			denom := max(len(uniqueWords(qWords)), len(uniqueWords(tWords)))
			return 0.7 + 0.2*(float64(common)/float64(denom))
		}

		// "stein" matches "steinberger"
		for _, qw := range qWords {
			for _, tw := range tWords {
				if len(qw) >= 3 && strings.HasPrefix(tw, qw) {
					return 0.7
				}
				if len(tw) >= 3 && strings.HasPrefix(qw, tw) {
					return 0.65
				}
			}
		}
	}

	if maxLen := max(len(q), len(t)); maxLen > 0 {
		sim := 1.0 - float64(levenshtein(q, t))/float64(maxLen)
		if sim >= levenshteinThreshold {
			return sim * 0.6
		}
	}

	// Per-word edit distance catches typos inside multi-word names.
	best := 0.0
	for _, qw := range qWords {
		for _, tw := range tWords {
			if len(qw) < 3 || len(tw) < 3 {
				continue
			}
			sim := 1.0 - float64(levenshtein(qw, tw))/float64(max(len(qw), len(tw)))
			if sim > best {
				best = sim
			}
		}
	}
	if best >= levenshteinThreshold {
		return best * 0.5
	}

	return 0.0
}

// levenshtein computes edit distance with a two-row table.
func levenshtein(s1, s2 string) int {
	a, b := []rune(s1), []rune(s2)
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, c1 := range a {
		curr[0] = i + 1
		for j, c2 := range b {
			cost := 1
			if c1 == c2 {
				cost = 0
			}
			curr[j+1] = min(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func uniqueWords(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := words[:0:0]
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}
