package catalogue

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ratio returns a 0-100 similarity score between a and b derived from
// normalized Levenshtein distance, the same scale fuzzywuzzy-style
// scorers use (100 == identical, 0 == completely dissimilar).
func ratio(a, b string) float64 {
	if a == "" && b == "" {
		return 100
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return (1.0 - float64(dist)/float64(maxLen)) * 100
}

// weightedRatio mirrors fuzzywuzzy's WRatio: the plain ratio, but boosted
// when one string is a short substring of the other.
func weightedRatio(a, b string) float64 {
	base := ratio(a, b)
	if a == "" || b == "" {
		return base
	}
	shorter, longer := a, b
	if len(a) > len(b) {
		shorter, longer = b, a
	}
	lenRatio := float64(len(longer)) / float64(len(shorter)+1)
	if lenRatio < 1.5 && strings.Contains(longer, shorter) {
		if base < 95 {
			base = 95
		}
	}
	return base
}

// tokenSortRatio sorts the whitespace-split tokens of each string before
// scoring, so word-order differences do not depress the score.
func tokenSortRatio(a, b string) float64 {
	return ratio(sortedTokens(a), sortedTokens(b))
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// weightedScore implements spec §4.2 step 2's composite score:
// 0.60·weighted_ratio + 0.35·token_sort_ratio + 0.05·phonetic_match.
func weightedScore(raw, candidate string) float64 {
	wr := weightedRatio(raw, candidate)
	tsr := tokenSortRatio(raw, candidate)
	phonetic := 0.0
	if PhoneticMatch(raw, candidate) {
		phonetic = 100
	}
	return 0.60*wr + 0.35*tsr + 0.05*phonetic
}
