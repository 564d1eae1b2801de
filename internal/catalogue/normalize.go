package catalogue

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// diacriticsStripper strips combining marks after NFD decomposition, the
// idiomatic x/text equivalent of a manual diacritics table.
var diacriticsStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases a card name, strips diacritics, and collapses
// non-alphanumeric runs to single spaces. Idempotent: Normalize(Normalize(s))
// == Normalize(s).
func Normalize(name string) string {
	stripped, _, err := transform.String(diacriticsStripper, name)
	if err != nil {
		stripped = name
	}
	lower := strings.ToLower(stripped)

	var b strings.Builder
	lastWasSpace := false
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastWasSpace = false
			continue
		}
		if !lastWasSpace {
			b.WriteByte(' ')
			lastWasSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
