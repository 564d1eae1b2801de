package catalogue

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// metaphoneCache memoizes metaphoneHead results in a bounded LRU.
var metaphoneCache, _ = lru.New[string, string](4096)

func cachedMetaphoneHead(s string) string {
	if v, ok := metaphoneCache.Get(s); ok {
		return v
	}
	h := metaphoneHead(s)
	metaphoneCache.Add(s, h)
	return h
}

// metaphoneHead returns a short phonetic head code for s, used only as the
// "do these strings start with the same sound" signal in the weighted
// fuzzy score — not a full double-metaphone implementation, but enough to
// distinguish e.g. "Teferi" from "Jeskai" the way the scorer needs.
func metaphoneHead(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	i := 0
	for i < len(s) && b.Len() < 4 {
		c := s[i]
		switch {
		case c == ' ':
			i++
			continue
		case c == 'P' && i+1 < len(s) && s[i+1] == 'H':
			b.WriteByte('F')
			i += 2
		case c == 'C' && i+1 < len(s) && (s[i+1] == 'H' || s[i+1] == 'K'):
			b.WriteByte('K')
			i += 2
		case c == 'C' && i+1 < len(s) && (s[i+1] == 'I' || s[i+1] == 'E' || s[i+1] == 'Y'):
			b.WriteByte('S')
			i++
		case c == 'K' || c == 'Q':
			b.WriteByte('K')
			i++
		case c == 'A' || c == 'E' || c == 'I' || c == 'O' || c == 'U':
			if b.Len() == 0 {
				b.WriteByte(c)
			}
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

// PhoneticMatch returns true if a and b share a non-empty metaphone head.
func PhoneticMatch(a, b string) bool {
	ha, hb := cachedMetaphoneHead(a), cachedMetaphoneHead(b)
	return ha != "" && ha == hb
}
