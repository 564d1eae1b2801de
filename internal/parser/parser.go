// Package parser implements the deck parser (C7): turns an ordered OCR
// span sequence into structured main/side entries with quantity parsing,
// grounded on the span-handling style of the original pipeline's OCR
// post-processing and spec scenarios 2-4.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/gbordes77/screen2deck/internal/deck"
)

// Mode selects which line-parsing strategy to apply.
type Mode int

const (
	// Combined is the typical mode: quantity and name share one line.
	Combined Mode = iota
	// SplitLine is used for client outputs where the quantity trails the
	// name on the following line as "x<digits>".
	SplitLine
)

var sideboardMarkers = map[string]bool{
	"sideboard": true, "side board": true, "sb": true,
	"side": true, "reserve": true,
}

// uiReject is the static reject-list of known UI strings that must never
// be parsed as card entries, per the open question in spec §9: the
// trailing-digits heuristic is a conservative last resort, not a guesser.
var uiReject = map[string]bool{
	"cards": true, "deck": true, "total": true, "best of": true, "done": true,
}

var (
	reLeadingQty  = regexp.MustCompile(`^(\d+)\s+(.+)$`)
	reTrailingX   = regexp.MustCompile(`^(.+?)\s+x\s*(\d+)$`)
	reLeadingNx   = regexp.MustCompile(`^(\d+)x\s+(.+)$`)
	reTrailingQty = regexp.MustCompile(`^(.+?)\s+(\d+)$`)
	reStandaloneX = regexp.MustCompile(`^x(\d+)$`)
	rePureNumeric = regexp.MustCompile(`^[\d\s.,:x-]+$`)
	reControl     = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	reAllowedName = regexp.MustCompile(`[^\p{L}\p{N} ,'\-/]`)
	reMultiSpace  = regexp.MustCompile(`\s+`)
)

// IsMTGOHeader inspects the head of the span sequence for a marker
// indicating an MTGO/desktop-client source, used to select MTGO-complete
// redistribution after parsing.
func IsMTGOHeader(spans []deck.OCRSpan) bool {
	for i, s := range spans {
		if i >= 3 {
			break
		}
		lower := strings.ToLower(strings.TrimSpace(s.Text))
		if strings.Contains(lower, "mtgo") || strings.Contains(lower, "magic online") {
			return true
		}
	}
	return false
}

// Parse runs the combined-line or split-line parser over spans and
// returns the raw main/side entries before catalogue resolution.
func Parse(spans []deck.OCRSpan, mode Mode) (main, side []deck.CardEntry) {
	mtgoComplete := IsMTGOHeader(spans)

	inSide := false
	var pendingName string
	havePending := false

	emit := func(qty int, name string) {
		name = Sanitize(name)
		if name == "" || qty <= 0 {
			return
		}
		entry := deck.CardEntry{Quantity: qty, Name: name}
		if inSide {
			side = append(side, entry)
		} else {
			main = append(main, entry)
		}
	}

	for _, s := range spans {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		lower := strings.ToLower(text)

		if !mtgoComplete {
			if marker, rest, ok := splitInlineSideboardMarker(text, lower); ok {
				inSide = true
				havePending = false
				if qty, name, parsed := parseCombinedLine(strings.TrimSpace(rest)); parsed {
					emit(qty, name)
				}
				_ = marker
				continue
			}
			if isSideboardMarker(lower) {
				inSide = true
				havePending = false
				continue
			}
		}
		if isUIString(lower) && !(mode == SplitLine && havePending && reStandaloneX.MatchString(text)) {
			continue
		}

		switch mode {
		case SplitLine:
			if m := reStandaloneX.FindStringSubmatch(text); m != nil && havePending {
				qty, _ := strconv.Atoi(m[1])
				emit(qty, pendingName)
				havePending = false
				continue
			}
			if looksLikeName(text) {
				if havePending {
					emit(1, pendingName)
				}
				pendingName = text
				havePending = true
				continue
			}
			// Neither a pending quantity nor a name line: drop silently.
		default:
			if qty, name, ok := parseCombinedLine(text); ok {
				emit(qty, name)
			}
		}
	}
	if mode == SplitLine && havePending {
		emit(1, pendingName)
	}

	if mtgoComplete && len(side) == 0 {
		main, side = redistributeMTGOComplete(main)
	}

	return main, side
}

// parseCombinedLine tries the four combined-line patterns of spec §4.7 in
// order and returns the first conclusive match.
func parseCombinedLine(text string) (qty int, name string, ok bool) {
	if m := reLeadingQty.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, m[2], true
		}
	}
	if m := reTrailingX.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[2]); err == nil {
			return n, m[1], true
		}
	}
	if m := reLeadingNx.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, m[2], true
		}
	}
	if m := reTrailingQty.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[2])
		if err == nil && n <= 20 && nonDigitRuneCount(m[1]) >= 3 {
			return n, m[1], true
		}
	}
	return 0, "", false
}

// nonDigitRuneCount counts runes in s that are not ASCII digits, gating
// the trailing-digits pattern per the open question in spec §9.
func nonDigitRuneCount(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			n++
		}
	}
	return n
}

// splitInlineSideboardMarker reports whether text begins with a sideboard
// marker followed by a colon and trailing content on the same line, e.g.
// "SB: 2 Duress" (spec §8 scenario: SB: as a combined sideboard-and-
// quantity marker).
func splitInlineSideboardMarker(text, lower string) (marker, rest string, ok bool) {
	for m := range sideboardMarkers {
		prefix := m + ":"
		if strings.HasPrefix(lower, prefix) && len(text) > len(prefix) {
			return m, text[len(prefix):], true
		}
	}
	return "", "", false
}

func isSideboardMarker(lower string) bool {
	return sideboardMarkers[lower] || sideboardMarkers[strings.TrimSuffix(lower, ":")]
}

func isUIString(lower string) bool {
	if uiReject[lower] {
		return true
	}
	if rePureNumeric.MatchString(lower) {
		return true
	}
	return false
}

// looksLikeName reports whether text is plausibly a card name line in
// split-line mode: contains a letter, does not start with a digit, and
// starts with an uppercase letter.
func looksLikeName(text string) bool {
	r := []rune(text)
	if len(r) == 0 {
		return false
	}
	if unicode.IsDigit(r[0]) {
		return false
	}
	if !unicode.IsUpper(r[0]) {
		return false
	}
	hasLetter := false
	for _, c := range r {
		if unicode.IsLetter(c) {
			hasLetter = true
			break
		}
	}
	return hasLetter
}

// redistributeMTGOComplete implements the MTGO-complete 60+15 split: the
// first 60 cumulative main-quantity units stay in main, the remainder
// moves to side, splitting the straddling entry across both.
func redistributeMTGOComplete(entries []deck.CardEntry) (main, side []deck.CardEntry) {
	running := 0
	for _, e := range entries {
		if running >= 60 {
			side = append(side, e)
			continue
		}
		if running+e.Quantity <= 60 {
			main = append(main, e)
			running += e.Quantity
			continue
		}
		// Straddling entry: split across sections.
		inMain := 60 - running
		remainder := e.Quantity - inMain
		main = append(main, deck.CardEntry{Quantity: inMain, Name: e.Name})
		if remainder > 0 {
			side = append(side, deck.CardEntry{Quantity: remainder, Name: e.Name})
		}
		running = 60
	}
	return main, side
}

// Sanitize collapses internal whitespace, strips control characters, and
// restricts characters to letters, digits, spaces, and ,'-/, clamping the
// result to 200 characters.
func Sanitize(name string) string {
	name = reMultiSpace.ReplaceAllString(name, " ")
	name = reControl.ReplaceAllString(name, "")
	name = reAllowedName.ReplaceAllString(name, "")
	name = reMultiSpace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > 200 {
		name = string(r[:200])
	}
	return name
}
