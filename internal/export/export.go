// Package export implements the four deck exporters (C10): pure,
// dependency-free functions from a resolved Deck to format text, kept
// tiny and unlayered the way the teacher's own format encoders are.
package export

import (
	"fmt"
	"strings"

	"github.com/gbordes77/screen2deck/internal/deck"
)

// Format identifies one of the four supported export formats (§6).
type Format string

const (
	FormatMTGA       Format = "mtga"
	FormatMoxfield   Format = "moxfield"
	FormatArchidekt  Format = "archidekt"
	FormatTappedOut  Format = "tappedout"
)

// Export renders d in the given format, or an error if the format is
// unrecognized.
func Export(f Format, d deck.Deck) (string, error) {
	switch f {
	case FormatMTGA:
		return MTGA(d), nil
	case FormatMoxfield:
		return Moxfield(d), nil
	case FormatArchidekt:
		return Archidekt(d), nil
	case FormatTappedOut:
		return TappedOut(d), nil
	default:
		return "", fmt.Errorf("export: unknown format %q", f)
	}
}

// MTGA renders the MTG Arena client import format: a "Deck" header, main
// entries as "<qty> <name>", a blank line, a "Sideboard" header, then side
// entries the same way.
func MTGA(d deck.Deck) string {
	var b strings.Builder
	b.WriteString("Deck\n")
	for _, e := range d.Main {
		fmt.Fprintf(&b, "%d %s\n", e.Quantity, e.Name)
	}
	b.WriteString("\nSideboard\n")
	for i, e := range d.Side {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d %s", e.Quantity, e.Name)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Moxfield renders the collection-builder-A format: every entry as
// "<qty> <name>" for main then side, with a "Sideboard:" marker line
// separating the two sections.
func Moxfield(d deck.Deck) string {
	var lines []string
	for _, e := range d.Main {
		lines = append(lines, fmt.Sprintf("%d %s", e.Quantity, e.Name))
	}
	if len(d.Side) > 0 {
		lines = append(lines, "Sideboard:")
		for _, e := range d.Side {
			lines = append(lines, fmt.Sprintf("%d %s", e.Quantity, e.Name))
		}
	}
	return strings.Join(lines, "\n")
}

// Archidekt renders the archidekt-style CSV: header row, then one row per
// entry with a Mainboard/Sideboard category.
func Archidekt(d deck.Deck) string {
	var b strings.Builder
	b.WriteString("Count,Name,Categories\n")
	for i, e := range d.Main {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d,%s,Mainboard", e.Quantity, e.Name)
	}
	for _, e := range d.Side {
		fmt.Fprintf(&b, "\n%d,%s,Sideboard", e.Quantity, e.Name)
	}
	return b.String()
}

// TappedOut renders the tappedout-style format: main entries as
// "<qty>x <name>", a blank line, a "Sideboard" header, then side entries
// the same way.
func TappedOut(d deck.Deck) string {
	var b strings.Builder
	for i, e := range d.Main {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%dx %s", e.Quantity, e.Name)
	}
	if len(d.Side) > 0 {
		b.WriteString("\n\nSideboard\n")
		for i, e := range d.Side {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%dx %s", e.Quantity, e.Name)
		}
	}
	return b.String()
}
