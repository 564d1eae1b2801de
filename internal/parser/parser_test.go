package parser

import (
	"reflect"
	"testing"

	"github.com/gbordes77/screen2deck/internal/deck"
)

func spansOf(texts ...string) []deck.OCRSpan {
	spans := make([]deck.OCRSpan, len(texts))
	for i, t := range texts {
		spans[i] = deck.OCRSpan{Text: t, Confidence: 0.9}
	}
	return spans
}

func names(entries []deck.CardEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestParse_SideboardSegmentation_CombinedLine(t *testing.T) {
	spans := spansOf(
		"4 Lightning Bolt",
		"4 Counterspell",
		"2 Teferi, Hero of Dominaria",
		"Sideboard",
		"3 Negate",
	)
	main, side := Parse(spans, Combined)

	wantMain := []deck.CardEntry{
		{Quantity: 4, Name: "Lightning Bolt"},
		{Quantity: 4, Name: "Counterspell"},
		{Quantity: 2, Name: "Teferi, Hero of Dominaria"},
	}
	wantSide := []deck.CardEntry{{Quantity: 3, Name: "Negate"}}

	if !reflect.DeepEqual(main, wantMain) {
		t.Fatalf("main = %+v, want %+v", main, wantMain)
	}
	if !reflect.DeepEqual(side, wantSide) {
		t.Fatalf("side = %+v, want %+v", side, wantSide)
	}
}

func TestParse_SplitLineMTGA(t *testing.T) {
	spans := spansOf("Lightning Bolt", "x4", "Counterspell", "x3")
	main, side := Parse(spans, SplitLine)

	if got := names(main); !reflect.DeepEqual(got, []string{"Lightning Bolt", "Counterspell"}) {
		t.Fatalf("main names = %v", got)
	}
	if main[0].Quantity != 4 || main[1].Quantity != 3 {
		t.Fatalf("main quantities = %+v", main)
	}
	if len(side) != 0 {
		t.Fatalf("expected empty side, got %+v", side)
	}
}

func TestParse_MTGOComplete60Plus15(t *testing.T) {
	var spans []deck.OCRSpan
	for i := 0; i < 20; i++ {
		spans = append(spans, deck.OCRSpan{Text: "Card", Confidence: 0.9})
	}
	spans = append([]deck.OCRSpan{{Text: "MTGO Desktop Client Export", Confidence: 0.9}}, spans...)

	// Build entries summing to 75 main-quantity units via combined lines,
	// one per card name to keep the accounting simple.
	texts := []string{"MTGO Desktop Client Export"}
	total := 0
	for i := 0; i < 20; i++ {
		qty := 3
		if i == 19 {
			qty = 75 - total
		}
		texts = append(texts, itoa(qty)+" Card"+itoa(i))
		total += qty
		if total >= 75 {
			break
		}
	}

	var built []deck.OCRSpan
	for _, tx := range texts {
		built = append(built, deck.OCRSpan{Text: tx, Confidence: 0.9})
	}

	main, side := Parse(built, Combined)

	mainTotal, sideTotal := 0, 0
	for _, e := range main {
		mainTotal += e.Quantity
	}
	for _, e := range side {
		sideTotal += e.Quantity
	}
	if mainTotal != 60 {
		t.Fatalf("main total = %d, want 60", mainTotal)
	}
	if sideTotal != 15 {
		t.Fatalf("side total = %d, want 15", sideTotal)
	}
}

func TestParse_InlineSideboardMarker(t *testing.T) {
	spans := spansOf("4 Bloodtithe Harvester", "SB: 2 Duress")
	main, side := Parse(spans, Combined)

	if len(main) != 1 || main[0].Quantity != 4 || main[0].Name != "Bloodtithe Harvester" {
		t.Fatalf("main = %+v", main)
	}
	if len(side) != 1 || side[0].Quantity != 2 || side[0].Name != "Duress" {
		t.Fatalf("side = %+v", side)
	}
}

func TestParse_UIStringsSkipped(t *testing.T) {
	spans := spansOf("Deck", "4 Lightning Bolt", "Total", "Best Of")
	main, _ := Parse(spans, Combined)
	if len(main) != 1 {
		t.Fatalf("expected 1 entry, got %+v", main)
	}
}

func TestSanitize_CollapsesAndClamps(t *testing.T) {
	got := Sanitize("  Teferi,   Hero\tof\nDominaria!! ")
	want := "Teferi, Hero of Dominaria"
	if got != want {
		t.Fatalf("Sanitize = %q, want %q", got, want)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
