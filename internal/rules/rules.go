// Package rules implements the business-rule repair stage (C9): pure,
// deterministic, idempotent functions over a resolved deck.
package rules

import (
	"strings"

	"github.com/gbordes77/screen2deck/internal/deck"
	"github.com/gbordes77/screen2deck/internal/errs"
)

var basicLandNames = map[string]bool{
	"plains":   true,
	"island":   true,
	"swamp":    true,
	"mountain": true,
	"forest":   true,
	"wastes":   true,
}

// RepairLandsMiscount detects and fixes the MTGO "59+1" OCR misread: a
// basic land quantity of 59 paired with another basic land at quantity 1,
// when the main section does not already total 60. Rewrites both entries
// to (20, 4). Idempotent: a deck already repaired has no 59/1 pair left to
// find, so a second call is a no-op.
func RepairLandsMiscount(d *deck.Deck) (changed bool) {
	if d.MainTotal() == 60 {
		return false
	}

	idx59, idx1 := -1, -1
	for i, e := range d.Main {
		if !basicLandNames[strings.ToLower(e.Name)] {
			continue
		}
		switch e.Quantity {
		case 59:
			if idx59 == -1 {
				idx59 = i
			}
		case 1:
			if idx1 == -1 {
				idx1 = i
			}
		}
	}

	if idx59 == -1 || idx1 == -1 || idx59 == idx1 {
		return false
	}

	d.Main[idx59].Quantity = 20
	d.Main[idx1].Quantity = 4
	return true
}

// ValidateAndFill checks structural validity of a resolved deck. An empty
// main section after resolve is a validation failure; the pipeline must
// mark the job failed rather than store an unusable result. Otherwise the
// deck passes through unchanged — a placeholder hook for future repairs.
func ValidateAndFill(d *deck.Deck) error {
	if len(d.Main) == 0 {
		return errs.New(errs.Validation, "main deck is empty after resolution")
	}
	return nil
}
