package rules

import (
	"testing"

	"github.com/gbordes77/screen2deck/internal/deck"
)

func TestRepairLandsMiscount_FixesPair(t *testing.T) {
	d := &deck.Deck{Main: []deck.NormalizedCard{
		{Name: "Island", Quantity: 59},
		{Name: "Forest", Quantity: 1},
		{Name: "Opt", Quantity: 4},
		{Name: "Counterspell", Quantity: 4},
	}}

	changed := RepairLandsMiscount(d)
	if !changed {
		t.Fatal("expected changed=true")
	}
	if d.Main[0].Quantity != 20 || d.Main[1].Quantity != 4 {
		t.Fatalf("unexpected quantities after repair: %+v", d.Main)
	}
	if d.Main[2].Quantity != 4 || d.Main[3].Quantity != 4 {
		t.Fatalf("non-land entries must be untouched: %+v", d.Main)
	}
}

func TestRepairLandsMiscount_Idempotent(t *testing.T) {
	d := &deck.Deck{Main: []deck.NormalizedCard{
		{Name: "Island", Quantity: 59},
		{Name: "Forest", Quantity: 1},
	}}
	RepairLandsMiscount(d)
	changedAgain := RepairLandsMiscount(d)
	if changedAgain {
		t.Fatal("second application must be a no-op")
	}
}

func TestRepairLandsMiscount_NoOpWhenAlready60(t *testing.T) {
	d := &deck.Deck{Main: []deck.NormalizedCard{
		{Name: "Island", Quantity: 20},
		{Name: "Forest", Quantity: 4},
		{Name: "Opt", Quantity: 36},
	}}
	if RepairLandsMiscount(d) {
		t.Fatal("expected no-op when main already totals 60")
	}
}

func TestValidateAndFill_EmptyMainFails(t *testing.T) {
	d := &deck.Deck{}
	if err := ValidateAndFill(d); err == nil {
		t.Fatal("expected error for empty main")
	}
}

func TestValidateAndFill_NonEmptyPasses(t *testing.T) {
	d := &deck.Deck{Main: []deck.NormalizedCard{{Name: "Bolt", Quantity: 4}}}
	if err := ValidateAndFill(d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
