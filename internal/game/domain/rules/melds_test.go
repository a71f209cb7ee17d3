package rules

import (
	"testing"

	"github.com/meldtable/meldtable/internal/game/domain/card"
)

// c resolves a card by its stable id.
func c(id string) card.Card {
	for _, candidate := range card.Deck() {
		if candidate.ID == id {
			return candidate
		}
	}
	panic("unknown card id " + id)
}

// hand builds a hand from card ids.
func hand(ids ...string) []card.Card {
	cards := make([]card.Card, len(ids))
	for i, id := range ids {
		cards[i] = c(id)
	}
	return cards
}

func TestIsSet(t *testing.T) {
	cases := []struct {
		name string
		ids  []string
		want bool
	}{
		{name: "three of a kind", ids: []string{"7C", "7D", "7H"}, want: true},
		{name: "four of a kind", ids: []string{"7C", "7D", "7H", "7S"}, want: true},
		{name: "two cards", ids: []string{"7C", "7D"}, want: false},
		{name: "mixed ranks", ids: []string{"7C", "8D", "7H"}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsSet(hand(tc.ids...)); got != tc.want {
				t.Fatalf("IsSet(%v) = %v, want %v", tc.ids, got, tc.want)
			}
		})
	}
}

func TestIsRun(t *testing.T) {
	cases := []struct {
		name string
		ids  []string
		want bool
	}{
		{name: "ascending", ids: []string{"4S", "5S", "6S"}, want: true},
		{name: "unordered input", ids: []string{"6S", "4S", "5S"}, want: true},
		{name: "ace low", ids: []string{"AS", "2S", "3S"}, want: true},
		{name: "ace high rejected", ids: []string{"QS", "KS", "AS"}, want: false},
		{name: "mixed suits", ids: []string{"4S", "5H", "6S"}, want: false},
		{name: "gap", ids: []string{"4S", "5S", "7S"}, want: false},
		{name: "too short", ids: []string{"4S", "5S"}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRun(hand(tc.ids...)); got != tc.want {
				t.Fatalf("IsRun(%v) = %v, want %v", tc.ids, got, tc.want)
			}
		})
	}
}

func TestCanExtend(t *testing.T) {
	cases := []struct {
		name string
		meld []string
		card string
		want bool
	}{
		{name: "fourth suit on set", meld: []string{"7C", "7D", "7H"}, card: "7S", want: true},
		{name: "full set", meld: []string{"7C", "7D", "7H", "7S"}, card: "7S", want: false},
		{name: "run low end", meld: []string{"4S", "5S", "6S"}, card: "3S", want: true},
		{name: "run high end", meld: []string{"4S", "5S", "6S"}, card: "7S", want: true},
		{name: "run wrong suit", meld: []string{"4S", "5S", "6S"}, card: "7H", want: false},
		{name: "run non-adjacent", meld: []string{"4S", "5S", "6S"}, card: "8S", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanExtend(hand(tc.meld...), c(tc.card)); got != tc.want {
				t.Fatalf("CanExtend(%v, %s) = %v, want %v", tc.meld, tc.card, got, tc.want)
			}
		})
	}
}

func TestBestSplitFullyMelded(t *testing.T) {
	melds, deadwood, points := BestSplit(hand("AS", "2S", "3S", "4S", "5H", "5D", "5C", "9C", "9D", "9H"))
	if points != 0 {
		t.Fatalf("points = %d, want 0", points)
	}
	if len(deadwood) != 0 {
		t.Fatalf("deadwood = %v, want none", deadwood)
	}
	if len(melds) != 3 {
		t.Fatalf("melds = %d, want 3", len(melds))
	}
}

func TestBestSplitPrefersLowerDeadwood(t *testing.T) {
	// 7H must go to the heart run and the other three sevens to the set;
	// keeping all four sevens together strands the run fragments.
	_, _, points := BestSplit(hand("7H", "7C", "7D", "7S", "5H", "6H", "8H", "9H", "KS", "2C"))
	if want := 10 + 2; points != want {
		t.Fatalf("points = %d, want %d", points, want)
	}
}

func TestBestSplitNoMelds(t *testing.T) {
	cards := hand("KS", "QD", "JC", "TD", "8H", "7C", "6D", "4D", "3H", "2C")
	melds, deadwood, points := BestSplit(cards)
	if len(melds) != 0 {
		t.Fatalf("melds = %v, want none", melds)
	}
	if len(deadwood) != len(cards) {
		t.Fatalf("deadwood cards = %d, want %d", len(deadwood), len(cards))
	}
	if want := 70; points != want {
		t.Fatalf("points = %d, want %d", points, want)
	}
}

func TestBestSplitDeterministic(t *testing.T) {
	cards := hand("7H", "7C", "7D", "7S", "5H", "6H", "8H", "9H", "KS", "2C")
	first, _, firstPoints := BestSplit(cards)
	for i := 0; i < 5; i++ {
		melds, _, points := BestSplit(cards)
		if points != firstPoints {
			t.Fatalf("run %d: points = %d, want %d", i, points, firstPoints)
		}
		if len(melds) != len(first) {
			t.Fatalf("run %d: meld count = %d, want %d", i, len(melds), len(first))
		}
		for m := range melds {
			for j := range melds[m] {
				if melds[m][j].ID != first[m][j].ID {
					t.Fatalf("run %d: meld %d differs: %v vs %v", i, m, melds[m], first[m])
				}
			}
		}
	}
}

func TestValidateDeclaredMelds(t *testing.T) {
	tenCards := hand("AS", "2S", "3S", "4H", "4D", "4C", "KS", "QD", "JC", "2C")

	melds, leftover, ok := validateDeclaredMelds(tenCards, [][]string{
		{"AS", "2S", "3S"},
		{"4H", "4D", "4C"},
	})
	if !ok {
		t.Fatal("expected valid declaration")
	}
	if len(melds) != 2 {
		t.Fatalf("melds = %d, want 2", len(melds))
	}
	if len(leftover) != 4 {
		t.Fatalf("leftover = %d, want 4", len(leftover))
	}

	if _, _, ok := validateDeclaredMelds(tenCards, [][]string{{"AS", "2S", "4H"}}); ok {
		t.Fatal("expected invalid meld to be rejected")
	}
	if _, _, ok := validateDeclaredMelds(tenCards, [][]string{{"AS", "2S", "3S"}, {"3S", "4H", "4D"}}); ok {
		t.Fatal("expected reused card to be rejected")
	}
	if _, _, ok := validateDeclaredMelds(tenCards, [][]string{{"9H", "9D", "9C"}}); ok {
		t.Fatal("expected cards outside the hand to be rejected")
	}
}
