package rules

import (
	"sort"

	"github.com/meldtable/meldtable/internal/game/domain/card"
)

// IsSet reports whether cards form a valid set: three or four cards of the
// same rank with distinct suits.
func IsSet(cards []card.Card) bool {
	if len(cards) < 3 || len(cards) > 4 {
		return false
	}
	rank := cards[0].Rank
	suits := make(map[card.Suit]bool, len(cards))
	for _, c := range cards {
		if c.Rank != rank || suits[c.Suit] {
			return false
		}
		suits[c.Suit] = true
	}
	return true
}

// IsRun reports whether cards form a valid run: three or more consecutive
// ranks in one suit. Order of the input does not matter; aces are low.
func IsRun(cards []card.Card) bool {
	if len(cards) < 3 {
		return false
	}
	suit := cards[0].Suit
	ranks := make([]int, 0, len(cards))
	for _, c := range cards {
		if c.Suit != suit {
			return false
		}
		ranks = append(ranks, int(c.Rank))
	}
	sort.Ints(ranks)
	for i := 1; i < len(ranks); i++ {
		if ranks[i] != ranks[i-1]+1 {
			return false
		}
	}
	return true
}

// IsMeld reports whether cards form a valid set or run.
func IsMeld(cards []card.Card) bool {
	return IsSet(cards) || IsRun(cards)
}

// Deadwood sums the point values of the given cards.
func Deadwood(cards []card.Card) int {
	total := 0
	for _, c := range cards {
		total += c.Value()
	}
	return total
}

// CanExtend reports whether c legally extends an existing meld: the fourth
// suit for a set, or an adjacent rank at either end of a run.
func CanExtend(meld []card.Card, c card.Card) bool {
	if len(meld) == 0 {
		return false
	}
	if IsSet(meld) {
		if len(meld) >= 4 || c.Rank != meld[0].Rank {
			return false
		}
		for _, m := range meld {
			if m.Suit == c.Suit {
				return false
			}
		}
		return true
	}
	// Run extension
	if c.Suit != meld[0].Suit {
		return false
	}
	low, high := int(meld[0].Rank), int(meld[0].Rank)
	for _, m := range meld {
		if int(m.Rank) < low {
			low = int(m.Rank)
		}
		if int(m.Rank) > high {
			high = int(m.Rank)
		}
	}
	return int(c.Rank) == low-1 || int(c.Rank) == high+1
}

// candidateMelds enumerates every set and maximal-window run available in
// the hand. Runs are emitted for every window of length 3+ so the search can
// pick the split that minimizes deadwood. Enumeration order is fixed (ranks
// ascending, suits in canonical order) so tie-breaks replay identically.
func candidateMelds(hand []card.Card) [][]card.Card {
	var melds [][]card.Card

	byRank := make(map[card.Rank][]card.Card)
	bySuit := make(map[card.Suit][]card.Card)
	for _, c := range hand {
		byRank[c.Rank] = append(byRank[c.Rank], c)
		bySuit[c.Suit] = append(bySuit[c.Suit], c)
	}

	for rank := card.RankAce; rank <= card.RankKing; rank++ {
		group := byRank[rank]
		if len(group) >= 3 {
			melds = append(melds, append([]card.Card(nil), group...))
			if len(group) == 4 {
				// All four three-card subsets, so one card can stay free
				// for a run elsewhere.
				for skip := range group {
					subset := make([]card.Card, 0, 3)
					for i, c := range group {
						if i != skip {
							subset = append(subset, c)
						}
					}
					melds = append(melds, subset)
				}
			}
		}
	}

	for _, suit := range card.Suits {
		group := bySuit[suit]
		sorted := append([]card.Card(nil), group...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Rank < sorted[j].Rank })
		for start := 0; start < len(sorted); start++ {
			run := []card.Card{sorted[start]}
			for next := start + 1; next < len(sorted); next++ {
				if sorted[next].Rank != run[len(run)-1].Rank+1 {
					break
				}
				run = append(run, sorted[next])
				if len(run) >= 3 {
					melds = append(melds, append([]card.Card(nil), run...))
				}
			}
		}
	}

	return melds
}

// BestSplit finds the meld arrangement minimizing deadwood. It returns the
// chosen melds, the unmelded cards, and their point total. The search is
// exhaustive; hands hold at most eleven cards so the candidate space is
// small.
func BestSplit(hand []card.Card) (melds [][]card.Card, deadwood []card.Card, points int) {
	candidates := candidateMelds(hand)

	bestPoints := Deadwood(hand)
	var bestMelds [][]card.Card

	used := make(map[string]bool, len(hand))
	var chosen [][]card.Card

	var search func(start int)
	search = func(start int) {
		remaining := 0
		for _, c := range hand {
			if !used[c.ID] {
				remaining += c.Value()
			}
		}
		if remaining < bestPoints {
			bestPoints = remaining
			bestMelds = make([][]card.Card, len(chosen))
			for i, meld := range chosen {
				bestMelds[i] = append([]card.Card(nil), meld...)
			}
		}
		for i := start; i < len(candidates); i++ {
			overlap := false
			for _, c := range candidates[i] {
				if used[c.ID] {
					overlap = true
					break
				}
			}
			if overlap {
				continue
			}
			for _, c := range candidates[i] {
				used[c.ID] = true
			}
			chosen = append(chosen, candidates[i])
			search(i + 1)
			chosen = chosen[:len(chosen)-1]
			for _, c := range candidates[i] {
				used[c.ID] = false
			}
		}
	}
	search(0)

	melded := make(map[string]bool)
	for _, meld := range bestMelds {
		for _, c := range meld {
			melded[c.ID] = true
		}
	}
	for _, c := range hand {
		if !melded[c.ID] {
			deadwood = append(deadwood, c)
		}
	}
	return bestMelds, deadwood, bestPoints
}

// validateDeclaredMelds checks that every declared meld is valid, uses only
// cards from hand, and that no card appears twice. It returns the resolved
// melds and the leftover cards.
func validateDeclaredMelds(hand []card.Card, meldIDs [][]string) (melds [][]card.Card, leftover []card.Card, ok bool) {
	used := make(map[string]bool)
	for _, ids := range meldIDs {
		meld := make([]card.Card, 0, len(ids))
		for _, id := range ids {
			idx := card.Find(hand, id)
			if idx < 0 || used[id] {
				return nil, nil, false
			}
			used[id] = true
			meld = append(meld, hand[idx])
		}
		if !IsMeld(meld) {
			return nil, nil, false
		}
		melds = append(melds, meld)
	}
	for _, c := range hand {
		if !used[c.ID] {
			leftover = append(leftover, c)
		}
	}
	return melds, leftover, true
}
