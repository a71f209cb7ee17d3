package rules

import (
	"github.com/meldtable/meldtable/internal/game/domain/card"
	"github.com/meldtable/meldtable/internal/game/domain/event"
)

// DealFunc produces a fresh deal for the given player ids. It is the only
// randomness entry point: the command handler injects it, the decider calls
// it at decision time, and the resulting deal rides inside the appended
// event so replay never shuffles.
type DealFunc func(playerIDs []string) event.Deal

// GenerateDeal deals ten cards to each of two players from a deck shuffled
// with the given seed, turns one upcard, and leaves the rest as stock.
func GenerateDeal(seed int64, playerIDs []string) event.Deal {
	deck := card.Shuffled(seed)

	hands := make(map[string][]card.Card, len(playerIDs))
	for _, id := range playerIDs {
		hands[id] = append([]card.Card(nil), deck[:HandSize]...)
		deck = deck[HandSize:]
	}
	upcard := deck[0]
	stock := append([]card.Card(nil), deck[1:]...)

	return event.Deal{Hands: hands, Stock: stock, Upcard: upcard}
}
