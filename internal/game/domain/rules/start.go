package rules

import (
	"fmt"
	"time"

	"github.com/meldtable/meldtable/internal/game/domain/event"
)

// NewGameEvent builds the game.started event for a fresh two-player game.
// The non-dealer will act first on the upcard decision.
func NewGameEvent(gameID string, seats []event.Seat, dealerID, requestID string, now time.Time, deal DealFunc) (event.Event, error) {
	if len(seats) != 2 {
		return event.Event{}, fmt.Errorf("two seats are required, got %d", len(seats))
	}
	if deal == nil {
		return event.Event{}, fmt.Errorf("deal func is required to start a game")
	}
	found := false
	ids := make([]string, len(seats))
	for i, seat := range seats {
		ids[i] = seat.PlayerID
		if seat.PlayerID == dealerID {
			found = true
		}
	}
	if !found {
		return event.Event{}, fmt.Errorf("dealer %q is not seated", dealerID)
	}
	return event.New(gameID, event.TypeGameStarted, "", requestID, event.GameStartedPayload{
		Seats:    seats,
		DealerID: dealerID,
		Deal:     deal(ids),
	}, now)
}
