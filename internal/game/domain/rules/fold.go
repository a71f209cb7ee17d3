package rules

import (
	"encoding/json"
	"fmt"

	"github.com/meldtable/meldtable/internal/game/domain/card"
	"github.com/meldtable/meldtable/internal/game/domain/event"
)

// Fold applies an event to game state and returns the next state. It is a
// pure function of already-known data: every card movement was materialized
// before the event was appended, so Fold never shuffles, never draws on its
// own, and produces bit-identical output for identical input.
func Fold(state GameState, evt event.Event) (GameState, error) {
	switch evt.Type {
	case event.TypeGameStarted:
		return foldGameStarted(state, evt)
	case event.TypeRoundStarted:
		return foldRoundStarted(state, evt)
	case event.TypeUpcardTaken:
		return foldUpcardTaken(state, evt)
	case event.TypeUpcardPassed:
		return foldUpcardPassed(state, evt)
	case event.TypeCardDrawn:
		return foldCardDrawn(state, evt)
	case event.TypeCardDiscarded:
		return foldCardDiscarded(state, evt)
	case event.TypePlayerKnocked, event.TypePlayerGinned:
		return foldKnock(state, evt)
	case event.TypeLayoffResolved:
		return foldLayoffResolved(state, evt)
	case event.TypeRoundEnded:
		return foldRoundEnded(state, evt)
	case event.TypeGameEnded:
		return foldGameEnded(state, evt)
	}
	return GameState{}, fmt.Errorf("unknown event type %q at seq %d", evt.Type, evt.Seq)
}

func foldGameStarted(state GameState, evt event.Event) (GameState, error) {
	var payload event.GameStartedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return GameState{}, fmt.Errorf("unmarshal game.started: %w", err)
	}

	next := GameState{
		ID:          evt.GameID,
		Status:      StatusInProgress,
		RoundNumber: 1,
	}
	for _, seat := range payload.Seats {
		next.Players = append(next.Players, PlayerState{
			ID:        seat.PlayerID,
			Username:  seat.Username,
			Automated: seat.Automated,
			Dealer:    seat.PlayerID == payload.DealerID,
		})
	}
	return applyDeal(next, payload.DealerID, payload.Deal), nil
}

func foldRoundStarted(state GameState, evt event.Event) (GameState, error) {
	var payload event.RoundStartedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return GameState{}, fmt.Errorf("unmarshal round.started: %w", err)
	}

	next := state.clone()
	next.RoundNumber = payload.RoundNumber
	for i := range next.Players {
		next.Players[i].Dealer = next.Players[i].ID == payload.DealerID
	}
	return applyDeal(next, payload.DealerID, payload.Deal), nil
}

// applyDeal installs a fresh deal: hands, stock, the upcard on the discard
// pile, and the non-dealer to act first on the upcard decision.
func applyDeal(state GameState, dealerID string, deal event.Deal) GameState {
	next := state
	for i := range next.Players {
		next.Players[i].Hand = append([]card.Card(nil), deal.Hands[next.Players[i].ID]...)
	}
	next.Stock = append([]card.Card(nil), deal.Stock...)
	next.Discard = []card.Card{deal.Upcard}
	next.Phase = PhaseUpcardDecision
	next.Knock = nil
	next.UpcardPasses = 0
	next.MustDrawStock = false
	if opponent := next.Opponent(dealerID); opponent != nil {
		next.CurrentPlayerID = opponent.ID
	}
	return next
}

func foldUpcardTaken(state GameState, evt event.Event) (GameState, error) {
	var payload event.UpcardTakenPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return GameState{}, fmt.Errorf("unmarshal upcard.taken: %w", err)
	}

	next := state.clone()
	actor := next.Player(evt.ActorID)
	if actor == nil {
		return GameState{}, fmt.Errorf("upcard.taken by unknown player %q", evt.ActorID)
	}
	actor.Hand = append(actor.Hand, payload.Card)
	next.Discard = next.Discard[1:]
	next.Phase = PhaseDiscard
	next.CurrentPlayerID = actor.ID
	return next, nil
}

func foldUpcardPassed(state GameState, evt event.Event) (GameState, error) {
	var payload event.UpcardPassedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return GameState{}, fmt.Errorf("unmarshal upcard.passed: %w", err)
	}

	next := state.clone()
	next.UpcardPasses++
	next.CurrentPlayerID = payload.NextPlayerID
	if payload.StockForced {
		next.Phase = PhaseDraw
		next.MustDrawStock = true
	}
	return next, nil
}

func foldCardDrawn(state GameState, evt event.Event) (GameState, error) {
	var payload event.CardDrawnPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return GameState{}, fmt.Errorf("unmarshal card.drawn: %w", err)
	}

	next := state.clone()
	actor := next.Player(evt.ActorID)
	if actor == nil {
		return GameState{}, fmt.Errorf("card.drawn by unknown player %q", evt.ActorID)
	}
	switch payload.Source {
	case event.DrawSourceStock:
		if len(next.Stock) == 0 || next.Stock[0].ID != payload.Card.ID {
			return GameState{}, fmt.Errorf("card.drawn stock mismatch at seq %d", evt.Seq)
		}
		next.Stock = next.Stock[1:]
	case event.DrawSourceDiscard:
		if len(next.Discard) == 0 || next.Discard[0].ID != payload.Card.ID {
			return GameState{}, fmt.Errorf("card.drawn discard mismatch at seq %d", evt.Seq)
		}
		next.Discard = next.Discard[1:]
	default:
		return GameState{}, fmt.Errorf("card.drawn with unknown source %q", payload.Source)
	}
	actor.Hand = append(actor.Hand, payload.Card)
	next.Phase = PhaseDiscard
	next.MustDrawStock = false
	return next, nil
}

func foldCardDiscarded(state GameState, evt event.Event) (GameState, error) {
	var payload event.CardDiscardedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return GameState{}, fmt.Errorf("unmarshal card.discarded: %w", err)
	}

	next := state.clone()
	actor := next.Player(evt.ActorID)
	if actor == nil {
		return GameState{}, fmt.Errorf("card.discarded by unknown player %q", evt.ActorID)
	}
	idx := card.Find(actor.Hand, payload.Card.ID)
	if idx < 0 {
		return GameState{}, fmt.Errorf("card.discarded card %q not in hand at seq %d", payload.Card.ID, evt.Seq)
	}
	actor.Hand = card.Remove(actor.Hand, idx)
	next.Discard = append([]card.Card{payload.Card}, next.Discard...)
	next.CurrentPlayerID = payload.NextPlayerID
	next.Phase = PhaseDraw
	return next, nil
}

func foldKnock(state GameState, evt event.Event) (GameState, error) {
	var payload event.KnockPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return GameState{}, fmt.Errorf("unmarshal %s: %w", evt.Type, err)
	}

	next := state.clone()
	actor := next.Player(evt.ActorID)
	if actor == nil {
		return GameState{}, fmt.Errorf("%s by unknown player %q", evt.Type, evt.ActorID)
	}
	idx := card.Find(actor.Hand, payload.Discard.ID)
	if idx < 0 {
		return GameState{}, fmt.Errorf("%s discard %q not in hand at seq %d", evt.Type, payload.Discard.ID, evt.Seq)
	}
	actor.Hand = card.Remove(actor.Hand, idx)
	next.Discard = append([]card.Card{payload.Discard}, next.Discard...)

	melds := make([][]card.Card, len(payload.Melds))
	for i, meld := range payload.Melds {
		melds[i] = append([]card.Card(nil), meld...)
	}
	next.Knock = &KnockState{
		PlayerID: actor.ID,
		Melds:    melds,
		Deadwood: payload.Deadwood,
		Gin:      evt.Type == event.TypePlayerGinned,
	}
	next.CurrentPlayerID = payload.DefenderID
	next.Phase = PhaseLayoff
	return next, nil
}

func foldLayoffResolved(state GameState, evt event.Event) (GameState, error) {
	var payload event.LayoffResolvedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return GameState{}, fmt.Errorf("unmarshal layoff.resolved: %w", err)
	}

	next := state.clone()
	if next.Knock == nil {
		return GameState{}, fmt.Errorf("layoff.resolved without open knock at seq %d", evt.Seq)
	}
	defender := next.Player(evt.ActorID)
	knocker := next.Player(next.Knock.PlayerID)
	if defender == nil || knocker == nil {
		return GameState{}, fmt.Errorf("layoff.resolved with unknown players at seq %d", evt.Seq)
	}
	// Laid-off cards move to the knocker's side of the table so the 52-card
	// conservation invariant holds through round resolution.
	for _, layoff := range payload.Layoffs {
		idx := card.Find(defender.Hand, layoff.Card.ID)
		if idx < 0 {
			return GameState{}, fmt.Errorf("layoff card %q not in hand at seq %d", layoff.Card.ID, evt.Seq)
		}
		if layoff.MeldIndex < 0 || layoff.MeldIndex >= len(next.Knock.Melds) {
			return GameState{}, fmt.Errorf("layoff meld index %d out of range at seq %d", layoff.MeldIndex, evt.Seq)
		}
		defender.Hand = card.Remove(defender.Hand, idx)
		knocker.Hand = append(knocker.Hand, layoff.Card)
		next.Knock.Melds[layoff.MeldIndex] = append(next.Knock.Melds[layoff.MeldIndex], layoff.Card)
	}
	return next, nil
}

func foldRoundEnded(state GameState, evt event.Event) (GameState, error) {
	var payload event.RoundEndedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return GameState{}, fmt.Errorf("unmarshal round.ended: %w", err)
	}

	next := state.clone()
	for i := range next.Players {
		if total, ok := payload.Totals[next.Players[i].ID]; ok {
			next.Players[i].Score = total
		}
	}
	next.RoundScores = append(next.RoundScores, RoundScore{
		Round:    payload.RoundNumber,
		Result:   string(payload.Result),
		WinnerID: payload.WinnerID,
		Points:   payload.Points,
	})
	next.Phase = PhaseRoundOver
	next.Knock = nil
	next.CurrentPlayerID = ""
	return next, nil
}

func foldGameEnded(state GameState, evt event.Event) (GameState, error) {
	var payload event.GameEndedPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		return GameState{}, fmt.Errorf("unmarshal game.ended: %w", err)
	}

	next := state.clone()
	next.Status = StatusCompleted
	next.Phase = PhaseGameOver
	next.GameOver = true
	next.WinnerID = payload.WinnerID
	next.CurrentPlayerID = ""
	return next, nil
}
