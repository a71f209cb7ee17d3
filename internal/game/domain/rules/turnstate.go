package rules

import (
	"github.com/meldtable/meldtable/internal/game/domain/card"
	"github.com/meldtable/meldtable/internal/game/domain/command"
)

// TurnState is the derived, total answer to "who may do what right now".
// Components never peek at projection internals to work this out.
type TurnState struct {
	GameID          string               `json:"game_id"`
	Phase           Phase                `json:"phase"`
	CurrentPlayerID string               `json:"current_player_id,omitempty"`
	LegalActions    []command.ActionType `json:"legal_actions,omitempty"`
	// CanKnock and CanGin report whether some discard from the current
	// eleven-card hand reaches the knock threshold or zero deadwood.
	CanKnock bool `json:"can_knock,omitempty"`
	CanGin   bool `json:"can_gin,omitempty"`
}

// DeriveTurnState computes the turn state for any projection, including
// finished games, where the action list is empty.
func DeriveTurnState(state GameState) TurnState {
	ts := TurnState{
		GameID:          state.ID,
		Phase:           state.Phase,
		CurrentPlayerID: state.CurrentPlayerID,
	}
	if state.Status != StatusInProgress {
		return ts
	}

	switch state.Phase {
	case PhaseUpcardDecision:
		ts.LegalActions = []command.ActionType{command.ActionTakeUpcard, command.ActionPassUpcard}
	case PhaseDraw:
		ts.LegalActions = []command.ActionType{command.ActionDrawStock}
		if !state.MustDrawStock && len(state.Discard) > 0 {
			ts.LegalActions = append(ts.LegalActions, command.ActionDrawDiscard)
		}
	case PhaseDiscard:
		ts.LegalActions = []command.ActionType{command.ActionDiscard}
		if actor := state.Player(state.CurrentPlayerID); actor != nil {
			min := minDeadwoodAfterDiscard(actor.Hand)
			ts.CanKnock = min <= KnockThreshold
			ts.CanGin = min == 0
		}
		if ts.CanKnock {
			ts.LegalActions = append(ts.LegalActions, command.ActionKnock)
		}
		if ts.CanGin {
			ts.LegalActions = append(ts.LegalActions, command.ActionGin)
		}
	case PhaseLayoff:
		ts.LegalActions = []command.ActionType{command.ActionLayOff}
	}
	return ts
}

// minDeadwoodAfterDiscard tries every discard from an eleven-card hand and
// returns the lowest deadwood the remaining ten cards can reach.
func minDeadwoodAfterDiscard(hand []card.Card) int {
	best := -1
	for i := range hand {
		remaining := card.Remove(append([]card.Card(nil), hand...), i)
		_, _, points := BestSplit(remaining)
		if best < 0 || points < best {
			best = points
		}
	}
	return best
}
