package rules

import (
	"github.com/meldtable/meldtable/internal/game/domain/card"
	"github.com/meldtable/meldtable/internal/game/domain/command"
)

// Suggest computes the automated move for the current player. It is a pure
// heuristic over the projection, so automated play submits through the same
// validation path as humans. ok is false when no action is available.
func Suggest(state GameState) (action command.Action, ok bool) {
	if state.Status != StatusInProgress {
		return command.Action{}, false
	}
	actor := state.Player(state.CurrentPlayerID)
	if actor == nil {
		return command.Action{}, false
	}

	switch state.Phase {
	case PhaseUpcardDecision:
		return suggestUpcard(state, actor), true
	case PhaseDraw:
		return suggestDraw(state, actor), true
	case PhaseDiscard:
		return suggestDiscard(actor), true
	case PhaseLayoff:
		return suggestLayoff(state, actor), true
	}
	return command.Action{}, false
}

func suggestUpcard(state GameState, actor *PlayerState) command.Action {
	top, ok := state.TopDiscard()
	if !ok {
		return command.Action{Type: command.ActionPassUpcard}
	}
	if drawImproves(actor.Hand, top) {
		return command.Action{Type: command.ActionTakeUpcard}
	}
	return command.Action{Type: command.ActionPassUpcard}
}

func suggestDraw(state GameState, actor *PlayerState) command.Action {
	if state.MustDrawStock {
		return command.Action{Type: command.ActionDrawStock}
	}
	if top, ok := state.TopDiscard(); ok && drawImproves(actor.Hand, top) {
		return command.Action{Type: command.ActionDrawDiscard}
	}
	return command.Action{Type: command.ActionDrawStock}
}

// drawImproves reports whether taking the visible card strictly lowers the
// deadwood reachable after the follow-up discard.
func drawImproves(hand []card.Card, c card.Card) bool {
	_, _, current := BestSplit(hand)
	with := append(append([]card.Card(nil), hand...), c)
	return minDeadwoodAfterDiscard(with) < current
}

// suggestDiscard picks the discard that leaves the lowest deadwood, then
// declares gin or a knock when the remaining ten cards qualify. Ties break
// toward throwing the highest-value card.
func suggestDiscard(actor *PlayerState) command.Action {
	bestIdx := -1
	bestPoints := 0
	for i := range actor.Hand {
		remaining := card.Remove(append([]card.Card(nil), actor.Hand...), i)
		_, _, points := BestSplit(remaining)
		if bestIdx < 0 || points < bestPoints ||
			(points == bestPoints && actor.Hand[i].Value() > actor.Hand[bestIdx].Value()) {
			bestIdx = i
			bestPoints = points
		}
	}

	discard := actor.Hand[bestIdx]
	remaining := card.Remove(append([]card.Card(nil), actor.Hand...), bestIdx)
	melds, _, points := BestSplit(remaining)

	if points == 0 {
		return command.Action{Type: command.ActionGin, CardID: discard.ID, MeldCardIDs: meldIDs(melds)}
	}
	if points <= KnockThreshold {
		return command.Action{Type: command.ActionKnock, CardID: discard.ID, MeldCardIDs: meldIDs(melds)}
	}
	return command.Action{Type: command.ActionDiscard, CardID: discard.ID}
}

// suggestLayoff greedily attaches every deadwood card that extends a
// knocker meld, keeping the defender's own melds intact. Against gin it
// submits an empty lay-off.
func suggestLayoff(state GameState, actor *PlayerState) command.Action {
	action := command.Action{Type: command.ActionLayOff}
	if state.Knock == nil || state.Knock.Gin {
		return action
	}

	_, deadwood, _ := BestSplit(actor.Hand)
	hand := append([]card.Card(nil), deadwood...)
	melds := make([][]card.Card, len(state.Knock.Melds))
	for i, meld := range state.Knock.Melds {
		melds[i] = append([]card.Card(nil), meld...)
	}
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(hand); i++ {
			for m := range melds {
				if !CanExtend(melds[m], hand[i]) {
					continue
				}
				action.Layoffs = append(action.Layoffs, command.LayoffSpec{CardID: hand[i].ID, MeldIndex: m})
				melds[m] = append(melds[m], hand[i])
				hand = card.Remove(hand, i)
				i--
				changed = true
				break
			}
		}
	}
	return action
}

func meldIDs(melds [][]card.Card) [][]string {
	ids := make([][]string, len(melds))
	for i, meld := range melds {
		ids[i] = make([]string, len(meld))
		for j, c := range meld {
			ids[i][j] = c.ID
		}
	}
	return ids
}
