package rules

import (
	"fmt"
	"time"

	"github.com/meldtable/meldtable/internal/game/domain/card"
	"github.com/meldtable/meldtable/internal/game/domain/command"
	"github.com/meldtable/meldtable/internal/game/domain/event"
	apperrors "github.com/meldtable/meldtable/internal/platform/errors"
)

// Decide validates a command against the current projection and produces
// the events it implies, or domain rejections. It never touches storage and
// never draws randomness of its own: fresh deals come from the injected
// DealFunc and ride inside the emitted events.
func Decide(state GameState, cmd command.Command, now time.Time, deal DealFunc) command.Decision {
	if rej, ok := checkTurn(state, cmd); !ok {
		return command.Reject(rej)
	}

	switch cmd.Action.Type {
	case command.ActionTakeUpcard:
		return decideTakeUpcard(state, cmd, now)
	case command.ActionPassUpcard:
		return decidePassUpcard(state, cmd, now)
	case command.ActionDrawStock:
		return decideDrawStock(state, cmd, now)
	case command.ActionDrawDiscard:
		return decideDrawDiscard(state, cmd, now)
	case command.ActionDiscard:
		return decideDiscard(state, cmd, now, deal)
	case command.ActionKnock, command.ActionGin:
		return decideKnock(state, cmd, now)
	case command.ActionLayOff:
		return decideLayOff(state, cmd, now, deal)
	}
	return command.Reject(command.Rejection{
		Code:    string(apperrors.CodeActionUnknown),
		Message: fmt.Sprintf("action %q is not registered", cmd.Action.Type),
	})
}

// checkTurn applies the gate shared by every action: the game must be in
// progress, the actor must be seated, and it must be the actor's turn.
func checkTurn(state GameState, cmd command.Command) (command.Rejection, bool) {
	switch state.Status {
	case StatusInProgress:
	case StatusCompleted:
		return command.Rejection{
			Code:    string(apperrors.CodeGameAlreadyOver),
			Message: "game is already over",
		}, false
	default:
		return command.Rejection{
			Code:    string(apperrors.CodeGameNotStarted),
			Message: "game has not started",
		}, false
	}
	if state.Player(cmd.ActorID) == nil {
		return command.Rejection{
			Code:    string(apperrors.CodePlayerUnknown),
			Message: fmt.Sprintf("player %q is not seated in this game", cmd.ActorID),
		}, false
	}
	if state.CurrentPlayerID != cmd.ActorID {
		return command.Rejection{
			Code:    string(apperrors.CodeOutOfTurn),
			Message: "it is not your turn",
		}, false
	}
	return command.Rejection{}, true
}

func rejectPhase(state GameState, action command.ActionType) command.Decision {
	return command.Reject(command.Rejection{
		Code:    string(apperrors.CodePhaseDisallowsOp),
		Message: fmt.Sprintf("%s is not legal in phase %s", action, state.Phase),
	})
}

func decideTakeUpcard(state GameState, cmd command.Command, now time.Time) command.Decision {
	if state.Phase != PhaseUpcardDecision {
		return rejectPhase(state, cmd.Action.Type)
	}
	top, ok := state.TopDiscard()
	if !ok {
		return command.Reject(command.Rejection{
			Code:    string(apperrors.CodeDiscardEmpty),
			Message: "no upcard to take",
		})
	}
	evt, err := event.New(cmd.GameID, event.TypeUpcardTaken, cmd.ActorID, cmd.RequestID,
		event.UpcardTakenPayload{Card: top}, now)
	if err != nil {
		return rejectInternal(err)
	}
	return command.Accept(evt)
}

func decidePassUpcard(state GameState, cmd command.Command, now time.Time) command.Decision {
	if state.Phase != PhaseUpcardDecision {
		return rejectPhase(state, cmd.Action.Type)
	}
	opponent := state.Opponent(cmd.ActorID)
	if opponent == nil {
		return rejectInternal(fmt.Errorf("no opponent for player %q", cmd.ActorID))
	}
	// The non-dealer decides first. After the second pass the turn returns
	// to the non-dealer, who must open the round from the stock.
	payload := event.UpcardPassedPayload{NextPlayerID: opponent.ID}
	if state.UpcardPasses >= 1 {
		payload.StockForced = true
	}
	evt, err := event.New(cmd.GameID, event.TypeUpcardPassed, cmd.ActorID, cmd.RequestID, payload, now)
	if err != nil {
		return rejectInternal(err)
	}
	return command.Accept(evt)
}

func decideDrawStock(state GameState, cmd command.Command, now time.Time) command.Decision {
	if state.Phase != PhaseDraw {
		return rejectPhase(state, cmd.Action.Type)
	}
	if len(state.Stock) == 0 {
		return rejectInternal(fmt.Errorf("stock is empty in draw phase for game %s", state.ID))
	}
	evt, err := event.New(cmd.GameID, event.TypeCardDrawn, cmd.ActorID, cmd.RequestID,
		event.CardDrawnPayload{Source: event.DrawSourceStock, Card: state.Stock[0]}, now)
	if err != nil {
		return rejectInternal(err)
	}
	return command.Accept(evt)
}

func decideDrawDiscard(state GameState, cmd command.Command, now time.Time) command.Decision {
	if state.Phase != PhaseDraw {
		return rejectPhase(state, cmd.Action.Type)
	}
	if state.MustDrawStock {
		return command.Reject(command.Rejection{
			Code:    string(apperrors.CodePhaseDisallowsOp),
			Message: "both players declined the upcard, the first draw must come from the stock",
		})
	}
	top, ok := state.TopDiscard()
	if !ok {
		return command.Reject(command.Rejection{
			Code:    string(apperrors.CodeDiscardEmpty),
			Message: "discard pile is empty",
		})
	}
	evt, err := event.New(cmd.GameID, event.TypeCardDrawn, cmd.ActorID, cmd.RequestID,
		event.CardDrawnPayload{Source: event.DrawSourceDiscard, Card: top}, now)
	if err != nil {
		return rejectInternal(err)
	}
	return command.Accept(evt)
}

func decideDiscard(state GameState, cmd command.Command, now time.Time, deal DealFunc) command.Decision {
	if state.Phase != PhaseDiscard {
		return rejectPhase(state, cmd.Action.Type)
	}
	actor := state.Player(cmd.ActorID)
	idx := card.Find(actor.Hand, cmd.Action.CardID)
	if idx < 0 {
		return command.Reject(command.Rejection{
			Code:    string(apperrors.CodeCardNotInHand),
			Message: fmt.Sprintf("card %q is not in your hand", cmd.Action.CardID),
		})
	}
	opponent := state.Opponent(cmd.ActorID)
	if opponent == nil {
		return rejectInternal(fmt.Errorf("no opponent for player %q", cmd.ActorID))
	}

	discarded, err := event.New(cmd.GameID, event.TypeCardDiscarded, cmd.ActorID, cmd.RequestID,
		event.CardDiscardedPayload{Card: actor.Hand[idx], NextPlayerID: opponent.ID}, now)
	if err != nil {
		return rejectInternal(err)
	}

	// Two cards left in the stock after this discard kills the hand: no one
	// scores and the same deal order restarts with the next dealer.
	if len(state.Stock) <= 2 {
		totals := make(map[string]int, len(state.Players))
		for _, p := range state.Players {
			totals[p.ID] = p.Score
		}
		ended, err := event.New(cmd.GameID, event.TypeRoundEnded, "", "",
			event.RoundEndedPayload{
				RoundNumber: state.RoundNumber,
				Result:      event.RoundResultDeadHand,
				Totals:      totals,
			}, now)
		if err != nil {
			return rejectInternal(err)
		}
		started, err := nextRoundEvent(state, now, deal)
		if err != nil {
			return rejectInternal(err)
		}
		return command.Accept(discarded, ended, started)
	}
	return command.Accept(discarded)
}

func decideKnock(state GameState, cmd command.Command, now time.Time) command.Decision {
	if state.Phase != PhaseDiscard {
		return rejectPhase(state, cmd.Action.Type)
	}
	actor := state.Player(cmd.ActorID)
	idx := card.Find(actor.Hand, cmd.Action.CardID)
	if idx < 0 {
		return command.Reject(command.Rejection{
			Code:    string(apperrors.CodeCardNotInHand),
			Message: fmt.Sprintf("card %q is not in your hand", cmd.Action.CardID),
		})
	}
	opponent := state.Opponent(cmd.ActorID)
	if opponent == nil {
		return rejectInternal(fmt.Errorf("no opponent for player %q", cmd.ActorID))
	}

	remaining := card.Remove(append([]card.Card(nil), actor.Hand...), idx)
	melds, leftover, ok := validateDeclaredMelds(remaining, cmd.Action.MeldCardIDs)
	if !ok {
		return command.Reject(command.Rejection{
			Code:    string(apperrors.CodeMeldInvalid),
			Message: "declared melds are not valid sets or runs from your hand",
		})
	}
	deadwood := Deadwood(leftover)

	typ := event.TypePlayerKnocked
	switch cmd.Action.Type {
	case command.ActionGin:
		if deadwood != 0 {
			return command.Reject(command.Rejection{
				Code:    string(apperrors.CodeDeadwoodTooHigh),
				Message: fmt.Sprintf("gin requires zero deadwood, declared hand leaves %d", deadwood),
			})
		}
		typ = event.TypePlayerGinned
	default:
		if deadwood > KnockThreshold {
			return command.Reject(command.Rejection{
				Code:    string(apperrors.CodeDeadwoodTooHigh),
				Message: fmt.Sprintf("knock requires deadwood at most %d, declared hand leaves %d", KnockThreshold, deadwood),
			})
		}
	}

	evt, err := event.New(cmd.GameID, typ, cmd.ActorID, cmd.RequestID, event.KnockPayload{
		Melds:      melds,
		Discard:    actor.Hand[idx],
		Deadwood:   deadwood,
		DefenderID: opponent.ID,
	}, now)
	if err != nil {
		return rejectInternal(err)
	}
	return command.Accept(evt)
}

func decideLayOff(state GameState, cmd command.Command, now time.Time, deal DealFunc) command.Decision {
	if state.Phase != PhaseLayoff || state.Knock == nil {
		return rejectPhase(state, cmd.Action.Type)
	}
	if state.Knock.Gin && len(cmd.Action.Layoffs) > 0 {
		return command.Reject(command.Rejection{
			Code:    string(apperrors.CodeLayoffInvalid),
			Message: "no lay-offs are allowed against gin",
		})
	}
	defender := state.Player(cmd.ActorID)

	// Resolve lay-offs against working copies so a chained lay-off can
	// extend a meld another lay-off just grew.
	hand := append([]card.Card(nil), defender.Hand...)
	melds := make([][]card.Card, len(state.Knock.Melds))
	for i, meld := range state.Knock.Melds {
		melds[i] = append([]card.Card(nil), meld...)
	}
	layoffs := make([]event.Layoff, 0, len(cmd.Action.Layoffs))
	for _, spec := range cmd.Action.Layoffs {
		idx := card.Find(hand, spec.CardID)
		if idx < 0 {
			return command.Reject(command.Rejection{
				Code:    string(apperrors.CodeCardNotInHand),
				Message: fmt.Sprintf("card %q is not in your hand", spec.CardID),
			})
		}
		if spec.MeldIndex < 0 || spec.MeldIndex >= len(melds) {
			return command.Reject(command.Rejection{
				Code:    string(apperrors.CodeLayoffInvalid),
				Message: fmt.Sprintf("meld index %d does not exist", spec.MeldIndex),
			})
		}
		c := hand[idx]
		if !CanExtend(melds[spec.MeldIndex], c) {
			return command.Reject(command.Rejection{
				Code:    string(apperrors.CodeLayoffInvalid),
				Message: fmt.Sprintf("card %q does not extend meld %d", spec.CardID, spec.MeldIndex),
			})
		}
		hand = card.Remove(hand, idx)
		melds[spec.MeldIndex] = append(melds[spec.MeldIndex], c)
		layoffs = append(layoffs, event.Layoff{Card: c, MeldIndex: spec.MeldIndex})
	}

	_, _, defenderDeadwood := BestSplit(hand)
	outcome := ScoreRound(state.Knock.PlayerID, defender.ID, state.Knock.Deadwood, defenderDeadwood, state.Knock.Gin)

	totals := make(map[string]int, len(state.Players))
	for _, p := range state.Players {
		totals[p.ID] = p.Score
	}
	totals[outcome.WinnerID] += outcome.Points

	resolved, err := event.New(cmd.GameID, event.TypeLayoffResolved, cmd.ActorID, cmd.RequestID,
		event.LayoffResolvedPayload{Layoffs: layoffs, DefenderDeadwood: defenderDeadwood}, now)
	if err != nil {
		return rejectInternal(err)
	}
	ended, err := event.New(cmd.GameID, event.TypeRoundEnded, "", "", event.RoundEndedPayload{
		RoundNumber: state.RoundNumber,
		Result:      outcome.Result,
		WinnerID:    outcome.WinnerID,
		Points:      outcome.Points,
		Totals:      totals,
	}, now)
	if err != nil {
		return rejectInternal(err)
	}

	if totals[outcome.WinnerID] >= TargetScore {
		finished, err := event.New(cmd.GameID, event.TypeGameEnded, "", "",
			event.GameEndedPayload{WinnerID: outcome.WinnerID, FinalScores: totals}, now)
		if err != nil {
			return rejectInternal(err)
		}
		return command.Accept(resolved, ended, finished)
	}

	started, err := nextRoundEvent(state, now, deal)
	if err != nil {
		return rejectInternal(err)
	}
	return command.Accept(resolved, ended, started)
}

// nextRoundEvent builds the round.started event for the round after the one
// recorded in state. The deal alternates to the other dealer. System events
// that trail a player action carry no request id; the idempotency key lives
// on the triggering event only.
func nextRoundEvent(state GameState, now time.Time, deal DealFunc) (event.Event, error) {
	if deal == nil {
		return event.Event{}, fmt.Errorf("deal func is required to start a round")
	}
	dealer := state.Dealer()
	if dealer == nil {
		return event.Event{}, fmt.Errorf("game %s has no dealer", state.ID)
	}
	nextDealer := state.Opponent(dealer.ID)
	if nextDealer == nil {
		return event.Event{}, fmt.Errorf("game %s has no second seat", state.ID)
	}
	ids := make([]string, len(state.Players))
	for i, p := range state.Players {
		ids[i] = p.ID
	}
	return event.New(state.ID, event.TypeRoundStarted, "", "", event.RoundStartedPayload{
		RoundNumber: state.RoundNumber + 1,
		DealerID:    nextDealer.ID,
		Deal:        deal(ids),
	}, now)
}

func rejectInternal(err error) command.Decision {
	return command.Reject(command.Rejection{
		Code:    string(apperrors.CodeInternal),
		Message: err.Error(),
	})
}
