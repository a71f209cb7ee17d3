// Package view renders per-viewer projections of game state. Hidden
// information never leaves the server: a viewer only receives card ranks and
// suits for hands they are entitled to see.
package view

import (
	"github.com/meldtable/meldtable/internal/game/domain/card"
	"github.com/meldtable/meldtable/internal/game/domain/rules"
)

// PlayerView is one seat as a specific viewer sees it. Hand is nil when the
// viewer may not see the cards; HandSize is always populated.
type PlayerView struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	HandSize int         `json:"hand_size"`
	Hand     []card.Card `json:"hand,omitempty"`
	// Deadwood and Melds are computed only for visible hands.
	Deadwood  int           `json:"deadwood,omitempty"`
	Melds     [][]card.Card `json:"melds,omitempty"`
	Score     int           `json:"score"`
	Automated bool          `json:"automated,omitempty"`
	Dealer    bool          `json:"dealer,omitempty"`
}

// GameView is the game as a specific viewer sees it. The stock pile is never
// exposed card by card, only as a count.
type GameView struct {
	ID              string             `json:"id"`
	Status          rules.Status       `json:"status"`
	Phase           rules.Phase        `json:"phase"`
	Players         []PlayerView       `json:"players"`
	StockCount      int                `json:"stock_count"`
	Discard         []card.Card        `json:"discard"`
	CurrentPlayerID string             `json:"current_player_id,omitempty"`
	RoundNumber     int                `json:"round_number"`
	GameOver        bool               `json:"game_over,omitempty"`
	WinnerID        string             `json:"winner_id,omitempty"`
	RoundScores     []rules.RoundScore `json:"round_scores,omitempty"`
	Knock           *rules.KnockState  `json:"knock,omitempty"`
	Turn            rules.TurnState    `json:"turn"`
}

// ForViewer renders state for one viewer. Players see their own hand while a
// round is active; every hand is revealed once the round or game is over.
// Any other viewer id is a spectator and sees no hidden cards.
func ForViewer(state rules.GameState, viewerID string) GameView {
	revealed := state.Phase == rules.PhaseRoundOver || state.Phase == rules.PhaseGameOver

	view := GameView{
		ID:              state.ID,
		Status:          state.Status,
		Phase:           state.Phase,
		StockCount:      len(state.Stock),
		Discard:         append([]card.Card(nil), state.Discard...),
		CurrentPlayerID: state.CurrentPlayerID,
		RoundNumber:     state.RoundNumber,
		GameOver:        state.GameOver,
		WinnerID:        state.WinnerID,
		RoundScores:     append([]rules.RoundScore(nil), state.RoundScores...),
		Turn:            rules.DeriveTurnState(state),
	}
	if state.Knock != nil {
		knock := *state.Knock
		knock.Melds = make([][]card.Card, len(state.Knock.Melds))
		for i, meld := range state.Knock.Melds {
			knock.Melds[i] = append([]card.Card(nil), meld...)
		}
		view.Knock = &knock
	}

	for _, p := range state.Players {
		pv := PlayerView{
			ID:        p.ID,
			Username:  p.Username,
			HandSize:  len(p.Hand),
			Score:     p.Score,
			Automated: p.Automated,
			Dealer:    p.Dealer,
		}
		if revealed || p.ID == viewerID {
			pv.Hand = append([]card.Card(nil), p.Hand...)
			melds, _, deadwood := rules.BestSplit(p.Hand)
			pv.Melds = melds
			pv.Deadwood = deadwood
		}
		view.Players = append(view.Players, pv)
	}
	return view
}
