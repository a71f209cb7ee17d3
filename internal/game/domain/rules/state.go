// Package rules implements the Gin Rummy phase state machine: pure event
// reducers, command validation, meld arithmetic, and the authoritative
// scoring function.
package rules

import (
	"github.com/meldtable/meldtable/internal/game/domain/card"
)

// KnockThreshold is the maximum post-discard deadwood allowed for a knock.
const KnockThreshold = 10

// GinBonus is awarded for going gin.
const GinBonus = 25

// UndercutBonus is awarded to a defender who matches or beats the knocker.
const UndercutBonus = 25

// TargetScore ends the game once a player reaches it.
const TargetScore = 100

// HandSize is the dealt hand size per player.
const HandSize = 10

// Status is the coarse game lifecycle.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Phase is the state-machine phase that gates which actions are legal.
type Phase string

const (
	PhaseWaiting        Phase = "waiting"
	PhaseUpcardDecision Phase = "upcard_decision"
	PhaseDraw           Phase = "draw"
	PhaseDiscard        Phase = "discard"
	PhaseLayoff         Phase = "layoff"
	PhaseRoundOver      Phase = "round_over"
	PhaseGameOver       Phase = "game_over"
)

// PlayerState is one seat's view-independent state.
type PlayerState struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	Hand      []card.Card `json:"hand"`
	Score     int         `json:"score"`
	Automated bool        `json:"automated,omitempty"`
	Dealer    bool        `json:"dealer,omitempty"`
}

// KnockState records an open knock or gin awaiting the defender's lay-off.
type KnockState struct {
	PlayerID string        `json:"player_id"`
	Melds    [][]card.Card `json:"melds"`
	Deadwood int           `json:"deadwood"`
	Gin      bool          `json:"gin,omitempty"`
}

// RoundScore records one finished round for history and UI.
type RoundScore struct {
	Round    int    `json:"round"`
	Result   string `json:"result"`
	WinnerID string `json:"winner_id,omitempty"`
	Points   int    `json:"points"`
}

// GameState is the materialized projection of a game stream. It is a value
// type: reducers return a new state and never mutate the input, so no state
// instance is ever shared across requests.
type GameState struct {
	ID              string       `json:"id"`
	Status          Status       `json:"status"`
	Phase           Phase        `json:"phase"`
	Players         []PlayerState `json:"players"`
	Stock           []card.Card  `json:"stock"`
	Discard         []card.Card  `json:"discard"`
	CurrentPlayerID string       `json:"current_player_id,omitempty"`
	RoundNumber     int          `json:"round_number"`
	GameOver        bool         `json:"game_over,omitempty"`
	WinnerID        string       `json:"winner_id,omitempty"`
	RoundScores     []RoundScore `json:"round_scores,omitempty"`
	// Knock is set between a knock/gin declaration and its lay-off resolution.
	Knock *KnockState `json:"knock,omitempty"`
	// UpcardPasses counts consecutive passes in the upcard decision.
	UpcardPasses int `json:"upcard_passes,omitempty"`
	// MustDrawStock forces the next draw from the stock after both players
	// declined the upcard.
	MustDrawStock bool `json:"must_draw_stock,omitempty"`
}

// Player returns the seat with the given id, or nil.
func (s GameState) Player(id string) *PlayerState {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// Opponent returns the other seat in a two-player game, or nil.
func (s GameState) Opponent(id string) *PlayerState {
	for i := range s.Players {
		if s.Players[i].ID != id {
			return &s.Players[i]
		}
	}
	return nil
}

// Dealer returns the dealing seat, or nil before the first deal.
func (s GameState) Dealer() *PlayerState {
	for i := range s.Players {
		if s.Players[i].Dealer {
			return &s.Players[i]
		}
	}
	return nil
}

// TopDiscard returns the top discard card; ok is false when the pile is empty.
func (s GameState) TopDiscard() (card.Card, bool) {
	if len(s.Discard) == 0 {
		return card.Card{}, false
	}
	return s.Discard[0], true
}

// CardCount sums stock, discard, and hand cards, plus any cards laid off
// onto an open knock. It must equal 52 at every phase boundary.
func (s GameState) CardCount() int {
	count := len(s.Stock) + len(s.Discard)
	for _, p := range s.Players {
		count += len(p.Hand)
	}
	return count
}

// clone deep-copies the mutable parts of the state so reducers can build
// the next value without aliasing the previous one.
func (s GameState) clone() GameState {
	next := s
	next.Players = make([]PlayerState, len(s.Players))
	for i, p := range s.Players {
		next.Players[i] = p
		next.Players[i].Hand = append([]card.Card(nil), p.Hand...)
	}
	next.Stock = append([]card.Card(nil), s.Stock...)
	next.Discard = append([]card.Card(nil), s.Discard...)
	next.RoundScores = append([]RoundScore(nil), s.RoundScores...)
	if s.Knock != nil {
		knock := *s.Knock
		knock.Melds = make([][]card.Card, len(s.Knock.Melds))
		for i, meld := range s.Knock.Melds {
			knock.Melds[i] = append([]card.Card(nil), meld...)
		}
		next.Knock = &knock
	}
	return next
}
