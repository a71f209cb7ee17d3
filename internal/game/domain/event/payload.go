package event

import "github.com/meldtable/meldtable/internal/game/domain/card"

// Seat describes one player slot at game start.
type Seat struct {
	PlayerID  string `json:"player_id"`
	Username  string `json:"username"`
	Automated bool   `json:"automated,omitempty"`
}

// Deal carries a complete pre-shuffled deal. All randomness happens before
// the event is appended; reducers only move the recorded cards.
type Deal struct {
	Hands  map[string][]card.Card `json:"hands"`
	Stock  []card.Card            `json:"stock"`
	Upcard card.Card              `json:"upcard"`
}

// GameStartedPayload is the payload for game.started.
type GameStartedPayload struct {
	Seats    []Seat `json:"seats"`
	DealerID string `json:"dealer_id"`
	Deal     Deal   `json:"deal"`
}

// RoundStartedPayload is the payload for round.started.
type RoundStartedPayload struct {
	RoundNumber int    `json:"round_number"`
	DealerID    string `json:"dealer_id"`
	Deal        Deal   `json:"deal"`
}

// UpcardTakenPayload is the payload for upcard.taken.
type UpcardTakenPayload struct {
	Card card.Card `json:"card"`
}

// UpcardPassedPayload is the payload for upcard.passed.
type UpcardPassedPayload struct {
	NextPlayerID string `json:"next_player_id"`
	// StockForced reports that both players declined the upcard and the
	// next draw must come from the stock.
	StockForced bool `json:"stock_forced,omitempty"`
}

// DrawSource names the pile a card was drawn from.
type DrawSource string

const (
	DrawSourceStock   DrawSource = "stock"
	DrawSourceDiscard DrawSource = "discard"
)

// CardDrawnPayload is the payload for card.drawn. Card is materialized at
// command-generation time so replay never consults the piles for randomness.
type CardDrawnPayload struct {
	Source DrawSource `json:"source"`
	Card   card.Card  `json:"card"`
}

// CardDiscardedPayload is the payload for card.discarded.
type CardDiscardedPayload struct {
	Card         card.Card `json:"card"`
	NextPlayerID string    `json:"next_player_id"`
}

// KnockPayload is the payload for player.knocked and player.ginned.
type KnockPayload struct {
	Melds      [][]card.Card `json:"melds"`
	Discard    card.Card     `json:"discard"`
	Deadwood   int           `json:"deadwood"`
	DefenderID string        `json:"defender_id"`
}

// Layoff attaches one defender card to a knocker meld.
type Layoff struct {
	Card      card.Card `json:"card"`
	MeldIndex int       `json:"meld_index"`
}

// LayoffResolvedPayload is the payload for layoff.resolved.
type LayoffResolvedPayload struct {
	Layoffs          []Layoff `json:"layoffs,omitempty"`
	DefenderDeadwood int      `json:"defender_deadwood"`
}

// RoundResult names how a round was decided.
type RoundResult string

const (
	RoundResultKnock    RoundResult = "knock"
	RoundResultGin      RoundResult = "gin"
	RoundResultUndercut RoundResult = "undercut"
	RoundResultDeadHand RoundResult = "dead_hand"
)

// RoundEndedPayload is the payload for round.ended. Totals carry the
// post-round cumulative score per player; the authoritative scoring function
// computes Points before append and reducers only apply it.
type RoundEndedPayload struct {
	RoundNumber int            `json:"round_number"`
	Result      RoundResult    `json:"result"`
	WinnerID    string         `json:"winner_id,omitempty"`
	Points      int            `json:"points"`
	Totals      map[string]int `json:"totals"`
}

// GameEndedPayload is the payload for game.ended.
type GameEndedPayload struct {
	WinnerID    string         `json:"winner_id"`
	FinalScores map[string]int `json:"final_scores"`
}
