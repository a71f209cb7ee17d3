// Package event defines the immutable event envelope and the event types of
// the game journal. Events are facts that have occurred, never commands.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type identifies the kind of event.
type Type string

// Game lifecycle events.
const (
	// TypeGameStarted records game creation with the opening deal.
	TypeGameStarted Type = "game.started"
	// TypeRoundStarted records a fresh deal for a new round.
	TypeRoundStarted Type = "round.started"
	// TypeRoundEnded records round resolution and scoring.
	TypeRoundEnded Type = "round.ended"
	// TypeGameEnded records the end of the game and the winner.
	TypeGameEnded Type = "game.ended"
)

// Turn events.
const (
	// TypeUpcardTaken records the initial upcard being taken into a hand.
	TypeUpcardTaken Type = "upcard.taken"
	// TypeUpcardPassed records a player declining the initial upcard.
	TypeUpcardPassed Type = "upcard.passed"
	// TypeCardDrawn records a draw from the stock or discard pile.
	TypeCardDrawn Type = "card.drawn"
	// TypeCardDiscarded records a discard ending the actor's turn.
	TypeCardDiscarded Type = "card.discarded"
	// TypePlayerKnocked records a knock declaration with melds and discard.
	TypePlayerKnocked Type = "player.knocked"
	// TypePlayerGinned records a gin declaration with melds and discard.
	TypePlayerGinned Type = "player.ginned"
	// TypeLayoffResolved records the defender's lay-off (possibly empty).
	TypeLayoffResolved Type = "layoff.resolved"
)

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Event represents an immutable event in a game stream.
type Event struct {
	// GameID is the game stream this event belongs to.
	GameID string
	// Seq is the event sequence number within the game (starts at 1).
	// Assigned by storage on append.
	Seq uint64
	// Type identifies the kind of event.
	Type Type
	// ActorID is the player who caused the event (empty for system events).
	ActorID string
	// RequestID makes command submission idempotent.
	RequestID string
	// CreatedAt is when the event occurred.
	CreatedAt time.Time
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// New builds an event envelope with a marshaled payload. Assigning Seq is
// the store's job on append.
func New(gameID string, typ Type, actorID, requestID string, payload any, now time.Time) (Event, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Event{
		GameID:      gameID,
		Type:        typ,
		ActorID:     actorID,
		RequestID:   requestID,
		CreatedAt:   now.UTC(),
		PayloadJSON: payloadJSON,
	}, nil
}

// Validate checks the envelope invariants required before append.
func (e Event) Validate() error {
	if strings.TrimSpace(e.GameID) == "" {
		return fmt.Errorf("game id is required")
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("event type is required")
	}
	if len(e.PayloadJSON) > 0 && !json.Valid(e.PayloadJSON) {
		return fmt.Errorf("payload json must be valid")
	}
	return nil
}
