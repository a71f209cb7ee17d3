// Package command defines the command envelope submitted by players (human
// or automated) and the pure decision outcome of handling one.
package command

import (
	"errors"
	"strings"
)

var (
	// ErrGameIDRequired indicates a missing game id.
	ErrGameIDRequired = errors.New("game id is required")
	// ErrActorIDRequired indicates a missing actor id.
	ErrActorIDRequired = errors.New("actor id is required")
	// ErrRequestIDRequired indicates a missing request id.
	ErrRequestIDRequired = errors.New("request id is required")
	// ErrActionUnknown indicates an unregistered action type.
	ErrActionUnknown = errors.New("action type is unknown")
)

// ActionType identifies the player action being attempted.
type ActionType string

const (
	// ActionTakeUpcard takes the face-up card during the upcard decision.
	ActionTakeUpcard ActionType = "TAKE_UPCARD"
	// ActionPassUpcard declines the face-up card during the upcard decision.
	ActionPassUpcard ActionType = "PASS_UPCARD"
	// ActionDrawStock draws the top stock card.
	ActionDrawStock ActionType = "DRAW_STOCK"
	// ActionDrawDiscard draws the top discard card.
	ActionDrawDiscard ActionType = "DRAW_DISCARD"
	// ActionDiscard discards a card and passes the turn.
	ActionDiscard ActionType = "DISCARD_CARD"
	// ActionKnock ends the round with deadwood at or below the threshold.
	ActionKnock ActionType = "KNOCK"
	// ActionGin ends the round with zero deadwood.
	ActionGin ActionType = "GIN"
	// ActionLayOff resolves the defender's lay-off (possibly empty).
	ActionLayOff ActionType = "LAY_OFF"
)

// IsValid reports whether the action type is registered.
func (t ActionType) IsValid() bool {
	switch t {
	case ActionTakeUpcard, ActionPassUpcard, ActionDrawStock, ActionDrawDiscard,
		ActionDiscard, ActionKnock, ActionGin, ActionLayOff:
		return true
	}
	return false
}

// LayoffSpec names one defender card and the knocker meld it extends.
type LayoffSpec struct {
	CardID    string `json:"card_id"`
	MeldIndex int    `json:"meld_index"`
}

// Action is the raw player action before validation. Card references are by
// stable card id; the decider resolves them against the current projection.
type Action struct {
	Type ActionType `json:"type"`
	// CardID names the discard for DISCARD_CARD, KNOCK, and GIN.
	CardID string `json:"card_id,omitempty"`
	// MeldCardIDs declares melds for KNOCK and GIN.
	MeldCardIDs [][]string `json:"meld_card_ids,omitempty"`
	// Layoffs lists lay-off attachments for LAY_OFF.
	Layoffs []LayoffSpec `json:"layoffs,omitempty"`
}

// Command captures the canonical command envelope.
type Command struct {
	GameID    string
	ActorID   string
	RequestID string
	Action    Action
}

// Validate normalizes and checks the envelope.
func (c Command) Validate() (Command, error) {
	c.GameID = strings.TrimSpace(c.GameID)
	c.ActorID = strings.TrimSpace(c.ActorID)
	c.RequestID = strings.TrimSpace(c.RequestID)
	if c.GameID == "" {
		return Command{}, ErrGameIDRequired
	}
	if c.ActorID == "" {
		return Command{}, ErrActorIDRequired
	}
	if c.RequestID == "" {
		return Command{}, ErrRequestIDRequired
	}
	if !c.Action.Type.IsValid() {
		return Command{}, ErrActionUnknown
	}
	return c, nil
}
