// Package history renders journal events as human-readable turn summaries.
// Descriptions are derived from recorded payloads only, never recomputed
// from state, so history stays stable across replays.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/meldtable/meldtable/internal/game/domain/event"
)

// Entry is one journal event with a reader-facing description. Hidden
// information stays hidden: draw entries name the source pile, not the card,
// unless the draw was from the open discard pile.
type Entry struct {
	Seq         uint64     `json:"seq"`
	Type        event.Type `json:"type"`
	ActorID     string     `json:"actor_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Description string     `json:"description"`
}

// Describe renders one event. Unknown event types fail rather than being
// silently skipped, since a gap in history hides a gap in the stream.
func Describe(evt event.Event) (Entry, error) {
	description, err := describe(evt)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Seq:         evt.Seq,
		Type:        evt.Type,
		ActorID:     evt.ActorID,
		CreatedAt:   evt.CreatedAt,
		Description: description,
	}, nil
}

// DescribeAll renders a stream slice in order.
func DescribeAll(events []event.Event) ([]Entry, error) {
	entries := make([]Entry, 0, len(events))
	for _, evt := range events {
		entry, err := Describe(evt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func describe(evt event.Event) (string, error) {
	switch evt.Type {
	case event.TypeGameStarted:
		var p event.GameStartedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", evt.Type, err)
		}
		return fmt.Sprintf("game started, %s deals", p.DealerID), nil
	case event.TypeRoundStarted:
		var p event.RoundStartedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", evt.Type, err)
		}
		return fmt.Sprintf("round %d started, %s deals", p.RoundNumber, p.DealerID), nil
	case event.TypeUpcardTaken:
		var p event.UpcardTakenPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", evt.Type, err)
		}
		return fmt.Sprintf("%s takes the %s upcard", evt.ActorID, p.Card.Label()), nil
	case event.TypeUpcardPassed:
		var p event.UpcardPassedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", evt.Type, err)
		}
		if p.StockForced {
			return fmt.Sprintf("%s passes the upcard, %s must draw from the stock", evt.ActorID, p.NextPlayerID), nil
		}
		return fmt.Sprintf("%s passes the upcard", evt.ActorID), nil
	case event.TypeCardDrawn:
		var p event.CardDrawnPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", evt.Type, err)
		}
		if p.Source == event.DrawSourceDiscard {
			return fmt.Sprintf("%s draws the %s from the discard pile", evt.ActorID, p.Card.Label()), nil
		}
		return fmt.Sprintf("%s draws from the stock", evt.ActorID), nil
	case event.TypeCardDiscarded:
		var p event.CardDiscardedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", evt.Type, err)
		}
		return fmt.Sprintf("%s discards the %s", evt.ActorID, p.Card.Label()), nil
	case event.TypePlayerKnocked:
		var p event.KnockPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", evt.Type, err)
		}
		return fmt.Sprintf("%s knocks with %d deadwood, discarding the %s", evt.ActorID, p.Deadwood, p.Discard.Label()), nil
	case event.TypePlayerGinned:
		var p event.KnockPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", evt.Type, err)
		}
		return fmt.Sprintf("%s goes gin, discarding the %s", evt.ActorID, p.Discard.Label()), nil
	case event.TypeLayoffResolved:
		var p event.LayoffResolvedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", evt.Type, err)
		}
		switch len(p.Layoffs) {
		case 0:
			return fmt.Sprintf("%s lays off nothing, %d deadwood remains", evt.ActorID, p.DefenderDeadwood), nil
		case 1:
			return fmt.Sprintf("%s lays off 1 card, %d deadwood remains", evt.ActorID, p.DefenderDeadwood), nil
		default:
			return fmt.Sprintf("%s lays off %d cards, %d deadwood remains", evt.ActorID, len(p.Layoffs), p.DefenderDeadwood), nil
		}
	case event.TypeRoundEnded:
		var p event.RoundEndedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", evt.Type, err)
		}
		switch p.Result {
		case event.RoundResultDeadHand:
			return fmt.Sprintf("round %d is a dead hand, nobody scores", p.RoundNumber), nil
		case event.RoundResultGin:
			return fmt.Sprintf("round %d goes to %s by gin for %d points", p.RoundNumber, p.WinnerID, p.Points), nil
		case event.RoundResultUndercut:
			return fmt.Sprintf("round %d goes to %s by undercut for %d points", p.RoundNumber, p.WinnerID, p.Points), nil
		default:
			return fmt.Sprintf("round %d goes to %s for %d points", p.RoundNumber, p.WinnerID, p.Points), nil
		}
	case event.TypeGameEnded:
		var p event.GameEndedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &p); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", evt.Type, err)
		}
		return fmt.Sprintf("%s wins the game", p.WinnerID), nil
	}
	return "", fmt.Errorf("unknown event type %q at seq %d", evt.Type, evt.Seq)
}
