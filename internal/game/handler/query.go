package handler

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/meldtable/meldtable/internal/game/domain/event"
	"github.com/meldtable/meldtable/internal/game/domain/rules"
	"github.com/meldtable/meldtable/internal/game/history"
	"github.com/meldtable/meldtable/internal/game/view"
	apperrors "github.com/meldtable/meldtable/internal/platform/errors"
)

// GetState returns the game as seen by viewerID. Opponent hands and the
// stock are hidden; spectator forces the no-hands view regardless of
// viewerID, and an unknown viewer gets it anyway.
func (s *Service) GetState(ctx context.Context, gameID, viewerID string, spectator bool) (view.GameView, uint64, error) {
	ctx, span := s.tracer.Start(ctx, "game.GetState")
	defer span.End()
	span.SetAttributes(attribute.String("game.id", gameID))

	state, version, err := s.loadState(ctx, gameID)
	if err != nil {
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		return view.GameView{}, 0, err
	}
	if spectator {
		viewerID = ""
	}
	return view.ForViewer(state, viewerID), version, nil
}

// ProjectedState returns the unfiltered projection and stream version.
// Internal callers only; the player-facing read path is GetState.
func (s *Service) ProjectedState(ctx context.Context, gameID string) (rules.GameState, uint64, error) {
	return s.loadState(ctx, gameID)
}

// GetTurnState returns whose turn it is and which actions are legal.
func (s *Service) GetTurnState(ctx context.Context, gameID string) (rules.TurnState, uint64, error) {
	state, version, err := s.loadState(ctx, gameID)
	if err != nil {
		return rules.TurnState{}, 0, err
	}
	return rules.DeriveTurnState(state), version, nil
}

// GetHistory returns human-readable descriptions of the game's events in
// stream order. afterSeq and limit page through long games; limit <= 0
// returns everything after afterSeq.
func (s *Service) GetHistory(ctx context.Context, gameID string, afterSeq uint64, limit int) ([]history.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "game.GetHistory")
	defer span.End()
	span.SetAttributes(attribute.String("game.id", gameID))

	var events []event.Event
	if limit > 0 {
		page, err := s.events.ListEvents(ctx, gameID, afterSeq, limit)
		if err != nil {
			span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
			return nil, err
		}
		events = page
	} else {
		const pageSize = 200
		for {
			page, err := s.events.ListEvents(ctx, gameID, afterSeq, pageSize)
			if err != nil {
				span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
				return nil, err
			}
			if len(page) == 0 {
				break
			}
			events = append(events, page...)
			afterSeq = page[len(page)-1].Seq
		}
	}

	entries, err := history.DescribeAll(events)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStreamCorrupted, "describe event stream", err)
	}
	return entries, nil
}
