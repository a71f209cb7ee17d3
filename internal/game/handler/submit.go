package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/meldtable/meldtable/internal/game/domain/command"
	"github.com/meldtable/meldtable/internal/game/domain/event"
	"github.com/meldtable/meldtable/internal/game/domain/rules"
	"github.com/meldtable/meldtable/internal/game/storage"
	"github.com/meldtable/meldtable/internal/game/telemetry"
	apperrors "github.com/meldtable/meldtable/internal/platform/errors"
	"github.com/meldtable/meldtable/internal/platform/id"
)

// Result is the outcome of a successful write. Duplicate marks retries that
// were resolved from a prior append instead of a new one.
type Result struct {
	State     rules.GameState
	Version   uint64
	Events    []event.Event
	Duplicate bool
}

// SubmitAction validates and applies one player action against the game at
// expectedVersion. A retried request id returns the already-applied outcome.
func (s *Service) SubmitAction(ctx context.Context, gameID, actorID string, action command.Action, requestID string, expectedVersion uint64) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "game.SubmitAction")
	defer span.End()
	span.SetAttributes(
		attribute.String("game.id", gameID),
		attribute.String("game.actor_id", actorID),
		attribute.String("game.action", string(action.Type)),
	)

	result, err := s.submitAction(ctx, gameID, actorID, action, requestID, expectedVersion)
	if err != nil {
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		return Result{}, err
	}
	return result, nil
}

func (s *Service) submitAction(ctx context.Context, gameID, actorID string, action command.Action, requestID string, expectedVersion uint64) (Result, error) {
	cmd, err := command.Command{
		GameID:    gameID,
		ActorID:   actorID,
		RequestID: requestID,
		Action:    action,
	}.Validate()
	if err != nil {
		return Result{}, invalidCommand(err)
	}

	// A replayed request id resolves to the original outcome before any
	// state is loaded or validated.
	if result, ok, err := s.resolveDuplicate(ctx, cmd.GameID, cmd.RequestID); err != nil {
		return Result{}, err
	} else if ok {
		return result, nil
	}

	state, version, err := s.loadState(ctx, cmd.GameID)
	if err != nil {
		return Result{}, err
	}
	if expectedVersion != version {
		s.metrics.IncVersionConflicts()
		return Result{}, versionMismatch(cmd.GameID, expectedVersion, version)
	}

	decision := rules.Decide(state, cmd, s.clock().UTC(), s.deal)
	if len(decision.Rejections) > 0 {
		rej := decision.Rejections[0]
		s.emitRejected(ctx, cmd, rej)
		return Result{}, apperrors.WithMetadata(apperrors.Code(rej.Code), rej.Message, map[string]string{
			"game_id": cmd.GameID,
			"action":  string(cmd.Action.Type),
		})
	}

	appended, err := s.events.AppendEvents(ctx, cmd.GameID, version, decision.Events)
	if err != nil {
		switch apperrors.CodeOf(err) {
		case apperrors.CodeDuplicateRequest:
			// Lost a race against our own retry. Resolve it as a success.
			if result, ok, rerr := s.resolveDuplicate(ctx, cmd.GameID, cmd.RequestID); rerr == nil && ok {
				return result, nil
			}
			return Result{}, err
		case apperrors.CodeVersionMismatch:
			s.metrics.IncVersionConflicts()
			return Result{}, err
		}
		return Result{}, err
	}

	newState, newVersion, err := foldAll(state, appended)
	if err != nil {
		return Result{}, err
	}

	s.afterAppend(ctx, newState, version, newVersion, appended, state.CurrentPlayerID)
	s.emitApplied(ctx, cmd, appended, newVersion)

	return Result{State: newState, Version: newVersion, Events: appended}, nil
}

// resolveDuplicate reports whether the request id was already applied and,
// if so, returns the state as of that append, not the live projection. A
// retry must see the outcome its original submission produced even when
// later commands have moved the game on.
func (s *Service) resolveDuplicate(ctx context.Context, gameID, requestID string) (Result, bool, error) {
	prior, err := s.events.GetEventByRequestID(ctx, gameID, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, false, nil
		}
		return Result{}, false, err
	}

	s.metrics.IncDuplicateRequests()
	batchEnd, err := s.decisionBatchEnd(ctx, gameID, prior.Seq)
	if err != nil {
		return Result{}, false, err
	}
	state, version, err := s.projection.RebuildState(ctx, gameID, batchEnd)
	if err != nil {
		return Result{}, false, err
	}
	if err := s.emitter.EmitGameEvent(ctx, "action.duplicate", telemetry.SeverityInfo,
		gameID, prior.ActorID, requestID, map[string]string{
			"applied_seq": fmt.Sprintf("%d", prior.Seq),
		}); err != nil {
		logTelemetryFailure(gameID, err)
	}
	return Result{State: state, Version: version, Duplicate: true}, true, nil
}

// decisionBatchEnd finds the last sequence of the decision that started at
// firstSeq. Only the first event of a decision carries the request id, so
// the batch runs until the next event with a request id or the stream head.
func (s *Service) decisionBatchEnd(ctx context.Context, gameID string, firstSeq uint64) (uint64, error) {
	end := firstSeq
	for {
		page, err := s.events.ListEvents(ctx, gameID, end, 16)
		if err != nil {
			return 0, err
		}
		for _, evt := range page {
			if evt.RequestID != "" {
				return end, nil
			}
			end = evt.Seq
		}
		if len(page) < 16 {
			return end, nil
		}
	}
}

// CreateGameParams configures a new game.
type CreateGameParams struct {
	// GameID is optional; a fresh id is generated when empty.
	GameID    string
	Seats     []event.Seat
	DealerID  string
	RequestID string
}

// CreateGame starts a two-player game with a fresh deal and returns its
// initial projection.
func (s *Service) CreateGame(ctx context.Context, params CreateGameParams) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "game.CreateGame")
	defer span.End()

	result, err := s.createGame(ctx, params)
	if err != nil {
		span.SetStatus(codes.Error, string(apperrors.CodeOf(err)))
		return Result{}, err
	}
	span.SetAttributes(attribute.String("game.id", result.State.ID))
	return result, nil
}

func (s *Service) createGame(ctx context.Context, params CreateGameParams) (Result, error) {
	if len(params.Seats) != 2 {
		return Result{}, apperrors.New(apperrors.CodePlayersRequired, "exactly two players are required")
	}
	if strings.TrimSpace(params.RequestID) == "" {
		return Result{}, apperrors.New(apperrors.CodeRequestIDRequired, "request id is required")
	}

	gameID := strings.TrimSpace(params.GameID)
	if gameID == "" {
		generated, err := id.NewID()
		if err != nil {
			return Result{}, apperrors.Wrap(apperrors.CodeInternal, "generate game id", err)
		}
		gameID = generated
	} else if seq, err := s.events.GetLatestSeq(ctx, gameID); err != nil {
		return Result{}, err
	} else if seq > 0 {
		return Result{}, apperrors.WithMetadata(apperrors.CodeGameExists, "game already exists", map[string]string{
			"game_id": gameID,
		})
	}

	dealerID := strings.TrimSpace(params.DealerID)
	if dealerID == "" {
		dealerID = params.Seats[0].PlayerID
	}

	evt, err := rules.NewGameEvent(gameID, params.Seats, dealerID, strings.TrimSpace(params.RequestID), s.clock().UTC(), s.deal)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodePlayersRequired, "build game start event", err)
	}

	appended, err := s.events.AppendEvents(ctx, gameID, 0, []event.Event{evt})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeVersionMismatch {
			return Result{}, apperrors.WithMetadata(apperrors.CodeGameExists, "game already exists", map[string]string{
				"game_id": gameID,
			})
		}
		return Result{}, err
	}

	state, version, err := foldAll(rules.GameState{}, appended)
	if err != nil {
		return Result{}, err
	}

	s.afterAppend(ctx, state, 0, version, appended, "")
	if err := s.emitter.EmitGameEvent(ctx, "game.created", telemetry.SeverityInfo,
		gameID, "", params.RequestID, nil); err != nil {
		logTelemetryFailure(gameID, err)
	}

	return Result{State: state, Version: version, Events: appended}, nil
}

func (s *Service) emitApplied(ctx context.Context, cmd command.Command, appended []event.Event, version uint64) {
	err := s.emitter.EmitGameEvent(ctx, "action.applied", telemetry.SeverityInfo,
		cmd.GameID, cmd.ActorID, cmd.RequestID, map[string]string{
			"action":  string(cmd.Action.Type),
			"events":  fmt.Sprintf("%d", len(appended)),
			"version": fmt.Sprintf("%d", version),
		})
	if err != nil {
		logTelemetryFailure(cmd.GameID, err)
	}
}

func (s *Service) emitRejected(ctx context.Context, cmd command.Command, rej command.Rejection) {
	err := s.emitter.EmitGameEvent(ctx, "action.rejected", telemetry.SeverityWarn,
		cmd.GameID, cmd.ActorID, cmd.RequestID, map[string]string{
			"action": string(cmd.Action.Type),
			"code":   rej.Code,
		})
	if err != nil {
		logTelemetryFailure(cmd.GameID, err)
	}
}

func invalidCommand(err error) error {
	switch {
	case errors.Is(err, command.ErrGameIDRequired):
		return apperrors.Wrap(apperrors.CodeGameIDRequired, err.Error(), err)
	case errors.Is(err, command.ErrRequestIDRequired):
		return apperrors.Wrap(apperrors.CodeRequestIDRequired, err.Error(), err)
	case errors.Is(err, command.ErrActorIDRequired):
		return apperrors.Wrap(apperrors.CodePlayerUnknown, err.Error(), err)
	case errors.Is(err, command.ErrActionUnknown):
		return apperrors.Wrap(apperrors.CodeActionUnknown, err.Error(), err)
	}
	return apperrors.Wrap(apperrors.CodeUnknown, err.Error(), err)
}

func versionMismatch(gameID string, expected, actual uint64) error {
	return apperrors.WithMetadata(apperrors.CodeVersionMismatch, "state version mismatch", map[string]string{
		"game_id":  gameID,
		"expected": fmt.Sprintf("%d", expected),
		"actual":   fmt.Sprintf("%d", actual),
	})
}
