// Package projection rebuilds game state from the event journal, optionally
// accelerated by snapshots. The journal is the sole source of truth; every
// projection this package returns is re-derivable from events alone.
package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meldtable/meldtable/internal/game/domain/rules"
	"github.com/meldtable/meldtable/internal/game/storage"
	apperrors "github.com/meldtable/meldtable/internal/platform/errors"
	"github.com/meldtable/meldtable/internal/platform/metrics"
)

// defaultPageSize bounds one journal read during replay.
const defaultPageSize = 200

// Engine folds journal events into game state.
type Engine struct {
	// Events reads the append-only journal.
	Events storage.EventStore
	// Snapshots accelerates replay; optional.
	Snapshots storage.SnapshotStore
	// Metrics observes replay cost; optional.
	Metrics *metrics.Metrics
	// PageSize overrides the journal read page size when positive.
	PageSize int
}

func (e *Engine) pageSize() int {
	if e.PageSize > 0 {
		return e.PageSize
	}
	return defaultPageSize
}

// Latest returns the current projection and stream version. It starts from
// the newest snapshot when one exists and folds only the tail.
func (e *Engine) Latest(ctx context.Context, gameID string) (rules.GameState, uint64, error) {
	base := rules.GameState{}
	var from uint64

	if e.Snapshots != nil {
		snapshot, err := e.Snapshots.GetLatestSnapshot(ctx, gameID)
		switch {
		case err == nil:
			if err := json.Unmarshal(snapshot.StateJSON, &base); err != nil {
				return rules.GameState{}, 0, apperrors.Wrap(apperrors.CodeStreamCorrupted,
					fmt.Sprintf("snapshot at seq %d is undecodable", snapshot.Seq), err)
			}
			from = snapshot.Seq
		case errors.Is(err, storage.ErrNotFound):
			// Full replay from the creation event.
		default:
			return rules.GameState{}, 0, fmt.Errorf("load snapshot: %w", err)
		}
	}

	return e.RebuildFromTail(ctx, gameID, base, from)
}

// RebuildState rebuilds the projection from the full event list, ignoring
// snapshots. A zero upToVersion replays everything; a positive one stops at
// that sequence for point-in-time and audit queries.
func (e *Engine) RebuildState(ctx context.Context, gameID string, upToVersion uint64) (rules.GameState, uint64, error) {
	return e.rebuild(ctx, gameID, rules.GameState{}, 0, upToVersion)
}

// RebuildFromTail folds events after fromVersion onto an already-held
// projection, avoiding a full replay.
func (e *Engine) RebuildFromTail(ctx context.Context, gameID string, base rules.GameState, fromVersion uint64) (rules.GameState, uint64, error) {
	return e.rebuild(ctx, gameID, base, fromVersion, 0)
}

func (e *Engine) rebuild(ctx context.Context, gameID string, state rules.GameState, fromVersion, upToVersion uint64) (rules.GameState, uint64, error) {
	if e.Events == nil {
		return rules.GameState{}, 0, fmt.Errorf("event store is required")
	}

	start := time.Now()
	version := fromVersion
	replayed := 0

	for {
		page, err := e.Events.ListEvents(ctx, gameID, version, e.pageSize())
		if err != nil {
			return rules.GameState{}, 0, fmt.Errorf("list events: %w", err)
		}
		if len(page) == 0 {
			break
		}
		done := false
		for _, evt := range page {
			if upToVersion > 0 && evt.Seq > upToVersion {
				done = true
				break
			}
			if evt.Seq != version+1 {
				return rules.GameState{}, 0, streamGap(gameID, version+1, evt.Seq)
			}
			next, err := rules.Fold(state, evt)
			if err != nil {
				return rules.GameState{}, 0, apperrors.Wrap(apperrors.CodeStreamCorrupted,
					fmt.Sprintf("event at seq %d does not apply", evt.Seq), err)
			}
			state = next
			version = evt.Seq
			replayed++
		}
		if done || len(page) < e.pageSize() {
			break
		}
	}

	if e.Metrics != nil {
		e.Metrics.ObserveReplay(time.Since(start).Seconds(), replayed)
	}
	if version == 0 {
		return rules.GameState{}, 0, storage.ErrNotFound
	}
	return state, version, nil
}

// ValidateEventStream checks sequence contiguity and timestamp monotonicity
// for a game stream. A violation is fatal for that stream: callers must halt
// automated processing on it.
func (e *Engine) ValidateEventStream(ctx context.Context, gameID string) error {
	if e.Events == nil {
		return fmt.Errorf("event store is required")
	}

	var version uint64
	var lastCreated time.Time
	for {
		page, err := e.Events.ListEvents(ctx, gameID, version, e.pageSize())
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		for _, evt := range page {
			if evt.Seq != version+1 {
				return streamGap(gameID, version+1, evt.Seq)
			}
			if evt.CreatedAt.Before(lastCreated) {
				return apperrors.WithMetadata(apperrors.CodeStreamCorrupted,
					"event timestamps run backwards", map[string]string{
						"game_id": gameID,
						"seq":     fmt.Sprintf("%d", evt.Seq),
					})
			}
			version = evt.Seq
			lastCreated = evt.CreatedAt
		}
		if len(page) < e.pageSize() {
			return nil
		}
	}
}

func streamGap(gameID string, want, got uint64) error {
	return apperrors.WithMetadata(apperrors.CodeStreamCorrupted,
		"event stream has a sequence gap", map[string]string{
			"game_id": gameID,
			"want":    fmt.Sprintf("%d", want),
			"got":     fmt.Sprintf("%d", got),
		})
}
