// Package handler implements the command and query surface of the game
// engine. It owns the write path: load the projection, decide, append with
// optimistic concurrency, then fan out snapshots, cache updates, telemetry,
// and change notifications.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/meldtable/meldtable/internal/game/domain/event"
	"github.com/meldtable/meldtable/internal/game/domain/rules"
	"github.com/meldtable/meldtable/internal/game/notify"
	"github.com/meldtable/meldtable/internal/game/projection"
	"github.com/meldtable/meldtable/internal/game/snapshot"
	"github.com/meldtable/meldtable/internal/game/statecache"
	"github.com/meldtable/meldtable/internal/game/storage"
	"github.com/meldtable/meldtable/internal/game/telemetry"
	apperrors "github.com/meldtable/meldtable/internal/platform/errors"
	"github.com/meldtable/meldtable/internal/platform/metrics"
	"github.com/meldtable/meldtable/internal/platform/random"
)

const tracerName = "github.com/meldtable/meldtable/internal/game/handler"

// Service handles game commands and queries. The event store is the single
// source of truth; snapshots and the state cache are rebuildable
// accelerations and their failures never fail a command.
type Service struct {
	events     storage.EventStore
	snapshots  storage.SnapshotStore
	projection *projection.Engine
	cache      statecache.Cache
	policy     snapshot.Policy
	metrics    *metrics.Metrics
	emitter    *telemetry.Emitter
	notifier   notify.Notifier
	deal       rules.DealFunc
	clock      func() time.Time
	tracer     trace.Tracer

	// aiSignal is invoked after an append leaves an automated player to
	// act. Wired to the scheduler's QueueAIMove.
	aiSignal func(gameID string)
}

// Config collects the service dependencies. Events and Projection are
// required; everything else degrades to a safe default.
type Config struct {
	Events     storage.EventStore
	Snapshots  storage.SnapshotStore
	Projection *projection.Engine
	Cache      statecache.Cache
	Policy     snapshot.Policy
	Metrics    *metrics.Metrics
	Emitter    *telemetry.Emitter
	Notifier   notify.Notifier
	Deal       rules.DealFunc
	Clock      func() time.Time
	AISignal   func(gameID string)
}

// New builds a Service from the config.
func New(cfg Config) (*Service, error) {
	if cfg.Events == nil {
		return nil, errors.New("event store is required")
	}
	if cfg.Projection == nil {
		return nil, errors.New("projection engine is required")
	}
	s := &Service{
		events:     cfg.Events,
		snapshots:  cfg.Snapshots,
		projection: cfg.Projection,
		cache:      cfg.Cache,
		policy:     cfg.Policy,
		metrics:    cfg.Metrics,
		emitter:    cfg.Emitter,
		notifier:   cfg.Notifier,
		deal:       cfg.Deal,
		clock:      cfg.Clock,
		aiSignal:   cfg.AISignal,
		tracer:     otel.Tracer(tracerName),
	}
	if s.notifier == nil {
		s.notifier = notify.Nop()
	}
	if s.deal == nil {
		s.deal = randomDeal
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

// randomDeal deals with a fresh cryptographic seed per round.
func randomDeal(playerIDs []string) event.Deal {
	seed, err := random.NewSeed()
	if err != nil {
		seed = time.Now().UnixNano()
	}
	return rules.GenerateDeal(seed, playerIDs)
}

// loadState returns the current projection, using the state cache to skip
// replaying the already-folded prefix when possible.
func (s *Service) loadState(ctx context.Context, gameID string) (rules.GameState, uint64, error) {
	if s.cache != nil {
		entry, err := s.cache.Get(ctx, gameID)
		if err == nil {
			var state rules.GameState
			if err := json.Unmarshal(entry.StateJSON, &state); err == nil {
				return s.projection.RebuildFromTail(ctx, gameID, state, entry.Version)
			}
			// Undecodable entries are dropped, never trusted.
			if err := s.cache.Invalidate(ctx, gameID); err != nil {
				log.Printf("invalidate cached state for %s: %v", gameID, err)
			}
		} else if !errors.Is(err, statecache.ErrMiss) {
			log.Printf("state cache get %s: %v", gameID, err)
		}
	}
	return s.projection.Latest(ctx, gameID)
}

// storeCache refreshes the cached projection. Cache failures are logged and
// swallowed; the journal remains authoritative.
func (s *Service) storeCache(ctx context.Context, gameID string, state rules.GameState, version uint64) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		log.Printf("encode state for cache %s: %v", gameID, err)
		return
	}
	if err := s.cache.Put(ctx, gameID, statecache.Entry{Version: version, StateJSON: data}); err != nil {
		log.Printf("state cache put %s: %v", gameID, err)
	}
}

// maybeSnapshot persists a snapshot when policy calls for one. Snapshot
// failures are logged and counted, never propagated.
func (s *Service) maybeSnapshot(ctx context.Context, state rules.GameState, oldVersion, newVersion uint64, appended []event.Event) {
	if s.snapshots == nil || !s.policy.ShouldSnapshot(oldVersion, newVersion, appended) {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		s.metrics.IncSnapshotFailures()
		log.Printf("encode snapshot for %s at %d: %v", state.ID, newVersion, err)
		return
	}
	snap := storage.Snapshot{
		GameID:    state.ID,
		Seq:       newVersion,
		StateJSON: data,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.snapshots.PutSnapshot(ctx, snap); err != nil {
		s.metrics.IncSnapshotFailures()
		log.Printf("put snapshot for %s at %d: %v", state.ID, newVersion, err)
		return
	}
	s.metrics.IncSnapshotsWritten()
}

// afterAppend runs the post-commit fan-out shared by every write path.
// previousTurn is the player who was to act before the append.
func (s *Service) afterAppend(ctx context.Context, state rules.GameState, oldVersion, newVersion uint64, appended []event.Event, previousTurn string) {
	s.metrics.IncEventsAppended(len(appended))
	s.maybeSnapshot(ctx, state, oldVersion, newVersion, appended)
	s.storeCache(ctx, state.ID, state, newVersion)
	s.notify(ctx, state, newVersion, previousTurn)
	s.signalAutomation(state)
}

// notify emits the change notifications for one append. Notifications are
// hints; their delivery never affects the committed write.
func (s *Service) notify(ctx context.Context, state rules.GameState, version uint64, previousTurn string) {
	base := notify.Notification{
		GameID:          state.ID,
		Version:         version,
		CurrentPlayerID: state.CurrentPlayerID,
		WinnerID:        state.WinnerID,
	}

	base.Kind = notify.KindStateUpdated
	s.notifier.Notify(ctx, base)
	if state.CurrentPlayerID != "" && state.CurrentPlayerID != previousTurn {
		base.Kind = notify.KindTurnChanged
		s.notifier.Notify(ctx, base)
	}
	if state.Status == rules.StatusCompleted {
		base.Kind = notify.KindGameEnded
		s.notifier.Notify(ctx, base)
	}
}

// signalAutomation wakes the AI scheduler when an automated player is next
// to act.
func (s *Service) signalAutomation(state rules.GameState) {
	if s.aiSignal == nil || state.Status != rules.StatusInProgress {
		return
	}
	current := state.Player(state.CurrentPlayerID)
	if current != nil && current.Automated {
		s.aiSignal(state.ID)
	}
}

func logTelemetryFailure(gameID string, err error) {
	log.Printf("telemetry emit for %s: %v", gameID, err)
}

// foldAll applies appended events onto the state in order.
func foldAll(state rules.GameState, events []event.Event) (rules.GameState, uint64, error) {
	version := uint64(0)
	for _, evt := range events {
		next, err := rules.Fold(state, evt)
		if err != nil {
			return rules.GameState{}, 0, apperrors.Wrap(apperrors.CodeInternal, "fold appended event", err)
		}
		state = next
		version = evt.Seq
	}
	return state, version, nil
}
