// Package memory provides an in-memory store for tests and ephemeral runs.
// It honors the same append semantics as the SQLite store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meldtable/meldtable/internal/game/domain/event"
	"github.com/meldtable/meldtable/internal/game/storage"
	apperrors "github.com/meldtable/meldtable/internal/platform/errors"
)

// Store keeps events, snapshots, and telemetry in process memory.
type Store struct {
	mu        sync.Mutex
	events    map[string][]event.Event
	snapshots map[string][]storage.Snapshot
	telemetry map[string][]storage.TelemetryEvent
}

// New creates an empty store.
func New() *Store {
	return &Store{
		events:    make(map[string][]event.Event),
		snapshots: make(map[string][]storage.Snapshot),
		telemetry: make(map[string][]storage.TelemetryEvent),
	}
}

// AppendEvents atomically appends events with optimistic concurrency.
func (s *Store) AppendEvents(ctx context.Context, gameID string, expectedVersion uint64, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(gameID) == "" {
		return nil, fmt.Errorf("game id is required")
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("at least one event is required")
	}
	for i, evt := range events {
		if evt.GameID != gameID {
			return nil, fmt.Errorf("event %d belongs to game %q, not %q", i, evt.GameID, gameID)
		}
		if err := evt.Validate(); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stream := s.events[gameID]
	actual := uint64(len(stream))
	if actual != expectedVersion {
		return nil, apperrors.WithMetadata(apperrors.CodeVersionMismatch, "stream version changed since read",
			map[string]string{
				"game_id":  gameID,
				"expected": fmt.Sprintf("%d", expectedVersion),
				"actual":   fmt.Sprintf("%d", actual),
			})
	}
	for _, evt := range events {
		if evt.RequestID == "" {
			continue
		}
		for _, stored := range stream {
			if stored.RequestID == evt.RequestID {
				return nil, apperrors.WithMetadata(apperrors.CodeDuplicateRequest, "request was already applied",
					map[string]string{
						"game_id":    gameID,
						"request_id": evt.RequestID,
						"seq":        fmt.Sprintf("%d", stored.Seq),
					})
			}
		}
	}

	appended := make([]event.Event, len(events))
	for i, evt := range events {
		evt.Seq = actual + uint64(i) + 1
		if evt.CreatedAt.IsZero() {
			evt.CreatedAt = time.Now().UTC()
		}
		appended[i] = evt
	}
	s.events[gameID] = append(stream, appended...)
	return appended, nil
}

// ListEvents returns events with seq > afterSeq ordered by sequence.
func (s *Store) ListEvents(ctx context.Context, gameID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []event.Event
	for _, evt := range s.events[gameID] {
		if evt.Seq <= afterSeq {
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ListEventsRange returns events with fromSeq <= seq <= toSeq ordered by
// sequence. toSeq of zero reads through the stream head.
func (s *Store) ListEventsRange(ctx context.Context, gameID string, fromSeq, toSeq uint64) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if toSeq != 0 && toSeq < fromSeq {
		return nil, fmt.Errorf("range end %d precedes start %d", toSeq, fromSeq)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []event.Event
	for _, evt := range s.events[gameID] {
		if evt.Seq < fromSeq {
			continue
		}
		if toSeq != 0 && evt.Seq > toSeq {
			break
		}
		out = append(out, evt)
	}
	return out, nil
}

// GetEventBySeq returns the event at exactly the given sequence.
func (s *Store) GetEventBySeq(ctx context.Context, gameID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if seq == 0 {
		return event.Event{}, fmt.Errorf("seq must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, evt := range s.events[gameID] {
		if evt.Seq == seq {
			return evt, nil
		}
	}
	return event.Event{}, storage.ErrNotFound
}

// GetLatestSeq returns the current stream version.
func (s *Store) GetLatestSeq(ctx context.Context, gameID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.events[gameID])), nil
}

// GetEventByRequestID returns the event stored for a request id.
func (s *Store) GetEventByRequestID(ctx context.Context, gameID, requestID string) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if strings.TrimSpace(requestID) == "" {
		return event.Event{}, fmt.Errorf("request id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, evt := range s.events[gameID] {
		if evt.RequestID == requestID {
			return evt, nil
		}
	}
	return event.Event{}, storage.ErrNotFound
}

// PutSnapshot stores a snapshot, replacing any prior one at the same seq.
func (s *Store) PutSnapshot(ctx context.Context, snapshot storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(snapshot.GameID) == "" {
		return fmt.Errorf("game id is required")
	}
	if snapshot.Seq == 0 {
		return fmt.Errorf("snapshot sequence is required")
	}
	if len(snapshot.StateJSON) == 0 {
		return fmt.Errorf("snapshot state is required")
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.snapshots[snapshot.GameID]
	for i := range list {
		if list[i].Seq == snapshot.Seq {
			list[i] = snapshot
			return nil
		}
	}
	list = append(list, snapshot)
	sort.Slice(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	s.snapshots[snapshot.GameID] = list
	return nil
}

// GetLatestSnapshot returns the highest-sequence snapshot for a game.
func (s *Store) GetLatestSnapshot(ctx context.Context, gameID string) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.snapshots[gameID]
	if len(list) == 0 {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	return list[len(list)-1], nil
}

// GetSnapshotAt returns the highest-sequence snapshot at or below maxSeq.
func (s *Store) GetSnapshotAt(ctx context.Context, gameID string, maxSeq uint64) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.snapshots[gameID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Seq <= maxSeq {
			return list[i], nil
		}
	}
	return storage.Snapshot{}, storage.ErrNotFound
}

// AppendTelemetryEvent records a telemetry event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(evt.EventName) == "" {
		return fmt.Errorf("event name is required")
	}
	if strings.TrimSpace(evt.Severity) == "" {
		return fmt.Errorf("severity is required")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry[evt.GameID] = append(s.telemetry[evt.GameID], evt)
	return nil
}

// ListTelemetryEvents returns the most recent telemetry events, newest first.
func (s *Store) ListTelemetryEvents(ctx context.Context, gameID string, limit int) ([]storage.TelemetryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.telemetry[gameID]
	var out []storage.TelemetryEvent
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}
