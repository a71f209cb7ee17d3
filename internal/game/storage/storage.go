// Package storage defines the persistence contracts for the game service:
// the append-only event journal, snapshot storage, and telemetry capture.
package storage

import (
	"context"
	"time"

	"github.com/meldtable/meldtable/internal/game/domain/event"
	apperrors "github.com/meldtable/meldtable/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity"
// states and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// EventStore owns the append-only event journal. Sequence numbers are
// per-game, gapless, and start at 1; the journal is the sole source of truth.
type EventStore interface {
	// AppendEvents atomically appends a command's events after verifying
	// that expectedVersion matches the stream's latest sequence. A stale
	// expectation fails with STATE_VERSION_MISMATCH carrying the actual
	// version; a request id already present in the stream fails with
	// DUPLICATE_REQUEST. Either every event lands or none do.
	AppendEvents(ctx context.Context, gameID string, expectedVersion uint64, events []event.Event) ([]event.Event, error)
	// ListEvents returns up to limit events with seq > afterSeq, ordered
	// by sequence ascending.
	ListEvents(ctx context.Context, gameID string, afterSeq uint64, limit int) ([]event.Event, error)
	// ListEventsRange returns the events with fromSeq <= seq <= toSeq,
	// ordered by sequence ascending. toSeq of zero means the stream head.
	ListEventsRange(ctx context.Context, gameID string, fromSeq, toSeq uint64) ([]event.Event, error)
	// GetEventBySeq returns the event at exactly the given sequence, or
	// ErrNotFound.
	GetEventBySeq(ctx context.Context, gameID string, seq uint64) (event.Event, error)
	// GetLatestSeq returns the stream version: the sequence of the most
	// recent event, or zero for an unknown game.
	GetLatestSeq(ctx context.Context, gameID string) (uint64, error)
	// GetEventByRequestID returns the event appended for a prior submission
	// of the given request id, or ErrNotFound.
	GetEventByRequestID(ctx context.Context, gameID, requestID string) (event.Event, error)
}

// Snapshot is a cached projection at a known sequence number. It only
// shortens replay; deleting every snapshot must never lose information.
type Snapshot struct {
	GameID    string
	Seq       uint64
	StateJSON []byte
	CreatedAt time.Time
}

// SnapshotStore owns projection snapshots keyed by game and sequence.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, snapshot Snapshot) error
	// GetLatestSnapshot returns the highest-sequence snapshot for a game,
	// or ErrNotFound.
	GetLatestSnapshot(ctx context.Context, gameID string) (Snapshot, error)
	// GetSnapshotAt returns the highest-sequence snapshot with seq at or
	// below maxSeq, for point-in-time rebuilds. Missing is ErrNotFound.
	GetSnapshotAt(ctx context.Context, gameID string, maxSeq uint64) (Snapshot, error)
}

// TelemetryEvent records one operational occurrence for audit and debugging.
type TelemetryEvent struct {
	Timestamp      time.Time
	EventName      string
	Severity       string
	GameID         string
	ActorID        string
	RequestID      string
	Attributes     map[string]string
	AttributesJSON []byte
}

// TelemetryStore persists operational telemetry alongside the journal.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
	// ListTelemetryEvents returns up to limit most recent telemetry events
	// for a game, newest first.
	ListTelemetryEvents(ctx context.Context, gameID string, limit int) ([]TelemetryEvent, error)
}
