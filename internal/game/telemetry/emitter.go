// Package telemetry records operational events alongside the game journal.
// Telemetry is observability, not gameplay: it lives in its own table, is
// never replayed, and losing it never affects game state.
package telemetry

import (
	"context"
	"time"

	"github.com/meldtable/meldtable/internal/game/storage"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt storage.TelemetryEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	return e.store.AppendTelemetryEvent(ctx, evt)
}

// EmitGameEvent records an event scoped to one game with the given severity
// and attributes.
func (e *Emitter) EmitGameEvent(ctx context.Context, name string, severity Severity, gameID, actorID, requestID string, attrs map[string]string) error {
	return e.Emit(ctx, storage.TelemetryEvent{
		EventName:  name,
		Severity:   string(severity),
		GameID:     gameID,
		ActorID:    actorID,
		RequestID:  requestID,
		Attributes: attrs,
	})
}
