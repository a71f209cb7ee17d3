package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meldtable/meldtable/internal/game/domain/event"
	"github.com/meldtable/meldtable/internal/game/storage"
	apperrors "github.com/meldtable/meldtable/internal/platform/errors"
)

// AppendEvents atomically appends a command's events with optimistic
// concurrency. The expected version must equal the stream's latest sequence;
// sequence numbers are allocated contiguously from there.
func (s *Store) AppendEvents(ctx context.Context, gameID string, expectedVersion uint64, events []event.Event) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
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

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var actual uint64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM events WHERE game_id = ?", gameID,
	).Scan(&actual); err != nil {
		return nil, fmt.Errorf("load stream version: %w", err)
	}
	if actual != expectedVersion {
		return nil, versionMismatch(gameID, expectedVersion, actual)
	}

	// A replayed request id means this command already landed; the caller
	// reports the original result instead of appending twice.
	for _, evt := range events {
		if evt.RequestID == "" {
			continue
		}
		var seq uint64
		err := tx.QueryRowContext(ctx,
			"SELECT seq FROM events WHERE game_id = ? AND request_id = ?", gameID, evt.RequestID,
		).Scan(&seq)
		if err == nil {
			return nil, duplicateRequest(gameID, evt.RequestID, seq)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("check request id: %w", err)
		}
	}

	appended := make([]event.Event, len(events))
	for i, evt := range events {
		evt.Seq = actual + uint64(i) + 1
		if evt.CreatedAt.IsZero() {
			evt.CreatedAt = time.Now().UTC()
		}
		evt.CreatedAt = evt.CreatedAt.UTC().Truncate(time.Millisecond)

		if _, err := tx.ExecContext(ctx, `
INSERT INTO events (game_id, seq, event_type, actor_id, request_id, created_at, payload_json)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			evt.GameID, int64(evt.Seq), string(evt.Type), evt.ActorID, evt.RequestID,
			toMillis(evt.CreatedAt), evt.PayloadJSON,
		); err != nil {
			if isConstraintError(err) {
				// A concurrent writer won the race after our version
				// check. Re-read the head on a fresh connection so the
				// conflict metadata reports the stream's real version.
				head, headErr := s.GetLatestSeq(ctx, gameID)
				if headErr != nil {
					head = actual
				}
				return nil, versionMismatch(gameID, expectedVersion, head)
			}
			return nil, fmt.Errorf("append event: %w", err)
		}
		appended[i] = evt
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return appended, nil
}

// ListEvents returns events ordered by sequence ascending.
func (s *Store) ListEvents(ctx context.Context, gameID string, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(gameID) == "" {
		return nil, fmt.Errorf("game id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT game_id, seq, event_type, actor_id, request_id, created_at, payload_json
FROM events
WHERE game_id = ? AND seq > ?
ORDER BY seq ASC
LIMIT ?`, gameID, int64(afterSeq), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// ListEventsRange returns events with fromSeq <= seq <= toSeq ordered by
// sequence ascending. toSeq of zero reads through the stream head.
func (s *Store) ListEventsRange(ctx context.Context, gameID string, fromSeq, toSeq uint64) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(gameID) == "" {
		return nil, fmt.Errorf("game id is required")
	}
	if toSeq != 0 && toSeq < fromSeq {
		return nil, fmt.Errorf("range end %d precedes start %d", toSeq, fromSeq)
	}

	query := `
SELECT game_id, seq, event_type, actor_id, request_id, created_at, payload_json
FROM events
WHERE game_id = ? AND seq >= ?`
	args := []any{gameID, int64(fromSeq)}
	if toSeq != 0 {
		query += " AND seq <= ?"
		args = append(args, int64(toSeq))
	}
	query += " ORDER BY seq ASC"

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events range: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// GetEventBySeq returns the event at exactly the given sequence.
func (s *Store) GetEventBySeq(ctx context.Context, gameID string, seq uint64) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(gameID) == "" {
		return event.Event{}, fmt.Errorf("game id is required")
	}
	if seq == 0 {
		return event.Event{}, fmt.Errorf("seq must be greater than zero")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT game_id, seq, event_type, actor_id, request_id, created_at, payload_json
FROM events
WHERE game_id = ? AND seq = ?`, gameID, int64(seq))
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, err
	}
	return evt, nil
}

// GetLatestSeq returns the latest event sequence number for a game.
func (s *Store) GetLatestSeq(ctx context.Context, gameID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(gameID) == "" {
		return 0, fmt.Errorf("game id is required")
	}

	var seq uint64
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM events WHERE game_id = ?", gameID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get latest seq: %w", err)
	}
	return seq, nil
}

// GetEventByRequestID returns the event previously appended for a request id.
func (s *Store) GetEventByRequestID(ctx context.Context, gameID, requestID string) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(gameID) == "" {
		return event.Event{}, fmt.Errorf("game id is required")
	}
	if strings.TrimSpace(requestID) == "" {
		return event.Event{}, fmt.Errorf("request id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT game_id, seq, event_type, actor_id, request_id, created_at, payload_json
FROM events
WHERE game_id = ? AND request_id = ?`, gameID, requestID)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, storage.ErrNotFound
		}
		return event.Event{}, err
	}
	return evt, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var evt event.Event
	var eventType string
	var seq, createdAt int64
	if err := row.Scan(&evt.GameID, &seq, &eventType, &evt.ActorID, &evt.RequestID, &createdAt, &evt.PayloadJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, err
		}
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	evt.Seq = uint64(seq)
	evt.Type = event.Type(eventType)
	evt.CreatedAt = fromMillis(createdAt)
	return evt, nil
}

func versionMismatch(gameID string, expected, actual uint64) error {
	return apperrors.WithMetadata(apperrors.CodeVersionMismatch, "stream version changed since read",
		map[string]string{
			"game_id":  gameID,
			"expected": fmt.Sprintf("%d", expected),
			"actual":   fmt.Sprintf("%d", actual),
		})
}

func duplicateRequest(gameID, requestID string, seq uint64) error {
	return apperrors.WithMetadata(apperrors.CodeDuplicateRequest, "request was already applied",
		map[string]string{
			"game_id":    gameID,
			"request_id": requestID,
			"seq":        fmt.Sprintf("%d", seq),
		})
}
