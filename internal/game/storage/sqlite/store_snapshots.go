package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meldtable/meldtable/internal/game/storage"
)

// PutSnapshot stores a snapshot, replacing any prior snapshot at the same
// sequence.
func (s *Store) PutSnapshot(ctx context.Context, snapshot storage.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
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

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO snapshots (game_id, seq, state_json, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (game_id, seq) DO UPDATE SET
    state_json = excluded.state_json,
    created_at = excluded.created_at`,
		snapshot.GameID, int64(snapshot.Seq), snapshot.StateJSON, toMillis(snapshot.CreatedAt))
	if err != nil {
		return fmt.Errorf("put snapshot: %w", err)
	}
	return nil
}

// GetLatestSnapshot retrieves the most recent snapshot for a game.
func (s *Store) GetLatestSnapshot(ctx context.Context, gameID string) (storage.Snapshot, error) {
	return s.getSnapshot(ctx, gameID, `
SELECT game_id, seq, state_json, created_at
FROM snapshots
WHERE game_id = ?
ORDER BY seq DESC
LIMIT 1`, gameID)
}

// GetSnapshotAt retrieves the most recent snapshot at or below maxSeq.
func (s *Store) GetSnapshotAt(ctx context.Context, gameID string, maxSeq uint64) (storage.Snapshot, error) {
	return s.getSnapshot(ctx, gameID, `
SELECT game_id, seq, state_json, created_at
FROM snapshots
WHERE game_id = ? AND seq <= ?
ORDER BY seq DESC
LIMIT 1`, gameID, int64(maxSeq))
}

func (s *Store) getSnapshot(ctx context.Context, gameID, query string, args ...any) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Snapshot{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(gameID) == "" {
		return storage.Snapshot{}, fmt.Errorf("game id is required")
	}

	var snapshot storage.Snapshot
	var seq, createdAt int64
	err := s.sqlDB.QueryRowContext(ctx, query, args...).
		Scan(&snapshot.GameID, &seq, &snapshot.StateJSON, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Snapshot{}, storage.ErrNotFound
		}
		return storage.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}
	snapshot.Seq = uint64(seq)
	snapshot.CreatedAt = fromMillis(createdAt)
	return snapshot, nil
}
