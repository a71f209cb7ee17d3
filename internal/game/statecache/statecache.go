// Package statecache defines a keyed cache for rebuilt game state. The cache
// is an acceleration layer only: every entry can be reconstructed from the
// event journal, so loss or eviction is never an error condition for callers.
package statecache

import (
	"context"

	apperrors "github.com/meldtable/meldtable/internal/platform/errors"
)

// ErrMiss reports that no entry is cached for the game. A miss is the normal
// cold path, callers fall back to the projection engine.
var ErrMiss = apperrors.New(apperrors.CodeNotFound, "state not cached")

// Entry is one cached projection keyed by game id. Version is the event
// sequence the state was folded up to; stale entries are detected by
// comparing it against the journal head.
type Entry struct {
	Version   uint64 `json:"version"`
	StateJSON []byte `json:"state_json"`
}

// Cache is a rebuildable keyed store for projected state. Implementations
// must be safe for concurrent use.
type Cache interface {
	// Get returns the cached entry for the game, or ErrMiss.
	Get(ctx context.Context, gameID string) (Entry, error)

	// Put stores the entry, replacing any older one for the game.
	Put(ctx context.Context, gameID string, entry Entry) error

	// Invalidate drops the entry for the game. Missing entries are not an
	// error.
	Invalidate(ctx context.Context, gameID string) error

	// Close releases any resources held by the cache.
	Close() error
}
