// Package snapshot decides when a projection is worth persisting. Snapshots
// only shorten replay; skipping or losing one never loses information.
package snapshot

import (
	"github.com/meldtable/meldtable/internal/game/domain/event"
)

// DefaultInterval is the event count between periodic snapshots.
const DefaultInterval = 25

// Policy decides whether an append warrants a snapshot.
type Policy struct {
	// Interval is the periodic snapshot spacing; DefaultInterval when zero.
	Interval uint64
}

func (p Policy) interval() uint64 {
	if p.Interval > 0 {
		return p.Interval
	}
	return DefaultInterval
}

// ShouldSnapshot reports whether the stream advancing from oldVersion to
// newVersion with the given events should be snapshotted. Round and game
// boundaries always snapshot; otherwise one is due each time the stream
// crosses an interval multiple.
func (p Policy) ShouldSnapshot(oldVersion, newVersion uint64, events []event.Event) bool {
	for _, evt := range events {
		switch evt.Type {
		case event.TypeRoundEnded, event.TypeGameEnded:
			return true
		}
	}
	return oldVersion/p.interval() != newVersion/p.interval()
}
