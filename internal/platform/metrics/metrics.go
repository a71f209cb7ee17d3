// Package metrics exposes prometheus instrumentation for the game engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "meldtable"

// Metrics holds the collectors recorded by the command path, replay engine,
// and AI scheduler. A nil *Metrics is a valid no-op receiver so callers do
// not need to guard every observation site.
type Metrics struct {
	EventsAppended    prometheus.Counter
	VersionConflicts  prometheus.Counter
	DuplicateRequests prometheus.Counter
	SnapshotsWritten  prometheus.Counter
	SnapshotFailures  prometheus.Counter
	AIMoves           prometheus.Counter
	AIMoveFailures    prometheus.Counter
	ReplayDuration    prometheus.Histogram
	ReplayedEvents    prometheus.Counter
}

// New registers the engine collectors on the provided registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Events durably appended to game streams.",
		}),
		VersionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflicts_total",
			Help:      "Appends rejected by the optimistic concurrency check.",
		}),
		DuplicateRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_requests_total",
			Help:      "Submissions resolved idempotently from a prior append.",
		}),
		SnapshotsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_written_total",
			Help:      "State snapshots captured by policy.",
		}),
		SnapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_failures_total",
			Help:      "Snapshot captures that failed and were swallowed.",
		}),
		AIMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_moves_total",
			Help:      "Moves submitted by the automated opponent.",
		}),
		AIMoveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_move_failures_total",
			Help:      "Automated move submissions that failed.",
		}),
		ReplayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replay_duration_seconds",
			Help:      "Wall time spent rebuilding projections.",
			Buckets:   prometheus.DefBuckets,
		}),
		ReplayedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replayed_events_total",
			Help:      "Events folded during projection rebuilds.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.EventsAppended,
			m.VersionConflicts,
			m.DuplicateRequests,
			m.SnapshotsWritten,
			m.SnapshotFailures,
			m.AIMoves,
			m.AIMoveFailures,
			m.ReplayDuration,
			m.ReplayedEvents,
		)
	}
	return m
}

// IncEventsAppended records n appended events.
func (m *Metrics) IncEventsAppended(n int) {
	if m == nil {
		return
	}
	m.EventsAppended.Add(float64(n))
}

// IncVersionConflicts records one concurrency rejection.
func (m *Metrics) IncVersionConflicts() {
	if m == nil {
		return
	}
	m.VersionConflicts.Inc()
}

// IncDuplicateRequests records one idempotent replay.
func (m *Metrics) IncDuplicateRequests() {
	if m == nil {
		return
	}
	m.DuplicateRequests.Inc()
}

// IncSnapshotsWritten records one snapshot capture.
func (m *Metrics) IncSnapshotsWritten() {
	if m == nil {
		return
	}
	m.SnapshotsWritten.Inc()
}

// IncSnapshotFailures records one swallowed snapshot failure.
func (m *Metrics) IncSnapshotFailures() {
	if m == nil {
		return
	}
	m.SnapshotFailures.Inc()
}

// IncAIMoves records one automated move submission.
func (m *Metrics) IncAIMoves() {
	if m == nil {
		return
	}
	m.AIMoves.Inc()
}

// IncAIMoveFailures records one failed automated move.
func (m *Metrics) IncAIMoveFailures() {
	if m == nil {
		return
	}
	m.AIMoveFailures.Inc()
}

// ObserveReplay records a rebuild duration and the number of folded events.
func (m *Metrics) ObserveReplay(seconds float64, events int) {
	if m == nil {
		return
	}
	m.ReplayDuration.Observe(seconds)
	m.ReplayedEvents.Add(float64(events))
}
