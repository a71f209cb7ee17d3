package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/meldtable/meldtable/internal/game/domain/event"
	"github.com/meldtable/meldtable/internal/game/storage"
	apperrors "github.com/meldtable/meldtable/internal/platform/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "game.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func testEvent(t *testing.T, gameID, requestID string) event.Event {
	t.Helper()
	evt, err := event.New(gameID, event.TypeCardDrawn, "alice", requestID,
		map[string]string{"source": "stock"}, time.Now())
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return evt
}

func TestAppendEventsAssignsSequence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	appended, err := store.AppendEvents(ctx, "game-1", 0, []event.Event{
		testEvent(t, "game-1", "req-1"),
		testEvent(t, "game-1", ""),
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if appended[0].Seq != 1 || appended[1].Seq != 2 {
		t.Fatalf("seqs = %d, %d, want 1, 2", appended[0].Seq, appended[1].Seq)
	}

	seq, err := store.GetLatestSeq(ctx, "game-1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if seq != 2 {
		t.Fatalf("latest seq = %d, want 2", seq)
	}
}

func TestAppendEventsVersionMismatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvents(ctx, "game-1", 0, []event.Event{testEvent(t, "game-1", "req-1")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	_, err := store.AppendEvents(ctx, "game-1", 0, []event.Event{testEvent(t, "game-1", "req-2")})
	if apperrors.CodeOf(err) != apperrors.CodeVersionMismatch {
		t.Fatalf("error code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeVersionMismatch)
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Metadata["actual"] != "1" {
		t.Fatalf("metadata = %+v, want actual version 1", appErr)
	}

	// The stale append must not have landed.
	seq, err := store.GetLatestSeq(ctx, "game-1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if seq != 1 {
		t.Fatalf("latest seq = %d, want 1", seq)
	}
}

func TestVersionMismatchReportsStreamHead(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvents(ctx, "game-1", 0, []event.Event{testEvent(t, "game-1", "req-1")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := store.AppendEvents(ctx, "game-1", 1, []event.Event{
		testEvent(t, "game-1", "req-2"),
		testEvent(t, "game-1", ""),
		testEvent(t, "game-1", ""),
	}); err != nil {
		t.Fatalf("append batch: %v", err)
	}

	// The conflict payload must carry the real head, not expected plus
	// one, so a stale writer can reload from the right version.
	_, err := store.AppendEvents(ctx, "game-1", 1, []event.Event{testEvent(t, "game-1", "req-3")})
	if apperrors.CodeOf(err) != apperrors.CodeVersionMismatch {
		t.Fatalf("error code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeVersionMismatch)
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Metadata["actual"] != "4" {
		t.Fatalf("metadata = %+v, want actual version 4", appErr)
	}
}

func TestAppendEventsDuplicateRequest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvents(ctx, "game-1", 0, []event.Event{testEvent(t, "game-1", "req-1")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	_, err := store.AppendEvents(ctx, "game-1", 1, []event.Event{testEvent(t, "game-1", "req-1")})
	if apperrors.CodeOf(err) != apperrors.CodeDuplicateRequest {
		t.Fatalf("error code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeDuplicateRequest)
	}

	stored, err := store.GetEventByRequestID(ctx, "game-1", "req-1")
	if err != nil {
		t.Fatalf("get by request id: %v", err)
	}
	if stored.Seq != 1 {
		t.Fatalf("stored seq = %d, want 1", stored.Seq)
	}
}

func TestAppendEventsIsAtomic(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvents(ctx, "game-1", 0, []event.Event{testEvent(t, "game-1", "req-1")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// Second event replays req-1, so the whole batch must be rejected.
	_, err := store.AppendEvents(ctx, "game-1", 1, []event.Event{
		testEvent(t, "game-1", "req-2"),
		testEvent(t, "game-1", "req-1"),
	})
	if apperrors.CodeOf(err) != apperrors.CodeDuplicateRequest {
		t.Fatalf("error code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeDuplicateRequest)
	}
	seq, err := store.GetLatestSeq(ctx, "game-1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if seq != 1 {
		t.Fatalf("latest seq = %d, want 1", seq)
	}
}

func TestListEventsPaging(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var toAppend []event.Event
	for i := 0; i < 5; i++ {
		toAppend = append(toAppend, testEvent(t, "game-1", ""))
	}
	if _, err := store.AppendEvents(ctx, "game-1", 0, toAppend); err != nil {
		t.Fatalf("append: %v", err)
	}

	page, err := store.ListEvents(ctx, "game-1", 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].Seq != 3 || page[1].Seq != 4 {
		t.Fatalf("page = %+v, want seqs 3 and 4", page)
	}

	empty, err := store.ListEvents(ctx, "game-1", 5, 10)
	if err != nil {
		t.Fatalf("list tail: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("tail = %+v, want empty", empty)
	}
}

func TestListEventsRange(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var toAppend []event.Event
	for i := 0; i < 5; i++ {
		toAppend = append(toAppend, testEvent(t, "game-1", ""))
	}
	if _, err := store.AppendEvents(ctx, "game-1", 0, toAppend); err != nil {
		t.Fatalf("append: %v", err)
	}

	bounded, err := store.ListEventsRange(ctx, "game-1", 2, 4)
	if err != nil {
		t.Fatalf("bounded range: %v", err)
	}
	if len(bounded) != 3 || bounded[0].Seq != 2 || bounded[2].Seq != 4 {
		t.Fatalf("bounded = %+v, want seqs 2 through 4", bounded)
	}

	// A zero end reads to the stream head.
	tail, err := store.ListEventsRange(ctx, "game-1", 3, 0)
	if err != nil {
		t.Fatalf("open range: %v", err)
	}
	if len(tail) != 3 || tail[0].Seq != 3 || tail[2].Seq != 5 {
		t.Fatalf("tail = %+v, want seqs 3 through 5", tail)
	}

	if _, err := store.ListEventsRange(ctx, "game-1", 4, 2); err == nil {
		t.Fatal("inverted range should fail")
	}
}

func TestGetEventBySeq(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvents(ctx, "game-1", 0, []event.Event{
		testEvent(t, "game-1", "req-1"),
		testEvent(t, "game-1", ""),
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.GetEventBySeq(ctx, "game-1", 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Seq != 1 || got.RequestID != "req-1" {
		t.Fatalf("event = %+v, want seq 1 with request req-1", got)
	}

	if _, err := store.GetEventBySeq(ctx, "game-1", 9); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing seq error = %v, want ErrNotFound", err)
	}
}

func TestEventStreamsAreIsolated(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AppendEvents(ctx, "game-1", 0, []event.Event{testEvent(t, "game-1", "req-1")}); err != nil {
		t.Fatalf("append game-1: %v", err)
	}
	// The same request id in another stream is a fresh request.
	if _, err := store.AppendEvents(ctx, "game-2", 0, []event.Event{testEvent(t, "game-2", "req-1")}); err != nil {
		t.Fatalf("append game-2: %v", err)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, seq := range []uint64{10, 25, 40} {
		err := store.PutSnapshot(ctx, storage.Snapshot{
			GameID:    "game-1",
			Seq:       seq,
			StateJSON: []byte(`{"round_number":1}`),
		})
		if err != nil {
			t.Fatalf("put snapshot %d: %v", seq, err)
		}
	}

	latest, err := store.GetLatestSnapshot(ctx, "game-1")
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if latest.Seq != 40 {
		t.Fatalf("latest seq = %d, want 40", latest.Seq)
	}

	at, err := store.GetSnapshotAt(ctx, "game-1", 30)
	if err != nil {
		t.Fatalf("snapshot at: %v", err)
	}
	if at.Seq != 25 {
		t.Fatalf("snapshot at 30 = %d, want 25", at.Seq)
	}

	if _, err := store.GetSnapshotAt(ctx, "game-1", 5); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("snapshot at 5: %v, want ErrNotFound", err)
	}
	if _, err := store.GetLatestSnapshot(ctx, "game-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("unknown game snapshot: %v, want ErrNotFound", err)
	}
}

func TestTelemetryRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.AppendTelemetryEvent(ctx, storage.TelemetryEvent{
		EventName:  "command.accepted",
		Severity:   "info",
		GameID:     "game-1",
		ActorID:    "alice",
		RequestID:  "req-1",
		Attributes: map[string]string{"action": "DRAW_STOCK"},
	})
	if err != nil {
		t.Fatalf("append telemetry: %v", err)
	}

	events, err := store.ListTelemetryEvents(ctx, "game-1", 10)
	if err != nil {
		t.Fatalf("list telemetry: %v", err)
	}
	if len(events) != 1 || events[0].EventName != "command.accepted" {
		t.Fatalf("events = %+v, want one command.accepted", events)
	}
	if len(events[0].AttributesJSON) == 0 {
		t.Fatal("attributes json should be persisted")
	}
}
