package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/meldtable/meldtable/internal/game/domain/command"
	"github.com/meldtable/meldtable/internal/game/domain/event"
	"github.com/meldtable/meldtable/internal/game/domain/rules"
	"github.com/meldtable/meldtable/internal/game/notify"
	"github.com/meldtable/meldtable/internal/game/projection"
	"github.com/meldtable/meldtable/internal/game/statecache"
	"github.com/meldtable/meldtable/internal/game/storage/memory"
	apperrors "github.com/meldtable/meldtable/internal/platform/errors"
)

var testNow = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

type harness struct {
	service       *Service
	store         *memory.Store
	cache         *statecache.MemoryCache
	aiSignals     []string
	notifications []notify.Notification
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store: memory.New(),
		cache: statecache.NewMemoryCache(0),
	}
	engine := &projection.Engine{Events: h.store, Snapshots: h.store}
	var dealSeq int64
	service, err := New(Config{
		Events:     h.store,
		Snapshots:  h.store,
		Projection: engine,
		Cache:      h.cache,
		Deal: func(playerIDs []string) event.Deal {
			dealSeq++
			return rules.GenerateDeal(42+dealSeq, playerIDs)
		},
		Clock:    func() time.Time { return testNow },
		AISignal: func(gameID string) { h.aiSignals = append(h.aiSignals, gameID) },
		Notifier: notify.Func(func(ctx context.Context, n notify.Notification) {
			h.notifications = append(h.notifications, n)
		}),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.service = service
	return h
}

func twoSeats(automated bool) []event.Seat {
	return []event.Seat{
		{PlayerID: "alice", Username: "Alice"},
		{PlayerID: "bob", Username: "Bob", Automated: automated},
	}
}

func (h *harness) createGame(t *testing.T) Result {
	t.Helper()

	result, err := h.service.CreateGame(context.Background(), CreateGameParams{
		GameID:    "game-1",
		Seats:     twoSeats(false),
		DealerID:  "bob",
		RequestID: "req-create",
	})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return result
}

func TestCreateGameStartsFirstRound(t *testing.T) {
	h := newHarness(t)

	result := h.createGame(t)
	if result.Version != 1 {
		t.Fatalf("version = %d, want 1", result.Version)
	}
	if result.State.Status != rules.StatusInProgress {
		t.Fatalf("status = %s", result.State.Status)
	}
	if result.State.Phase != rules.PhaseUpcardDecision {
		t.Fatalf("phase = %s", result.State.Phase)
	}
	// The non-dealer decides on the upcard first.
	if result.State.CurrentPlayerID != "alice" {
		t.Fatalf("current player = %s", result.State.CurrentPlayerID)
	}
	if got := result.State.CardCount(); got != 52 {
		t.Fatalf("card count = %d, want 52", got)
	}
}

func TestCreateGameValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.service.CreateGame(ctx, CreateGameParams{
		Seats:     []event.Seat{{PlayerID: "alice"}},
		RequestID: "req-1",
	})
	if apperrors.CodeOf(err) != apperrors.CodePlayersRequired {
		t.Fatalf("one seat error = %v", err)
	}

	_, err = h.service.CreateGame(ctx, CreateGameParams{Seats: twoSeats(false)})
	if apperrors.CodeOf(err) != apperrors.CodeRequestIDRequired {
		t.Fatalf("missing request id error = %v", err)
	}

	h.createGame(t)
	_, err = h.service.CreateGame(ctx, CreateGameParams{
		GameID:    "game-1",
		Seats:     twoSeats(false),
		RequestID: "req-2",
	})
	if apperrors.CodeOf(err) != apperrors.CodeGameExists {
		t.Fatalf("existing game error = %v", err)
	}
}

func TestSubmitActionAdvancesTurn(t *testing.T) {
	h := newHarness(t)
	created := h.createGame(t)

	result, err := h.service.SubmitAction(context.Background(), "game-1", "alice",
		command.Action{Type: command.ActionPassUpcard}, "req-pass", created.Version)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Version != created.Version+1 {
		t.Fatalf("version = %d, want %d", result.Version, created.Version+1)
	}
	if result.State.CurrentPlayerID != "bob" {
		t.Fatalf("current player = %s", result.State.CurrentPlayerID)
	}
}

func TestSubmitActionIdempotent(t *testing.T) {
	h := newHarness(t)
	created := h.createGame(t)
	ctx := context.Background()

	first, err := h.service.SubmitAction(ctx, "game-1", "alice",
		command.Action{Type: command.ActionPassUpcard}, "req-pass", created.Version)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if first.Duplicate {
		t.Fatal("first submit marked duplicate")
	}

	// The retry carries the original expectedVersion and must succeed
	// without appending anything.
	retry, err := h.service.SubmitAction(ctx, "game-1", "alice",
		command.Action{Type: command.ActionPassUpcard}, "req-pass", created.Version)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !retry.Duplicate {
		t.Fatal("retry not marked duplicate")
	}
	if retry.Version != first.Version {
		t.Fatalf("retry version = %d, want %d", retry.Version, first.Version)
	}

	head, err := h.store.GetLatestSeq(ctx, "game-1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if head != first.Version {
		t.Fatalf("stream head = %d, want %d", head, first.Version)
	}
}

func TestDuplicateResolvesToOriginalOutcome(t *testing.T) {
	h := newHarness(t)
	created := h.createGame(t)
	ctx := context.Background()

	first, err := h.service.SubmitAction(ctx, "game-1", "alice",
		command.Action{Type: command.ActionPassUpcard}, "req-a", created.Version)
	if err != nil {
		t.Fatalf("alice pass: %v", err)
	}
	second, err := h.service.SubmitAction(ctx, "game-1", "bob",
		command.Action{Type: command.ActionPassUpcard}, "req-b", first.Version)
	if err != nil {
		t.Fatalf("bob pass: %v", err)
	}

	// The retry of the first command must report the state its own append
	// produced, not the head the second command moved the game to.
	retry, err := h.service.SubmitAction(ctx, "game-1", "alice",
		command.Action{Type: command.ActionPassUpcard}, "req-a", created.Version)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !retry.Duplicate {
		t.Fatal("retry not marked duplicate")
	}
	if retry.Version != first.Version {
		t.Fatalf("retry version = %d, want %d", retry.Version, first.Version)
	}
	if retry.State.CurrentPlayerID != "bob" {
		t.Fatalf("retry current player = %s, want bob", retry.State.CurrentPlayerID)
	}

	head, err := h.store.GetLatestSeq(ctx, "game-1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if head != second.Version {
		t.Fatalf("stream head = %d, want %d", head, second.Version)
	}
}

func TestSubmitActionVersionConflict(t *testing.T) {
	h := newHarness(t)
	created := h.createGame(t)
	ctx := context.Background()

	if _, err := h.service.SubmitAction(ctx, "game-1", "alice",
		command.Action{Type: command.ActionPassUpcard}, "req-1", created.Version); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// A second writer still holding the old version loses.
	_, err := h.service.SubmitAction(ctx, "game-1", "bob",
		command.Action{Type: command.ActionPassUpcard}, "req-2", created.Version)
	if apperrors.CodeOf(err) != apperrors.CodeVersionMismatch {
		t.Fatalf("stale submit error = %v", err)
	}
}

func TestSubmitActionRejectsDomainViolations(t *testing.T) {
	h := newHarness(t)
	created := h.createGame(t)
	ctx := context.Background()

	_, err := h.service.SubmitAction(ctx, "game-1", "bob",
		command.Action{Type: command.ActionPassUpcard}, "req-1", created.Version)
	if apperrors.CodeOf(err) != apperrors.CodeOutOfTurn {
		t.Fatalf("out of turn error = %v", err)
	}

	_, err = h.service.SubmitAction(ctx, "game-1", "alice",
		command.Action{Type: command.ActionType("TELEPORT")}, "req-2", created.Version)
	if apperrors.CodeOf(err) != apperrors.CodeActionUnknown {
		t.Fatalf("unknown action error = %v", err)
	}

	// Rejections append nothing.
	head, err := h.store.GetLatestSeq(ctx, "game-1")
	if err != nil {
		t.Fatalf("latest seq: %v", err)
	}
	if head != created.Version {
		t.Fatalf("stream head = %d, want %d", head, created.Version)
	}
}

func TestGetStateHidesOpponentHand(t *testing.T) {
	h := newHarness(t)
	h.createGame(t)
	ctx := context.Background()

	gv, version, err := h.service.GetState(ctx, "game-1", "alice", false)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if version != 1 {
		t.Fatalf("version = %d, want 1", version)
	}
	for _, p := range gv.Players {
		if p.ID == "alice" && p.Hand == nil {
			t.Fatal("viewer's own hand hidden")
		}
		if p.ID == "bob" && p.Hand != nil {
			t.Fatal("opponent hand exposed")
		}
	}

	data, err := json.Marshal(gv)
	if err != nil {
		t.Fatalf("marshal view: %v", err)
	}
	if strings.Contains(string(data), `"stock"`) {
		t.Fatal("stock contents exposed in view")
	}

	// The spectator flag hides every hand, even the named viewer's.
	sv, _, err := h.service.GetState(ctx, "game-1", "alice", true)
	if err != nil {
		t.Fatalf("spectator state: %v", err)
	}
	for _, p := range sv.Players {
		if p.Hand != nil {
			t.Fatalf("spectator sees %s's hand", p.ID)
		}
	}
}

func TestGetHistoryDescribesStream(t *testing.T) {
	h := newHarness(t)
	created := h.createGame(t)
	ctx := context.Background()

	if _, err := h.service.SubmitAction(ctx, "game-1", "alice",
		command.Action{Type: command.ActionPassUpcard}, "req-1", created.Version); err != nil {
		t.Fatalf("submit: %v", err)
	}

	entries, err := h.service.GetHistory(ctx, "game-1", 0, 0)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Seq != 1 || !strings.Contains(entries[0].Description, "game started") {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if !strings.Contains(entries[1].Description, "passes the upcard") {
		t.Fatalf("second entry = %+v", entries[1])
	}
}

func TestCacheIsRefreshedAndUntrusted(t *testing.T) {
	h := newHarness(t)
	created := h.createGame(t)
	ctx := context.Background()

	entry, err := h.cache.Get(ctx, "game-1")
	if err != nil {
		t.Fatalf("cache get after create: %v", err)
	}
	if entry.Version != created.Version {
		t.Fatalf("cached version = %d, want %d", entry.Version, created.Version)
	}

	// A corrupt cache entry must be dropped, not trusted.
	if err := h.cache.Put(ctx, "game-1", statecache.Entry{Version: 1, StateJSON: []byte("{")}); err != nil {
		t.Fatalf("poison cache: %v", err)
	}
	state, version, err := h.service.loadState(ctx, "game-1")
	if err != nil {
		t.Fatalf("load with poisoned cache: %v", err)
	}
	if version != created.Version || state.ID != "game-1" {
		t.Fatalf("reloaded state = %s@%d", state.ID, version)
	}
}

func TestNotificationsCarryKinds(t *testing.T) {
	h := newHarness(t)
	created := h.createGame(t)
	ctx := context.Background()

	// Creation updates state and hands the turn to alice.
	kinds := notificationKinds(h.notifications)
	if len(kinds) != 2 || kinds[0] != notify.KindStateUpdated || kinds[1] != notify.KindTurnChanged {
		t.Fatalf("create notifications = %v", kinds)
	}

	h.notifications = nil
	if _, err := h.service.SubmitAction(ctx, "game-1", "alice",
		command.Action{Type: command.ActionPassUpcard}, "req-pass", created.Version); err != nil {
		t.Fatalf("submit: %v", err)
	}
	kinds = notificationKinds(h.notifications)
	if len(kinds) != 2 || kinds[1] != notify.KindTurnChanged {
		t.Fatalf("pass notifications = %v", kinds)
	}
	if h.notifications[1].CurrentPlayerID != "bob" {
		t.Fatalf("turn notification for %s", h.notifications[1].CurrentPlayerID)
	}
}

func notificationKinds(ns []notify.Notification) []notify.Kind {
	kinds := make([]notify.Kind, 0, len(ns))
	for _, n := range ns {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

func TestAutomatedOpponentIsSignaled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.service.CreateGame(ctx, CreateGameParams{
		GameID:    "game-1",
		Seats:     twoSeats(true),
		DealerID:  "alice",
		RequestID: "req-create",
	})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	// Bob is the automated non-dealer and acts first.
	if len(h.aiSignals) != 1 || h.aiSignals[0] != "game-1" {
		t.Fatalf("ai signals = %v", h.aiSignals)
	}
}

func TestFullGamePlaysToCompletion(t *testing.T) {
	h := newHarness(t)
	created := h.createGame(t)
	ctx := context.Background()

	state := created.State
	version := created.Version
	for step := 0; state.Status == rules.StatusInProgress; step++ {
		if step > 2000 {
			t.Fatal("game did not converge")
		}
		action, ok := rules.Suggest(state)
		if !ok {
			t.Fatalf("no suggestion in phase %s", state.Phase)
		}
		result, err := h.service.SubmitAction(ctx, "game-1", state.CurrentPlayerID,
			action, fmt.Sprintf("req-%d", step), version)
		if err != nil {
			t.Fatalf("step %d (%s): %v", step, action.Type, err)
		}
		state = result.State
		version = result.Version
		if got := state.CardCount(); got != 52 {
			t.Fatalf("card count = %d after step %d", got, step)
		}
	}

	if state.WinnerID == "" {
		t.Fatal("finished game has no winner")
	}

	// The journal replays to the exact same terminal state.
	replayed, replayVersion, err := h.service.projection.RebuildState(ctx, "game-1", 0)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if replayVersion != version {
		t.Fatalf("replay version = %d, want %d", replayVersion, version)
	}
	if replayed.WinnerID != state.WinnerID || replayed.Phase != state.Phase {
		t.Fatalf("replay diverged: %s/%s vs %s/%s",
			replayed.WinnerID, replayed.Phase, state.WinnerID, state.Phase)
	}

	// Round boundaries forced snapshots along the way.
	snap, err := h.store.GetLatestSnapshot(ctx, "game-1")
	if err != nil {
		t.Fatalf("latest snapshot: %v", err)
	}
	if snap.Seq == 0 {
		t.Fatal("no snapshot written")
	}

	entries, err := h.service.GetHistory(ctx, "game-1", 0, 0)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if uint64(len(entries)) != version {
		t.Fatalf("history entries = %d, want %d", len(entries), version)
	}
}

func TestSubmitActionUnknownGame(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.SubmitAction(context.Background(), "missing", "alice",
		command.Action{Type: command.ActionPassUpcard}, "req-1", 1)
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("unknown game error = %v", err)
	}
}
