// Package scheduler drives the automated opponent. Moves are computed from
// the same projection and submitted through the same command path as human
// actions, so automation gets no private rules.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/meldtable/meldtable/internal/game/domain/command"
	"github.com/meldtable/meldtable/internal/game/domain/rules"
	"github.com/meldtable/meldtable/internal/game/handler"
	"github.com/meldtable/meldtable/internal/game/telemetry"
	apperrors "github.com/meldtable/meldtable/internal/platform/errors"
	"github.com/meldtable/meldtable/internal/platform/id"
	"github.com/meldtable/meldtable/internal/platform/metrics"
)

// DefaultMaxMoves bounds one automation burst. A full round is far shorter;
// the cap only guards against a livelocked suggestion loop.
const DefaultMaxMoves = 128

// GameService is the slice of the command handler the scheduler needs.
type GameService interface {
	ProjectedState(ctx context.Context, gameID string) (rules.GameState, uint64, error)
	SubmitAction(ctx context.Context, gameID, actorID string, action command.Action, requestID string, expectedVersion uint64) (handler.Result, error)
}

// Scheduler runs at most one automation loop per game. QueueAIMove while a
// loop is in flight is a no-op; the running loop keeps playing until a human
// is to act. Loop errors are logged and counted, never propagated.
type Scheduler struct {
	service  GameService
	metrics  *metrics.Metrics
	emitter  *telemetry.Emitter
	pacing   time.Duration
	maxMoves int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool
	rerun    map[string]bool
	halted   map[string]bool
}

// Config collects the scheduler dependencies.
type Config struct {
	Service GameService
	Metrics *metrics.Metrics
	Emitter *telemetry.Emitter
	// Pacing delays each automated move so games stay watchable. Zero
	// submits immediately.
	Pacing time.Duration
	// MaxMoves bounds one burst; DefaultMaxMoves when zero.
	MaxMoves int
}

// New builds a Scheduler. Call Close to stop in-flight loops.
func New(cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	maxMoves := cfg.MaxMoves
	if maxMoves <= 0 {
		maxMoves = DefaultMaxMoves
	}
	return &Scheduler{
		service:  cfg.Service,
		metrics:  cfg.Metrics,
		emitter:  cfg.Emitter,
		pacing:   cfg.Pacing,
		maxMoves: maxMoves,
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]bool),
		rerun:    make(map[string]bool),
		halted:   make(map[string]bool),
	}
}

// QueueAIMove starts an automation loop for the game unless one is already
// in flight or automation was halted for the game. It reports whether a new
// loop was started. A queue against an in-flight loop marks the game for a
// rerun, so a signal landing between the loop's last state check and its
// exit is not lost.
func (s *Scheduler) QueueAIMove(gameID string) bool {
	s.mu.Lock()
	if s.halted[gameID] {
		s.mu.Unlock()
		return false
	}
	if s.inflight[gameID] {
		s.rerun[gameID] = true
		s.mu.Unlock()
		return false
	}
	s.inflight[gameID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			s.run(gameID)
			s.mu.Lock()
			if !s.rerun[gameID] || s.halted[gameID] {
				delete(s.rerun, gameID)
				delete(s.inflight, gameID)
				s.mu.Unlock()
				return
			}
			delete(s.rerun, gameID)
			s.mu.Unlock()
		}
	}()
	return true
}

// Close stops all loops and waits for them to exit.
func (s *Scheduler) Close() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every in-flight loop has exited. Test helper.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// run plays automated moves until a human is to act, the game ends, or an
// unrecoverable error halts automation for the game.
func (s *Scheduler) run(gameID string) {
	for move := 0; move < s.maxMoves; move++ {
		if err := s.ctx.Err(); err != nil {
			return
		}

		state, version, err := s.service.ProjectedState(s.ctx, gameID)
		if err != nil {
			s.fail(gameID, "load state", err)
			return
		}
		if state.Status != rules.StatusInProgress {
			return
		}
		actor := state.Player(state.CurrentPlayerID)
		if actor == nil || !actor.Automated {
			return
		}

		action, ok := rules.Suggest(state)
		if !ok {
			return
		}

		if s.pacing > 0 {
			timer := time.NewTimer(s.pacing)
			select {
			case <-s.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		requestID, err := id.NewID()
		if err != nil {
			s.fail(gameID, "generate request id", err)
			return
		}
		if _, err := s.service.SubmitAction(s.ctx, gameID, actor.ID, action, requestID, version); err != nil {
			switch apperrors.CodeOf(err) {
			case apperrors.CodeVersionMismatch:
				// Someone moved underneath us; reload and continue.
				continue
			case apperrors.CodeStreamCorrupted:
				s.halt(gameID, err)
				return
			}
			s.fail(gameID, string(action.Type), err)
			return
		}
		s.metrics.IncAIMoves()
	}
	log.Printf("automation for %s stopped after %d moves", gameID, s.maxMoves)
}

// fail logs and counts a loop error without propagating it.
func (s *Scheduler) fail(gameID, op string, err error) {
	s.metrics.IncAIMoveFailures()
	log.Printf("automation for %s: %s: %v", gameID, op, err)
	if emitErr := s.emitter.EmitGameEvent(context.Background(), "ai.move_failed", telemetry.SeverityError,
		gameID, "", "", map[string]string{"op": op, "code": string(apperrors.CodeOf(err))}); emitErr != nil {
		log.Printf("telemetry emit for %s: %v", gameID, emitErr)
	}
}

// halt disables automation for a game whose stream can no longer be trusted.
func (s *Scheduler) halt(gameID string, err error) {
	s.mu.Lock()
	s.halted[gameID] = true
	s.mu.Unlock()

	s.metrics.IncAIMoveFailures()
	log.Printf("automation for %s halted: %v", gameID, err)
	if emitErr := s.emitter.EmitGameEvent(context.Background(), "ai.halted", telemetry.SeverityError,
		gameID, "", "", map[string]string{"code": string(apperrors.CodeOf(err))}); emitErr != nil {
		log.Printf("telemetry emit for %s: %v", gameID, emitErr)
	}
}

// Halted reports whether automation was disabled for the game.
func (s *Scheduler) Halted(gameID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted[gameID]
}
