// Package simulate parses simulation flags and runs an automated game from
// deal to completion, printing the move history as it resolves.
package simulate

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/meldtable/meldtable/internal/game/domain/event"
	"github.com/meldtable/meldtable/internal/game/domain/rules"
	"github.com/meldtable/meldtable/internal/game/handler"
	"github.com/meldtable/meldtable/internal/game/projection"
	"github.com/meldtable/meldtable/internal/game/scheduler"
	"github.com/meldtable/meldtable/internal/game/snapshot"
	"github.com/meldtable/meldtable/internal/game/statecache"
	"github.com/meldtable/meldtable/internal/game/storage/sqlite"
	"github.com/meldtable/meldtable/internal/game/telemetry"
	entrypoint "github.com/meldtable/meldtable/internal/platform/cmd"
	"github.com/meldtable/meldtable/internal/platform/metrics"
	"github.com/meldtable/meldtable/internal/platform/random"
)

// Config holds simulation command configuration.
type Config struct {
	DBPath    string        `env:"MELDTABLE_DB" envDefault:"meldtable.db"`
	RedisAddr string        `env:"MELDTABLE_REDIS_ADDR"`
	Pacing    time.Duration `env:"MELDTABLE_AI_PACING" envDefault:"0s"`
	Timeout   time.Duration `env:"MELDTABLE_SIMULATE_TIMEOUT" envDefault:"2m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "The sqlite database path")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for the shared state cache (optional)")
	fs.DurationVar(&cfg.Pacing, "pacing", cfg.Pacing, "Delay between automated moves")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Give up if the game has not finished by then")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run plays one fully automated game and prints its history.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSimulate, func(ctx context.Context) error {
		return run(ctx, cfg)
	})
}

func run(ctx context.Context, cfg Config) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	cache := newCache(cfg)
	defer func() {
		if err := cache.Close(); err != nil {
			log.Printf("close cache: %v", err)
		}
	}()

	m := metrics.New(prometheus.NewRegistry())
	engine := &projection.Engine{Events: store, Snapshots: store, Metrics: m}

	var sched *scheduler.Scheduler
	service, err := handler.New(handler.Config{
		Events:     store,
		Snapshots:  store,
		Projection: engine,
		Cache:      cache,
		Policy:     snapshot.Policy{},
		Metrics:    m,
		Emitter:    telemetry.NewEmitter(store),
		AISignal:   func(gameID string) { sched.QueueAIMove(gameID) },
	})
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	sched = scheduler.New(scheduler.Config{
		Service:  service,
		Metrics:  m,
		Emitter:  telemetry.NewEmitter(store),
		Pacing:   cfg.Pacing,
		MaxMoves: 4096,
	})
	defer sched.Close()

	seed, err := random.NewSeed()
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	gameID := fmt.Sprintf("sim-%d", time.Now().UnixNano())
	created, err := service.CreateGame(ctx, handler.CreateGameParams{
		GameID: gameID,
		Seats: []event.Seat{
			{PlayerID: "north", Username: "North", Automated: true},
			{PlayerID: "south", Username: "South", Automated: true},
		},
		DealerID:  "north",
		RequestID: fmt.Sprintf("sim-%d-create", seed),
	})
	if err != nil {
		return fmt.Errorf("create game: %w", err)
	}
	log.Printf("game %s created at version %d", gameID, created.Version)

	state, err := awaitCompletion(ctx, service, sched, gameID, cfg.Timeout)
	if err != nil {
		return err
	}

	entries, err := service.GetHistory(ctx, gameID, 0, 0)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	for _, entry := range entries {
		fmt.Printf("%4d  %s\n", entry.Seq, entry.Description)
	}
	for _, p := range state.Players {
		fmt.Printf("%s: %d points\n", p.Username, p.Score)
	}
	fmt.Printf("winner: %s after %d rounds\n", state.WinnerID, state.RoundNumber)
	return nil
}

func newCache(cfg Config) statecache.Cache {
	if cfg.RedisAddr == "" {
		return statecache.NewMemoryCache(0)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return statecache.NewRedisCache(client, 0)
}

// awaitCompletion polls the projection until the game finishes. The
// scheduler is re-queued on each poll in case a burst hit its move cap.
func awaitCompletion(ctx context.Context, service *handler.Service, sched *scheduler.Scheduler, gameID string, timeout time.Duration) (rules.GameState, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return rules.GameState{}, ctx.Err()
		case <-deadline.C:
			return rules.GameState{}, fmt.Errorf("game %s did not finish within %s", gameID, timeout)
		case <-tick.C:
		}

		state, _, err := service.ProjectedState(ctx, gameID)
		if err != nil {
			return rules.GameState{}, fmt.Errorf("projected state: %w", err)
		}
		if state.Status == rules.StatusCompleted {
			return state, nil
		}
		if sched.Halted(gameID) {
			return rules.GameState{}, fmt.Errorf("automation halted for %s", gameID)
		}
		sched.QueueAIMove(gameID)
	}
}
