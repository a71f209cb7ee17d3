package simulate

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "meldtable.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("expected empty redis addr, got %q", cfg.RedisAddr)
	}
	if cfg.Timeout != 2*time.Minute {
		t.Fatalf("expected default timeout 2m, got %s", cfg.Timeout)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db", "/tmp/sim.db", "-pacing", "250ms"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.DBPath != "/tmp/sim.db" {
		t.Fatalf("expected db override, got %q", cfg.DBPath)
	}
	if cfg.Pacing != 250*time.Millisecond {
		t.Fatalf("expected pacing override, got %s", cfg.Pacing)
	}
}

func TestParseConfigEnv(t *testing.T) {
	t.Setenv("MELDTABLE_REDIS_ADDR", "localhost:6379")

	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("expected env redis addr, got %q", cfg.RedisAddr)
	}
}
