package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StateFile != "./data/state.json" || cfg.EventsOut != "./data/events.jsonl" || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadEnvAndFlags(t *testing.T) {
	t.Setenv("AMM_STATE_FILE", "/tmp/env-state.json")
	t.Setenv("AMM_PG_DSN", "postgres://env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("state-file", "", "")
	flags.String("pg-dsn", "", "")
	if err := flags.Parse([]string{"--pg-dsn", "postgres://flag"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.StateFile != "/tmp/env-state.json" {
		t.Fatalf("env should set state file: %q", cfg.StateFile)
	}
	if cfg.PGDSN != "postgres://flag" {
		t.Fatalf("flag should win over env: %q", cfg.PGDSN)
	}
}

func TestLoadQuoteFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amm.yaml")
	body := "rpc: http://localhost:8545\npair:\n  - 0x1111111111111111111111111111111111111111\n  - \" \"\n  - 0x2222222222222222222222222222222222222222\namount-in: 1000\nretry-backoff: 2s\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadQuote(path, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"0x1111111111111111111111111111111111111111",
		"0x2222222222222222222222222222222222222222",
	}
	if !reflect.DeepEqual(cfg.Pairs, want) {
		t.Fatalf("pairs mismatch: %v", cfg.Pairs)
	}
	if cfg.AmountIn != 1000 || cfg.RetryBackoff != 2*time.Second || cfg.Direction != "a_to_b" || cfg.MaxRetries != 5 {
		t.Fatalf("unexpected quote config: %+v", cfg)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := LoadReplay(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadReplayEnv(t *testing.T) {
	t.Setenv("AMM_BATCH_SIZE", "25")
	t.Setenv("AMM_STOP_ON_ERROR", "true")
	cfg, err := LoadReplay("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BatchSize != 25 || !cfg.StopOnError {
		t.Fatalf("unexpected replay config: %+v", cfg)
	}
}

func TestGetStringSliceFromEnv(t *testing.T) {
	t.Setenv("AMM_PAIR", "0xa, 0xb,,0xc")
	cfg, err := LoadQuote("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(cfg.Pairs, []string{"0xa", "0xb", "0xc"}) {
		t.Fatalf("pairs mismatch: %v", cfg.Pairs)
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("1700000000")
	if err != nil || got != 1_700_000_000 {
		t.Fatalf("unix: %d %v", got, err)
	}
	got, err = ParseTimestamp("2024-01-01T00:00:00Z")
	if err != nil || got != 1_704_067_200 {
		t.Fatalf("rfc3339: %d %v", got, err)
	}
	got, err = ParseTimestamp("  ")
	if err != nil || got != 0 {
		t.Fatalf("blank: %d %v", got, err)
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for invalid timestamp")
	}
}
