package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"cpamm/internal/model"
	"cpamm/internal/state"
	"cpamm/internal/storage"
)

const (
	alice  = "0x1111111111111111111111111111111111111111"
	tokenA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	tokenB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestSingleOperationCommands(t *testing.T) {
	dir := t.TempDir()
	stateFile := filepath.Join(dir, "state.json")
	eventsOut := filepath.Join(dir, "events.jsonl")
	shared := []string{"--state-file", stateFile, "--events-out", eventsOut, "--log-level", "error"}

	steps := [][]string{
		{"fund", "--owner", alice, "--asset", tokenA, "--amount", "5000000"},
		{"fund", "--owner", alice, "--asset", tokenB, "--amount", "5000000"},
		{"pool", "create", "--caller", alice, "--asset-a", tokenA, "--asset-b", tokenB},
		{"add", "--caller", alice, "--asset-a", tokenA, "--asset-b", tokenB, "--amount-a", "1000000", "--amount-b", "1000000"},
	}
	for _, step := range steps {
		if _, err := execute(t, append(step, shared...)...); err != nil {
			t.Fatalf("%v: %v", step, err)
		}
	}

	out, err := execute(t, append([]string{"swap", "--caller", alice, "--asset-a", tokenA, "--asset-b", tokenB, "--amount-in", "1000"}, shared...)...)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	var outcome struct {
		Kind   string
		Result uint64
	}
	if err := json.Unmarshal([]byte(out), &outcome); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if outcome.Kind != "swap" || outcome.Result != 996 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	// A rejected swap leaves the state file untouched.
	before, _, err := state.NewFileStore(stateFile).Load()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if _, err := execute(t, append([]string{"swap", "--caller", alice, "--asset-a", tokenA, "--asset-b", tokenB, "--amount-in", "1000", "--min-out", "1000"}, shared...)...); err == nil {
		t.Fatalf("expected slippage error")
	}
	after, _, err := state.NewFileStore(stateFile).Load()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if before.EventSequence != after.EventSequence || before.Pools[0] != after.Pools[0] {
		t.Fatalf("rejected swap changed state")
	}
	if after.Pools[0].ReserveA != 1_001_000 {
		t.Fatalf("reserve A = %d", after.Pools[0].ReserveA)
	}

	var names []string
	err = storage.ReadEvents(context.Background(), eventsOut, func(rec model.PoolEventRecord) error {
		names = append(names, rec.EventName)
		return nil
	})
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	want := []string{model.EventPoolInitialized, model.EventLiquidityAdded, model.EventSwap}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v", names)
	}
}

func TestRedactDSN(t *testing.T) {
	if redactDSN("") != "" || redactDSN("postgres://user:pw@host/db") != "***" {
		t.Fatalf("unexpected redaction")
	}
}
