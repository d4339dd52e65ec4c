package replay

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/amm"
	"cpamm/internal/host"
	"cpamm/internal/ledger"
	"cpamm/internal/model"
	"cpamm/internal/state"
	"cpamm/internal/storage"
)

const (
	alice  = "0x1111111111111111111111111111111111111111"
	bob    = "0x2222222222222222222222222222222222222222"
	tokenA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	tokenB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func writeOperations(t *testing.T, path string, ops ...model.Operation) {
	t.Helper()
	w, err := storage.NewJSONLWriter(path, true)
	if err != nil {
		t.Fatalf("open operations: %v", err)
	}
	for _, op := range ops {
		if err := w.Write(op); err != nil {
			t.Fatalf("write operation: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close operations: %v", err)
	}
}

func setupOperations() []model.Operation {
	return []model.Operation{
		{ID: 1, Kind: model.OpFund, Caller: alice, Asset: tokenA, Amount: 10_000_000},
		{ID: 2, Kind: model.OpFund, Caller: alice, Asset: tokenB, Amount: 10_000_000},
		{ID: 3, Kind: model.OpFund, Caller: bob, Asset: tokenA, Amount: 10_000},
		{ID: 4, Kind: model.OpCreatePool, Caller: alice, AssetA: tokenA, AssetB: tokenB, FeeRateBps: 30},
		{ID: 5, Kind: model.OpAddLiquidity, Caller: alice, AssetA: tokenA, AssetB: tokenB, AmountADesired: 1_000_000, AmountBDesired: 1_000_000},
		// Rejected: slippage.
		{ID: 6, Kind: model.OpSwap, Caller: bob, AssetA: tokenA, AssetB: tokenB, AmountIn: 1000, MinimumAmountOut: 997, Direction: "a_to_b"},
		{ID: 7, Kind: model.OpSwap, Caller: bob, AssetA: tokenA, AssetB: tokenB, AmountIn: 1000, Direction: "a_to_b"},
	}
}

func TestRunnerAppliesAndCheckpoints(t *testing.T) {
	dir := t.TempDir()
	opsPath := filepath.Join(dir, "ops.jsonl")
	errPath := filepath.Join(dir, "errors.jsonl")
	store := state.NewFileStore(filepath.Join(dir, "state.json"))
	writeOperations(t, opsPath, setupOperations()...)

	exec := host.New(ledger.NewMemory())
	runner := NewRunner(RunConfig{OperationsPath: opsPath, ErrorsPath: errPath, BatchSize: 3}, exec, store, nil)
	summary, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Applied != 6 || summary.Rejected != 1 || summary.LastOperation != 7 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	var rejected []model.OperationError
	err = storage.ScanJSONL(context.Background(), errPath, func(line []byte) error {
		var rec model.OperationError
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		rejected = append(rejected, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("read errors: %v", err)
	}
	if len(rejected) != 1 || rejected[0].OperationID != 6 || !strings.Contains(rejected[0].Error, "slippage") {
		t.Fatalf("unexpected rejected records: %+v", rejected)
	}

	snap, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load state: ok=%v err=%v", ok, err)
	}
	if snap.LastOperation != 7 || len(snap.Pools) != 1 {
		t.Fatalf("unexpected snapshot: last=%d pools=%d", snap.LastOperation, len(snap.Pools))
	}
	if snap.Pools[0].ReserveA != 1_001_000 || snap.Pools[0].ReserveB != 999_004 {
		t.Fatalf("unexpected reserves: %d %d", snap.Pools[0].ReserveA, snap.Pools[0].ReserveB)
	}
}

func TestRunnerResumesFromState(t *testing.T) {
	dir := t.TempDir()
	opsPath := filepath.Join(dir, "ops.jsonl")
	store := state.NewFileStore(filepath.Join(dir, "state.json"))
	writeOperations(t, opsPath, setupOperations()...)

	if _, err := NewRunner(RunConfig{OperationsPath: opsPath, BatchSize: 10}, host.New(ledger.NewMemory()), store, nil).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	writeOperations(t, opsPath, model.Operation{
		ID: 8, Kind: model.OpRemoveLiquidity, Caller: alice, AssetA: tokenA, AssetB: tokenB, Shares: 1000,
	})

	// A fresh executor picks the pools and balances up from the state file.
	exec := host.New(ledger.NewMemory())
	summary, err := NewRunner(RunConfig{OperationsPath: opsPath, BatchSize: 10}, exec, store, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Applied != 1 || summary.Skipped != 7 || summary.LastOperation != 8 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	poolAddr := amm.PoolAddress(mustAddress(t, tokenA), mustAddress(t, tokenB))
	pool, err := exec.Pool(poolAddr)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.ShareSupply != 1_000_000-1000 {
		t.Fatalf("share supply = %d", pool.ShareSupply)
	}
}

func TestRunnerStopOnError(t *testing.T) {
	dir := t.TempDir()
	opsPath := filepath.Join(dir, "ops.jsonl")
	writeOperations(t, opsPath, setupOperations()...)

	runner := NewRunner(RunConfig{OperationsPath: opsPath, BatchSize: 2, StopOnError: true}, host.New(ledger.NewMemory()), nil, nil)
	summary, err := runner.Run(context.Background())
	if !errors.Is(err, amm.ErrSlippageExceeded) {
		t.Fatalf("expected slippage error, got %v", err)
	}
	if summary.LastOperation != 5 || summary.Applied != 4 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestLoadOperationsRejectsUnorderedIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.jsonl")
	writeOperations(t, path,
		model.Operation{ID: 2, Kind: model.OpFund},
		model.Operation{ID: 2, Kind: model.OpFund},
	)
	if _, _, err := LoadOperations(context.Background(), path, 0); err == nil {
		t.Fatalf("expected error for repeated id")
	}
}

func TestLoadOperationsMissingFile(t *testing.T) {
	ops, skipped, err := LoadOperations(context.Background(), filepath.Join(t.TempDir(), "none.jsonl"), 0)
	if err != nil || len(ops) != 0 || skipped != 0 {
		t.Fatalf("missing file should be empty: %v %d %v", ops, skipped, err)
	}
}

func TestApplyRejectsBadInput(t *testing.T) {
	exec := host.New(ledger.NewMemory())
	ctx := context.Background()

	if _, err := Apply(ctx, exec, model.Operation{Kind: "mint"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := Apply(ctx, exec, model.Operation{Kind: model.OpSwap, Caller: bob, AssetA: tokenA, AssetB: tokenB, AmountIn: 1, Direction: "sideways"}); !errors.Is(err, amm.ErrInvalidConfiguration) {
		t.Fatalf("expected invalid direction, got %v", err)
	}
	if _, err := Apply(ctx, exec, model.Operation{Kind: model.OpSwap, Caller: "nope", Pool: tokenA}); err == nil {
		t.Fatalf("expected invalid caller error")
	}
	if _, err := Apply(ctx, exec, model.Operation{Kind: model.OpAddLiquidity, Caller: alice}); err == nil {
		t.Fatalf("expected missing pool error")
	}
	if _, err := Apply(ctx, exec, model.Operation{Kind: model.OpSwap, Caller: alice, Pool: tokenA, AmountIn: 1, Direction: "ab"}); !errors.Is(err, host.ErrPoolNotFound) {
		t.Fatalf("expected ErrPoolNotFound, got %v", err)
	}
}

func mustAddress(t *testing.T, input string) common.Address {
	t.Helper()
	addr, err := ParseAddress("address", input)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return addr
}
