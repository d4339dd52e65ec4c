package state

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/amm"
	"cpamm/internal/ledger"
)

func TestFileStoreMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	_, ok, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot")
	}
}

func TestFileStoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "state.json")
	store := NewFileStore(path)

	tokenA := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenB := common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	pool, err := amm.Initialize(tokenA, tokenB, 30, common.HexToAddress("0x01"))
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	pool.ReserveA = 18446744073709551615
	pool.ReserveB = 5
	pool.ShareSupply = 4294967295

	want := Snapshot{
		LastOperation: 42,
		EventSequence: 99,
		Pools:         []amm.Pool{*pool},
		Ledger: ledger.Snapshot{
			Assets:   []ledger.Asset{{Asset: tokenA, Supply: 18446744073709551615}},
			Balances: []ledger.Balance{{Asset: tokenA, Owner: pool.Address, Amount: 18446744073709551615}},
		},
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	got, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.UpdatedAt == "" {
		t.Fatalf("updated_at not set")
	}
	got.UpdatedAt = ""
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot mismatch: %+v != %+v", got, want)
	}
}

func TestFileStoreRejectsDirectory(t *testing.T) {
	store := NewFileStore(t.TempDir())
	if _, _, err := store.Load(); err == nil {
		t.Fatalf("expected error for directory path")
	}
}
