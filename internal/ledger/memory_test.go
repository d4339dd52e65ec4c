package ledger

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	share  = common.HexToAddress("0x5555555555555555555555555555555555555555")
	pool   = common.HexToAddress("0x9999999999999999999999999999999999999999")
	alice  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestCreditAndFaucetLimits(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Credit(tokenA, alice, 500))
	require.NoError(t, m.Credit(tokenA, bob, 250))
	require.Equal(t, uint64(500), m.Balance(tokenA, alice))
	require.Equal(t, uint64(750), m.Supply(tokenA))

	require.NoError(t, m.RegisterAsset(share, pool))
	require.ErrorIs(t, m.RegisterAsset(share, pool), ErrAssetExists)
	require.ErrorIs(t, m.RegisterAsset(tokenA, pool), ErrAssetExists)
	require.ErrorIs(t, m.Credit(share, alice, 1), ErrUnauthorized)
	require.ErrorIs(t, m.Credit(tokenA, pool, 1), ErrUnauthorized)
}

func TestTxIsInvisibleUntilCommit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Credit(tokenA, alice, 100))

	tx := m.Begin()
	require.NoError(t, tx.Transfer(ctx, tokenA, alice, bob, 40, m.UserAuthority(alice)))
	require.Equal(t, uint64(0), m.Balance(tokenA, bob))

	// The tx sees its own pending debit.
	require.ErrorIs(t, tx.Transfer(ctx, tokenA, alice, bob, 61, m.UserAuthority(alice)), ErrInsufficientBalance)

	require.NoError(t, tx.Commit())
	require.Equal(t, uint64(60), m.Balance(tokenA, alice))
	require.Equal(t, uint64(40), m.Balance(tokenA, bob))
	require.Equal(t, uint64(100), m.Supply(tokenA))

	require.ErrorIs(t, tx.Commit(), ErrTxClosed)
	require.ErrorIs(t, tx.Transfer(ctx, tokenA, alice, bob, 1, m.UserAuthority(alice)), ErrTxClosed)
}

func TestTxRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Credit(tokenA, alice, 100))

	tx := m.Begin()
	require.NoError(t, tx.Transfer(ctx, tokenA, alice, bob, 100, m.UserAuthority(alice)))
	tx.Rollback()
	require.Equal(t, uint64(100), m.Balance(tokenA, alice))
	require.ErrorIs(t, tx.Commit(), ErrTxClosed)
}

func TestTxHonorsContext(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Credit(tokenA, alice, 100))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tx := m.Begin()
	require.ErrorIs(t, tx.Transfer(ctx, tokenA, alice, bob, 1, m.UserAuthority(alice)), context.Canceled)
}

func TestTransferAuthorization(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	other := NewMemory()
	require.NoError(t, m.Credit(tokenA, alice, 100))
	require.NoError(t, m.RegisterAsset(share, pool))

	tx := m.Begin()
	defer tx.Rollback()
	require.ErrorIs(t, tx.Transfer(ctx, tokenA, alice, bob, 1, m.UserAuthority(bob)), ErrUnauthorized)
	require.ErrorIs(t, tx.Transfer(ctx, tokenA, alice, bob, 1, other.UserAuthority(alice)), ErrUnauthorized)
	require.ErrorIs(t, tx.Transfer(ctx, tokenA, pool, bob, 1, m.UserAuthority(pool)), ErrUnauthorized)

	require.NoError(t, tx.Transfer(ctx, tokenA, alice, pool, 10, m.UserAuthority(alice)))
	require.NoError(t, tx.Transfer(ctx, tokenA, pool, bob, 10, m.PoolAuthority(pool)))
}

func TestMintAndBurnNeedPoolAuthority(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.RegisterAsset(share, pool))

	tx := m.Begin()
	require.ErrorIs(t, tx.Mint(ctx, share, alice, 10, m.UserAuthority(pool)), ErrUnauthorized)
	require.ErrorIs(t, tx.Mint(ctx, share, alice, 10, m.PoolAuthority(bob)), ErrUnauthorized)
	require.ErrorIs(t, tx.Mint(ctx, tokenA, alice, 10, m.PoolAuthority(pool)), ErrUnauthorized)

	require.NoError(t, tx.Mint(ctx, share, alice, 1000, m.PoolAuthority(pool)))
	require.NoError(t, tx.Burn(ctx, share, alice, 400, m.PoolAuthority(pool)))
	supply, err := tx.CurrentSupply(ctx, share)
	require.NoError(t, err)
	require.Equal(t, uint64(600), supply)
	require.Equal(t, uint64(0), m.Supply(share))

	require.ErrorIs(t, tx.Burn(ctx, share, alice, 601, m.PoolAuthority(pool)), ErrInsufficientBalance)
	require.NoError(t, tx.Commit())
	require.Equal(t, uint64(600), m.Supply(share))
	require.Equal(t, uint64(600), m.Balance(share, alice))
}

func TestCommitRevalidatesAgainstLedger(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Credit(tokenA, alice, 100))

	first := m.Begin()
	second := m.Begin()
	require.NoError(t, first.Transfer(ctx, tokenA, alice, bob, 100, m.UserAuthority(alice)))
	require.NoError(t, second.Transfer(ctx, tokenA, alice, pool, 100, m.UserAuthority(alice)))

	require.NoError(t, first.Commit())
	require.ErrorIs(t, second.Commit(), ErrInsufficientBalance)
	require.Equal(t, uint64(0), m.Balance(tokenA, pool))
	require.Equal(t, uint64(100), m.Balance(tokenA, bob))
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Credit(tokenA, alice, 100))
	require.NoError(t, m.RegisterAsset(share, pool))
	tx := m.Begin()
	require.NoError(t, tx.Mint(ctx, share, bob, 7, m.PoolAuthority(pool)))
	require.NoError(t, tx.Commit())

	snap := m.Export()
	require.Len(t, snap.Assets, 2)
	require.Len(t, snap.Balances, 2)

	restored := NewMemory()
	require.NoError(t, restored.Import(snap))
	require.Equal(t, snap, restored.Export())
	require.ErrorIs(t, restored.Credit(share, alice, 1), ErrUnauthorized)

	// Authorities issued by the old ledger are not honored.
	tx = restored.Begin()
	require.ErrorIs(t, tx.Mint(ctx, share, bob, 1, m.PoolAuthority(pool)), ErrUnauthorized)
	tx.Rollback()
}

func TestImportRejectsUnbalancedSnapshot(t *testing.T) {
	snap := Snapshot{
		Assets:   []Asset{{Asset: tokenA, Supply: 10}},
		Balances: []Balance{{Asset: tokenA, Owner: alice, Amount: 9}},
	}
	m := NewMemory()
	require.Error(t, m.Import(snap))

	snap.Balances[0].Amount = 10
	require.NoError(t, m.Import(snap))

	snap.Assets = append(snap.Assets, Asset{Asset: tokenA, Supply: 10})
	require.ErrorIs(t, m.Import(snap), ErrAssetExists)
}
