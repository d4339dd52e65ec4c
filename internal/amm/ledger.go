package amm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Authority is an opaque capability to move funds on behalf of a principal.
type Authority interface {
	Principal() common.Address
}

// Signer produces the pool's own authority. The engine asks for it only while
// executing an operation and never stores it.
type Signer interface {
	PoolAuthority(pool common.Address) Authority
}

// Ledger holds and moves asset balances for the engine. Mint and Burn accept
// only the authority returned by Signer for the asset's pool.
type Ledger interface {
	Transfer(ctx context.Context, asset, from, to common.Address, amount uint64, auth Authority) error
	Mint(ctx context.Context, asset, to common.Address, amount uint64, auth Authority) error
	Burn(ctx context.Context, asset, from common.Address, amount uint64, auth Authority) error
	CurrentSupply(ctx context.Context, asset common.Address) (uint64, error)
}
