package amm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	poolSeed  = []byte("pool")
	shareSeed = []byte("shares")
)

// PoolAddress derives the pool identity from its ordered asset pair. The same
// address doubles as the custody account for both reserves.
func PoolAddress(assetA, assetB common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(poolSeed, assetA.Bytes(), assetB.Bytes()))
}

// ShareAssetAddress derives the pool-share asset id from the pool identity.
func ShareAssetAddress(pool common.Address) common.Address {
	return common.BytesToAddress(crypto.Keccak256(shareSeed, pool.Bytes()))
}
