package pair

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/amm"
)

// ErrReserveTooLarge means an on-chain reserve does not fit the 64-bit pool domain.
var ErrReserveTooLarge = errors.New("reserve exceeds uint64")

// Result is a swap preview against a live pair. AToB sells token0 for token1.
type Result struct {
	Pair       common.Address
	Direction  amm.Direction
	TokenIn    common.Address
	TokenOut   common.Address
	AmountIn   uint64
	AmountOut  uint64
	ReserveIn  uint64
	ReserveOut uint64
}

// Reserves converts the pair reserves into the pool domain.
func (s State) Reserves() (uint64, uint64, error) {
	r0, err := toUint64(s.Reserve0)
	if err != nil {
		return 0, 0, fmt.Errorf("reserve0: %w", err)
	}
	r1, err := toUint64(s.Reserve1)
	if err != nil {
		return 0, 0, fmt.Errorf("reserve1: %w", err)
	}
	return r0, r1, nil
}

// Pool maps the pair onto an in-memory pool with token0 as asset A.
func (s State) Pool() (amm.Pool, error) {
	r0, r1, err := s.Reserves()
	if err != nil {
		return amm.Pool{}, err
	}
	pool, err := amm.Initialize(s.Token0, s.Token1, amm.DefaultFeeRateBps, s.Address)
	if err != nil {
		return amm.Pool{}, err
	}
	pool.ReserveA = r0
	pool.ReserveB = r1
	return *pool, nil
}

// Quote previews a swap of amountIn against the pair state.
func Quote(s State, amountIn uint64, dir amm.Direction) (Result, error) {
	if !dir.Valid() {
		return Result{}, fmt.Errorf("%w: direction %d", amm.ErrInvalidConfiguration, dir)
	}
	pool, err := s.Pool()
	if err != nil {
		return Result{}, err
	}
	reserveIn, reserveOut := pool.Reserves(dir)
	tokenIn, tokenOut := pool.Assets(dir)
	out, err := amm.GetAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Pair:       s.Address,
		Direction:  dir,
		TokenIn:    tokenIn,
		TokenOut:   tokenOut,
		AmountIn:   amountIn,
		AmountOut:  out,
		ReserveIn:  reserveIn,
		ReserveOut: reserveOut,
	}, nil
}

func toUint64(v *big.Int) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrReserveTooLarge, v.String())
	}
	return v.Uint64(), nil
}
