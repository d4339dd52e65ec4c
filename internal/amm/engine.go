package amm

import (
	"context"
	"fmt"
)

// AddLiquidityParams are the caller's bounds for a deposit.
type AddLiquidityParams struct {
	AmountADesired uint64
	AmountBDesired uint64
	AmountAMin     uint64
	AmountBMin     uint64
}

// AddLiquidityResult reports what a deposit actually moved.
type AddLiquidityResult struct {
	AmountA uint64
	AmountB uint64
	Shares  uint64
	// Locked is MinimumLiquidity on bootstrap, zero otherwise.
	Locked uint64
}

// RemoveLiquidityParams are the caller's bounds for a withdrawal.
type RemoveLiquidityParams struct {
	Shares     uint64
	AmountAMin uint64
	AmountBMin uint64
}

// RemoveLiquidityResult reports the underlying amounts returned.
type RemoveLiquidityResult struct {
	AmountA uint64
	AmountB uint64
}

// SwapParams describe a single-pool exact-input swap.
type SwapParams struct {
	AmountIn         uint64
	MinimumAmountOut uint64
	Direction        Direction
}

// Engine executes pool operations against a Ledger.
//
// The pool passed to each operation is modified only after every ledger
// request has succeeded. The engine takes no locks; callers must serialize
// operations on the same pool and roll back the ledger when an error is
// returned.
type Engine struct {
	signer Signer
}

func NewEngine(signer Signer) *Engine {
	return &Engine{signer: signer}
}

// AddLiquidity deposits both assets and mints pool shares to the caller.
func (e *Engine) AddLiquidity(ctx context.Context, pool *Pool, ledger Ledger, caller Authority, params AddLiquidityParams) (AddLiquidityResult, error) {
	amountA, amountB, err := depositAmounts(pool, params)
	if err != nil {
		return AddLiquidityResult{}, err
	}

	supply, err := ledger.CurrentSupply(ctx, pool.ShareAsset)
	if err != nil {
		return AddLiquidityResult{}, fmt.Errorf("read share supply: %w", err)
	}

	var shares, locked uint64
	if pool.IsEmpty() {
		if supply != 0 {
			return AddLiquidityResult{}, fmt.Errorf("%w: %d shares outstanding against empty reserves", ErrInsufficientLiquidity, supply)
		}
		root := bootstrapShares(amountA, amountB)
		if root <= MinimumLiquidity {
			return AddLiquidityResult{}, fmt.Errorf("%w: initial liquidity %d does not exceed locked minimum %d", ErrInsufficientLiquidity, root, MinimumLiquidity)
		}
		shares = root - MinimumLiquidity
		locked = MinimumLiquidity
	} else {
		shares, err = proportionalShares(amountA, amountB, pool.ReserveA, pool.ReserveB, supply)
		if err != nil {
			return AddLiquidityResult{}, err
		}
	}
	if shares == 0 {
		return AddLiquidityResult{}, fmt.Errorf("%w: deposit mints zero shares", ErrInsufficientLiquidity)
	}

	reserveA, err := checkedAdd(pool.ReserveA, amountA)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	reserveB, err := checkedAdd(pool.ReserveB, amountB)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	newSupply, err := checkedAdd(supply, shares)
	if err != nil {
		return AddLiquidityResult{}, err
	}
	if newSupply, err = checkedAdd(newSupply, locked); err != nil {
		return AddLiquidityResult{}, err
	}

	user := caller.Principal()
	if err := ledger.Transfer(ctx, pool.AssetA, user, pool.Address, amountA, caller); err != nil {
		return AddLiquidityResult{}, fmt.Errorf("deposit asset A: %w", err)
	}
	if err := ledger.Transfer(ctx, pool.AssetB, user, pool.Address, amountB, caller); err != nil {
		return AddLiquidityResult{}, fmt.Errorf("deposit asset B: %w", err)
	}

	poolAuth := e.signer.PoolAuthority(pool.Address)
	if locked > 0 {
		if err := ledger.Mint(ctx, pool.ShareAsset, LockedSharesHolder, locked, poolAuth); err != nil {
			return AddLiquidityResult{}, fmt.Errorf("lock minimum liquidity: %w", err)
		}
	}
	if err := ledger.Mint(ctx, pool.ShareAsset, user, shares, poolAuth); err != nil {
		return AddLiquidityResult{}, fmt.Errorf("mint shares: %w", err)
	}

	pool.ReserveA = reserveA
	pool.ReserveB = reserveB
	pool.ShareSupply = newSupply

	return AddLiquidityResult{
		AmountA: amountA,
		AmountB: amountB,
		Shares:  shares,
		Locked:  locked,
	}, nil
}

// RemoveLiquidity burns the caller's shares and returns the proportional
// reserves.
func (e *Engine) RemoveLiquidity(ctx context.Context, pool *Pool, ledger Ledger, caller Authority, params RemoveLiquidityParams) (RemoveLiquidityResult, error) {
	if params.Shares == 0 {
		return RemoveLiquidityResult{}, fmt.Errorf("%w: shares to burn is zero", ErrInsufficientAmount)
	}

	supply, err := ledger.CurrentSupply(ctx, pool.ShareAsset)
	if err != nil {
		return RemoveLiquidityResult{}, fmt.Errorf("read share supply: %w", err)
	}
	if supply == 0 || pool.IsEmpty() {
		return RemoveLiquidityResult{}, fmt.Errorf("%w: pool is empty", ErrInsufficientLiquidity)
	}
	if params.Shares > supply {
		return RemoveLiquidityResult{}, fmt.Errorf("%w: %d shares exceed supply %d", ErrInsufficientLiquidity, params.Shares, supply)
	}

	amountA, err := mulDiv(params.Shares, pool.ReserveA, supply)
	if err != nil {
		return RemoveLiquidityResult{}, err
	}
	amountB, err := mulDiv(params.Shares, pool.ReserveB, supply)
	if err != nil {
		return RemoveLiquidityResult{}, err
	}
	if amountA < params.AmountAMin {
		return RemoveLiquidityResult{}, fmt.Errorf("%w: %d below minimum %d", ErrInsufficientAAmount, amountA, params.AmountAMin)
	}
	if amountB < params.AmountBMin {
		return RemoveLiquidityResult{}, fmt.Errorf("%w: %d below minimum %d", ErrInsufficientBAmount, amountB, params.AmountBMin)
	}
	if amountA == 0 || amountB == 0 {
		return RemoveLiquidityResult{}, fmt.Errorf("%w: withdrawal rounds to zero", ErrInsufficientLiquidity)
	}

	reserveA, err := checkedSub(pool.ReserveA, amountA)
	if err != nil {
		return RemoveLiquidityResult{}, err
	}
	reserveB, err := checkedSub(pool.ReserveB, amountB)
	if err != nil {
		return RemoveLiquidityResult{}, err
	}
	newSupply, err := checkedSub(supply, params.Shares)
	if err != nil {
		return RemoveLiquidityResult{}, err
	}

	user := caller.Principal()
	poolAuth := e.signer.PoolAuthority(pool.Address)
	if err := ledger.Burn(ctx, pool.ShareAsset, user, params.Shares, poolAuth); err != nil {
		return RemoveLiquidityResult{}, fmt.Errorf("burn shares: %w", err)
	}
	if err := ledger.Transfer(ctx, pool.AssetA, pool.Address, user, amountA, poolAuth); err != nil {
		return RemoveLiquidityResult{}, fmt.Errorf("withdraw asset A: %w", err)
	}
	if err := ledger.Transfer(ctx, pool.AssetB, pool.Address, user, amountB, poolAuth); err != nil {
		return RemoveLiquidityResult{}, fmt.Errorf("withdraw asset B: %w", err)
	}

	pool.ReserveA = reserveA
	pool.ReserveB = reserveB
	pool.ShareSupply = newSupply

	return RemoveLiquidityResult{AmountA: amountA, AmountB: amountB}, nil
}

// Swap sells AmountIn of one asset for the other and returns the amount out.
func (e *Engine) Swap(ctx context.Context, pool *Pool, ledger Ledger, caller Authority, params SwapParams) (uint64, error) {
	if !params.Direction.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidConfiguration, params.Direction)
	}

	amountOut, err := e.Preview(pool, params.AmountIn, params.Direction)
	if err != nil {
		return 0, err
	}
	if amountOut < params.MinimumAmountOut {
		return 0, fmt.Errorf("%w: amount out %d below minimum %d", ErrSlippageExceeded, amountOut, params.MinimumAmountOut)
	}
	if amountOut == 0 {
		return 0, fmt.Errorf("%w: swap output rounds to zero", ErrInsufficientLiquidity)
	}

	reserveIn, reserveOut := pool.Reserves(params.Direction)
	newIn, err := checkedAdd(reserveIn, params.AmountIn)
	if err != nil {
		return 0, err
	}
	newOut, err := checkedSub(reserveOut, amountOut)
	if err != nil {
		return 0, err
	}

	assetIn, assetOut := pool.Assets(params.Direction)
	user := caller.Principal()
	if err := ledger.Transfer(ctx, assetIn, user, pool.Address, params.AmountIn, caller); err != nil {
		return 0, fmt.Errorf("pay input: %w", err)
	}
	poolAuth := e.signer.PoolAuthority(pool.Address)
	if err := ledger.Transfer(ctx, assetOut, pool.Address, user, amountOut, poolAuth); err != nil {
		return 0, fmt.Errorf("pay output: %w", err)
	}

	if params.Direction == AToB {
		pool.ReserveA, pool.ReserveB = newIn, newOut
	} else {
		pool.ReserveB, pool.ReserveA = newIn, newOut
	}
	return amountOut, nil
}

// Preview returns the swap output for the current reserves without moving
// anything.
func (e *Engine) Preview(pool *Pool, amountIn uint64, dir Direction) (uint64, error) {
	reserveIn, reserveOut := pool.Reserves(dir)
	return GetAmountOut(amountIn, reserveIn, reserveOut)
}

// depositAmounts picks the amounts that keep the pool price unchanged.
func depositAmounts(pool *Pool, params AddLiquidityParams) (uint64, uint64, error) {
	if pool.IsEmpty() {
		return params.AmountADesired, params.AmountBDesired, nil
	}

	amountBOptimal, err := Quote(params.AmountADesired, pool.ReserveA, pool.ReserveB)
	if err != nil {
		return 0, 0, err
	}
	if amountBOptimal <= params.AmountBDesired {
		if amountBOptimal < params.AmountBMin {
			return 0, 0, fmt.Errorf("%w: optimal %d below minimum %d", ErrInsufficientBAmount, amountBOptimal, params.AmountBMin)
		}
		return params.AmountADesired, amountBOptimal, nil
	}

	amountAOptimal, err := Quote(params.AmountBDesired, pool.ReserveB, pool.ReserveA)
	if err != nil {
		return 0, 0, err
	}
	if amountAOptimal > params.AmountADesired {
		return 0, 0, fmt.Errorf("%w: optimal %d above desired %d", ErrInsufficientAAmount, amountAOptimal, params.AmountADesired)
	}
	if amountAOptimal < params.AmountAMin {
		return 0, 0, fmt.Errorf("%w: optimal %d below minimum %d", ErrInsufficientAAmount, amountAOptimal, params.AmountAMin)
	}
	return amountAOptimal, params.AmountBDesired, nil
}

// proportionalShares takes the smaller of the two proportional contributions.
func proportionalShares(amountA, amountB, reserveA, reserveB, supply uint64) (uint64, error) {
	sharesA, err := mulDiv(amountA, supply, reserveA)
	if err != nil {
		return 0, err
	}
	sharesB, err := mulDiv(amountB, supply, reserveB)
	if err != nil {
		return 0, err
	}
	return min(sharesA, sharesB), nil
}
