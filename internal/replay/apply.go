package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/amm"
	"cpamm/internal/model"
)

// ErrUnknownKind is returned for operations with an unrecognized kind.
var ErrUnknownKind = errors.New("unknown operation kind")

// Host executes pool operations. *host.Executor satisfies it.
type Host interface {
	CreatePool(ctx context.Context, caller, assetA, assetB common.Address, feeRateBps uint16) (amm.Pool, error)
	Fund(ctx context.Context, asset, owner common.Address, amount uint64) error
	AddLiquidity(ctx context.Context, caller, pool common.Address, params amm.AddLiquidityParams) (amm.AddLiquidityResult, error)
	RemoveLiquidity(ctx context.Context, caller, pool common.Address, params amm.RemoveLiquidityParams) (amm.RemoveLiquidityResult, error)
	Swap(ctx context.Context, caller, pool common.Address, params amm.SwapParams) (uint64, error)
}

// Outcome describes what an applied operation did.
type Outcome struct {
	Kind   string
	Pool   common.Address
	Result interface{}
}

// Apply decodes one operation and runs it against the host.
func Apply(ctx context.Context, h Host, op model.Operation) (Outcome, error) {
	out := Outcome{Kind: op.Kind}

	switch op.Kind {
	case model.OpFund, model.OpCreatePool, model.OpAddLiquidity, model.OpRemoveLiquidity, model.OpSwap:
	default:
		return out, fmt.Errorf("%w: %q", ErrUnknownKind, op.Kind)
	}

	switch op.Kind {
	case model.OpFund:
		owner, err := ParseAddress("caller", op.Caller)
		if err != nil {
			return out, err
		}
		asset, err := ParseAddress("asset", op.Asset)
		if err != nil {
			return out, err
		}
		return out, h.Fund(ctx, asset, owner, op.Amount)

	case model.OpCreatePool:
		caller, err := ParseAddress("caller", op.Caller)
		if err != nil {
			return out, err
		}
		assetA, err := ParseAddress("asset_a", op.AssetA)
		if err != nil {
			return out, err
		}
		assetB, err := ParseAddress("asset_b", op.AssetB)
		if err != nil {
			return out, err
		}
		pool, err := h.CreatePool(ctx, caller, assetA, assetB, op.FeeRateBps)
		if err != nil {
			return out, err
		}
		out.Pool = pool.Address
		out.Result = pool
		return out, nil
	}

	caller, err := ParseAddress("caller", op.Caller)
	if err != nil {
		return out, err
	}
	poolAddr, err := resolvePool(op)
	if err != nil {
		return out, err
	}
	out.Pool = poolAddr

	switch op.Kind {
	case model.OpAddLiquidity:
		res, err := h.AddLiquidity(ctx, caller, poolAddr, amm.AddLiquidityParams{
			AmountADesired: op.AmountADesired,
			AmountBDesired: op.AmountBDesired,
			AmountAMin:     op.AmountAMin,
			AmountBMin:     op.AmountBMin,
		})
		out.Result = res
		return out, err

	case model.OpRemoveLiquidity:
		res, err := h.RemoveLiquidity(ctx, caller, poolAddr, amm.RemoveLiquidityParams{
			Shares:     op.Shares,
			AmountAMin: op.AmountAMin,
			AmountBMin: op.AmountBMin,
		})
		out.Result = res
		return out, err

	case model.OpSwap:
		dir, err := amm.ParseDirection(op.Direction)
		if err != nil {
			return out, fmt.Errorf("%w: %v", amm.ErrInvalidConfiguration, err)
		}
		amountOut, err := h.Swap(ctx, caller, poolAddr, amm.SwapParams{
			AmountIn:         op.AmountIn,
			MinimumAmountOut: op.MinimumAmountOut,
			Direction:        dir,
		})
		out.Result = amountOut
		return out, err
	}
	return out, nil
}

// resolvePool takes the explicit pool address, or derives it from the ordered pair.
func resolvePool(op model.Operation) (common.Address, error) {
	if op.Pool != "" {
		return ParseAddress("pool", op.Pool)
	}
	if op.AssetA == "" && op.AssetB == "" {
		return common.Address{}, fmt.Errorf("pool or asset pair is required")
	}
	assetA, err := ParseAddress("asset_a", op.AssetA)
	if err != nil {
		return common.Address{}, err
	}
	assetB, err := ParseAddress("asset_b", op.AssetB)
	if err != nil {
		return common.Address{}, err
	}
	return amm.PoolAddress(assetA, assetB), nil
}
