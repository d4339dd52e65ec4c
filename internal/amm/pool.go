package amm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxFeeRateBps bounds the fee accepted at pool creation.
const MaxFeeRateBps uint16 = 10_000

// DefaultFeeRateBps matches the fixed 997/1000 swap fee.
const DefaultFeeRateBps uint16 = 30

// LockedSharesHolder receives the minimum liquidity on bootstrap. Nobody can
// sign for it, so those shares are never redeemed.
var LockedSharesHolder = common.Address{}

// Pool is the reserve and share bookkeeping for one asset pair.
type Pool struct {
	Address     common.Address `json:"address"`
	AssetA      common.Address `json:"asset_a"`
	AssetB      common.Address `json:"asset_b"`
	ShareAsset  common.Address `json:"share_asset"`
	ReserveA    uint64         `json:"reserve_a"`
	ReserveB    uint64         `json:"reserve_b"`
	ShareSupply uint64         `json:"share_supply"`
	// FeeRateBps is recorded for reference only; swaps always use
	// FeeNumerator/FeeDenominator.
	FeeRateBps uint16         `json:"fee_rate_bps"`
	Authority  common.Address `json:"authority"`
}

// Initialize creates an empty pool for the ordered pair (assetA, assetB).
func Initialize(assetA, assetB common.Address, feeRateBps uint16, authority common.Address) (*Pool, error) {
	if assetA == assetB {
		return nil, fmt.Errorf("%w: asset A and asset B are identical", ErrInvalidConfiguration)
	}
	if assetA == (common.Address{}) || assetB == (common.Address{}) {
		return nil, fmt.Errorf("%w: zero asset id", ErrInvalidConfiguration)
	}
	if feeRateBps > MaxFeeRateBps {
		return nil, fmt.Errorf("%w: fee rate %d bps exceeds %d", ErrInvalidConfiguration, feeRateBps, MaxFeeRateBps)
	}

	address := PoolAddress(assetA, assetB)
	return &Pool{
		Address:    address,
		AssetA:     assetA,
		AssetB:     assetB,
		ShareAsset: ShareAssetAddress(address),
		FeeRateBps: feeRateBps,
		Authority:  authority,
	}, nil
}

// IsEmpty reports whether the pool holds no reserves.
func (p *Pool) IsEmpty() bool {
	return p.ReserveA == 0 && p.ReserveB == 0
}

// RedeemableShares is the share supply minus the locked minimum.
func (p *Pool) RedeemableShares() uint64 {
	if p.ShareSupply < MinimumLiquidity {
		return 0
	}
	return p.ShareSupply - MinimumLiquidity
}

// Reserves returns (reserveIn, reserveOut) for a swap direction.
func (p *Pool) Reserves(dir Direction) (uint64, uint64) {
	if dir == AToB {
		return p.ReserveA, p.ReserveB
	}
	return p.ReserveB, p.ReserveA
}

// Assets returns (assetIn, assetOut) for a swap direction.
func (p *Pool) Assets(dir Direction) (common.Address, common.Address) {
	if dir == AToB {
		return p.AssetA, p.AssetB
	}
	return p.AssetB, p.AssetA
}

// Direction selects which asset a swap sells.
type Direction uint8

const (
	AToB Direction = iota
	BToA
)

func (d Direction) String() string {
	switch d {
	case AToB:
		return "a_to_b"
	case BToA:
		return "b_to_a"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

func (d Direction) Valid() bool {
	return d == AToB || d == BToA
}

// ParseDirection accepts "a_to_b"/"ab" and "b_to_a"/"ba" in any case.
func ParseDirection(input string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "a_to_b", "atob", "ab", "a-b":
		return AToB, nil
	case "b_to_a", "btoa", "ba", "b-a":
		return BToA, nil
	default:
		return 0, fmt.Errorf("invalid swap direction: %q", input)
	}
}
