package amm

import (
	"fmt"
	"math/bits"

	"github.com/holiman/uint256"
)

const (
	// MinimumLiquidity share units are locked forever on the first deposit.
	MinimumLiquidity uint64 = 1000

	FeeNumerator   uint64 = 997
	FeeDenominator uint64 = 1000
)

var (
	feeNumerator   = uint256.NewInt(FeeNumerator)
	feeDenominator = uint256.NewInt(FeeDenominator)
)

// Quote returns floor(amount * reserveTo / reserveFrom).
func Quote(amount, reserveFrom, reserveTo uint64) (uint64, error) {
	if amount == 0 {
		return 0, fmt.Errorf("%w: quote amount is zero", ErrInsufficientAmount)
	}
	if reserveFrom == 0 || reserveTo == 0 {
		return 0, fmt.Errorf("%w: quote against empty reserves", ErrInsufficientLiquidity)
	}
	return mulDiv(amount, reserveTo, reserveFrom)
}

// GetAmountOut prices a swap of amountIn against the given reserves with the
// 0.3% input fee.
func GetAmountOut(amountIn, reserveIn, reserveOut uint64) (uint64, error) {
	if amountIn == 0 {
		return 0, fmt.Errorf("%w: amount in is zero", ErrInsufficientAmount)
	}
	if reserveIn == 0 || reserveOut == 0 {
		return 0, fmt.Errorf("%w: reserves are empty", ErrInsufficientLiquidity)
	}

	amountInWithFee := new(uint256.Int).Mul(uint256.NewInt(amountIn), feeNumerator)
	numerator := new(uint256.Int).Mul(amountInWithFee, uint256.NewInt(reserveOut))
	denominator := new(uint256.Int).Mul(uint256.NewInt(reserveIn), feeDenominator)
	denominator.Add(denominator, amountInWithFee)

	out := numerator.Div(numerator, denominator)
	if !out.IsUint64() {
		return 0, fmt.Errorf("%w: amount out", ErrArithmeticOverflow)
	}
	return out.Uint64(), nil
}

// IntegerSqrt returns floor(sqrt(value)) using Newton's method seeded at
// (value+1)/2.
func IntegerSqrt(value *uint256.Int) *uint256.Int {
	if value.IsZero() {
		return new(uint256.Int)
	}

	x := new(uint256.Int).Set(value)
	// (value+1)/2 without the carry out of 256 bits.
	y := new(uint256.Int).Rsh(value, 1)
	y.AddUint64(y, value[0]&1)

	for y.Lt(x) {
		x.Set(y)
		y.Div(value, x)
		y.Add(y, x)
		y.Rsh(y, 1)
	}
	return x
}

// mulDiv returns floor(a * b / c) computed over 256 bits.
func mulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, fmt.Errorf("%w: division by zero reserve", ErrInsufficientLiquidity)
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	product.Div(product, uint256.NewInt(c))
	if !product.IsUint64() {
		return 0, fmt.Errorf("%w: %d * %d / %d", ErrArithmeticOverflow, a, b, c)
	}
	return product.Uint64(), nil
}

// bootstrapShares returns the raw geometric mean of the first deposit.
func bootstrapShares(amountA, amountB uint64) uint64 {
	product := new(uint256.Int).Mul(uint256.NewInt(amountA), uint256.NewInt(amountB))
	// sqrt of a 128-bit product always fits in 64 bits.
	return IntegerSqrt(product).Uint64()
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrArithmeticOverflow, a, b)
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("%w: %d - %d", ErrArithmeticOverflow, a, b)
	}
	return diff, nil
}
