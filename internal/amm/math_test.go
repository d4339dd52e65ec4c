package amm

import (
	"errors"
	"math"
	"testing"

	"github.com/holiman/uint256"
)

func TestIntegerSqrt(t *testing.T) {
	cases := []struct {
		in   uint64
		want uint64
	}{
		{0, 0},
		{1, 1},
		{2, 1},
		{3, 1},
		{4, 2},
		{15, 3},
		{16, 4},
		{17, 4},
		{999_999, 999},
		{1_000_000, 1000},
		{4_000_000_000_000, 2_000_000},
		{math.MaxUint64, 4_294_967_295},
	}
	for _, tc := range cases {
		got := IntegerSqrt(uint256.NewInt(tc.in))
		if !got.Eq(uint256.NewInt(tc.want)) {
			t.Fatalf("sqrt(%d) = %s, want %d", tc.in, got.Dec(), tc.want)
		}
	}
}

func TestIntegerSqrtWideProducts(t *testing.T) {
	square := new(uint256.Int).Mul(uint256.NewInt(math.MaxUint64), uint256.NewInt(math.MaxUint64))
	if got := IntegerSqrt(square); !got.Eq(uint256.NewInt(math.MaxUint64)) {
		t.Fatalf("sqrt((2^64-1)^2) = %s", got.Dec())
	}

	// One below a perfect square rounds down.
	below := new(uint256.Int).SubUint64(square, 1)
	if got := IntegerSqrt(below); !got.Eq(uint256.NewInt(math.MaxUint64 - 1)) {
		t.Fatalf("sqrt((2^64-1)^2 - 1) = %s", got.Dec())
	}

	all := new(uint256.Int).SetAllOne()
	root := IntegerSqrt(all)
	want := new(uint256.Int).Lsh(uint256.NewInt(1), 128)
	want.SubUint64(want, 1)
	if !root.Eq(want) {
		t.Fatalf("sqrt(2^256-1) = %s, want %s", root.Dec(), want.Dec())
	}
}

func TestIntegerSqrtIsFloor(t *testing.T) {
	for _, v := range []uint64{5, 26, 1_000_001, 123_456_789_012, 1 << 40, (1 << 62) + 12345} {
		value := uint256.NewInt(v)
		x := IntegerSqrt(value)
		sq := new(uint256.Int).Mul(x, x)
		if sq.Gt(value) {
			t.Fatalf("sqrt(%d) = %s is too large", v, x.Dec())
		}
		next := new(uint256.Int).AddUint64(x, 1)
		next.Mul(next, next)
		if !next.Gt(value) {
			t.Fatalf("sqrt(%d) = %s is too small", v, x.Dec())
		}
	}
}

func TestGetAmountOutReference(t *testing.T) {
	out, err := GetAmountOut(1000, 1_000_000, 1_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != 996 {
		t.Fatalf("amount out = %d, want 996", out)
	}
}

func TestGetAmountOutErrors(t *testing.T) {
	if _, err := GetAmountOut(0, 10, 10); !errors.Is(err, ErrInsufficientAmount) {
		t.Fatalf("zero input: got %v", err)
	}
	if _, err := GetAmountOut(10, 0, 10); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("empty reserve in: got %v", err)
	}
	if _, err := GetAmountOut(10, 10, 0); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("empty reserve out: got %v", err)
	}
}

func TestGetAmountOutExtremeReserves(t *testing.T) {
	out, err := GetAmountOut(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == 0 || out >= math.MaxUint64/2 {
		t.Fatalf("amount out = %d, expected just under half of reserves", out)
	}
}

func TestGetAmountOutMonotonicAndBelowNoFee(t *testing.T) {
	const reserveIn, reserveOut = 5_000_000, 3_000_000
	var previous uint64
	for _, amountIn := range []uint64{1, 2, 10, 333, 1000, 1001, 50_000, 1_000_000, 5_000_000, 1 << 40} {
		out, err := GetAmountOut(amountIn, reserveIn, reserveOut)
		if err != nil {
			t.Fatalf("amount in %d: %v", amountIn, err)
		}
		if out < previous {
			t.Fatalf("amount out decreased: %d after %d", out, previous)
		}
		previous = out

		// out < amountIn*reserveOut / (reserveIn+amountIn) as a rational.
		lhs := new(uint256.Int).Mul(uint256.NewInt(out), new(uint256.Int).AddUint64(uint256.NewInt(reserveIn), amountIn))
		rhs := new(uint256.Int).Mul(uint256.NewInt(amountIn), uint256.NewInt(reserveOut))
		if !lhs.Lt(rhs) {
			t.Fatalf("amount in %d: fee output %d not below no-fee output", amountIn, out)
		}
	}
}

func TestQuote(t *testing.T) {
	got, err := Quote(1000, 1_000_000, 2_000_000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2000 {
		t.Fatalf("quote = %d, want 2000", got)
	}

	got, err = Quote(3, 2, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Fatalf("quote floors: got %d", got)
	}

	if _, err := Quote(0, 1, 1); !errors.Is(err, ErrInsufficientAmount) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, err := Quote(1, 0, 1); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("zero reserve: got %v", err)
	}
	if _, err := Quote(math.MaxUint64, 1, math.MaxUint64); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("overflow: got %v", err)
	}
}

func TestMulDivUsesWideProduct(t *testing.T) {
	got, err := mulDiv(math.MaxUint64, math.MaxUint64, math.MaxUint64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != math.MaxUint64 {
		t.Fatalf("mulDiv = %d", got)
	}
}

func TestCheckedArithmetic(t *testing.T) {
	if _, err := checkedAdd(math.MaxUint64, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("add overflow: got %v", err)
	}
	if _, err := checkedSub(0, 1); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("sub underflow: got %v", err)
	}
	if v, err := checkedSub(10, 10); err != nil || v != 0 {
		t.Fatalf("sub = %d, %v", v, err)
	}
}
