package stats

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const ratioScale = 18

var yearSeconds = decimal.NewFromInt(int64(365 * 24 * time.Hour / time.Second))

func formatAmount(value *uint256.Int) string {
	if value == nil {
		return "0"
	}
	return value.Dec()
}

func computeFeeYields(feeA, feeB *uint256.Int, reserveA, reserveB string) (*string, *string) {
	return computeRate(feeA, reserveA), computeRate(feeB, reserveB)
}

// computeRate is fee / reserve, or nil when either side is zero.
func computeRate(fee *uint256.Int, reserve string) *string {
	if fee == nil || fee.IsZero() {
		return nil
	}
	res, err := decimal.NewFromString(reserve)
	if err != nil || res.Sign() <= 0 {
		return nil
	}
	feeDec, err := decimal.NewFromString(fee.Dec())
	if err != nil {
		return nil
	}
	rate := feeDec.DivRound(res, ratioScale).StringFixed(ratioScale)
	return &rate
}

// computeAPR annualizes the mean of the available fee yields over the window.
func computeAPR(yieldA, yieldB *string, windowSeconds uint64) *string {
	if windowSeconds == 0 {
		return nil
	}
	var rates []decimal.Decimal
	for _, y := range []*string{yieldA, yieldB} {
		if y == nil {
			continue
		}
		d, err := decimal.NewFromString(*y)
		if err != nil {
			return nil
		}
		rates = append(rates, d)
	}
	if len(rates) == 0 {
		return nil
	}

	mean := decimal.Avg(rates[0], rates[1:]...)
	apr := mean.Mul(yearSeconds).DivRound(decimal.NewFromInt(int64(windowSeconds)), ratioScale)
	val := apr.StringFixed(ratioScale)
	return &val
}
