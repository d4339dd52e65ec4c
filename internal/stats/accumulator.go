package stats

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"cpamm/internal/amm"
	"cpamm/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	PoolAddress   string
	Authority     string
	State         model.PoolState
	WindowStart   uint64
	WindowEnd     uint64
	SwapCount     uint64
	VolumeA       *uint256.Int
	VolumeB       *uint256.Int
	FeeA          *uint256.Int
	FeeB          *uint256.Int
	FirstSequence uint64
	LastSequence  uint64
}

func NewAccumulator(record model.PoolEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		PoolAddress:   record.Pool,
		State:         record.State,
		WindowStart:   windowStart,
		WindowEnd:     windowEnd,
		VolumeA:       new(uint256.Int),
		VolumeB:       new(uint256.Int),
		FeeA:          new(uint256.Int),
		FeeB:          new(uint256.Int),
		FirstSequence: record.Sequence,
		LastSequence:  record.Sequence,
	}
}

// AddEvent folds one event into the window. The closing state follows the
// highest sequence seen.
func (a *Accumulator) AddEvent(record model.PoolEventRecord) error {
	if record.Sequence >= a.LastSequence {
		a.LastSequence = record.Sequence
		a.State = record.State
	}
	if a.FirstSequence == 0 || record.Sequence < a.FirstSequence {
		a.FirstSequence = record.Sequence
	}

	switch strings.ToLower(record.EventName) {
	case model.EventSwap:
		var swap model.SwapData
		if err := json.Unmarshal(record.Decoded, &swap); err != nil {
			return fmt.Errorf("decode swap: %w", err)
		}
		return a.applySwap(swap)
	case model.EventPoolInitialized:
		var init model.PoolInitializedData
		if err := json.Unmarshal(record.Decoded, &init); err != nil {
			return fmt.Errorf("decode pool_initialized: %w", err)
		}
		a.Authority = init.Authority
		return nil
	default:
		return nil
	}
}

func (a *Accumulator) applySwap(swap model.SwapData) error {
	dir, err := amm.ParseDirection(swap.Direction)
	if err != nil {
		return err
	}
	amountIn, err := parseAmount(swap.AmountIn)
	if err != nil {
		return err
	}

	fee := feeFromAmount(amountIn)
	if dir == amm.AToB {
		a.VolumeA.Add(a.VolumeA, amountIn)
		a.FeeA.Add(a.FeeA, fee)
	} else {
		a.VolumeB.Add(a.VolumeB, amountIn)
		a.FeeB.Add(a.FeeB, fee)
	}
	a.SwapCount++
	return nil
}

func parseAmount(value string) (*uint256.Int, error) {
	if value == "" {
		return new(uint256.Int), nil
	}
	parsed := new(uint256.Int)
	if err := parsed.SetFromDecimal(value); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return parsed, nil
}

// feeFromAmount is the part of amountIn that the 0.3% swap fee keeps in the pool.
func feeFromAmount(amountIn *uint256.Int) *uint256.Int {
	kept := new(uint256.Int).Mul(amountIn, uint256.NewInt(amm.FeeNumerator))
	kept.Div(kept, uint256.NewInt(amm.FeeDenominator))
	return new(uint256.Int).Sub(amountIn, kept)
}
