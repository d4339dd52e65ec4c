package amm

import "errors"

var (
	ErrInvalidConfiguration  = errors.New("invalid pool configuration")
	ErrInsufficientAmount    = errors.New("insufficient amount")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientAAmount   = errors.New("insufficient A amount")
	ErrInsufficientBAmount   = errors.New("insufficient B amount")
	ErrSlippageExceeded      = errors.New("slippage exceeded")

	// ErrArithmeticOverflow means a reserve or supply left the 64-bit domain.
	// It is not user-correctable.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)
