package model

const (
	OpCreatePool      = "create_pool"
	OpFund            = "fund"
	OpAddLiquidity    = "add_liquidity"
	OpRemoveLiquidity = "remove_liquidity"
	OpSwap            = "swap"
)

// Operation is one submitted request in an operations JSONL file. Amounts
// are decimal strings.
type Operation struct {
	ID               uint64 `json:"id"`
	Kind             string `json:"kind"`
	Caller           string `json:"caller"`
	Pool             string `json:"pool,omitempty"`
	AssetA           string `json:"asset_a,omitempty"`
	AssetB           string `json:"asset_b,omitempty"`
	Asset            string `json:"asset,omitempty"`
	FeeRateBps       uint16 `json:"fee_rate_bps,omitempty"`
	Amount           uint64 `json:"amount,string,omitempty"`
	AmountADesired   uint64 `json:"amount_a_desired,string,omitempty"`
	AmountBDesired   uint64 `json:"amount_b_desired,string,omitempty"`
	AmountAMin       uint64 `json:"amount_a_min,string,omitempty"`
	AmountBMin       uint64 `json:"amount_b_min,string,omitempty"`
	Shares           uint64 `json:"shares,string,omitempty"`
	AmountIn         uint64 `json:"amount_in,string,omitempty"`
	MinimumAmountOut uint64 `json:"minimum_amount_out,string,omitempty"`
	Direction        string `json:"direction,omitempty"`
}

// OperationError records a rejected operation.
type OperationError struct {
	OperationID uint64 `json:"operation_id"`
	Kind        string `json:"kind"`
	Caller      string `json:"caller"`
	Pool        string `json:"pool,omitempty"`
	Error       string `json:"error"`
}
