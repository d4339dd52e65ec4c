package model

// PoolInitializedData is the payload of a pool_initialized event.
type PoolInitializedData struct {
	Authority  string `json:"authority"`
	AssetA     string `json:"asset_a"`
	AssetB     string `json:"asset_b"`
	ShareAsset string `json:"share_asset"`
	FeeRateBps uint16 `json:"fee_rate_bps"`
}

// LiquidityAddedData is the payload of a liquidity_added event.
type LiquidityAddedData struct {
	Provider string `json:"provider"`
	AmountA  string `json:"amount_a"`
	AmountB  string `json:"amount_b"`
	Shares   string `json:"shares"`
	Locked   string `json:"locked"`
}

// LiquidityRemovedData is the payload of a liquidity_removed event.
type LiquidityRemovedData struct {
	Provider string `json:"provider"`
	AmountA  string `json:"amount_a"`
	AmountB  string `json:"amount_b"`
	Shares   string `json:"shares"`
}

// SwapData is the payload of a swap event.
type SwapData struct {
	Trader    string `json:"trader"`
	Direction string `json:"direction"`
	AssetIn   string `json:"asset_in"`
	AssetOut  string `json:"asset_out"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
}
