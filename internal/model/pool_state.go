package model

// PoolState is a pool's configuration and balances right after an event.
type PoolState struct {
	AssetA      string `json:"asset_a"`
	AssetB      string `json:"asset_b"`
	ShareAsset  string `json:"share_asset"`
	FeeRateBps  uint16 `json:"fee_rate_bps"`
	ReserveA    string `json:"reserve_a"`
	ReserveB    string `json:"reserve_b"`
	ShareSupply string `json:"share_supply"`
}
