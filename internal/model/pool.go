package model

// Pool is the pool record kept in the pools table.
type Pool struct {
	Address       string `json:"address"`
	AssetA        string `json:"asset_a"`
	AssetB        string `json:"asset_b"`
	ShareAsset    string `json:"share_asset"`
	FeeRateBps    uint16 `json:"fee_rate_bps"`
	Authority     string `json:"authority,omitempty"`
	ReserveA      string `json:"reserve_a"`
	ReserveB      string `json:"reserve_b"`
	ShareSupply   string `json:"share_supply"`
	FirstSequence uint64 `json:"first_sequence"`
	LastSequence  uint64 `json:"last_sequence"`
}
