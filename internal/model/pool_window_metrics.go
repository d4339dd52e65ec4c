package model

import "time"

// PoolWindowMetrics stores aggregated metrics for a pool window.
type PoolWindowMetrics struct {
	PoolAddress    string    `json:"pool_address"`
	WindowSizeSecs int64     `json:"window_size_seconds"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	SwapCount      uint64    `json:"swap_count"`
	VolumeA        string    `json:"volume_a"`
	VolumeB        string    `json:"volume_b"`
	FeeA           string    `json:"fee_a"`
	FeeB           string    `json:"fee_b"`
	ReserveA       string    `json:"reserve_a"`
	ReserveB       string    `json:"reserve_b"`
	FeeYieldA      *string   `json:"fee_yield_a,omitempty"`
	FeeYieldB      *string   `json:"fee_yield_b,omitempty"`
	APR            *string   `json:"apr,omitempty"`
}
