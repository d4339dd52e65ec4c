package model

import "encoding/json"

const (
	EventPoolInitialized  = "pool_initialized"
	EventLiquidityAdded   = "liquidity_added"
	EventLiquidityRemoved = "liquidity_removed"
	EventSwap             = "swap"
)

// PoolEvent is the observable record of one committed pool operation.
type PoolEvent struct {
	Sequence  uint64      `json:"sequence"`
	Pool      string      `json:"pool"`
	Actor     string      `json:"actor"`
	EventName string      `json:"event_name"`
	Timestamp uint64      `json:"timestamp"`
	Decoded   interface{} `json:"decoded"`
	State     PoolState   `json:"pool_state"`
}

// PoolEventRecord is the JSON representation used when reading events back.
type PoolEventRecord struct {
	Sequence  uint64          `json:"sequence"`
	Pool      string          `json:"pool"`
	Actor     string          `json:"actor"`
	EventName string          `json:"event_name"`
	Timestamp uint64          `json:"timestamp"`
	Decoded   json.RawMessage `json:"decoded"`
	State     PoolState       `json:"pool_state"`
}
