package model

// PairMeta describes an on-chain constant-product pair read over RPC.
type PairMeta struct {
	Address            string    `json:"address"`
	Token0             TokenMeta `json:"token0"`
	Token1             TokenMeta `json:"token1"`
	Reserve0           string    `json:"reserve0"`
	Reserve1           string    `json:"reserve1"`
	BlockTimestampLast uint32    `json:"block_timestamp_last"`
}

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}
