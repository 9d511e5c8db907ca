package model

// Pool is the stored pool row. Token fields hold normalized token addresses.
type Pool struct {
	Address      string `json:"address"`
	Token0       string `json:"token0"`
	Token1       string `json:"token1"`
	Fee          uint32 `json:"fee"`
	TickSpacing  int32  `json:"tick_spacing"`
	CreatedAt    uint64 `json:"created_at"`
	CreatedBlock uint64 `json:"created_block"`
}

// PoolRecord is a pool materialized with both token records embedded by value.
type PoolRecord struct {
	Address      string `json:"address"`
	Token0       Token  `json:"token0"`
	Token1       Token  `json:"token1"`
	Fee          uint32 `json:"fee"`
	TickSpacing  int32  `json:"tick_spacing"`
	CreatedAt    uint64 `json:"created_at"`
	CreatedBlock uint64 `json:"created_block"`
}

// Row strips the embedded token records back to addresses.
func (p PoolRecord) Row() Pool {
	return Pool{
		Address:      p.Address,
		Token0:       p.Token0.Address,
		Token1:       p.Token1.Address,
		Fee:          p.Fee,
		TickSpacing:  p.TickSpacing,
		CreatedAt:    p.CreatedAt,
		CreatedBlock: p.CreatedBlock,
	}
}
