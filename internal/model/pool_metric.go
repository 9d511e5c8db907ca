package model

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// PoolMetricSnapshot is the latest derived state of a pool. One row per pool,
// overwritten on every refresh.
type PoolMetricSnapshot struct {
	Pool              string          `json:"pool"`
	SqrtPriceX96      *big.Int        `json:"sqrt_price_x96"`
	Liquidity         *big.Int        `json:"liquidity"`
	TVLToken0         decimal.Decimal `json:"tvl_token0"`
	TVLToken1         decimal.Decimal `json:"tvl_token1"`
	TotalLiquidityUSD decimal.Decimal `json:"total_liquidity_usd"`
	PriceToken0USD    *float64        `json:"price_token0_usd,omitempty"`
	PriceToken1USD    *float64        `json:"price_token1_usd,omitempty"`
	Volume24hToken0   decimal.Decimal `json:"volume_24h_token0"`
	Volume24hToken1   decimal.Decimal `json:"volume_24h_token1"`
	Volume24hUSD      decimal.Decimal `json:"volume_24h_usd"`
	UpdatedAt         uint64          `json:"updated_at"`
	BlockNumber       uint64          `json:"block_number"`
}

// PoolSwap is a ledger row for an applied swap, keyed by log id.
type PoolSwap struct {
	ID          string          `json:"id"`
	Pool        string          `json:"pool"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	Timestamp   uint64          `json:"timestamp"`
	BlockNumber uint64          `json:"block_number"`
}
