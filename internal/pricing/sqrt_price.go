package pricing

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const floatPrec = 256

var q96 = new(big.Float).SetPrec(floatPrec).SetInt(new(big.Int).Lsh(big.NewInt(1), 96))

// PoolPrices converts a Q64.96 sqrt price into the token0-in-token1 rate and its
// inverse: price0in1 = (sqrtPriceX96 / 2^96)^2 * 10^(decimals1 - decimals0).
// price1in0 is 0 when price0in1 is not positive.
func PoolPrices(sqrtPriceX96 *big.Int, decimals0, decimals1 uint8) (price0in1, price1in0 float64) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0, 0
	}

	ratio := new(big.Float).SetPrec(floatPrec).SetInt(sqrtPriceX96)
	ratio.Quo(ratio, q96)
	ratio.Mul(ratio, ratio)

	exp := int64(decimals1) - int64(decimals0)
	if exp != 0 {
		abs := exp
		if abs < 0 {
			abs = -abs
		}
		scale := new(big.Float).SetPrec(floatPrec).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(abs), nil))
		if exp > 0 {
			ratio.Mul(ratio, scale)
		} else {
			ratio.Quo(ratio, scale)
		}
	}

	price0in1, _ = ratio.Float64()
	if price0in1 > 0 {
		price1in0 = 1 / price0in1
	}
	return price0in1, price1in0
}

// TokenAmount scales a raw integer amount by the token decimals.
func TokenAmount(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// USDValue sums amount*price over the sides with a defined price.
func USDValue(amount0 decimal.Decimal, price0 *float64, amount1 decimal.Decimal, price1 *float64) decimal.Decimal {
	total := decimal.Zero
	if price0 != nil {
		total = total.Add(amount0.Mul(decimal.NewFromFloat(*price0)))
	}
	if price1 != nil {
		total = total.Add(amount1.Mul(decimal.NewFromFloat(*price1)))
	}
	return total
}
