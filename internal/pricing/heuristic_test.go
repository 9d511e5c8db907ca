package pricing

import (
	"math"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolScope/internal/model"
)

func token(symbol string) model.Token {
	return model.Token{Symbol: symbol, Decimals: 18}
}

func TestPriceUSD(t *testing.T) {
	withAnchor := NewHeuristic(Config{AnchorUSD: 600})
	noAnchor := NewHeuristic(Config{})

	tests := []struct {
		name   string
		h      *Heuristic
		base   model.Token
		quote  model.Token
		rate   float64
		want   float64
		wantOK bool
	}{
		{name: "zero rate", h: withAnchor, base: token("CAKE"), quote: token("USDT"), rate: 0},
		{name: "negative rate", h: withAnchor, base: token("CAKE"), quote: token("USDT"), rate: -1},
		{name: "nan rate", h: withAnchor, base: token("CAKE"), quote: token("USDT"), rate: math.NaN()},
		{name: "inf rate", h: withAnchor, base: token("CAKE"), quote: token("USDT"), rate: math.Inf(1)},
		{name: "stable quote", h: withAnchor, base: token("CAKE"), quote: token("USDT"), rate: 2.5, want: 2.5, wantOK: true},
		{name: "stable quote case insensitive", h: withAnchor, base: token("CAKE"), quote: token("usdc"), rate: 2.5, want: 2.5, wantOK: true},
		{name: "stable base", h: withAnchor, base: token("BUSD"), quote: token("CAKE"), rate: 0.4, want: 1, wantOK: true},
		{name: "stable quote beats stable base", h: withAnchor, base: token("DAI"), quote: token("USDT"), rate: 0.999, want: 0.999, wantOK: true},
		{name: "anchor base", h: withAnchor, base: token("WBNB"), quote: token("CAKE"), rate: 200, want: 600, wantOK: true},
		{name: "anchor quote", h: withAnchor, base: token("CAKE"), quote: token("WBNB"), rate: 0.005, want: 3, wantOK: true},
		{name: "anchor without price", h: noAnchor, base: token("WBNB"), quote: token("CAKE"), rate: 200},
		{name: "anchor quote without price", h: noAnchor, base: token("CAKE"), quote: token("BNB"), rate: 0.005},
		{name: "neither side resolvable", h: withAnchor, base: token("CAKE"), quote: token("XVS"), rate: 1.2},
		{name: "unknown token", h: withAnchor, base: token("UNKNOWN"), quote: token("UNKNOWN"), rate: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.h.PriceUSD(tt.base, tt.quote, tt.rate)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestCustomSymbolSets(t *testing.T) {
	h := NewHeuristic(Config{StableSymbols: []string{" usd1 "}, AnchorSymbols: []string{"ETH"}, AnchorUSD: 3000})

	got, ok := h.PriceUSD(token("X"), token("USD1"), 4)
	require.True(t, ok)
	assert.Equal(t, 4.0, got)

	_, ok = h.PriceUSD(token("X"), token("USDT"), 4)
	assert.False(t, ok, "defaults are replaced by custom sets")

	got, ok = h.PriceUSD(token("ETH"), token("X"), 4)
	require.True(t, ok)
	assert.Equal(t, 3000.0, got)
}

func TestPoolPrices(t *testing.T) {
	one := new(big.Int).Lsh(big.NewInt(1), 96)

	p01, p10 := PoolPrices(one, 18, 18)
	assert.InDelta(t, 1.0, p01, 1e-12)
	assert.InDelta(t, 1.0, p10, 1e-12)

	two := new(big.Int).Lsh(big.NewInt(2), 96)
	p01, p10 = PoolPrices(two, 18, 18)
	assert.InDelta(t, 4.0, p01, 1e-12)
	assert.InDelta(t, 0.25, p10, 1e-12)

	p01, _ = PoolPrices(one, 6, 18)
	assert.InDelta(t, 1e12, p01, 1)

	p01, _ = PoolPrices(one, 18, 6)
	assert.InDelta(t, 1e-12, p01, 1e-24)

	p01, p10 = PoolPrices(big.NewInt(0), 18, 18)
	assert.Zero(t, p01)
	assert.Zero(t, p10)
}

func TestTokenAmountAndUSDValue(t *testing.T) {
	amount := TokenAmount(big.NewInt(1_500_000), 6)
	assert.True(t, amount.Equal(decimal.RequireFromString("1.5")))

	price := 2.0
	total := USDValue(decimal.NewFromInt(3), &price, decimal.NewFromInt(100), nil)
	assert.True(t, total.Equal(decimal.NewFromInt(6)), "only priced sides count: %s", total)

	assert.True(t, USDValue(decimal.NewFromInt(3), nil, decimal.NewFromInt(1), nil).IsZero())
}
