// Package pricing turns raw pool exchange rates into USD estimates.
package pricing

import (
	"math"
	"strings"

	"poolScope/internal/model"
)

var (
	DefaultStableSymbols = []string{"USDT", "USDC", "BUSD", "DAI", "FDUSD", "TUSD"}
	DefaultAnchorSymbols = []string{"WBNB", "BNB"}
)

// Config configures the heuristic. AnchorUSD <= 0 means no anchor price.
type Config struct {
	AnchorUSD     float64
	StableSymbols []string
	AnchorSymbols []string
}

// Heuristic resolves USD prices from stablecoin and anchor-asset rules.
type Heuristic struct {
	anchorUSD float64
	stable    map[string]struct{}
	anchor    map[string]struct{}
}

// NewHeuristic builds a Heuristic. Empty symbol lists fall back to the defaults.
func NewHeuristic(cfg Config) *Heuristic {
	stable := cfg.StableSymbols
	if len(stable) == 0 {
		stable = DefaultStableSymbols
	}
	anchor := cfg.AnchorSymbols
	if len(anchor) == 0 {
		anchor = DefaultAnchorSymbols
	}
	return &Heuristic{
		anchorUSD: cfg.AnchorUSD,
		stable:    symbolSet(stable),
		anchor:    symbolSet(anchor),
	}
}

// PriceUSD estimates the USD price of base given rate, the price of one base
// unit in quote units. The first matching rule wins:
//
//  1. rate not finite or <= 0: undefined
//  2. quote is a stablecoin: rate
//  3. base is a stablecoin: 1
//  4. base is the anchor asset: anchor price
//  5. quote is the anchor asset: rate * anchor price
//
// Rules 4 and 5 apply only when an anchor price is configured.
func (h *Heuristic) PriceUSD(base, quote model.Token, rate float64) (float64, bool) {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return 0, false
	}
	if h.IsStable(quote.Symbol) {
		return rate, true
	}
	if h.IsStable(base.Symbol) {
		return 1, true
	}
	if h.anchorUSD > 0 {
		if h.IsAnchor(base.Symbol) {
			return h.anchorUSD, true
		}
		if h.IsAnchor(quote.Symbol) {
			price := rate * h.anchorUSD
			if math.IsInf(price, 0) {
				return 0, false
			}
			return price, true
		}
	}
	return 0, false
}

// PoolPricesUSD resolves both sides of a pool at the given raw rates.
func (h *Heuristic) PoolPricesUSD(pool model.PoolRecord, price0in1, price1in0 float64) (*float64, *float64) {
	var p0, p1 *float64
	if v, ok := h.PriceUSD(pool.Token0, pool.Token1, price0in1); ok {
		p0 = &v
	}
	if v, ok := h.PriceUSD(pool.Token1, pool.Token0, price1in0); ok {
		p1 = &v
	}
	return p0, p1
}

func (h *Heuristic) IsStable(symbol string) bool {
	_, ok := h.stable[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

func (h *Heuristic) IsAnchor(symbol string) bool {
	_, ok := h.anchor[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

func symbolSet(symbols []string) map[string]struct{} {
	out := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		out[symbol] = struct{}{}
	}
	return out
}
