// Package query assembles pool views for downstream readers from the stored
// registry, bucket and snapshot tables.
package query

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolScope/internal/model"
	"poolScope/internal/pricing"
	"poolScope/internal/storage"
)

const (
	DefaultPoolLimit   = 25
	DefaultSearchLimit = 10

	minTVLUSDForAPR    = 50
	minVolumeUSDForAPR = 10
	maxAPRPct          = 1_000_000
)

var depthPercents = []int64{1, 5}

// DepthEstimate is the share of pool reserves within a price band.
type DepthEstimate struct {
	Percent     int64           `json:"percent"`
	BaseAmount  decimal.Decimal `json:"base_token_amount"`
	QuoteAmount decimal.Decimal `json:"quote_token_amount"`
	USDValue    decimal.Decimal `json:"usd_value"`
}

// PoolView is a pool as seen from one of its tokens.
type PoolView struct {
	Pool                 string          `json:"pool"`
	Token                model.Token     `json:"token"`
	Token0               model.Token     `json:"token0"`
	Token1               model.Token     `json:"token1"`
	Fee                  uint32          `json:"fee"`
	CreatedAt            uint64          `json:"created_at"`
	TotalLiquidityUSD    decimal.Decimal `json:"total_liquidity_usd"`
	TVLToken0            decimal.Decimal `json:"tvl_token0"`
	TVLToken1            decimal.Decimal `json:"tvl_token1"`
	PriceToken0InToken1  float64         `json:"price_token0_in_token1"`
	PriceToken0USD       *float64        `json:"price_token0_usd,omitempty"`
	PriceToken1USD       *float64        `json:"price_token1_usd,omitempty"`
	PriceUSD             *float64        `json:"price_usd,omitempty"`
	Depth                []DepthEstimate `json:"depth_estimates"`
	Volume24hToken0      decimal.Decimal `json:"volume_24h_token0"`
	Volume24hToken1      decimal.Decimal `json:"volume_24h_token1"`
	Volume24hUSD         decimal.Decimal `json:"volume_24h_usd"`
	VolumeCurrentHourUSD decimal.Decimal `json:"volume_current_hour_usd"`
	APR24hPct            *float64        `json:"apr_24h_pct,omitempty"`
	UpdatedAt            uint64          `json:"updated_at"`
	BlockNumber          uint64          `json:"block_number"`
}

// Summary lists the pools of a token, or the newest pools when no token was
// requested.
type Summary struct {
	TokenAddress  string     `json:"token_address"`
	RequestedID   string     `json:"requested_id,omitempty"`
	Pools         []PoolView `json:"pools"`
	RelatedTokens []string   `json:"related_tokens,omitempty"`
}

// SearchResult is a token hit, or a pool when the query was a pool address.
type SearchResult struct {
	Address      string           `json:"address"`
	Symbol       string           `json:"symbol"`
	Name         string           `json:"name"`
	Decimals     uint8            `json:"decimals"`
	LiquidityUSD *decimal.Decimal `json:"liquidity_usd,omitempty"`
}

type Service struct {
	reader   storage.Reader
	feeTiers []uint32
	logger   *zap.Logger
}

// NewService builds a Service. Pool listings are restricted to feeTiers; an
// empty list matches every tier.
func NewService(reader storage.Reader, feeTiers []uint32, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{reader: reader, feeTiers: feeTiers, logger: logger}
}

// PoolSummary returns the view of one pool from token0's side.
func (s *Service) PoolSummary(ctx context.Context, address string, now uint64) (PoolView, bool, error) {
	key, err := model.NormalizeAddress(address)
	if err != nil {
		return PoolView{}, false, err
	}
	pool, ok, err := s.reader.PoolByAddress(ctx, key)
	if err != nil || !ok {
		return PoolView{}, false, err
	}
	views, err := s.buildViews(ctx, []model.Pool{pool}, "", now)
	if err != nil {
		return PoolView{}, false, err
	}
	return views[0], true, nil
}

// TokenPools lists the pools of token ordered by USD liquidity. An empty token
// lists the newest pools. When token matches no pool but is itself a pool
// address, that pool is returned instead.
func (s *Service) TokenPools(ctx context.Context, token string, now uint64) (Summary, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		pools, err := s.reader.RecentPools(ctx, s.feeTiers, DefaultPoolLimit)
		if err != nil {
			return Summary{}, fmt.Errorf("recent pools: %w", err)
		}
		return s.summarize(ctx, pools, "", "", now)
	}

	key, err := model.NormalizeAddress(token)
	if err != nil {
		return Summary{}, fmt.Errorf("invalid token address: %w", err)
	}
	pools, err := s.reader.PoolsByToken(ctx, key, s.feeTiers, DefaultPoolLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("pools by token: %w", err)
	}
	target := key
	if len(pools) == 0 {
		pool, ok, err := s.reader.PoolByAddress(ctx, key)
		if err != nil {
			return Summary{}, fmt.Errorf("pool by address: %w", err)
		}
		if ok {
			pools = []model.Pool{pool}
			target = ""
		}
	}
	return s.summarize(ctx, pools, target, key, now)
}

// SearchTokens matches symbol or name substrings. An address query resolves
// the token, falling back to a pool with that address.
func (s *Service) SearchTokens(ctx context.Context, q string, limit int) ([]SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	if strings.HasPrefix(q, "0x") && len(q) == 42 {
		key, err := model.NormalizeAddress(q)
		if err != nil {
			return nil, err
		}
		token, ok, err := s.reader.TokenByAddress(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return []SearchResult{tokenResult(token)}, nil
		}
		pool, ok, err := s.reader.PoolByAddress(ctx, key)
		if err != nil || !ok {
			return nil, err
		}
		result, err := s.poolResult(ctx, pool)
		if err != nil {
			return nil, err
		}
		return []SearchResult{result}, nil
	}

	tokens, err := s.reader.SearchTokens(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, tokenResult(token))
	}
	return out, nil
}

func (s *Service) summarize(ctx context.Context, pools []model.Pool, target, requested string, now uint64) (Summary, error) {
	views, err := s.buildViews(ctx, pools, target, now)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{RequestedID: requested, Pools: views}
	seen := make(map[string]struct{})
	for _, view := range views {
		for _, addr := range []string{view.Token0.Address, view.Token1.Address} {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			summary.RelatedTokens = append(summary.RelatedTokens, addr)
		}
	}

	switch {
	case target != "":
		summary.TokenAddress = target
	case len(views) > 0:
		summary.TokenAddress = views[0].Token.Address
	case requested != "":
		summary.TokenAddress = requested
	default:
		summary.TokenAddress = "all"
	}
	return summary, nil
}

func (s *Service) buildViews(ctx context.Context, pools []model.Pool, target string, now uint64) ([]PoolView, error) {
	addresses := make([]string, 0, len(pools))
	for _, pool := range pools {
		addresses = append(addresses, pool.Address)
	}
	volumes, err := s.reader.PoolVolumes(ctx, addresses, now)
	if err != nil {
		return nil, fmt.Errorf("pool volumes: %w", err)
	}

	views := make([]PoolView, 0, len(pools))
	for _, pool := range pools {
		view, err := s.buildView(ctx, pool, volumes[pool.Address], target)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].TotalLiquidityUSD.GreaterThan(views[j].TotalLiquidityUSD)
	})
	return views, nil
}

func (s *Service) buildView(ctx context.Context, pool model.Pool, vol model.PoolVolume, target string) (PoolView, error) {
	token0, err := s.token(ctx, pool.Token0)
	if err != nil {
		return PoolView{}, err
	}
	token1, err := s.token(ctx, pool.Token1)
	if err != nil {
		return PoolView{}, err
	}

	view := PoolView{
		Pool:                 pool.Address,
		Token:                token0,
		Token0:               token0,
		Token1:               token1,
		Fee:                  pool.Fee,
		CreatedAt:            pool.CreatedAt,
		Volume24hToken0:      vol.LastDay.Amount0,
		Volume24hToken1:      vol.LastDay.Amount1,
		Volume24hUSD:         vol.LastDay.AmountUSD,
		VolumeCurrentHourUSD: vol.CurrentHour.AmountUSD,
	}
	targetIsToken1 := target != "" && target == token1.Address
	if targetIsToken1 {
		view.Token = token1
	}

	snapshot, ok, err := s.reader.PoolMetric(ctx, pool.Address)
	if err != nil {
		return PoolView{}, fmt.Errorf("pool metric %s: %w", pool.Address, err)
	}
	if ok {
		view.TotalLiquidityUSD = snapshot.TotalLiquidityUSD
		view.TVLToken0 = snapshot.TVLToken0
		view.TVLToken1 = snapshot.TVLToken1
		view.PriceToken0InToken1, _ = pricing.PoolPrices(snapshot.SqrtPriceX96, token0.Decimals, token1.Decimals)
		view.PriceToken0USD = snapshot.PriceToken0USD
		view.PriceToken1USD = snapshot.PriceToken1USD
		view.UpdatedAt = snapshot.UpdatedAt
		view.BlockNumber = snapshot.BlockNumber
	} else {
		s.logger.Debug("pool has no snapshot yet", zap.String("pool", pool.Address))
	}

	base, quote := view.TVLToken0, view.TVLToken1
	view.PriceUSD = view.PriceToken0USD
	if targetIsToken1 {
		base, quote = quote, base
		view.PriceUSD = view.PriceToken1USD
	}
	for _, pct := range depthPercents {
		share := decimal.New(pct, -2)
		view.Depth = append(view.Depth, DepthEstimate{
			Percent:     pct,
			BaseAmount:  base.Mul(share),
			QuoteAmount: quote.Mul(share),
			USDValue:    view.TotalLiquidityUSD.Mul(share),
		})
	}
	view.APR24hPct = ComputeAPR(view.Volume24hUSD, view.TotalLiquidityUSD, pool.Fee)
	return view, nil
}

func (s *Service) token(ctx context.Context, address string) (model.Token, error) {
	token, ok, err := s.reader.TokenByAddress(ctx, address)
	if err != nil {
		return model.Token{}, fmt.Errorf("token %s: %w", address, err)
	}
	if !ok {
		return model.Token{Address: address, Symbol: "UNKNOWN", Name: "Unknown Token", Decimals: 18}, nil
	}
	return token, nil
}

func (s *Service) poolResult(ctx context.Context, pool model.Pool) (SearchResult, error) {
	token0, err := s.token(ctx, pool.Token0)
	if err != nil {
		return SearchResult{}, err
	}
	token1, err := s.token(ctx, pool.Token1)
	if err != nil {
		return SearchResult{}, err
	}
	pair := token0.Symbol + "/" + token1.Symbol
	result := SearchResult{
		Address:  pool.Address,
		Symbol:   "POOL " + pair,
		Name:     "Liquidity Pool " + pair,
		Decimals: 18,
	}
	snapshot, ok, err := s.reader.PoolMetric(ctx, pool.Address)
	if err != nil {
		return SearchResult{}, err
	}
	if ok && snapshot.TotalLiquidityUSD.IsPositive() {
		tvl := snapshot.TotalLiquidityUSD
		result.LiquidityUSD = &tvl
	}
	return result, nil
}

func tokenResult(token model.Token) SearchResult {
	return SearchResult{Address: token.Address, Symbol: token.Symbol, Name: token.Name, Decimals: token.Decimals}
}

// ComputeAPR annualizes one day of fees against TVL, in percent. Pools below
// the volume or TVL floor have no APR; results are capped.
func ComputeAPR(volume24hUSD, tvlUSD decimal.Decimal, fee uint32) *float64 {
	volume, _ := volume24hUSD.Float64()
	tvl, _ := tvlUSD.Float64()
	if volume < minVolumeUSDForAPR || tvl < minTVLUSDForAPR {
		return nil
	}
	apr := volume * (float64(fee) / 1_000_000) / tvl * 365 * 100
	if math.IsNaN(apr) || math.IsInf(apr, 0) || apr <= 0 {
		return nil
	}
	apr = math.Min(apr, maxAPRPct)
	return &apr
}
