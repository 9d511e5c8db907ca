// Package router applies decoded pool events to the derived pool state.
package router

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"poolScope/internal/metrics"
	"poolScope/internal/model"
	"poolScope/internal/pricing"
)

// Registry resolves and registers pools.
type Registry interface {
	EnsurePool(ctx context.Context, address string) (model.PoolRecord, bool, error)
	RegisterPool(ctx context.Context, created model.PoolCreatedEventData, timestamp, blockNumber uint64) (model.PoolRecord, error)
}

// Accumulator records swap volume exactly once per log id.
type Accumulator interface {
	RecordSwap(ctx context.Context, swap model.PoolSwap) (bool, error)
}

// Refresher rewrites a pool snapshot.
type Refresher interface {
	Refresh(ctx context.Context, pool model.PoolRecord, timestamp, blockNumber uint64) (model.PoolMetricSnapshot, error)
}

type handlerFunc func(ctx context.Context, event model.Event) error

type Option func(*Router)

// WithFactory restricts PoolCreated handling to one factory address.
func WithFactory(address string) Option {
	return func(r *Router) {
		r.factory = strings.ToLower(address)
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) {
		r.metrics = m
	}
}

// Router dispatches each event kind to its handler. It holds no state of its
// own and is safe for concurrent use on disjoint pools.
type Router struct {
	registry  Registry
	volumes   Accumulator
	refresher Refresher
	heuristic *pricing.Heuristic
	logger    *zap.Logger
	metrics   *metrics.Metrics
	factory   string
	handlers  map[model.EventKind]handlerFunc
}

func New(registry Registry, volumes Accumulator, refresher Refresher, heuristic *pricing.Heuristic, logger *zap.Logger, opts ...Option) (*Router, error) {
	if registry == nil || volumes == nil || refresher == nil || heuristic == nil {
		return nil, fmt.Errorf("router dependencies are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		registry:  registry,
		volumes:   volumes,
		refresher: refresher,
		heuristic: heuristic,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.handlers = map[model.EventKind]handlerFunc{
		model.KindPoolCreated:     r.handlePoolCreated,
		model.KindMint:            r.handleLiquidity,
		model.KindBurn:            r.handleLiquidity,
		model.KindCollect:         r.handleLiquidity,
		model.KindCollectProtocol: r.handleLiquidity,
		model.KindFlash:           r.handleLiquidity,
		model.KindSwap:            r.handleSwap,
	}
	return r, nil
}

// Handle applies one event. Errors leave no partial snapshot behind and are
// returned so the caller can retry the event.
func (r *Router) Handle(ctx context.Context, event model.Event) error {
	handler, ok := r.handlers[event.Kind]
	if !ok {
		r.logger.Debug("event kind ignored", zap.String("kind", string(event.Kind)), zap.String("log_id", event.LogID))
		r.metrics.SkipEvent("unsupported_kind")
		return nil
	}
	if err := handler(ctx, event); err != nil {
		r.metrics.ObserveEvent(string(event.Kind), "error")
		return fmt.Errorf("%s %s: %w", event.Kind, event.LogID, err)
	}
	r.metrics.ObserveEvent(string(event.Kind), "ok")
	return nil
}

func (r *Router) handlePoolCreated(ctx context.Context, event model.Event) error {
	if event.PoolCreated == nil {
		return fmt.Errorf("missing pool created payload")
	}
	if r.factory != "" && event.Address != r.factory {
		r.logger.Debug("pool created by foreign factory ignored",
			zap.String("factory", event.Address),
			zap.String("pool", event.PoolCreated.Pool),
		)
		r.metrics.SkipEvent("foreign_factory")
		return nil
	}

	pool, err := r.registry.RegisterPool(ctx, *event.PoolCreated, event.Timestamp, event.BlockNumber)
	if err != nil {
		return err
	}
	_, err = r.refresher.Refresh(ctx, pool, event.Timestamp, event.BlockNumber)
	return err
}

func (r *Router) handleLiquidity(ctx context.Context, event model.Event) error {
	pool, ok, err := r.resolvePool(ctx, event)
	if err != nil || !ok {
		return err
	}
	_, err = r.refresher.Refresh(ctx, pool, event.Timestamp, event.BlockNumber)
	return err
}

func (r *Router) handleSwap(ctx context.Context, event model.Event) error {
	if event.Swap == nil {
		return fmt.Errorf("missing swap payload")
	}
	pool, ok, err := r.resolvePool(ctx, event)
	if err != nil || !ok {
		return err
	}

	swap, err := r.swapVolume(pool, event)
	if err != nil {
		return err
	}
	recorded, err := r.volumes.RecordSwap(ctx, swap)
	if err != nil {
		return err
	}
	if !recorded {
		r.logger.Debug("swap already applied", zap.String("log_id", event.LogID))
		r.metrics.SkipEvent("duplicate_swap")
	}

	_, err = r.refresher.Refresh(ctx, pool, event.Timestamp, event.BlockNumber)
	return err
}

// swapVolume prices a swap at its post-swap sqrt price and returns the
// magnitudes to accumulate.
func (r *Router) swapVolume(pool model.PoolRecord, event model.Event) (model.PoolSwap, error) {
	raw0, err := parseBigInt(event.Swap.Amount0)
	if err != nil {
		return model.PoolSwap{}, fmt.Errorf("amount0: %w", err)
	}
	raw1, err := parseBigInt(event.Swap.Amount1)
	if err != nil {
		return model.PoolSwap{}, fmt.Errorf("amount1: %w", err)
	}
	sqrtPrice, err := parseBigInt(event.Swap.SqrtPriceX96)
	if err != nil {
		return model.PoolSwap{}, fmt.Errorf("sqrt price: %w", err)
	}

	amount0 := pricing.TokenAmount(raw0.Abs(raw0), pool.Token0.Decimals)
	amount1 := pricing.TokenAmount(raw1.Abs(raw1), pool.Token1.Decimals)
	price0in1, price1in0 := pricing.PoolPrices(sqrtPrice, pool.Token0.Decimals, pool.Token1.Decimals)
	price0USD, price1USD := r.heuristic.PoolPricesUSD(pool, price0in1, price1in0)

	return model.PoolSwap{
		ID:          event.LogID,
		Pool:        pool.Address,
		Amount0:     amount0,
		Amount1:     amount1,
		AmountUSD:   pricing.USDValue(amount0, price0USD, amount1, price1USD),
		Timestamp:   event.Timestamp,
		BlockNumber: event.BlockNumber,
	}, nil
}

func (r *Router) resolvePool(ctx context.Context, event model.Event) (model.PoolRecord, bool, error) {
	pool, ok, err := r.registry.EnsurePool(ctx, event.Address)
	if err != nil {
		return model.PoolRecord{}, false, err
	}
	if !ok {
		r.logger.Debug("event for unknown pool skipped",
			zap.String("pool", event.Address),
			zap.String("kind", string(event.Kind)),
			zap.String("log_id", event.LogID),
		)
		r.metrics.SkipEvent("unknown_pool")
	}
	return pool, ok, nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	return parsed, nil
}
