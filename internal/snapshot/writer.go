// Package snapshot recomputes and persists the latest metrics row per pool.
package snapshot

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolScope/internal/dex"
	"poolScope/internal/metrics"
	"poolScope/internal/model"
	"poolScope/internal/pricing"
	"poolScope/internal/storage"
)

// StateReader reads live pool state. *dex.Reader satisfies it.
type StateReader interface {
	Slot0(ctx context.Context, pool common.Address, block *big.Int) (dex.Slot0, error)
	Liquidity(ctx context.Context, pool common.Address, block *big.Int) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address, block *big.Int) (*big.Int, error)
}

// VolumeReader sums the trailing day of buckets.
type VolumeReader interface {
	RollingVolume(ctx context.Context, pool string, now uint64) (model.Volume, error)
}

type Option func(*Writer)

// WithPinnedBlock makes every read use the event block instead of latest.
func WithPinnedBlock(pin bool) Option {
	return func(w *Writer) {
		w.pinBlock = pin
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) {
		w.metrics = m
	}
}

// Writer owns the refresh step shared by every state-mutating event.
type Writer struct {
	state     StateReader
	volumes   VolumeReader
	store     storage.SnapshotStore
	heuristic *pricing.Heuristic
	logger    *zap.Logger
	metrics   *metrics.Metrics
	pinBlock  bool
}

func NewWriter(state StateReader, volumes VolumeReader, store storage.SnapshotStore, heuristic *pricing.Heuristic, logger *zap.Logger, opts ...Option) (*Writer, error) {
	if state == nil || volumes == nil || store == nil || heuristic == nil {
		return nil, fmt.Errorf("snapshot writer dependencies are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Writer{
		state:     state,
		volumes:   volumes,
		store:     store,
		heuristic: heuristic,
		logger:    logger,
		pinBlock:  true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

type poolState struct {
	sqrtPriceX96 *big.Int
	liquidity    *big.Int
	balance0     *big.Int
	balance1     *big.Int
}

// Refresh reads the pool's state, derives prices, TVL and rolling volume as
// of timestamp, and overwrites the pool's snapshot. Nothing is written when
// any read fails.
func (w *Writer) Refresh(ctx context.Context, pool model.PoolRecord, timestamp, blockNumber uint64) (model.PoolMetricSnapshot, error) {
	start := time.Now()
	defer func() { w.metrics.ObserveRefresh(time.Since(start)) }()

	state, err := w.readState(ctx, pool, blockNumber)
	if err != nil {
		return model.PoolMetricSnapshot{}, fmt.Errorf("refresh %s: %w", pool.Address, err)
	}

	price0in1, price1in0 := pricing.PoolPrices(state.sqrtPriceX96, pool.Token0.Decimals, pool.Token1.Decimals)
	price0USD, price1USD := w.heuristic.PoolPricesUSD(pool, price0in1, price1in0)

	reserve0 := pricing.TokenAmount(state.balance0, pool.Token0.Decimals)
	reserve1 := pricing.TokenAmount(state.balance1, pool.Token1.Decimals)

	vol, err := w.volumes.RollingVolume(ctx, pool.Address, timestamp)
	if err != nil {
		return model.PoolMetricSnapshot{}, fmt.Errorf("refresh %s: %w", pool.Address, err)
	}

	snapshot := model.PoolMetricSnapshot{
		Pool:              pool.Address,
		SqrtPriceX96:      state.sqrtPriceX96,
		Liquidity:         state.liquidity,
		TVLToken0:         reserve0,
		TVLToken1:         reserve1,
		TotalLiquidityUSD: pricing.USDValue(reserve0, price0USD, reserve1, price1USD),
		PriceToken0USD:    price0USD,
		PriceToken1USD:    price1USD,
		Volume24hToken0:   vol.Amount0,
		Volume24hToken1:   vol.Amount1,
		Volume24hUSD:      vol.AmountUSD,
		UpdatedAt:         timestamp,
		BlockNumber:       blockNumber,
	}
	if err := w.store.UpsertPoolMetric(ctx, snapshot); err != nil {
		return model.PoolMetricSnapshot{}, fmt.Errorf("upsert snapshot %s: %w", pool.Address, err)
	}

	w.logger.Debug("pool snapshot refreshed",
		zap.String("pool", pool.Address),
		zap.Uint64("block", blockNumber),
		zap.String("tvl_usd", snapshot.TotalLiquidityUSD.StringFixed(2)),
		zap.String("volume_24h_usd", snapshot.Volume24hUSD.StringFixed(2)),
	)
	return snapshot, nil
}

func (w *Writer) readState(ctx context.Context, pool model.PoolRecord, blockNumber uint64) (poolState, error) {
	var block *big.Int
	if w.pinBlock && blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}
	poolAddr := common.HexToAddress(pool.Address)
	token0 := common.HexToAddress(pool.Token0.Address)
	token1 := common.HexToAddress(pool.Token1.Address)

	var state poolState
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slot0, err := w.state.Slot0(gctx, poolAddr, block)
		if err != nil {
			return fmt.Errorf("slot0: %w", err)
		}
		state.sqrtPriceX96 = slot0.SqrtPriceX96
		return nil
	})
	g.Go(func() error {
		liquidity, err := w.state.Liquidity(gctx, poolAddr, block)
		if err != nil {
			return fmt.Errorf("liquidity: %w", err)
		}
		state.liquidity = liquidity
		return nil
	})
	g.Go(func() error {
		balance, err := w.state.BalanceOf(gctx, token0, poolAddr, block)
		if err != nil {
			return fmt.Errorf("balance token0: %w", err)
		}
		state.balance0 = balance
		return nil
	})
	g.Go(func() error {
		balance, err := w.state.BalanceOf(gctx, token1, poolAddr, block)
		if err != nil {
			return fmt.Errorf("balance token1: %w", err)
		}
		state.balance1 = balance
		return nil
	})
	if err := g.Wait(); err != nil {
		return poolState{}, err
	}
	return state, nil
}
