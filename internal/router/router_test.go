package router

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolScope/internal/dex"
	"poolScope/internal/metrics"
	"poolScope/internal/model"
	"poolScope/internal/pricing"
	"poolScope/internal/registry"
	"poolScope/internal/snapshot"
	"poolScope/internal/storage"
	"poolScope/internal/storage/memory"
	"poolScope/internal/volume"
)

const (
	factory = "0x0bfbcf9fa4f9c56b0f40a671ad40e0805a091865"
	cake    = "0x0e09fabb73bd3ade0a17ecc321fd13a19e81ce82"
	usdt    = "0x55d398326f99059ff775485246999027b3197955"
	poolA   = "0x7f51c8aaa6b0599abd16674e2b17fec7a9f674a1"
	poolB   = "0x36696169c63e42cd08ce11f5deebbcebae652050"
)

// fakeChain serves both token metadata and pool state.
type fakeChain struct {
	failTokens bool
	failState  bool
}

func (f *fakeChain) TokenSymbol(_ context.Context, token common.Address) (string, error) {
	if f.failTokens {
		return "", errors.New("execution reverted")
	}
	switch model.MustNormalizeAddress(token.Hex()) {
	case cake:
		return "Cake", nil
	case usdt:
		return "USDT", nil
	}
	return "", errors.New("unknown token")
}

func (f *fakeChain) TokenName(_ context.Context, _ common.Address) (string, error) {
	if f.failTokens {
		return "", errors.New("execution reverted")
	}
	return "Token", nil
}

func (f *fakeChain) TokenDecimals(_ context.Context, _ common.Address) (uint8, error) {
	if f.failTokens {
		return 0, errors.New("execution reverted")
	}
	return 18, nil
}

func (f *fakeChain) Slot0(context.Context, common.Address, *big.Int) (dex.Slot0, error) {
	if f.failState {
		return dex.Slot0{}, errors.New("missing trie node")
	}
	return dex.Slot0{SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96)}, nil
}

func (f *fakeChain) Liquidity(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeChain) BalanceOf(context.Context, common.Address, common.Address, *big.Int) (*big.Int, error) {
	return units(10), nil
}

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type harness struct {
	store   *memory.Store
	router  *Router
	metrics *metrics.Metrics
	chain   *fakeChain
}

// flakyStore fails the next RecordSwap calls before reaching the ledger.
type flakyStore struct {
	*memory.Store
	failures int
}

func (f *flakyStore) RecordSwap(ctx context.Context, swap model.PoolSwap) (bool, error) {
	if f.failures > 0 {
		f.failures--
		return false, errors.New("connection reset by peer")
	}
	return f.Store.RecordSwap(ctx, swap)
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithLedger(t, nil)
}

func newHarnessWithLedger(t *testing.T, wrap func(*memory.Store) storage.VolumeStore) *harness {
	t.Helper()
	chain := &fakeChain{}
	store := memory.NewStore()
	var ledger storage.VolumeStore = store
	if wrap != nil {
		ledger = wrap(store)
	}
	m := metrics.New(prometheus.NewRegistry())
	heuristic := pricing.NewHeuristic(pricing.Config{})

	reg, err := registry.New(store, store, chain, registry.NewMemoryCache(), nil, registry.WithMetrics(m))
	require.NoError(t, err)
	vols := volume.NewStore(ledger)
	writer, err := snapshot.NewWriter(chain, vols, store, heuristic, nil, snapshot.WithMetrics(m))
	require.NoError(t, err)
	r, err := New(reg, vols, writer, heuristic, nil, WithFactory(factory), WithMetrics(m))
	require.NoError(t, err)
	return &harness{store: store, router: r, metrics: m, chain: chain}
}

func poolCreated(pool string, ts uint64) model.Event {
	return model.Event{
		Kind:        model.KindPoolCreated,
		Address:     factory,
		BlockNumber: 1,
		Timestamp:   ts,
		LogID:       model.LogID(1, "0xc0", 0),
		PoolCreated: &model.PoolCreatedEventData{Token0: cake, Token1: usdt, Fee: 2500, TickSpacing: 50, Pool: pool},
	}
}

func swapEvent(pool string, ts, block uint64, tx string, amount0, amount1 string) model.Event {
	return model.Event{
		Kind:        model.KindSwap,
		Address:     pool,
		BlockNumber: block,
		Timestamp:   ts,
		LogID:       model.LogID(block, tx, 3),
		Swap: &model.SwapEventData{
			Amount0:      amount0,
			Amount1:      amount1,
			SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96).String(),
		},
	}
}

func TestPoolCreatedRegistersAndRefreshes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.router.Handle(ctx, poolCreated(poolA, 100)))

	pool, ok, err := h.store.GetPool(ctx, poolA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cake, pool.Token0)
	assert.Equal(t, usdt, pool.Token1)

	snap, ok, err := h.store.PoolMetric(ctx, poolA)
	require.NoError(t, err)
	require.True(t, ok)
	// Rate 1 against a stablecoin: both sides at 1 USD, 10 + 10 reserves.
	assert.True(t, snap.TotalLiquidityUSD.Equal(decimal.NewFromInt(20)), "got %s", snap.TotalLiquidityUSD)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsTotal.WithLabelValues("PoolCreated", "ok")))
}

func TestPoolCreatedFromForeignFactoryIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	event := poolCreated(poolA, 100)
	event.Address = "0x1111111111111111111111111111111111111111"
	require.NoError(t, h.router.Handle(ctx, event))

	_, ok, err := h.store.GetPool(ctx, poolA)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsSkipped.WithLabelValues("foreign_factory")))
}

func TestPoolCreatedWithFailingTokenReads(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.chain.failTokens = true

	require.NoError(t, h.router.Handle(ctx, poolCreated(poolA, 100)))

	token, ok, err := h.store.GetToken(ctx, cake)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, registry.FallbackSymbol, token.Symbol)
	assert.EqualValues(t, 18, token.Decimals)

	_, ok, err = h.store.GetPool(ctx, poolA)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSwapScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.router.Handle(ctx, poolCreated(poolA, 0)))

	fifty := units(50).String()
	first := swapEvent(poolA, 1000, 10, "0xaa", "0", fifty)
	require.NoError(t, h.router.Handle(ctx, first))

	buckets := h.store.Buckets(poolA)
	require.Len(t, buckets, 1)
	assert.EqualValues(t, 0, buckets[0].BucketStart)
	assert.True(t, buckets[0].Amount1.Equal(decimal.NewFromInt(50)))
	assert.True(t, buckets[0].AmountUSD.Equal(decimal.NewFromInt(50)))

	second := swapEvent(poolA, 1500, 11, "0xbb", "0", "-"+fifty)
	require.NoError(t, h.router.Handle(ctx, second))

	buckets = h.store.Buckets(poolA)
	require.Len(t, buckets, 1)
	assert.True(t, buckets[0].Amount1.Equal(decimal.NewFromInt(100)))
	assert.True(t, buckets[0].AmountUSD.Equal(decimal.NewFromInt(100)))

	snap, ok, err := h.store.PoolMetric(ctx, poolA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, snap.Volume24hUSD.Equal(decimal.NewFromInt(100)))
	assert.EqualValues(t, 11, snap.BlockNumber)

	// Replaying a swap must not count it twice.
	require.NoError(t, h.router.Handle(ctx, second))
	buckets = h.store.Buckets(poolA)
	assert.True(t, buckets[0].AmountUSD.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsSkipped.WithLabelValues("duplicate_swap")))

	// 25 hours later bucket 0 has aged out.
	mint := model.Event{Kind: model.KindMint, Address: poolA, BlockNumber: 99, Timestamp: 90000, LogID: model.LogID(99, "0xcc", 0)}
	require.NoError(t, h.router.Handle(ctx, mint))
	snap, _, err = h.store.PoolMetric(ctx, poolA)
	require.NoError(t, err)
	assert.True(t, snap.Volume24hUSD.IsZero())
	assert.EqualValues(t, 90000, snap.UpdatedAt)
}

func TestSwapRetriedAfterStoreFailureCountsOnce(t *testing.T) {
	ctx := context.Background()
	ledger := &flakyStore{}
	h := newHarnessWithLedger(t, func(store *memory.Store) storage.VolumeStore {
		ledger.Store = store
		return ledger
	})
	require.NoError(t, h.router.Handle(ctx, poolCreated(poolA, 0)))

	swap := swapEvent(poolA, 1000, 10, "0xaa", "0", units(50).String())
	ledger.failures = 1
	require.Error(t, h.router.Handle(ctx, swap))
	assert.Empty(t, h.store.Buckets(poolA))

	require.NoError(t, h.router.Handle(ctx, swap))
	buckets := h.store.Buckets(poolA)
	require.Len(t, buckets, 1)
	assert.EqualValues(t, 0, buckets[0].BucketStart)
	assert.True(t, buckets[0].Amount1.Equal(decimal.NewFromInt(50)))

	snap, ok, err := h.store.PoolMetric(ctx, poolA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, snap.Volume24hUSD.Equal(decimal.NewFromInt(50)))

	require.NoError(t, h.router.Handle(ctx, swap))
	buckets = h.store.Buckets(poolA)
	assert.True(t, buckets[0].Amount1.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsSkipped.WithLabelValues("duplicate_swap")))
}

func TestInitializeIsNotDispatched(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.router.Handle(ctx, poolCreated(poolA, 100)))

	initialize := model.Event{Kind: model.KindInitialize, Address: poolA, BlockNumber: 2, Timestamp: 500, LogID: model.LogID(2, "0xdd", 0)}
	require.NoError(t, h.router.Handle(ctx, initialize))

	snap, ok, err := h.store.PoolMetric(ctx, poolA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 100, snap.UpdatedAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsSkipped.WithLabelValues("unsupported_kind")))
	assert.Zero(t, testutil.ToFloat64(h.metrics.EventsTotal.WithLabelValues("Initialize", "ok")))
}

func TestSwapUSDSumsBothSides(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.router.Handle(ctx, poolCreated(poolA, 0)))

	require.NoError(t, h.router.Handle(ctx, swapEvent(poolA, 7200, 5, "0xaa", "-"+units(3).String(), units(4).String())))

	buckets := h.store.Buckets(poolA)
	require.Len(t, buckets, 1)
	assert.True(t, buckets[0].Amount0.Equal(decimal.NewFromInt(3)))
	assert.True(t, buckets[0].AmountUSD.Equal(decimal.NewFromInt(7)))
}

func TestEventsForUnknownPoolAreNoops(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.router.Handle(ctx, swapEvent(poolB, 1000, 1, "0xaa", "1", "1")))
	require.NoError(t, h.router.Handle(ctx, model.Event{Kind: model.KindBurn, Address: poolB, Timestamp: 1000}))

	assert.Empty(t, h.store.Buckets(poolB))
	assert.Zero(t, h.store.MetricCount())
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.EventsSkipped.WithLabelValues("unknown_pool")))
}

func TestRefreshFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.router.Handle(ctx, poolCreated(poolA, 0)))
	h.chain.failState = true

	err := h.router.Handle(ctx, model.Event{Kind: model.KindCollect, Address: poolA, Timestamp: 10, LogID: "5:0xdd:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "5:0xdd:1")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.EventsTotal.WithLabelValues("Collect", "error")))
}

func TestMalformedSwapIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.router.Handle(ctx, poolCreated(poolA, 0)))

	require.Error(t, h.router.Handle(ctx, swapEvent(poolA, 10, 1, "0xaa", "abc", "1")))
	require.Error(t, h.router.Handle(ctx, model.Event{Kind: model.KindSwap, Address: poolA}))
}
