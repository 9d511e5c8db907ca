package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolScope/internal/metrics"
	"poolScope/internal/model"
	"poolScope/internal/storage/memory"
)

const (
	tokenA = "0x55d398326f99059fF775485246999027B3197955"
	tokenB = "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"
	poolP  = "0x36696169C63e42cd08ce11f5deeBbCeBae652050"
)

type fakeTokenReader struct {
	calls  atomic.Int64
	fail   bool
	tokens map[string]model.Token
}

func (f *fakeTokenReader) lookup(token common.Address) (model.Token, error) {
	f.calls.Add(1)
	if f.fail {
		return model.Token{}, errors.New("execution reverted")
	}
	meta, ok := f.tokens[model.MustNormalizeAddress(token.Hex())]
	if !ok {
		return model.Token{}, fmt.Errorf("no contract at %s", token.Hex())
	}
	return meta, nil
}

func (f *fakeTokenReader) TokenSymbol(_ context.Context, token common.Address) (string, error) {
	meta, err := f.lookup(token)
	return meta.Symbol, err
}

func (f *fakeTokenReader) TokenName(_ context.Context, token common.Address) (string, error) {
	meta, err := f.lookup(token)
	return meta.Name, err
}

func (f *fakeTokenReader) TokenDecimals(_ context.Context, token common.Address) (uint8, error) {
	meta, err := f.lookup(token)
	return meta.Decimals, err
}

func newFakeTokenReader() *fakeTokenReader {
	return &fakeTokenReader{tokens: map[string]model.Token{
		model.MustNormalizeAddress(tokenA): {Symbol: "USDT", Name: "Tether USD", Decimals: 18},
		model.MustNormalizeAddress(tokenB): {Symbol: "WBNB", Name: "Wrapped BNB", Decimals: 18},
	}}
}

func newRegistry(t *testing.T, reader TokenReader, opts ...Option) (*Registry, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	reg, err := New(store, store, reader, NewMemoryCache(), nil, opts...)
	require.NoError(t, err)
	return reg, store
}

func TestEnsureTokenReadsOnceAndCaches(t *testing.T) {
	ctx := context.Background()
	reader := newFakeTokenReader()
	reg, store := newRegistry(t, reader)

	token, err := reg.EnsureToken(ctx, tokenA)
	require.NoError(t, err)
	assert.Equal(t, model.MustNormalizeAddress(tokenA), token.Address)
	assert.Equal(t, "USDT", token.Symbol)
	assert.Equal(t, "Tether USD", token.Name)
	assert.EqualValues(t, 18, token.Decimals)
	assert.EqualValues(t, 3, reader.calls.Load())

	again, err := reg.EnsureToken(ctx, tokenA)
	require.NoError(t, err)
	assert.Equal(t, token, again)
	assert.EqualValues(t, 3, reader.calls.Load(), "second lookup must be served from cache")

	stored, ok, err := store.GetToken(ctx, token.Address)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, token, stored)
}

func TestEnsureTokenUsesStoreBeforeChain(t *testing.T) {
	ctx := context.Background()
	reader := newFakeTokenReader()
	reg, store := newRegistry(t, reader)

	key := model.MustNormalizeAddress(tokenA)
	_, err := store.InsertToken(ctx, model.Token{Address: key, Symbol: "OLD", Name: "Old", Decimals: 6})
	require.NoError(t, err)

	token, err := reg.EnsureToken(ctx, tokenA)
	require.NoError(t, err)
	assert.Equal(t, "OLD", token.Symbol)
	assert.EqualValues(t, 6, token.Decimals)
	assert.Zero(t, reader.calls.Load())
}

func TestEnsureTokenFallbacks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	reader := &fakeTokenReader{fail: true}
	r, _ := newRegistry(t, reader, WithMetrics(m))

	token, err := r.EnsureToken(context.Background(), tokenA)
	require.NoError(t, err)
	assert.Equal(t, FallbackSymbol, token.Symbol)
	assert.Equal(t, FallbackName, token.Name)
	assert.EqualValues(t, FallbackDecimals, token.Decimals)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenFallbacks.WithLabelValues("symbol")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenFallbacks.WithLabelValues("decimals")))
}

func TestEnsureTokenRejectsInvalidAddress(t *testing.T) {
	r, _ := newRegistry(t, newFakeTokenReader())
	_, err := r.EnsureToken(context.Background(), "not-an-address")
	require.Error(t, err)
}

// sequenceReader hands out a different symbol on every symbol read.
type sequenceReader struct {
	n atomic.Int64
}

func (s *sequenceReader) TokenSymbol(context.Context, common.Address) (string, error) {
	return fmt.Sprintf("T%d", s.n.Add(1)), nil
}

func (s *sequenceReader) TokenName(context.Context, common.Address) (string, error) {
	return "Token", nil
}

func (s *sequenceReader) TokenDecimals(context.Context, common.Address) (uint8, error) {
	return 9, nil
}

func TestConcurrentEnsureTokenStoresOneRecord(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	const workers = 16
	results := make([]model.Token, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		// Separate registries so every goroutine misses its cache.
		reg, err := New(store, store, &sequenceReader{}, NewMemoryCache(), nil)
		require.NoError(t, err)
		wg.Add(1)
		go func(i int, reg *Registry) {
			defer wg.Done()
			token, err := reg.EnsureToken(ctx, tokenA)
			assert.NoError(t, err)
			results[i] = token
		}(i, reg)
	}
	wg.Wait()

	stored, ok, err := store.GetToken(ctx, model.MustNormalizeAddress(tokenA))
	require.NoError(t, err)
	require.True(t, ok)
	for _, token := range results {
		assert.Equal(t, stored, token)
	}
}

func TestEnsurePoolNotFound(t *testing.T) {
	r, _ := newRegistry(t, newFakeTokenReader())
	_, ok, err := r.EnsurePool(context.Background(), poolP)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterPoolMaterializesTokens(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t, newFakeTokenReader())

	created := model.PoolCreatedEventData{
		Token0:      tokenA,
		Token1:      tokenB,
		Fee:         500,
		TickSpacing: 10,
		Pool:        poolP,
	}
	record, err := r.RegisterPool(ctx, created, 1000, 77)
	require.NoError(t, err)
	assert.Equal(t, model.MustNormalizeAddress(poolP), record.Address)
	assert.Equal(t, "USDT", record.Token0.Symbol)
	assert.Equal(t, "WBNB", record.Token1.Symbol)
	assert.EqualValues(t, 500, record.Fee)
	assert.EqualValues(t, 1000, record.CreatedAt)
	assert.EqualValues(t, 77, record.CreatedBlock)

	row, ok, err := store.GetPool(ctx, record.Address)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record.Row(), row)

	// A second registration keeps the first row.
	again, err := r.RegisterPool(ctx, created, 2000, 99)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, again.CreatedAt)

	// A fresh registry resolves the pool from storage.
	fresh, err := New(store, store, newFakeTokenReader(), NewMemoryCache(), nil)
	require.NoError(t, err)
	found, ok, err := fresh.EnsurePool(ctx, poolP)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record, found)
}

func TestRegisterPoolWithFailingTokenReads(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t, &fakeTokenReader{fail: true})

	record, err := r.RegisterPool(ctx, model.PoolCreatedEventData{
		Token0: tokenA, Token1: tokenB, Fee: 2500, TickSpacing: 50, Pool: poolP,
	}, 1000, 1)
	require.NoError(t, err)
	assert.Equal(t, FallbackSymbol, record.Token0.Symbol)
	assert.EqualValues(t, 18, record.Token1.Decimals)

	_, ok, err := store.GetPool(ctx, record.Address)
	require.NoError(t, err)
	assert.True(t, ok)
}
