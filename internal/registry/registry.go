// Package registry is the durable directory of tokens and pools.
package registry

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolScope/internal/metrics"
	"poolScope/internal/model"
	"poolScope/internal/storage"
)

// Values stored when a token metadata read fails.
const (
	FallbackSymbol   = "UNKNOWN"
	FallbackName     = "Unknown Token"
	FallbackDecimals = 18
)

// TokenReader reads ERC20 metadata. *dex.Reader satisfies it.
type TokenReader interface {
	TokenSymbol(ctx context.Context, token common.Address) (string, error)
	TokenName(ctx context.Context, token common.Address) (string, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
}

type Option func(*Registry)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry resolves tokens and pools through cache, store and chain, in that
// order. It is safe for concurrent use.
type Registry struct {
	tokens  storage.TokenStore
	pools   storage.PoolStore
	reader  TokenReader
	cache   Cache
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(tokens storage.TokenStore, pools storage.PoolStore, reader TokenReader, cache Cache, logger *zap.Logger, opts ...Option) (*Registry, error) {
	if tokens == nil || pools == nil {
		return nil, fmt.Errorf("registry stores are required")
	}
	if reader == nil {
		return nil, fmt.Errorf("token reader is nil")
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		tokens: tokens,
		pools:  pools,
		reader: reader,
		cache:  cache,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// EnsureToken returns the token record for address, creating it from chain
// metadata on first sight. Metadata read failures are replaced by fallbacks;
// only invalid input and storage errors are returned.
func (r *Registry) EnsureToken(ctx context.Context, address string) (model.Token, error) {
	key, err := model.NormalizeAddress(address)
	if err != nil {
		return model.Token{}, err
	}
	if token, ok := r.cache.GetToken(ctx, key); ok {
		return token, nil
	}

	token, ok, err := r.tokens.GetToken(ctx, key)
	if err != nil {
		return model.Token{}, fmt.Errorf("get token %s: %w", key, err)
	}
	if ok {
		r.cache.SetToken(ctx, token)
		return token, nil
	}

	token = r.readToken(ctx, key)
	if _, err := r.tokens.InsertToken(ctx, token); err != nil {
		return model.Token{}, fmt.Errorf("insert token %s: %w", key, err)
	}
	// A concurrent insert may have won; the stored row is authoritative.
	stored, ok, err := r.tokens.GetToken(ctx, key)
	if err != nil {
		return model.Token{}, fmt.Errorf("get token %s: %w", key, err)
	}
	if !ok {
		return model.Token{}, fmt.Errorf("token %s missing after insert", key)
	}
	r.cache.SetToken(ctx, stored)
	return stored, nil
}

func (r *Registry) readToken(ctx context.Context, key string) model.Token {
	address := common.HexToAddress(key)
	token := model.Token{
		Address:  key,
		Symbol:   FallbackSymbol,
		Name:     FallbackName,
		Decimals: FallbackDecimals,
	}

	// Each read falls back on its own, so the group never returns an error.
	var g errgroup.Group
	g.Go(func() error {
		symbol, err := r.reader.TokenSymbol(ctx, address)
		if err != nil || symbol == "" {
			r.fallback(key, "symbol", err)
			return nil
		}
		token.Symbol = symbol
		return nil
	})
	g.Go(func() error {
		name, err := r.reader.TokenName(ctx, address)
		if err != nil || name == "" {
			r.fallback(key, "name", err)
			return nil
		}
		token.Name = name
		return nil
	})
	g.Go(func() error {
		decimals, err := r.reader.TokenDecimals(ctx, address)
		if err != nil {
			r.fallback(key, "decimals", err)
			return nil
		}
		token.Decimals = decimals
		return nil
	})
	_ = g.Wait()
	return token
}

func (r *Registry) fallback(token, field string, err error) {
	r.metrics.TokenFallback(field)
	r.logger.Warn("token metadata read failed, using fallback",
		zap.String("token", token),
		zap.String("field", field),
		zap.Error(err),
	)
}

// EnsurePool returns the materialized pool record. Unknown pools are reported
// with ok=false; pools are only created by RegisterPool.
func (r *Registry) EnsurePool(ctx context.Context, address string) (model.PoolRecord, bool, error) {
	key, err := model.NormalizeAddress(address)
	if err != nil {
		return model.PoolRecord{}, false, err
	}
	if pool, ok := r.cache.GetPool(ctx, key); ok {
		return pool, true, nil
	}

	row, ok, err := r.pools.GetPool(ctx, key)
	if err != nil {
		return model.PoolRecord{}, false, fmt.Errorf("get pool %s: %w", key, err)
	}
	if !ok {
		return model.PoolRecord{}, false, nil
	}
	record, err := r.materialize(ctx, row)
	if err != nil {
		return model.PoolRecord{}, false, err
	}
	r.cache.SetPool(ctx, record)
	return record, true, nil
}

// RegisterPool stores a pool announced by the factory. Both tokens are
// resolved before the pool row is written; an existing row is kept.
func (r *Registry) RegisterPool(ctx context.Context, created model.PoolCreatedEventData, timestamp, blockNumber uint64) (model.PoolRecord, error) {
	key, err := model.NormalizeAddress(created.Pool)
	if err != nil {
		return model.PoolRecord{}, err
	}
	token0, err := r.EnsureToken(ctx, created.Token0)
	if err != nil {
		return model.PoolRecord{}, fmt.Errorf("pool %s token0: %w", key, err)
	}
	token1, err := r.EnsureToken(ctx, created.Token1)
	if err != nil {
		return model.PoolRecord{}, fmt.Errorf("pool %s token1: %w", key, err)
	}

	row := model.Pool{
		Address:      key,
		Token0:       token0.Address,
		Token1:       token1.Address,
		Fee:          created.Fee,
		TickSpacing:  created.TickSpacing,
		CreatedAt:    timestamp,
		CreatedBlock: blockNumber,
	}
	inserted, err := r.pools.InsertPool(ctx, row)
	if err != nil {
		return model.PoolRecord{}, fmt.Errorf("insert pool %s: %w", key, err)
	}
	if !inserted {
		stored, ok, err := r.pools.GetPool(ctx, key)
		if err != nil {
			return model.PoolRecord{}, fmt.Errorf("get pool %s: %w", key, err)
		}
		if !ok {
			return model.PoolRecord{}, fmt.Errorf("pool %s missing after insert", key)
		}
		row = stored
	}

	record, err := r.materialize(ctx, row)
	if err != nil {
		return model.PoolRecord{}, err
	}
	r.cache.SetPool(ctx, record)
	if inserted {
		r.logger.Info("pool registered",
			zap.String("pool", key),
			zap.String("token0", record.Token0.Symbol),
			zap.String("token1", record.Token1.Symbol),
			zap.Uint32("fee", record.Fee),
		)
	}
	return record, nil
}

func (r *Registry) materialize(ctx context.Context, row model.Pool) (model.PoolRecord, error) {
	token0, err := r.EnsureToken(ctx, row.Token0)
	if err != nil {
		return model.PoolRecord{}, fmt.Errorf("pool %s token0: %w", row.Address, err)
	}
	token1, err := r.EnsureToken(ctx, row.Token1)
	if err != nil {
		return model.PoolRecord{}, fmt.Errorf("pool %s token1: %w", row.Address, err)
	}
	return model.PoolRecord{
		Address:      row.Address,
		Token0:       token0,
		Token1:       token1,
		Fee:          row.Fee,
		TickSpacing:  row.TickSpacing,
		CreatedAt:    row.CreatedAt,
		CreatedBlock: row.CreatedBlock,
	}, nil
}
