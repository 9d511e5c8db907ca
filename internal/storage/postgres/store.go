package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"poolScope/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for the registry, bucket ledger,
// snapshots and indexer state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, address string) (model.Token, bool, error) {
	var token model.Token
	var decimals int16
	err := s.pool.QueryRow(ctx,
		`SELECT address, symbol, name, decimals FROM tokens WHERE address=$1`, address,
	).Scan(&token.Address, &token.Symbol, &token.Name, &decimals)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Token{}, false, nil
		}
		return model.Token{}, false, err
	}
	token.Decimals = uint8(decimals)
	return token, true, nil
}

func (s *Store) InsertToken(ctx context.Context, token model.Token) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (address, symbol, name, decimals)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address) DO NOTHING
	`, token.Address, token.Symbol, token.Name, int16(token.Decimals))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const poolColumns = `address, token0, token1, fee, tick_spacing, created_ts, created_block`

func scanPool(row pgx.Row) (model.Pool, error) {
	var pool model.Pool
	var fee, tickSpacing int32
	var createdTS, createdBlock int64
	if err := row.Scan(&pool.Address, &pool.Token0, &pool.Token1, &fee, &tickSpacing, &createdTS, &createdBlock); err != nil {
		return model.Pool{}, err
	}
	pool.Fee = uint32(fee)
	pool.TickSpacing = tickSpacing
	pool.CreatedAt = uint64(createdTS)
	pool.CreatedBlock = uint64(createdBlock)
	return pool, nil
}

func (s *Store) GetPool(ctx context.Context, address string) (model.Pool, bool, error) {
	pool, err := scanPool(s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE address=$1`, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, false, nil
		}
		return model.Pool{}, false, err
	}
	return pool, true, nil
}

func (s *Store) InsertPool(ctx context.Context, pool model.Pool) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO pools (`+poolColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO NOTHING
	`,
		pool.Address,
		pool.Token0,
		pool.Token1,
		int32(pool.Fee),
		pool.TickSpacing,
		int64(pool.CreatedAt),
		int64(pool.CreatedBlock),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) GetBucket(ctx context.Context, pool string, bucketStart uint64) (model.VolumeBucket, bool, error) {
	var a0, a1, usd string
	var updatedAt int64
	err := s.pool.QueryRow(ctx, `
		SELECT amount0::text, amount1::text, amount_usd::text, updated_at
		FROM volume_buckets WHERE pool_address=$1 AND bucket_start=$2
	`, pool, int64(bucketStart)).Scan(&a0, &a1, &usd, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.VolumeBucket{}, false, nil
		}
		return model.VolumeBucket{}, false, err
	}
	vol, err := parseVolume(a0, a1, usd)
	if err != nil {
		return model.VolumeBucket{}, false, err
	}
	return model.VolumeBucket{
		Pool:        pool,
		BucketStart: bucketStart,
		Amount0:     vol.Amount0,
		Amount1:     vol.Amount1,
		AmountUSD:   vol.AmountUSD,
		UpdatedAt:   uint64(updatedAt),
	}, true, nil
}

func (s *Store) InsertBucket(ctx context.Context, bucket model.VolumeBucket) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO volume_buckets (pool_address, bucket_start, amount0, amount1, amount_usd, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6)
		ON CONFLICT (pool_address, bucket_start) DO NOTHING
	`,
		bucket.Pool,
		int64(bucket.BucketStart),
		bucket.Amount0.String(),
		bucket.Amount1.String(),
		bucket.AmountUSD.String(),
		int64(bucket.UpdatedAt),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const addToBucketSQL = `
	INSERT INTO volume_buckets (pool_address, bucket_start, amount0, amount1, amount_usd, updated_at)
	VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6)
	ON CONFLICT (pool_address, bucket_start) DO UPDATE SET
		amount0 = volume_buckets.amount0 + EXCLUDED.amount0,
		amount1 = volume_buckets.amount1 + EXCLUDED.amount1,
		amount_usd = volume_buckets.amount_usd + EXCLUDED.amount_usd,
		updated_at = GREATEST(volume_buckets.updated_at, EXCLUDED.updated_at)
`

// AddToBucket increments a bucket in one statement, creating it if needed.
func (s *Store) AddToBucket(ctx context.Context, pool string, bucketStart uint64, delta model.Volume, updatedAt uint64) error {
	_, err := s.pool.Exec(ctx, addToBucketSQL,
		pool,
		int64(bucketStart),
		delta.Amount0.String(),
		delta.Amount1.String(),
		delta.AmountUSD.String(),
		int64(updatedAt),
	)
	return err
}

func (s *Store) UpsertPoolMetric(ctx context.Context, m model.PoolMetricSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_metrics (
			pool_address, sqrt_price_x96, liquidity, tvl_token0, tvl_token1, total_liquidity_usd,
			price_token0_usd, price_token1_usd, volume_24h_token0, volume_24h_token1, volume_24h_usd,
			updated_at, block_number
		) VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::numeric,
			$7, $8, $9::numeric, $10::numeric, $11::numeric, $12, $13)
		ON CONFLICT (pool_address) DO UPDATE SET
			sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
			liquidity = EXCLUDED.liquidity,
			tvl_token0 = EXCLUDED.tvl_token0,
			tvl_token1 = EXCLUDED.tvl_token1,
			total_liquidity_usd = EXCLUDED.total_liquidity_usd,
			price_token0_usd = EXCLUDED.price_token0_usd,
			price_token1_usd = EXCLUDED.price_token1_usd,
			volume_24h_token0 = EXCLUDED.volume_24h_token0,
			volume_24h_token1 = EXCLUDED.volume_24h_token1,
			volume_24h_usd = EXCLUDED.volume_24h_usd,
			updated_at = EXCLUDED.updated_at,
			block_number = EXCLUDED.block_number
	`,
		m.Pool,
		bigString(m.SqrtPriceX96),
		bigString(m.Liquidity),
		m.TVLToken0.String(),
		m.TVLToken1.String(),
		m.TotalLiquidityUSD.String(),
		m.PriceToken0USD,
		m.PriceToken1USD,
		m.Volume24hToken0.String(),
		m.Volume24hToken1.String(),
		m.Volume24hUSD.String(),
		int64(m.UpdatedAt),
		int64(m.BlockNumber),
	)
	return err
}

// RecordSwap writes the ledger row and the bucket increment in one
// transaction, so a failed increment leaves no ledger row behind.
func (s *Store) RecordSwap(ctx context.Context, swap model.PoolSwap) (bool, error) {
	recorded := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO pool_swaps (id, pool_address, amount0, amount1, amount_usd, ts, block_number)
			VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`,
			swap.ID,
			swap.Pool,
			swap.Amount0.String(),
			swap.Amount1.String(),
			swap.AmountUSD.String(),
			int64(swap.Timestamp),
			int64(swap.BlockNumber),
		)
		if err != nil {
			return fmt.Errorf("insert swap: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, addToBucketSQL,
			swap.Pool,
			int64(model.BucketStart(swap.Timestamp)),
			swap.Amount0.String(),
			swap.Amount1.String(),
			swap.AmountUSD.String(),
			int64(swap.Timestamp),
		); err != nil {
			return fmt.Errorf("add to bucket: %w", err)
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

func (s *Store) TokenByAddress(ctx context.Context, address string) (model.Token, bool, error) {
	return s.GetToken(ctx, address)
}

func (s *Store) SearchTokens(ctx context.Context, query string, limit int) ([]model.Token, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT address, symbol, name, decimals FROM tokens
		WHERE symbol ILIKE '%' || $1 || '%' ESCAPE '\' OR name ILIKE '%' || $1 || '%' ESCAPE '\'
		ORDER BY symbol, address
		LIMIT $2
	`, escapeLike(query), limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Token, 0)
	for rows.Next() {
		var token model.Token
		var decimals int16
		if err := rows.Scan(&token.Address, &token.Symbol, &token.Name, &decimals); err != nil {
			return nil, err
		}
		token.Decimals = uint8(decimals)
		out = append(out, token)
	}
	return out, rows.Err()
}

func (s *Store) PoolByAddress(ctx context.Context, address string) (model.Pool, bool, error) {
	return s.GetPool(ctx, address)
}

func (s *Store) PoolsByToken(ctx context.Context, token string, feeTiers []uint32, limit int) ([]model.Pool, error) {
	return s.queryPools(ctx, `
		SELECT `+poolColumns+` FROM pools
		WHERE (token0=$1 OR token1=$1) AND ($2::int[] IS NULL OR fee = ANY($2))
		ORDER BY created_ts DESC, address
		LIMIT $3
	`, token, feeArg(feeTiers), limitArg(limit))
}

func (s *Store) RecentPools(ctx context.Context, feeTiers []uint32, limit int) ([]model.Pool, error) {
	return s.queryPools(ctx, `
		SELECT `+poolColumns+` FROM pools
		WHERE ($1::int[] IS NULL OR fee = ANY($1))
		ORDER BY created_ts DESC, address
		LIMIT $2
	`, feeArg(feeTiers), limitArg(limit))
}

func (s *Store) queryPools(ctx context.Context, sql string, args ...interface{}) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Pool, 0)
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pool)
	}
	return out, rows.Err()
}

func (s *Store) PoolVolumes(ctx context.Context, pools []string, now uint64) (map[string]model.PoolVolume, error) {
	out := make(map[string]model.PoolVolume, len(pools))
	for _, pool := range pools {
		out[pool] = model.PoolVolume{Pool: pool}
	}
	if len(pools) == 0 {
		return out, nil
	}

	first, last := model.DayWindow(now)
	rows, err := s.pool.Query(ctx, `
		SELECT pool_address,
			COALESCE(SUM(amount0), 0)::text,
			COALESCE(SUM(amount1), 0)::text,
			COALESCE(SUM(amount_usd), 0)::text,
			COALESCE(SUM(amount0) FILTER (WHERE bucket_start = $3), 0)::text,
			COALESCE(SUM(amount1) FILTER (WHERE bucket_start = $3), 0)::text,
			COALESCE(SUM(amount_usd) FILTER (WHERE bucket_start = $3), 0)::text
		FROM volume_buckets
		WHERE pool_address = ANY($1) AND bucket_start BETWEEN $2 AND $3
		GROUP BY pool_address
	`, pools, int64(first), int64(last))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var pool, d0, d1, dUSD, h0, h1, hUSD string
		if err := rows.Scan(&pool, &d0, &d1, &dUSD, &h0, &h1, &hUSD); err != nil {
			return nil, err
		}
		day, err := parseVolume(d0, d1, dUSD)
		if err != nil {
			return nil, err
		}
		hour, err := parseVolume(h0, h1, hUSD)
		if err != nil {
			return nil, err
		}
		out[pool] = model.PoolVolume{Pool: pool, CurrentHour: hour, LastDay: day}
	}
	return out, rows.Err()
}

func (s *Store) PoolMetric(ctx context.Context, pool string) (model.PoolMetricSnapshot, bool, error) {
	var sqrt, liquidity, tvl0, tvl1, tvlUSD, v0, v1, vUSD string
	var updatedAt, blockNumber int64
	m := model.PoolMetricSnapshot{Pool: pool}
	err := s.pool.QueryRow(ctx, `
		SELECT sqrt_price_x96::text, liquidity::text, tvl_token0::text, tvl_token1::text,
			total_liquidity_usd::text, price_token0_usd, price_token1_usd,
			volume_24h_token0::text, volume_24h_token1::text, volume_24h_usd::text,
			updated_at, block_number
		FROM pool_metrics WHERE pool_address=$1
	`, pool).Scan(&sqrt, &liquidity, &tvl0, &tvl1, &tvlUSD, &m.PriceToken0USD, &m.PriceToken1USD,
		&v0, &v1, &vUSD, &updatedAt, &blockNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PoolMetricSnapshot{}, false, nil
		}
		return model.PoolMetricSnapshot{}, false, err
	}

	var ok bool
	if m.SqrtPriceX96, ok = new(big.Int).SetString(sqrt, 10); !ok {
		return model.PoolMetricSnapshot{}, false, fmt.Errorf("invalid sqrt price %q", sqrt)
	}
	if m.Liquidity, ok = new(big.Int).SetString(liquidity, 10); !ok {
		return model.PoolMetricSnapshot{}, false, fmt.Errorf("invalid liquidity %q", liquidity)
	}
	tvl, err := parseVolume(tvl0, tvl1, tvlUSD)
	if err != nil {
		return model.PoolMetricSnapshot{}, false, err
	}
	vol, err := parseVolume(v0, v1, vUSD)
	if err != nil {
		return model.PoolMetricSnapshot{}, false, err
	}
	m.TVLToken0, m.TVLToken1, m.TotalLiquidityUSD = tvl.Amount0, tvl.Amount1, tvl.AmountUSD
	m.Volume24hToken0, m.Volume24hToken1, m.Volume24hUSD = vol.Amount0, vol.Amount1, vol.AmountUSD
	m.UpdatedAt = uint64(updatedAt)
	m.BlockNumber = uint64(blockNumber)
	return m, true, nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func parseVolume(a0, a1, usd string) (model.Volume, error) {
	amount0, err := decimal.NewFromString(a0)
	if err != nil {
		return model.Volume{}, fmt.Errorf("parse amount0: %w", err)
	}
	amount1, err := decimal.NewFromString(a1)
	if err != nil {
		return model.Volume{}, fmt.Errorf("parse amount1: %w", err)
	}
	amountUSD, err := decimal.NewFromString(usd)
	if err != nil {
		return model.Volume{}, fmt.Errorf("parse usd amount: %w", err)
	}
	return model.Volume{Amount0: amount0, Amount1: amount1, AmountUSD: amountUSD}, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// feeArg maps an empty tier list to NULL, which matches every fee.
func feeArg(tiers []uint32) []int32 {
	if len(tiers) == 0 {
		return nil
	}
	out := make([]int32, len(tiers))
	for i, tier := range tiers {
		out[i] = int32(tier)
	}
	return out
}

// limitArg maps a non-positive limit to NULL, which Postgres reads as no limit.
func limitArg(limit int) *int64 {
	if limit <= 0 {
		return nil
	}
	v := int64(limit)
	return &v
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
