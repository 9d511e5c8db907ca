// Package storage declares the keyed persistence interfaces used by the
// indexing engine and the read surface served to callers.
package storage

import (
	"context"

	"poolScope/internal/model"
)

// LogSink receives raw log batches.
type LogSink interface {
	PutLogBatch(logs []model.LogRecord) error
}

// TokenStore persists tokens. InsertToken never overwrites; it reports
// whether this call created the row.
type TokenStore interface {
	GetToken(ctx context.Context, address string) (model.Token, bool, error)
	InsertToken(ctx context.Context, token model.Token) (bool, error)
}

// PoolStore persists pools with insert-do-nothing semantics.
type PoolStore interface {
	GetPool(ctx context.Context, address string) (model.Pool, bool, error)
	InsertPool(ctx context.Context, pool model.Pool) (bool, error)
}

// BucketStore persists hourly volume buckets. AddToBucket increments an
// existing row in place.
type BucketStore interface {
	GetBucket(ctx context.Context, pool string, bucketStart uint64) (model.VolumeBucket, bool, error)
	InsertBucket(ctx context.Context, bucket model.VolumeBucket) (bool, error)
	AddToBucket(ctx context.Context, pool string, bucketStart uint64, delta model.Volume, updatedAt uint64) error
}

// SnapshotStore overwrites the latest snapshot per pool.
type SnapshotStore interface {
	UpsertPoolMetric(ctx context.Context, snapshot model.PoolMetricSnapshot) error
}

// SwapStore is the applied-swap ledger keyed by log id. RecordSwap inserts the
// ledger row and adds the swap magnitudes to the bucket of swap.Timestamp as
// one atomic step. It reports false and changes nothing when the id is already
// recorded.
type SwapStore interface {
	RecordSwap(ctx context.Context, swap model.PoolSwap) (bool, error)
}

// VolumeStore is the bucket ledger together with the swap ledger.
type VolumeStore interface {
	BucketStore
	SwapStore
}

// Reader is the outbound read surface. Pool listings are ordered by
// creation time, newest first; an empty feeTiers slice matches every tier.
type Reader interface {
	TokenByAddress(ctx context.Context, address string) (model.Token, bool, error)
	SearchTokens(ctx context.Context, query string, limit int) ([]model.Token, error)
	PoolByAddress(ctx context.Context, address string) (model.Pool, bool, error)
	PoolsByToken(ctx context.Context, token string, feeTiers []uint32, limit int) ([]model.Pool, error)
	RecentPools(ctx context.Context, feeTiers []uint32, limit int) ([]model.Pool, error)
	PoolVolumes(ctx context.Context, pools []string, now uint64) (map[string]model.PoolVolume, error)
	PoolMetric(ctx context.Context, pool string) (model.PoolMetricSnapshot, bool, error)
}

// Store is everything the engine writes plus the read surface.
type Store interface {
	TokenStore
	PoolStore
	BucketStore
	SnapshotStore
	SwapStore
	Reader
}
