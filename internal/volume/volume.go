// Package volume accumulates swap magnitudes into hourly buckets and sums the
// trailing day on demand.
package volume

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"poolScope/internal/model"
	"poolScope/internal/storage"
)

// Store is the bucket ledger for every pool.
type Store struct {
	buckets storage.VolumeStore
}

func NewStore(buckets storage.VolumeStore) *Store {
	return &Store{buckets: buckets}
}

// RecordSwap applies a swap to its bucket exactly once per log id. It reports
// false when the swap was already applied.
func (s *Store) RecordSwap(ctx context.Context, swap model.PoolSwap) (bool, error) {
	delta := model.Volume{Amount0: swap.Amount0, Amount1: swap.Amount1, AmountUSD: swap.AmountUSD}
	if delta.IsNegative() {
		return false, fmt.Errorf("negative volume for pool %s at %d", swap.Pool, swap.Timestamp)
	}
	recorded, err := s.buckets.RecordSwap(ctx, swap)
	if err != nil {
		return false, fmt.Errorf("record swap %s: %w", swap.ID, err)
	}
	return recorded, nil
}

// Accumulate adds one swap to the bucket containing timestamp. Amounts are
// magnitudes; negative inputs are rejected.
func (s *Store) Accumulate(ctx context.Context, pool string, timestamp uint64, amount0, amount1, amountUSD decimal.Decimal) error {
	delta := model.Volume{Amount0: amount0, Amount1: amount1, AmountUSD: amountUSD}
	if delta.IsNegative() {
		return fmt.Errorf("negative volume for pool %s at %d", pool, timestamp)
	}
	start := model.BucketStart(timestamp)

	_, ok, err := s.buckets.GetBucket(ctx, pool, start)
	if err != nil {
		return fmt.Errorf("get bucket %s@%d: %w", pool, start, err)
	}
	if !ok {
		inserted, err := s.buckets.InsertBucket(ctx, model.VolumeBucket{
			Pool:        pool,
			BucketStart: start,
			Amount0:     amount0,
			Amount1:     amount1,
			AmountUSD:   amountUSD,
			UpdatedAt:   timestamp,
		})
		if err != nil {
			return fmt.Errorf("insert bucket %s@%d: %w", pool, start, err)
		}
		if inserted {
			return nil
		}
		// Lost the insert race; fall through to the increment.
	}

	if err := s.buckets.AddToBucket(ctx, pool, start, delta, timestamp); err != nil {
		return fmt.Errorf("add to bucket %s@%d: %w", pool, start, err)
	}
	return nil
}

// RollingVolume sums every bucket from the hour containing now-24h through
// the hour containing now. Missing buckets count as zero.
func (s *Store) RollingVolume(ctx context.Context, pool string, now uint64) (model.Volume, error) {
	total := model.Volume{}
	first, last := model.DayWindow(now)
	for start := first; start <= last; start += model.BucketSeconds {
		bucket, ok, err := s.buckets.GetBucket(ctx, pool, start)
		if err != nil {
			return model.Volume{}, fmt.Errorf("get bucket %s@%d: %w", pool, start, err)
		}
		if ok {
			total = total.Add(bucket.Volume())
		}
	}
	return total, nil
}
