// Package memory is an in-process implementation of storage.Store used for
// dry runs and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"poolScope/internal/model"
)

type bucketKey struct {
	pool  string
	start uint64
}

// Store keeps every table in maps guarded by one RWMutex.
type Store struct {
	mu      sync.RWMutex
	tokens  map[string]model.Token
	pools   map[string]model.Pool
	buckets map[bucketKey]model.VolumeBucket
	metrics map[string]model.PoolMetricSnapshot
	swaps   map[string]model.PoolSwap
}

func NewStore() *Store {
	return &Store{
		tokens:  make(map[string]model.Token),
		pools:   make(map[string]model.Pool),
		buckets: make(map[bucketKey]model.VolumeBucket),
		metrics: make(map[string]model.PoolMetricSnapshot),
		swaps:   make(map[string]model.PoolSwap),
	}
}

func (s *Store) GetToken(_ context.Context, address string) (model.Token, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[address]
	return token, ok, nil
}

func (s *Store) InsertToken(_ context.Context, token model.Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.Address]; ok {
		return false, nil
	}
	s.tokens[token.Address] = token
	return true, nil
}

func (s *Store) GetPool(_ context.Context, address string) (model.Pool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[address]
	return pool, ok, nil
}

func (s *Store) InsertPool(_ context.Context, pool model.Pool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[pool.Address]; ok {
		return false, nil
	}
	s.pools[pool.Address] = pool
	return true, nil
}

func (s *Store) GetBucket(_ context.Context, pool string, bucketStart uint64) (model.VolumeBucket, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.buckets[bucketKey{pool, bucketStart}]
	return bucket, ok, nil
}

func (s *Store) InsertBucket(_ context.Context, bucket model.VolumeBucket) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := bucketKey{bucket.Pool, bucket.BucketStart}
	if _, ok := s.buckets[key]; ok {
		return false, nil
	}
	s.buckets[key] = bucket
	return true, nil
}

func (s *Store) AddToBucket(_ context.Context, pool string, bucketStart uint64, delta model.Volume, updatedAt uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(pool, bucketStart, delta, updatedAt)
	return nil
}

func (s *Store) addLocked(pool string, bucketStart uint64, delta model.Volume, updatedAt uint64) {
	key := bucketKey{pool, bucketStart}
	bucket, ok := s.buckets[key]
	if !ok {
		bucket = model.VolumeBucket{Pool: pool, BucketStart: bucketStart}
	}
	sum := bucket.Volume().Add(delta)
	bucket.Amount0, bucket.Amount1, bucket.AmountUSD = sum.Amount0, sum.Amount1, sum.AmountUSD
	if updatedAt > bucket.UpdatedAt {
		bucket.UpdatedAt = updatedAt
	}
	s.buckets[key] = bucket
}

func (s *Store) UpsertPoolMetric(_ context.Context, snapshot model.PoolMetricSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[snapshot.Pool] = snapshot
	return nil
}

func (s *Store) RecordSwap(_ context.Context, swap model.PoolSwap) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.swaps[swap.ID]; ok {
		return false, nil
	}
	s.swaps[swap.ID] = swap
	delta := model.Volume{Amount0: swap.Amount0, Amount1: swap.Amount1, AmountUSD: swap.AmountUSD}
	s.addLocked(swap.Pool, model.BucketStart(swap.Timestamp), delta, swap.Timestamp)
	return true, nil
}

func (s *Store) TokenByAddress(ctx context.Context, address string) (model.Token, bool, error) {
	return s.GetToken(ctx, address)
}

func (s *Store) SearchTokens(_ context.Context, query string, limit int) ([]model.Token, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}
	s.mu.RLock()
	out := make([]model.Token, 0)
	for _, token := range s.tokens {
		if strings.Contains(strings.ToLower(token.Symbol), needle) || strings.Contains(strings.ToLower(token.Name), needle) {
			out = append(out, token)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Address < out[j].Address
	})
	return truncate(out, limit), nil
}

func (s *Store) PoolByAddress(ctx context.Context, address string) (model.Pool, bool, error) {
	return s.GetPool(ctx, address)
}

func (s *Store) PoolsByToken(_ context.Context, token string, feeTiers []uint32, limit int) ([]model.Pool, error) {
	return s.listPools(func(p model.Pool) bool {
		return (p.Token0 == token || p.Token1 == token) && feeAllowed(p.Fee, feeTiers)
	}, limit), nil
}

func (s *Store) RecentPools(_ context.Context, feeTiers []uint32, limit int) ([]model.Pool, error) {
	return s.listPools(func(p model.Pool) bool { return feeAllowed(p.Fee, feeTiers) }, limit), nil
}

func (s *Store) PoolVolumes(_ context.Context, pools []string, now uint64) (map[string]model.PoolVolume, error) {
	first, last := model.DayWindow(now)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.PoolVolume, len(pools))
	for _, pool := range pools {
		view := model.PoolVolume{Pool: pool}
		for start := first; start <= last; start += model.BucketSeconds {
			bucket, ok := s.buckets[bucketKey{pool, start}]
			if !ok {
				continue
			}
			view.LastDay = view.LastDay.Add(bucket.Volume())
			if start == last {
				view.CurrentHour = bucket.Volume()
			}
		}
		out[pool] = view
	}
	return out, nil
}

func (s *Store) PoolMetric(_ context.Context, pool string) (model.PoolMetricSnapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.metrics[pool]
	return snapshot, ok, nil
}

// Buckets returns every stored bucket for a pool ordered by start.
func (s *Store) Buckets(pool string) []model.VolumeBucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.VolumeBucket
	for key, bucket := range s.buckets {
		if key.pool == pool {
			out = append(out, bucket)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart < out[j].BucketStart })
	return out
}

// MetricCount reports how many snapshot rows exist.
func (s *Store) MetricCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metrics)
}

func (s *Store) listPools(match func(model.Pool) bool, limit int) []model.Pool {
	s.mu.RLock()
	out := make([]model.Pool, 0)
	for _, pool := range s.pools {
		if match(pool) {
			out = append(out, pool)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].Address < out[j].Address
	})
	return truncate(out, limit)
}

func feeAllowed(fee uint32, tiers []uint32) bool {
	if len(tiers) == 0 {
		return true
	}
	for _, tier := range tiers {
		if tier == fee {
			return true
		}
	}
	return false
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
