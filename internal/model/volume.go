package model

import "github.com/shopspring/decimal"

// BucketSeconds is the width of a volume bucket.
const BucketSeconds uint64 = 3600

// BucketStart returns the hour-aligned start for a timestamp.
func BucketStart(ts uint64) uint64 {
	return ts / BucketSeconds * BucketSeconds
}

// VolumeBucket holds cumulative swap magnitudes for one pool hour.
type VolumeBucket struct {
	Pool        string          `json:"pool"`
	BucketStart uint64          `json:"bucket_start"`
	Amount0     decimal.Decimal `json:"amount0"`
	Amount1     decimal.Decimal `json:"amount1"`
	AmountUSD   decimal.Decimal `json:"amount_usd"`
	UpdatedAt   uint64          `json:"updated_at"`
}

// Volume returns the bucket amounts.
func (b VolumeBucket) Volume() Volume {
	return Volume{Amount0: b.Amount0, Amount1: b.Amount1, AmountUSD: b.AmountUSD}
}

// Volume is a triple of token0, token1 and USD amounts.
type Volume struct {
	Amount0   decimal.Decimal `json:"amount0"`
	Amount1   decimal.Decimal `json:"amount1"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
}

// Add returns the field-wise sum.
func (v Volume) Add(other Volume) Volume {
	return Volume{
		Amount0:   v.Amount0.Add(other.Amount0),
		Amount1:   v.Amount1.Add(other.Amount1),
		AmountUSD: v.AmountUSD.Add(other.AmountUSD),
	}
}

// IsNegative reports whether any field is below zero.
func (v Volume) IsNegative() bool {
	return v.Amount0.IsNegative() || v.Amount1.IsNegative() || v.AmountUSD.IsNegative()
}

// PoolVolume is the read-side volume view for one pool.
type PoolVolume struct {
	Pool        string `json:"pool"`
	CurrentHour Volume `json:"current_hour"`
	LastDay     Volume `json:"last_day"`
}

// WindowSeconds is the length of the rolling volume window.
const WindowSeconds uint64 = 86400

// DayWindow returns the first and last bucket starts, inclusive, covering the
// trailing window ending at now. The first bucket may start up to an hour
// before now-WindowSeconds.
func DayWindow(now uint64) (first, last uint64) {
	var cutoff uint64
	if now > WindowSeconds {
		cutoff = now - WindowSeconds
	}
	return BucketStart(cutoff), BucketStart(now)
}
