// Package thresholds implements the adaptive movement-threshold store: one
// live record per (category, liquidity tier) pair, nudged by observed
// signal accuracy and clamped to a fixed band.
package thresholds

import (
	"fmt"
	"time"

	"github.com/polywatcher/engine/internal/models"
)

// Threshold bounds and adjustment rule constants.
const (
	MinThreshold = 0.03
	MaxThreshold = 0.30

	lowAccuracy  = 0.4
	highAccuracy = 0.7

	raiseFactor = 1.10 // fewer, higher-confidence signals
	lowerFactor = 0.95 // admit more signals
)

// staticDefaults is the liquidity-only fallback table used when no adaptive
// record exists for a pair.
var staticDefaults = map[models.LiquidityTier]float64{
	models.TierVeryLow: 0.20, // excluded from analysis upstream
	models.TierLow:     0.15,
	models.TierMedium:  0.08,
	models.TierHigh:    0.05,
}

// Backend is the persistence needed by the store: per-key reads and writes,
// no cross-key transactions.
type Backend interface {
	GetThreshold(category models.Category, tier models.LiquidityTier) (*models.ThresholdRecord, error)
	PutThreshold(rec *models.ThresholdRecord) error
}

// Store reads and tunes adaptive thresholds.
type Store struct {
	backend Backend
}

// New creates a threshold store over the given backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// StaticDefault returns the fallback threshold for a liquidity tier.
func StaticDefault(tier models.LiquidityTier) float64 {
	if t, ok := staticDefaults[tier]; ok {
		return t
	}
	return staticDefaults[models.TierLow]
}

// Get returns the live threshold for a (category, tier) pair, falling back
// to the static default when no record exists. A store miss is not an error.
func (s *Store) Get(category models.Category, tier models.LiquidityTier) (float64, error) {
	rec, err := s.backend.GetThreshold(category, tier)
	if err != nil {
		return 0, fmt.Errorf("failed to read threshold %s/%s: %w", category, tier, err)
	}
	if rec == nil {
		return StaticDefault(tier), nil
	}
	return rec.BaseThreshold, nil
}

// ForMarket returns the threshold for one market: the mean of the adaptive
// thresholds of its categories, or the static tier default when none of its
// categories has a record (or it has no categories at all).
func (s *Store) ForMarket(market *models.Market) (float64, error) {
	tier := models.TierForLiquidity(market.Liquidity)

	var sum float64
	var n int
	for _, category := range market.Categories {
		rec, err := s.backend.GetThreshold(category, tier)
		if err != nil {
			return 0, fmt.Errorf("failed to read threshold %s/%s: %w", category, tier, err)
		}
		if rec != nil {
			sum += rec.BaseThreshold
			n++
		}
	}
	if n > 0 {
		return sum / float64(n), nil
	}
	return StaticDefault(tier), nil
}

// Update nudges the threshold for a pair from its observed accuracy:
// accuracy below 0.4 raises it 10%, above 0.7 lowers it 5%, anything in
// between leaves it unchanged. The result is clamped to
// [MinThreshold, MaxThreshold] and the accuracy and counts are recorded.
func (s *Store) Update(category models.Category, tier models.LiquidityTier, accuracy float64, evaluated, correct int, now time.Time) (*models.ThresholdRecord, error) {
	rec, err := s.backend.GetThreshold(category, tier)
	if err != nil {
		return nil, fmt.Errorf("failed to read threshold %s/%s: %w", category, tier, err)
	}
	if rec == nil {
		rec = &models.ThresholdRecord{
			Category:      category,
			Tier:          tier,
			BaseThreshold: StaticDefault(tier),
			Accuracy:      0.5,
		}
	}

	switch {
	case accuracy < lowAccuracy:
		rec.BaseThreshold *= raiseFactor
	case accuracy > highAccuracy:
		rec.BaseThreshold *= lowerFactor
	}
	rec.BaseThreshold = clamp(rec.BaseThreshold, MinThreshold, MaxThreshold)

	rec.Accuracy = accuracy
	rec.Evaluated = evaluated
	rec.Correct = correct
	rec.LastUpdated = now

	if err := s.backend.PutThreshold(rec); err != nil {
		return nil, fmt.Errorf("failed to write threshold %s/%s: %w", category, tier, err)
	}
	return rec, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
