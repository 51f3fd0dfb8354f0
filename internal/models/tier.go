package models

// LiquidityTier buckets a market by its liquidity. Tiers select movement
// thresholds; the very_low tier is excluded from analysis entirely.
type LiquidityTier string

const (
	TierVeryLow LiquidityTier = "very_low"
	TierLow     LiquidityTier = "low"
	TierMedium  LiquidityTier = "medium"
	TierHigh    LiquidityTier = "high"
)

// Liquidity tier boundaries in currency units.
const (
	LowLiquidityThreshold    = 5_000.0
	MediumLiquidityThreshold = 100_000.0
	HighLiquidityThreshold   = 500_000.0
)

// TierForLiquidity derives the liquidity tier for a liquidity amount.
func TierForLiquidity(liquidity float64) LiquidityTier {
	switch {
	case liquidity < LowLiquidityThreshold:
		return TierVeryLow
	case liquidity < MediumLiquidityThreshold:
		return TierLow
	case liquidity < HighLiquidityThreshold:
		return TierMedium
	default:
		return TierHigh
	}
}

// Tiers lists the analyzable tiers in ascending liquidity order, excluding
// very_low.
func Tiers() []LiquidityTier {
	return []LiquidityTier{TierLow, TierMedium, TierHigh}
}
