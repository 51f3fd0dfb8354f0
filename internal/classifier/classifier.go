// Package classifier decides, for one market and one analysis window,
// whether a signal fires and with what type, strength, confidence, and
// predicted outcome.
package classifier

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/polywatcher/engine/internal/analysis"
	"github.com/polywatcher/engine/internal/models"
)

const (
	// minPoints is the minimum history length for a window to be analyzable.
	minPoints = 3

	// jumpDropChange is the magnitude above which a significant move
	// classifies as a jump or drop.
	jumpDropChange = 0.15

	// volatilitySpikeMin is the volatility above which a window classifies
	// as a volatility spike.
	volatilitySpikeMin = 0.10

	// trendMinPoints is the minimum series length for a sustained trend.
	trendMinPoints = 5

	// multiOutcomePredictMin is the price above which a multi-outcome
	// market's tracked outcome is predicted to win.
	multiOutcomePredictMin = 0.7
)

// Confidence score component weights.
const (
	weightMagnitude          = 0.30
	weightVolume             = 0.20
	weightLiquidity          = 0.15
	weightHistoricalAccuracy = 0.25
	weightTimeToResolution   = 0.10

	magnitudeCap = 0.5
	volumeCap    = 1_000_000.0
	liquidityCap = 1_000_000.0

	urgencyHorizonDays = 30.0
	defaultAccuracy    = 0.5
	defaultUrgency     = 0.5
)

// ThresholdSource supplies the adaptive movement threshold for a market.
type ThresholdSource interface {
	ForMarket(market *models.Market) (float64, error)
}

// AccuracySource supplies the historical signal accuracy for a
// (category, tier) pair, defaulting to 0.5 when no data exists.
type AccuracySource interface {
	Accuracy(category models.Category, tier models.LiquidityTier) (float64, error)
}

// SignalWriter persists detected signals.
type SignalWriter interface {
	AddSignal(sig *models.Signal) error
}

// Classifier turns analyzed price windows into persisted signals.
type Classifier struct {
	thresholds ThresholdSource
	accuracy   AccuracySource
	signals    SignalWriter
}

// New creates a classifier.
func New(thresholds ThresholdSource, accuracy AccuracySource, signals SignalWriter) *Classifier {
	return &Classifier{thresholds: thresholds, accuracy: accuracy, signals: signals}
}

// evidence carries everything the type rules look at for one window.
type evidence struct {
	current    float64
	oldest     float64
	change     float64
	significant bool
	volatility float64
	points     []models.PricePoint
}

// typeRule is one (predicate, outcome) pair of the classification cascade.
// Rules are evaluated strictly in order; the first match wins.
type typeRule struct {
	name    string
	matches func(e evidence) bool
	outcome models.SignalType
}

var typeRules = []typeRule{
	{
		name: "price jump",
		matches: func(e evidence) bool {
			return e.significant && e.change >= jumpDropChange && e.current > e.oldest
		},
		outcome: models.SignalPriceJump,
	},
	{
		name: "price drop",
		matches: func(e evidence) bool {
			return e.significant && e.change >= jumpDropChange && e.current < e.oldest
		},
		outcome: models.SignalPriceDrop,
	},
	{
		name: "volatility spike",
		matches: func(e evidence) bool {
			return e.volatility >= volatilitySpikeMin
		},
		outcome: models.SignalVolatilitySpike,
	},
	{
		name: "sustained trend",
		matches: func(e evidence) bool {
			if len(e.points) < trendMinPoints {
				return false
			}
			increasing, decreasing := analysis.Monotonic(e.points)
			if !increasing && !decreasing {
				return false
			}
			significant, _, _ := analysis.SignificantChange(e.current, e.oldest, analysis.TrendMinAbsoluteChange)
			if !significant {
				return false
			}
			return (increasing && e.current > e.oldest) || (decreasing && e.current < e.oldest)
		},
		outcome: models.SignalSustainedTrend,
	},
}

// determineType runs the classification cascade and returns the first
// matching type, or ok=false when no rule fires.
func determineType(e evidence) (models.SignalType, bool) {
	for _, rule := range typeRules {
		if rule.matches(e) {
			return rule.outcome, true
		}
	}
	return "", false
}

// Classify analyzes one (market, window) pair. It returns the persisted
// signal, or nil when the window does not produce one.
func (c *Classifier) Classify(market *models.Market, windowHours int, history []models.PricePoint, now time.Time) (*models.Signal, error) {
	if len(history) < minPoints {
		return nil, nil
	}

	current := market.CurrentPrice
	oldest := history[0].Price

	volatility := analysis.Volatility(history)
	momentum := analysis.Momentum(history, analysis.DefaultMomentumWindow)
	significant, change, _ := analysis.SignificantChange(current, oldest, analysis.DefaultMinAbsoluteChange)

	signalType, ok := determineType(evidence{
		current:     current,
		oldest:      oldest,
		change:      change,
		significant: significant,
		volatility:  volatility,
		points:      history,
	})
	if !ok {
		return nil, nil
	}

	threshold, err := c.thresholds.ForMarket(market)
	if err != nil {
		return nil, fmt.Errorf("failed to get threshold for market %s: %w", market.ID, err)
	}
	if change < threshold {
		return nil, nil
	}

	tier := models.TierForLiquidity(market.Liquidity)
	accuracy, err := c.historicalAccuracy(market.Categories, tier)
	if err != nil {
		return nil, fmt.Errorf("failed to get historical accuracy for market %s: %w", market.ID, err)
	}

	sig := &models.Signal{
		MarketID:         market.ID,
		SignalID:         "signal_" + uuid.New().String(),
		Question:         market.Question,
		Type:             signalType,
		Strength:         StrengthFor(change),
		WindowHours:      windowHours,
		CurrentPrice:     current,
		PreviousPrice:    oldest,
		PriceChange:      change,
		Volatility:       volatility,
		Momentum:         momentum,
		ThresholdUsed:    threshold,
		Confidence:       Confidence(market, change, accuracy, now),
		Liquidity:        market.Liquidity,
		Tier:             tier,
		Categories:       market.Categories,
		TrackedOutcome:   market.TrackedOutcome,
		PredictedOutcome: PredictOutcome(signalType, current, market),
		DetectedAt:       now,
	}

	if err := c.signals.AddSignal(sig); err != nil {
		return nil, fmt.Errorf("failed to persist signal for market %s: %w", market.ID, err)
	}
	return sig, nil
}

// historicalAccuracy averages the per-category accuracy for the tier,
// defaulting to 0.5 for markets with no categories.
func (c *Classifier) historicalAccuracy(categories []models.Category, tier models.LiquidityTier) (float64, error) {
	if len(categories) == 0 {
		return defaultAccuracy, nil
	}
	var sum float64
	for _, category := range categories {
		a, err := c.accuracy.Accuracy(category, tier)
		if err != nil {
			return 0, err
		}
		sum += a
	}
	return sum / float64(len(categories)), nil
}

// strengthBands maps change-magnitude bands to strength categories. Bands
// are inclusive on the lower bound; anything at or above the last bound is
// VERY_STRONG.
var strengthBands = []struct {
	min      float64
	strength models.SignalStrength
}{
	{0.25, models.StrengthVeryStrong},
	{0.15, models.StrengthStrong},
	{0.08, models.StrengthModerate},
	{0.0, models.StrengthWeak},
}

// StrengthFor buckets a change magnitude into its strength category.
func StrengthFor(change float64) models.SignalStrength {
	for _, band := range strengthBands {
		if change >= band.min {
			return band.strength
		}
	}
	return models.StrengthWeak
}

// Confidence computes the weighted confidence score for a signal, always in
// [0, 1].
func Confidence(market *models.Market, change, historicalAccuracy float64, now time.Time) float64 {
	magnitude := capAt(change/magnitudeCap, 1.0)
	volume := capAt(market.Volume24hr/volumeCap, 1.0)
	liquidity := capAt(market.Liquidity/liquidityCap, 1.0)

	urgency := defaultUrgency
	if days, ok := market.DaysToResolution(now); ok {
		urgency = clamp01(1.0 - days/urgencyHorizonDays)
	}

	score := weightMagnitude*magnitude +
		weightVolume*volume +
		weightLiquidity*liquidity +
		weightHistoricalAccuracy*historicalAccuracy +
		weightTimeToResolution*urgency

	return capAt(score, 1.0)
}

// PredictOutcome derives the likely resolution from the signal type. Binary
// Yes-tracked markets predict from direction; multi-outcome markets predict
// the tracked outcome only when its price is already high. Returns "" when
// no confident prediction can be made.
func PredictOutcome(signalType models.SignalType, currentPrice float64, market *models.Market) string {
	if market.TrackedOutcome == "Yes" {
		if signalType == models.SignalPriceJump || (signalType == models.SignalSustainedTrend && currentPrice > 0.5) {
			return "Yes"
		}
		if signalType == models.SignalPriceDrop || (signalType == models.SignalSustainedTrend && currentPrice < 0.5) {
			return "No"
		}
	}
	if currentPrice > multiOutcomePredictMin {
		return market.TrackedOutcome
	}
	return ""
}

func capAt(v, hi float64) float64 {
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
