// Package resolution closes the feedback loop: it consumes resolved
// markets, grades the signals detected on them, and nudges the adaptive
// thresholds from the observed accuracy.
package resolution

import (
	"errors"
	"fmt"
	"time"

	"github.com/polywatcher/engine/internal/logger"
	"github.com/polywatcher/engine/internal/models"
	"github.com/polywatcher/engine/internal/thresholds"
)

// Heuristic cutoffs for deciding a market's winner from its final prices.
const (
	ResolvedYesPrice = 0.95
	ResolvedNoPrice  = 0.05
)

// ErrUnknownOutcome is reported when a market's resolution cannot be
// determined; such markets are left unresolved for a later pass, never
// guessed.
var ErrUnknownOutcome = errors.New("resolution outcome cannot be determined")

// ResolvedMarket is the feed's view of a market that has closed.
type ResolvedMarket struct {
	ID         string
	Question   string
	Resolution string // explicit outcome when the feed provides one
	Outcomes   []string
	Prices     []float64
	Liquidity  float64
	Categories []models.Category
}

// DetermineOutcome decides the resolution outcome: the explicit resolution
// field if present, else the binary winner by final Yes price, else the
// multi-outcome winner if its price cleared the cutoff.
func DetermineOutcome(m ResolvedMarket) (string, error) {
	if m.Resolution != "" {
		return m.Resolution, nil
	}

	if len(m.Outcomes) == 2 && len(m.Prices) == 2 {
		yesIdx := -1
		for i, o := range m.Outcomes {
			if o == "Yes" {
				yesIdx = i
			}
		}
		if yesIdx >= 0 {
			switch {
			case m.Prices[yesIdx] > ResolvedYesPrice:
				return "Yes", nil
			case m.Prices[yesIdx] < ResolvedNoPrice:
				return "No", nil
			}
			return "", ErrUnknownOutcome
		}
	}

	maxIdx := -1
	for i, p := range m.Prices {
		if maxIdx < 0 || p > m.Prices[maxIdx] {
			maxIdx = i
		}
	}
	if maxIdx >= 0 && maxIdx < len(m.Outcomes) && m.Prices[maxIdx] > ResolvedYesPrice {
		return m.Outcomes[maxIdx], nil
	}

	return "", ErrUnknownOutcome
}

// SignalCorrect grades one signal against the resolution outcome: a direct
// prediction match, or a directional match for jumps and drops.
func SignalCorrect(sig *models.Signal, outcome string) bool {
	if sig.PredictedOutcome != "" && sig.PredictedOutcome == outcome {
		return true
	}
	if sig.Type == models.SignalPriceJump && outcome == "Yes" {
		return true
	}
	if sig.Type == models.SignalPriceDrop && outcome == "No" {
		return true
	}
	return false
}

// Store is the persistence the tracker needs.
type Store interface {
	GetResolution(marketID string) (*models.Resolution, error)
	AddResolution(r *models.Resolution) error
	SignalsForMarket(marketID string) ([]models.Signal, error)
	ResolveSignal(marketID, signalID, actualOutcome string, wasCorrect bool, resolvedAt time.Time) error
	ResolvedSignals(category models.Category, tier models.LiquidityTier) ([]models.Signal, error)
}

// Tracker runs the feedback loop over batches of resolved markets.
type Tracker struct {
	store      Store
	thresholds *thresholds.Store
}

// New creates a tracker.
func New(store Store, thresholds *thresholds.Store) *Tracker {
	return &Tracker{store: store, thresholds: thresholds}
}

// Process handles a batch of resolved markets. Per-market failures and
// unknown outcomes are logged and skipped; the batch never aborts on a
// single bad record. Returns the number of markets newly resolved.
func (t *Tracker) Process(markets []ResolvedMarket, now time.Time) (int, error) {
	processed := 0
	touched := map[pairKey]struct{}{}

	for _, market := range markets {
		ok, pairs, err := t.processMarket(market, now)
		if err != nil {
			if errors.Is(err, ErrUnknownOutcome) {
				logger.Warn("Could not determine resolution outcome for market %s, leaving unresolved", market.ID)
			} else {
				logger.Error("Failed to process resolved market %s: %v", market.ID, err)
			}
			continue
		}
		if !ok {
			continue
		}
		processed++
		for _, p := range pairs {
			touched[p] = struct{}{}
		}
	}

	for pair := range touched {
		if err := t.recalibrate(pair.category, pair.tier, now); err != nil {
			logger.Error("Failed to recalibrate threshold %s/%s: %v", pair.category, pair.tier, err)
		}
	}

	return processed, nil
}

type pairKey struct {
	category models.Category
	tier     models.LiquidityTier
}

// processMarket resolves one market. Returns ok=false when the market was
// already resolved (idempotence guard for overlapping runs).
func (t *Tracker) processMarket(market ResolvedMarket, now time.Time) (bool, []pairKey, error) {
	existing, err := t.store.GetResolution(market.ID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to check existing resolution: %w", err)
	}
	if existing != nil {
		logger.Debug("Market %s already resolved, skipping", market.ID)
		return false, nil, nil
	}

	outcome, err := DetermineOutcome(market)
	if err != nil {
		return false, nil, err
	}

	outcomePrices := make(map[string]float64, len(market.Outcomes))
	for i, o := range market.Outcomes {
		if i < len(market.Prices) {
			outcomePrices[o] = market.Prices[i]
		}
	}

	if err := t.store.AddResolution(&models.Resolution{
		MarketID:      market.ID,
		Question:      market.Question,
		Outcome:       outcome,
		OutcomePrices: outcomePrices,
		Categories:    market.Categories,
		Liquidity:     market.Liquidity,
		ResolvedAt:    now,
	}); err != nil {
		return false, nil, fmt.Errorf("failed to save resolution: %w", err)
	}
	logger.Info("Saved resolution for market %s: %s", market.ID, outcome)

	signals, err := t.store.SignalsForMarket(market.ID)
	if err != nil {
		return false, nil, fmt.Errorf("failed to load signals: %w", err)
	}

	var pairs []pairKey
	for i := range signals {
		sig := &signals[i]
		if sig.Resolved() {
			continue
		}
		correct := SignalCorrect(sig, outcome)
		if err := t.store.ResolveSignal(sig.MarketID, sig.SignalID, outcome, correct, now); err != nil {
			logger.Warn("Failed to annotate signal %s on market %s: %v", sig.SignalID, sig.MarketID, err)
			continue
		}
		for _, category := range sig.Categories {
			pairs = append(pairs, pairKey{category: category, tier: sig.Tier})
		}
	}

	return true, pairs, nil
}

// recalibrate recomputes the pair's accuracy over all resolved signals and
// feeds it to the threshold store.
func (t *Tracker) recalibrate(category models.Category, tier models.LiquidityTier, now time.Time) error {
	accuracy, evaluated, correct, err := accuracyStats(t.store, category, tier)
	if err != nil {
		return err
	}
	if evaluated == 0 {
		return nil
	}
	rec, err := t.thresholds.Update(category, tier, accuracy, evaluated, correct, now)
	if err != nil {
		return err
	}
	logger.Info("Recalibrated threshold %s/%s: accuracy=%.2f over %d signals, threshold=%.3f",
		category, tier, accuracy, evaluated, rec.BaseThreshold)
	return nil
}

func accuracyStats(store Store, category models.Category, tier models.LiquidityTier) (accuracy float64, evaluated, correct int, err error) {
	signals, err := store.ResolvedSignals(category, tier)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to load resolved signals: %w", err)
	}
	if len(signals) == 0 {
		return 0.5, 0, 0, nil
	}
	for _, sig := range signals {
		if sig.WasCorrect {
			correct++
		}
	}
	return float64(correct) / float64(len(signals)), len(signals), correct, nil
}

// AccuracyIndex answers historical-accuracy lookups for the classifier's
// confidence scoring, defaulting to 0.5 when no resolved signals exist for
// a pair.
type AccuracyIndex struct {
	store Store
}

// NewAccuracyIndex creates an accuracy index over the given store.
func NewAccuracyIndex(store Store) *AccuracyIndex {
	return &AccuracyIndex{store: store}
}

// Accuracy returns the fraction of resolved signals for the pair that were
// correct.
func (a *AccuracyIndex) Accuracy(category models.Category, tier models.LiquidityTier) (float64, error) {
	accuracy, _, _, err := accuracyStats(a.store, category, tier)
	return accuracy, err
}
