package models

import (
	"errors"
	"time"
)

// SignalType classifies the shape of a detected price movement.
type SignalType string

const (
	SignalPriceJump       SignalType = "PRICE_JUMP"
	SignalPriceDrop       SignalType = "PRICE_DROP"
	SignalSustainedTrend  SignalType = "SUSTAINED_TREND"
	SignalVolatilitySpike SignalType = "VOLATILITY_SPIKE"
)

// SignalStrength buckets the magnitude of a movement.
type SignalStrength string

const (
	StrengthWeak       SignalStrength = "WEAK"
	StrengthModerate   SignalStrength = "MODERATE"
	StrengthStrong     SignalStrength = "STRONG"
	StrengthVeryStrong SignalStrength = "VERY_STRONG"
)

// Signal is a detected, classified, confidence-scored market movement.
// It is immutable after detection except for the single resolution
// annotation applied by the feedback loop.
type Signal struct {
	MarketID string `json:"market_id"`
	SignalID string `json:"signal_id"`
	Question string `json:"question"`

	Type     SignalType     `json:"signal_type"`
	Strength SignalStrength `json:"signal_strength"`

	WindowHours   int     `json:"time_window"`
	CurrentPrice  float64 `json:"current_price"`
	PreviousPrice float64 `json:"previous_price"`
	PriceChange   float64 `json:"price_change"`
	Volatility    float64 `json:"volatility"`
	Momentum      float64 `json:"momentum"`
	ThresholdUsed float64 `json:"threshold_used"`
	Confidence    float64 `json:"confidence_score"`

	Liquidity  float64       `json:"liquidity"`
	Tier       LiquidityTier `json:"liquidity_tier"`
	Categories []Category    `json:"categories"`

	TrackedOutcome   string `json:"tracked_outcome"`
	PredictedOutcome string `json:"predicted_outcome,omitempty"`

	DetectedAt time.Time `json:"detection_timestamp"`

	// Resolution annotation, set exactly once by the feedback loop.
	ActualOutcome string    `json:"actual_outcome,omitempty"`
	WasCorrect    bool      `json:"was_correct,omitempty"`
	ResolvedAt    time.Time `json:"resolution_timestamp,omitempty"`
}

// Resolved reports whether the feedback loop has annotated this signal.
func (s *Signal) Resolved() bool {
	return !s.ResolvedAt.IsZero()
}

// Validate checks signal field constraints.
func (s *Signal) Validate() error {
	if s.MarketID == "" {
		return errors.New("signal market ID must not be empty")
	}
	if s.SignalID == "" {
		return errors.New("signal ID must not be empty")
	}
	switch s.Type {
	case SignalPriceJump, SignalPriceDrop, SignalSustainedTrend, SignalVolatilitySpike:
	default:
		return errors.New("unknown signal type")
	}
	if s.Confidence < 0.0 || s.Confidence > 1.0 {
		return errors.New("confidence score must be between 0.0 and 1.0")
	}
	if s.PriceChange < 0 {
		return errors.New("price change magnitude must not be negative")
	}
	if s.WindowHours <= 0 {
		return errors.New("time window must be positive")
	}
	return nil
}

// Resolution is the final outcome of a closed market. Created once, never
// mutated; a market ID can resolve at most once.
type Resolution struct {
	MarketID      string             `json:"market_id"`
	Question      string             `json:"question"`
	Outcome       string             `json:"resolution_outcome"`
	OutcomePrices map[string]float64 `json:"outcome_prices"`
	Categories    []Category         `json:"categories"`
	Liquidity     float64            `json:"liquidity"`
	ResolvedAt    time.Time          `json:"resolution_timestamp"`
}

// ThresholdRecord is the adaptive movement threshold for one
// (category, liquidity tier) pair, tuned by the feedback loop.
type ThresholdRecord struct {
	Category      Category      `json:"category"`
	Tier          LiquidityTier `json:"liquidity_tier"`
	BaseThreshold float64       `json:"base_threshold"`
	Accuracy      float64       `json:"accuracy"`
	Evaluated     int           `json:"evaluated"`
	Correct       int           `json:"correct"`
	LastUpdated   time.Time     `json:"last_updated"`
}

// Alert is one delivery-log entry: a signal that was actually sent to the
// alert sink. The dedup/rate gate is answered from this log.
type Alert struct {
	ID       string    `json:"id"`
	MarketID string    `json:"market_id"`
	SignalID string    `json:"signal_id"`
	SentAt   time.Time `json:"sent_at"`
}
