// Package models defines the core domain entities: markets, price points,
// signals, resolutions, and threshold records.
package models

import (
	"errors"
	"time"
)

// Market is the current state of one tracked prediction market. A market is
// superseded in place every collection cycle: single row per market ID.
type Market struct {
	ID             string     `json:"id"`
	Question       string     `json:"question"`
	Slug           string     `json:"slug"`
	Description    string     `json:"description,omitempty"`
	Liquidity      float64    `json:"liquidity"`
	Volume24hr     float64    `json:"volume_24hr"`
	TrackedOutcome string     `json:"tracked_outcome"`
	OutcomeIndex   int        `json:"outcome_index"`
	Categories     []Category `json:"categories"`
	CurrentPrice   float64    `json:"current_price"`
	EndDate        time.Time  `json:"end_date,omitempty"`
	Closed         bool       `json:"closed"`
	LastUpdated    time.Time  `json:"last_updated"`
}

// Validate checks market field constraints.
func (m *Market) Validate() error {
	if m.ID == "" {
		return errors.New("market ID must not be empty")
	}
	if m.Question == "" {
		return errors.New("market question must not be empty")
	}
	if m.TrackedOutcome == "" {
		return errors.New("tracked outcome must not be empty")
	}
	if m.OutcomeIndex < 0 {
		return errors.New("outcome index must not be negative")
	}
	if m.CurrentPrice < 0.0 || m.CurrentPrice > 1.0 {
		return errors.New("current price must be between 0.0 and 1.0")
	}
	if m.Liquidity < 0 {
		return errors.New("liquidity must not be negative")
	}
	if m.Volume24hr < 0 {
		return errors.New("volume 24hr must not be negative")
	}
	return nil
}

// IsBinary reports whether the market tracks a plain Yes/No question.
func (m *Market) IsBinary() bool {
	return m.TrackedOutcome == "Yes" || m.TrackedOutcome == "No"
}

// DaysToResolution returns the whole days until the market's end date, or
// ok=false when no end date is known.
func (m *Market) DaysToResolution(now time.Time) (float64, bool) {
	if m.EndDate.IsZero() {
		return 0, false
	}
	return m.EndDate.Sub(now).Hours() / 24, true
}

// PricePoint is one append-only price observation for a (market, outcome)
// pair. Points are never mutated and expire after the history retention
// window.
type PricePoint struct {
	MarketID     string    `json:"market_id"`
	OutcomeIndex int       `json:"outcome_index"`
	Outcome      string    `json:"outcome"`
	Price        float64   `json:"price"`
	Timestamp    time.Time `json:"timestamp"`
}

// Validate checks price point field constraints.
func (p *PricePoint) Validate() error {
	if p.MarketID == "" {
		return errors.New("price point market ID must not be empty")
	}
	if p.Price < 0.0 || p.Price > 1.0 {
		return errors.New("price must be between 0.0 and 1.0")
	}
	if p.Timestamp.IsZero() {
		return errors.New("price point timestamp must be set")
	}
	return nil
}

// SelectTrackedOutcome picks the outcome a market should be tracked on:
// binary Yes/No markets track the Yes side, multi-outcome markets track the
// current favorite.
func SelectTrackedOutcome(outcomes []string, prices []float64) (outcome string, price float64, index int, ok bool) {
	if len(outcomes) == 0 || len(outcomes) != len(prices) {
		return "", 0, -1, false
	}
	if len(outcomes) == 2 {
		for i, o := range outcomes {
			if o == "Yes" {
				return "Yes", prices[i], i, true
			}
		}
	}
	maxIdx := 0
	for i, p := range prices {
		if p > prices[maxIdx] {
			maxIdx = i
		}
	}
	return outcomes[maxIdx], prices[maxIdx], maxIdx, true
}
