// Package gate rate-limits user-facing alerts: a per-market recency window,
// a global minimum spacing, and a rolling daily cap, all answered from the
// persisted alert delivery log so separate passes share state.
package gate

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/polywatcher/engine/internal/models"
)

// Config holds the gate limits.
type Config struct {
	MarketCooldown time.Duration // suppress re-alerting the same market
	MinSpacing     time.Duration // minimum gap between any two alerts
	DailyCap       int           // maximum alerts per rolling 24 hours
}

// DefaultConfig returns the standard limits: 6h per market, 15m globally,
// 100 alerts per day.
func DefaultConfig() Config {
	return Config{
		MarketCooldown: 6 * time.Hour,
		MinSpacing:     15 * time.Minute,
		DailyCap:       100,
	}
}

// Log is the delivery-log persistence the gate needs.
type Log interface {
	LastAlertTime(marketID string) (time.Time, error)
	AlertCountSince(cutoff time.Time) (int, error)
	RecordAlert(a *models.Alert) error
}

// Gate decides which detected signals may be delivered.
type Gate struct {
	log    Log
	config Config
}

// New creates a gate over the given delivery log.
func New(log Log, config Config) *Gate {
	return &Gate{log: log, config: config}
}

// Filter returns the signals allowed through right now, preserving input
// order. Ranked input therefore yields the highest-confidence survivors.
func (g *Gate) Filter(signals []models.Signal, now time.Time) ([]models.Signal, error) {
	if len(signals) == 0 {
		return nil, nil
	}

	lastAny, err := g.log.LastAlertTime("")
	if err != nil {
		return nil, fmt.Errorf("failed to read last alert time: %w", err)
	}
	if !lastAny.IsZero() && now.Sub(lastAny) < g.config.MinSpacing {
		return nil, nil
	}

	sent24h, err := g.log.AlertCountSince(now.Add(-24 * time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to count recent alerts: %w", err)
	}
	budget := g.config.DailyCap - sent24h
	if budget <= 0 {
		return nil, nil
	}

	var allowed []models.Signal
	seen := map[string]struct{}{}
	for _, sig := range signals {
		if len(allowed) >= budget {
			break
		}
		if _, dup := seen[sig.MarketID]; dup {
			continue
		}
		last, err := g.log.LastAlertTime(sig.MarketID)
		if err != nil {
			return nil, fmt.Errorf("failed to read last alert time for market %s: %w", sig.MarketID, err)
		}
		if !last.IsZero() && now.Sub(last) < g.config.MarketCooldown {
			continue
		}
		seen[sig.MarketID] = struct{}{}
		allowed = append(allowed, sig)
	}
	return allowed, nil
}

// Record logs delivered signals so later passes observe them.
func (g *Gate) Record(signals []models.Signal, now time.Time) error {
	for _, sig := range signals {
		alert := &models.Alert{
			ID:       uuid.New().String(),
			MarketID: sig.MarketID,
			SignalID: sig.SignalID,
			SentAt:   now,
		}
		if err := g.log.RecordAlert(alert); err != nil {
			return fmt.Errorf("failed to record alert for market %s: %w", sig.MarketID, err)
		}
	}
	return nil
}
