// Package detector orchestrates one detection pass: ingest the fetched
// markets, analyze each one across the configured time windows with a
// bounded worker pool, rank the resulting signals, and deliver whatever the
// alert gate lets through.
package detector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polywatcher/engine/internal/classifier"
	"github.com/polywatcher/engine/internal/gate"
	"github.com/polywatcher/engine/internal/logger"
	"github.com/polywatcher/engine/internal/models"
)

// Config tunes a detection pass.
type Config struct {
	WindowHours []int // analysis windows, in hours
	Workers     int   // concurrent market analyzers
	BatchSize   int   // markets handed to the pool at a time
}

// DefaultConfig returns the standard pass shape: 1h/6h/24h windows, ten
// workers, batches of twenty-five.
func DefaultConfig() Config {
	return Config{
		WindowHours: []int{1, 6, 24},
		Workers:     10,
		BatchSize:   25,
	}
}

// Store is the persistence a pass needs.
type Store interface {
	UpsertMarket(m *models.Market) error
	AddPricePoint(p *models.PricePoint) error
	PriceHistory(marketID string, outcomeIndex int, since time.Time) ([]models.PricePoint, error)
	PurgeExpired(now time.Time) error
}

// Sink receives the ranked signals that cleared the gate.
type Sink interface {
	Send(signals []models.Signal) error
}

// Detector runs detection passes.
type Detector struct {
	store      Store
	classifier *classifier.Classifier
	gate       *gate.Gate
	sink       Sink
	config     Config
}

// New creates a detector. A nil sink disables delivery; signals are still
// detected, persisted, and recorded against the gate.
func New(store Store, cls *classifier.Classifier, g *gate.Gate, sink Sink, config Config) *Detector {
	if config.Workers <= 0 {
		config.Workers = 10
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 25
	}
	if len(config.WindowHours) == 0 {
		config.WindowHours = []int{1, 6, 24}
	}
	return &Detector{store: store, classifier: cls, gate: g, sink: sink, config: config}
}

// Stats summarizes one pass.
type Stats struct {
	Ingested  int
	Analyzed  int
	Detected  int
	Delivered int
}

// Run executes one full detection pass over the fetched markets.
func (d *Detector) Run(ctx context.Context, markets []models.Market, now time.Time) (Stats, error) {
	var stats Stats

	eligible := d.ingest(markets, now, &stats)

	signals := d.analyze(ctx, eligible, now)
	stats.Analyzed = len(eligible)
	stats.Detected = len(signals)

	// Highest confidence first, so the gate's daily budget goes to the
	// strongest signals.
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Confidence > signals[j].Confidence
	})

	allowed, err := d.gate.Filter(signals, now)
	if err != nil {
		return stats, fmt.Errorf("failed to filter signals: %w", err)
	}
	if len(allowed) < len(signals) {
		logger.Info("Alert gate passed %d of %d signals", len(allowed), len(signals))
	}

	if len(allowed) > 0 && d.sink != nil {
		if err := d.sink.Send(allowed); err != nil {
			return stats, fmt.Errorf("failed to deliver signals: %w", err)
		}
		if err := d.gate.Record(allowed, now); err != nil {
			return stats, fmt.Errorf("failed to record delivered alerts: %w", err)
		}
		stats.Delivered = len(allowed)
	}

	if err := d.store.PurgeExpired(now); err != nil {
		logger.Warn("Failed to purge expired rows: %v", err)
	}

	return stats, nil
}

// ingest persists the fetched markets and their latest prices, returning the
// markets worth analyzing. Closed markets and markets below the lowest
// liquidity tier are stored for bookkeeping but not analyzed.
func (d *Detector) ingest(markets []models.Market, now time.Time, stats *Stats) []models.Market {
	var eligible []models.Market
	for i := range markets {
		market := &markets[i]
		if err := d.store.UpsertMarket(market); err != nil {
			logger.Warn("Failed to store market %s: %v", market.ID, err)
			continue
		}
		if err := d.store.AddPricePoint(&models.PricePoint{
			MarketID:     market.ID,
			OutcomeIndex: market.OutcomeIndex,
			Price:        market.CurrentPrice,
			Timestamp:    now,
		}); err != nil {
			logger.Warn("Failed to store price point for market %s: %v", market.ID, err)
			continue
		}
		stats.Ingested++

		if market.Closed {
			continue
		}
		if models.TierForLiquidity(market.Liquidity) == models.TierVeryLow {
			continue
		}
		eligible = append(eligible, *market)
	}
	return eligible
}

// analyze fans the eligible markets out to the worker pool in batches and
// collects every signal the classifier produces. Per-market failures are
// logged and skipped.
func (d *Detector) analyze(ctx context.Context, markets []models.Market, now time.Time) []models.Signal {
	var (
		mu      sync.Mutex
		signals []models.Signal
	)

	for start := 0; start < len(markets); start += d.config.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := start + d.config.BatchSize
		if end > len(markets) {
			end = len(markets)
		}
		batch := markets[start:end]

		jobs := make(chan *models.Market)
		var wg sync.WaitGroup
		for w := 0; w < d.config.Workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for market := range jobs {
					found := d.analyzeMarket(market, now)
					if len(found) == 0 {
						continue
					}
					mu.Lock()
					signals = append(signals, found...)
					mu.Unlock()
				}
			}()
		}
		for i := range batch {
			jobs <- &batch[i]
		}
		close(jobs)
		wg.Wait()
	}

	return signals
}

// analyzeMarket classifies one market across all configured windows.
func (d *Detector) analyzeMarket(market *models.Market, now time.Time) []models.Signal {
	var signals []models.Signal
	for _, hours := range d.config.WindowHours {
		since := now.Add(-time.Duration(hours) * time.Hour)
		history, err := d.store.PriceHistory(market.ID, market.OutcomeIndex, since)
		if err != nil {
			logger.Warn("No usable %dh history for market %s: %v", hours, market.ID, err)
			continue
		}
		sig, err := d.classifier.Classify(market, hours, history, now)
		if err != nil {
			logger.Error("Failed to classify market %s over %dh: %v", market.ID, hours, err)
			continue
		}
		if sig != nil {
			logger.Debug("Detected %s (%s) on market %s over %dh window, confidence %.2f",
				sig.Type, sig.Strength, market.ID, hours, sig.Confidence)
			signals = append(signals, *sig)
		}
	}
	return signals
}
