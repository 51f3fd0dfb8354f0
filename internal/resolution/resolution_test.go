package resolution

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/polywatcher/engine/internal/models"
	"github.com/polywatcher/engine/internal/storage"
	"github.com/polywatcher/engine/internal/thresholds"
)

func newTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(filepath.Join(t.TempDir(), "test.db"), storage.DefaultRetention())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDetermineOutcome(t *testing.T) {
	tests := []struct {
		name    string
		market  ResolvedMarket
		want    string
		wantErr bool
	}{
		{
			name:   "explicit resolution wins",
			market: ResolvedMarket{Resolution: "Yes", Outcomes: []string{"Yes", "No"}, Prices: []float64{0.10, 0.90}},
			want:   "Yes",
		},
		{
			name:   "binary yes above cutoff",
			market: ResolvedMarket{Outcomes: []string{"Yes", "No"}, Prices: []float64{0.97, 0.03}},
			want:   "Yes",
		},
		{
			name:   "binary yes below no cutoff",
			market: ResolvedMarket{Outcomes: []string{"Yes", "No"}, Prices: []float64{0.02, 0.98}},
			want:   "No",
		},
		{
			name:    "binary undecided",
			market:  ResolvedMarket{Outcomes: []string{"Yes", "No"}, Prices: []float64{0.60, 0.40}},
			wantErr: true,
		},
		{
			name:   "multi outcome winner",
			market: ResolvedMarket{Outcomes: []string{"A", "B", "C"}, Prices: []float64{0.01, 0.97, 0.02}},
			want:   "B",
		},
		{
			name:    "multi outcome no clear winner",
			market:  ResolvedMarket{Outcomes: []string{"A", "B", "C"}, Prices: []float64{0.30, 0.50, 0.20}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetermineOutcome(tt.market)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownOutcome) {
					t.Fatalf("Expected ErrUnknownOutcome, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetermineOutcome failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected outcome %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSignalCorrect(t *testing.T) {
	tests := []struct {
		name    string
		sig     models.Signal
		outcome string
		want    bool
	}{
		{"prediction matches", models.Signal{Type: models.SignalVolatilitySpike, PredictedOutcome: "Yes"}, "Yes", true},
		{"prediction misses", models.Signal{Type: models.SignalPriceJump, PredictedOutcome: "Yes"}, "No", false},
		{"jump implies yes", models.Signal{Type: models.SignalPriceJump}, "Yes", true},
		{"drop implies no", models.Signal{Type: models.SignalPriceDrop}, "No", true},
		{"drop wrong on yes", models.Signal{Type: models.SignalPriceDrop}, "Yes", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SignalCorrect(&tt.sig, tt.outcome); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func addSignal(t *testing.T, store *storage.Storage, marketID, signalID string, predicted string, now time.Time) {
	t.Helper()
	err := store.AddSignal(&models.Signal{
		MarketID:         marketID,
		SignalID:         signalID,
		Type:             models.SignalPriceJump,
		Strength:         models.StrengthStrong,
		WindowHours:      6,
		CurrentPrice:     0.58,
		PreviousPrice:    0.40,
		PriceChange:      0.18,
		ThresholdUsed:    0.08,
		Confidence:       0.6,
		Liquidity:        250_000,
		Tier:             models.TierMedium,
		Categories:       []models.Category{models.CategoryCrypto},
		TrackedOutcome:   "Yes",
		PredictedOutcome: predicted,
		DetectedAt:       now,
	})
	if err != nil {
		t.Fatalf("AddSignal failed: %v", err)
	}
}

func TestProcess_GradesSignalsAndRecalibrates(t *testing.T) {
	store := newTestStore(t)
	thresholdStore := thresholds.New(store)
	tracker := New(store, thresholdStore)
	now := time.Now().UTC()

	// A PRICE_JUMP predicting "Yes" on a market that resolves "No".
	addSignal(t, store, "market-2", "signal_a", "Yes", now.Add(-48*time.Hour))

	processed, err := tracker.Process([]ResolvedMarket{{
		ID:         "market-2",
		Question:   "Will Bitcoin close above $100k?",
		Outcomes:   []string{"Yes", "No"},
		Prices:     []float64{0.02, 0.98},
		Liquidity:  250_000,
		Categories: []models.Category{models.CategoryCrypto},
	}}, now)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if processed != 1 {
		t.Fatalf("Expected 1 market processed, got %d", processed)
	}

	res, err := store.GetResolution("market-2")
	if err != nil {
		t.Fatalf("GetResolution failed: %v", err)
	}
	if res == nil || res.Outcome != "No" {
		t.Fatalf("Expected resolution 'No', got %+v", res)
	}

	signals, err := store.SignalsForMarket("market-2")
	if err != nil {
		t.Fatalf("SignalsForMarket failed: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("Expected 1 signal, got %d", len(signals))
	}
	if !signals[0].Resolved() || signals[0].WasCorrect {
		t.Errorf("Expected resolved incorrect signal, got %+v", signals[0])
	}

	// Accuracy 0/1 must not lower the crypto/medium threshold.
	rec, err := store.GetThreshold(models.CategoryCrypto, models.TierMedium)
	if err != nil {
		t.Fatalf("GetThreshold failed: %v", err)
	}
	if rec == nil {
		t.Fatal("Expected recalibrated threshold record")
	}
	if rec.BaseThreshold < thresholds.StaticDefault(models.TierMedium) {
		t.Errorf("Expected threshold not lowered, got %f", rec.BaseThreshold)
	}
	if rec.Accuracy != 0 || rec.Evaluated != 1 || rec.Correct != 0 {
		t.Errorf("Expected recorded stats 0/1/0, got %v/%d/%d", rec.Accuracy, rec.Evaluated, rec.Correct)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	store := newTestStore(t)
	tracker := New(store, thresholds.New(store))
	now := time.Now().UTC()

	market := ResolvedMarket{
		ID:       "market-1",
		Outcomes: []string{"Yes", "No"},
		Prices:   []float64{0.97, 0.03},
	}

	processed, err := tracker.Process([]ResolvedMarket{market}, now)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if processed != 1 {
		t.Fatalf("Expected 1 market processed, got %d", processed)
	}

	processed, err = tracker.Process([]ResolvedMarket{market}, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Second Process failed: %v", err)
	}
	if processed != 0 {
		t.Errorf("Expected already-resolved market skipped, got %d", processed)
	}
}

func TestProcess_UnknownOutcomeSkipped(t *testing.T) {
	store := newTestStore(t)
	tracker := New(store, thresholds.New(store))

	processed, err := tracker.Process([]ResolvedMarket{{
		ID:       "market-1",
		Outcomes: []string{"Yes", "No"},
		Prices:   []float64{0.60, 0.40},
	}}, time.Now().UTC())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if processed != 0 {
		t.Errorf("Expected undecidable market skipped, got %d", processed)
	}

	res, err := store.GetResolution("market-1")
	if err != nil {
		t.Fatalf("GetResolution failed: %v", err)
	}
	if res != nil {
		t.Errorf("Expected no resolution persisted, got %+v", res)
	}
}

func TestAccuracyIndex_DefaultsWithoutData(t *testing.T) {
	store := newTestStore(t)
	index := NewAccuracyIndex(store)

	got, err := index.Accuracy(models.CategoryCrypto, models.TierMedium)
	if err != nil {
		t.Fatalf("Accuracy failed: %v", err)
	}
	if got != 0.5 {
		t.Errorf("Expected default accuracy 0.5, got %f", got)
	}
}

func TestAccuracyIndex_ComputesFraction(t *testing.T) {
	store := newTestStore(t)
	index := NewAccuracyIndex(store)
	now := time.Now().UTC()

	addSignal(t, store, "market-1", "signal_a", "Yes", now.Add(-48*time.Hour))
	addSignal(t, store, "market-2", "signal_b", "Yes", now.Add(-48*time.Hour))
	if err := store.ResolveSignal("market-1", "signal_a", "Yes", true, now); err != nil {
		t.Fatalf("ResolveSignal failed: %v", err)
	}
	if err := store.ResolveSignal("market-2", "signal_b", "No", false, now); err != nil {
		t.Fatalf("ResolveSignal failed: %v", err)
	}

	got, err := index.Accuracy(models.CategoryCrypto, models.TierMedium)
	if err != nil {
		t.Fatalf("Accuracy failed: %v", err)
	}
	if got != 0.5 {
		t.Errorf("Expected accuracy 0.5 over 1/2 correct, got %f", got)
	}
}
