package thresholds

import (
	"math"
	"testing"
	"time"

	"github.com/polywatcher/engine/internal/models"
)

type fakeBackend struct {
	records map[string]*models.ThresholdRecord
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: map[string]*models.ThresholdRecord{}}
}

func (f *fakeBackend) key(category models.Category, tier models.LiquidityTier) string {
	return string(category) + "/" + string(tier)
}

func (f *fakeBackend) GetThreshold(category models.Category, tier models.LiquidityTier) (*models.ThresholdRecord, error) {
	rec, ok := f.records[f.key(category, tier)]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeBackend) PutThreshold(rec *models.ThresholdRecord) error {
	copied := *rec
	f.records[f.key(rec.Category, rec.Tier)] = &copied
	return nil
}

func TestStaticDefaults(t *testing.T) {
	tests := []struct {
		tier models.LiquidityTier
		want float64
	}{
		{models.TierVeryLow, 0.20},
		{models.TierLow, 0.15},
		{models.TierMedium, 0.08},
		{models.TierHigh, 0.05},
	}
	for _, tt := range tests {
		if got := StaticDefault(tt.tier); got != tt.want {
			t.Errorf("StaticDefault(%s) = %v, want %v", tt.tier, got, tt.want)
		}
	}
}

func TestGet_FallsBackToStaticDefault(t *testing.T) {
	store := New(newFakeBackend())
	got, err := store.Get(models.CategoryCrypto, models.TierMedium)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != 0.08 {
		t.Errorf("Expected static default 0.08, got %v", got)
	}
}

func TestUpdate_LowAccuracyRaises(t *testing.T) {
	store := New(newFakeBackend())
	now := time.Now()

	rec, err := store.Update(models.CategoryCrypto, models.TierMedium, 0.3, 10, 3, now)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	want := 0.08 * 1.10
	if math.Abs(rec.BaseThreshold-want) > 1e-9 {
		t.Errorf("Expected raised threshold %v, got %v", want, rec.BaseThreshold)
	}
	if rec.Accuracy != 0.3 || rec.Evaluated != 10 || rec.Correct != 3 {
		t.Errorf("Expected recorded stats 0.3/10/3, got %v/%d/%d", rec.Accuracy, rec.Evaluated, rec.Correct)
	}
}

func TestUpdate_HighAccuracyLowers(t *testing.T) {
	store := New(newFakeBackend())
	rec, err := store.Update(models.CategoryPolitics, models.TierLow, 0.8, 10, 8, time.Now())
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	want := 0.15 * 0.95
	if math.Abs(rec.BaseThreshold-want) > 1e-9 {
		t.Errorf("Expected lowered threshold %v, got %v", want, rec.BaseThreshold)
	}
}

func TestUpdate_MidAccuracyUnchanged(t *testing.T) {
	store := New(newFakeBackend())
	rec, err := store.Update(models.CategoryPolitics, models.TierHigh, 0.55, 10, 5, time.Now())
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if rec.BaseThreshold != 0.05 {
		t.Errorf("Expected unchanged threshold 0.05, got %v", rec.BaseThreshold)
	}
}

func TestUpdate_ClampsToBand(t *testing.T) {
	store := New(newFakeBackend())
	now := time.Now()

	// Repeated raises never exceed the ceiling.
	for i := 0; i < 20; i++ {
		if _, err := store.Update(models.CategoryCrypto, models.TierVeryLow, 0.1, 10, 1, now); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	got, err := store.Get(models.CategoryCrypto, models.TierVeryLow)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got > MaxThreshold {
		t.Errorf("Expected threshold clamped to %v, got %v", MaxThreshold, got)
	}

	// Repeated lowers never cross the floor.
	for i := 0; i < 50; i++ {
		if _, err := store.Update(models.CategoryCrypto, models.TierHigh, 0.9, 10, 9, now); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}
	got, err = store.Get(models.CategoryCrypto, models.TierHigh)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got < MinThreshold {
		t.Errorf("Expected threshold clamped to %v, got %v", MinThreshold, got)
	}
}

func TestForMarket_MeansCategoryRecords(t *testing.T) {
	backend := newFakeBackend()
	store := New(backend)
	now := time.Now()

	if _, err := store.Update(models.CategoryCrypto, models.TierMedium, 0.5, 4, 2, now); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := store.Update(models.CategoryFinance, models.TierMedium, 0.8, 4, 3, now); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	market := &models.Market{
		ID:         "market-1",
		Liquidity:  250_000,
		Categories: []models.Category{models.CategoryCrypto, models.CategoryFinance},
	}
	got, err := store.ForMarket(market)
	if err != nil {
		t.Fatalf("ForMarket failed: %v", err)
	}
	want := (0.08 + 0.08*0.95) / 2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected mean threshold %v, got %v", want, got)
	}
}

func TestForMarket_NoRecordsUsesTierDefault(t *testing.T) {
	store := New(newFakeBackend())
	market := &models.Market{ID: "market-1", Liquidity: 50_000}
	got, err := store.ForMarket(market)
	if err != nil {
		t.Fatalf("ForMarket failed: %v", err)
	}
	if got != 0.15 {
		t.Errorf("Expected low-tier default 0.15, got %v", got)
	}
}
