package models

import (
	"testing"
	"time"
)

func TestMarketValidate(t *testing.T) {
	valid := Market{
		ID:             "market-1",
		Question:       "Will it happen?",
		TrackedOutcome: "Yes",
		CurrentPrice:   0.5,
		LastUpdated:    time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Expected valid market, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(m *Market)
	}{
		{"missing ID", func(m *Market) { m.ID = "" }},
		{"missing question", func(m *Market) { m.Question = "" }},
		{"missing outcome", func(m *Market) { m.TrackedOutcome = "" }},
		{"price above 1", func(m *Market) { m.CurrentPrice = 1.2 }},
		{"negative liquidity", func(m *Market) { m.Liquidity = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			if err := m.Validate(); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestSelectTrackedOutcome(t *testing.T) {
	// Binary markets track the Yes side regardless of position or price.
	outcome, price, index, ok := SelectTrackedOutcome([]string{"No", "Yes"}, []float64{0.7, 0.3})
	if !ok || outcome != "Yes" || price != 0.3 || index != 1 {
		t.Errorf("Expected Yes/0.3/1, got %s/%f/%d ok=%v", outcome, price, index, ok)
	}

	// Multi-outcome markets track the current favorite.
	outcome, price, index, ok = SelectTrackedOutcome([]string{"A", "B", "C"}, []float64{0.2, 0.5, 0.3})
	if !ok || outcome != "B" || price != 0.5 || index != 1 {
		t.Errorf("Expected B/0.5/1, got %s/%f/%d ok=%v", outcome, price, index, ok)
	}

	if _, _, _, ok := SelectTrackedOutcome(nil, nil); ok {
		t.Error("Expected no tracked outcome for empty market")
	}
	if _, _, _, ok := SelectTrackedOutcome([]string{"Yes"}, []float64{0.5, 0.5}); ok {
		t.Error("Expected no tracked outcome for mismatched lengths")
	}
}

func TestTierForLiquidity(t *testing.T) {
	tests := []struct {
		liquidity float64
		want      LiquidityTier
	}{
		{0, TierVeryLow},
		{4_999, TierVeryLow},
		{5_000, TierLow},
		{99_999, TierLow},
		{100_000, TierMedium},
		{499_999, TierMedium},
		{500_000, TierHigh},
		{2_000_000, TierHigh},
	}
	for _, tt := range tests {
		if got := TierForLiquidity(tt.liquidity); got != tt.want {
			t.Errorf("TierForLiquidity(%v) = %s, want %s", tt.liquidity, got, tt.want)
		}
	}
}

func TestCategorize(t *testing.T) {
	got := Categorize("Will Bitcoin hit $100k before the election?", "")
	if len(got) != 2 || got[0] != CategoryPolitics || got[1] != CategoryCrypto {
		t.Errorf("Expected [Politics Crypto], got %v", got)
	}

	if got := Categorize("Will it rain tomorrow?", ""); got != nil {
		t.Errorf("Expected no categories, got %v", got)
	}

	// Description text counts too.
	got = Categorize("Will the deal close?", "Merger pending Federal Reserve approval")
	if len(got) != 1 || got[0] != CategoryFinance {
		t.Errorf("Expected [Finance], got %v", got)
	}
}

func TestSignalResolved(t *testing.T) {
	sig := Signal{MarketID: "market-1", SignalID: "signal_a"}
	if sig.Resolved() {
		t.Error("Expected fresh signal unresolved")
	}
	sig.ResolvedAt = time.Now()
	if !sig.Resolved() {
		t.Error("Expected annotated signal resolved")
	}
}

func TestSignalValidate(t *testing.T) {
	valid := Signal{
		MarketID:    "market-1",
		SignalID:    "signal_a",
		Type:        SignalPriceJump,
		WindowHours: 6,
		PriceChange: 0.18,
		Confidence:  0.6,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Expected valid signal, got %v", err)
	}

	bad := valid
	bad.Type = "SOMETHING_ELSE"
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for unknown type")
	}

	bad = valid
	bad.Confidence = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("Expected error for out-of-range confidence")
	}
}
