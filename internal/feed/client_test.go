package feed

import (
	"testing"
	"time"

	"github.com/polywatcher/engine/internal/models"
)

func TestParseMarket_Binary(t *testing.T) {
	now := time.Now().UTC()
	gm := gammaMarket{
		ID:            "market-1",
		Question:      "Will Bitcoin close above $100k?",
		Slug:          "btc-100k",
		Outcomes:      `["Yes", "No"]`,
		OutcomePrices: `["0.58", "0.42"]`,
		LiquidityNum:  250_000,
		Volume24hr:    400_000,
		EndDate:       "2026-06-30T00:00:00Z",
	}

	market, err := parseMarket(gm, now)
	if err != nil {
		t.Fatalf("parseMarket failed: %v", err)
	}
	if market.TrackedOutcome != "Yes" || market.OutcomeIndex != 0 {
		t.Errorf("Expected Yes tracked at index 0, got %s/%d", market.TrackedOutcome, market.OutcomeIndex)
	}
	if market.CurrentPrice != 0.58 {
		t.Errorf("Expected price 0.58, got %f", market.CurrentPrice)
	}
	if len(market.Categories) != 1 || market.Categories[0] != models.CategoryCrypto {
		t.Errorf("Expected crypto category, got %v", market.Categories)
	}
	if market.EndDate.IsZero() {
		t.Error("Expected parsed end date")
	}
	if !market.LastUpdated.Equal(now) {
		t.Errorf("Expected last updated %v, got %v", now, market.LastUpdated)
	}
}

func TestParseMarket_MultiOutcomeTracksFavorite(t *testing.T) {
	gm := gammaMarket{
		ID:            "market-2",
		Question:      "Who wins the nomination?",
		Outcomes:      `["Candidate A", "Candidate B", "Candidate C"]`,
		OutcomePrices: `["0.20", "0.55", "0.25"]`,
	}

	market, err := parseMarket(gm, time.Now().UTC())
	if err != nil {
		t.Fatalf("parseMarket failed: %v", err)
	}
	if market.TrackedOutcome != "Candidate B" || market.OutcomeIndex != 1 {
		t.Errorf("Expected favorite tracked, got %s/%d", market.TrackedOutcome, market.OutcomeIndex)
	}
}

func TestParseMarket_Malformed(t *testing.T) {
	tests := []struct {
		name string
		gm   gammaMarket
	}{
		{"missing ID", gammaMarket{Question: "q", Outcomes: `["Yes","No"]`, OutcomePrices: `["0.5","0.5"]`}},
		{"bad outcomes JSON", gammaMarket{ID: "m", Question: "q", Outcomes: `not json`, OutcomePrices: `["0.5"]`}},
		{"length mismatch", gammaMarket{ID: "m", Question: "q", Outcomes: `["Yes","No"]`, OutcomePrices: `["0.5"]`}},
		{"unparseable price", gammaMarket{ID: "m", Question: "q", Outcomes: `["Yes","No"]`, OutcomePrices: `["high","low"]`}},
		{"price out of range", gammaMarket{ID: "m", Question: "q", Outcomes: `["Yes","No"]`, OutcomePrices: `["1.5","0.5"]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseMarket(tt.gm, time.Now().UTC()); err == nil {
				t.Error("Expected parse error, got nil")
			}
		})
	}
}

func TestParseOutcomes(t *testing.T) {
	outcomes, prices, err := parseOutcomes(gammaMarket{
		Outcomes:      `["Yes", "No"]`,
		OutcomePrices: `["0.97", "0.03"]`,
	})
	if err != nil {
		t.Fatalf("parseOutcomes failed: %v", err)
	}
	if len(outcomes) != 2 || outcomes[0] != "Yes" {
		t.Errorf("Unexpected outcomes: %v", outcomes)
	}
	if prices[0] != 0.97 || prices[1] != 0.03 {
		t.Errorf("Unexpected prices: %v", prices)
	}
}
