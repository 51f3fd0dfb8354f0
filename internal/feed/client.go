// Package feed provides the pull-based Polymarket Gamma API client used to
// collect current markets and recently resolved markets.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/polywatcher/engine/internal/logger"
	"github.com/polywatcher/engine/internal/models"
	"github.com/polywatcher/engine/internal/resolution"
	"golang.org/x/time/rate"
)

// ClientConfig tunes the feed transport.
type ClientConfig struct {
	Timeout         time.Duration
	RequestsPerSec  int
	MaxRetryElapsed time.Duration
	PageSize        int
	MinLiquidity    float64
	MinVolume       float64
}

// Client fetches markets from the Polymarket Gamma API.
type Client struct {
	apiURL     string
	httpClient *http.Client
	limiter    *rate.Limiter
	config     ClientConfig
}

// NewClient creates a feed client for the given Gamma API base URL.
func NewClient(apiURL string, config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RequestsPerSec == 0 {
		config.RequestsPerSec = 5
	}
	if config.MaxRetryElapsed == 0 {
		config.MaxRetryElapsed = 30 * time.Second
	}
	if config.PageSize == 0 {
		config.PageSize = 100
	}
	return &Client{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), config.RequestsPerSec),
		config:     config,
	}
}

// gammaMarket is the wire shape of one market from the Gamma API. Outcomes
// and prices arrive as JSON-encoded strings inside the JSON document.
type gammaMarket struct {
	ID            string  `json:"id"`
	Question      string  `json:"question"`
	Slug          string  `json:"slug"`
	Description   string  `json:"description"`
	Resolution    string  `json:"resolution"`
	Outcomes      string  `json:"outcomes"`      // e.g. "[\"Yes\", \"No\"]"
	OutcomePrices string  `json:"outcomePrices"` // e.g. "[\"0.75\", \"0.25\"]"
	LiquidityNum  float64 `json:"liquidityNum"`
	VolumeNum     float64 `json:"volumeNum"`
	Volume24hr    float64 `json:"volume24hr"`
	EndDate       string  `json:"endDate"`
	Active        bool    `json:"active"`
	Closed        bool    `json:"closed"`
}

// FetchMarkets retrieves the current active market list, paginated via
// limit/offset. Malformed markets are logged and excluded, never fatal.
func (c *Client) FetchMarkets(ctx context.Context, maxMarkets int) ([]models.Market, error) {
	now := time.Now().UTC()
	var markets []models.Market

	for offset := 0; maxMarkets <= 0 || len(markets) < maxMarkets; {
		page, err := c.fetchPage(ctx, url.Values{
			"active":            {"true"},
			"closed":            {"false"},
			"limit":             {strconv.Itoa(c.config.PageSize)},
			"offset":            {strconv.Itoa(offset)},
			"ascending":         {"false"},
			"liquidity_num_min": {strconv.FormatFloat(c.config.MinLiquidity, 'f', -1, 64)},
			"volume_num_min":    {strconv.FormatFloat(c.config.MinVolume, 'f', -1, 64)},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch markets: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, gm := range page {
			market, err := parseMarket(gm, now)
			if err != nil {
				logger.Warn("Skipping malformed market %s: %v", gm.ID, err)
				continue
			}
			markets = append(markets, *market)
		}

		if len(page) < c.config.PageSize {
			break
		}
		offset += len(page)
	}

	if maxMarkets > 0 && len(markets) > maxMarkets {
		markets = markets[:maxMarkets]
	}
	return markets, nil
}

// FetchResolvedMarkets retrieves markets that closed between lookbackMax and
// lookbackMin days ago.
func (c *Client) FetchResolvedMarkets(ctx context.Context, lookbackMin, lookbackMax time.Duration) ([]resolution.ResolvedMarket, error) {
	now := time.Now().UTC()
	var resolved []resolution.ResolvedMarket

	for offset := 0; ; {
		page, err := c.fetchPage(ctx, url.Values{
			"active":       {"false"},
			"closed":       {"true"},
			"limit":        {strconv.Itoa(c.config.PageSize)},
			"offset":       {strconv.Itoa(offset)},
			"ascending":    {"false"},
			"end_date_max": {now.Add(-lookbackMin).Format("2006-01-02")},
			"end_date_min": {now.Add(-lookbackMax).Format("2006-01-02")},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch resolved markets: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, gm := range page {
			outcomes, prices, err := parseOutcomes(gm)
			if err != nil {
				logger.Warn("Skipping resolved market %s with malformed outcomes: %v", gm.ID, err)
				continue
			}
			resolved = append(resolved, resolution.ResolvedMarket{
				ID:         gm.ID,
				Question:   gm.Question,
				Resolution: gm.Resolution,
				Outcomes:   outcomes,
				Prices:     prices,
				Liquidity:  gm.LiquidityNum,
				Categories: models.Categorize(gm.Question, gm.Description),
			})
		}

		if len(page) < c.config.PageSize {
			break
		}
		offset += len(page)
	}
	return resolved, nil
}

// parseMarket converts a wire market into the domain model, selecting the
// tracked outcome and assigning categories.
func parseMarket(gm gammaMarket, now time.Time) (*models.Market, error) {
	if gm.ID == "" {
		return nil, fmt.Errorf("missing market ID")
	}
	outcomes, prices, err := parseOutcomes(gm)
	if err != nil {
		return nil, err
	}
	outcome, price, index, ok := models.SelectTrackedOutcome(outcomes, prices)
	if !ok {
		return nil, fmt.Errorf("no trackable outcome")
	}

	market := &models.Market{
		ID:             gm.ID,
		Question:       gm.Question,
		Slug:           gm.Slug,
		Description:    gm.Description,
		Liquidity:      gm.LiquidityNum,
		Volume24hr:     gm.Volume24hr,
		TrackedOutcome: outcome,
		OutcomeIndex:   index,
		Categories:     models.Categorize(gm.Question, gm.Description),
		CurrentPrice:   price,
		Closed:         gm.Closed,
		LastUpdated:    now,
	}
	if gm.EndDate != "" {
		if endDate, err := time.Parse(time.RFC3339, gm.EndDate); err == nil {
			market.EndDate = endDate
		}
	}
	if err := market.Validate(); err != nil {
		return nil, err
	}
	return market, nil
}

// parseOutcomes decodes the JSON-string outcome and price fields.
func parseOutcomes(gm gammaMarket) ([]string, []float64, error) {
	var outcomes []string
	if err := json.Unmarshal([]byte(gm.Outcomes), &outcomes); err != nil {
		return nil, nil, fmt.Errorf("failed to parse outcomes: %w", err)
	}
	var priceStrings []string
	if err := json.Unmarshal([]byte(gm.OutcomePrices), &priceStrings); err != nil {
		return nil, nil, fmt.Errorf("failed to parse outcome prices: %w", err)
	}
	if len(outcomes) != len(priceStrings) {
		return nil, nil, fmt.Errorf("outcome/price length mismatch: %d vs %d", len(outcomes), len(priceStrings))
	}
	prices := make([]float64, len(priceStrings))
	for i, ps := range priceStrings {
		p, err := strconv.ParseFloat(ps, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse price %q: %w", ps, err)
		}
		prices[i] = p
	}
	return outcomes, prices, nil
}

// fetchPage performs one rate-limited, retried GET against the markets
// endpoint.
func (c *Client) fetchPage(ctx context.Context, params url.Values) ([]gammaMarket, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u, err := url.Parse(c.apiURL + "/markets")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	u.RawQuery = params.Encode()

	var page []gammaMarket
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("unexpected status: %d", resp.StatusCode))
		}

		page = nil
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			return fmt.Errorf("failed to decode markets: %w", err)
		}
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = c.config.MaxRetryElapsed
	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		return nil, err
	}
	return page, nil
}
