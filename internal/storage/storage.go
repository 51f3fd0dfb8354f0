// Package storage provides SQLite-backed persistence for markets, price
// history, signals, thresholds, resolutions, and the alert delivery log.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/polywatcher/engine/internal/models"
	_ "modernc.org/sqlite"
)

// Retention holds the per-collection retention windows. Rows past their
// expiry are removed by PurgeExpired.
type Retention struct {
	Markets      time.Duration
	PriceHistory time.Duration
	Signals      time.Duration
	Thresholds   time.Duration
	Resolutions  time.Duration
	Alerts       time.Duration
}

// DefaultRetention mirrors the data-lifecycle defaults: 30 days for market
// rows, 90 for price history, one year for everything downstream.
func DefaultRetention() Retention {
	return Retention{
		Markets:      30 * 24 * time.Hour,
		PriceHistory: 90 * 24 * time.Hour,
		Signals:      365 * 24 * time.Hour,
		Thresholds:   365 * 24 * time.Hour,
		Resolutions:  365 * 24 * time.Hour,
		Alerts:       365 * 24 * time.Hour,
	}
}

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db        *sql.DB
	retention Retention
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/polywatcher/data.db.
func New(dbPath string, retention Retention) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "polywatcher", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, retention: retention}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS markets (
			id              TEXT PRIMARY KEY,
			question        TEXT NOT NULL,
			slug            TEXT,
			description     TEXT,
			liquidity       REAL NOT NULL,
			volume_24hr     REAL NOT NULL,
			tracked_outcome TEXT NOT NULL,
			outcome_index   INTEGER NOT NULL,
			categories      TEXT NOT NULL DEFAULT '[]',
			current_price   REAL NOT NULL,
			end_date        INTEGER NOT NULL DEFAULT 0,
			closed          INTEGER NOT NULL DEFAULT 0,
			last_updated    INTEGER NOT NULL,
			expires_at      INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS price_history (
			market_id       TEXT NOT NULL,
			outcome_index   INTEGER NOT NULL,
			outcome         TEXT,
			price           REAL NOT NULL,
			timestamp       INTEGER NOT NULL,
			expires_at      INTEGER NOT NULL,
			PRIMARY KEY (market_id, outcome_index, timestamp)
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			market_id         TEXT NOT NULL,
			signal_id         TEXT NOT NULL,
			question          TEXT,
			signal_type       TEXT NOT NULL,
			signal_strength   TEXT NOT NULL,
			window_hours      INTEGER NOT NULL,
			current_price     REAL NOT NULL,
			previous_price    REAL NOT NULL,
			price_change      REAL NOT NULL,
			volatility        REAL NOT NULL,
			momentum          REAL NOT NULL,
			threshold_used    REAL NOT NULL,
			confidence        REAL NOT NULL,
			liquidity         REAL NOT NULL,
			liquidity_tier    TEXT NOT NULL,
			categories        TEXT NOT NULL DEFAULT '[]',
			tracked_outcome   TEXT,
			predicted_outcome TEXT,
			detected_at       INTEGER NOT NULL,
			actual_outcome    TEXT NOT NULL DEFAULT '',
			was_correct       INTEGER NOT NULL DEFAULT 0,
			resolved_at       INTEGER NOT NULL DEFAULT 0,
			expires_at        INTEGER NOT NULL,
			PRIMARY KEY (market_id, signal_id)
		)`,
		`CREATE TABLE IF NOT EXISTS thresholds (
			category       TEXT NOT NULL,
			liquidity_tier TEXT NOT NULL,
			base_threshold REAL NOT NULL,
			accuracy       REAL NOT NULL DEFAULT 0.5,
			evaluated      INTEGER NOT NULL DEFAULT 0,
			correct        INTEGER NOT NULL DEFAULT 0,
			last_updated   INTEGER NOT NULL,
			expires_at     INTEGER NOT NULL,
			PRIMARY KEY (category, liquidity_tier)
		)`,
		`CREATE TABLE IF NOT EXISTS resolutions (
			market_id      TEXT PRIMARY KEY,
			question       TEXT,
			outcome        TEXT NOT NULL,
			outcome_prices TEXT NOT NULL DEFAULT '{}',
			categories     TEXT NOT NULL DEFAULT '[]',
			liquidity      REAL NOT NULL DEFAULT 0,
			resolved_at    INTEGER NOT NULL,
			expires_at     INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id         TEXT PRIMARY KEY,
			market_id  TEXT NOT NULL,
			signal_id  TEXT NOT NULL,
			sent_at    INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_series ON price_history(market_id, outcome_index, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_resolved ON signals(resolved_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_sent_at ON alerts(sent_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_market ON alerts(market_id, sent_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertMarket inserts or supersedes the single row for a market ID.
func (s *Storage) UpsertMarket(market *models.Market) error {
	if err := market.Validate(); err != nil {
		return fmt.Errorf("invalid market: %w", err)
	}
	categories, err := json.Marshal(market.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}
	var endDate int64
	if !market.EndDate.IsZero() {
		endDate = market.EndDate.UnixNano()
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO markets
			(id, question, slug, description, liquidity, volume_24hr,
			 tracked_outcome, outcome_index, categories, current_price,
			 end_date, closed, last_updated, expires_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		market.ID, market.Question, market.Slug, market.Description,
		market.Liquidity, market.Volume24hr,
		market.TrackedOutcome, market.OutcomeIndex, string(categories), market.CurrentPrice,
		endDate, boolToInt(market.Closed), market.LastUpdated.UnixNano(),
		market.LastUpdated.Add(s.retention.Markets).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert market: %w", err)
	}
	return nil
}

// GetMarket returns the current row for a market ID.
func (s *Storage) GetMarket(id string) (*models.Market, error) {
	row := s.db.QueryRow(`SELECT `+marketCols+` FROM markets WHERE id = ?`, id)
	m, err := scanMarket(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("market not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market: %w", err)
	}
	return m, nil
}

// GetAllMarkets returns every tracked market.
func (s *Storage) GetAllMarkets() ([]*models.Market, error) {
	rows, err := s.db.Query(`SELECT ` + marketCols + ` FROM markets`)
	if err != nil {
		return nil, fmt.Errorf("failed to query markets: %w", err)
	}
	defer rows.Close()
	markets := []*models.Market{}
	for rows.Next() {
		m, err := scanMarket(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// AddPricePoint appends one observation to the price history.
func (s *Storage) AddPricePoint(p *models.PricePoint) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid price point: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO price_history
			(market_id, outcome_index, outcome, price, timestamp, expires_at)
		VALUES (?,?,?,?,?,?)`,
		p.MarketID, p.OutcomeIndex, p.Outcome, p.Price,
		p.Timestamp.UnixNano(), p.Timestamp.Add(s.retention.PriceHistory).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert price point: %w", err)
	}
	return nil
}

// PriceHistory returns points for a (market, outcome) series newer than
// since, ordered oldest first.
func (s *Storage) PriceHistory(marketID string, outcomeIndex int, since time.Time) ([]models.PricePoint, error) {
	rows, err := s.db.Query(`
		SELECT market_id, outcome_index, outcome, price, timestamp
		FROM price_history
		WHERE market_id = ? AND outcome_index = ? AND timestamp > ?
		ORDER BY timestamp ASC`,
		marketID, outcomeIndex, since.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		var ts int64
		if err := rows.Scan(&p.MarketID, &p.OutcomeIndex, &p.Outcome, &p.Price, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		p.Timestamp = time.Unix(0, ts)
		points = append(points, p)
	}
	return points, rows.Err()
}

// AddSignal persists a newly detected signal.
func (s *Storage) AddSignal(sig *models.Signal) error {
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("invalid signal: %w", err)
	}
	categories, err := json.Marshal(sig.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO signals
			(market_id, signal_id, question, signal_type, signal_strength,
			 window_hours, current_price, previous_price, price_change,
			 volatility, momentum, threshold_used, confidence,
			 liquidity, liquidity_tier, categories, tracked_outcome,
			 predicted_outcome, detected_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sig.MarketID, sig.SignalID, sig.Question, string(sig.Type), string(sig.Strength),
		sig.WindowHours, sig.CurrentPrice, sig.PreviousPrice, sig.PriceChange,
		sig.Volatility, sig.Momentum, sig.ThresholdUsed, sig.Confidence,
		sig.Liquidity, string(sig.Tier), string(categories), sig.TrackedOutcome,
		sig.PredictedOutcome, sig.DetectedAt.UnixNano(),
		sig.DetectedAt.Add(s.retention.Signals).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// SignalsForMarket returns all signals detected on a market, oldest first.
func (s *Storage) SignalsForMarket(marketID string) ([]models.Signal, error) {
	rows, err := s.db.Query(`SELECT `+signalCols+` FROM signals WHERE market_id = ? ORDER BY detected_at ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// ResolveSignal applies the single allowed mutation to a signal: annotating
// it with the resolution outcome. Signals already resolved are left alone.
func (s *Storage) ResolveSignal(marketID, signalID, actualOutcome string, wasCorrect bool, resolvedAt time.Time) error {
	_, err := s.db.Exec(`
		UPDATE signals
		SET actual_outcome = ?, was_correct = ?, resolved_at = ?
		WHERE market_id = ? AND signal_id = ? AND resolved_at = 0`,
		actualOutcome, boolToInt(wasCorrect), resolvedAt.UnixNano(),
		marketID, signalID,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve signal: %w", err)
	}
	return nil
}

// ResolvedSignals returns all resolved signals carrying the given category
// and liquidity tier.
func (s *Storage) ResolvedSignals(category models.Category, tier models.LiquidityTier) ([]models.Signal, error) {
	rows, err := s.db.Query(`
		SELECT `+signalCols+` FROM signals
		WHERE resolved_at != 0 AND liquidity_tier = ?
		  AND categories LIKE '%"' || ? || '"%'`,
		string(tier), string(category),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolved signals: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// GetThreshold returns the threshold record for a (category, tier) pair, or
// nil when none exists yet.
func (s *Storage) GetThreshold(category models.Category, tier models.LiquidityTier) (*models.ThresholdRecord, error) {
	row := s.db.QueryRow(`
		SELECT category, liquidity_tier, base_threshold, accuracy, evaluated, correct, last_updated
		FROM thresholds WHERE category = ? AND liquidity_tier = ?`,
		string(category), string(tier),
	)
	var rec models.ThresholdRecord
	var updatedAt int64
	err := row.Scan(&rec.Category, &rec.Tier, &rec.BaseThreshold, &rec.Accuracy, &rec.Evaluated, &rec.Correct, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get threshold: %w", err)
	}
	rec.LastUpdated = time.Unix(0, updatedAt)
	return &rec, nil
}

// PutThreshold inserts or replaces the live record for a (category, tier)
// pair.
func (s *Storage) PutThreshold(rec *models.ThresholdRecord) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO thresholds
			(category, liquidity_tier, base_threshold, accuracy, evaluated, correct, last_updated, expires_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		string(rec.Category), string(rec.Tier), rec.BaseThreshold,
		rec.Accuracy, rec.Evaluated, rec.Correct,
		rec.LastUpdated.UnixNano(), rec.LastUpdated.Add(s.retention.Thresholds).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to put threshold: %w", err)
	}
	return nil
}

// GetResolution returns the resolution for a market, or nil when the market
// has not resolved.
func (s *Storage) GetResolution(marketID string) (*models.Resolution, error) {
	row := s.db.QueryRow(`
		SELECT market_id, question, outcome, outcome_prices, categories, liquidity, resolved_at
		FROM resolutions WHERE market_id = ?`, marketID)

	var r models.Resolution
	var pricesJSON, categoriesJSON string
	var resolvedAt int64
	err := row.Scan(&r.MarketID, &r.Question, &r.Outcome, &pricesJSON, &categoriesJSON, &r.Liquidity, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution: %w", err)
	}
	if err := json.Unmarshal([]byte(pricesJSON), &r.OutcomePrices); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome prices: %w", err)
	}
	if err := json.Unmarshal([]byte(categoriesJSON), &r.Categories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
	}
	r.ResolvedAt = time.Unix(0, resolvedAt)
	return &r, nil
}

// AddResolution persists a market resolution. A market ID resolves at most
// once; re-inserting an existing resolution is a no-op.
func (s *Storage) AddResolution(r *models.Resolution) error {
	prices, err := json.Marshal(r.OutcomePrices)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome prices: %w", err)
	}
	categories, err := json.Marshal(r.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR IGNORE INTO resolutions
			(market_id, question, outcome, outcome_prices, categories, liquidity, resolved_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		r.MarketID, r.Question, r.Outcome, string(prices), string(categories),
		r.Liquidity, r.ResolvedAt.UnixNano(), r.ResolvedAt.Add(s.retention.Resolutions).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert resolution: %w", err)
	}
	return nil
}

// RecordAlert appends one entry to the delivery log.
func (s *Storage) RecordAlert(a *models.Alert) error {
	_, err := s.db.Exec(`
		INSERT INTO alerts (id, market_id, signal_id, sent_at, expires_at)
		VALUES (?,?,?,?,?)`,
		a.ID, a.MarketID, a.SignalID, a.SentAt.UnixNano(),
		a.SentAt.Add(s.retention.Alerts).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// LastAlertTime returns the time of the most recent alert for a market, or
// for any market when marketID is empty. Returns the zero time when the log
// is empty.
func (s *Storage) LastAlertTime(marketID string) (time.Time, error) {
	var row *sql.Row
	if marketID == "" {
		row = s.db.QueryRow(`SELECT MAX(sent_at) FROM alerts`)
	} else {
		row = s.db.QueryRow(`SELECT MAX(sent_at) FROM alerts WHERE market_id = ?`, marketID)
	}
	var sentAt sql.NullInt64
	if err := row.Scan(&sentAt); err != nil {
		return time.Time{}, fmt.Errorf("failed to query last alert time: %w", err)
	}
	if !sentAt.Valid || sentAt.Int64 == 0 {
		return time.Time{}, nil
	}
	return time.Unix(0, sentAt.Int64), nil
}

// AlertCountSince returns how many alerts were sent after the cutoff.
func (s *Storage) AlertCountSince(cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM alerts WHERE sent_at > ?`, cutoff.UnixNano()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return n, nil
}

// PurgeExpired removes rows past their retention expiry from every table.
func (s *Storage) PurgeExpired(now time.Time) error {
	tables := []string{"markets", "price_history", "signals", "thresholds", "resolutions", "alerts"}
	for _, table := range tables {
		if _, err := s.db.Exec(`DELETE FROM `+table+` WHERE expires_at <= ?`, now.UnixNano()); err != nil {
			return fmt.Errorf("failed to purge %s: %w", table, err)
		}
	}
	return nil
}

const marketCols = `id, question, slug, description, liquidity, volume_24hr,
	tracked_outcome, outcome_index, categories, current_price, end_date, closed, last_updated`

func scanMarket(scan func(...any) error) (*models.Market, error) {
	var m models.Market
	var categoriesJSON string
	var endDate, lastUpdated int64
	var closed int
	err := scan(
		&m.ID, &m.Question, &m.Slug, &m.Description, &m.Liquidity, &m.Volume24hr,
		&m.TrackedOutcome, &m.OutcomeIndex, &categoriesJSON, &m.CurrentPrice,
		&endDate, &closed, &lastUpdated,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(categoriesJSON), &m.Categories); err != nil {
		return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
	}
	if endDate != 0 {
		m.EndDate = time.Unix(0, endDate)
	}
	m.Closed = closed != 0
	m.LastUpdated = time.Unix(0, lastUpdated)
	return &m, nil
}

const signalCols = `market_id, signal_id, question, signal_type, signal_strength,
	window_hours, current_price, previous_price, price_change, volatility, momentum,
	threshold_used, confidence, liquidity, liquidity_tier, categories, tracked_outcome,
	predicted_outcome, detected_at, actual_outcome, was_correct, resolved_at`

func scanSignals(rows *sql.Rows) ([]models.Signal, error) {
	var signals []models.Signal
	for rows.Next() {
		var sig models.Signal
		var categoriesJSON string
		var detectedAt, resolvedAt int64
		var wasCorrect int
		err := rows.Scan(
			&sig.MarketID, &sig.SignalID, &sig.Question, &sig.Type, &sig.Strength,
			&sig.WindowHours, &sig.CurrentPrice, &sig.PreviousPrice, &sig.PriceChange,
			&sig.Volatility, &sig.Momentum, &sig.ThresholdUsed, &sig.Confidence,
			&sig.Liquidity, &sig.Tier, &categoriesJSON, &sig.TrackedOutcome,
			&sig.PredictedOutcome, &detectedAt, &sig.ActualOutcome, &wasCorrect, &resolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		if err := json.Unmarshal([]byte(categoriesJSON), &sig.Categories); err != nil {
			return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
		}
		sig.DetectedAt = time.Unix(0, detectedAt)
		sig.WasCorrect = wasCorrect != 0
		if resolvedAt != 0 {
			sig.ResolvedAt = time.Unix(0, resolvedAt)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
