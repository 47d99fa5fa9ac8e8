package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"uah-rates-bot/internal/model"
	"uah-rates-bot/migrations"
)

const (
	sqliteInsertQuoteSQL = `INSERT INTO rate_history (currency, source, buy, sell, observed_at)
        VALUES (?, ?, ?, ?, ?)`

	sqliteTrimHistorySQL = `DELETE FROM rate_history
        WHERE currency = ? AND source = ?
          AND id <= (
            SELECT id FROM rate_history
            WHERE currency = ? AND source = ?
            ORDER BY id DESC
            LIMIT 1 OFFSET ?
          )`

	sqliteHistorySinceSQL = `SELECT currency, source, buy, sell, observed_at
        FROM rate_history
        WHERE currency = ? AND source = ? AND observed_at > ?
        ORDER BY id`

	sqliteHistoryAllSQL = `SELECT currency, source, buy, sell, observed_at
        FROM rate_history
        WHERE currency = ? AND source = ?
        ORDER BY id`

	sqliteNextAlertIDSQL = `INSERT INTO user_alert_counters (user_id, last_id) VALUES (?, 1)
        ON CONFLICT (user_id) DO UPDATE SET last_id = last_id + 1
        RETURNING last_id`

	sqliteInsertAlertSQL = `INSERT INTO user_alerts (user_id, id, currency, alert_type, threshold, active, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

	sqliteListAlertsSQL = `SELECT user_id, id, currency, alert_type, threshold, active, created_at
        FROM user_alerts WHERE user_id = ? ORDER BY id`

	sqliteListAllAlertsSQL = `SELECT user_id, id, currency, alert_type, threshold, active, created_at
        FROM user_alerts ORDER BY user_id, id`

	sqliteDeleteAlertSQL = `DELETE FROM user_alerts WHERE user_id = ? AND id = ?`

	sqliteGetSettingsSQL = `SELECT user_id, language, updated_at FROM user_settings WHERE user_id = ?`

	sqliteUpsertLanguageSQL = `INSERT INTO user_settings (user_id, language, updated_at) VALUES (?, ?, ?)
        ON CONFLICT (user_id) DO UPDATE SET language = excluded.language, updated_at = excluded.updated_at`

	sqliteListUsersSQL = `SELECT user_id FROM user_settings
        UNION
        SELECT user_id FROM user_alerts
        ORDER BY 1`

	sqliteInsertExchangerSQL = `INSERT INTO exchangers (name, address, district, phone, lat, lon, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

	sqliteListExchangersSQL = `SELECT id, name, address, district, phone, lat, lon FROM exchangers ORDER BY id`

	sqliteGetExchangerSQL = `SELECT id, name, address, district, phone, lat, lon FROM exchangers WHERE id = ?`

	sqliteListExchangerRatesSQL = `SELECT exchanger_id, currency, buy, sell, updated_at FROM exchanger_rates`

	sqliteExchangerRatesSQL = `SELECT exchanger_id, currency, buy, sell, updated_at FROM exchanger_rates WHERE exchanger_id = ?`

	sqliteUpsertExchangerRateSQL = `INSERT INTO exchanger_rates (exchanger_id, currency, buy, sell, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (exchanger_id, currency) DO UPDATE
        SET buy = excluded.buy, sell = excluded.sell, updated_at = excluded.updated_at`
)

// SQLite is the embedded single-file backend.
type SQLite struct {
	db   *sql.DB
	opts options

	// Writers to one table are serialised so read-then-write sequences stay atomic.
	historyMu    sync.Mutex
	alertsMu     sync.Mutex
	exchangersMu sync.Mutex

	lockMu sync.Mutex
	locks  map[int64]bool
}

// OpenSQLite opens (or creates) the database at path, applies PRAGMAs and
// runs pending migrations. Use ":memory:" for an ephemeral database.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*SQLite, error) {
	db, err := openSQLiteDB(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := migrations.Run(db, migrations.DialectSQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SQLite{db: db, opts: o, locks: make(map[int64]bool)}, nil
}

func openSQLiteDB(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, ErrNotConfigured
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite is a single-writer engine; one connection also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}
	return db, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	return s.db.PingContext(ctx)
}

// TryAdvisoryLock is process-local for SQLite: a single process owns the file.
func (s *SQLite) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	if s.locks[key] {
		return nil, false, nil
	}
	s.locks[key] = true
	return func() {
		s.lockMu.Lock()
		delete(s.locks, key)
		s.lockMu.Unlock()
	}, true, nil
}

// AppendQuote persists a quote and trims its key to the history limit.
func (s *SQLite) AppendQuote(ctx context.Context, q model.Quote) (model.Quote, error) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	q.ObservedAt = s.opts.timestamp()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Quote{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, sqliteInsertQuoteSQL,
		string(q.Currency), string(q.Source), q.Buy.String(), q.Sell.String(), q.ObservedAt.UnixMicro(),
	); err != nil {
		return model.Quote{}, fmt.Errorf("insert quote: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqliteTrimHistorySQL,
		string(q.Currency), string(q.Source), string(q.Currency), string(q.Source), s.opts.historyLimit,
	); err != nil {
		return model.Quote{}, fmt.Errorf("trim history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Quote{}, fmt.Errorf("commit append: %w", err)
	}
	return q, nil
}

// QueryHistory lists quotes of one key observed strictly after now-window.
func (s *SQLite) QueryHistory(ctx context.Context, currency model.Currency, source model.Source, window time.Duration) ([]model.Quote, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if window > 0 {
		cutoff := s.opts.timestamp().Add(-window)
		rows, err = s.db.QueryContext(ctx, sqliteHistorySinceSQL, string(currency), string(source), cutoff.UnixMicro())
	} else {
		rows, err = s.db.QueryContext(ctx, sqliteHistoryAllSQL, string(currency), string(source))
	}
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	quotes := make([]model.Quote, 0)
	for rows.Next() {
		var (
			cur, src, buy, sell string
			observed            int64
		)
		if err := rows.Scan(&cur, &src, &buy, &sell, &observed); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		q, err := buildQuote(cur, src, buy, sell, time.UnixMicro(observed))
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return quotes, nil
}

// CreateAlert assigns the next per-user id and stores the rule as active.
func (s *SQLite) CreateAlert(ctx context.Context, rule model.AlertRule) (model.AlertRule, error) {
	if err := rule.Validate(); err != nil {
		return model.AlertRule{}, err
	}

	s.alertsMu.Lock()
	defer s.alertsMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.AlertRule{}, fmt.Errorf("begin create alert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.QueryRowContext(ctx, sqliteNextAlertIDSQL, rule.UserID).Scan(&rule.ID); err != nil {
		return model.AlertRule{}, fmt.Errorf("next alert id: %w", err)
	}
	rule.Active = true
	rule.CreatedAt = s.opts.timestamp()

	if _, err := tx.ExecContext(ctx, sqliteInsertAlertSQL,
		rule.UserID, rule.ID, string(rule.Currency), string(rule.Type), rule.Threshold.String(),
		boolToInt(rule.Active), rule.CreatedAt.UnixMicro(),
	); err != nil {
		return model.AlertRule{}, fmt.Errorf("insert alert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.AlertRule{}, fmt.Errorf("commit create alert: %w", err)
	}
	return rule, nil
}

// ListAlerts returns every rule of one user ordered by id.
func (s *SQLite) ListAlerts(ctx context.Context, userID int64) ([]model.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListAlertsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rules := make([]model.AlertRule, 0)
	for rows.Next() {
		rule, err := scanSQLiteAlert(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListAllAlerts groups every stored rule by user.
func (s *SQLite) ListAllAlerts(ctx context.Context) (map[int64][]model.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListAllAlertsSQL)
	if err != nil {
		return nil, fmt.Errorf("list all alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byUser := make(map[int64][]model.AlertRule)
	for rows.Next() {
		rule, err := scanSQLiteAlert(rows)
		if err != nil {
			return nil, err
		}
		byUser[rule.UserID] = append(byUser[rule.UserID], rule)
	}
	return byUser, rows.Err()
}

// DeleteAlert removes one rule; missing rules are ignored.
func (s *SQLite) DeleteAlert(ctx context.Context, userID, id int64) error {
	s.alertsMu.Lock()
	defer s.alertsMu.Unlock()

	if _, err := s.db.ExecContext(ctx, sqliteDeleteAlertSQL, userID, id); err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return nil
}

// GetSettings loads a user's settings; found is false for unknown users.
func (s *SQLite) GetSettings(ctx context.Context, userID int64) (model.UserSettings, bool, error) {
	var (
		settings model.UserSettings
		lang     string
		updated  int64
	)
	err := s.db.QueryRowContext(ctx, sqliteGetSettingsSQL, userID).Scan(&settings.UserID, &lang, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserSettings{}, false, nil
	}
	if err != nil {
		return model.UserSettings{}, false, fmt.Errorf("get settings: %w", err)
	}
	settings.Language = model.Language(lang)
	settings.UpdatedAt = time.UnixMicro(updated).UTC()
	return settings, true, nil
}

// SetLanguage upserts the user's interface language.
func (s *SQLite) SetLanguage(ctx context.Context, userID int64, lang model.Language) error {
	if _, err := model.ParseLanguage(string(lang)); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsertLanguageSQL, userID, string(lang), s.opts.timestamp().UnixMicro()); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	return nil
}

// ListUsers returns every user with settings or alert rules.
func (s *SQLite) ListUsers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListUsersSQL)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// AddExchanger inserts an exchange office together with any initial rates.
func (s *SQLite) AddExchanger(ctx context.Context, ex model.Exchanger) (model.Exchanger, error) {
	s.exchangersMu.Lock()
	defer s.exchangersMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Exchanger{}, fmt.Errorf("begin add exchanger: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, sqliteInsertExchangerSQL,
		ex.Name, ex.Address, ex.District, ex.Phone, ex.Lat, ex.Lon, s.opts.timestamp().UnixMicro(),
	)
	if err != nil {
		return model.Exchanger{}, fmt.Errorf("insert exchanger: %w", err)
	}
	if ex.ID, err = res.LastInsertId(); err != nil {
		return model.Exchanger{}, fmt.Errorf("last insert id: %w", err)
	}

	for currency, rate := range ex.Rates {
		if rate.UpdatedAt.IsZero() {
			rate.UpdatedAt = s.opts.timestamp()
			ex.Rates[currency] = rate
		}
		if _, err := tx.ExecContext(ctx, sqliteUpsertExchangerRateSQL,
			ex.ID, string(currency), rate.Buy.String(), rate.Sell.String(), rate.UpdatedAt.UnixMicro(),
		); err != nil {
			return model.Exchanger{}, fmt.Errorf("insert exchanger rate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Exchanger{}, fmt.Errorf("commit add exchanger: %w", err)
	}
	if ex.Rates == nil {
		ex.Rates = make(map[model.Currency]model.ExchangerRate)
	}
	return ex, nil
}

// ListExchangers returns all offices with their rates, ordered by id.
func (s *SQLite) ListExchangers(ctx context.Context) ([]model.Exchanger, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListExchangersSQL)
	if err != nil {
		return nil, fmt.Errorf("list exchangers: %w", err)
	}
	exchangers := make([]model.Exchanger, 0)
	index := make(map[int64]int)
	for rows.Next() {
		ex, err := scanExchanger(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		index[ex.ID] = len(exchangers)
		exchangers = append(exchangers, ex)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	rateRows, err := s.db.QueryContext(ctx, sqliteListExchangerRatesSQL)
	if err != nil {
		return nil, fmt.Errorf("list exchanger rates: %w", err)
	}
	defer func() { _ = rateRows.Close() }()
	for rateRows.Next() {
		id, currency, rate, err := scanSQLiteExchangerRate(rateRows)
		if err != nil {
			return nil, err
		}
		if i, ok := index[id]; ok {
			exchangers[i].Rates[currency] = rate
		}
	}
	return exchangers, rateRows.Err()
}

// GetExchanger loads one office. Unknown ids return ErrNotFound.
func (s *SQLite) GetExchanger(ctx context.Context, id int64) (model.Exchanger, error) {
	ex, err := scanExchanger(s.db.QueryRowContext(ctx, sqliteGetExchangerSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Exchanger{}, ErrNotFound
	}
	if err != nil {
		return model.Exchanger{}, err
	}

	rows, err := s.db.QueryContext(ctx, sqliteExchangerRatesSQL, id)
	if err != nil {
		return model.Exchanger{}, fmt.Errorf("exchanger rates: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		_, currency, rate, err := scanSQLiteExchangerRate(rows)
		if err != nil {
			return model.Exchanger{}, err
		}
		ex.Rates[currency] = rate
	}
	return ex, rows.Err()
}

// UpdateExchangerRate sets an office's rate for one currency.
func (s *SQLite) UpdateExchangerRate(ctx context.Context, id int64, currency model.Currency, rate model.ExchangerRate) error {
	s.exchangersMu.Lock()
	defer s.exchangersMu.Unlock()

	var exists int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM exchangers WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup exchanger: %w", err)
	}

	if rate.UpdatedAt.IsZero() {
		rate.UpdatedAt = s.opts.timestamp()
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsertExchangerRateSQL,
		id, string(currency), rate.Buy.String(), rate.Sell.String(), rate.UpdatedAt.UnixMicro(),
	); err != nil {
		return fmt.Errorf("update exchanger rate: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAlert(row rowScanner) (model.AlertRule, error) {
	var (
		rule      model.AlertRule
		currency  string
		kind      string
		threshold string
		active    int
		created   int64
	)
	if err := row.Scan(&rule.UserID, &rule.ID, &currency, &kind, &threshold, &active, &created); err != nil {
		return model.AlertRule{}, fmt.Errorf("scan alert: %w", err)
	}
	value, err := decimal.NewFromString(threshold)
	if err != nil {
		return model.AlertRule{}, fmt.Errorf("parse threshold: %w", err)
	}
	rule.Currency = model.Currency(currency)
	rule.Type = model.AlertType(kind)
	rule.Threshold = value
	rule.Active = active != 0
	rule.CreatedAt = time.UnixMicro(created).UTC()
	return rule, nil
}

func scanExchanger(row rowScanner) (model.Exchanger, error) {
	var ex model.Exchanger
	if err := row.Scan(&ex.ID, &ex.Name, &ex.Address, &ex.District, &ex.Phone, &ex.Lat, &ex.Lon); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Exchanger{}, err
		}
		return model.Exchanger{}, fmt.Errorf("scan exchanger: %w", err)
	}
	ex.Rates = make(map[model.Currency]model.ExchangerRate)
	return ex, nil
}

func scanSQLiteExchangerRate(row rowScanner) (int64, model.Currency, model.ExchangerRate, error) {
	var (
		id        int64
		currency  string
		buy, sell string
		updated   int64
	)
	if err := row.Scan(&id, &currency, &buy, &sell, &updated); err != nil {
		return 0, "", model.ExchangerRate{}, fmt.Errorf("scan exchanger rate: %w", err)
	}
	rate, err := buildExchangerRate(buy, sell, time.UnixMicro(updated))
	if err != nil {
		return 0, "", model.ExchangerRate{}, err
	}
	return id, model.Currency(currency), rate, nil
}

func buildQuote(currency, source, buy, sell string, observed time.Time) (model.Quote, error) {
	b, err := decimal.NewFromString(buy)
	if err != nil {
		return model.Quote{}, fmt.Errorf("parse buy: %w", err)
	}
	s, err := decimal.NewFromString(sell)
	if err != nil {
		return model.Quote{}, fmt.Errorf("parse sell: %w", err)
	}
	return model.Quote{
		Currency:   model.Currency(currency),
		Source:     model.Source(source),
		Buy:        b,
		Sell:       s,
		ObservedAt: observed.UTC(),
	}, nil
}

func buildExchangerRate(buy, sell string, updated time.Time) (model.ExchangerRate, error) {
	b, err := decimal.NewFromString(buy)
	if err != nil {
		return model.ExchangerRate{}, fmt.Errorf("parse buy: %w", err)
	}
	s, err := decimal.NewFromString(sell)
	if err != nil {
		return model.ExchangerRate{}, fmt.Errorf("parse sell: %w", err)
	}
	return model.ExchangerRate{Buy: b, Sell: s, UpdatedAt: updated.UTC()}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*SQLite)(nil)
