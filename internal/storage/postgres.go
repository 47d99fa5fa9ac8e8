package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/config"
	"uah-rates-bot/internal/model"
	"uah-rates-bot/migrations"
)

const (
	pgInsertQuoteSQL = `INSERT INTO rate_history (currency, source, buy, sell, observed_at)
    VALUES ($1, $2, $3, $4, $5);`

	pgTrimHistorySQL = `DELETE FROM rate_history
    WHERE currency = $1 AND source = $2
      AND id <= (
        SELECT id FROM rate_history
        WHERE currency = $1 AND source = $2
        ORDER BY id DESC
        LIMIT 1 OFFSET $3
      );`

	pgHistorySinceSQL = `SELECT currency, source, buy::text, sell::text, observed_at
    FROM rate_history
    WHERE currency = $1 AND source = $2 AND observed_at > $3
    ORDER BY id;`

	pgHistoryAllSQL = `SELECT currency, source, buy::text, sell::text, observed_at
    FROM rate_history
    WHERE currency = $1 AND source = $2
    ORDER BY id;`

	pgNextAlertIDSQL = `INSERT INTO user_alert_counters (user_id, last_id) VALUES ($1, 1)
    ON CONFLICT (user_id) DO UPDATE SET last_id = user_alert_counters.last_id + 1
    RETURNING last_id;`

	pgInsertAlertSQL = `INSERT INTO user_alerts (user_id, id, currency, alert_type, threshold, active, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7);`

	pgListAlertsSQL = `SELECT user_id, id, currency, alert_type, threshold::text, active, created_at
    FROM user_alerts WHERE user_id = $1 ORDER BY id;`

	pgListAllAlertsSQL = `SELECT user_id, id, currency, alert_type, threshold::text, active, created_at
    FROM user_alerts ORDER BY user_id, id;`

	pgDeleteAlertSQL = `DELETE FROM user_alerts WHERE user_id = $1 AND id = $2;`

	pgGetSettingsSQL = `SELECT user_id, language, updated_at FROM user_settings WHERE user_id = $1;`

	pgUpsertLanguageSQL = `INSERT INTO user_settings (user_id, language, updated_at) VALUES ($1, $2, $3)
    ON CONFLICT (user_id) DO UPDATE SET language = EXCLUDED.language, updated_at = EXCLUDED.updated_at;`

	pgListUsersSQL = `SELECT user_id FROM user_settings
    UNION
    SELECT user_id FROM user_alerts
    ORDER BY 1;`

	pgInsertExchangerSQL = `INSERT INTO exchangers (name, address, district, phone, lat, lon, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    RETURNING id;`

	pgListExchangersSQL = `SELECT id, name, address, district, phone, lat, lon FROM exchangers ORDER BY id;`

	pgGetExchangerSQL = `SELECT id, name, address, district, phone, lat, lon FROM exchangers WHERE id = $1;`

	pgListExchangerRatesSQL = `SELECT exchanger_id, currency, buy::text, sell::text, updated_at FROM exchanger_rates;`

	pgExchangerRatesSQL = `SELECT exchanger_id, currency, buy::text, sell::text, updated_at
    FROM exchanger_rates WHERE exchanger_id = $1;`

	pgExchangerExistsSQL = `SELECT EXISTS (SELECT 1 FROM exchangers WHERE id = $1);`

	pgUpsertExchangerRateSQL = `INSERT INTO exchanger_rates (exchanger_id, currency, buy, sell, updated_at)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (exchanger_id, currency) DO UPDATE
    SET buy = EXCLUDED.buy, sell = EXCLUDED.sell, updated_at = EXCLUDED.updated_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.StorageConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Postgres is the shared-database backend used when several bot replicas run.
type Postgres struct {
	pool *pgxpool.Pool
	opts options
}

// NewPostgres migrates the schema and wraps the pool.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, opts ...Option) (*Postgres, error) {
	if pool == nil {
		return nil, ErrNotConfigured
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()
	if err := migrations.Run(db, migrations.DialectPostgres); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Postgres{pool: pool, opts: o}, nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Ping checks the pool can reach the server.
func (s *Postgres) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

func (s *Postgres) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Postgres) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// A failed unlock is released with the session when the connection dies.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// AppendQuote persists a quote and trims its key to the history limit.
func (s *Postgres) AppendQuote(ctx context.Context, q model.Quote) (model.Quote, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.Quote{}, err
	}

	q.ObservedAt = s.opts.timestamp()
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, pgInsertQuoteSQL,
			string(q.Currency), string(q.Source), q.Buy.String(), q.Sell.String(), q.ObservedAt,
		); err != nil {
			return fmt.Errorf("insert quote: %w", err)
		}
		if _, err := tx.Exec(ctx, pgTrimHistorySQL, string(q.Currency), string(q.Source), s.opts.historyLimit); err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Quote{}, err
	}
	return q, nil
}

// QueryHistory lists quotes of one key observed strictly after now-window.
func (s *Postgres) QueryHistory(ctx context.Context, currency model.Currency, source model.Source, window time.Duration) ([]model.Quote, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var rows pgx.Rows
	if window > 0 {
		rows, err = pool.Query(ctx, pgHistorySinceSQL, string(currency), string(source), s.opts.timestamp().Add(-window))
	} else {
		rows, err = pool.Query(ctx, pgHistoryAllSQL, string(currency), string(source))
	}
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	quotes := make([]model.Quote, 0)
	for rows.Next() {
		var (
			cur, src, buy, sell string
			observed            time.Time
		)
		if err := rows.Scan(&cur, &src, &buy, &sell, &observed); err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		q, err := buildQuote(cur, src, buy, sell, observed)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return quotes, nil
}

// CreateAlert assigns the next per-user id and stores the rule as active.
func (s *Postgres) CreateAlert(ctx context.Context, rule model.AlertRule) (model.AlertRule, error) {
	if err := rule.Validate(); err != nil {
		return model.AlertRule{}, err
	}
	pool, err := s.getPool()
	if err != nil {
		return model.AlertRule{}, err
	}

	rule.Active = true
	rule.CreatedAt = s.opts.timestamp()
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, pgNextAlertIDSQL, rule.UserID).Scan(&rule.ID); err != nil {
			return fmt.Errorf("next alert id: %w", err)
		}
		if _, err := tx.Exec(ctx, pgInsertAlertSQL,
			rule.UserID, rule.ID, string(rule.Currency), string(rule.Type), rule.Threshold.String(), rule.Active, rule.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.AlertRule{}, err
	}
	return rule, nil
}

// ListAlerts returns every rule of one user ordered by id.
func (s *Postgres) ListAlerts(ctx context.Context, userID int64) ([]model.AlertRule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, pgListAlertsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	rules := make([]model.AlertRule, 0)
	for rows.Next() {
		rule, err := scanPgAlert(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ListAllAlerts groups every stored rule by user.
func (s *Postgres) ListAllAlerts(ctx context.Context) (map[int64][]model.AlertRule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, pgListAllAlertsSQL)
	if err != nil {
		return nil, fmt.Errorf("list all alerts: %w", err)
	}
	defer rows.Close()

	byUser := make(map[int64][]model.AlertRule)
	for rows.Next() {
		rule, err := scanPgAlert(rows)
		if err != nil {
			return nil, err
		}
		byUser[rule.UserID] = append(byUser[rule.UserID], rule)
	}
	return byUser, rows.Err()
}

// DeleteAlert removes one rule; missing rules are ignored.
func (s *Postgres) DeleteAlert(ctx context.Context, userID, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgDeleteAlertSQL, userID, id); err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	return nil
}

// GetSettings loads a user's settings; found is false for unknown users.
func (s *Postgres) GetSettings(ctx context.Context, userID int64) (model.UserSettings, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.UserSettings{}, false, err
	}

	var (
		settings model.UserSettings
		lang     string
	)
	err = pool.QueryRow(ctx, pgGetSettingsSQL, userID).Scan(&settings.UserID, &lang, &settings.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.UserSettings{}, false, nil
	}
	if err != nil {
		return model.UserSettings{}, false, fmt.Errorf("get settings: %w", err)
	}
	settings.Language = model.Language(lang)
	settings.UpdatedAt = settings.UpdatedAt.UTC()
	return settings, true, nil
}

// SetLanguage upserts the user's interface language.
func (s *Postgres) SetLanguage(ctx context.Context, userID int64, lang model.Language) error {
	if _, err := model.ParseLanguage(string(lang)); err != nil {
		return err
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgUpsertLanguageSQL, userID, string(lang), s.opts.timestamp()); err != nil {
		return fmt.Errorf("set language: %w", err)
	}
	return nil
}

// ListUsers returns every user with settings or alert rules.
func (s *Postgres) ListUsers(ctx context.Context) ([]int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, pgListUsersSQL)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("collect users: %w", err)
	}
	return users, nil
}

// AddExchanger inserts an exchange office together with any initial rates.
func (s *Postgres) AddExchanger(ctx context.Context, ex model.Exchanger) (model.Exchanger, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.Exchanger{}, err
	}

	if ex.Rates == nil {
		ex.Rates = make(map[model.Currency]model.ExchangerRate)
	}
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, pgInsertExchangerSQL,
			ex.Name, ex.Address, ex.District, ex.Phone, ex.Lat, ex.Lon, s.opts.timestamp(),
		).Scan(&ex.ID); err != nil {
			return fmt.Errorf("insert exchanger: %w", err)
		}
		for currency, rate := range ex.Rates {
			if rate.UpdatedAt.IsZero() {
				rate.UpdatedAt = s.opts.timestamp()
				ex.Rates[currency] = rate
			}
			if _, err := tx.Exec(ctx, pgUpsertExchangerRateSQL,
				ex.ID, string(currency), rate.Buy.String(), rate.Sell.String(), rate.UpdatedAt,
			); err != nil {
				return fmt.Errorf("insert exchanger rate: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return model.Exchanger{}, err
	}
	return ex, nil
}

// ListExchangers returns all offices with their rates, ordered by id.
func (s *Postgres) ListExchangers(ctx context.Context) ([]model.Exchanger, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, pgListExchangersSQL)
	if err != nil {
		return nil, fmt.Errorf("list exchangers: %w", err)
	}
	exchangers := make([]model.Exchanger, 0)
	index := make(map[int64]int)
	for rows.Next() {
		ex, err := scanExchanger(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		index[ex.ID] = len(exchangers)
		exchangers = append(exchangers, ex)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	rateRows, err := pool.Query(ctx, pgListExchangerRatesSQL)
	if err != nil {
		return nil, fmt.Errorf("list exchanger rates: %w", err)
	}
	defer rateRows.Close()
	for rateRows.Next() {
		id, currency, rate, err := scanPgExchangerRate(rateRows)
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
func (s *Postgres) GetExchanger(ctx context.Context, id int64) (model.Exchanger, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.Exchanger{}, err
	}

	ex, err := scanExchanger(pool.QueryRow(ctx, pgGetExchangerSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Exchanger{}, ErrNotFound
	}
	if err != nil {
		return model.Exchanger{}, err
	}

	rows, err := pool.Query(ctx, pgExchangerRatesSQL, id)
	if err != nil {
		return model.Exchanger{}, fmt.Errorf("exchanger rates: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		_, currency, rate, err := scanPgExchangerRate(rows)
		if err != nil {
			return model.Exchanger{}, err
		}
		ex.Rates[currency] = rate
	}
	return ex, rows.Err()
}

// UpdateExchangerRate sets an office's rate for one currency.
func (s *Postgres) UpdateExchangerRate(ctx context.Context, id int64, currency model.Currency, rate model.ExchangerRate) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var exists bool
	if err := pool.QueryRow(ctx, pgExchangerExistsSQL, id).Scan(&exists); err != nil {
		return fmt.Errorf("lookup exchanger: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	if rate.UpdatedAt.IsZero() {
		rate.UpdatedAt = s.opts.timestamp()
	}
	if _, err := pool.Exec(ctx, pgUpsertExchangerRateSQL,
		id, string(currency), rate.Buy.String(), rate.Sell.String(), rate.UpdatedAt,
	); err != nil {
		return fmt.Errorf("update exchanger rate: %w", err)
	}
	return nil
}

func scanPgAlert(row rowScanner) (model.AlertRule, error) {
	var (
		rule      model.AlertRule
		currency  string
		kind      string
		threshold string
	)
	if err := row.Scan(&rule.UserID, &rule.ID, &currency, &kind, &threshold, &rule.Active, &rule.CreatedAt); err != nil {
		return model.AlertRule{}, fmt.Errorf("scan alert: %w", err)
	}
	value, err := decimal.NewFromString(threshold)
	if err != nil {
		return model.AlertRule{}, fmt.Errorf("parse threshold: %w", err)
	}
	rule.Currency = model.Currency(currency)
	rule.Type = model.AlertType(kind)
	rule.Threshold = value
	rule.CreatedAt = rule.CreatedAt.UTC()
	return rule, nil
}

func scanPgExchangerRate(row rowScanner) (int64, model.Currency, model.ExchangerRate, error) {
	var (
		id        int64
		currency  string
		buy, sell string
		updated   time.Time
	)
	if err := row.Scan(&id, &currency, &buy, &sell, &updated); err != nil {
		return 0, "", model.ExchangerRate{}, fmt.Errorf("scan exchanger rate: %w", err)
	}
	rate, err := buildExchangerRate(buy, sell, updated)
	if err != nil {
		return 0, "", model.ExchangerRate{}, err
	}
	return id, model.Currency(currency), rate, nil
}

var _ Store = (*Postgres)(nil)
