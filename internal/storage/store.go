package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uah-rates-bot/internal/config"
	"uah-rates-bot/internal/model"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: not configured")
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("storage: not found")
)

// DefaultHistoryLimit caps each (currency, source) history key.
const DefaultHistoryLimit = 1000

// HistoryStore persists the per-(currency, source) rate log.
type HistoryStore interface {
	// AppendQuote stamps ObservedAt with the store clock, persists the quote and
	// trims the key to the newest entries in one transaction.
	AppendQuote(ctx context.Context, q model.Quote) (model.Quote, error)
	// QueryHistory returns entries with ObservedAt strictly after now-window in
	// insertion order. A non-positive window is unbounded.
	QueryHistory(ctx context.Context, currency model.Currency, source model.Source, window time.Duration) ([]model.Quote, error)
}

// AlertStore is the per-user alert rule registry.
type AlertStore interface {
	CreateAlert(ctx context.Context, rule model.AlertRule) (model.AlertRule, error)
	ListAlerts(ctx context.Context, userID int64) ([]model.AlertRule, error)
	ListAllAlerts(ctx context.Context) (map[int64][]model.AlertRule, error)
	// DeleteAlert is a no-op when the rule does not exist.
	DeleteAlert(ctx context.Context, userID, id int64) error
}

// SettingsStore keeps user preferences.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID int64) (model.UserSettings, bool, error)
	SetLanguage(ctx context.Context, userID int64, lang model.Language) error
	ListUsers(ctx context.Context) ([]int64, error)
}

// ExchangerStore is the exchange-office directory.
type ExchangerStore interface {
	ListExchangers(ctx context.Context) ([]model.Exchanger, error)
	GetExchanger(ctx context.Context, id int64) (model.Exchanger, error)
	AddExchanger(ctx context.Context, ex model.Exchanger) (model.Exchanger, error)
	UpdateExchangerRate(ctx context.Context, id int64, currency model.Currency, rate model.ExchangerRate) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates every persisted table behind one handle.
type Store interface {
	HistoryStore
	AlertStore
	SettingsStore
	ExchangerStore
	AdvisoryLocker
	Ping(ctx context.Context) error
	Close() error
}

// Option customises a store.
type Option func(*options)

type options struct {
	now          func() time.Time
	historyLimit int
}

func defaultOptions() options {
	return options{now: time.Now, historyLimit: DefaultHistoryLimit}
}

// WithClock replaces the wall clock used for timestamps and windows.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHistoryLimit overrides the per-key history cap.
func WithHistoryLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

func (o options) timestamp() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}

// Open connects to the configured backend and applies pending migrations.
func Open(ctx context.Context, cfg config.StorageConfig, opts ...Option) (Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, opts...)
	case config.DriverPostgres:
		pool, err := NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgres(ctx, pool, opts...)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
}
