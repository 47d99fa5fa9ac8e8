package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/fetcher"
	"uah-rates-bot/internal/model"
	"uah-rates-bot/internal/storage"
)

// ErrInsufficientHistory is returned when a chart window holds fewer than two points.
var ErrInsufficientHistory = errors.New("not enough history")

// DefaultChangeWindow is the look-back for the change shown next to current rates.
const DefaultChangeWindow = 2 * time.Hour

// RatesStore is the persistence surface the interactive facade needs.
type RatesStore interface {
	storage.HistoryStore
	storage.AlertStore
	storage.SettingsStore
	storage.ExchangerStore
}

// Trend classifies a rate change.
type Trend int

// Trend values.
const (
	TrendFlat Trend = iota
	TrendUp
	TrendDown
)

// Emoji returns the marker shown next to a change.
func (t Trend) Emoji() string {
	switch t {
	case TrendUp:
		return "📈"
	case TrendDown:
		return "📉"
	}
	return "➡️"
}

// Change is the movement of the monobank sell rate over the change window.
type Change struct {
	Amount decimal.Decimal
	Trend  Trend
	Known  bool
}

// Snapshot is the "current rates" screen: fresh rates plus recent change.
type Snapshot struct {
	Rates   model.AggregateRates
	Changes map[model.Currency]Change
}

// Rates is the facade the bot, HTTP API and CLI call into.
type Rates struct {
	fetcher      fetcher.RatesFetcher
	store        RatesStore
	changeWindow time.Duration
	logger       zerolog.Logger
}

// NewRates constructs the facade.
func NewRates(f fetcher.RatesFetcher, store RatesStore, changeWindow time.Duration, logger zerolog.Logger) *Rates {
	if changeWindow <= 0 {
		changeWindow = DefaultChangeWindow
	}
	return &Rates{
		fetcher:      f,
		store:        store,
		changeWindow: changeWindow,
		logger:       logger.With().Str("component", "rates").Logger(),
	}
}

// FetchAllRates queries every provider once.
func (r *Rates) FetchAllRates(ctx context.Context) model.AggregateRates {
	return r.fetcher.FetchAll(ctx)
}

// RecordRate appends one quote to the history log.
func (r *Rates) RecordRate(ctx context.Context, source model.Source, currency model.Currency, buy, sell decimal.Decimal) (model.Quote, error) {
	if _, err := model.ParseSource(string(source)); err != nil {
		return model.Quote{}, err
	}
	if _, err := model.ParseCurrency(string(currency)); err != nil {
		return model.Quote{}, err
	}
	return r.store.AppendQuote(ctx, model.Quote{Currency: currency, Source: source, Buy: buy, Sell: sell})
}

// GetHistory returns quotes from the last hours; hours <= 0 returns everything kept.
func (r *Rates) GetHistory(ctx context.Context, currency model.Currency, source model.Source, hours int) ([]model.Quote, error) {
	return r.store.QueryHistory(ctx, currency, source, time.Duration(hours)*time.Hour)
}

// ChartHistory returns the monobank series for a chart, or ErrInsufficientHistory.
func (r *Rates) ChartHistory(ctx context.Context, currency model.Currency, hours int) ([]model.Quote, error) {
	quotes, err := r.GetHistory(ctx, currency, model.SourceMonobank, hours)
	if err != nil {
		return nil, err
	}
	if len(quotes) < 2 {
		return nil, ErrInsufficientHistory
	}
	return quotes, nil
}

// Snapshot fetches current rates, computes the change over the change window
// and records the shown monobank quotes.
func (r *Rates) Snapshot(ctx context.Context) (Snapshot, error) {
	agg := r.fetcher.FetchAll(ctx)
	snap := Snapshot{Rates: agg, Changes: make(map[model.Currency]Change, len(model.Currencies))}

	for _, currency := range model.Currencies {
		current, ok := agg.MonobankSell(currency)
		if !ok {
			continue
		}
		history, err := r.store.QueryHistory(ctx, currency, model.SourceMonobank, r.changeWindow)
		if err != nil {
			return Snapshot{}, fmt.Errorf("change history %s: %w", currency, err)
		}
		if len(history) > 1 {
			snap.Changes[currency] = changeBetween(history[0].Sell, current)
		}
	}

	for _, currency := range model.Currencies {
		q := agg.For(currency).Monobank
		if q == nil {
			continue
		}
		if _, err := r.store.AppendQuote(ctx, *q); err != nil {
			r.logger.Error().Err(err).Str("currency", string(currency)).Msg("record shown rate")
		}
	}
	return snap, nil
}

func changeBetween(old, current decimal.Decimal) Change {
	amount := current.Sub(old).Round(2)
	c := Change{Amount: amount, Known: true, Trend: TrendFlat}
	switch amount.Sign() {
	case 1:
		c.Trend = TrendUp
	case -1:
		c.Trend = TrendDown
	}
	return c
}

// CreateAlert registers a new active rule for the user.
func (r *Rates) CreateAlert(ctx context.Context, userID int64, currency model.Currency, kind model.AlertType, threshold decimal.Decimal) (model.AlertRule, error) {
	return r.store.CreateAlert(ctx, model.AlertRule{
		UserID:    userID,
		Currency:  currency,
		Type:      kind,
		Threshold: threshold,
	})
}

// ListAlerts returns the user's active rules.
func (r *Rates) ListAlerts(ctx context.Context, userID int64) ([]model.AlertRule, error) {
	rules, err := r.store.ListAlerts(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := rules[:0]
	for _, rule := range rules {
		if rule.Active {
			active = append(active, rule)
		}
	}
	return active, nil
}

// ListAllAlerts returns every rule keyed by user.
func (r *Rates) ListAllAlerts(ctx context.Context) (map[int64][]model.AlertRule, error) {
	return r.store.ListAllAlerts(ctx)
}

// DeleteAlert removes a rule; unknown ids are ignored.
func (r *Rates) DeleteAlert(ctx context.Context, userID, id int64) error {
	return r.store.DeleteAlert(ctx, userID, id)
}

// GetUserLanguage returns the stored language, falling back to uk on any miss.
func (r *Rates) GetUserLanguage(ctx context.Context, userID int64) model.Language {
	settings, found, err := r.store.GetSettings(ctx, userID)
	if err != nil {
		r.logger.Warn().Err(err).Int64("user_id", userID).Msg("language lookup failed, using default")
		return model.LangUK
	}
	if !found {
		return model.LangUK
	}
	return settings.Language
}

// IsKnownUser reports whether the user ever chose a language.
func (r *Rates) IsKnownUser(ctx context.Context, userID int64) (bool, error) {
	_, found, err := r.store.GetSettings(ctx, userID)
	return found, err
}

// SetUserLanguage stores the user's language choice.
func (r *Rates) SetUserLanguage(ctx context.Context, userID int64, lang model.Language) error {
	return r.store.SetLanguage(ctx, userID, lang)
}

// ListUsers returns every user known to the bot.
func (r *Rates) ListUsers(ctx context.Context) ([]int64, error) {
	return r.store.ListUsers(ctx)
}

// ListExchangers returns the exchange-office directory.
func (r *Rates) ListExchangers(ctx context.Context) ([]model.Exchanger, error) {
	return r.store.ListExchangers(ctx)
}

// GetExchanger returns one office or storage.ErrNotFound.
func (r *Rates) GetExchanger(ctx context.Context, id int64) (model.Exchanger, error) {
	return r.store.GetExchanger(ctx, id)
}

// AddExchanger registers a new office.
func (r *Rates) AddExchanger(ctx context.Context, ex model.Exchanger) (model.Exchanger, error) {
	if ex.Name == "" {
		return model.Exchanger{}, fmt.Errorf("exchanger name is required")
	}
	return r.store.AddExchanger(ctx, ex)
}

// SetExchangerRate records an admin-entered rate for an office.
func (r *Rates) SetExchangerRate(ctx context.Context, id int64, currency model.Currency, buy, sell decimal.Decimal) error {
	if _, err := model.ParseCurrency(string(currency)); err != nil {
		return err
	}
	if !buy.IsPositive() || !sell.IsPositive() {
		return fmt.Errorf("%w: buy %s sell %s", model.ErrInvalidRate, buy, sell)
	}
	return r.store.UpdateExchangerRate(ctx, id, currency, model.ExchangerRate{Buy: buy, Sell: sell})
}
