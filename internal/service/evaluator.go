package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/alerting"
	"uah-rates-bot/internal/fetcher"
	"uah-rates-bot/internal/model"
	"uah-rates-bot/internal/scheduler"
	"uah-rates-bot/internal/storage"
)

var hundred = decimal.NewFromInt(100)

type baselineKey struct {
	userID   int64
	currency model.Currency
}

// CycleReport summarises one evaluation pass.
type CycleReport struct {
	Users     int
	Evaluated int
	Fired     int
	Failed    int
}

// Evaluator checks every active alert rule against the current monobank sell
// rate. Baselines live in memory only: after a restart the first cycle has
// nothing to compare against and never fires.
type Evaluator struct {
	scheduler   *scheduler.Scheduler
	rates       fetcher.RatesFetcher
	alerts      storage.AlertStore
	settings    storage.SettingsStore
	notifier    alerting.Notifier
	sendTimeout time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	baseline map[baselineKey]decimal.Decimal
}

// NewEvaluator constructs the alert evaluator.
func NewEvaluator(sched *scheduler.Scheduler, rates fetcher.RatesFetcher, alerts storage.AlertStore, settings storage.SettingsStore, notifier alerting.Notifier, sendTimeout time.Duration, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		scheduler:   sched,
		rates:       rates,
		alerts:      alerts,
		settings:    settings,
		notifier:    notifier,
		sendTimeout: sendTimeout,
		logger:      logger.With().Str("component", "evaluator").Logger(),
		baseline:    make(map[baselineKey]decimal.Decimal),
	}
}

// Run blocks in the evaluation loop until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context) error {
	if e.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return e.scheduler.Run(ctx, e.Cycle)
}

// Cycle fetches current rates and evaluates every rule once.
func (e *Evaluator) Cycle(ctx context.Context, bucket time.Time) error {
	agg := e.rates.FetchAll(ctx)
	report, err := e.Evaluate(ctx, agg)
	if err != nil {
		return err
	}
	e.logger.Info().Time("bucket", bucket).
		Int("users", report.Users).
		Int("evaluated", report.Evaluated).
		Int("fired", report.Fired).
		Int("failed", report.Failed).
		Msg("alert cycle complete")
	return nil
}

// Evaluate runs the rule scan against an already fetched snapshot.
func (e *Evaluator) Evaluate(ctx context.Context, agg model.AggregateRates) (CycleReport, error) {
	all, err := e.alerts.ListAllAlerts(ctx)
	if err != nil {
		return CycleReport{}, fmt.Errorf("list alerts: %w", err)
	}

	users := make([]int64, 0, len(all))
	for userID := range all {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	report := CycleReport{Users: len(users)}
	for _, userID := range users {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		e.evaluateUser(ctx, userID, all[userID], agg, &report)
	}
	return report, nil
}

func (e *Evaluator) evaluateUser(ctx context.Context, userID int64, rules []model.AlertRule, agg model.AggregateRates, report *CycleReport) {
	var lang model.Language
	observed := make(map[model.Currency]decimal.Decimal)

	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		current, ok := agg.MonobankSell(rule.Currency)
		if !ok {
			continue
		}
		observed[rule.Currency] = current
		report.Evaluated++

		prev, ok := e.Baseline(userID, rule.Currency)
		if !ok || !Crossed(rule, prev, current) {
			continue
		}

		if lang == "" {
			lang = e.language(ctx, userID)
		}
		ev := alerting.AlertEvent{
			UserID:    userID,
			RuleID:    rule.ID,
			Currency:  rule.Currency,
			Type:      rule.Type,
			Threshold: rule.Threshold,
			Previous:  prev,
			Current:   current,
			At:        agg.Timestamp,
		}
		if err := e.deliver(ctx, userID, alerting.RenderAlert(lang, ev)); err != nil {
			report.Failed++
			e.logger.Error().Err(err).Int64("user_id", userID).Int64("rule_id", rule.ID).Msg("alert delivery failed")
			continue
		}
		report.Fired++
		e.logger.Info().Int64("user_id", userID).Int64("rule_id", rule.ID).
			Str("currency", string(rule.Currency)).
			Str("previous", prev.String()).
			Str("current", current.String()).
			Msg("alert fired")
	}

	for currency, rate := range observed {
		e.SetBaseline(userID, currency, rate)
	}
}

func (e *Evaluator) deliver(ctx context.Context, userID int64, text string) error {
	if e.notifier == nil {
		return fmt.Errorf("notifier not configured")
	}
	sendCtx := ctx
	if e.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, e.sendTimeout)
		defer cancel()
	}
	return e.notifier.Notify(sendCtx, userID, text)
}

func (e *Evaluator) language(ctx context.Context, userID int64) model.Language {
	if e.settings == nil {
		return model.LangUK
	}
	settings, found, err := e.settings.GetSettings(ctx, userID)
	if err != nil {
		e.logger.Warn().Err(err).Int64("user_id", userID).Msg("language lookup failed, using default")
		return model.LangUK
	}
	if !found {
		return model.LangUK
	}
	return settings.Language
}

// Baseline returns the last observed rate for a (user, currency) pair.
func (e *Evaluator) Baseline(userID int64, currency model.Currency) (decimal.Decimal, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.baseline[baselineKey{userID: userID, currency: currency}]
	return v, ok
}

// SetBaseline overrides the last observed rate, e.g. to replay a scenario.
func (e *Evaluator) SetBaseline(userID int64, currency model.Currency, rate decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseline[baselineKey{userID: userID, currency: currency}] = rate
}

// Crossed reports whether the move from prev to current meets the rule's
// threshold. Percent rules need a non-zero baseline.
func Crossed(rule model.AlertRule, prev, current decimal.Decimal) bool {
	change := current.Sub(prev).Abs()
	switch rule.Type {
	case model.AlertPercent:
		if prev.IsZero() {
			return false
		}
		return change.Div(prev).Mul(hundred).GreaterThanOrEqual(rule.Threshold)
	case model.AlertPrice:
		return change.GreaterThanOrEqual(rule.Threshold)
	}
	return false
}
