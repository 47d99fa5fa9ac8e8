package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/fetcher"
	"uah-rates-bot/internal/model"
	"uah-rates-bot/internal/service"
)

// SimulateOptions describe a synthetic rate move.
type SimulateOptions struct {
	Currency model.Currency
	Previous decimal.Decimal
	Current  decimal.Decimal
}

// SimulateAlert seeds every user's baseline with Previous and runs one
// evaluation against a monobank sell of Current through the configured notifier.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}
	if !opts.Previous.IsPositive() || !opts.Current.IsPositive() {
		return fmt.Errorf("%w: previous %s current %s", model.ErrInvalidRate, opts.Previous, opts.Current)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	all, err := store.ListAllAlerts(ctx)
	if err != nil {
		return err
	}

	static := &staticRates{agg: simulatedRates(opts.Currency, opts.Current)}
	evaluator := service.NewEvaluator(nil, static, store, store, a.newNotifier(nil), a.Config.Alerting.SendTimeout, a.Logger)
	for userID, rules := range all {
		for _, r := range rules {
			if r.Active && r.Currency == opts.Currency {
				evaluator.SetBaseline(userID, opts.Currency, opts.Previous)
				break
			}
		}
	}

	report, err := evaluator.Evaluate(ctx, static.FetchAll(ctx))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "users: %d, rules evaluated: %d, fired: %d, delivery failures: %d\n",
		report.Users, report.Evaluated, report.Fired, report.Failed)
	return nil
}

func simulatedRates(currency model.Currency, sell decimal.Decimal) model.AggregateRates {
	agg := model.AggregateRates{Timestamp: time.Now().UTC()}
	q := model.Quote{Currency: currency, Source: model.SourceMonobank, Buy: sell, Sell: sell, ObservedAt: agg.Timestamp}
	rates := agg.For(currency)
	rates.Monobank = &q
	agg.Set(currency, rates)
	return agg
}

type staticRates struct {
	agg model.AggregateRates
}

func (s *staticRates) FetchAll(context.Context) model.AggregateRates {
	return s.agg
}

var _ fetcher.RatesFetcher = (*staticRates)(nil)
