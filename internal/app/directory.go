package app

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/model"
	"uah-rates-bot/internal/service"
	"uah-rates-bot/internal/storage"
)

// withRates opens the store for the duration of fn.
func (a *App) withRates(ctx context.Context, fn func(*service.Rates) error) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(a.newRates(a.newAggregator(), store))
}

// ListAlerts prints the rules of one user, or of everyone when userID is zero.
func (a *App) ListAlerts(ctx context.Context, userID int64) error {
	return a.withRates(ctx, func(rates *service.Rates) error {
		all := map[int64][]model.AlertRule{}
		if userID != 0 {
			rules, err := rates.ListAlerts(ctx, userID)
			if err != nil {
				return err
			}
			all[userID] = rules
		} else {
			var err error
			if all, err = rates.ListAllAlerts(ctx); err != nil {
				return err
			}
		}

		users := make([]int64, 0, len(all))
		for id, rules := range all {
			if len(rules) > 0 {
				users = append(users, id)
			}
		}
		if len(users) == 0 {
			fmt.Fprintln(a.Out, "no alerts found")
			return nil
		}
		sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "User\tID\tCurrency\tType\tThreshold\tActive\tCreated")
		for _, id := range users {
			for _, r := range all[id] {
				fmt.Fprintf(writer, "%d\t%d\t%s\t%s\t%s\t%t\t%s\n",
					r.UserID, r.ID, r.Currency, r.Type, r.Threshold, r.Active,
					r.CreatedAt.In(a.Config.Location()).Format(time.RFC3339))
			}
		}
		return writer.Flush()
	})
}

// AddAlert registers a rule on behalf of a user.
func (a *App) AddAlert(ctx context.Context, userID int64, currency model.Currency, kind model.AlertType, threshold decimal.Decimal) error {
	return a.withRates(ctx, func(rates *service.Rates) error {
		rule, err := rates.CreateAlert(ctx, userID, currency, kind, threshold)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "created alert #%d for user %d\n", rule.ID, userID)
		return nil
	})
}

// DeleteAlert removes a user's rule.
func (a *App) DeleteAlert(ctx context.Context, userID, id int64) error {
	return a.withRates(ctx, func(rates *service.Rates) error {
		if err := rates.DeleteAlert(ctx, userID, id); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "deleted alert #%d for user %d\n", id, userID)
		return nil
	})
}

// ListExchangers prints the exchange-office directory.
func (a *App) ListExchangers(ctx context.Context) error {
	return a.withRates(ctx, func(rates *service.Rates) error {
		list, err := rates.ListExchangers(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(a.Out, "no exchangers found")
			return nil
		}

		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "ID\tName\tAddress\tDistrict\tUSD\tEUR")
		for _, ex := range list {
			fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\n",
				ex.ID, sanitizeInline(ex.Name), sanitizeInline(ex.Address), sanitizeInline(ex.District),
				formatExchangerRate(ex, model.USD), formatExchangerRate(ex, model.EUR))
		}
		return writer.Flush()
	})
}

func formatExchangerRate(ex model.Exchanger, currency model.Currency) string {
	rate, ok := ex.Rates[currency]
	if !ok {
		return "-"
	}
	return formatDecimal(rate.Buy, 2) + "/" + formatDecimal(rate.Sell, 2)
}

// AddExchanger registers an office.
func (a *App) AddExchanger(ctx context.Context, ex model.Exchanger) error {
	return a.withRates(ctx, func(rates *service.Rates) error {
		added, err := rates.AddExchanger(ctx, ex)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "added exchanger #%d %s\n", added.ID, added.Name)
		return nil
	})
}

// SetExchangerRate records an office rate.
func (a *App) SetExchangerRate(ctx context.Context, id int64, currency model.Currency, buy, sell decimal.Decimal) error {
	return a.withRates(ctx, func(rates *service.Rates) error {
		if err := rates.SetExchangerRate(ctx, id, currency, buy, sell); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "exchanger #%d %s rate set to %s/%s\n", id, currency, formatDecimal(buy, 2), formatDecimal(sell, 2))
		return nil
	})
}

// Migrate runs a schema migration command.
func (a *App) Migrate(ctx context.Context, cmd string) error {
	a.Logger.Info().Str("driver", a.Config.Storage.Driver).Str("command", cmd).Msg("running migration")
	version, err := storage.Migrate(ctx, a.Config.Storage, cmd, a.Logger)
	if err != nil {
		return err
	}
	a.Logger.Info().Int64("schema_version", version).Msg("migration finished")
	return nil
}
