package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/model"
)

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Currency model.Currency
	Source   model.Source
	Hours    int
	Limit    int
}

// CurrentRates fetches every provider once and prints the result without recording it.
func (a *App) CurrentRates(ctx context.Context) error {
	agg := a.newAggregator().FetchAll(ctx)

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Fetched at %s\n", agg.Timestamp.Format(time.RFC3339))
	fmt.Fprintln(writer, "Currency\tSource\tBuy\tSell")
	for _, currency := range model.Currencies {
		rates := agg.For(currency)
		nbu := "-"
		if rates.NBU.Valid {
			nbu = formatDecimal(rates.NBU.Decimal, 2)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", currency, model.SourceNBU, nbu, nbu)
		for _, q := range []*model.Quote{rates.Monobank, rates.PrivatBank} {
			if q == nil {
				continue
			}
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", currency, q.Source, formatDecimal(q.Buy, 2), formatDecimal(q.Sell, 2))
		}
	}
	return writer.Flush()
}

// History prints the most recent stored quotes of one key.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	quotes, err := a.newRates(a.newAggregator(), store).GetHistory(ctx, opts.Currency, opts.Source, opts.Hours)
	if err != nil {
		return err
	}
	if len(quotes) == 0 {
		fmt.Fprintln(a.Out, "no history found")
		return nil
	}
	if opts.Limit > 0 && len(quotes) > opts.Limit {
		quotes = quotes[len(quotes)-opts.Limit:]
	}

	loc := a.Config.Location()
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Time (%s)\tCurrency\tSource\tBuy\tSell\n", loc)
	for _, q := range quotes {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			q.ObservedAt.In(loc).Format(time.RFC3339),
			q.Currency,
			q.Source,
			formatDecimal(q.Buy, 2),
			formatDecimal(q.Sell, 2),
		)
	}
	return writer.Flush()
}

func formatDecimal(v decimal.Decimal, places int32) string {
	return v.StringFixed(places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return strings.ReplaceAll(cleaned, "\r", " ")
}
