package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"uah-rates-bot/internal/model"
)

// Aggregator polls every configured source and merges the results.
// A failing source only blanks its own slots.
type Aggregator struct {
	sources  []RateSource
	location *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

// NewAggregator builds an aggregator over the given sources. A nil location means UTC.
func NewAggregator(sources []RateSource, location *time.Location, logger zerolog.Logger) *Aggregator {
	if location == nil {
		location = time.UTC
	}
	return &Aggregator{
		sources:  sources,
		location: location,
		now:      time.Now,
		logger:   logger.With().Str("component", "aggregator").Logger(),
	}
}

// FetchAll queries all sources concurrently. Provider failures are logged and
// surface as absent values; the call itself never fails.
func (a *Aggregator) FetchAll(ctx context.Context) model.AggregateRates {
	results := make([]map[model.Currency]model.Quote, len(a.sources))

	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			quotes, err := src.Fetch(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Str("source", string(src.Source())).Msg("rate source unavailable")
				return nil
			}
			results[i] = quotes
			return nil
		})
	}
	_ = g.Wait()

	agg := model.AggregateRates{Timestamp: a.now().In(a.location)}
	for i, src := range a.sources {
		quotes := results[i]
		if quotes == nil {
			continue
		}
		for _, currency := range model.Currencies {
			q, ok := quotes[currency]
			if !ok {
				continue
			}
			rates := agg.For(currency)
			switch src.Source() {
			case model.SourceNBU:
				rates.NBU = decimal.NewNullDecimal(q.Rate())
			case model.SourceMonobank:
				quote := q
				rates.Monobank = &quote
			case model.SourcePrivatBank:
				quote := q
				rates.PrivatBank = &quote
			}
			agg.Set(currency, rates)
		}
	}
	return agg
}

// NewDefaultSources wires the three production providers with shared options.
func NewDefaultSources(nbu, mono, privat Options, logger zerolog.Logger) []RateSource {
	return []RateSource{
		NewNBU(nbu, logger),
		NewMonobank(mono, logger),
		NewPrivatBank(privat, logger),
	}
}

var _ RatesFetcher = (*Aggregator)(nil)
