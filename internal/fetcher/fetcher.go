package fetcher

import (
	"context"

	"uah-rates-bot/internal/model"
)

// RateSource retrieves the current quotes of one provider.
type RateSource interface {
	Source() model.Source
	Fetch(ctx context.Context) (map[model.Currency]model.Quote, error)
}

// RatesFetcher returns a normalised snapshot of all providers.
type RatesFetcher interface {
	FetchAll(ctx context.Context) model.AggregateRates
}
