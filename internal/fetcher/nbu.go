package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/model"
)

// DefaultNBUURL is the central bank daily exchange-rate feed.
const DefaultNBUURL = "https://bank.gov.ua/NBUStatService/v1/statdirectory/exchange?json"

// NBU fetches official rates from the National Bank of Ukraine.
type NBU struct {
	src httpSource
}

// NewNBU constructs the central bank fetcher.
func NewNBU(opts Options, logger zerolog.Logger) *NBU {
	return &NBU{src: newHTTPSource(opts, DefaultNBUURL, "nbu_fetcher", logger)}
}

type nbuItem struct {
	Code     int             `json:"r030"`
	Mnemonic string          `json:"cc"`
	Rate     decimal.Decimal `json:"rate"`
}

// Source implements RateSource.
func (n *NBU) Source() model.Source { return model.SourceNBU }

// Fetch returns one single-rate quote per tracked currency.
func (n *NBU) Fetch(ctx context.Context) (map[model.Currency]model.Quote, error) {
	var items []nbuItem
	if err := n.src.getJSON(ctx, &items); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make(map[model.Currency]model.Quote, len(model.Currencies))
	for _, item := range items {
		currency, err := model.ParseCurrency(item.Mnemonic)
		if err != nil {
			continue
		}
		rate, ok := normalize(item.Rate)
		if !ok {
			n.src.logger.Debug().Str("currency", string(currency)).Msg("skip non-positive rate")
			continue
		}
		out[currency] = model.NewSingleRateQuote(currency, model.SourceNBU, rate, now)
	}
	return out, nil
}

var _ RateSource = (*NBU)(nil)
