package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/model"
)

// DefaultPrivatBankURL is the PrivatBank cash exchange feed.
const DefaultPrivatBankURL = "https://api.privatbank.ua/p24api/pubinfo?exchange&coursid=5"

// PrivatBank fetches buy/sell rates keyed by currency mnemonic.
type PrivatBank struct {
	src httpSource
}

// NewPrivatBank constructs the PrivatBank fetcher.
func NewPrivatBank(opts Options, logger zerolog.Logger) *PrivatBank {
	return &PrivatBank{src: newHTTPSource(opts, DefaultPrivatBankURL, "privatbank_fetcher", logger)}
}

// PrivatBank serialises amounts as quoted strings; decimal.Decimal accepts both forms.
type privatItem struct {
	Currency string          `json:"ccy"`
	Base     string          `json:"base_ccy"`
	Buy      decimal.Decimal `json:"buy"`
	Sale     decimal.Decimal `json:"sale"`
}

// Source implements RateSource.
func (p *PrivatBank) Source() model.Source { return model.SourcePrivatBank }

// Fetch returns quotes for the tracked currencies.
func (p *PrivatBank) Fetch(ctx context.Context) (map[model.Currency]model.Quote, error) {
	var items []privatItem
	if err := p.src.getJSON(ctx, &items); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make(map[model.Currency]model.Quote, len(model.Currencies))
	for _, item := range items {
		currency, err := model.ParseCurrency(item.Currency)
		if err != nil {
			continue
		}
		buy, okBuy := normalize(item.Buy)
		sell, okSell := normalize(item.Sale)
		if !okBuy || !okSell {
			continue
		}
		out[currency] = model.Quote{
			Currency:   currency,
			Source:     model.SourcePrivatBank,
			Buy:        buy,
			Sell:       sell,
			ObservedAt: now,
		}
	}
	return out, nil
}

var _ RateSource = (*PrivatBank)(nil)
