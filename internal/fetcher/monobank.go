package fetcher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/model"
)

// DefaultMonobankURL is the public monobank currency endpoint.
const DefaultMonobankURL = "https://api.monobank.ua/bank/currency"

// Monobank fetches buy/sell rates keyed by ISO numeric currency pairs.
type Monobank struct {
	src httpSource
}

// NewMonobank constructs the monobank fetcher.
func NewMonobank(opts Options, logger zerolog.Logger) *Monobank {
	return &Monobank{src: newHTTPSource(opts, DefaultMonobankURL, "monobank_fetcher", logger)}
}

type monobankItem struct {
	CurrencyCodeA int             `json:"currencyCodeA"`
	CurrencyCodeB int             `json:"currencyCodeB"`
	Date          int64           `json:"date"`
	RateBuy       decimal.Decimal `json:"rateBuy"`
	RateSell      decimal.Decimal `json:"rateSell"`
	RateCross     decimal.Decimal `json:"rateCross"`
}

// Source implements RateSource.
func (m *Monobank) Source() model.Source { return model.SourceMonobank }

// Fetch returns USD/UAH and EUR/UAH quotes. Pairs against other bases are ignored.
func (m *Monobank) Fetch(ctx context.Context) (map[model.Currency]model.Quote, error) {
	var items []monobankItem
	if err := m.src.getJSON(ctx, &items); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	out := make(map[model.Currency]model.Quote, len(model.Currencies))
	for _, item := range items {
		if item.CurrencyCodeB != model.CodeUAH {
			continue
		}
		currency, ok := model.CurrencyByCode(item.CurrencyCodeA)
		if !ok {
			continue
		}
		buy, okBuy := normalize(item.RateBuy)
		sell, okSell := normalize(item.RateSell)
		if !okBuy || !okSell {
			m.src.logger.Debug().Str("currency", string(currency)).Msg("skip pair without buy/sell")
			continue
		}
		out[currency] = model.Quote{
			Currency:   currency,
			Source:     model.SourceMonobank,
			Buy:        buy,
			Sell:       sell,
			ObservedAt: now,
		}
	}
	return out, nil
}

var _ RateSource = (*Monobank)(nil)
