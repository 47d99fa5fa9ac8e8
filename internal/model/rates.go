// Package model defines the domain types shared by fetchers, storage and services.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownCurrency is returned for currencies outside the tracked pair.
	ErrUnknownCurrency = errors.New("unknown currency")
	// ErrUnknownSource is returned for unsupported rate providers.
	ErrUnknownSource = errors.New("unknown rate source")
	// ErrInvalidRate is returned for non-positive buy or sell values.
	ErrInvalidRate = errors.New("rate must be positive")
)

// Currency is one of the tracked foreign currencies.
type Currency string

// Tracked currencies.
const (
	USD Currency = "USD"
	EUR Currency = "EUR"
)

// ISO 4217 numeric codes used by the monobank feed.
const (
	CodeUSD = 840
	CodeEUR = 978
	CodeUAH = 980
)

// Currencies lists the tracked currencies in display order.
var Currencies = []Currency{USD, EUR}

// ParseCurrency accepts a case-insensitive currency mnemonic.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(s))) {
	case USD:
		return USD, nil
	case EUR:
		return EUR, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, s)
}

// CurrencyByCode maps an ISO numeric code onto a tracked currency.
func CurrencyByCode(code int) (Currency, bool) {
	switch code {
	case CodeUSD:
		return USD, true
	case CodeEUR:
		return EUR, true
	}
	return "", false
}

// Source identifies a rate provider.
type Source string

// Supported providers.
const (
	SourceNBU        Source = "nbu"
	SourceMonobank   Source = "monobank"
	SourcePrivatBank Source = "privatbank"
)

// Sources lists all providers.
var Sources = []Source{SourceNBU, SourceMonobank, SourcePrivatBank}

// ParseSource accepts a case-insensitive provider name.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceNBU:
		return SourceNBU, nil
	case SourceMonobank:
		return SourceMonobank, nil
	case SourcePrivatBank:
		return SourcePrivatBank, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
}

// Quote is a single observation of a currency from one source.
//
// The central bank publishes one official rate; its quotes carry Buy == Sell
// and report IsSingleRate.
type Quote struct {
	Currency   Currency
	Source     Source
	Buy        decimal.Decimal
	Sell       decimal.Decimal
	ObservedAt time.Time
}

// NewSingleRateQuote builds a quote for a provider without a buy/sell split.
func NewSingleRateQuote(c Currency, s Source, rate decimal.Decimal, at time.Time) Quote {
	return Quote{Currency: c, Source: s, Buy: rate, Sell: rate, ObservedAt: at}
}

// IsSingleRate reports whether the quote represents one official rate.
func (q Quote) IsSingleRate() bool {
	return q.Source == SourceNBU
}

// Rate returns the official rate for single-rate quotes and the sell side otherwise.
func (q Quote) Rate() decimal.Decimal {
	if q.IsSingleRate() {
		return q.Buy
	}
	return q.Sell
}

// CurrencyRates holds the latest quote of every provider for one currency.
// Absent providers are left zero/nil.
type CurrencyRates struct {
	NBU        decimal.NullDecimal
	Monobank   *Quote
	PrivatBank *Quote
}

// AggregateRates is the normalised result of one poll across all providers.
type AggregateRates struct {
	Timestamp time.Time
	USD       CurrencyRates
	EUR       CurrencyRates
}

// For returns the rates of the given currency.
func (a AggregateRates) For(c Currency) CurrencyRates {
	switch c {
	case USD:
		return a.USD
	case EUR:
		return a.EUR
	}
	return CurrencyRates{}
}

// Set replaces the rates of the given currency.
func (a *AggregateRates) Set(c Currency, r CurrencyRates) {
	switch c {
	case USD:
		a.USD = r
	case EUR:
		a.EUR = r
	}
}

// MonobankSell returns the monobank sell rate, the figure alerts are evaluated on.
func (a AggregateRates) MonobankSell(c Currency) (decimal.Decimal, bool) {
	q := a.For(c).Monobank
	if q == nil {
		return decimal.Decimal{}, false
	}
	return q.Sell, true
}
