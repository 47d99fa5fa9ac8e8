package fetcher

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/model"
)

type stubSource struct {
	source model.Source
	quotes map[model.Currency]model.Quote
	err    error
}

func (s stubSource) Source() model.Source { return s.source }

func (s stubSource) Fetch(context.Context) (map[model.Currency]model.Quote, error) {
	return s.quotes, s.err
}

func TestAggregatorToleratesFailingSource(t *testing.T) {
	mono := model.Quote{Currency: model.USD, Source: model.SourceMonobank, Buy: dec("41.10"), Sell: dec("41.60")}
	agg := NewAggregator([]RateSource{
		stubSource{source: model.SourceNBU, err: errors.New("connection refused")},
		stubSource{source: model.SourceMonobank, quotes: map[model.Currency]model.Quote{model.USD: mono}},
		stubSource{source: model.SourcePrivatBank, err: errors.New("timeout")},
	}, nil, noopLogger())

	got := agg.FetchAll(context.Background())

	if got.USD.NBU.Valid {
		t.Fatal("failed NBU fetch must leave the slot absent")
	}
	if got.USD.PrivatBank != nil {
		t.Fatal("failed PrivatBank fetch must leave the slot absent")
	}
	if got.USD.Monobank == nil || !got.USD.Monobank.Sell.Equal(dec("41.60")) {
		t.Fatalf("monobank quote lost: %+v", got.USD.Monobank)
	}
	if got.EUR.Monobank != nil {
		t.Fatal("EUR was not quoted and must stay absent")
	}
	if got.Timestamp.IsZero() {
		t.Fatal("timestamp must be set")
	}
}

func TestAggregatorEndToEndIsIdempotent(t *testing.T) {
	nbuSrv := serveJSON(t, http.StatusOK, nbuFixture)
	monoSrv := serveJSON(t, http.StatusOK, monobankFixture)
	privatSrv := serveJSON(t, http.StatusOK, privatFixture)

	kyiv, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		kyiv = time.UTC
	}

	sources := NewDefaultSources(
		Options{BaseURL: nbuSrv.URL, Timeout: time.Second},
		Options{BaseURL: monoSrv.URL, Timeout: time.Second},
		Options{BaseURL: privatSrv.URL, Timeout: time.Second},
		noopLogger(),
	)
	agg := NewAggregator(sources, kyiv, noopLogger())

	first := agg.FetchAll(context.Background())
	second := agg.FetchAll(context.Background())

	if !first.USD.NBU.Valid || !first.USD.NBU.Decimal.Equal(dec("41.25")) {
		t.Fatalf("unexpected NBU USD %+v", first.USD.NBU)
	}
	if first.EUR.PrivatBank == nil || !first.EUR.PrivatBank.Sell.Equal(dec("48.60")) {
		t.Fatalf("unexpected PrivatBank EUR %+v", first.EUR.PrivatBank)
	}
	if first.Timestamp.Location() != kyiv {
		t.Fatalf("timestamp should be in the configured zone, got %s", first.Timestamp.Location())
	}

	opts := cmp.Options{
		cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) }),
		cmpopts.IgnoreFields(model.AggregateRates{}, "Timestamp"),
		cmpopts.IgnoreFields(model.Quote{}, "ObservedAt"),
	}
	if diff := cmp.Diff(first, second, opts); diff != "" {
		t.Errorf("repeated fetch differs (-first +second):\n%s", diff)
	}
}
