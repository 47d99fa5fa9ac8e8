package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/model"
	"uah-rates-bot/internal/service"
	"uah-rates-bot/internal/storage"
)

type staticRates struct{ agg model.AggregateRates }

func (s staticRates) FetchAll(context.Context) model.AggregateRates { return s.agg }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestServer(t *testing.T, health Pinger) (*Server, *service.Rates) {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	agg := model.AggregateRates{Timestamp: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
	agg.USD = model.CurrencyRates{
		NBU:      decimal.NewNullDecimal(dec("41.2")),
		Monobank: &model.Quote{Currency: model.USD, Source: model.SourceMonobank, Buy: dec("41"), Sell: dec("41.5")},
	}
	rates := service.NewRates(staticRates{agg: agg}, store, time.Hour, zerolog.Nop())
	if health == nil {
		health = store
	}
	return New(rates, health, zerolog.Nop()), rates
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	ok := get(t, srv, "/healthz")
	if ok.Code != http.StatusOK {
		t.Fatalf("status = %d", ok.Code)
	}
	var status map[string]string
	decode(t, ok, &status)
	if status["status"] != "ok" || status["version"] == "" {
		t.Errorf("unexpected health body %v", status)
	}

	down, _ := newTestServer(t, pinger{err: errors.New("db gone")})
	rec := get(t, down, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body map[string]string
	decode(t, rec, &body)
	if body["code"] != "UNAVAILABLE" || body["id"] == "" {
		t.Errorf("unexpected error body %v", body)
	}
}

func TestRates(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := get(t, srv, "/api/rates")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Rates map[string]struct {
			NBU      *string            `json:"nbu"`
			Monobank *map[string]string `json:"monobank"`
		} `json:"rates"`
	}
	decode(t, rec, &body)

	usd := body.Rates["USD"]
	if usd.NBU == nil || *usd.NBU != "41.2" {
		t.Errorf("nbu = %v", usd.NBU)
	}
	if usd.Monobank == nil || (*usd.Monobank)["sell"] != "41.5" {
		t.Errorf("monobank = %v", usd.Monobank)
	}
	if eur := body.Rates["EUR"]; eur.NBU != nil || eur.Monobank != nil {
		t.Errorf("absent EUR quotes must be null, got %+v", eur)
	}
}

func TestHistory(t *testing.T) {
	srv, rates := newTestServer(t, nil)
	ctx := context.Background()
	for _, sell := range []string{"41.5", "41.6"} {
		if _, err := rates.RecordRate(ctx, model.SourceMonobank, model.USD, dec("41"), dec(sell)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	rec := get(t, srv, "/api/history/usd?hours=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Currency string `json:"currency"`
		Source   string `json:"source"`
		Points   []struct {
			Sell string `json:"sell"`
		} `json:"points"`
	}
	decode(t, rec, &body)

	var sells []string
	for _, p := range body.Points {
		sells = append(sells, p.Sell)
	}
	if body.Currency != "USD" || body.Source != "monobank" {
		t.Errorf("key = %s/%s", body.Currency, body.Source)
	}
	if diff := cmp.Diff([]string{"41.5", "41.6"}, sells); diff != "" {
		t.Errorf("points mismatch (-want +got):\n%s", diff)
	}
}

func TestHistoryRejectsBadInput(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	tests := map[string]string{
		"/api/history/GBP":                 "INVALID_CURRENCY",
		"/api/history/USD?source=binance":  "INVALID_SOURCE",
		"/api/history/USD?hours=-3":        "INVALID_HOURS",
		"/api/history/USD?hours=yesterday": "INVALID_HOURS",
	}
	for target, code := range tests {
		t.Run(target, func(t *testing.T) {
			rec := get(t, srv, target)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var body map[string]string
			decode(t, rec, &body)
			if body["code"] != code {
				t.Errorf("code = %q, want %q", body["code"], code)
			}
		})
	}
}

func TestExchangers(t *testing.T) {
	srv, rates := newTestServer(t, nil)
	ctx := context.Background()

	ex, err := rates.AddExchanger(ctx, model.Exchanger{Name: "Obmin 24", Lat: 50.45, Lon: 30.52})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := rates.SetExchangerRate(ctx, ex.ID, model.USD, dec("41.1"), dec("41.6")); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	rec := get(t, srv, "/api/exchangers")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body []struct {
		ID    int64   `json:"id"`
		Name  string  `json:"name"`
		Lat   float64 `json:"lat"`
		Rates map[string]struct {
			Buy string `json:"buy"`
		} `json:"rates"`
	}
	decode(t, rec, &body)
	if len(body) != 1 || body[0].Name != "Obmin 24" || body[0].Lat != 50.45 {
		t.Fatalf("unexpected body %+v", body)
	}
	if body[0].Rates["USD"].Buy != "41.1" {
		t.Errorf("USD buy = %q", body[0].Rates["USD"].Buy)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	if rec := get(t, srv, "/api/nope"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
