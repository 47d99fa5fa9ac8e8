package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/model"
	"uah-rates-bot/internal/storage"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type staticRates struct {
	mu    sync.Mutex
	agg   model.AggregateRates
	calls int
}

func (s *staticRates) FetchAll(context.Context) model.AggregateRates {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.agg
}

// monoRates builds a snapshot where monobank quotes the given sell rates.
func monoRates(sells map[model.Currency]string) model.AggregateRates {
	agg := model.AggregateRates{Timestamp: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)}
	for currency, sell := range sells {
		q := model.Quote{
			Currency: currency,
			Source:   model.SourceMonobank,
			Buy:      dec(sell).Sub(dec("0.50")),
			Sell:     dec(sell),
		}
		rates := agg.For(currency)
		rates.Monobank = &q
		rates.NBU = decimal.NewNullDecimal(dec(sell).Sub(dec("0.20")))
		agg.Set(currency, rates)
	}
	return agg
}

type sentMessage struct {
	userID int64
	text   string
}

type recordingNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[int64]error
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failFor[userID]; err != nil {
		return err
	}
	n.sent = append(n.sent, sentMessage{userID: userID, text: text})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestStore(t *testing.T, opts ...storage.Option) *storage.SQLite {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), ":memory:", opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustCreateAlert(t *testing.T, store storage.AlertStore, rule model.AlertRule) model.AlertRule {
	t.Helper()
	created, err := store.CreateAlert(context.Background(), rule)
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}
	return created
}

func nopLogger() zerolog.Logger {
	return zerolog.Nop()
}
