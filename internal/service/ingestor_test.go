package service

import (
	"context"
	"testing"
	"time"

	"uah-rates-bot/internal/model"
)

func TestIngestorRecordsMonobankOnly(t *testing.T) {
	store := newTestStore(t)
	agg := monoRates(map[model.Currency]string{model.USD: "41.60"})
	privat := model.Quote{Currency: model.EUR, Source: model.SourcePrivatBank, Buy: dec("47.80"), Sell: dec("48.60")}
	eur := agg.For(model.EUR)
	eur.PrivatBank = &privat
	agg.Set(model.EUR, eur)

	ing := NewIngestor(nil, &staticRates{agg: agg}, store, store, 1, nopLogger())
	if err := ing.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	usd, err := store.QueryHistory(context.Background(), model.USD, model.SourceMonobank, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(usd) != 1 || !usd[0].Sell.Equal(dec("41.60")) {
		t.Fatalf("USD monobank history = %+v", usd)
	}
	for _, src := range []model.Source{model.SourceNBU, model.SourcePrivatBank} {
		got, err := store.QueryHistory(context.Background(), model.EUR, src, 0)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("%s quotes must not be recorded, got %d", src, len(got))
		}
	}
}

func TestIngestorSkipsWhileLockHeld(t *testing.T) {
	store := newTestStore(t)
	unlock, ok, err := store.TryAdvisoryLock(context.Background(), 42)
	if err != nil || !ok {
		t.Fatalf("lock: %v %v", ok, err)
	}
	defer unlock()

	ing := NewIngestor(nil, &staticRates{agg: monoRates(map[model.Currency]string{model.USD: "41.60"})}, store, store, 42, nopLogger())
	if err := ing.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	got, err := store.QueryHistory(context.Background(), model.USD, model.SourceMonobank, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("tick must be skipped while another writer holds the lock, got %d quotes", len(got))
	}
}

func TestIngestorRunRequiresScheduler(t *testing.T) {
	ing := NewIngestor(nil, &staticRates{}, newTestStore(t), nil, 0, nopLogger())
	if err := ing.Run(context.Background()); err == nil {
		t.Fatal("Run without scheduler should fail")
	}
}
