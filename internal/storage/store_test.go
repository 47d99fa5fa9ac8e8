package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/model"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
}

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func monoQuote(buy, sell string) model.Quote {
	return model.Quote{Currency: model.USD, Source: model.SourceMonobank, Buy: dec(buy), Sell: dec(sell)}
}

type storeFactory func(t *testing.T, opts ...Option) Store

// storeContract exercises behaviour every backend must share.
func storeContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	t.Run("history keeps newest entries", func(t *testing.T) {
		store := newStore(t, WithHistoryLimit(5))
		for i := 1; i <= 8; i++ {
			q := monoQuote("40", decimal.NewFromInt(int64(40+i)).String())
			if _, err := store.AppendQuote(ctx, q); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}
		if _, err := store.AppendQuote(ctx, model.Quote{Currency: model.EUR, Source: model.SourceMonobank, Buy: dec("47"), Sell: dec("48")}); err != nil {
			t.Fatalf("append EUR: %v", err)
		}

		got, err := store.QueryHistory(ctx, model.USD, model.SourceMonobank, 0)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		var sells []string
		for _, q := range got {
			sells = append(sells, q.Sell.String())
		}
		if diff := cmp.Diff([]string{"44", "45", "46", "47", "48"}, sells); diff != "" {
			t.Errorf("retained tail mismatch (-want +got):\n%s", diff)
		}

		eur, err := store.QueryHistory(ctx, model.EUR, model.SourceMonobank, 0)
		if err != nil {
			t.Fatalf("query EUR: %v", err)
		}
		if len(eur) != 1 {
			t.Errorf("trimming USD must not touch EUR, got %d entries", len(eur))
		}
	})

	t.Run("history window boundary is exclusive", func(t *testing.T) {
		clock := newClock()
		store := newStore(t, WithClock(clock.Now))

		if _, err := store.AppendQuote(ctx, monoQuote("40.00", "40.50")); err != nil {
			t.Fatalf("append: %v", err)
		}
		clock.Advance(30 * time.Minute)
		if _, err := store.AppendQuote(ctx, monoQuote("40.10", "40.60")); err != nil {
			t.Fatalf("append: %v", err)
		}
		clock.Advance(30 * time.Minute)

		got, err := store.QueryHistory(ctx, model.USD, model.SourceMonobank, time.Hour)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(got) != 1 || !got[0].Sell.Equal(dec("40.60")) {
			t.Fatalf("entry exactly at now-1h must be excluded, got %+v", got)
		}
	})

	t.Run("history round trip", func(t *testing.T) {
		clock := newClock()
		store := newStore(t, WithClock(clock.Now))

		first, err := store.AppendQuote(ctx, monoQuote("40.00", "40.50"))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		clock.Advance(10 * time.Minute)
		second, err := store.AppendQuote(ctx, monoQuote("41.50", "42.00"))
		if err != nil {
			t.Fatalf("append: %v", err)
		}

		got, err := store.QueryHistory(ctx, model.USD, model.SourceMonobank, time.Hour)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		want := []model.Quote{first, second}
		if diff := cmp.Diff(want, got, decimalComparer); diff != "" {
			t.Errorf("history mismatch (-want +got):\n%s", diff)
		}
		if !got[0].ObservedAt.Equal(clock.now.Add(-10 * time.Minute)) {
			t.Errorf("observed_at should come from the store clock, got %s", got[0].ObservedAt)
		}
	})

	t.Run("history for unknown key is empty", func(t *testing.T) {
		store := newStore(t)
		got, err := store.QueryHistory(ctx, model.EUR, model.SourcePrivatBank, time.Hour)
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("want empty non-nil slice, got %#v", got)
		}
	})

	t.Run("alert ids are never reused", func(t *testing.T) {
		store := newStore(t)
		rule := model.AlertRule{UserID: 42, Currency: model.USD, Type: model.AlertPercent, Threshold: dec("2")}

		for want := int64(1); want <= 2; want++ {
			created, err := store.CreateAlert(ctx, rule)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if created.ID != want || !created.Active {
				t.Fatalf("created %+v, want id %d active", created, want)
			}
		}
		if err := store.DeleteAlert(ctx, 42, 1); err != nil {
			t.Fatalf("delete: %v", err)
		}
		third, err := store.CreateAlert(ctx, rule)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if third.ID != 3 {
			t.Fatalf("id after delete = %d, want 3", third.ID)
		}

		rules, err := store.ListAlerts(ctx, 42)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		var ids []int64
		for _, r := range rules {
			ids = append(ids, r.ID)
		}
		if diff := cmp.Diff([]int64{2, 3}, ids); diff != "" {
			t.Errorf("ids mismatch (-want +got):\n%s", diff)
		}

		other, err := store.CreateAlert(ctx, model.AlertRule{UserID: 7, Currency: model.EUR, Type: model.AlertPrice, Threshold: dec("0.5")})
		if err != nil {
			t.Fatalf("create for other user: %v", err)
		}
		if other.ID != 1 {
			t.Fatalf("counters are per user, got id %d", other.ID)
		}
	})

	t.Run("delete missing alert is a no-op", func(t *testing.T) {
		store := newStore(t)
		if err := store.DeleteAlert(ctx, 1, 99); err != nil {
			t.Fatalf("delete missing: %v", err)
		}
	})

	t.Run("create alert validates input", func(t *testing.T) {
		store := newStore(t)
		_, err := store.CreateAlert(ctx, model.AlertRule{UserID: 1, Currency: model.USD, Type: model.AlertPercent, Threshold: dec("0")})
		if !errors.Is(err, model.ErrInvalidThreshold) {
			t.Fatalf("err = %v, want ErrInvalidThreshold", err)
		}
	})

	t.Run("list all alerts groups by user", func(t *testing.T) {
		store := newStore(t)
		for _, user := range []int64{5, 3, 5} {
			if _, err := store.CreateAlert(ctx, model.AlertRule{UserID: user, Currency: model.USD, Type: model.AlertPercent, Threshold: dec("1.5")}); err != nil {
				t.Fatalf("create: %v", err)
			}
		}

		all, err := store.ListAllAlerts(ctx)
		if err != nil {
			t.Fatalf("list all: %v", err)
		}
		if len(all) != 2 || len(all[5]) != 2 || len(all[3]) != 1 {
			t.Fatalf("unexpected grouping %+v", all)
		}
		if !all[5][1].Threshold.Equal(dec("1.5")) {
			t.Errorf("threshold round trip = %s", all[5][1].Threshold)
		}
	})

	t.Run("settings", func(t *testing.T) {
		store := newStore(t)
		if _, found, err := store.GetSettings(ctx, 10); err != nil || found {
			t.Fatalf("unknown user: found=%v err=%v", found, err)
		}
		if err := store.SetLanguage(ctx, 10, model.LangRU); err != nil {
			t.Fatalf("set language: %v", err)
		}
		if err := store.SetLanguage(ctx, 10, "de"); !errors.Is(err, model.ErrUnknownLanguage) {
			t.Fatalf("unsupported language err = %v", err)
		}
		settings, found, err := store.GetSettings(ctx, 10)
		if err != nil || !found || settings.Language != model.LangRU {
			t.Fatalf("settings = %+v found=%v err=%v", settings, found, err)
		}

		if _, err := store.CreateAlert(ctx, model.AlertRule{UserID: 4, Currency: model.EUR, Type: model.AlertPercent, Threshold: dec("1")}); err != nil {
			t.Fatalf("create: %v", err)
		}
		users, err := store.ListUsers(ctx)
		if err != nil {
			t.Fatalf("list users: %v", err)
		}
		if diff := cmp.Diff([]int64{4, 10}, users); diff != "" {
			t.Errorf("users mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("exchangers", func(t *testing.T) {
		clock := newClock()
		store := newStore(t, WithClock(clock.Now))

		added, err := store.AddExchanger(ctx, model.Exchanger{
			Name: "Obmin 24", Address: "Khreshchatyk 1", District: "Pechersk", Lat: 50.45, Lon: 30.52,
			Rates: map[model.Currency]model.ExchangerRate{model.USD: {Buy: dec("41.00"), Sell: dec("41.40")}},
		})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if added.ID == 0 {
			t.Fatal("id not assigned")
		}

		clock.Advance(time.Hour)
		if err := store.UpdateExchangerRate(ctx, added.ID, model.EUR, model.ExchangerRate{Buy: dec("47.90"), Sell: dec("48.30")}); err != nil {
			t.Fatalf("update: %v", err)
		}
		if err := store.UpdateExchangerRate(ctx, added.ID+100, model.EUR, model.ExchangerRate{Buy: dec("1"), Sell: dec("1")}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("update unknown err = %v, want ErrNotFound", err)
		}

		got, err := store.GetExchanger(ctx, added.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		want := model.Exchanger{
			ID: added.ID, Name: "Obmin 24", Address: "Khreshchatyk 1", District: "Pechersk", Lat: 50.45, Lon: 30.52,
			Rates: map[model.Currency]model.ExchangerRate{
				model.USD: {Buy: dec("41.00"), Sell: dec("41.40"), UpdatedAt: clock.now.Add(-time.Hour)},
				model.EUR: {Buy: dec("47.90"), Sell: dec("48.30"), UpdatedAt: clock.now},
			},
		}
		if diff := cmp.Diff(want, got, decimalComparer, cmpopts.EquateApproxTime(time.Microsecond)); diff != "" {
			t.Errorf("exchanger mismatch (-want +got):\n%s", diff)
		}

		if _, err := store.GetExchanger(ctx, added.ID+100); !errors.Is(err, ErrNotFound) {
			t.Fatalf("get unknown err = %v, want ErrNotFound", err)
		}

		list, err := store.ListExchangers(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 1 || len(list[0].Rates) != 2 {
			t.Fatalf("unexpected list %+v", list)
		}
	})
}
