package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/model"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), 123456, "<b>hi</b>"); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if received["chat_id"] != "123456" {
		t.Fatalf("chat_id = %q", received["chat_id"])
	}
	if received["parse_mode"] != "HTML" || received["text"] != "<b>hi</b>" {
		t.Fatalf("unexpected payload %#v", received)
	}
}

func TestTelegramNotifierOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), 1, "x")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("ok=false should surface the description, got %v", err)
	}
}

func TestTelegramNotifierBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Forbidden: bot was blocked by the user"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), 1, "x")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))
	if err := n.Notify(context.Background(), 9, "hello"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(buf.String(), `"user_id":9`) || !strings.Contains(buf.String(), "hello") {
		t.Fatalf("log line missing fields: %s", buf.String())
	}
}

func TestRenderAlert(t *testing.T) {
	ev := AlertEvent{
		Currency:  model.USD,
		Type:      model.AlertPercent,
		Threshold: decimal.RequireFromString("2"),
		Previous:  decimal.RequireFromString("40.00"),
		Current:   decimal.RequireFromString("40.80"),
	}

	tests := []struct {
		name string
		lang model.Language
		ev   AlertEvent
		want string
	}{
		{
			name: "ukrainian rise",
			lang: model.LangUK,
			ev:   ev,
			want: "🔔 <b>Сповіщення про курс!</b>\n\n💱 USD зріс на 2.00%\n\nПоточний курс: 40.80 ₴",
		},
		{
			name: "russian fall",
			lang: model.LangRU,
			ev:   AlertEvent{Currency: model.EUR, Type: model.AlertPercent, Previous: decimal.RequireFromString("50"), Current: decimal.RequireFromString("49")},
			want: "🔔 <b>Уведомление о курсе!</b>\n\n💱 EUR упал на 2.00%\n\nТекущий курс: 49.00 ₴",
		},
		{
			name: "price rule shows hryvnias",
			lang: model.LangUK,
			ev:   AlertEvent{Currency: model.USD, Type: model.AlertPrice, Previous: decimal.RequireFromString("41.10"), Current: decimal.RequireFromString("41.60")},
			want: "🔔 <b>Сповіщення про курс!</b>\n\n💱 USD зріс на 0.50 ₴\n\nПоточний курс: 41.60 ₴",
		},
		{
			name: "unknown language falls back",
			lang: "de",
			ev:   ev,
			want: "🔔 <b>Сповіщення про курс!</b>\n\n💱 USD зріс на 2.00%\n\nПоточний курс: 40.80 ₴",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderAlert(tt.lang, tt.ev); got != tt.want {
				t.Errorf("RenderAlert() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
