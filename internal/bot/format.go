package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"uah-rates-bot/internal/model"
	"uah-rates-bot/internal/service"
)

var currencyEmoji = map[model.Currency]string{
	model.USD: "💵",
	model.EUR: "💶",
}

func formatSnapshot(t texts, snap service.Snapshot, loc *time.Location) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, t.currentRates, snap.Rates.Timestamp.In(loc).Format("02.01.2006 15:04"))

	for _, currency := range model.Currencies {
		rates := snap.Rates.For(currency)
		fmt.Fprintf(&sb, "%s <b>%s</b>\n", currencyEmoji[currency], currency)
		if rates.NBU.Valid {
			fmt.Fprintf(&sb, "┣ <b>%s:</b> %s ₴\n", t.nbu, rates.NBU.Decimal.StringFixed(2))
		}
		if q := rates.Monobank; q != nil {
			writeBankQuote(&sb, t, "┣", "┃ ", "Monobank", *q)
		}
		if q := rates.PrivatBank; q != nil {
			writeBankQuote(&sb, t, "┗", "  ", "PrivatBank", *q)
		}
		if change, ok := snap.Changes[currency]; ok && change.Known && !change.Amount.IsZero() {
			sign := ""
			if change.Amount.IsPositive() {
				sign = "+"
			}
			fmt.Fprintf(&sb, "📊 %s: %s %s%s ₴\n", t.change2h, change.Trend.Emoji(), sign, change.Amount.StringFixed(2))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func writeBankQuote(sb *strings.Builder, t texts, branch, indent, name string, q model.Quote) {
	fmt.Fprintf(sb, "%s <b>%s:</b>\n", branch, name)
	fmt.Fprintf(sb, "%s ├ %s: <code>%s</code> ₴\n", indent, t.buy, q.Buy.StringFixed(2))
	fmt.Fprintf(sb, "%s └ %s: <code>%s</code> ₴\n", indent, t.sell, q.Sell.StringFixed(2))
}

func formatRule(t texts, r model.AlertRule) string {
	if r.Type == model.AlertPrice {
		return fmt.Sprintf(t.alertPrice, r.ID, r.Currency, r.Threshold.StringFixed(2))
	}
	return fmt.Sprintf(t.alertPercent, r.ID, r.Currency, r.Threshold.String())
}

func formatExchanger(t texts, ex model.Exchanger) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏦 <b>%s</b> (#%d)\n", html.EscapeString(ex.Name), ex.ID)
	if ex.Address != "" {
		addr := html.EscapeString(ex.Address)
		if ex.District != "" {
			addr += ", " + html.EscapeString(ex.District)
		}
		fmt.Fprintf(&sb, "📍 %s\n", addr)
	}
	if ex.Phone != "" {
		fmt.Fprintf(&sb, "📞 %s\n", html.EscapeString(ex.Phone))
	}
	for _, currency := range model.Currencies {
		rate, ok := ex.Rates[currency]
		if !ok {
			fmt.Fprintf(&sb, "%s %s: %s\n", currencyEmoji[currency], currency, t.noRates)
			continue
		}
		fmt.Fprintf(&sb, "%s %s: %s / %s ₴\n", currencyEmoji[currency], currency, rate.Buy.StringFixed(2), rate.Sell.StringFixed(2))
	}
	return sb.String()
}
