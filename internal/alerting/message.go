package alerting

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/model"
)

// AlertEvent describes one rule that crossed its threshold.
type AlertEvent struct {
	UserID    int64
	RuleID    int64
	Currency  model.Currency
	Type      model.AlertType
	Threshold decimal.Decimal
	Previous  decimal.Decimal
	Current   decimal.Decimal
	At        time.Time
}

// Rose reports whether the rate went up since the baseline.
func (e AlertEvent) Rose() bool {
	return e.Current.GreaterThan(e.Previous)
}

// ChangeAbs is the absolute change in UAH.
func (e AlertEvent) ChangeAbs() decimal.Decimal {
	return e.Current.Sub(e.Previous).Abs()
}

// ChangePercent is |cur-prev|/prev*100. Zero when the baseline is zero.
func (e AlertEvent) ChangePercent() decimal.Decimal {
	if e.Previous.IsZero() {
		return decimal.Zero
	}
	return e.ChangeAbs().Div(e.Previous).Mul(decimal.NewFromInt(100))
}

type alertPhrases struct {
	title   string
	rose    string
	fell    string
	current string
}

var phrases = map[model.Language]alertPhrases{
	model.LangUK: {title: "🔔 <b>Сповіщення про курс!</b>", rose: "зріс", fell: "впав", current: "Поточний курс"},
	model.LangRU: {title: "🔔 <b>Уведомление о курсе!</b>", rose: "вырос", fell: "упал", current: "Текущий курс"},
}

// RenderAlert formats the HTML notification text in the user's language.
// Unknown languages fall back to Ukrainian.
func RenderAlert(lang model.Language, ev AlertEvent) string {
	p, ok := phrases[lang]
	if !ok {
		p = phrases[model.LangUK]
	}

	direction := p.fell
	if ev.Rose() {
		direction = p.rose
	}

	change := ev.ChangePercent().StringFixed(2) + "%"
	if ev.Type == model.AlertPrice {
		change = ev.ChangeAbs().StringFixed(2) + " ₴"
	}

	var b strings.Builder
	b.WriteString(p.title)
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("💱 %s %s на %s\n\n", ev.Currency, direction, change))
	b.WriteString(fmt.Sprintf("%s: %s ₴", p.current, ev.Current.StringFixed(2)))
	return b.String()
}
