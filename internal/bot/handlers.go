package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"uah-rates-bot/internal/chart"
	"uah-rates-bot/internal/model"
	"uah-rates-bot/internal/service"
	"uah-rates-bot/internal/storage"
)

const (
	defaultHistoryHours = 24
	historyLines        = 12
)

func (b *Bot) handleRates(ctx context.Context, chatID int64, t texts) {
	snap, err := b.rates.Snapshot(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("rates snapshot")
		b.reply(chatID, t.failed)
		return
	}
	b.send(chatID, formatSnapshot(t, snap, b.loc), mainMenuKeyboard(t))
}

func (b *Bot) handleChart(ctx context.Context, chatID int64, t texts, args []string) {
	if len(args) == 0 {
		b.send(chatID, t.chooseCurrency, currencyKeyboard())
		return
	}
	currency, err := model.ParseCurrency(args[0])
	if err != nil {
		b.send(chatID, t.chooseCurrency, currencyKeyboard())
		return
	}
	if len(args) < 2 {
		b.send(chatID, t.choosePeriod, periodKeyboard(t, currency))
		return
	}
	period, err := chart.ParsePeriod(args[1])
	if err != nil {
		b.send(chatID, t.choosePeriod, periodKeyboard(t, currency))
		return
	}

	quotes, err := b.rates.ChartHistory(ctx, currency, period.Hours())
	if errors.Is(err, service.ErrInsufficientHistory) {
		b.reply(chatID, t.notEnoughData)
		return
	}
	if err != nil {
		b.logger.Error().Err(err).Str("currency", string(currency)).Msg("chart history")
		b.reply(chatID, t.failed)
		return
	}

	var buf bytes.Buffer
	opts := chart.Options{Currency: currency, Period: period, Location: b.loc}
	if err := chart.RenderPNG(&buf, chart.Downsample(quotes, b.maxPoints), opts); err != nil {
		b.logger.Error().Err(err).Str("currency", string(currency)).Msg("render chart")
		b.reply(chatID, t.failed)
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "chart.png", Bytes: buf.Bytes()})
	photo.Caption = fmt.Sprintf(t.chartCaption, currency, t.periods[period])
	if _, err := b.api.Send(photo); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send chart")
	}
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64, t texts, args []string) {
	if len(args) == 0 {
		b.reply(chatID, t.historyUsage)
		return
	}
	currency, err := model.ParseCurrency(args[0])
	if err != nil {
		b.reply(chatID, t.historyUsage)
		return
	}
	hours := defaultHistoryHours
	if len(args) > 1 {
		hours, err = strconv.Atoi(args[1])
		if err != nil || hours <= 0 {
			b.reply(chatID, t.historyUsage)
			return
		}
	}
	source := model.SourceMonobank
	if len(args) > 2 {
		if source, err = model.ParseSource(args[2]); err != nil {
			b.reply(chatID, t.historyUsage)
			return
		}
	}

	quotes, err := b.rates.GetHistory(ctx, currency, source, hours)
	if err != nil {
		b.logger.Error().Err(err).Str("currency", string(currency)).Msg("history")
		b.reply(chatID, t.failed)
		return
	}
	if len(quotes) == 0 {
		b.reply(chatID, t.historyEmpty)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, t.historyTitle, currency, source, hours)
	for _, q := range chart.Downsample(quotes, historyLines) {
		stamp := q.ObservedAt.In(b.loc).Format("02.01 15:04")
		if q.IsSingleRate() {
			fmt.Fprintf(&sb, "<code>%s</code>  %s ₴\n", stamp, q.Rate().StringFixed(2))
			continue
		}
		fmt.Fprintf(&sb, "<code>%s</code>  %s / %s ₴\n", stamp, q.Buy.StringFixed(2), q.Sell.StringFixed(2))
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) handleAlerts(ctx context.Context, chatID, userID int64, t texts) {
	rules, err := b.rates.ListAlerts(ctx, userID)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("list alerts")
		b.reply(chatID, t.failed)
		return
	}
	if len(rules) == 0 {
		b.reply(chatID, t.alertsEmpty+"\n\n"+t.alertUsage)
		return
	}
	var sb strings.Builder
	sb.WriteString(t.alertsTitle)
	for _, r := range rules {
		sb.WriteString(formatRule(t, r))
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) handleAddAlert(ctx context.Context, chatID, userID int64, t texts, args []string) {
	var currencyArg, typeArg, thresholdArg string
	switch len(args) {
	case 2:
		currencyArg, typeArg, thresholdArg = args[0], string(model.AlertPercent), args[1]
	case 3:
		currencyArg, typeArg, thresholdArg = args[0], args[1], args[2]
	default:
		b.reply(chatID, t.alertUsage)
		return
	}

	currency, err := model.ParseCurrency(currencyArg)
	if err != nil {
		b.reply(chatID, t.alertUsage)
		return
	}
	kind, err := model.ParseAlertType(typeArg)
	if err != nil {
		b.reply(chatID, t.alertUsage)
		return
	}
	threshold, err := parseNumber(thresholdArg)
	if err != nil {
		b.reply(chatID, t.invalidNumber)
		return
	}

	rule, err := b.rates.CreateAlert(ctx, userID, currency, kind, threshold)
	if errors.Is(err, model.ErrInvalidThreshold) {
		b.reply(chatID, t.invalidNumber)
		return
	}
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("create alert")
		b.reply(chatID, t.failed)
		return
	}
	b.logger.Info().Int64("user_id", userID).Int64("alert_id", rule.ID).Str("currency", string(currency)).Msg("alert created")
	b.reply(chatID, fmt.Sprintf(t.alertCreated, rule.ID)+"\n\n"+formatRule(t, rule))
}

func (b *Bot) handleDeleteAlert(ctx context.Context, chatID, userID int64, t texts, args []string) {
	if len(args) != 1 {
		b.reply(chatID, t.unalertUsage)
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		b.reply(chatID, t.unalertUsage)
		return
	}
	if err := b.rates.DeleteAlert(ctx, userID, id); err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Int64("alert_id", id).Msg("delete alert")
		b.reply(chatID, t.failed)
		return
	}
	b.reply(chatID, fmt.Sprintf(t.alertDeleted, id))
}

func (b *Bot) handleExchangers(ctx context.Context, chatID int64, t texts) {
	list, err := b.rates.ListExchangers(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("list exchangers")
		b.reply(chatID, t.failed)
		return
	}
	if len(list) == 0 {
		b.reply(chatID, t.exchangersNone)
		return
	}
	var sb strings.Builder
	sb.WriteString(t.exchangers)
	for _, ex := range list {
		sb.WriteString(formatExchanger(t, ex))
		sb.WriteString("\n")
	}
	b.reply(chatID, sb.String())
}

func (b *Bot) handleSetRate(ctx context.Context, chatID int64, t texts, args []string) {
	if len(args) != 4 {
		b.reply(chatID, t.setRateUsage)
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.reply(chatID, t.setRateUsage)
		return
	}
	currency, err := model.ParseCurrency(args[1])
	if err != nil {
		b.reply(chatID, t.setRateUsage)
		return
	}
	buy, errBuy := parseNumber(args[2])
	sell, errSell := parseNumber(args[3])
	if errBuy != nil || errSell != nil {
		b.reply(chatID, t.invalidNumber)
		return
	}

	err = b.rates.SetExchangerRate(ctx, id, currency, buy, sell)
	switch {
	case errors.Is(err, model.ErrInvalidRate):
		b.reply(chatID, t.invalidNumber)
		return
	case errors.Is(err, storage.ErrNotFound):
		b.reply(chatID, t.notFound)
		return
	case err != nil:
		b.logger.Error().Err(err).Int64("exchanger_id", id).Msg("set exchanger rate")
		b.reply(chatID, t.failed)
		return
	}

	ex, err := b.rates.GetExchanger(ctx, id)
	if err != nil {
		b.logger.Error().Err(err).Int64("exchanger_id", id).Msg("reload exchanger")
		b.reply(chatID, t.failed)
		return
	}
	b.logger.Info().Int64("exchanger_id", id).Str("currency", string(currency)).Msg("exchanger rate updated")
	b.reply(chatID, fmt.Sprintf(t.rateUpdated, html.EscapeString(ex.Name), currency, buy.StringFixed(2), sell.StringFixed(2)))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64, t texts) {
	users, err := b.rates.ListUsers(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("list users")
		b.reply(chatID, t.failed)
		return
	}
	byLang := map[model.Language]int{}
	for _, id := range users {
		byLang[b.rates.GetUserLanguage(ctx, id)]++
	}

	exchangers, err := b.rates.ListExchangers(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("list exchangers")
		b.reply(chatID, t.failed)
		return
	}
	withRates := 0
	for _, ex := range exchangers {
		if len(ex.Rates) > 0 {
			withRates++
		}
	}

	all, err := b.rates.ListAllAlerts(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("list all alerts")
		b.reply(chatID, t.failed)
		return
	}
	active := 0
	for _, rules := range all {
		for _, r := range rules {
			if r.Active {
				active++
			}
		}
	}

	b.reply(chatID, fmt.Sprintf(t.stats, len(users), byLang[model.LangUK], byLang[model.LangRU], len(exchangers), withRates, active))
}

// parseNumber accepts both "41.5" and "41,5".
func parseNumber(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
}
