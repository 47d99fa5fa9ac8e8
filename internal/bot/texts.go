package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"uah-rates-bot/internal/chart"
	"uah-rates-bot/internal/model"
)

// texts holds every user-facing phrase of one language.
type texts struct {
	welcome        string
	languageSet    string
	help           string
	currentRates   string // time
	nbu            string
	buy            string
	sell           string
	change2h       string
	notEnoughData  string
	chooseCurrency string
	choosePeriod   string
	chartCaption   string // currency, period
	periods        map[chart.Period]string
	historyTitle   string // currency, source, hours
	historyEmpty   string
	historyUsage   string
	alertsTitle    string
	alertsEmpty    string
	alertPercent   string // id, currency, threshold
	alertPrice     string // id, currency, threshold
	alertCreated   string // id
	alertUsage     string
	alertDeleted   string // id
	unalertUsage   string
	exchangers     string
	exchangersNone string
	noRates        string
	setRateUsage   string
	rateUpdated    string // name, currency, buy, sell
	notFound       string
	invalidNumber  string
	accessDenied   string
	stats          string // users, uk, ru, exchangers, with rates, alerts
	unknownCommand string
	failed         string
	btnRates       string
	btnChart       string
	btnAlerts      string
	btnExchangers  string
}

// languagePrompt is shown before the user has picked a language.
const languagePrompt = "👋 <b>Вітаємо! / Добро пожаловать!</b>\n\n" +
	"💰 Курси НБУ, Monobank та PrivatBank, графіки та сповіщення про зміну курсу.\n\n" +
	"<b>Оберіть мову / Выберите язык:</b>"

var catalog = map[model.Language]texts{
	model.LangUK: {
		welcome:     "👋 <b>Вітаємо!</b>\n\n💰 Бот для моніторингу курсів валют.",
		languageSet: "✅ Мову змінено на українську.",
		help: "<b>Команди</b>\n" +
			"/rates - поточні курси\n" +
			"/chart USD day|week|month - графік\n" +
			"/history USD [години] [джерело] - історія\n" +
			"/alerts - ваші сповіщення\n" +
			"/alert USD percent 2 - нове сповіщення (percent або price)\n" +
			"/unalert 1 - видалити сповіщення\n" +
			"/exchangers - обмінники\n" +
			"/lang uk|ru - мова",
		currentRates:   "💱 <b>Курси валют</b> (%s)\n\n",
		nbu:            "НБУ",
		buy:            "Купівля",
		sell:           "Продаж",
		change2h:       "Зміна за 2 год",
		notEnoughData:  "📉 Недостатньо даних для графіка. Спробуйте пізніше.",
		chooseCurrency: "Оберіть валюту:",
		choosePeriod:   "Оберіть період:",
		chartCaption:   "📊 Динаміка курсу %s/UAH за %s",
		periods: map[chart.Period]string{
			chart.PeriodDay:   "день",
			chart.PeriodWeek:  "тиждень",
			chart.PeriodMonth: "місяць",
		},
		historyTitle:   "🕘 <b>%s, %s</b> за %d год\n\n",
		historyEmpty:   "Історія порожня.",
		historyUsage:   "Використання: /history USD [години] [nbu|monobank|privatbank]",
		alertsTitle:    "🔔 <b>Ваші сповіщення</b>\n\n",
		alertsEmpty:    "У вас немає активних сповіщень.",
		alertPercent:   "#%d %s: зміна на %s%%\n",
		alertPrice:     "#%d %s: зміна на %s ₴\n",
		alertCreated:   "✅ Сповіщення #%d створено!",
		alertUsage:     "Використання: /alert USD percent 2 або /alert EUR price 0.5",
		alertDeleted:   "🗑 Сповіщення #%d видалено.",
		unalertUsage:   "Використання: /unalert 1",
		exchangers:     "🏦 <b>Обмінники</b>\n\n",
		exchangersNone: "Обмінників поки немає.",
		noRates:        "курс не вказано",
		setRateUsage:   "Використання: /setrate 1 USD 41.00 41.50",
		rateUpdated:    "✅ <b>Курс оновлено!</b>\n\n%s\n%s: %s / %s ₴",
		notFound:       "❌ Не знайдено.",
		invalidNumber:  "❌ Невірне число. Спробуйте ще раз.",
		accessDenied:   "❌ Доступ заборонено",
		stats: "📊 <b>Детальна статистика</b>\n\n" +
			"👥 <b>Користувачі:</b> %d\n   ├ 🇺🇦 Українська: %d\n   └ 🇷🇺 Русский: %d\n\n" +
			"💱 <b>Обмінники:</b> %d\n   └ З курсами: %d\n\n" +
			"🔔 <b>Активні сповіщення:</b> %d\n",
		unknownCommand: "Невідома команда. /help - список команд.",
		failed:         "❌ Сталася помилка. Спробуйте пізніше.",
		btnRates:       "💱 Курси",
		btnChart:       "📊 Графік",
		btnAlerts:      "🔔 Сповіщення",
		btnExchangers:  "🏦 Обмінники",
	},
	model.LangRU: {
		welcome:     "👋 <b>Добро пожаловать!</b>\n\n💰 Бот для мониторинга курсов валют.",
		languageSet: "✅ Язык изменён на русский.",
		help: "<b>Команды</b>\n" +
			"/rates - текущие курсы\n" +
			"/chart USD day|week|month - график\n" +
			"/history USD [часы] [источник] - история\n" +
			"/alerts - ваши уведомления\n" +
			"/alert USD percent 2 - новое уведомление (percent или price)\n" +
			"/unalert 1 - удалить уведомление\n" +
			"/exchangers - обменники\n" +
			"/lang uk|ru - язык",
		currentRates:   "💱 <b>Курсы валют</b> (%s)\n\n",
		nbu:            "НБУ",
		buy:            "Покупка",
		sell:           "Продажа",
		change2h:       "Изменение за 2 ч",
		notEnoughData:  "📉 Недостаточно данных для графика. Попробуйте позже.",
		chooseCurrency: "Выберите валюту:",
		choosePeriod:   "Выберите период:",
		chartCaption:   "📊 Динамика курса %s/UAH за %s",
		periods: map[chart.Period]string{
			chart.PeriodDay:   "день",
			chart.PeriodWeek:  "неделю",
			chart.PeriodMonth: "месяц",
		},
		historyTitle:   "🕘 <b>%s, %s</b> за %d ч\n\n",
		historyEmpty:   "История пуста.",
		historyUsage:   "Использование: /history USD [часы] [nbu|monobank|privatbank]",
		alertsTitle:    "🔔 <b>Ваши уведомления</b>\n\n",
		alertsEmpty:    "У вас нет активных уведомлений.",
		alertPercent:   "#%d %s: изменение на %s%%\n",
		alertPrice:     "#%d %s: изменение на %s ₴\n",
		alertCreated:   "✅ Уведомление #%d создано!",
		alertUsage:     "Использование: /alert USD percent 2 или /alert EUR price 0.5",
		alertDeleted:   "🗑 Уведомление #%d удалено.",
		unalertUsage:   "Использование: /unalert 1",
		exchangers:     "🏦 <b>Обменники</b>\n\n",
		exchangersNone: "Обменников пока нет.",
		noRates:        "курс не указан",
		setRateUsage:   "Использование: /setrate 1 USD 41.00 41.50",
		rateUpdated:    "✅ <b>Курс обновлен!</b>\n\n%s\n%s: %s / %s ₴",
		notFound:       "❌ Не найдено.",
		invalidNumber:  "❌ Неверное число. Попробуйте еще раз.",
		accessDenied:   "❌ Доступ запрещен",
		stats: "📊 <b>Подробная статистика</b>\n\n" +
			"👥 <b>Пользователи:</b> %d\n   ├ 🇺🇦 Українська: %d\n   └ 🇷🇺 Русский: %d\n\n" +
			"💱 <b>Обменники:</b> %d\n   └ С курсами: %d\n\n" +
			"🔔 <b>Активные уведомления:</b> %d\n",
		unknownCommand: "Неизвестная команда. /help - список команд.",
		failed:         "❌ Произошла ошибка. Попробуйте позже.",
		btnRates:       "💱 Курсы",
		btnChart:       "📊 График",
		btnAlerts:      "🔔 Уведомления",
		btnExchangers:  "🏦 Обменники",
	},
}

func textsFor(lang model.Language) texts {
	if t, ok := catalog[lang]; ok {
		return t
	}
	return catalog[model.LangUK]
}

func languageKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🇺🇦 Українська", "lang:uk"),
			tgbotapi.NewInlineKeyboardButtonData("🇷🇺 Русский", "lang:ru"),
		),
	)
}

func mainMenuKeyboard(t texts) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(t.btnRates, "rates"),
			tgbotapi.NewInlineKeyboardButtonData(t.btnChart, "chart"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(t.btnAlerts, "alerts"),
			tgbotapi.NewInlineKeyboardButtonData(t.btnExchangers, "exchangers"),
		),
	)
}

func currencyKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💵 USD", "chart:USD"),
			tgbotapi.NewInlineKeyboardButtonData("💶 EUR", "chart:EUR"),
		),
	)
}

func periodKeyboard(t texts, currency model.Currency) tgbotapi.InlineKeyboardMarkup {
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(chart.Periods))
	for _, p := range chart.Periods {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(t.periods[p], "chart:"+string(currency)+":"+string(p)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}
