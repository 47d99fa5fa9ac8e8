// Package bot serves the Telegram interface of the rates service.
package bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"uah-rates-bot/internal/model"
	"uah-rates-bot/internal/service"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

const defaultPollTimeout = 60

// Options configure a Bot.
type Options struct {
	AdminIDs    []int64
	Location    *time.Location
	MaxPoints   int
	PollTimeout int

	// RequestTimeout bounds every Bot API call on top of the long-poll timeout.
	RequestTimeout time.Duration
}

// Bot handles user commands and delivers rate alerts.
type Bot struct {
	api         telegramAPI
	rates       *service.Rates
	admins      map[int64]struct{}
	loc         *time.Location
	maxPoints   int
	pollTimeout int
	logger      zerolog.Logger
}

// New connects to the Bot API at apiBase with the given token.
func New(token, apiBase string, rates *service.Rates, opts Options, logger zerolog.Logger) (*Bot, error) {
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	endpoint := strings.TrimRight(apiBase, "/") + "/bot%s/%s"
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	client := &http.Client{Timeout: time.Duration(pollTimeout)*time.Second + requestTimeout}
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	b := newBot(api, rates, opts, logger)
	b.logger.Info().Str("username", api.Self.UserName).Msg("telegram bot authorised")
	return b, nil
}

func newBot(api telegramAPI, rates *service.Rates, opts Options, logger zerolog.Logger) *Bot {
	admins := make(map[int64]struct{}, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = struct{}{}
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	return &Bot{
		api:         api,
		rates:       rates,
		admins:      admins,
		loc:         loc,
		maxPoints:   opts.MaxPoints,
		pollTimeout: pollTimeout,
		logger:      logger.With().Str("component", "bot").Logger(),
	}
}

// Run long-polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info().Int("poll_timeout", b.pollTimeout).Msg("polling for updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// Notify sends an HTML message to the user's private chat. It returns once
// ctx is done even if the Bot API has not answered yet.
func (b *Bot) Notify(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(userID, text)
	msg.ParseMode = tgbotapi.ModeHTML

	sent := make(chan error, 1)
	go func() {
		_, err := b.api.Send(msg)
		sent <- err
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("send to %d: %w", userID, ctx.Err())
	case err := <-sent:
		if err != nil {
			return fmt.Errorf("send to %d: %w", userID, err)
		}
		return nil
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Int("update_id", update.UpdateID).Msg("update handler panicked")
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	_, ok := b.admins[userID]
	return ok
}

func (b *Bot) send(chatID int64, text string, markup interface{}) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("send message")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(chatID, text, nil)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID
	cmd := msg.Command()
	args := strings.Fields(msg.CommandArguments())
	t := textsFor(b.rates.GetUserLanguage(ctx, userID))

	b.logger.Debug().Str("cmd", cmd).Strs("args", args).Int64("user_id", userID).Msg("command")

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID, userID)
	case "help":
		b.send(chatID, t.help, mainMenuKeyboard(t))
	case "lang":
		b.handleLang(ctx, chatID, userID, args)
	case "rates":
		b.handleRates(ctx, chatID, t)
	case "chart":
		b.handleChart(ctx, chatID, t, args)
	case "history":
		b.handleHistory(ctx, chatID, t, args)
	case "alerts":
		b.handleAlerts(ctx, chatID, userID, t)
	case "alert":
		b.handleAddAlert(ctx, chatID, userID, t, args)
	case "unalert":
		b.handleDeleteAlert(ctx, chatID, userID, t, args)
	case "exchangers":
		b.handleExchangers(ctx, chatID, t)
	case "setrate":
		if !b.isAdmin(userID) {
			b.reply(chatID, t.accessDenied)
			return
		}
		b.handleSetRate(ctx, chatID, t, args)
	case "stats":
		if !b.isAdmin(userID) {
			b.reply(chatID, t.accessDenied)
			return
		}
		b.handleStats(ctx, chatID, t)
	default:
		b.reply(chatID, t.unknownCommand)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn().Err(err).Msg("ack callback")
	}
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	userID := cb.From.ID
	parts := strings.Split(cb.Data, ":")

	b.logger.Debug().Str("data", cb.Data).Int64("user_id", userID).Msg("callback")

	if parts[0] == "lang" && len(parts) == 2 {
		b.handleLang(ctx, chatID, userID, parts[1:])
		return
	}

	t := textsFor(b.rates.GetUserLanguage(ctx, userID))
	switch parts[0] {
	case "rates":
		b.handleRates(ctx, chatID, t)
	case "chart":
		b.handleChart(ctx, chatID, t, parts[1:])
	case "alerts":
		b.handleAlerts(ctx, chatID, userID, t)
	case "exchangers":
		b.handleExchangers(ctx, chatID, t)
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID, userID int64) {
	known, err := b.rates.IsKnownUser(ctx, userID)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("look up user")
	}
	if !known {
		b.send(chatID, languagePrompt, languageKeyboard())
		return
	}
	t := textsFor(b.rates.GetUserLanguage(ctx, userID))
	b.send(chatID, t.welcome+"\n\n"+t.help, mainMenuKeyboard(t))
}

func (b *Bot) handleLang(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) == 0 {
		b.send(chatID, languagePrompt, languageKeyboard())
		return
	}
	lang, err := model.ParseLanguage(args[0])
	if err != nil {
		b.send(chatID, languagePrompt, languageKeyboard())
		return
	}
	if err := b.rates.SetUserLanguage(ctx, userID, lang); err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("set language")
		b.reply(chatID, textsFor(lang).failed)
		return
	}
	t := textsFor(lang)
	b.send(chatID, t.languageSet+"\n\n"+t.help, mainMenuKeyboard(t))
}
